package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"estoque/internal/dto"
	"estoque/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func saleAt(at time.Time, lines ...model.SaleItem) model.Sale {
	s := model.Sale{ID: uuid.New(), PaymentMethod: model.PaymentCash, CreatedAt: at}
	for _, l := range lines {
		l.LineTotal = l.SalePrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
		s.Items = append(s.Items, l)
	}
	return s
}

func line(id uuid.UUID, name string, qty int, cost, price string) model.SaleItem {
	return model.SaleItem{
		ItemID:    id,
		ItemName:  name,
		Quantity:  qty,
		CostPrice: decimal.RequireFromString(cost),
		SalePrice: decimal.RequireFromString(price),
	}
}

func TestBuildDashboard_RanksByVolumeAndProfit(t *testing.T) {
	march := MonthOf(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))
	in := time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)
	out := time.Date(2026, 2, 27, 10, 0, 0, 0, time.UTC)

	cheap, pricey, mid := uuid.New(), uuid.New(), uuid.New()
	sales := []model.Sale{
		saleAt(in, line(cheap, "Cheap", 10, "1.00", "1.50"), line(pricey, "Pricey", 1, "10.00", "30.00")),
		saleAt(in, line(mid, "Mid", 4, "2.00", "4.00")),
		// outside the window, must not count
		saleAt(out, line(pricey, "Pricey", 100, "10.00", "30.00")),
	}

	d := BuildDashboard(sales, nil, march, 4, 5)

	require.Len(t, d.TopByVolume, 3)
	assert.Equal(t, "Cheap", d.TopByVolume[0].ItemName)
	assert.Equal(t, 10, d.TopByVolume[0].UnitsSold)
	assert.Equal(t, "Mid", d.TopByVolume[1].ItemName)
	assert.Equal(t, "Pricey", d.TopByVolume[2].ItemName)

	require.Len(t, d.TopByProfit, 3)
	assert.Equal(t, "Pricey", d.TopByProfit[0].ItemName)
	assert.Equal(t, "20.00", d.TopByProfit[0].Profit.StringFixed(2))
	assert.Equal(t, "Mid", d.TopByProfit[1].ItemName)
	assert.Equal(t, "Cheap", d.TopByProfit[2].ItemName)
	assert.Equal(t, "5.00", d.TopByProfit[2].Profit.StringFixed(2))

	assert.Equal(t, "2026-03-01", d.From)
	assert.Equal(t, "2026-03-31", d.To)
}

func TestBuildDashboard_ProfitUsesSaleTimeCost(t *testing.T) {
	w := MonthOf(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	id := uuid.New()
	sales := []model.Sale{saleAt(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), line(id, "Widget", 3, "5.00", "8.00"))}
	// the live item has since become more expensive to restock
	items := []model.Item{{ID: id, Name: "Widget", Quantity: 7, CostPrice: decimal.RequireFromString("7.90"), SalePrice: decimal.RequireFromString("8.00")}}

	d := BuildDashboard(sales, items, w, 4, 5)
	require.Len(t, d.TopByProfit, 1)
	assert.Equal(t, "9.00", d.TopByProfit[0].Profit.StringFixed(2))
}

func TestBuildDashboard_TopNAndTies(t *testing.T) {
	w := MonthOf(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	at := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	var lines []model.SaleItem
	for _, name := range []string{"Echo", "Delta", "Charlie", "Bravo", "Alpha"} {
		lines = append(lines, line(uuid.New(), name, 2, "1.00", "2.00"))
	}
	d := BuildDashboard([]model.Sale{saleAt(at, lines...)}, nil, w, 4, 5)

	require.Len(t, d.TopByVolume, 4)
	names := []string{}
	for _, p := range d.TopByVolume {
		names = append(names, p.ItemName)
	}
	assert.Equal(t, []string{"Alpha", "Bravo", "Charlie", "Delta"}, names)
}

func TestBuildDashboard_LowStockAndEmpty(t *testing.T) {
	w := MonthOf(time.Now())
	items := []model.Item{
		{ID: uuid.New(), Name: "Plenty", Quantity: 40},
		{ID: uuid.New(), Name: "Edge", Quantity: 5},
		{ID: uuid.New(), Name: "Last", Quantity: 1},
	}
	d := BuildDashboard(nil, items, w, 4, 5)

	assert.NotNil(t, d.TopByVolume)
	assert.Empty(t, d.TopByVolume)
	require.Len(t, d.LowStock, 2)
	assert.Equal(t, "Last", d.LowStock[0].ItemName)
	assert.Equal(t, "Edge", d.LowStock[1].ItemName)
}

func TestDashboardService_CachesInRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	sales := &stubSaleRepo{}
	items := newStubItemRepo()
	id := uuid.New()
	now := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	require.NoError(t, sales.CreateTx(nil, &model.Sale{ID: uuid.New(), CreatedAt: now, Items: []model.SaleItem{line(id, "Widget", 3, "5.00", "8.00")}}))

	svc := NewDashboardService(sales, items, rdb, 30*time.Second, 4, 5).(*dashboardService)
	svc.now = func() time.Time { return now }

	first, err := svc.Get(context.Background(), dto.DashboardFilter{})
	require.NoError(t, err)
	require.Len(t, first.TopByVolume, 1)
	assert.Len(t, mr.Keys(), 1)

	// a sale recorded after caching is not visible until the entry expires
	require.NoError(t, sales.CreateTx(nil, &model.Sale{ID: uuid.New(), CreatedAt: now, Items: []model.SaleItem{line(uuid.New(), "Other", 9, "1.00", "2.00")}}))
	cached, err := svc.Get(context.Background(), dto.DashboardFilter{})
	require.NoError(t, err)
	assert.Len(t, cached.TopByVolume, 1)

	mr.FastForward(31 * time.Second)
	fresh, err := svc.Get(context.Background(), dto.DashboardFilter{})
	require.NoError(t, err)
	assert.Len(t, fresh.TopByVolume, 2)
}

func TestDashboardService_WithoutRedis(t *testing.T) {
	svc := NewDashboardService(&stubSaleRepo{}, newStubItemRepo(), nil, 30*time.Second, 4, 5)
	d, err := svc.Get(context.Background(), dto.DashboardFilter{From: "2026-03-01", To: "2026-03-31", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01", d.From)
	assert.Equal(t, "2026-03-31", d.To)

	_, err = svc.Get(context.Background(), dto.DashboardFilter{From: "01/03/2026"})
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestDashboardService_ConcurrentMissesAgree(t *testing.T) {
	sales := &stubSaleRepo{}
	now := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	require.NoError(t, sales.CreateTx(nil, &model.Sale{ID: uuid.New(), CreatedAt: now, Items: []model.SaleItem{line(uuid.New(), "Widget", 3, "5.00", "8.00")}}))
	svc := NewDashboardService(sales, newStubItemRepo(), nil, 0, 4, 5).(*dashboardService)
	svc.now = func() time.Time { return now }

	var wg sync.WaitGroup
	results := make([]*dto.DashboardResponse, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := svc.Get(context.Background(), dto.DashboardFilter{})
			assert.NoError(t, err)
			results[i] = d
		}(i)
	}
	wg.Wait()
	for _, d := range results {
		require.NotNil(t, d)
		require.Len(t, d.TopByVolume, 1)
		assert.Equal(t, 3, d.TopByVolume[0].UnitsSold)
	}
}

// gatedSaleRepo blocks ListBetween until released, honouring ctx meanwhile.
type gatedSaleRepo struct {
	*stubSaleRepo
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func (r *gatedSaleRepo) ListBetween(ctx context.Context, from, to time.Time) ([]model.Sale, error) {
	r.once.Do(func() { close(r.started) })
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-r.release:
	}
	return r.stubSaleRepo.ListBetween(ctx, from, to)
}

func TestDashboardService_CancelledCallerDoesNotFailOthers(t *testing.T) {
	now := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	sales := &gatedSaleRepo{stubSaleRepo: &stubSaleRepo{}, started: make(chan struct{}), release: make(chan struct{})}
	require.NoError(t, sales.CreateTx(nil, &model.Sale{ID: uuid.New(), CreatedAt: now, Items: []model.SaleItem{line(uuid.New(), "Widget", 3, "5.00", "8.00")}}))
	svc := NewDashboardService(sales, newStubItemRepo(), nil, 0, 4, 5).(*dashboardService)
	svc.now = func() time.Time { return now }

	ctx1, cancel1 := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.Get(ctx1, dto.DashboardFilter{})
		firstErr <- err
	}()
	<-sales.started

	type result struct {
		d   *dto.DashboardResponse
		err error
	}
	second := make(chan result, 1)
	go func() {
		d, err := svc.Get(context.Background(), dto.DashboardFilter{})
		second <- result{d, err}
	}()
	// let the second caller join the running build
	time.Sleep(50 * time.Millisecond)

	cancel1()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(sales.release)
	res := <-second
	require.NoError(t, res.err)
	require.Len(t, res.d.TopByVolume, 1)
	assert.Equal(t, 3, res.d.TopByVolume[0].UnitsSold)
}
