package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"estoque/internal/dto"
	"estoque/internal/model"
	"estoque/internal/repository"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// BuildDashboard ranks items by units sold and by profit over the sales that
// fall inside w, and lists live items at or below lowStockThreshold. Profit
// uses the cost price captured at sale time. It has no side effects.
func BuildDashboard(sales []model.Sale, items []model.Item, w Window, topN, lowStockThreshold int) *dto.DashboardResponse {
	type agg struct {
		id      uuid.UUID
		name    string
		units   int
		revenue decimal.Decimal
		profit  decimal.Decimal
	}
	byItem := make(map[uuid.UUID]*agg)
	for _, sale := range sales {
		if !w.Contains(sale.CreatedAt) {
			continue
		}
		for _, line := range sale.Items {
			a, ok := byItem[line.ItemID]
			if !ok {
				a = &agg{id: line.ItemID, revenue: decimal.Zero, profit: decimal.Zero}
				byItem[line.ItemID] = a
			}
			// the most recent name wins so renamed items show their current label
			a.name = line.ItemName
			qty := decimal.NewFromInt(int64(line.Quantity))
			a.units += line.Quantity
			a.revenue = a.revenue.Add(line.LineTotal)
			a.profit = a.profit.Add(line.SalePrice.Sub(line.CostPrice).Mul(qty))
		}
	}

	rows := make([]dto.ItemPerformance, 0, len(byItem))
	for _, a := range byItem {
		rows = append(rows, dto.ItemPerformance{
			ItemID:    a.id.String(),
			ItemName:  a.name,
			UnitsSold: a.units,
			Revenue:   a.revenue.Round(2),
			Profit:    a.profit.Round(2),
		})
	}

	byVolume := make([]dto.ItemPerformance, len(rows))
	copy(byVolume, rows)
	sort.Slice(byVolume, func(i, j int) bool {
		if byVolume[i].UnitsSold != byVolume[j].UnitsSold {
			return byVolume[i].UnitsSold > byVolume[j].UnitsSold
		}
		return tieBreak(byVolume[i], byVolume[j])
	})
	byProfit := make([]dto.ItemPerformance, len(rows))
	copy(byProfit, rows)
	sort.Slice(byProfit, func(i, j int) bool {
		if c := byProfit[i].Profit.Cmp(byProfit[j].Profit); c != 0 {
			return c > 0
		}
		return tieBreak(byProfit[i], byProfit[j])
	})

	resp := &dto.DashboardResponse{
		TopByVolume: head(byVolume, topN),
		TopByProfit: head(byProfit, topN),
		LowStock:    []dto.LowStockItem{},
	}
	resp.From, resp.To = w.label()

	for _, it := range items {
		if it.Quantity <= lowStockThreshold {
			resp.LowStock = append(resp.LowStock, dto.LowStockItem{ItemID: it.ID.String(), ItemName: it.Name, Quantity: it.Quantity})
		}
	}
	sort.Slice(resp.LowStock, func(i, j int) bool {
		if resp.LowStock[i].Quantity != resp.LowStock[j].Quantity {
			return resp.LowStock[i].Quantity < resp.LowStock[j].Quantity
		}
		return resp.LowStock[i].ItemName < resp.LowStock[j].ItemName
	})
	return resp
}

func tieBreak(a, b dto.ItemPerformance) bool {
	if a.ItemName != b.ItemName {
		return a.ItemName < b.ItemName
	}
	return a.ItemID < b.ItemID
}

func head(rows []dto.ItemPerformance, n int) []dto.ItemPerformance {
	if n > 0 && len(rows) > n {
		return rows[:n]
	}
	return rows
}

const dashboardBuildTimeout = 15 * time.Second

// DashboardService loads sales and items and caches the aggregate in Redis.
type DashboardService interface {
	Get(ctx context.Context, filter dto.DashboardFilter) (*dto.DashboardResponse, error)
}

type dashboardService struct {
	sales    repository.SaleRepository
	items    repository.ItemRepository
	rdb      *redis.Client
	ttl      time.Duration
	topN     int
	lowStock int
	now      func() time.Time
	builds   singleflight.Group
}

// NewDashboardService builds the service. rdb may be nil, which disables
// caching.
func NewDashboardService(
	sales repository.SaleRepository,
	items repository.ItemRepository,
	rdb *redis.Client,
	ttl time.Duration,
	topN, lowStockThreshold int,
) DashboardService {
	return &dashboardService{
		sales:    sales,
		items:    items,
		rdb:      rdb,
		ttl:      ttl,
		topN:     topN,
		lowStock: lowStockThreshold,
		now:      time.Now,
	}
}

func (s *dashboardService) Get(ctx context.Context, filter dto.DashboardFilter) (*dto.DashboardResponse, error) {
	w, err := ParseWindow(filter.From, filter.To, s.now())
	if err != nil {
		return nil, err
	}
	topN := s.topN
	if filter.Limit > 0 {
		topN = filter.Limit
	}

	key := fmt.Sprintf("dashboard:%d:%d:%d", w.From.Unix(), w.To.Unix(), topN)
	if cached, ok := s.cached(ctx, key); ok {
		return cached, nil
	}

	// Concurrent misses for the same window share one build. It must outlive
	// the caller that started it, so it only keeps that caller's values.
	ch := s.builds.DoChan(key, func() (interface{}, error) {
		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dashboardBuildTimeout)
		defer cancel()
		resp, err := s.build(bctx, w, topN)
		if err != nil {
			return nil, err
		}
		s.store(bctx, key, resp)
		return resp, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*dto.DashboardResponse), nil
	}
}

func (s *dashboardService) build(ctx context.Context, w Window, topN int) (*dto.DashboardResponse, error) {
	var (
		sales []model.Sale
		items []model.Item
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if sales, err = s.sales.ListBetween(gctx, w.From, w.To); err != nil {
			return storageErr("list sales", err, "")
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if items, err = s.items.List(gctx, ""); err != nil {
			return storageErr("list items", err, "")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return BuildDashboard(sales, items, w, topN, s.lowStock), nil
}

func (s *dashboardService) cached(ctx context.Context, key string) (*dto.DashboardResponse, bool) {
	if s.rdb == nil || s.ttl <= 0 {
		return nil, false
	}
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("key", key).Msg("dashboard cache read failed")
		}
		return nil, false
	}
	var resp dto.DashboardResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, false
	}
	return &resp, true
}

func (s *dashboardService) store(ctx context.Context, key string, resp *dto.DashboardResponse) {
	if s.rdb == nil || s.ttl <= 0 {
		return
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, key, raw, s.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("dashboard cache write failed")
	}
}
