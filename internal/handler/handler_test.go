package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"estoque/internal/dto"
	"estoque/internal/service"
	"estoque/internal/worker"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func init() { gin.SetMode(gin.TestMode) }

// ── Stubs ─────────────────────────────────────────────────────────────────────

type stubItems struct {
	err       error
	created   *dto.CreateItemRequest
	update    *dto.UpdateItemResponse
	deletedID uuid.UUID
	filter    *dto.ItemFilter
	movesOf   uuid.UUID
	moveLimit int
	lowStock  bool
}

func (s *stubItems) Create(_ context.Context, req dto.CreateItemRequest) (*dto.ItemResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.created = &req
	return &dto.ItemResponse{ID: uuid.NewString(), Name: req.Name, Quantity: req.Quantity}, nil
}

func (s *stubItems) List(_ context.Context, f dto.ItemFilter) ([]dto.ItemResponse, error) {
	s.filter = &f
	return []dto.ItemResponse{}, s.err
}

func (s *stubItems) Get(_ context.Context, id uuid.UUID) (*dto.ItemResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &dto.ItemResponse{ID: id.String()}, nil
}

func (s *stubItems) Update(context.Context, uuid.UUID, dto.UpdateItemRequest) (*dto.UpdateItemResponse, error) {
	return s.update, s.err
}

func (s *stubItems) Delete(_ context.Context, id uuid.UUID) error {
	s.deletedID = id
	return s.err
}

func (s *stubItems) Movements(_ context.Context, id uuid.UUID, limit int) ([]dto.StockMovementResponse, error) {
	s.movesOf, s.moveLimit = id, limit
	return []dto.StockMovementResponse{{ItemID: id.String(), Kind: "sale", Delta: -1}}, s.err
}

func (s *stubItems) LowStock(context.Context) ([]dto.ItemResponse, error) {
	s.lowStock = true
	return []dto.ItemResponse{{Name: "Porca", Quantity: 2}}, s.err
}

type stubDashboard struct {
	err    error
	filter *dto.DashboardFilter
}

func (s *stubDashboard) Get(_ context.Context, f dto.DashboardFilter) (*dto.DashboardResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.filter = &f
	return &dto.DashboardResponse{From: f.From, To: f.To, TopByVolume: []dto.ItemPerformance{}, TopByProfit: []dto.ItemPerformance{}, LowStock: []dto.LowStockItem{}}, nil
}

type stubSales struct {
	err error
	req *dto.CreateSaleRequest
}

func (s *stubSales) Finalize(_ context.Context, req dto.CreateSaleRequest) (*dto.SaleResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.req = &req
	return &dto.SaleResponse{ID: uuid.NewString(), PaymentMethod: req.PaymentMethod}, nil
}

func (s *stubSales) FinalizeCart(context.Context, service.Cart) (*service.FinalizedSale, error) {
	return nil, errors.New("not used")
}

func (s *stubSales) List(_ context.Context, f dto.SaleFilter) (*dto.SaleListResponse, error) {
	return &dto.SaleListResponse{Data: []dto.SaleResponse{}, Page: f.Page, Limit: f.Limit}, s.err
}

func (s *stubSales) Get(_ context.Context, id uuid.UUID) (*dto.SaleResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &dto.SaleResponse{ID: id.String()}, nil
}

func (s *stubSales) Summary(_ context.Context, from, to string) (*dto.SalesSummaryResponse, error) {
	return &dto.SalesSummaryResponse{From: from, To: to}, s.err
}

func (s *stubSales) Receipt(_ context.Context, _ uuid.UUID, w io.Writer) error {
	if s.err != nil {
		return s.err
	}
	_, err := w.Write([]byte("%PDF-1.3"))
	return err
}

func (s *stubSales) Export(_ context.Context, _, _ string, w io.Writer) error {
	if s.err != nil {
		return s.err
	}
	_, err := w.Write([]byte("PK"))
	return err
}

// ── Helpers ──────────────────────────────────────────────────────────────────

func newEngine(items service.ItemService, sales service.SaleService) *gin.Engine {
	r := gin.New()
	ih := NewItemsHandler(items)
	sh := NewSalesHandler(sales)
	r.POST("/items", ih.Create)
	r.GET("/items", ih.List)
	r.DELETE("/items", ih.Delete)
	r.GET("/items/low-stock", ih.LowStock)
	r.GET("/items/:id", ih.Get)
	r.PUT("/items/:id", ih.Update)
	r.DELETE("/items/:id", ih.Delete)
	r.GET("/items/:id/movements", ih.Movements)
	r.POST("/sales", sh.Finalize)
	r.GET("/sales", sh.List)
	r.GET("/sales/summary", sh.Summary)
	r.GET("/sales/export", sh.Export)
	r.GET("/sales/:id", sh.Get)
	r.GET("/sales/:id/receipt", sh.Receipt)
	return r
}

func newDashboardEngine(svc service.DashboardService) *gin.Engine {
	r := gin.New()
	r.GET("/dashboard", NewDashboardHandler(svc).Get)
	return r
}

func perform(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			_ = json.NewEncoder(&buf).Encode(body)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func envelope(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

// ── Items ────────────────────────────────────────────────────────────────────

func TestItems_CreateReturns201(t *testing.T) {
	items := &stubItems{}
	r := newEngine(items, &stubSales{})

	w := perform(r, http.MethodPost, "/items", map[string]any{
		"name": "Widget", "supplier": "ACME", "quantity": 10, "costPrice": "5.00", "salePrice": "8.00",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, items.created)
	assert.True(t, items.created.SalePrice.Equal(decimal.RequireFromString("8")))
}

func TestItems_CreateValidationFields(t *testing.T) {
	r := newEngine(&stubItems{}, &stubSales{})

	w := perform(r, http.MethodPost, "/items", map[string]any{"name": "Widget", "quantity": 0, "costPrice": "-1"})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	body := envelope(t, w)
	assert.Equal(t, "validation", body["errorKind"])
	fields := body["fields"].(map[string]any)
	assert.Contains(t, fields, "supplier")
	assert.Contains(t, fields, "quantity")
	assert.Contains(t, fields, "costPrice")
}

func TestItems_MalformedJSON(t *testing.T) {
	r := newEngine(&stubItems{}, &stubSales{})
	w := perform(r, http.MethodPost, "/items", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation", envelope(t, w)["errorKind"])
}

func TestItems_ErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
		kind string
	}{
		{"not found", &service.NotFoundError{Resource: "item", ID: "x"}, http.StatusNotFound, "not_found"},
		{"duplicate", &service.DuplicateItemError{Name: "Widget"}, http.StatusConflict, "duplicate_item"},
		{"persistence", &service.PersistenceError{Op: "get item", Err: gorm.ErrInvalidDB}, http.StatusInternalServerError, "persistence"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newEngine(&stubItems{err: tc.err}, &stubSales{})
			w := perform(r, http.MethodGet, "/items/"+uuid.NewString(), nil)
			require.Equal(t, tc.code, w.Code)
			body := envelope(t, w)
			assert.Equal(t, tc.kind, body["errorKind"])
			assert.NotContains(t, body["error"], "invalid db", "storage details must not leak")
		})
	}
}

func TestItems_InvalidID(t *testing.T) {
	r := newEngine(&stubItems{}, &stubSales{})
	w := perform(r, http.MethodGet, "/items/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestItems_UpdateToZeroReportsDeletion(t *testing.T) {
	items := &stubItems{update: &dto.UpdateItemResponse{Deleted: true, Message: "item removed"}}
	r := newEngine(items, &stubSales{})

	w := perform(r, http.MethodPut, "/items/"+uuid.NewString(), map[string]any{"quantity": 0})
	require.Equal(t, http.StatusOK, w.Code)
	body := envelope(t, w)
	assert.Equal(t, true, body["deleted"])
}

func TestItems_UpdateReturnsItem(t *testing.T) {
	id := uuid.NewString()
	items := &stubItems{update: &dto.UpdateItemResponse{Item: &dto.ItemResponse{ID: id, Quantity: 7}}}
	r := newEngine(items, &stubSales{})

	w := perform(r, http.MethodPut, "/items/"+id, map[string]any{"quantity": 7})
	require.Equal(t, http.StatusOK, w.Code)
	body := envelope(t, w)
	assert.Equal(t, id, body["id"])
	assert.EqualValues(t, 7, body["quantity"])
}

func TestItems_DeleteByPathOrQuery(t *testing.T) {
	items := &stubItems{}
	r := newEngine(items, &stubSales{})
	id := uuid.New()

	w := perform(r, http.MethodDelete, "/items/"+id.String(), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, id, items.deletedID)

	other := uuid.New()
	w = perform(r, http.MethodDelete, "/items?id="+other.String(), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, other, items.deletedID)

	w = perform(r, http.MethodDelete, "/items", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestItems_ListBindsSearch(t *testing.T) {
	items := &stubItems{}
	r := newEngine(items, &stubSales{})

	w := perform(r, http.MethodGet, "/items?search=parafuso", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, items.filter)
	assert.Equal(t, "parafuso", items.filter.Search)

	w = perform(r, http.MethodGet, "/items", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, items.filter.Search)
}

func TestItems_ListRejectsLongSearch(t *testing.T) {
	items := &stubItems{}
	r := newEngine(items, &stubSales{})

	long := bytes.Repeat([]byte("a"), 121)
	w := perform(r, http.MethodGet, "/items?search="+string(long), nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, envelope(t, w)["fields"], "search")
	assert.Nil(t, items.filter)
}

func TestItems_LowStockIsNotAnItemID(t *testing.T) {
	items := &stubItems{}
	r := newEngine(items, &stubSales{})

	w := perform(r, http.MethodGet, "/items/low-stock", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, items.lowStock)
	var got []dto.ItemResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "Porca", got[0].Name)
}

func TestItems_MovementsLimit(t *testing.T) {
	id := uuid.New()
	cases := []struct {
		query string
		code  int
		limit int
	}{
		{"", http.StatusOK, 100},
		{"?limit=25", http.StatusOK, 25},
		{"?limit=500", http.StatusOK, 500},
		{"?limit=501", http.StatusUnprocessableEntity, 0},
		{"?limit=-1", http.StatusUnprocessableEntity, 0},
		{"?limit=abc", http.StatusBadRequest, 0},
	}
	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			items := &stubItems{}
			r := newEngine(items, &stubSales{})

			w := perform(r, http.MethodGet, "/items/"+id.String()+"/movements"+tc.query, nil)
			require.Equal(t, tc.code, w.Code, w.Body.String())
			if tc.code != http.StatusOK {
				assert.Equal(t, "validation", envelope(t, w)["errorKind"])
				assert.Equal(t, uuid.Nil, items.movesOf)
				return
			}
			assert.Equal(t, id, items.movesOf)
			assert.Equal(t, tc.limit, items.moveLimit)
		})
	}
}

func TestItems_MovementsInvalidID(t *testing.T) {
	r := newEngine(&stubItems{}, &stubSales{})
	w := perform(r, http.MethodGet, "/items/nope/movements", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// ── Sales ────────────────────────────────────────────────────────────────────

func TestSales_FinalizeReturns201(t *testing.T) {
	sales := &stubSales{}
	r := newEngine(&stubItems{}, sales)

	w := perform(r, http.MethodPost, "/sales", map[string]any{
		"paymentMethod": "pix",
		"items":         []map[string]any{{"itemId": uuid.NewString(), "quantity": 2}},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, sales.req)
	assert.Len(t, sales.req.Lines(), 1)
}

func TestSales_LineValidationUsesClientPaths(t *testing.T) {
	r := newEngine(&stubItems{}, &stubSales{})

	w := perform(r, http.MethodPost, "/sales", map[string]any{
		"paymentMethod": "pix",
		"items":         []map[string]any{{"itemId": uuid.NewString(), "quantity": 1}, {"itemId": "nope", "quantity": 0}},
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	fields := envelope(t, w)["fields"].(map[string]any)
	assert.Contains(t, fields, "items[1].itemId")
	assert.Contains(t, fields, "items[1].quantity")
}

func TestSales_InsufficientStockEnvelope(t *testing.T) {
	itemID := uuid.New()
	sales := &stubSales{err: &service.InsufficientStockError{ItemID: itemID, ItemName: "Widget", Requested: 11, Available: 10}}
	r := newEngine(&stubItems{}, sales)

	w := perform(r, http.MethodPost, "/sales", map[string]any{"paymentMethod": "cash", "itemId": itemID.String(), "quantity": 11})
	require.Equal(t, http.StatusConflict, w.Code)
	body := envelope(t, w)
	assert.Equal(t, "insufficient_stock", body["errorKind"])
	assert.Equal(t, itemID.String(), body["itemId"])
	assert.EqualValues(t, 11, body["requested"])
	assert.EqualValues(t, 10, body["available"])
}

func TestSales_ServiceValidationError(t *testing.T) {
	sales := &stubSales{err: &service.ValidationError{Msg: "price changed", Fields: map[string]string{"items[0].unitPrice": "price changed"}}}
	r := newEngine(&stubItems{}, sales)

	w := perform(r, http.MethodPost, "/sales", map[string]any{"paymentMethod": "cash", "itemId": uuid.NewString(), "quantity": 1})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	body := envelope(t, w)
	assert.Equal(t, "price changed", body["error"])
	assert.Contains(t, body["fields"], "items[0].unitPrice")
}

func TestSales_ListDefaultsAndBounds(t *testing.T) {
	r := newEngine(&stubItems{}, &stubSales{})

	w := perform(r, http.MethodGet, "/sales", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := envelope(t, w)
	assert.EqualValues(t, 1, body["page"])
	assert.EqualValues(t, 50, body["limit"])
	assert.Equal(t, []any{}, body["data"])

	w = perform(r, http.MethodGet, "/sales?limit=500", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestSales_SummaryPassesWindow(t *testing.T) {
	r := newEngine(&stubItems{}, &stubSales{})
	w := perform(r, http.MethodGet, "/sales/summary?from=2026-01-01&to=2026-01-31", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := envelope(t, w)
	assert.Equal(t, "2026-01-01", body["from"])
	assert.Equal(t, "2026-01-31", body["to"])
}

func TestSales_ReceiptIsPDF(t *testing.T) {
	r := newEngine(&stubItems{}, &stubSales{})
	w := perform(r, http.MethodGet, "/sales/"+uuid.NewString()+"/receipt", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "inline")
}

func TestSales_ExportIsXLSX(t *testing.T) {
	r := newEngine(&stubItems{}, &stubSales{})
	w := perform(r, http.MethodGet, "/sales/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "vendas_")
}

func TestSales_GetUnknown(t *testing.T) {
	r := newEngine(&stubItems{}, &stubSales{err: &service.NotFoundError{Resource: "sale", ID: "x"}})
	w := perform(r, http.MethodGet, "/sales/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// ── Dashboard ────────────────────────────────────────────────────────────────

func TestDashboard_BindsWindowAndLimit(t *testing.T) {
	dash := &stubDashboard{}
	r := newDashboardEngine(dash)

	w := perform(r, http.MethodGet, "/dashboard?from=2026-10-01&to=2026-10-19&limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, dash.filter)
	assert.Equal(t, dto.DashboardFilter{From: "2026-10-01", To: "2026-10-19", Limit: 10}, *dash.filter)
	body := envelope(t, w)
	assert.Equal(t, "2026-10-01", body["from"])

	w = perform(r, http.MethodGet, "/dashboard", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, dash.filter.Limit, "service falls back to the configured top N")
}

func TestDashboard_LimitBounds(t *testing.T) {
	cases := map[string]int{
		"limit=51":  http.StatusUnprocessableEntity,
		"limit=-2":  http.StatusUnprocessableEntity,
		"limit=ten": http.StatusBadRequest,
	}
	for query, code := range cases {
		t.Run(query, func(t *testing.T) {
			dash := &stubDashboard{}
			w := perform(newDashboardEngine(dash), http.MethodGet, "/dashboard?"+query, nil)
			require.Equal(t, code, w.Code)
			assert.Equal(t, "validation", envelope(t, w)["errorKind"])
			assert.Nil(t, dash.filter)
		})
	}
}

func TestDashboard_ServiceErrors(t *testing.T) {
	dash := &stubDashboard{err: &service.ValidationError{Msg: "from after to", Fields: map[string]string{"from": "after to"}}}
	w := perform(newDashboardEngine(dash), http.MethodGet, "/dashboard?from=2026-10-19&to=2026-10-01", nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "validation", envelope(t, w)["errorKind"])
}

// ── Health ───────────────────────────────────────────────────────────────────

func TestHealth_WithoutDatabase(t *testing.T) {
	r := gin.New()
	r.GET("/health", Health(nil, nil))
	w := perform(r, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := envelope(t, w)
	assert.Equal(t, "error", body["db"])
	assert.Equal(t, "disabled", body["redis"])
	assert.NotContains(t, body, "deadReceiptJobs")
}

func TestHealth_ReportsDeadReceiptJobs(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	job := worker.Job{Type: worker.JobReceipt, Payload: json.RawMessage(`{}`), Attempts: 3}
	worker.SendToDLQ(context.Background(), rdb, worker.QueueReceipt, job, "smtp down")
	worker.SendToDLQ(context.Background(), rdb, worker.QueueReceipt, job, "smtp down")

	r := gin.New()
	r.GET("/health", Health(nil, rdb))
	w := perform(r, http.MethodGet, "/health", nil)
	body := envelope(t, w)
	assert.Equal(t, "connected", body["redis"])
	assert.EqualValues(t, 2, body["deadReceiptJobs"])

	mr.Close()
	w = perform(r, http.MethodGet, "/health", nil)
	body = envelope(t, w)
	assert.Equal(t, "error", body["redis"])
	assert.NotContains(t, body, "deadReceiptJobs")
}
