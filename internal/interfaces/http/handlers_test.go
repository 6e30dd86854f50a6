package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/stockflow/internal/application/dto"
	"github.com/jhoicas/stockflow/internal/domain"
	"github.com/jhoicas/stockflow/internal/domain/entity"
	"github.com/jhoicas/stockflow/internal/infrastructure/interservice"
	apphttp "github.com/jhoicas/stockflow/internal/interfaces/http"
)

// ──────────────────────────────────────────────────────────────────────────────
// Fakes de servicios
// ──────────────────────────────────────────────────────────────────────────────

// fakeOrders devuelve un error según el id pedido.
type fakeOrders struct {
	created   dto.CreateOrderRequest
	lastToken string
}

func (f *fakeOrders) CreateOrder(_ context.Context, caller entity.Caller, in dto.CreateOrderRequest) (*dto.OrderResponse, error) {
	f.created = in
	f.lastToken = caller.BearerToken
	if len(in.Items) == 0 {
		return nil, domain.NewValidationError(domain.FieldError{Field: "items", Tag: "min", Param: "1"})
	}
	return &dto.OrderResponse{
		ID: "o-1", OrderCode: "ORD-20240315-ABCDEF12", CustomerID: in.CustomerID, StaffID: in.StaffID,
		TotalAmount: decimal.RequireFromString("35.00"), Status: entity.OrderStatusPending,
		StockSync: []dto.StockSyncResult{{OrderItemID: "i-1", ProductID: "A", Quantity: 3, Status: "pending", Attempts: 1}},
	}, nil
}

func (f *fakeOrders) UpdateStatus(_ context.Context, id string, in dto.UpdateOrderStatusRequest) (*dto.OrderResponse, error) {
	if id == "cancelado" {
		return nil, fmt.Errorf("%w: cancelled -> %s", domain.ErrInvalidTransition, in.Status)
	}
	return &dto.OrderResponse{ID: id, Status: in.Status}, nil
}

func (f *fakeOrders) GetOrder(_ context.Context, _ entity.Caller, id string) (*dto.OrderResponse, error) {
	switch id {
	case "no-existe":
		return nil, domain.ErrNotFound
	case "remoto":
		return nil, &interservice.RemoteError{Service: interservice.ServiceUsers, Status: http.StatusTeapot, Body: []byte(`{"code":"TEAPOT"}`)}
	case "caido":
		return nil, &interservice.RemoteError{Service: interservice.ServiceUsers, Status: http.StatusBadGateway, Err: errors.New("connection refused")}
	case "lento":
		return nil, context.DeadlineExceeded
	case "roto":
		return nil, errors.New("pgx: conexión cerrada")
	}
	return &dto.OrderResponse{ID: id, Status: entity.OrderStatusCompleted}, nil
}

func (f *fakeOrders) ListOrders(_ context.Context, _ entity.Caller, q dto.OrderListQuery) (*dto.ListResponse[dto.OrderResponse], error) {
	return &dto.ListResponse[dto.OrderResponse]{
		Items: []dto.OrderResponse{{ID: "o-1", Status: q.Status}},
		Page:  dto.PageResponse{Limit: q.Limit, Offset: q.Offset, Total: 1},
	}, nil
}

func (f *fakeOrders) RetryFailed(_ context.Context, orderID string) (*dto.RetryStockSyncResponse, error) {
	return &dto.RetryStockSyncResponse{OrderID: orderID, Reset: 2}, nil
}

type fakeReports struct{}

func (fakeReports) Summarize(context.Context, dto.DateRangeQuery) (*dto.SalesSummary, error) {
	return &dto.SalesSummary{TotalOrders: 3}, nil
}

func (fakeReports) ProductSales(context.Context, entity.Caller, dto.DateRangeQuery) ([]dto.ProductSalesRow, error) {
	return nil, nil
}

func (fakeReports) DailyBreakdown(context.Context, dto.DateRangeQuery) ([]dto.DailySalesRow, error) {
	return nil, nil
}

func (fakeReports) SalesReport(_ context.Context, _ entity.Caller, q dto.SalesReportQuery) (*dto.SalesReportResponse, error) {
	if q.Date == "" && q.StartDate == "" {
		return nil, domain.NewValidationError(domain.FieldError{Field: "date", Tag: "required_without", Param: "start_date"})
	}
	return &dto.SalesReportResponse{}, nil
}

func (fakeReports) TopSellers(_ context.Context, _ entity.Caller, q dto.TopSellersQuery) (*dto.TopSellersResponse, error) {
	return &dto.TopSellersResponse{}, nil
}

// fakeLedger recuerda las claves de idempotencia para responder 201 o 200.
type fakeLedger struct {
	keys      map[string]bool
	createdBy string
	batchIDs  []string
}

func (f *fakeLedger) RecordMovement(_ context.Context, createdBy string, in dto.RecordMovementRequest) (*dto.MovementResponse, bool, error) {
	f.createdBy = createdBy
	if in.Quantity <= 0 {
		return nil, false, domain.NewValidationError(domain.FieldError{Field: "quantity", Tag: "gt", Param: "0"})
	}
	out := &dto.MovementResponse{ID: "m-1", ProductID: in.ProductID, Direction: in.Direction, Quantity: in.Quantity, IdempotencyKey: in.IdempotencyKey, CreatedBy: createdBy}
	if in.IdempotencyKey != "" && f.keys[in.IdempotencyKey] {
		return out, false, nil
	}
	if f.keys == nil {
		f.keys = map[string]bool{}
	}
	f.keys[in.IdempotencyKey] = true
	return out, true, nil
}

func (f *fakeLedger) ReviseMovement(_ context.Context, id string, in dto.RecordMovementRequest) (*dto.MovementResponse, error) {
	return &dto.MovementResponse{ID: id, ProductID: in.ProductID}, nil
}

func (f *fakeLedger) DeleteMovement(_ context.Context, id string) error {
	if id == "no-existe" {
		return domain.ErrNotFound
	}
	return nil
}

func (f *fakeLedger) RecomputeStock(_ context.Context, productID string) (*dto.StockResponse, error) {
	return &dto.StockResponse{ProductID: productID, Quantity: 7}, nil
}

func (f *fakeLedger) GetMovement(_ context.Context, id string) (*dto.MovementResponse, error) {
	return &dto.MovementResponse{ID: id}, nil
}

func (f *fakeLedger) ListMovements(_ context.Context, q dto.MovementListQuery) (*dto.ListResponse[dto.MovementResponse], error) {
	return &dto.ListResponse[dto.MovementResponse]{Page: dto.PageResponse{Limit: q.Limit}}, nil
}

func (f *fakeLedger) GetStock(_ context.Context, productID string) (*dto.StockResponse, error) {
	return &dto.StockResponse{ProductID: productID, Quantity: 10, MinQuantity: 2}, nil
}

func (f *fakeLedger) ListStock(context.Context, dto.StockListQuery) (*dto.ListResponse[dto.StockResponse], error) {
	return &dto.ListResponse[dto.StockResponse]{}, nil
}

func (f *fakeLedger) ProductRefs(_ context.Context, ids []string) (map[string]entity.ProductRef, error) {
	f.batchIDs = ids
	out := map[string]entity.ProductRef{}
	for _, id := range ids {
		if id != "desconocido" {
			out[id] = entity.ProductRef{ID: id, Name: "Producto " + id}
		}
	}
	return out, nil
}

func (f *fakeLedger) ListProducts(context.Context, dto.PageRequest) (*dto.ListResponse[dto.ProductResponse], error) {
	return &dto.ListResponse[dto.ProductResponse]{}, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────────────────────────────────

func newOrdersApp(t *testing.T) (*fiber.App, *fakeOrders) {
	t.Helper()
	orders := &fakeOrders{}
	app := fiber.New()
	apphttp.OrdersRouter(app, apphttp.NewOrderHandler(orders, nil), apphttp.NewReportHandler(fakeReports{}, nil), testJWTSecret)
	return app, orders
}

func newInventoryApp(t *testing.T) (*fiber.App, *fakeLedger) {
	t.Helper()
	ledger := &fakeLedger{}
	app := fiber.New()
	apphttp.InventoryRouter(app, apphttp.NewInventoryHandler(ledger, nil), testJWTSecret, testInternalKey)
	return app, ledger
}

func send(t *testing.T, app *fiber.App, method, path, body string, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, int((5 * time.Second).Milliseconds()))
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	return resp, raw
}

func decodeError(t *testing.T, raw []byte) dto.ErrorResponse {
	t.Helper()
	var out dto.ErrorResponse
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return out
}

// ──────────────────────────────────────────────────────────────────────────────
// Pedidos
// ──────────────────────────────────────────────────────────────────────────────

func TestOrderHandler_CrearPedido_201ConStockSync(t *testing.T) {
	app, orders := newOrdersApp(t)
	auth := tokenForRole(t, "vendedor")

	body := `{"customer_id":"c-1","staff_id":"s-1","items":[{"product_id":"A","quantity":3,"unit_price":"5.00"}]}`
	resp, raw := send(t, app, http.MethodPost, "/api/orders", body, map[string]string{"Authorization": auth})

	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	var out dto.OrderResponse
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "ORD-20240315-ABCDEF12", out.OrderCode)
	assert.True(t, out.TotalAmount.Equal(decimal.RequireFromString("35")))
	require.Len(t, out.StockSync, 1)
	assert.Equal(t, "pending", out.StockSync[0].Status)

	assert.Equal(t, "c-1", orders.created.CustomerID)
	assert.True(t, orders.created.Items[0].UnitPrice.Equal(decimal.RequireFromString("5")))
	assert.Equal(t, auth, "Bearer "+orders.lastToken, "el bearer se reenvía tal cual")
}

func TestOrderHandler_ErroresDeValidacionYCuerpo(t *testing.T) {
	app, _ := newOrdersApp(t)
	auth := map[string]string{"Authorization": tokenForRole(t, "vendedor")}

	resp, raw := send(t, app, http.MethodPost, "/api/orders", `{"customer_id":"c-1","staff_id":"s-1","items":[]}`, auth)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	e := decodeError(t, raw)
	assert.Equal(t, "VALIDATION", e.Code)
	require.Len(t, e.Fields, 1)
	assert.Equal(t, "items", e.Fields[0].Field)

	resp, raw = send(t, app, http.MethodPost, "/api/orders", `{"customer_id":`, auth)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_BODY", decodeError(t, raw).Code)
}

func TestOrderHandler_MapeoDeErrores(t *testing.T) {
	app, _ := newOrdersApp(t)
	auth := map[string]string{"Authorization": tokenForRole(t, "admin")}

	cases := []struct {
		id       string
		status   int
		code     string
		rawEqual string
	}{
		{id: "o-1", status: http.StatusOK},
		{id: "no-existe", status: http.StatusNotFound, code: "NOT_FOUND"},
		{id: "remoto", status: http.StatusTeapot, rawEqual: `{"code":"TEAPOT"}`},
		{id: "caido", status: http.StatusBadGateway, code: "UPSTREAM_UNAVAILABLE"},
		{id: "lento", status: http.StatusGatewayTimeout, code: "TIMEOUT"},
		{id: "roto", status: http.StatusInternalServerError, code: "INTERNAL"},
	}
	for _, tc := range cases {
		t.Run(tc.id, func(t *testing.T) {
			resp, raw := send(t, app, http.MethodGet, "/api/orders/"+tc.id, "", auth)
			assert.Equal(t, tc.status, resp.StatusCode, string(raw))
			if tc.code != "" {
				assert.Equal(t, tc.code, decodeError(t, raw).Code)
			}
			if tc.rawEqual != "" {
				assert.JSONEq(t, tc.rawEqual, string(raw), "el error remoto se reenvía sin cambios")
			}
		})
	}
}

func TestOrderHandler_TransicionInvalida_409(t *testing.T) {
	app, _ := newOrdersApp(t)
	auth := map[string]string{"Authorization": tokenForRole(t, "admin")}

	resp, raw := send(t, app, http.MethodPatch, "/api/orders/cancelado/status", `{"status":"completed"}`, auth)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "INVALID_TRANSITION", decodeError(t, raw).Code)

	resp, _ = send(t, app, http.MethodPatch, "/api/orders/o-1/status", `{"status":"completed"}`, auth)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestOrderHandler_ListarYReintentar(t *testing.T) {
	app, _ := newOrdersApp(t)
	auth := map[string]string{"Authorization": tokenForRole(t, "admin")}

	resp, raw := send(t, app, http.MethodGet, "/api/orders?status=pending&limit=5&offset=10", "", auth)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list dto.ListResponse[dto.OrderResponse]
	require.NoError(t, json.Unmarshal(raw, &list))
	assert.Equal(t, "pending", list.Items[0].Status)
	assert.Equal(t, 5, list.Page.Limit)
	assert.Equal(t, 10, list.Page.Offset)

	resp, raw = send(t, app, http.MethodPost, "/api/orders/o-9/stock-sync/retry", "", auth)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.JSONEq(t, `{"order_id":"o-9","reset":2}`, string(raw))
}

func TestOrdersRouter_SinTokenNoLlegaAlHandler(t *testing.T) {
	app, orders := newOrdersApp(t)

	resp, _ := send(t, app, http.MethodPost, "/api/orders", `{"customer_id":"c-1"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, orders.created.CustomerID)
}

func TestReportHandler_VentasSinFecha_400(t *testing.T) {
	app, _ := newOrdersApp(t)
	auth := map[string]string{"Authorization": tokenForRole(t, "admin")}

	resp, raw := send(t, app, http.MethodGet, "/api/reports/sales", "", auth)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	e := decodeError(t, raw)
	require.Len(t, e.Fields, 1)
	assert.Equal(t, "required_without", e.Fields[0].Tag)

	resp, _ = send(t, app, http.MethodGet, "/api/reports/sales?date=2024-03-15", "", auth)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// ──────────────────────────────────────────────────────────────────────────────
// Inventario
// ──────────────────────────────────────────────────────────────────────────────

func TestInventoryHandler_MovimientoInternoIdempotente(t *testing.T) {
	app, ledger := newInventoryApp(t)
	internal := map[string]string{
		"X-Internal-Service": "orders",
		"X-Internal-Key":     testInternalKey,
	}
	body := `{"product_id":"A","direction":"out","quantity":3,"linked_order_id":"o-1","idempotency_key":"order-item:i-1"}`

	resp, raw := send(t, app, http.MethodPost, "/internal/movements", body, internal)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	assert.Equal(t, "orders", ledger.createdBy, "sin usuario, el creador es el servicio llamador")

	resp, raw = send(t, app, http.MethodPost, "/internal/movements", body, internal)
	require.Equal(t, http.StatusOK, resp.StatusCode, "un reintento devuelve el movimiento existente")
	var out dto.MovementResponse
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "order-item:i-1", out.IdempotencyKey)
}

func TestInventoryHandler_RutaInternaRechazaBearer(t *testing.T) {
	app, ledger := newInventoryApp(t)

	resp, _ := send(t, app, http.MethodPost, "/internal/movements", `{"product_id":"A","direction":"out","quantity":1}`,
		map[string]string{"Authorization": tokenForRole(t, "admin")})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, ledger.createdBy)
}

func TestInventoryHandler_MovimientoDeUsuario(t *testing.T) {
	app, ledger := newInventoryApp(t)
	auth := map[string]string{"Authorization": tokenForRole(t, "bodeguero")}

	resp, _ := send(t, app, http.MethodPost, "/api/inventory/movements", `{"product_id":"A","direction":"in","quantity":5}`, auth)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, testUserID, ledger.createdBy)

	resp, raw := send(t, app, http.MethodPost, "/api/inventory/movements", `{"product_id":"A","direction":"in","quantity":0}`, auth)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION", decodeError(t, raw).Code)

	resp, _ = send(t, app, http.MethodDelete, "/api/inventory/movements/m-1", "", auth)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = send(t, app, http.MethodDelete, "/api/inventory/movements/no-existe", "", auth)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestInventoryHandler_ProductsBatch(t *testing.T) {
	app, ledger := newInventoryApp(t)
	internal := map[string]string{
		"X-Internal-Service": "orders",
		"X-Internal-Key":     testInternalKey,
	}

	resp, raw := send(t, app, http.MethodGet, "/internal/products/batch?ids=A,%20B,,desconocido", "", internal)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"A", "B", "desconocido"}, ledger.batchIDs)

	var out dto.BatchResponse[entity.ProductRef]
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Len(t, out.Data, 2, "los ids desconocidos se omiten")
	assert.Equal(t, "Producto B", out.Data["B"].Name)
}

func TestInventoryRouter_CorreccionesPorRol(t *testing.T) {
	app, _ := newInventoryApp(t)
	vendedor := map[string]string{"Authorization": tokenForRole(t, entity.RoleVendedor)}
	bodeguero := map[string]string{"Authorization": tokenForRole(t, entity.RoleBodeguero)}
	admin := map[string]string{"Authorization": tokenForRole(t, entity.RoleAdmin)}
	revision := `{"product_id":"A","direction":"in","quantity":2}`

	resp, raw := send(t, app, http.MethodDelete, "/api/inventory/movements/m-1", "", vendedor)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "FORBIDDEN", decodeError(t, raw).Code)
	resp, _ = send(t, app, http.MethodPut, "/api/inventory/movements/m-1", revision, vendedor)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp, _ = send(t, app, http.MethodPut, "/api/inventory/movements/m-1", revision, bodeguero)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = send(t, app, http.MethodPost, "/api/inventory/stocks/A/recompute", "", bodeguero)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "recalcular es solo de administración")
	resp, _ = send(t, app, http.MethodPost, "/api/inventory/stocks/A/recompute", "", admin)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Las lecturas siguen abiertas a cualquier rol autenticado.
	resp, _ = send(t, app, http.MethodGet, "/api/inventory/stocks/A", "", vendedor)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestOrdersRouter_ReintentoSoloAdmin(t *testing.T) {
	app, _ := newOrdersApp(t)

	resp, _ := send(t, app, http.MethodPost, "/api/orders/o-9/stock-sync/retry", "",
		map[string]string{"Authorization": tokenForRole(t, entity.RoleVendedor)})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

// El directorio de pedidos consulta el lote de productos contra el router real de
// inventario, aunque la petición original venga de un usuario.
func TestDirectory_ResuelveContraRouterDeInventario(t *testing.T) {
	app, ledger := newInventoryApp(t)
	srv := httptest.NewServer(adaptor.FiberApp(app))
	t.Cleanup(srv.Close)

	peers := interservice.New(interservice.Config{
		BaseURLs:    map[string]string{interservice.ServiceInventory: srv.URL},
		InternalKey: testInternalKey,
		Timeout:     2 * time.Second,
		Transport:   http.DefaultTransport,
	})
	dir := interservice.NewDirectory(peers, interservice.ServiceOrders, nil)
	user := entity.UserCaller(strings.TrimPrefix(tokenForRole(t, entity.RoleVendedor), "Bearer "))

	got := dir.Products(context.Background(), user, []string{"B", "A", "desconocido"})
	require.Len(t, got, 2, "los nombres se resuelven, no caen a la etiqueta por defecto")
	assert.Equal(t, "Producto A", got["A"].Name)
	assert.Equal(t, "Producto B", got["B"].Name)
	assert.Equal(t, []string{"A", "B", "desconocido"}, ledger.batchIDs)
}

func TestHealth(t *testing.T) {
	app := fiber.New()
	app.Get("/health", apphttp.Health("inventory"))

	resp, raw := send(t, app, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok","service":"inventory"}`, string(raw))
}
