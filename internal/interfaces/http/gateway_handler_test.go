package http_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/stockflow/internal/infrastructure/cache"
	"github.com/jhoicas/stockflow/internal/infrastructure/interservice"
	apphttp "github.com/jhoicas/stockflow/internal/interfaces/http"
)

// upstreamRecorder servicio par falso que cuenta las llamadas por método y ruta.
type upstreamRecorder struct {
	mu      sync.Mutex
	calls   map[string]int
	auth    []string
	lastRaw string
}

func (u *upstreamRecorder) count(key string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls[key]
}

func (u *upstreamRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	u.calls[r.Method+" "+r.URL.Path]++
	u.auth = append(u.auth, r.Header.Get("Authorization"))
	u.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/orders":
		_, _ = io.WriteString(w, `{"items":[{"id":"o-1","status":"`+r.URL.Query().Get("status")+`"}],"page":{"limit":20,"offset":0,"total":1}}`)
	case r.Method == http.MethodGet && r.URL.Path == "/api/orders/o-1":
		_, _ = io.WriteString(w, `{"id":"o-1"}`)
	case r.Method == http.MethodGet && r.URL.Path == "/api/orders/no-existe":
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"code":"NOT_FOUND","message":"recurso no encontrado"}`)
	case r.Method == http.MethodPost && r.URL.Path == "/api/orders":
		raw, _ := io.ReadAll(r.Body)
		u.mu.Lock()
		u.lastRaw = string(raw)
		u.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":"o-2"}`)
	case r.Method == http.MethodPatch && r.URL.Path == "/api/orders/o-1/status":
		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, `{"code":"INVALID_TRANSITION","message":"transición de estado no permitida"}`)
	case r.Method == http.MethodGet && r.URL.Path == "/api/inventory/stocks":
		_, _ = io.WriteString(w, `{"items":[],"page":{"limit":20,"offset":0,"total":0}}`)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newGatewayApp(t *testing.T, baseURLs map[string]string) (*fiber.App, *upstreamRecorder) {
	t.Helper()
	rec := &upstreamRecorder{calls: map[string]int{}}
	srv := httptest.NewServer(rec)
	t.Cleanup(srv.Close)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	if baseURLs == nil {
		baseURLs = map[string]string{
			interservice.ServiceOrders:    srv.URL,
			interservice.ServiceInventory: srv.URL,
		}
	}
	client := interservice.New(interservice.Config{
		BaseURLs:  baseURLs,
		Timeout:   time.Second,
		Transport: http.DefaultTransport,
	})
	h := apphttp.NewGatewayHandler(client, cache.NewRedisCache(rdb, "gw-test", nil), nil)

	app := fiber.New()
	apphttp.GatewayRouter(app, h, apphttp.DefaultRoutes(time.Minute, time.Hour), testJWTSecret)
	return app, rec
}

func TestGateway_LecturaSeSirveDesdeCache(t *testing.T) {
	app, rec := newGatewayApp(t, nil)
	auth := map[string]string{"Authorization": tokenForRole(t, "admin")}

	for i := 0; i < 3; i++ {
		resp, raw := send(t, app, http.MethodGet, "/api/orders?status=pending", "", auth)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(raw), `"status":"pending"`)
	}
	assert.Equal(t, 1, rec.count("GET /api/orders"), "solo el primer GET llega al servicio")
	assert.Equal(t, auth["Authorization"], rec.auth[0], "el bearer se reenvía sin cambios")

	// Otra query es otra clave.
	_, raw := send(t, app, http.MethodGet, "/api/orders?status=completed", "", auth)
	assert.Contains(t, string(raw), `"status":"completed"`)
	assert.Equal(t, 2, rec.count("GET /api/orders"))

	// El orden de los parámetros no cambia la clave.
	send(t, app, http.MethodGet, "/api/orders?limit=5&status=pending", "", auth)
	send(t, app, http.MethodGet, "/api/orders?status=pending&limit=5", "", auth)
	assert.Equal(t, 3, rec.count("GET /api/orders"))
}

func TestGateway_EscrituraInvalidaTagsAfectados(t *testing.T) {
	app, rec := newGatewayApp(t, nil)
	auth := map[string]string{"Authorization": tokenForRole(t, "vendedor")}

	send(t, app, http.MethodGet, "/api/orders", "", auth)
	send(t, app, http.MethodGet, "/api/stocks", "", auth)
	require.Equal(t, 1, rec.count("GET /api/orders"))
	require.Equal(t, 1, rec.count("GET /api/inventory/stocks"))

	body := `{"customer_id":"c-1","staff_id":"s-1","items":[{"product_id":"A","quantity":1,"unit_price":"2.00"}]}`
	resp, raw := send(t, app, http.MethodPost, "/api/orders", body, auth)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.JSONEq(t, `{"id":"o-2"}`, string(raw))
	assert.JSONEq(t, body, rec.lastRaw, "el cuerpo llega íntegro al servicio")

	// Crear un pedido perturba pedidos y stock.
	send(t, app, http.MethodGet, "/api/orders", "", auth)
	send(t, app, http.MethodGet, "/api/stocks", "", auth)
	assert.Equal(t, 2, rec.count("GET /api/orders"))
	assert.Equal(t, 2, rec.count("GET /api/inventory/stocks"))
}

func TestGateway_ErroresRemotosSeReenvianYNoSeCachean(t *testing.T) {
	app, rec := newGatewayApp(t, nil)
	auth := map[string]string{"Authorization": tokenForRole(t, "admin")}

	for i := 0; i < 2; i++ {
		resp, raw := send(t, app, http.MethodGet, "/api/orders/no-existe", "", auth)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.JSONEq(t, `{"code":"NOT_FOUND","message":"recurso no encontrado"}`, string(raw))
	}
	assert.Equal(t, 2, rec.count("GET /api/orders/no-existe"))

	// Una escritura rechazada no invalida nada.
	send(t, app, http.MethodGet, "/api/orders/o-1", "", auth)
	resp, raw := send(t, app, http.MethodPatch, "/api/orders/o-1/status", `{"status":"pending"}`, auth)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, string(raw), "INVALID_TRANSITION")
	send(t, app, http.MethodGet, "/api/orders/o-1", "", auth)
	assert.Equal(t, 1, rec.count("GET /api/orders/o-1"))
}

func TestGateway_SinTokenNoConsultaCacheNiServicio(t *testing.T) {
	app, rec := newGatewayApp(t, nil)

	send(t, app, http.MethodGet, "/api/orders", "", map[string]string{"Authorization": tokenForRole(t, "admin")})
	resp, _ := send(t, app, http.MethodGet, "/api/orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 1, rec.count("GET /api/orders"))
}

func TestGateway_CuerpoInvalido_400(t *testing.T) {
	app, rec := newGatewayApp(t, nil)
	auth := map[string]string{"Authorization": tokenForRole(t, "admin")}

	resp, raw := send(t, app, http.MethodPost, "/api/orders", `{"customer_id":`, auth)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_BODY", decodeError(t, raw).Code)
	assert.Zero(t, rec.count("POST /api/orders"))
}

func TestGateway_ServicioSinConfigurar_502(t *testing.T) {
	app, _ := newGatewayApp(t, map[string]string{})
	auth := map[string]string{"Authorization": tokenForRole(t, "admin")}

	resp, raw := send(t, app, http.MethodGet, "/api/stocks", "", auth)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "UPSTREAM_UNAVAILABLE", decodeError(t, raw).Code)
}

func TestGateway_ServicioCaido_502(t *testing.T) {
	// Puerto cerrado: fallo de transporte.
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	app, _ := newGatewayApp(t, map[string]string{interservice.ServiceOrders: url})
	auth := map[string]string{"Authorization": tokenForRole(t, "admin")}

	resp, raw := send(t, app, http.MethodGet, "/api/orders", "", auth)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "UPSTREAM_UNAVAILABLE", decodeError(t, raw).Code)
}
