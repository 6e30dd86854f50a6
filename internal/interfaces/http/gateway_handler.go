package http

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/stockflow/internal/application/ports"
	"github.com/jhoicas/stockflow/internal/infrastructure/cache"
	"github.com/jhoicas/stockflow/internal/infrastructure/interservice"
	"github.com/jhoicas/stockflow/pkg/logger"
)

// upstreamCaller lo implementa *interservice.Client.
type upstreamCaller interface {
	Do(ctx context.Context, r interservice.Request) (*interservice.Response, error)
}

// ProxyRoute una entrada de la tabla de rutas del gateway.
// Las lecturas (GET) se guardan en caché con Resource, TTL y Tags; las escrituras
// invalidan Invalidates cuando el servicio responde 2xx.
type ProxyRoute struct {
	Method      string
	Path        string // patrón Fiber público, p. ej. /api/orders/:id
	Service     string
	Upstream    string // ruta en el servicio, con los mismos :params
	Resource    string
	TTL         time.Duration
	Tags        []string
	Invalidates []string
}

// GatewayHandler proxy con caché por tags delante de los servicios de dominio.
type GatewayHandler struct {
	client upstreamCaller
	cache  ports.Cache
	log    *logger.Logger
}

// NewGatewayHandler construye el handler. cache nil = sin caché.
func NewGatewayHandler(client upstreamCaller, c ports.Cache, log *logger.Logger) *GatewayHandler {
	if c == nil {
		c = ports.NoopCache{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &GatewayHandler{client: client, cache: c, log: log.Component("gateway")}
}

// DefaultRoutes tabla de rutas públicas. volatile aplica a datos que cambian con cada
// escritura; reference al catálogo.
func DefaultRoutes(volatile, reference time.Duration) []ProxyRoute {
	inv, ord := interservice.ServiceInventory, interservice.ServiceOrders
	reports := []string{ports.TagReports}
	return []ProxyRoute{
		// Lecturas
		{Method: fiber.MethodGet, Path: "/api/stocks", Service: inv, Upstream: "/api/inventory/stocks", Resource: "stocks", TTL: volatile, Tags: []string{ports.TagStocks}},
		{Method: fiber.MethodGet, Path: "/api/stocks/:product_id", Service: inv, Upstream: "/api/inventory/stocks/:product_id", Resource: "stock", TTL: volatile, Tags: []string{ports.TagStocks}},
		{Method: fiber.MethodGet, Path: "/api/transactions", Service: inv, Upstream: "/api/inventory/movements", Resource: "transactions", TTL: volatile, Tags: []string{ports.TagTransactions}},
		{Method: fiber.MethodGet, Path: "/api/transactions/:id", Service: inv, Upstream: "/api/inventory/movements/:id", Resource: "transaction", TTL: volatile, Tags: []string{ports.TagTransactions}},
		{Method: fiber.MethodGet, Path: "/api/products", Service: inv, Upstream: "/api/inventory/products", Resource: "products", TTL: reference, Tags: []string{ports.TagProducts}},
		{Method: fiber.MethodGet, Path: "/api/orders", Service: ord, Upstream: "/api/orders", Resource: "orders", TTL: volatile, Tags: []string{ports.TagOrders}},
		{Method: fiber.MethodGet, Path: "/api/orders/:id", Service: ord, Upstream: "/api/orders/:id", Resource: "order", TTL: volatile, Tags: []string{ports.TagOrders}},
		{Method: fiber.MethodGet, Path: "/api/reports/sales", Service: ord, Upstream: "/api/reports/sales", Resource: "reports-sales", TTL: volatile, Tags: reports},
		{Method: fiber.MethodGet, Path: "/api/reports/summary", Service: ord, Upstream: "/api/reports/summary", Resource: "reports-summary", TTL: volatile, Tags: reports},
		{Method: fiber.MethodGet, Path: "/api/reports/daily", Service: ord, Upstream: "/api/reports/daily", Resource: "reports-daily", TTL: volatile, Tags: reports},
		{Method: fiber.MethodGet, Path: "/api/reports/products", Service: ord, Upstream: "/api/reports/products", Resource: "reports-products", TTL: volatile, Tags: reports},
		{Method: fiber.MethodGet, Path: "/api/reports/top-sellers", Service: ord, Upstream: "/api/reports/top-sellers", Resource: "top-sellers", TTL: volatile, Tags: []string{ports.TagTopSellers, ports.TagReports}},

		// Escrituras
		{Method: fiber.MethodPost, Path: "/api/transactions", Service: inv, Upstream: "/api/inventory/movements", Invalidates: []string{ports.TagTransactions, ports.TagStocks}},
		{Method: fiber.MethodPut, Path: "/api/transactions/:id", Service: inv, Upstream: "/api/inventory/movements/:id", Invalidates: []string{ports.TagTransactions, ports.TagStocks}},
		{Method: fiber.MethodDelete, Path: "/api/transactions/:id", Service: inv, Upstream: "/api/inventory/movements/:id", Invalidates: []string{ports.TagTransactions, ports.TagStocks}},
		{Method: fiber.MethodPost, Path: "/api/stocks/:product_id/recompute", Service: inv, Upstream: "/api/inventory/stocks/:product_id/recompute", Invalidates: []string{ports.TagStocks}},
		{Method: fiber.MethodPost, Path: "/api/orders", Service: ord, Upstream: "/api/orders", Invalidates: []string{ports.TagOrders, ports.TagTransactions, ports.TagStocks, ports.TagReports, ports.TagTopSellers}},
		{Method: fiber.MethodPatch, Path: "/api/orders/:id/status", Service: ord, Upstream: "/api/orders/:id/status", Invalidates: []string{ports.TagOrders, ports.TagReports, ports.TagTopSellers}},
		{Method: fiber.MethodPost, Path: "/api/orders/:id/stock-sync/retry", Service: ord, Upstream: "/api/orders/:id/stock-sync/retry", Invalidates: []string{ports.TagOrders}},
	}
}

// Handler devuelve el handler Fiber de la ruta.
func (h *GatewayHandler) Handler(route ProxyRoute) fiber.Handler {
	if route.Method == fiber.MethodGet {
		return func(c *fiber.Ctx) error { return h.read(c, route) }
	}
	return func(c *fiber.Ctx) error { return h.write(c, route) }
}

func (h *GatewayHandler) read(c *fiber.Ctx, route ProxyRoute) error {
	query, err := url.ParseQuery(string(c.Request().URI().QueryString()))
	if err != nil {
		return badQuery(c)
	}
	upstream, params := expandPath(c, route.Upstream)
	keyParams := url.Values{}
	for k, v := range query {
		keyParams[k] = v
	}
	for k, v := range params {
		keyParams[":"+k] = []string{v}
	}
	key := cache.Key(route.Resource, keyParams)
	caller := CallerFrom(c)

	body, err := h.cache.Remember(c.UserContext(), key, route.TTL, route.Tags, func(ctx context.Context) ([]byte, error) {
		resp, err := h.client.Do(ctx, interservice.Request{
			Service: route.Service,
			Method:  fiber.MethodGet,
			Path:    upstream,
			Query:   query,
			Caller:  caller,
		})
		if err != nil {
			return nil, err
		}
		return resp.Body, nil
	})
	if err != nil {
		return writeError(c, h.log, err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(body)
}

func (h *GatewayHandler) write(c *fiber.Ctx, route ProxyRoute) error {
	upstream, _ := expandPath(c, route.Upstream)
	req := interservice.Request{
		Service: route.Service,
		Method:  route.Method,
		Path:    upstream,
		Caller:  CallerFrom(c),
	}
	if raw := c.Body(); len(raw) > 0 {
		if !json.Valid(raw) {
			return badBody(c)
		}
		req.Body = interservice.JSONBody{Value: json.RawMessage(append([]byte(nil), raw...))}
	}
	resp, err := h.client.Do(c.UserContext(), req)
	if err != nil {
		return writeError(c, h.log, err)
	}
	if len(route.Invalidates) > 0 {
		if err := h.cache.InvalidateByTag(c.UserContext(), route.Invalidates...); err != nil {
			h.log.Warn().Err(err).Strs("tags", route.Invalidates).Msg("no se pudo invalidar caché")
		}
	}
	if len(resp.Body) == 0 {
		return c.SendStatus(resp.Status)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Status(resp.Status).Send(resp.Body)
}

// expandPath reemplaza los :params del patrón con los valores de la petición.
func expandPath(c *fiber.Ctx, pattern string) (string, map[string]string) {
	params := map[string]string{}
	segments := strings.Split(pattern, "/")
	for i, seg := range segments {
		if strings.HasPrefix(seg, ":") {
			name := seg[1:]
			v := c.Params(name)
			params[name] = v
			segments[i] = url.PathEscape(v)
		}
	}
	return strings.Join(segments, "/"), params
}
