package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/stockflow/internal/domain/entity"
)

// InventoryRouter registra las rutas del servicio de inventario.
func InventoryRouter(app *fiber.App, h *InventoryHandler, jwtSecret, internalKey string) {
	// Rutas protegidas (requieren Bearer Token)
	inv := app.Group("/api/inventory", AuthMiddleware(jwtSecret))
	inv.Post("/movements", h.RecordMovement)
	inv.Get("/movements", h.ListMovements)
	inv.Get("/movements/:id", h.GetMovement)

	// Corregir el libro queda para bodega y administración
	warehouse := RequireRole(entity.RoleAdmin, entity.RoleBodeguero)
	inv.Put("/movements/:id", warehouse, h.ReviseMovement)
	inv.Delete("/movements/:id", warehouse, h.DeleteMovement)

	inv.Get("/stocks", h.ListStock)
	inv.Get("/stocks/:product_id", h.GetStock)
	inv.Post("/stocks/:product_id/recompute", RequireRole(entity.RoleAdmin), h.RecomputeStock)
	inv.Get("/products", h.ListProducts)

	// Servicio a servicio
	internal := app.Group("/internal", InternalOnly(internalKey))
	internal.Post("/movements", h.RecordMovement)
	internal.Get("/products/batch", h.ProductsBatch)
}

// OrdersRouter registra las rutas del servicio de pedidos y reportes.
func OrdersRouter(app *fiber.App, orders *OrderHandler, reports *ReportHandler, jwtSecret string) {
	api := app.Group("/api", AuthMiddleware(jwtSecret))

	og := api.Group("/orders")
	og.Post("/", orders.Create)
	og.Get("/", orders.List)
	og.Get("/:id", orders.GetByID)
	og.Patch("/:id/status", orders.UpdateStatus)
	og.Post("/:id/stock-sync/retry", RequireRole(entity.RoleAdmin), orders.RetryStockSync)

	rg := api.Group("/reports")
	rg.Get("/sales", reports.Sales)
	rg.Get("/summary", reports.Summary)
	rg.Get("/daily", reports.Daily)
	rg.Get("/products", reports.Products)
	rg.Get("/top-sellers", reports.TopSellers)
}

// GatewayRouter registra la tabla de rutas del gateway. El JWT se verifica antes de
// servir cualquier respuesta, incluida la que viene de caché.
func GatewayRouter(app *fiber.App, h *GatewayHandler, routes []ProxyRoute, jwtSecret string) {
	auth := AuthMiddleware(jwtSecret)
	for _, r := range routes {
		app.Add(r.Method, r.Path, auth, h.Handler(r))
	}
}

// Health GET /health.
func Health(service string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": service})
	}
}
