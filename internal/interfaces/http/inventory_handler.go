package http

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/stockflow/internal/application/dto"
	"github.com/jhoicas/stockflow/internal/domain/entity"
	"github.com/jhoicas/stockflow/pkg/logger"
)

// ledgerService lo implementa *inventory.LedgerUseCase.
type ledgerService interface {
	RecordMovement(ctx context.Context, createdBy string, in dto.RecordMovementRequest) (*dto.MovementResponse, bool, error)
	ReviseMovement(ctx context.Context, id string, in dto.RecordMovementRequest) (*dto.MovementResponse, error)
	DeleteMovement(ctx context.Context, id string) error
	RecomputeStock(ctx context.Context, productID string) (*dto.StockResponse, error)
	GetMovement(ctx context.Context, id string) (*dto.MovementResponse, error)
	ListMovements(ctx context.Context, q dto.MovementListQuery) (*dto.ListResponse[dto.MovementResponse], error)
	GetStock(ctx context.Context, productID string) (*dto.StockResponse, error)
	ListStock(ctx context.Context, q dto.StockListQuery) (*dto.ListResponse[dto.StockResponse], error)
	ProductRefs(ctx context.Context, ids []string) (map[string]entity.ProductRef, error)
	ListProducts(ctx context.Context, page dto.PageRequest) (*dto.ListResponse[dto.ProductResponse], error)
}

// InventoryHandler movimientos, stock y catálogo del servicio de inventario.
type InventoryHandler struct {
	uc  ledgerService
	log *logger.Logger
}

// NewInventoryHandler construye el handler.
func NewInventoryHandler(uc ledgerService, log *logger.Logger) *InventoryHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &InventoryHandler{uc: uc, log: log.Component("inventory_handler")}
}

// RecordMovement godoc
// @Summary      Registrar movimiento de inventario
// @Description  Con idempotency_key repetido devuelve 200 y el movimiento ya registrado.
// @Tags         inventory
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.RecordMovementRequest  true  "product_id, direction (in|out), quantity"
// @Success      201   {object}  dto.MovementResponse
// @Success      200   {object}  dto.MovementResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Router       /api/inventory/movements [post]
func (h *InventoryHandler) RecordMovement(c *fiber.Ctx) error {
	var in dto.RecordMovementRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	createdBy := GetUserID(c)
	if createdBy == "" {
		createdBy = GetInternalService(c)
	}
	out, created, err := h.uc.RecordMovement(c.UserContext(), createdBy, in)
	if err != nil {
		return writeError(c, h.log, err)
	}
	if !created {
		return c.Status(fiber.StatusOK).JSON(out)
	}
	return c.Status(fiber.StatusCreated).JSON(out)
}

// ListMovements godoc
// @Summary      Listar movimientos
// @Tags         inventory
// @Security     Bearer
// @Produce      json
// @Param        product_id  query  string  false  "Producto"
// @Param        order_id    query  string  false  "Pedido vinculado"
// @Param        direction   query  string  false  "in | out"
// @Param        from        query  string  false  "YYYY-MM-DD o RFC3339"
// @Param        to          query  string  false  "YYYY-MM-DD o RFC3339"
// @Param        limit       query  int     false  "Máximo 100"
// @Param        offset      query  int     false  "Desplazamiento"
// @Success      200  {object}  dto.ListResponse[dto.MovementResponse]
// @Failure      400  {object}  dto.ErrorResponse
// @Router       /api/inventory/movements [get]
func (h *InventoryHandler) ListMovements(c *fiber.Ctx) error {
	var q dto.MovementListQuery
	if err := c.QueryParser(&q); err != nil {
		return badQuery(c)
	}
	out, err := h.uc.ListMovements(c.UserContext(), q)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(out)
}

// GetMovement godoc
// @Summary      Obtener movimiento
// @Tags         inventory
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID del movimiento"
// @Success      200  {object}  dto.MovementResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/inventory/movements/{id} [get]
func (h *InventoryHandler) GetMovement(c *fiber.Ctx) error {
	out, err := h.uc.GetMovement(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(out)
}

// ReviseMovement godoc
// @Summary      Corregir movimiento
// @Description  Recalcula el stock del producto anterior y del nuevo si cambia.
// @Tags         inventory
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string                     true  "ID del movimiento"
// @Param        body  body  dto.RecordMovementRequest  true  "Movimiento corregido"
// @Success      200   {object}  dto.MovementResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Router       /api/inventory/movements/{id} [put]
func (h *InventoryHandler) ReviseMovement(c *fiber.Ctx) error {
	var in dto.RecordMovementRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	out, err := h.uc.ReviseMovement(c.UserContext(), c.Params("id"), in)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(out)
}

// DeleteMovement godoc
// @Summary      Eliminar movimiento
// @Tags         inventory
// @Security     Bearer
// @Param        id   path  string  true  "ID del movimiento"
// @Success      204
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/inventory/movements/{id} [delete]
func (h *InventoryHandler) DeleteMovement(c *fiber.Ctx) error {
	if err := h.uc.DeleteMovement(c.UserContext(), c.Params("id")); err != nil {
		return writeError(c, h.log, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ListStock godoc
// @Summary      Listar stock
// @Tags         inventory
// @Security     Bearer
// @Produce      json
// @Param        below_minimum  query  bool  false  "Solo productos bajo el mínimo"
// @Param        limit          query  int   false  "Máximo 100"
// @Param        offset         query  int   false  "Desplazamiento"
// @Success      200  {object}  dto.ListResponse[dto.StockResponse]
// @Router       /api/inventory/stocks [get]
func (h *InventoryHandler) ListStock(c *fiber.Ctx) error {
	var q dto.StockListQuery
	if err := c.QueryParser(&q); err != nil {
		return badQuery(c)
	}
	out, err := h.uc.ListStock(c.UserContext(), q)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(out)
}

// GetStock godoc
// @Summary      Stock de un producto
// @Tags         inventory
// @Security     Bearer
// @Produce      json
// @Param        product_id  path  string  true  "ID del producto"
// @Success      200  {object}  dto.StockResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/inventory/stocks/{product_id} [get]
func (h *InventoryHandler) GetStock(c *fiber.Ctx) error {
	out, err := h.uc.GetStock(c.UserContext(), c.Params("product_id"))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(out)
}

// RecomputeStock godoc
// @Summary      Recalcular stock desde el historial de movimientos
// @Tags         inventory
// @Security     Bearer
// @Produce      json
// @Param        product_id  path  string  true  "ID del producto"
// @Success      200  {object}  dto.StockResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/inventory/stocks/{product_id}/recompute [post]
func (h *InventoryHandler) RecomputeStock(c *fiber.Ctx) error {
	out, err := h.uc.RecomputeStock(c.UserContext(), c.Params("product_id"))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(out)
}

// ListProducts godoc
// @Summary      Catálogo de productos
// @Tags         products
// @Security     Bearer
// @Produce      json
// @Param        limit   query  int  false  "Máximo 100"
// @Param        offset  query  int  false  "Desplazamiento"
// @Success      200  {object}  dto.ListResponse[dto.ProductResponse]
// @Router       /api/inventory/products [get]
func (h *InventoryHandler) ListProducts(c *fiber.Ctx) error {
	var q dto.PageRequest
	if err := c.QueryParser(&q); err != nil {
		return badQuery(c)
	}
	out, err := h.uc.ListProducts(c.UserContext(), q)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(out)
}

// ProductsBatch GET /internal/products/batch?ids=a,b. Los ids desconocidos se omiten.
func (h *InventoryHandler) ProductsBatch(c *fiber.Ctx) error {
	refs, err := h.uc.ProductRefs(c.UserContext(), splitIDs(c.Query("ids")))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.BatchResponse[entity.ProductRef]{Data: refs})
}

func splitIDs(raw string) []string {
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
