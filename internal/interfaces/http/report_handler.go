package http

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/stockflow/internal/application/dto"
	"github.com/jhoicas/stockflow/internal/domain/entity"
	"github.com/jhoicas/stockflow/pkg/logger"
)

// reportService lo implementa *reporting.ReportUseCase.
type reportService interface {
	Summarize(ctx context.Context, q dto.DateRangeQuery) (*dto.SalesSummary, error)
	ProductSales(ctx context.Context, caller entity.Caller, q dto.DateRangeQuery) ([]dto.ProductSalesRow, error)
	DailyBreakdown(ctx context.Context, q dto.DateRangeQuery) ([]dto.DailySalesRow, error)
	SalesReport(ctx context.Context, caller entity.Caller, q dto.SalesReportQuery) (*dto.SalesReportResponse, error)
	TopSellers(ctx context.Context, caller entity.Caller, q dto.TopSellersQuery) (*dto.TopSellersResponse, error)
}

// ReportHandler reportes de ventas sobre pedidos completados.
type ReportHandler struct {
	uc  reportService
	log *logger.Logger
}

// NewReportHandler construye el handler.
func NewReportHandler(uc reportService, log *logger.Logger) *ReportHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &ReportHandler{uc: uc, log: log.Component("report_handler")}
}

// Sales godoc
// @Summary      Reporte de ventas diario o semanal
// @Description  Exactamente uno de date (1 día) o start_date (7 días desde start_date).
// @Tags         reports
// @Security     Bearer
// @Produce      json
// @Param        date        query  string  false  "YYYY-MM-DD (modo diario)"
// @Param        start_date  query  string  false  "YYYY-MM-DD (modo semanal)"
// @Success      200  {object}  dto.SalesReportResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Router       /api/reports/sales [get]
func (h *ReportHandler) Sales(c *fiber.Ctx) error {
	var q dto.SalesReportQuery
	if err := c.QueryParser(&q); err != nil {
		return badQuery(c)
	}
	out, err := h.uc.SalesReport(c.UserContext(), CallerFrom(c), q)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(out)
}

// Summary godoc
// @Summary      Resumen de ventas del período
// @Tags         reports
// @Security     Bearer
// @Produce      json
// @Param        start_date  query  string  true  "YYYY-MM-DD"
// @Param        end_date    query  string  true  "YYYY-MM-DD (inclusivo)"
// @Success      200  {object}  dto.SalesSummary
// @Failure      400  {object}  dto.ErrorResponse
// @Router       /api/reports/summary [get]
func (h *ReportHandler) Summary(c *fiber.Ctx) error {
	var q dto.DateRangeQuery
	if err := c.QueryParser(&q); err != nil {
		return badQuery(c)
	}
	out, err := h.uc.Summarize(c.UserContext(), q)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(out)
}

// Daily godoc
// @Summary      Ventas por día (una fila por día del período)
// @Tags         reports
// @Security     Bearer
// @Produce      json
// @Param        start_date  query  string  true  "YYYY-MM-DD"
// @Param        end_date    query  string  true  "YYYY-MM-DD (inclusivo)"
// @Success      200  {array}   dto.DailySalesRow
// @Router       /api/reports/daily [get]
func (h *ReportHandler) Daily(c *fiber.Ctx) error {
	var q dto.DateRangeQuery
	if err := c.QueryParser(&q); err != nil {
		return badQuery(c)
	}
	out, err := h.uc.DailyBreakdown(c.UserContext(), q)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(out)
}

// Products godoc
// @Summary      Ventas por producto
// @Tags         reports
// @Security     Bearer
// @Produce      json
// @Param        start_date  query  string  true  "YYYY-MM-DD"
// @Param        end_date    query  string  true  "YYYY-MM-DD (inclusivo)"
// @Success      200  {array}   dto.ProductSalesRow
// @Router       /api/reports/products [get]
func (h *ReportHandler) Products(c *fiber.Ctx) error {
	var q dto.DateRangeQuery
	if err := c.QueryParser(&q); err != nil {
		return badQuery(c)
	}
	out, err := h.uc.ProductSales(c.UserContext(), CallerFrom(c), q)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(out)
}

// TopSellers godoc
// @Summary      Productos más vendidos
// @Tags         reports
// @Security     Bearer
// @Produce      json
// @Param        limit   query  int  false  "Por defecto 10, máximo 100"
// @Param        offset  query  int  false  "Desplazamiento"
// @Success      200  {object}  dto.TopSellersResponse
// @Router       /api/reports/top-sellers [get]
func (h *ReportHandler) TopSellers(c *fiber.Ctx) error {
	var q dto.TopSellersQuery
	if err := c.QueryParser(&q); err != nil {
		return badQuery(c)
	}
	out, err := h.uc.TopSellers(c.UserContext(), CallerFrom(c), q)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(out)
}
