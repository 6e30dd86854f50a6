package reporting

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/jhoicas/stockflow/internal/application/dto"
	"github.com/jhoicas/stockflow/internal/application/ports"
	"github.com/jhoicas/stockflow/internal/domain"
	"github.com/jhoicas/stockflow/internal/domain/entity"
	"github.com/jhoicas/stockflow/internal/domain/repository"
	"github.com/jhoicas/stockflow/pkg/logger"
	"github.com/jhoicas/stockflow/pkg/validator"
)

const (
	defaultTopSellers = 10
	maxTopSellers     = 100
	maxReportDays     = 366
	weeklyDays        = 7
)

var hundred = decimal.NewFromInt(100)

// ReportUseCase reportes de ventas sobre pedidos completados. Los rangos son
// inclusivos por día calendario en la zona del servicio.
type ReportUseCase struct {
	analyticsRepo repository.AnalyticsRepository
	directory     ports.Directory
	cache         ports.Cache
	ttl           time.Duration
	loc           *time.Location
	log           *logger.Logger
}

// NewReportUseCase construye el caso de uso. ttl es la vigencia del ranking en caché.
func NewReportUseCase(
	analyticsRepo repository.AnalyticsRepository,
	directory ports.Directory,
	cache ports.Cache,
	ttl time.Duration,
	loc *time.Location,
	log *logger.Logger,
) *ReportUseCase {
	if cache == nil {
		cache = ports.NoopCache{}
	}
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = logger.Nop()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ReportUseCase{
		analyticsRepo: analyticsRepo,
		directory:     directory,
		cache:         cache,
		ttl:           ttl,
		loc:           loc,
		log:           log.Component("reports"),
	}
}

// period rango [start, end) con end = día siguiente al último día incluido.
type period struct {
	start time.Time
	end   time.Time
	days  int
}

func (p period) toDTO() dto.ReportPeriod {
	return dto.ReportPeriod{
		StartDate: dto.FormatDate(p.start),
		EndDate:   dto.FormatDate(p.end.AddDate(0, 0, -1)),
		Days:      p.days,
	}
}

func newPeriod(start time.Time, days int) period {
	return period{start: start, end: start.AddDate(0, 0, days), days: days}
}

// parseRange valida start_date <= end_date y el largo máximo del rango.
func (uc *ReportUseCase) parseRange(q dto.DateRangeQuery) (period, error) {
	if err := validator.Struct(q); err != nil {
		return period{}, err
	}
	start, err := dto.ParseDate("start_date", q.StartDate, uc.loc)
	if err != nil {
		return period{}, err
	}
	end, err := dto.ParseDate("end_date", q.EndDate, uc.loc)
	if err != nil {
		return period{}, err
	}
	if end.Before(start) {
		return period{}, domain.NewValidationError(domain.FieldError{Field: "end_date", Tag: "gtefield", Param: "start_date"})
	}
	days := calendarDays(start, end)
	if days > maxReportDays {
		return period{}, domain.NewValidationError(domain.FieldError{Field: "end_date", Tag: "max_range", Param: fmt.Sprint(maxReportDays)})
	}
	return newPeriod(start, days), nil
}

// calendarDays días incluidos entre dos medianoches; no depende de cambios de horario.
func calendarDays(start, end time.Time) int {
	n := 1
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		n++
	}
	return n
}

// Summarize totales del período.
func (uc *ReportUseCase) Summarize(ctx context.Context, q dto.DateRangeQuery) (*dto.SalesSummary, error) {
	p, err := uc.parseRange(q)
	if err != nil {
		return nil, err
	}
	return uc.summarize(ctx, p)
}

// ProductSales ventas por producto con nombre resuelto en el servicio de inventario.
func (uc *ReportUseCase) ProductSales(ctx context.Context, caller entity.Caller, q dto.DateRangeQuery) ([]dto.ProductSalesRow, error) {
	p, err := uc.parseRange(q)
	if err != nil {
		return nil, err
	}
	return uc.productSales(ctx, caller, p)
}

// DailyBreakdown una fila por día del período, con ceros en los días sin ventas.
func (uc *ReportUseCase) DailyBreakdown(ctx context.Context, q dto.DateRangeQuery) ([]dto.DailySalesRow, error) {
	p, err := uc.parseRange(q)
	if err != nil {
		return nil, err
	}
	return uc.dailyBreakdown(ctx, p)
}

// SalesReport reporte diario (date) o semanal (start_date, 7 días). Exige exactamente uno.
func (uc *ReportUseCase) SalesReport(ctx context.Context, caller entity.Caller, q dto.SalesReportQuery) (*dto.SalesReportResponse, error) {
	if err := validator.Struct(q); err != nil {
		return nil, err
	}
	var (
		p    period
		mode string
	)
	switch {
	case q.Date != "" && q.StartDate != "":
		return nil, domain.NewValidationError(domain.FieldError{Field: "date", Tag: "excluded_with", Param: "start_date"})
	case q.Date != "":
		d, err := dto.ParseDate("date", q.Date, uc.loc)
		if err != nil {
			return nil, err
		}
		p, mode = newPeriod(d, 1), dto.ReportModeDaily
	case q.StartDate != "":
		d, err := dto.ParseDate("start_date", q.StartDate, uc.loc)
		if err != nil {
			return nil, err
		}
		p, mode = newPeriod(d, weeklyDays), dto.ReportModeWeekly
	default:
		return nil, domain.NewValidationError(domain.FieldError{Field: "date", Tag: "required_without", Param: "start_date"})
	}

	resp := &dto.SalesReportResponse{Mode: mode, Period: p.toDTO()}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := uc.summarize(gctx, p)
		if err != nil {
			return err
		}
		resp.Summary = *s
		return nil
	})
	g.Go(func() error {
		rows, err := uc.dailyBreakdown(gctx, p)
		resp.Daily = rows
		return err
	})
	g.Go(func() error {
		rows, err := uc.productSales(gctx, caller, p)
		resp.Products = rows
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return resp, nil
}

// TopSellers ranking histórico por cantidad vendida. Los porcentajes se calculan sobre
// el total de todo lo vendido, no sobre la página. La página se guarda en caché.
func (uc *ReportUseCase) TopSellers(ctx context.Context, caller entity.Caller, q dto.TopSellersQuery) (*dto.TopSellersResponse, error) {
	if err := validator.Struct(q); err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultTopSellers
	}
	if limit > maxTopSellers {
		limit = maxTopSellers
	}
	key := fmt.Sprintf("top-sellers:l%d:o%d", limit, q.Offset)
	return ports.RememberJSON(ctx, uc.cache, key, uc.ttl, []string{ports.TagTopSellers, ports.TagReports},
		func(ctx context.Context) (*dto.TopSellersResponse, error) {
			return uc.topSellers(ctx, caller, limit, q.Offset)
		})
}

func (uc *ReportUseCase) topSellers(ctx context.Context, caller entity.Caller, limit, offset int) (*dto.TopSellersResponse, error) {
	var (
		rows   []repository.ProductSalesResult
		totals repository.SoldTotals
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rows, err = uc.analyticsRepo.GetTopSellers(gctx, limit, offset)
		return err
	})
	g.Go(func() error {
		var err error
		totals, err = uc.analyticsRepo.GetSoldTotals(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	refs := uc.products(ctx, caller, rows)
	items := make([]dto.TopSellerRow, 0, len(rows))
	for i, r := range rows {
		row := dto.TopSellerRow{
			Rank:               offset + i + 1,
			ProductID:          r.ProductID,
			ProductName:        entity.UnknownProductName,
			TotalQuantitySold:  r.TotalQuantity,
			TotalSalesAmount:   r.TotalSales.Round(2),
			OrderCount:         r.OrderCount,
			QuantityPercentage: percentage(decimal.NewFromInt(r.TotalQuantity), decimal.NewFromInt(totals.TotalQuantity)),
			SalesPercentage:    percentage(r.TotalSales, totals.TotalSales),
		}
		if ref, ok := refs[r.ProductID]; ok {
			row.ProductName = ref.Name
			row.SKU = ref.SKU
		}
		items = append(items, row)
	}
	return &dto.TopSellersResponse{
		Items: items,
		Page:  dto.PageResponse{Limit: limit, Offset: offset, Total: totals.Products},
	}, nil
}

func (uc *ReportUseCase) summarize(ctx context.Context, p period) (*dto.SalesSummary, error) {
	t, err := uc.analyticsRepo.GetSalesTotals(ctx, p.start, p.end)
	if err != nil {
		return nil, err
	}
	return &dto.SalesSummary{
		TotalSales:           t.TotalSales.Round(2),
		TotalOrders:          t.TotalOrders,
		TotalItemsSold:       t.TotalItemsSold,
		UniqueCustomers:      t.UniqueCustomers,
		AverageOrderValue:    average(t.TotalSales, t.TotalOrders),
		AverageItemsPerOrder: average(decimal.NewFromInt(t.TotalItemsSold), t.TotalOrders),
	}, nil
}

func (uc *ReportUseCase) productSales(ctx context.Context, caller entity.Caller, p period) ([]dto.ProductSalesRow, error) {
	rows, err := uc.analyticsRepo.GetProductSales(ctx, p.start, p.end)
	if err != nil {
		return nil, err
	}
	refs := uc.products(ctx, caller, rows)
	out := make([]dto.ProductSalesRow, 0, len(rows))
	for _, r := range rows {
		name := entity.UnknownProductName
		if ref, ok := refs[r.ProductID]; ok {
			name = ref.Name
		}
		out = append(out, dto.ProductSalesRow{
			ProductID:               r.ProductID,
			ProductName:             name,
			TotalQuantity:           r.TotalQuantity,
			TotalSales:              r.TotalSales.Round(2),
			OrderCount:              r.OrderCount,
			AverageQuantityPerOrder: average(decimal.NewFromInt(r.TotalQuantity), r.OrderCount),
		})
	}
	return out, nil
}

func (uc *ReportUseCase) dailyBreakdown(ctx context.Context, p period) ([]dto.DailySalesRow, error) {
	rows, err := uc.analyticsRepo.GetDailySales(ctx, p.start, p.end, uc.loc)
	if err != nil {
		return nil, err
	}
	byDay := make(map[string]repository.DailySalesResult, len(rows))
	for _, r := range rows {
		byDay[dto.FormatDate(r.Date.In(uc.loc))] = r
	}
	out := make([]dto.DailySalesRow, 0, p.days)
	for i := 0; i < p.days; i++ {
		day := p.start.AddDate(0, 0, i)
		key := dto.FormatDate(day)
		r := byDay[key]
		out = append(out, dto.DailySalesRow{
			Date:              key,
			DayName:           day.Weekday().String(),
			Sales:             r.Sales.Round(2),
			Orders:            r.Orders,
			ItemsSold:         r.ItemsSold,
			AverageOrderValue: average(r.Sales, r.Orders),
		})
	}
	return out, nil
}

// products resuelve nombres con una sola consulta en lote; sin directorio no hay nombres.
func (uc *ReportUseCase) products(ctx context.Context, caller entity.Caller, rows []repository.ProductSalesResult) map[string]entity.ProductRef {
	if uc.directory == nil || len(rows) == 0 {
		return map[string]entity.ProductRef{}
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ProductID)
	}
	return uc.directory.Products(ctx, caller, ids)
}

// average total/n redondeado a 2 decimales; 0 si n == 0.
func average(total decimal.Decimal, n int) decimal.Decimal {
	if n == 0 {
		return decimal.Zero
	}
	return total.Div(decimal.NewFromInt(int64(n))).Round(2)
}

// percentage part*100/total redondeado a 2 decimales; 0 si total == 0.
func percentage(part, total decimal.Decimal) decimal.Decimal {
	if total.IsZero() {
		return decimal.Zero
	}
	return part.Mul(hundred).Div(total).Round(2)
}
