package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// SalesTotals agregados crudos de pedidos completados en un período.
type SalesTotals struct {
	TotalSales      decimal.Decimal
	TotalOrders     int
	TotalItemsSold  int64
	UniqueCustomers int
}

// ProductSalesResult agregado crudo por producto.
type ProductSalesResult struct {
	ProductID     string
	TotalQuantity int64
	TotalSales    decimal.Decimal
	OrderCount    int
}

// DailySalesResult agregado crudo por día calendario (solo días con ventas).
type DailySalesResult struct {
	Date      time.Time // medianoche del día en la zona del reporte
	Sales     decimal.Decimal
	Orders    int
	ItemsSold int64
}

// SoldTotals totales globales de todo lo vendido (base de porcentajes del ranking).
type SoldTotals struct {
	TotalQuantity int64
	TotalSales    decimal.Decimal
	Products      int
}

// AnalyticsRepository define las consultas de lectura para reportes de ventas.
// Solo considera pedidos en estado completed. Los rangos son semiabiertos [start, end):
// el caso de uso convierte el rango inclusivo por día calendario antes de llamar.
type AnalyticsRepository interface {
	GetSalesTotals(ctx context.Context, startDate, endDate time.Time) (SalesTotals, error)
	GetProductSales(ctx context.Context, startDate, endDate time.Time) ([]ProductSalesResult, error)
	// GetDailySales agrupa por día calendario en loc.
	GetDailySales(ctx context.Context, startDate, endDate time.Time, loc *time.Location) ([]DailySalesResult, error)
	// GetTopSellers ordena por cantidad vendida descendente sobre todo el historial.
	GetTopSellers(ctx context.Context, limit, offset int) ([]ProductSalesResult, error)
	GetSoldTotals(ctx context.Context) (SoldTotals, error)
}
