package dto

import "github.com/shopspring/decimal"

// Modos del reporte de ventas.
const (
	ReportModeDaily  = "daily"
	ReportModeWeekly = "weekly"
)

// DateRangeQuery rango inclusivo por día calendario (YYYY-MM-DD).
type DateRangeQuery struct {
	StartDate string `query:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `query:"end_date" validate:"required,datetime=2006-01-02"`
}

// SalesReportQuery GET /api/reports/sales: exactamente uno de date (diario) o start_date (semanal).
type SalesReportQuery struct {
	Date      string `query:"date" validate:"omitempty,datetime=2006-01-02"`
	StartDate string `query:"start_date" validate:"omitempty,datetime=2006-01-02"`
}

// TopSellersQuery GET /api/reports/top-sellers. Limit 0 = 10.
type TopSellersQuery struct {
	Limit  int `query:"limit" validate:"min=0,max=100"`
	Offset int `query:"offset" validate:"min=0"`
}

// SalesSummary totales de un período.
type SalesSummary struct {
	TotalSales           decimal.Decimal `json:"total_sales"`
	TotalOrders          int             `json:"total_orders"`
	TotalItemsSold       int64           `json:"total_items_sold"`
	UniqueCustomers      int             `json:"unique_customers"`
	AverageOrderValue    decimal.Decimal `json:"average_order_value"`
	AverageItemsPerOrder decimal.Decimal `json:"average_items_per_order"`
}

// ProductSalesRow ventas de un producto en el período.
type ProductSalesRow struct {
	ProductID               string          `json:"product_id"`
	ProductName             string          `json:"product_name"`
	TotalQuantity           int64           `json:"total_quantity"`
	TotalSales              decimal.Decimal `json:"total_sales"`
	OrderCount              int             `json:"order_count"`
	AverageQuantityPerOrder decimal.Decimal `json:"average_quantity_per_order"`
}

// DailySalesRow un día calendario del período (cero si no hubo ventas).
type DailySalesRow struct {
	Date              string          `json:"date"`
	DayName           string          `json:"day_name"`
	Sales             decimal.Decimal `json:"sales"`
	Orders            int             `json:"orders"`
	ItemsSold         int64           `json:"items_sold"`
	AverageOrderValue decimal.Decimal `json:"average_order_value"`
}

// TopSellerRow posición del ranking de más vendidos.
type TopSellerRow struct {
	Rank               int             `json:"rank"`
	ProductID          string          `json:"product_id"`
	ProductName        string          `json:"product_name"`
	SKU                string          `json:"sku,omitempty"`
	TotalQuantitySold  int64           `json:"total_quantity_sold"`
	TotalSalesAmount   decimal.Decimal `json:"total_sales_amount"`
	OrderCount         int             `json:"order_count"`
	QuantityPercentage decimal.Decimal `json:"quantity_percentage"`
	SalesPercentage    decimal.Decimal `json:"sales_percentage"`
}

// TopSellersResponse página del ranking.
type TopSellersResponse struct {
	Items []TopSellerRow `json:"items"`
	Page  PageResponse   `json:"page"`
}

// ReportPeriod período cubierto por un reporte.
type ReportPeriod struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Days      int    `json:"days"`
}

// SalesReportResponse reporte diario o semanal completo.
type SalesReportResponse struct {
	Mode     string            `json:"mode"`
	Period   ReportPeriod      `json:"period"`
	Summary  SalesSummary      `json:"summary"`
	Daily    []DailySalesRow   `json:"daily"`
	Products []ProductSalesRow `json:"products"`
}
