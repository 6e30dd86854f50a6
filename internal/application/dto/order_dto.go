package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateOrderItemRequest línea de un pedido.
type CreateOrderItemRequest struct {
	ProductID string          `json:"product_id" validate:"required,max=64"`
	Quantity  int64           `json:"quantity" validate:"gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price" validate:"dgte0"`
}

// CreateOrderRequest body para POST /api/orders.
type CreateOrderRequest struct {
	CustomerID string                   `json:"customer_id" validate:"required,max=64"`
	StaffID    string                   `json:"staff_id" validate:"required,max=64"`
	Status     string                   `json:"status,omitempty" validate:"omitempty,oneof=pending completed cancelled"`
	OrderDate  *time.Time               `json:"order_date,omitempty"`
	Items      []CreateOrderItemRequest `json:"items" validate:"required,min=1,dive"`
}

// UpdateOrderStatusRequest body para PATCH /api/orders/:id/status.
type UpdateOrderStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending completed cancelled"`
}

// OrderItemResponse línea de pedido en respuestas.
type OrderItemResponse struct {
	ID          string          `json:"id"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name,omitempty"`
	Quantity    int64           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

// StockSyncResult estado de la salida de stock de un ítem.
// Status: delivered, pending (se reintentará) o failed (requiere acción manual).
type StockSyncResult struct {
	OrderItemID string `json:"order_item_id"`
	ProductID   string `json:"product_id"`
	Quantity    int64  `json:"quantity"`
	Status      string `json:"status"`
	Attempts    int    `json:"attempts"`
	MovementID  string `json:"movement_id,omitempty"`
	Error       string `json:"error,omitempty"`
}

// OrderResponse pedido con ítems.
type OrderResponse struct {
	ID           string              `json:"id"`
	OrderCode    string              `json:"order_code"`
	CustomerID   string              `json:"customer_id"`
	CustomerName string              `json:"customer_name,omitempty"`
	StaffID      string              `json:"staff_id"`
	StaffName    string              `json:"staff_name,omitempty"`
	TotalAmount  decimal.Decimal     `json:"total_amount"`
	Status       string              `json:"status"`
	OrderDate    time.Time           `json:"order_date"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
	Items        []OrderItemResponse `json:"items,omitempty"`
	StockSync    []StockSyncResult   `json:"stock_sync,omitempty"`
}

// OrderListQuery filtros de GET /api/orders. From/To: YYYY-MM-DD o RFC3339.
type OrderListQuery struct {
	Status     string `query:"status" validate:"omitempty,oneof=pending completed cancelled"`
	CustomerID string `query:"customer_id"`
	From       string `query:"from"`
	To         string `query:"to"`
	PageRequest
}

// RetryStockSyncResponse resultado de POST /api/orders/:id/stock-sync/retry.
type RetryStockSyncResponse struct {
	OrderID string `json:"order_id"`
	Reset   int    `json:"reset"`
}
