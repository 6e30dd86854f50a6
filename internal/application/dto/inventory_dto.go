package dto

import "time"

// RecordMovementRequest body para POST /api/inventory/movements y /internal/movements.
// Con IdempotencyKey repetido se devuelve el movimiento ya registrado.
type RecordMovementRequest struct {
	ProductID        string     `json:"product_id" validate:"required,max=64"`
	Direction        string     `json:"direction" validate:"required,oneof=in out"`
	Quantity         int64      `json:"quantity" validate:"gt=0"`
	OccurredAt       *time.Time `json:"occurred_at,omitempty"`
	LinkedOrderID    string     `json:"linked_order_id,omitempty" validate:"max=64"`
	LinkedSupplierID string     `json:"linked_supplier_id,omitempty" validate:"max=64"`
	IdempotencyKey   string     `json:"idempotency_key,omitempty" validate:"max=200"`
	Note             string     `json:"note,omitempty" validate:"max=500"`
}

// MovementResponse salida de un movimiento.
type MovementResponse struct {
	ID               string    `json:"id"`
	ProductID        string    `json:"product_id"`
	Direction        string    `json:"direction"`
	Quantity         int64     `json:"quantity"`
	OccurredAt       time.Time `json:"occurred_at"`
	LinkedOrderID    string    `json:"linked_order_id,omitempty"`
	LinkedSupplierID string    `json:"linked_supplier_id,omitempty"`
	IdempotencyKey   string    `json:"idempotency_key,omitempty"`
	Note             string    `json:"note,omitempty"`
	CreatedBy        string    `json:"created_by,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// MovementListQuery filtros de GET /api/inventory/movements. From/To: YYYY-MM-DD o RFC3339.
type MovementListQuery struct {
	ProductID string `query:"product_id"`
	OrderID   string `query:"order_id"`
	Direction string `query:"direction" validate:"omitempty,oneof=in out"`
	From      string `query:"from"`
	To        string `query:"to"`
	PageRequest
}

// StockResponse proyección de stock de un producto.
type StockResponse struct {
	ProductID    string    `json:"product_id"`
	ProductName  string    `json:"product_name,omitempty"`
	Quantity     int64     `json:"quantity"`
	MinQuantity  int64     `json:"min_quantity"`
	BelowMinimum bool      `json:"below_minimum"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// StockListQuery filtros de GET /api/inventory/stocks.
type StockListQuery struct {
	BelowMinimum bool `query:"below_minimum"`
	PageRequest
}
