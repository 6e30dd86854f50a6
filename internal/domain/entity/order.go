package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Estados de un pedido.
const (
	OrderStatusPending   = "pending"
	OrderStatusCompleted = "completed"
	OrderStatusCancelled = "cancelled"
)

// ValidOrderStatus indica si s es un estado conocido.
func ValidOrderStatus(s string) bool {
	switch s {
	case OrderStatusPending, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

// CanTransition indica si un pedido puede pasar de from a to.
func CanTransition(from, to string) bool {
	switch from {
	case OrderStatusPending:
		return to == OrderStatusCompleted || to == OrderStatusCancelled
	case OrderStatusCompleted:
		return to == OrderStatusCancelled
	}
	return false
}

// Order representa la cabecera de un pedido. TotalAmount == Σ quantity*unit_price de sus ítems.
type Order struct {
	ID          string
	OrderCode   string
	CustomerID  string
	StaffID     string
	TotalAmount decimal.Decimal
	Status      string
	OrderDate   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Items       []*OrderItem
}

// OrderItem línea de un pedido; se crea una vez y no se modifica.
type OrderItem struct {
	ID        string
	OrderID   string
	ProductID string
	Quantity  int64
	UnitPrice decimal.Decimal
}

// Subtotal devuelve quantity * unit_price.
func (i *OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(i.Quantity))
}

// OrderTotal suma los subtotales de los ítems redondeando a 2 decimales.
func OrderTotal(items []*OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal())
	}
	return total.Round(2)
}
