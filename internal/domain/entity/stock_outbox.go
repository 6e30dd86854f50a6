package entity

import "time"

// Estados de un evento del outbox de stock.
const (
	OutboxStatusPending   = "pending"
	OutboxStatusDelivered = "delivered"
	OutboxStatusFailed    = "failed"
)

// StockOutboxEvent es la salida de stock pendiente de registrar en el servicio de inventario.
// Se persiste en la misma transacción que el pedido y se entrega al menos una vez.
type StockOutboxEvent struct {
	ID             string
	OrderID        string
	OrderItemID    string
	ProductID      string
	Quantity       int64
	IdempotencyKey string
	Status         string
	Attempts       int
	LastError      string
	NextAttemptAt  time.Time
	MovementID     string
	DeliveredAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// StockIdempotencyKey clave de idempotencia para la salida de stock de un ítem.
func StockIdempotencyKey(orderID, itemID string) string {
	return orderID + ":" + itemID
}
