package entity

import "time"

// Direcciones de un movimiento de inventario.
const (
	DirectionIn  = "in"  // entrada
	DirectionOut = "out" // salida
)

// ValidDirection indica si d es una dirección conocida.
func ValidDirection(d string) bool {
	return d == DirectionIn || d == DirectionOut
}

// Movement es un evento del libro de inventario. Inmutable salvo corrección explícita
// (update/delete), y toda corrección dispara el recálculo de la proyección.
type Movement struct {
	ID               string
	ProductID        string
	Direction        string
	Quantity         int64 // siempre > 0; el signo lo da Direction
	OccurredAt       time.Time
	LinkedOrderID    string
	LinkedSupplierID string
	IdempotencyKey   string // order_id:item_id cuando lo origina el outbox de pedidos
	Note             string
	CreatedBy        string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// SignedQuantity devuelve la cantidad con signo según la dirección.
func (m *Movement) SignedQuantity() int64 {
	if m.Direction == DirectionOut {
		return -m.Quantity
	}
	return m.Quantity
}
