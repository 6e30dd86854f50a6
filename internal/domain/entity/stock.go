package entity

import "time"

// DefaultMinQuantity umbral mínimo con el que se crea una proyección nueva.
const DefaultMinQuantity int64 = 10

// StockProjection es la vista derivada del stock actual de un producto.
// Solo la escribe la rutina de recálculo; nunca los callers directamente.
type StockProjection struct {
	ProductID   string
	Quantity    int64
	MinQuantity int64
	UpdatedAt   time.Time
}

// BelowMinimum indica si el stock está por debajo del umbral.
func (s *StockProjection) BelowMinimum() bool {
	return s.Quantity < s.MinQuantity
}
