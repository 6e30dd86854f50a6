package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product es el dato de referencia del servicio de inventario (solo lectura en este sistema).
type Product struct {
	ID        string
	SKU       string
	Name      string
	UnitPrice decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}
