package inventory

import (
	"time"

	"github.com/jhoicas/stockflow/internal/domain/entity"
)

// ProjectQuantity recalcula el stock desde el historial completo:
// Σ(entradas) − Σ(salidas) sobre los movimientos existentes. No depende del orden.
func ProjectQuantity(movements []*entity.Movement) int64 {
	var qty int64
	for _, m := range movements {
		if m == nil {
			continue
		}
		qty += m.SignedQuantity()
	}
	return qty
}

// Project construye la proyección de un producto a partir de su historial.
// Conserva el umbral mínimo de la fila existente; si no existe usa defaultMin.
// No se aplica piso: el resultado puede ser negativo (sobreventa).
func Project(productID string, current *entity.StockProjection, movements []*entity.Movement, defaultMin int64, now time.Time) *entity.StockProjection {
	minQty := defaultMin
	if current != nil {
		minQty = current.MinQuantity
	}
	return &entity.StockProjection{
		ProductID:   productID,
		Quantity:    ProjectQuantity(movements),
		MinQuantity: minQty,
		UpdatedAt:   now,
	}
}
