package repository

import (
	"context"

	"github.com/jhoicas/stockflow/internal/domain/entity"
)

// StockFilter filtros para listar proyecciones.
type StockFilter struct {
	BelowMinimum bool
	Limit        int
	Offset       int
}

// StockRepository define el puerto de la proyección de stock.
// Usado dentro de transacciones para garantizar consistencia.
type StockRepository interface {
	// LockProduct serializa los recálculos de un producto hasta el fin de la transacción.
	LockProduct(ctx context.Context, productID string) error
	Get(ctx context.Context, productID string) (*entity.StockProjection, error)
	Upsert(ctx context.Context, stock *entity.StockProjection) error
	List(ctx context.Context, filter StockFilter) ([]*entity.StockProjection, int, error)
}
