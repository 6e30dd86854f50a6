package repository

import (
	"context"
	"time"

	"github.com/jhoicas/stockflow/internal/domain/entity"
)

// MovementFilter filtros para listar movimientos.
type MovementFilter struct {
	ProductID string
	OrderID   string
	Direction string
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}

// InventoryMovementRepository define el puerto de persistencia del libro de movimientos.
type InventoryMovementRepository interface {
	// Create persiste un movimiento. Devuelve domain.ErrDuplicate si la clave de idempotencia ya existe.
	Create(ctx context.Context, movement *entity.Movement) error
	GetByID(ctx context.Context, id string) (*entity.Movement, error)
	// GetForUpdate lee el movimiento bloqueando su fila hasta el fin de la transacción.
	GetForUpdate(ctx context.Context, id string) (*entity.Movement, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*entity.Movement, error)
	Update(ctx context.Context, movement *entity.Movement) error
	Delete(ctx context.Context, id string) error
	// ListByProduct devuelve todo el historial vigente del producto (para el recálculo).
	ListByProduct(ctx context.Context, productID string) ([]*entity.Movement, error)
	List(ctx context.Context, filter MovementFilter) ([]*entity.Movement, int, error)
}
