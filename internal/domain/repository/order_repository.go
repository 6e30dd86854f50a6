package repository

import (
	"context"
	"time"

	"github.com/jhoicas/stockflow/internal/domain/entity"
)

// OrderFilter filtros para listar pedidos.
type OrderFilter struct {
	Status     string
	CustomerID string
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}

// OrderRepository define el puerto de persistencia de pedidos y sus ítems.
type OrderRepository interface {
	Create(ctx context.Context, order *entity.Order) error
	CreateItem(ctx context.Context, item *entity.OrderItem) error
	GetByID(ctx context.Context, id string) (*entity.Order, error)
	GetItems(ctx context.Context, orderID string) ([]*entity.OrderItem, error)
	List(ctx context.Context, filter OrderFilter) ([]*entity.Order, int, error)
	// UpdateStatus cambia el estado solo si sigue siendo from; si no, domain.ErrConflict.
	UpdateStatus(ctx context.Context, id, from, to string, updatedAt time.Time) error
}
