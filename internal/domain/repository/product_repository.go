package repository

import (
	"context"

	"github.com/jhoicas/stockflow/internal/domain/entity"
)

// ProductRepository puerto de lectura del catálogo de productos.
type ProductRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]*entity.Product, error)
	List(ctx context.Context, limit, offset int) ([]*entity.Product, int, error)
}
