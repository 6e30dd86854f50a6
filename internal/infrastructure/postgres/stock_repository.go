package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/stockflow/internal/domain/entity"
	"github.com/jhoicas/stockflow/internal/domain/repository"
)

var _ repository.StockRepository = (*StockRepo)(nil)

// StockRepo implementación de StockRepository sobre PostgreSQL (usable con pool o tx).
type StockRepo struct {
	q Querier
}

// NewStockRepository construye el adaptador de stock. Pasar pool o tx (Querier).
func NewStockRepository(q Querier) *StockRepo {
	return &StockRepo{q: q}
}

// LockProduct toma un advisory lock transaccional por producto: dos recálculos del
// mismo producto nunca se intercalan. Se libera solo al terminar la transacción,
// por lo que debe llamarse con una tx, no con el pool.
func (r *StockRepo) LockProduct(ctx context.Context, productID string) error {
	if _, err := r.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, productID); err != nil {
		return fmt.Errorf("lock product %s: %w", productID, err)
	}
	return nil
}

// Get obtiene la proyección de un producto. (nil, nil) si nunca se calculó.
func (r *StockRepo) Get(ctx context.Context, productID string) (*entity.StockProjection, error) {
	query := `
		SELECT product_id, quantity, min_quantity, updated_at
		FROM stock_projections WHERE product_id = $1`
	var s entity.StockProjection
	err := r.q.QueryRow(ctx, query, productID).Scan(&s.ProductID, &s.Quantity, &s.MinQuantity, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get stock: %w", err)
	}
	return &s, nil
}

// Upsert escribe la proyección recalculada.
func (r *StockRepo) Upsert(ctx context.Context, s *entity.StockProjection) error {
	query := `
		INSERT INTO stock_projections (product_id, quantity, min_quantity, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (product_id)
		DO UPDATE SET quantity = EXCLUDED.quantity, min_quantity = EXCLUDED.min_quantity, updated_at = EXCLUDED.updated_at`
	if _, err := r.q.Exec(ctx, query, s.ProductID, s.Quantity, s.MinQuantity, s.UpdatedAt); err != nil {
		return fmt.Errorf("upsert stock: %w", err)
	}
	return nil
}

// List lista proyecciones; con BelowMinimum solo las que están bajo su umbral.
func (r *StockRepo) List(ctx context.Context, f repository.StockFilter) ([]*entity.StockProjection, int, error) {
	where := ""
	if f.BelowMinimum {
		where = " WHERE quantity < min_quantity"
	}
	var total int
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM stock_projections`+where).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count stock: %w", err)
	}

	var w whereBuilder
	query := `SELECT product_id, quantity, min_quantity, updated_at FROM stock_projections` + where +
		` ORDER BY product_id` + w.page(f.Limit, f.Offset)
	rows, err := r.q.Query(ctx, query, w.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list stock: %w", err)
	}
	defer rows.Close()
	var list []*entity.StockProjection
	for rows.Next() {
		var s entity.StockProjection
		if err := rows.Scan(&s.ProductID, &s.Quantity, &s.MinQuantity, &s.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan stock: %w", err)
		}
		list = append(list, &s)
	}
	return list, total, rows.Err()
}
