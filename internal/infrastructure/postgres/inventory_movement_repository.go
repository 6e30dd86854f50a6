package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/stockflow/internal/domain"
	"github.com/jhoicas/stockflow/internal/domain/entity"
	"github.com/jhoicas/stockflow/internal/domain/repository"
)

var _ repository.InventoryMovementRepository = (*InventoryMovementRepo)(nil)

const movementColumns = `id, product_id, direction, quantity, occurred_at, linked_order_id, linked_supplier_id,
	idempotency_key, note, created_by, created_at, updated_at`

// InventoryMovementRepo implementación sobre PostgreSQL (usable con pool o tx).
type InventoryMovementRepo struct {
	q Querier
}

// NewInventoryMovementRepository construye el adaptador. Pasar pool o tx (Querier).
func NewInventoryMovementRepository(q Querier) *InventoryMovementRepo {
	return &InventoryMovementRepo{q: q}
}

func scanMovement(row pgx.Row) (*entity.Movement, error) {
	var m entity.Movement
	var orderID, supplierID, idemKey, createdBy *string
	if err := row.Scan(&m.ID, &m.ProductID, &m.Direction, &m.Quantity, &m.OccurredAt,
		&orderID, &supplierID, &idemKey, &m.Note, &createdBy, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.LinkedOrderID = deref(orderID)
	m.LinkedSupplierID = deref(supplierID)
	m.IdempotencyKey = deref(idemKey)
	m.CreatedBy = deref(createdBy)
	return &m, nil
}

// Create persiste un movimiento. Una clave de idempotencia repetida devuelve domain.ErrDuplicate.
func (r *InventoryMovementRepo) Create(ctx context.Context, m *entity.Movement) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	query := `
		INSERT INTO inventory_movements (` + movementColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.q.Exec(ctx, query,
		m.ID, m.ProductID, m.Direction, m.Quantity, m.OccurredAt,
		nullable(m.LinkedOrderID), nullable(m.LinkedSupplierID), nullable(m.IdempotencyKey),
		m.Note, nullable(m.CreatedBy), m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("create inventory movement: %w", err)
	}
	return nil
}

// GetByID obtiene un movimiento por ID. (nil, nil) si no existe.
func (r *InventoryMovementRepo) GetByID(ctx context.Context, id string) (*entity.Movement, error) {
	m, err := scanMovement(r.q.QueryRow(ctx, `SELECT `+movementColumns+` FROM inventory_movements WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get movement: %w", err)
	}
	return m, nil
}

// GetForUpdate como GetByID pero con SELECT ... FOR UPDATE; solo tiene sentido dentro de una tx.
func (r *InventoryMovementRepo) GetForUpdate(ctx context.Context, id string) (*entity.Movement, error) {
	m, err := scanMovement(r.q.QueryRow(ctx, `SELECT `+movementColumns+` FROM inventory_movements WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get movement for update: %w", err)
	}
	return m, nil
}

// GetByIdempotencyKey busca el movimiento registrado con la clave. (nil, nil) si no existe.
func (r *InventoryMovementRepo) GetByIdempotencyKey(ctx context.Context, key string) (*entity.Movement, error) {
	m, err := scanMovement(r.q.QueryRow(ctx, `SELECT `+movementColumns+` FROM inventory_movements WHERE idempotency_key = $1`, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get movement by idempotency key: %w", err)
	}
	return m, nil
}

// Update corrige un movimiento existente.
func (r *InventoryMovementRepo) Update(ctx context.Context, m *entity.Movement) error {
	query := `
		UPDATE inventory_movements
		SET product_id = $2, direction = $3, quantity = $4, occurred_at = $5,
		    linked_order_id = $6, linked_supplier_id = $7, note = $8, updated_at = $9
		WHERE id = $1`
	tag, err := r.q.Exec(ctx, query, m.ID, m.ProductID, m.Direction, m.Quantity, m.OccurredAt,
		nullable(m.LinkedOrderID), nullable(m.LinkedSupplierID), m.Note, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update movement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete elimina un movimiento.
func (r *InventoryMovementRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM inventory_movements WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete movement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListByProduct devuelve todo el historial del producto, sin paginar.
func (r *InventoryMovementRepo) ListByProduct(ctx context.Context, productID string) ([]*entity.Movement, error) {
	rows, err := r.q.Query(ctx,
		`SELECT `+movementColumns+` FROM inventory_movements WHERE product_id = $1 ORDER BY occurred_at, created_at`, productID)
	if err != nil {
		return nil, fmt.Errorf("list by product: %w", err)
	}
	return collectMovements(rows)
}

// List lista movimientos filtrados, más recientes primero, junto con el total sin paginar.
func (r *InventoryMovementRepo) List(ctx context.Context, f repository.MovementFilter) ([]*entity.Movement, int, error) {
	var w whereBuilder
	if f.ProductID != "" {
		w.add("product_id = $%d", f.ProductID)
	}
	if f.OrderID != "" {
		w.add("linked_order_id = $%d", f.OrderID)
	}
	if f.Direction != "" {
		w.add("direction = $%d", f.Direction)
	}
	if f.From != nil {
		w.add("occurred_at >= $%d", *f.From)
	}
	if f.To != nil {
		w.add("occurred_at <= $%d", *f.To)
	}
	where := w.sql()

	var total int
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM inventory_movements`+where, w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count movements: %w", err)
	}

	query := `SELECT ` + movementColumns + ` FROM inventory_movements` + where +
		` ORDER BY occurred_at DESC, created_at DESC` + w.page(f.Limit, f.Offset)
	rows, err := r.q.Query(ctx, query, w.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list movements: %w", err)
	}
	list, err := collectMovements(rows)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func collectMovements(rows pgx.Rows) ([]*entity.Movement, error) {
	defer rows.Close()
	var list []*entity.Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		list = append(list, m)
	}
	return list, rows.Err()
}
