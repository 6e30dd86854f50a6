package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/stockflow/internal/domain"
	"github.com/jhoicas/stockflow/internal/domain/entity"
	"github.com/jhoicas/stockflow/internal/domain/repository"
)

var _ repository.StockOutboxRepository = (*StockOutboxRepo)(nil)

const outboxColumns = `id, order_id, order_item_id, product_id, quantity, idempotency_key, status, attempts,
	last_error, next_attempt_at, movement_id, delivered_at, created_at, updated_at`

// StockOutboxRepo outbox de salidas de stock (usable con pool o tx).
type StockOutboxRepo struct {
	q Querier
}

// NewStockOutboxRepository construye el adaptador. Pasar pool o tx (Querier).
func NewStockOutboxRepository(q Querier) *StockOutboxRepo {
	return &StockOutboxRepo{q: q}
}

func scanOutboxEvent(row pgx.Row) (*entity.StockOutboxEvent, error) {
	var e entity.StockOutboxEvent
	var lastError, movementID *string
	if err := row.Scan(&e.ID, &e.OrderID, &e.OrderItemID, &e.ProductID, &e.Quantity, &e.IdempotencyKey,
		&e.Status, &e.Attempts, &lastError, &e.NextAttemptAt, &movementID, &e.DeliveredAt,
		&e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.LastError = deref(lastError)
	e.MovementID = deref(movementID)
	return &e, nil
}

func collectOutboxEvents(rows pgx.Rows) ([]*entity.StockOutboxEvent, error) {
	defer rows.Close()
	var list []*entity.StockOutboxEvent
	for rows.Next() {
		e, err := scanOutboxEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

// Create inserta el evento; se llama dentro de la misma tx que el pedido.
func (r *StockOutboxRepo) Create(ctx context.Context, e *entity.StockOutboxEvent) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	query := `INSERT INTO stock_outbox (` + outboxColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := r.q.Exec(ctx, query, e.ID, e.OrderID, e.OrderItemID, e.ProductID, e.Quantity, e.IdempotencyKey,
		e.Status, e.Attempts, nullable(e.LastError), e.NextAttemptAt, nullable(e.MovementID), e.DeliveredAt,
		e.CreatedAt, e.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

// ListByOrder devuelve los eventos del pedido.
func (r *StockOutboxRepo) ListByOrder(ctx context.Context, orderID string) ([]*entity.StockOutboxEvent, error) {
	rows, err := r.q.Query(ctx, `SELECT `+outboxColumns+` FROM stock_outbox WHERE order_id = $1 ORDER BY created_at, id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list outbox by order: %w", err)
	}
	return collectOutboxEvents(rows)
}

// ClaimDue reserva eventos pendientes vencidos moviendo next_attempt_at a leaseUntil.
// FOR UPDATE SKIP LOCKED evita que dos relays tomen la misma fila; el lease evita que
// otro ciclo la vuelva a tomar mientras se entrega.
func (r *StockOutboxRepo) ClaimDue(ctx context.Context, now, leaseUntil time.Time, limit int) ([]*entity.StockOutboxEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		UPDATE stock_outbox SET next_attempt_at = $2, updated_at = $1
		WHERE id IN (
			SELECT id FROM stock_outbox
			WHERE status = 'pending' AND next_attempt_at <= $1
			ORDER BY next_attempt_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + outboxColumns
	rows, err := r.q.Query(ctx, query, now, leaseUntil, limit)
	if err != nil {
		return nil, fmt.Errorf("claim outbox events: %w", err)
	}
	return collectOutboxEvents(rows)
}

// MarkDelivered marca el evento como entregado con el id del movimiento remoto.
func (r *StockOutboxRepo) MarkDelivered(ctx context.Context, id, movementID string, at time.Time) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE stock_outbox
		SET status = 'delivered', movement_id = $2, delivered_at = $3, last_error = NULL,
		    attempts = attempts + 1, updated_at = $3
		WHERE id = $1`, id, nullable(movementID), at)
	if err != nil {
		return fmt.Errorf("mark outbox delivered: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkAttempt registra un intento fallido.
func (r *StockOutboxRepo) MarkAttempt(ctx context.Context, id, status string, attempts int, lastError string, nextAttempt time.Time) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE stock_outbox
		SET status = $2, attempts = $3, last_error = $4, next_attempt_at = $5, updated_at = now()
		WHERE id = $1`, id, status, attempts, nullable(lastError), nextAttempt)
	if err != nil {
		return fmt.Errorf("mark outbox attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ResetFailed devuelve a pending los eventos fallidos de un pedido para que el relay los tome.
func (r *StockOutboxRepo) ResetFailed(ctx context.Context, orderID string, now time.Time) (int, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE stock_outbox
		SET status = 'pending', attempts = 0, next_attempt_at = $2, updated_at = $2
		WHERE order_id = $1 AND status = 'failed'`, orderID, now)
	if err != nil {
		return 0, fmt.Errorf("reset failed outbox events: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
