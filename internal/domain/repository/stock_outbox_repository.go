package repository

import (
	"context"
	"time"

	"github.com/jhoicas/stockflow/internal/domain/entity"
)

// StockOutboxRepository define el puerto del outbox de salidas de stock.
type StockOutboxRepository interface {
	Create(ctx context.Context, event *entity.StockOutboxEvent) error
	ListByOrder(ctx context.Context, orderID string) ([]*entity.StockOutboxEvent, error)
	// ClaimDue toma hasta limit eventos pendientes vencidos y los reserva hasta leaseUntil,
	// de modo que otra instancia del relay no los tome en paralelo.
	ClaimDue(ctx context.Context, now, leaseUntil time.Time, limit int) ([]*entity.StockOutboxEvent, error)
	MarkDelivered(ctx context.Context, id, movementID string, at time.Time) error
	// MarkAttempt registra un intento fallido; status queda pending (con nextAttempt) o failed.
	MarkAttempt(ctx context.Context, id, status string, attempts int, lastError string, nextAttempt time.Time) error
	// ResetFailed vuelve a pending los eventos fallidos de un pedido.
	ResetFailed(ctx context.Context, orderID string, now time.Time) (int, error)
}
