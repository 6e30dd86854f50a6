package orders

import (
	"context"

	"github.com/jhoicas/stockflow/internal/domain/repository"
)

// OrderTxRunner ejecuta fn en una transacción con repositorios de pedidos y outbox atados a ella.
// Pedido, ítems y eventos de stock se confirman juntos o no se confirman.
type OrderTxRunner interface {
	RunOrder(ctx context.Context, fn func(
		orderRepo repository.OrderRepository,
		outboxRepo repository.StockOutboxRepository,
	) error) error
}
