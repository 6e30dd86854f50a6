package ports

import (
	"context"
	"errors"
	"time"

	"github.com/jhoicas/stockflow/internal/domain/entity"
)

// Directory resuelve metadatos de servicios pares en lote para enriquecer respuestas.
// Un fallo remoto no es fatal: las implementaciones devuelven mapa vacío y el
// llamador usa las etiquetas Unknown*.
type Directory interface {
	Products(ctx context.Context, caller entity.Caller, ids []string) map[string]entity.ProductRef
	Customers(ctx context.Context, caller entity.Caller, ids []string) map[string]entity.CustomerRef
	Staff(ctx context.Context, caller entity.Caller, ids []string) map[string]entity.StaffRef
}

// StockOutCommand salida de stock originada por un pedido.
type StockOutCommand struct {
	ProductID      string
	Quantity       int64
	OrderID        string
	IdempotencyKey string
	OccurredAt     time.Time
	Note           string
}

// StockLedger registra movimientos en el servicio de inventario.
// RecordStockOut es idempotente por IdempotencyKey y devuelve el id del movimiento.
type StockLedger interface {
	RecordStockOut(ctx context.Context, caller entity.Caller, cmd StockOutCommand) (string, error)
}

// IsRetryable indica si vale la pena reintentar una llamada fallida. Los errores que
// exponen Retryable() deciden por sí mismos; cualquier otro se considera transitorio.
func IsRetryable(err error) bool {
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return true
}
