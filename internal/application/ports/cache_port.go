package ports

import (
	"context"
	"encoding/json"
	"time"
)

// Tags de caché por clase de recurso. Una escritura invalida los tags de todas
// las vistas que perturba.
const (
	TagOrders       = "orders"
	TagTransactions = "transactions"
	TagStocks       = "stocks"
	TagProducts     = "products"
	TagReports      = "reports"
	TagTopSellers   = "top-sellers"
)

// Cache define el puerto de la caché de respuestas indexada por tags.
// Es solo una optimización: las implementaciones absorben sus propios fallos
// y degradan a invocar producer.
type Cache interface {
	Remember(ctx context.Context, key string, ttl time.Duration, tags []string, producer func(context.Context) ([]byte, error)) ([]byte, error)
	InvalidateByTag(ctx context.Context, tags ...string) error
}

// RememberJSON memoriza el resultado de producer serializado como JSON.
// Un valor en caché que no se puede decodificar se trata como miss.
func RememberJSON[T any](ctx context.Context, c Cache, key string, ttl time.Duration, tags []string, producer func(context.Context) (T, error)) (T, error) {
	var fresh *T
	raw, err := c.Remember(ctx, key, ttl, tags, func(ctx context.Context) ([]byte, error) {
		v, err := producer(ctx)
		if err != nil {
			return nil, err
		}
		fresh = &v
		return json.Marshal(v)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	if fresh != nil {
		return *fresh, nil
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return producer(ctx)
	}
	return out, nil
}

// NoopCache caché deshabilitada: siempre invoca producer.
type NoopCache struct{}

func (NoopCache) Remember(ctx context.Context, _ string, _ time.Duration, _ []string, producer func(context.Context) ([]byte, error)) ([]byte, error) {
	return producer(ctx)
}

func (NoopCache) InvalidateByTag(context.Context, ...string) error { return nil }
