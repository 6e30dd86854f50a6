// Package fanout ejecuta llamadas independientes en paralelo y espera a todas.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jhoicas/stockflow/pkg/logger"
)

// Call unidad de trabajo de un fan-out.
type Call struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Join ejecuta las llamadas en paralelo y espera a todas. Una llamada fallida se
// registra y no cancela a las demás; el error devuelto agrupa los fallos (nil si no hubo).
func Join(ctx context.Context, log *logger.Logger, calls ...Call) error {
	if log == nil {
		log = logger.Nop()
	}
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, call := range calls {
		call := call
		g.Go(func() error {
			if err := call.Fn(ctx); err != nil {
				log.Warn().Err(err).Str("call", call.Name).Msg("llamada de fan-out fallida")
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", call.Name, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
