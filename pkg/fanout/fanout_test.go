package fanout

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoin_FalloNoCancelaOtras(t *testing.T) {
	var done int32
	err := Join(context.Background(), nil,
		Call{Name: "falla", Fn: func(context.Context) error { return errors.New("boom") }},
		Call{Name: "lenta", Fn: func(ctx context.Context) error {
			time.Sleep(20 * time.Millisecond)
			if ctx.Err() == nil {
				atomic.AddInt32(&done, 1)
			}
			return nil
		}},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "falla")
	assert.Equal(t, int32(1), atomic.LoadInt32(&done), "la llamada lenta debe completarse")
}

func TestJoin_CorreEnParalelo(t *testing.T) {
	start := time.Now()
	calls := make([]Call, 0, 3)
	for i := 0; i < 3; i++ {
		calls = append(calls, Call{Name: "espera", Fn: func(context.Context) error {
			time.Sleep(50 * time.Millisecond)
			return nil
		}})
	}
	require.NoError(t, Join(context.Background(), nil, calls...))
	assert.Less(t, time.Since(start), 140*time.Millisecond, "las llamadas no se serializan")
}

func TestJoin_AgrupaErrores(t *testing.T) {
	errA, errB := errors.New("a"), errors.New("b")
	err := Join(context.Background(), nil,
		Call{Name: "customers", Fn: func(context.Context) error { return errA }},
		Call{Name: "staff", Fn: func(context.Context) error { return errB }},
	)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
}

func TestJoin_SinLlamadas(t *testing.T) {
	assert.NoError(t, Join(context.Background(), nil))
}
