package orders

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	"github.com/jhoicas/stockflow/internal/application/dto"
	"github.com/jhoicas/stockflow/internal/application/ports"
	"github.com/jhoicas/stockflow/internal/domain/entity"
	"github.com/jhoicas/stockflow/internal/domain/repository"
	"github.com/jhoicas/stockflow/pkg/logger"
)

const (
	maxRetryDelay       = 10 * time.Minute
	deliveryConcurrency = 4
)

// RelayConfig parámetros del relay del outbox.
type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	Lease        time.Duration // reserva de un evento mientras se entrega
	InlineTries  uint          // intentos dentro de una misma entrega
	RetryBase    time.Duration // espera inicial entre intentos dentro de una entrega
}

func (c *RelayConfig) defaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
	}
	if c.Lease <= 0 {
		c.Lease = 30 * time.Second
	}
	if c.InlineTries == 0 {
		c.InlineTries = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 100 * time.Millisecond
	}
}

// OutboxRelay entrega al servicio de inventario las salidas de stock pendientes.
// Entrega al menos una vez; la clave order_id:item_id hace que un reintento nunca
// descuente dos veces.
type OutboxRelay struct {
	outbox repository.StockOutboxRepository
	ledger ports.StockLedger
	caller entity.Caller
	cfg    RelayConfig
	log    *logger.Logger
	now    func() time.Time
}

// NewOutboxRelay construye el relay. serviceName identifica a este servicio ante inventario.
func NewOutboxRelay(outbox repository.StockOutboxRepository, ledger ports.StockLedger, serviceName string, cfg RelayConfig, log *logger.Logger) *OutboxRelay {
	cfg.defaults()
	if log == nil {
		log = logger.Nop()
	}
	return &OutboxRelay{
		outbox: outbox,
		ledger: ledger,
		caller: entity.ServiceCaller(serviceName),
		cfg:    cfg,
		log:    log.Component("outbox_relay"),
		now:    time.Now,
	}
}

// Lease duración de la reserva de un evento.
func (r *OutboxRelay) Lease() time.Duration { return r.cfg.Lease }

// Start procesa el outbox cada PollInterval hasta que ctx se cancele.
func (r *OutboxRelay) Start(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()
	r.log.Info().Dur("interval", r.cfg.PollInterval).Int("batch", r.cfg.BatchSize).Msg("relay del outbox iniciado")
	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("relay del outbox detenido")
			return
		case <-ticker.C:
			for {
				n, err := r.RunOnce(ctx)
				if err != nil {
					r.log.Error().Err(err).Msg("ciclo del relay fallido")
					break
				}
				// Lote lleno: probablemente hay más pendientes.
				if n < r.cfg.BatchSize || ctx.Err() != nil {
					break
				}
			}
		}
	}
}

// RunOnce reserva un lote de eventos vencidos y los entrega. Devuelve cuántos tomó.
func (r *OutboxRelay) RunOnce(ctx context.Context) (int, error) {
	now := r.now()
	events, err := r.outbox.ClaimDue(ctx, now, now.Add(r.cfg.Lease), r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}
	results := r.Deliver(ctx, events)
	delivered := 0
	for _, res := range results {
		if res.Status == entity.OutboxStatusDelivered {
			delivered++
		}
	}
	r.log.Info().Int("claimed", len(events)).Int("delivered", delivered).Msg("lote del outbox procesado")
	return len(events), nil
}

// Deliver entrega los eventos en paralelo y persiste el resultado de cada uno.
// El orden de los resultados es el de events.
func (r *OutboxRelay) Deliver(ctx context.Context, events []*entity.StockOutboxEvent) []dto.StockSyncResult {
	results := make([]dto.StockSyncResult, len(events))
	var g errgroup.Group
	g.SetLimit(deliveryConcurrency)
	for i, ev := range events {
		i, ev := i, ev
		g.Go(func() error {
			results[i] = r.deliverOne(ctx, ev)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (r *OutboxRelay) deliverOne(ctx context.Context, ev *entity.StockOutboxEvent) dto.StockSyncResult {
	res := dto.StockSyncResult{
		OrderItemID: ev.OrderItemID,
		ProductID:   ev.ProductID,
		Quantity:    ev.Quantity,
	}
	cmd := ports.StockOutCommand{
		ProductID:      ev.ProductID,
		Quantity:       ev.Quantity,
		OrderID:        ev.OrderID,
		IdempotencyKey: ev.IdempotencyKey,
		OccurredAt:     ev.CreatedAt,
		Note:           "salida por pedido " + ev.OrderID,
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.RetryBase
	b.MaxInterval = 2 * time.Second
	movementID, err := backoff.Retry(ctx, func() (string, error) {
		id, err := r.ledger.RecordStockOut(ctx, r.caller, cmd)
		if err != nil && !ports.IsRetryable(err) {
			return "", backoff.Permanent(err)
		}
		return id, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(r.cfg.InlineTries))

	now := r.now()
	attempts := ev.Attempts + 1
	res.Attempts = attempts

	if err == nil {
		if markErr := r.outbox.MarkDelivered(ctx, ev.ID, movementID, now); markErr != nil {
			// La salida ya se registró; el próximo reintento la resolverá por idempotencia.
			r.log.Error().Err(markErr).Str("event_id", ev.ID).Msg("no se pudo marcar evento entregado")
		}
		res.Status = entity.OutboxStatusDelivered
		res.MovementID = movementID
		return res
	}

	res.Error = err.Error()
	status := entity.OutboxStatusPending
	next := now.Add(retryDelay(r.cfg.PollInterval, attempts))
	if attempts >= r.cfg.MaxAttempts || !ports.IsRetryable(err) {
		status = entity.OutboxStatusFailed
		r.log.Error().Err(err).
			Str("order_id", ev.OrderID).
			Str("product_id", ev.ProductID).
			Int("attempts", attempts).
			Msg("salida de stock fallida definitivamente, requiere reintento manual")
	} else {
		r.log.Warn().Err(err).
			Str("order_id", ev.OrderID).
			Int("attempts", attempts).
			Time("next_attempt_at", next).
			Msg("salida de stock pendiente de reintento")
	}
	res.Status = status
	if markErr := r.outbox.MarkAttempt(ctx, ev.ID, status, attempts, truncate(err.Error(), 1000), next); markErr != nil {
		r.log.Error().Err(markErr).Str("event_id", ev.ID).Msg("no se pudo registrar intento del outbox")
	}
	return res
}

// retryDelay espera exponencial entre ciclos: base, 2*base, 4*base... hasta maxRetryDelay.
func retryDelay(base time.Duration, attempts int) time.Duration {
	d := base
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return d
}

// truncate deja s en a lo sumo n bytes sin partir runas. last_error es TEXT y
// Postgres rechaza UTF-8 inválido, así que también se reemplazan bytes sueltos.
func truncate(s string, n int) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// syncResultFromEvent estado persistido de un evento como resultado para la respuesta.
func syncResultFromEvent(ev *entity.StockOutboxEvent) dto.StockSyncResult {
	return dto.StockSyncResult{
		OrderItemID: ev.OrderItemID,
		ProductID:   ev.ProductID,
		Quantity:    ev.Quantity,
		Status:      ev.Status,
		Attempts:    ev.Attempts,
		MovementID:  ev.MovementID,
		Error:       ev.LastError,
	}
}
