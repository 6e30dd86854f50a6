package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jhoicas/stockflow/internal/application/dto"
	"github.com/jhoicas/stockflow/internal/application/ports"
	"github.com/jhoicas/stockflow/internal/domain"
	"github.com/jhoicas/stockflow/internal/domain/entity"
	"github.com/jhoicas/stockflow/internal/domain/repository"
	"github.com/jhoicas/stockflow/pkg/fanout"
	"github.com/jhoicas/stockflow/pkg/logger"
	"github.com/jhoicas/stockflow/pkg/validator"
)

const (
	orderCodeAttempts = 3
	maxStatusAttempts = 3 // relecturas ante un cambio de estado concurrente
)

// OrderUseCase orquesta pedidos: persistencia local, salida de stock vía outbox
// e invalidación de caché.
type OrderUseCase struct {
	txRunner   OrderTxRunner
	orderRepo  repository.OrderRepository
	outboxRepo repository.StockOutboxRepository
	relay      *OutboxRelay
	directory  ports.Directory
	cache      ports.Cache
	loc        *time.Location
	log        *logger.Logger
	now        func() time.Time
}

// NewOrderUseCase construye el caso de uso. cache nil = sin invalidación.
func NewOrderUseCase(
	txRunner OrderTxRunner,
	orderRepo repository.OrderRepository,
	outboxRepo repository.StockOutboxRepository,
	relay *OutboxRelay,
	directory ports.Directory,
	cache ports.Cache,
	loc *time.Location,
	log *logger.Logger,
) *OrderUseCase {
	if cache == nil {
		cache = ports.NoopCache{}
	}
	if log == nil {
		log = logger.Nop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &OrderUseCase{
		txRunner:   txRunner,
		orderRepo:  orderRepo,
		outboxRepo: outboxRepo,
		relay:      relay,
		directory:  directory,
		cache:      cache,
		loc:        loc,
		log:        log.Component("orders"),
		now:        time.Now,
	}
}

// CreateOrder persiste pedido, ítems y eventos de stock en una sola transacción y
// luego intenta registrar las salidas de stock. Un fallo remoto no revierte el pedido:
// queda reflejado en StockSync y el relay lo reintenta.
func (uc *OrderUseCase) CreateOrder(ctx context.Context, caller entity.Caller, in dto.CreateOrderRequest) (*dto.OrderResponse, error) {
	if err := validator.Struct(in); err != nil {
		return nil, err
	}
	now := uc.now()
	status := in.Status
	if status == "" {
		status = entity.OrderStatusPending
	}
	orderDate := now
	if in.OrderDate != nil {
		orderDate = *in.OrderDate
	}

	order := &entity.Order{
		ID:         uuid.New().String(),
		CustomerID: in.CustomerID,
		StaffID:    in.StaffID,
		Status:     status,
		OrderDate:  orderDate,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for _, it := range in.Items {
		order.Items = append(order.Items, &entity.OrderItem{
			ID:        uuid.New().String(),
			OrderID:   order.ID,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}
	order.TotalAmount = entity.OrderTotal(order.Items)

	// Un pedido creado ya cancelado no mueve stock.
	var events []*entity.StockOutboxEvent
	if status != entity.OrderStatusCancelled {
		for _, it := range order.Items {
			events = append(events, &entity.StockOutboxEvent{
				ID:             uuid.New().String(),
				OrderID:        order.ID,
				OrderItemID:    it.ID,
				ProductID:      it.ProductID,
				Quantity:       it.Quantity,
				IdempotencyKey: entity.StockIdempotencyKey(order.ID, it.ID),
				Status:         entity.OutboxStatusPending,
				// Reservado hasta que termine la entrega inmediata de abajo.
				NextAttemptAt: now.Add(uc.relay.Lease()),
				CreatedAt:     now,
				UpdatedAt:     now,
			})
		}
	}

	var err error
	for attempt := 0; attempt < orderCodeAttempts; attempt++ {
		order.OrderCode = newOrderCode(orderDate)
		err = uc.txRunner.RunOrder(ctx, func(orderRepo repository.OrderRepository, outboxRepo repository.StockOutboxRepository) error {
			if err := orderRepo.Create(ctx, order); err != nil {
				return err
			}
			for _, it := range order.Items {
				if err := orderRepo.CreateItem(ctx, it); err != nil {
					return err
				}
			}
			for _, ev := range events {
				if err := outboxRepo.Create(ctx, ev); err != nil {
					return err
				}
			}
			return nil
		})
		if !errors.Is(err, domain.ErrDuplicate) {
			break
		}
		uc.log.Warn().Str("order_code", order.OrderCode).Msg("código de pedido repetido, se genera otro")
	}
	if err != nil {
		return nil, err
	}
	uc.log.Info().
		Str("order_id", order.ID).
		Str("order_code", order.OrderCode).
		Str("total", order.TotalAmount.StringFixed(2)).
		Int("items", len(order.Items)).
		Msg("pedido creado")

	var stockSync []dto.StockSyncResult
	if len(events) > 0 {
		stockSync = uc.relay.Deliver(ctx, events)
	}

	uc.invalidate(ctx, ports.TagOrders, ports.TagTransactions, ports.TagStocks, ports.TagReports, ports.TagTopSellers)

	refs := uc.lookup(ctx, caller, productIDs(order.Items), nil, nil)
	resp := toOrderResponse(order, refs)
	resp.StockSync = stockSync
	return resp, nil
}

// UpdateStatus cambia el estado del pedido. Pedir el estado actual no escribe nada.
// La escritura es condicional al estado leído; si otra petición lo cambió entre
// medio, la transición se vuelve a evaluar contra el estado nuevo.
func (uc *OrderUseCase) UpdateStatus(ctx context.Context, id string, in dto.UpdateOrderStatusRequest) (*dto.OrderResponse, error) {
	if err := validator.Struct(in); err != nil {
		return nil, err
	}
	for attempt := 0; attempt < maxStatusAttempts; attempt++ {
		order, err := uc.orderRepo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if order == nil {
			return nil, domain.ErrNotFound
		}
		if order.Status == in.Status {
			return toOrderResponse(order, lookupResult{}), nil
		}
		if !entity.CanTransition(order.Status, in.Status) {
			return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, order.Status, in.Status)
		}
		now := uc.now()
		err = uc.orderRepo.UpdateStatus(ctx, id, order.Status, in.Status, now)
		if errors.Is(err, domain.ErrConflict) {
			uc.log.Debug().Str("order_id", id).Str("from", order.Status).Msg("estado cambiado concurrentemente, se relee")
			continue
		}
		if err != nil {
			return nil, err
		}
		uc.log.Info().Str("order_id", id).Str("from", order.Status).Str("to", in.Status).Msg("estado de pedido actualizado")
		order.Status = in.Status
		order.UpdatedAt = now

		uc.invalidate(ctx, ports.TagOrders, ports.TagReports, ports.TagTopSellers)
		return toOrderResponse(order, lookupResult{}), nil
	}
	return nil, fmt.Errorf("%w: pedido %s modificado concurrentemente", domain.ErrConflict, id)
}

// GetOrder devuelve el pedido con ítems, nombres resueltos y estado de la salida de stock.
func (uc *OrderUseCase) GetOrder(ctx context.Context, caller entity.Caller, id string) (*dto.OrderResponse, error) {
	order, err := uc.orderRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrNotFound
	}

	var events []*entity.StockOutboxEvent
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		items, err := uc.orderRepo.GetItems(gctx, id)
		order.Items = items
		return err
	})
	g.Go(func() error {
		var err error
		events, err = uc.outboxRepo.ListByOrder(gctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	refs := uc.lookup(ctx, caller, productIDs(order.Items), []string{order.CustomerID}, []string{order.StaffID})
	resp := toOrderResponse(order, refs)
	for _, ev := range events {
		resp.StockSync = append(resp.StockSync, syncResultFromEvent(ev))
	}
	return resp, nil
}

// ListOrders lista pedidos con nombres de cliente y empleado resueltos en paralelo.
func (uc *OrderUseCase) ListOrders(ctx context.Context, caller entity.Caller, q dto.OrderListQuery) (*dto.ListResponse[dto.OrderResponse], error) {
	if err := validator.Struct(q); err != nil {
		return nil, err
	}
	q.DefaultPage()
	from, err := dto.ParseTimeParam("from", q.From, uc.loc, false)
	if err != nil {
		return nil, err
	}
	to, err := dto.ParseTimeParam("to", q.To, uc.loc, true)
	if err != nil {
		return nil, err
	}
	list, total, err := uc.orderRepo.List(ctx, repository.OrderFilter{
		Status:     q.Status,
		CustomerID: q.CustomerID,
		From:       from,
		To:         to,
		Limit:      q.Limit,
		Offset:     q.Offset,
	})
	if err != nil {
		return nil, err
	}

	customerIDs := make([]string, 0, len(list))
	staffIDs := make([]string, 0, len(list))
	for _, o := range list {
		customerIDs = append(customerIDs, o.CustomerID)
		staffIDs = append(staffIDs, o.StaffID)
	}
	refs := uc.lookup(ctx, caller, nil, customerIDs, staffIDs)

	items := make([]dto.OrderResponse, 0, len(list))
	for _, o := range list {
		items = append(items, *toOrderResponse(o, refs))
	}
	return &dto.ListResponse[dto.OrderResponse]{
		Items: items,
		Page:  dto.PageResponse{Limit: q.Limit, Offset: q.Offset, Total: total},
	}, nil
}

// RetryFailed devuelve a pendiente las salidas de stock fallidas del pedido.
func (uc *OrderUseCase) RetryFailed(ctx context.Context, orderID string) (*dto.RetryStockSyncResponse, error) {
	order, err := uc.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrNotFound
	}
	n, err := uc.outboxRepo.ResetFailed(ctx, orderID, uc.now())
	if err != nil {
		return nil, err
	}
	uc.log.Info().Str("order_id", orderID).Int("reset", n).Msg("salidas de stock reencoladas")
	return &dto.RetryStockSyncResponse{OrderID: orderID, Reset: n}, nil
}

func (uc *OrderUseCase) invalidate(ctx context.Context, tags ...string) {
	if err := uc.cache.InvalidateByTag(ctx, tags...); err != nil {
		uc.log.Warn().Err(err).Strs("tags", tags).Msg("no se pudo invalidar caché")
	}
}

type lookupResult struct {
	products  map[string]entity.ProductRef
	customers map[string]entity.CustomerRef
	staff     map[string]entity.StaffRef
}

// lookup consulta los tres directorios en paralelo; una lista vacía no genera llamada.
func (uc *OrderUseCase) lookup(ctx context.Context, caller entity.Caller, productIDs, customerIDs, staffIDs []string) lookupResult {
	var res lookupResult
	if uc.directory == nil {
		return res
	}
	var calls []fanout.Call
	if len(productIDs) > 0 {
		calls = append(calls, fanout.Call{Name: "products", Fn: func(ctx context.Context) error {
			res.products = uc.directory.Products(ctx, caller, productIDs)
			return nil
		}})
	}
	if len(customerIDs) > 0 {
		calls = append(calls, fanout.Call{Name: "customers", Fn: func(ctx context.Context) error {
			res.customers = uc.directory.Customers(ctx, caller, customerIDs)
			return nil
		}})
	}
	if len(staffIDs) > 0 {
		calls = append(calls, fanout.Call{Name: "staff", Fn: func(ctx context.Context) error {
			res.staff = uc.directory.Staff(ctx, caller, staffIDs)
			return nil
		}})
	}
	// El directorio nunca falla: un lookup caído devuelve mapa vacío.
	_ = fanout.Join(ctx, uc.log, calls...)
	return res
}

func productIDs(items []*entity.OrderItem) []string {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	return ids
}

// newOrderCode ORD-YYYYMMDD-XXXXXXXX.
func newOrderCode(date time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
	return "ORD-" + date.Format("20060102") + "-" + suffix
}

// toOrderResponse arma la respuesta. Con refs vacío no se rellenan nombres; si hubo
// consulta y el id no se resolvió se usa la etiqueta Unknown*.
func toOrderResponse(o *entity.Order, refs lookupResult) *dto.OrderResponse {
	resp := &dto.OrderResponse{
		ID:          o.ID,
		OrderCode:   o.OrderCode,
		CustomerID:  o.CustomerID,
		StaffID:     o.StaffID,
		TotalAmount: o.TotalAmount,
		Status:      o.Status,
		OrderDate:   o.OrderDate,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
	if refs.customers != nil {
		resp.CustomerName = entity.UnknownCustomerName
		if c, ok := refs.customers[o.CustomerID]; ok {
			resp.CustomerName = c.Name
		}
	}
	if refs.staff != nil {
		resp.StaffName = entity.UnknownStaffName
		if s, ok := refs.staff[o.StaffID]; ok {
			resp.StaffName = s.Name
		}
	}
	for _, it := range o.Items {
		item := dto.OrderItemResponse{
			ID:        it.ID,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Subtotal:  it.Subtotal().Round(2),
		}
		if refs.products != nil {
			item.ProductName = entity.UnknownProductName
			if p, ok := refs.products[it.ProductID]; ok {
				item.ProductName = p.Name
			}
		}
		resp.Items = append(resp.Items, item)
	}
	return resp
}
