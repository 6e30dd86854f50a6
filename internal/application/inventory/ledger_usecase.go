package inventory

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jhoicas/stockflow/internal/application/dto"
	"github.com/jhoicas/stockflow/internal/application/ports"
	"github.com/jhoicas/stockflow/internal/domain"
	"github.com/jhoicas/stockflow/internal/domain/entity"
	"github.com/jhoicas/stockflow/internal/domain/inventory"
	"github.com/jhoicas/stockflow/internal/domain/repository"
	"github.com/jhoicas/stockflow/pkg/logger"
	"github.com/jhoicas/stockflow/pkg/validator"
)

// LedgerUseCase libro de movimientos y proyección de stock.
// Toda escritura (alta, corrección o baja de un movimiento) recalcula la proyección
// del producto en la misma transacción, bajo un lock por producto.
type LedgerUseCase struct {
	txRunner    TxRunner
	movRepo     repository.InventoryMovementRepository
	stockRepo   repository.StockRepository
	productRepo repository.ProductRepository
	cache       ports.Cache
	defaultMin  int64
	loc         *time.Location
	log         *logger.Logger
	now         func() time.Time
}

// LedgerOption configura el caso de uso.
type LedgerOption func(*LedgerUseCase)

// WithDefaultMinQuantity umbral para proyecciones nuevas.
func WithDefaultMinQuantity(n int64) LedgerOption {
	return func(uc *LedgerUseCase) {
		if n >= 0 {
			uc.defaultMin = n
		}
	}
}

// WithLocation zona para interpretar fechas sin hora en los filtros.
func WithLocation(loc *time.Location) LedgerOption {
	return func(uc *LedgerUseCase) {
		if loc != nil {
			uc.loc = loc
		}
	}
}

// WithClock reemplaza el reloj (tests).
func WithClock(now func() time.Time) LedgerOption {
	return func(uc *LedgerUseCase) { uc.now = now }
}

// NewLedgerUseCase construye el caso de uso. cache nil = sin invalidación.
func NewLedgerUseCase(
	txRunner TxRunner,
	movRepo repository.InventoryMovementRepository,
	stockRepo repository.StockRepository,
	productRepo repository.ProductRepository,
	cache ports.Cache,
	log *logger.Logger,
	opts ...LedgerOption,
) *LedgerUseCase {
	if cache == nil {
		cache = ports.NoopCache{}
	}
	if log == nil {
		log = logger.Nop()
	}
	uc := &LedgerUseCase{
		txRunner:    txRunner,
		movRepo:     movRepo,
		stockRepo:   stockRepo,
		productRepo: productRepo,
		cache:       cache,
		defaultMin:  entity.DefaultMinQuantity,
		loc:         time.UTC,
		log:         log.Component("ledger"),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// RecordMovement registra un movimiento y recalcula el stock del producto.
// Si IdempotencyKey ya existe devuelve el movimiento almacenado y created=false, sin escribir.
func (uc *LedgerUseCase) RecordMovement(ctx context.Context, createdBy string, in dto.RecordMovementRequest) (*dto.MovementResponse, bool, error) {
	if err := validator.Struct(in); err != nil {
		return nil, false, err
	}
	if in.IdempotencyKey != "" {
		existing, err := uc.movRepo.GetByIdempotencyKey(ctx, in.IdempotencyKey)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			uc.log.Debug().Str("idempotency_key", in.IdempotencyKey).Msg("movimiento ya registrado")
			return toMovementResponse(existing), false, nil
		}
	}
	if err := uc.requireProduct(ctx, in.ProductID); err != nil {
		return nil, false, err
	}

	now := uc.now()
	occurredAt := now
	if in.OccurredAt != nil {
		occurredAt = *in.OccurredAt
	}
	mov := &entity.Movement{
		ID:               uuid.New().String(),
		ProductID:        in.ProductID,
		Direction:        in.Direction,
		Quantity:         in.Quantity,
		OccurredAt:       occurredAt,
		LinkedOrderID:    in.LinkedOrderID,
		LinkedSupplierID: in.LinkedSupplierID,
		IdempotencyKey:   in.IdempotencyKey,
		Note:             in.Note,
		CreatedBy:        createdBy,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err := uc.txRunner.Run(ctx, func(movRepo repository.InventoryMovementRepository, stockRepo repository.StockRepository) error {
		if err := stockRepo.LockProduct(ctx, mov.ProductID); err != nil {
			return err
		}
		if err := movRepo.Create(ctx, mov); err != nil {
			return err
		}
		_, err := uc.recompute(ctx, movRepo, stockRepo, mov.ProductID, now)
		return err
	})
	if err != nil {
		// Entrega concurrente con la misma clave: la otra transacción ganó.
		if errors.Is(err, domain.ErrDuplicate) && in.IdempotencyKey != "" {
			existing, getErr := uc.movRepo.GetByIdempotencyKey(ctx, in.IdempotencyKey)
			if getErr == nil && existing != nil {
				return toMovementResponse(existing), false, nil
			}
		}
		return nil, false, err
	}

	uc.invalidate(ctx)
	uc.log.Info().
		Str("movement_id", mov.ID).
		Str("product_id", mov.ProductID).
		Str("direction", mov.Direction).
		Int64("quantity", mov.Quantity).
		Msg("movimiento registrado")
	return toMovementResponse(mov), true, nil
}

// ReviseMovement corrige un movimiento. Si cambia el producto se recalculan ambos.
// El movimiento se relee con su fila bloqueada dentro de la tx: los productos
// afectados salen de esa lectura, no de una copia previa.
func (uc *LedgerUseCase) ReviseMovement(ctx context.Context, id string, in dto.RecordMovementRequest) (*dto.MovementResponse, error) {
	if err := validator.Struct(in); err != nil {
		return nil, err
	}
	if err := uc.requireProduct(ctx, in.ProductID); err != nil {
		return nil, err
	}

	now := uc.now()
	var updated entity.Movement
	err := uc.txRunner.Run(ctx, func(movRepo repository.InventoryMovementRepository, stockRepo repository.StockRepository) error {
		existing, err := movRepo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return domain.ErrNotFound
		}
		if in.IdempotencyKey != "" && in.IdempotencyKey != existing.IdempotencyKey {
			return domain.NewValidationError(domain.FieldError{Field: "idempotency_key", Tag: "immutable"})
		}

		updated = *existing
		updated.ProductID = in.ProductID
		updated.Direction = in.Direction
		updated.Quantity = in.Quantity
		if in.OccurredAt != nil {
			updated.OccurredAt = *in.OccurredAt
		}
		updated.LinkedOrderID = in.LinkedOrderID
		updated.LinkedSupplierID = in.LinkedSupplierID
		updated.Note = in.Note
		updated.UpdatedAt = now

		affected := affectedProducts(existing.ProductID, updated.ProductID)
		for _, pid := range affected {
			if err := stockRepo.LockProduct(ctx, pid); err != nil {
				return err
			}
		}
		if err := movRepo.Update(ctx, &updated); err != nil {
			return err
		}
		for _, pid := range affected {
			if _, err := uc.recompute(ctx, movRepo, stockRepo, pid, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	uc.invalidate(ctx)
	return toMovementResponse(&updated), nil
}

// DeleteMovement elimina un movimiento y recalcula; el resultado es el mismo que si nunca hubiera existido.
func (uc *LedgerUseCase) DeleteMovement(ctx context.Context, id string) error {
	now := uc.now()
	var productID string
	err := uc.txRunner.Run(ctx, func(movRepo repository.InventoryMovementRepository, stockRepo repository.StockRepository) error {
		existing, err := movRepo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return domain.ErrNotFound
		}
		productID = existing.ProductID
		if err := stockRepo.LockProduct(ctx, productID); err != nil {
			return err
		}
		if err := movRepo.Delete(ctx, id); err != nil {
			return err
		}
		_, err = uc.recompute(ctx, movRepo, stockRepo, productID, now)
		return err
	})
	if err != nil {
		return err
	}
	uc.invalidate(ctx)
	uc.log.Info().Str("movement_id", id).Str("product_id", productID).Msg("movimiento eliminado")
	return nil
}

// RecomputeStock reconcilia la proyección de un producto contra su historial completo.
func (uc *LedgerUseCase) RecomputeStock(ctx context.Context, productID string) (*dto.StockResponse, error) {
	product, err := uc.productRepo.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, domain.ErrNotFound
	}
	var proj *entity.StockProjection
	err = uc.txRunner.Run(ctx, func(movRepo repository.InventoryMovementRepository, stockRepo repository.StockRepository) error {
		if err := stockRepo.LockProduct(ctx, productID); err != nil {
			return err
		}
		var err error
		proj, err = uc.recompute(ctx, movRepo, stockRepo, productID, uc.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	uc.invalidate(ctx)
	return toStockResponse(proj, product.Name), nil
}

// recompute suma el historial completo y escribe la proyección. Debe llamarse con el lock tomado.
func (uc *LedgerUseCase) recompute(
	ctx context.Context,
	movRepo repository.InventoryMovementRepository,
	stockRepo repository.StockRepository,
	productID string,
	now time.Time,
) (*entity.StockProjection, error) {
	movements, err := movRepo.ListByProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	current, err := stockRepo.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	proj := inventory.Project(productID, current, movements, uc.defaultMin, now)
	if err := stockRepo.Upsert(ctx, proj); err != nil {
		return nil, err
	}
	if proj.Quantity < 0 {
		uc.log.Warn().Str("product_id", productID).Int64("quantity", proj.Quantity).Msg("stock negativo (sobreventa)")
	}
	return proj, nil
}

// GetMovement obtiene un movimiento por ID.
func (uc *LedgerUseCase) GetMovement(ctx context.Context, id string) (*dto.MovementResponse, error) {
	m, err := uc.movRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, domain.ErrNotFound
	}
	return toMovementResponse(m), nil
}

// ListMovements lista movimientos filtrados.
func (uc *LedgerUseCase) ListMovements(ctx context.Context, q dto.MovementListQuery) (*dto.ListResponse[dto.MovementResponse], error) {
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
	list, total, err := uc.movRepo.List(ctx, repository.MovementFilter{
		ProductID: q.ProductID,
		OrderID:   q.OrderID,
		Direction: q.Direction,
		From:      from,
		To:        to,
		Limit:     q.Limit,
		Offset:    q.Offset,
	})
	if err != nil {
		return nil, err
	}
	items := make([]dto.MovementResponse, 0, len(list))
	for _, m := range list {
		items = append(items, *toMovementResponse(m))
	}
	return &dto.ListResponse[dto.MovementResponse]{
		Items: items,
		Page:  dto.PageResponse{Limit: q.Limit, Offset: q.Offset, Total: total},
	}, nil
}

// GetStock devuelve la proyección del producto. Un producto sin movimientos tiene stock 0.
func (uc *LedgerUseCase) GetStock(ctx context.Context, productID string) (*dto.StockResponse, error) {
	product, err := uc.productRepo.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, domain.ErrNotFound
	}
	proj, err := uc.stockRepo.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	if proj == nil {
		proj = &entity.StockProjection{ProductID: productID, MinQuantity: uc.defaultMin, UpdatedAt: product.UpdatedAt}
	}
	return toStockResponse(proj, product.Name), nil
}

// ListStock lista proyecciones con nombre de producto; below_minimum filtra stock bajo.
func (uc *LedgerUseCase) ListStock(ctx context.Context, q dto.StockListQuery) (*dto.ListResponse[dto.StockResponse], error) {
	if err := validator.Struct(q); err != nil {
		return nil, err
	}
	q.DefaultPage()
	list, total, err := uc.stockRepo.List(ctx, repository.StockFilter{BelowMinimum: q.BelowMinimum, Limit: q.Limit, Offset: q.Offset})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(list))
	for _, s := range list {
		ids = append(ids, s.ProductID)
	}
	names := map[string]string{}
	if products, err := uc.productRepo.GetByIDs(ctx, ids); err == nil {
		for _, p := range products {
			names[p.ID] = p.Name
		}
	} else {
		uc.log.Warn().Err(err).Msg("no se pudieron resolver nombres de producto")
	}
	items := make([]dto.StockResponse, 0, len(list))
	for _, s := range list {
		items = append(items, *toStockResponse(s, names[s.ProductID]))
	}
	return &dto.ListResponse[dto.StockResponse]{
		Items: items,
		Page:  dto.PageResponse{Limit: q.Limit, Offset: q.Offset, Total: total},
	}, nil
}

// ProductRefs resuelve productos para servicios pares. Los ids inexistentes se omiten.
func (uc *LedgerUseCase) ProductRefs(ctx context.Context, ids []string) (map[string]entity.ProductRef, error) {
	out := make(map[string]entity.ProductRef, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	products, err := uc.productRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, p := range products {
		out[p.ID] = entity.ProductRef{ID: p.ID, Name: p.Name, SKU: p.SKU, UnitPrice: p.UnitPrice}
	}
	return out, nil
}

// ListProducts catálogo paginado (solo lectura).
func (uc *LedgerUseCase) ListProducts(ctx context.Context, page dto.PageRequest) (*dto.ListResponse[dto.ProductResponse], error) {
	if err := validator.Struct(page); err != nil {
		return nil, err
	}
	page.DefaultPage()
	list, total, err := uc.productRepo.List(ctx, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	items := make([]dto.ProductResponse, 0, len(list))
	for _, p := range list {
		items = append(items, dto.ProductResponse{
			ID: p.ID, SKU: p.SKU, Name: p.Name, UnitPrice: p.UnitPrice,
			CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt,
		})
	}
	return &dto.ListResponse[dto.ProductResponse]{
		Items: items,
		Page:  dto.PageResponse{Limit: page.Limit, Offset: page.Offset, Total: total},
	}, nil
}

func (uc *LedgerUseCase) requireProduct(ctx context.Context, productID string) error {
	p, err := uc.productRepo.GetByID(ctx, productID)
	if err != nil {
		return err
	}
	if p == nil {
		return domain.NewValidationError(domain.FieldError{Field: "product_id", Tag: "exists"})
	}
	return nil
}

// invalidate avisa a la caché del gateway; un fallo solo se registra.
func (uc *LedgerUseCase) invalidate(ctx context.Context) {
	if err := uc.cache.InvalidateByTag(ctx, ports.TagTransactions, ports.TagStocks); err != nil {
		uc.log.Warn().Err(err).Msg("invalidación de caché fallida")
	}
}

// affectedProducts ids únicos en orden estable: los locks se toman siempre en el mismo orden.
func affectedProducts(ids ...string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func toMovementResponse(m *entity.Movement) *dto.MovementResponse {
	return &dto.MovementResponse{
		ID:               m.ID,
		ProductID:        m.ProductID,
		Direction:        m.Direction,
		Quantity:         m.Quantity,
		OccurredAt:       m.OccurredAt,
		LinkedOrderID:    m.LinkedOrderID,
		LinkedSupplierID: m.LinkedSupplierID,
		IdempotencyKey:   m.IdempotencyKey,
		Note:             m.Note,
		CreatedBy:        m.CreatedBy,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func toStockResponse(s *entity.StockProjection, productName string) *dto.StockResponse {
	return &dto.StockResponse{
		ProductID:    s.ProductID,
		ProductName:  productName,
		Quantity:     s.Quantity,
		MinQuantity:  s.MinQuantity,
		BelowMinimum: s.BelowMinimum(),
		UpdatedAt:    s.UpdatedAt,
	}
}
