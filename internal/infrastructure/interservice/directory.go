package interservice

import (
	"context"

	"github.com/jhoicas/stockflow/internal/application/ports"
	"github.com/jhoicas/stockflow/internal/domain/entity"
	"github.com/jhoicas/stockflow/pkg/logger"
)

var _ ports.Directory = (*Directory)(nil)

// Directory resuelve productos (inventario) y clientes/empleados (usuarios) en lote.
// Un fallo remoto devuelve un mapa vacío: el enriquecimiento nunca rompe la respuesta.
//
// Las rutas /internal/<resource>/batch solo aceptan llamadas internas, así que el
// lote viaja siempre con la identidad de este servicio. El caller recibido solo
// queda en el log.
type Directory struct {
	client *Client
	self   entity.Caller
	log    *logger.Logger
}

// NewDirectory construye el adaptador. service es el nombre con el que este
// servicio se presenta ante sus pares (p. ej. ServiceOrders).
func NewDirectory(client *Client, service string, log *logger.Logger) *Directory {
	if log == nil {
		log = logger.Nop()
	}
	return &Directory{client: client, self: entity.ServiceCaller(service), log: log.Component("directory")}
}

func (d *Directory) Products(ctx context.Context, caller entity.Caller, ids []string) map[string]entity.ProductRef {
	return lookupOrEmpty[entity.ProductRef](ctx, d, ServiceInventory, "products", caller, ids)
}

func (d *Directory) Customers(ctx context.Context, caller entity.Caller, ids []string) map[string]entity.CustomerRef {
	return lookupOrEmpty[entity.CustomerRef](ctx, d, ServiceUsers, "customers", caller, ids)
}

func (d *Directory) Staff(ctx context.Context, caller entity.Caller, ids []string) map[string]entity.StaffRef {
	return lookupOrEmpty[entity.StaffRef](ctx, d, ServiceUsers, "staff", caller, ids)
}

func lookupOrEmpty[T any](ctx context.Context, d *Directory, service, resource string, caller entity.Caller, ids []string) map[string]T {
	out, err := BatchLookup[T](ctx, d.client, service, resource, d.self, ids)
	if err != nil {
		d.log.Warn().Err(err).
			Str("resource", resource).
			Str("on_behalf_of", caller.Kind).
			Int("ids", len(ids)).
			Msg("lookup en lote fallido, se usan etiquetas por defecto")
		return map[string]T{}
	}
	return out
}
