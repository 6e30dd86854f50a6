package interservice

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jhoicas/stockflow/internal/application/ports"
	"github.com/jhoicas/stockflow/internal/domain/entity"
)

var _ ports.StockLedger = (*InventoryClient)(nil)

// InventoryClient registra salidas de stock en el servicio de inventario.
type InventoryClient struct {
	client *Client
}

// NewInventoryClient construye el adaptador.
func NewInventoryClient(client *Client) *InventoryClient {
	return &InventoryClient{client: client}
}

type stockOutPayload struct {
	ProductID      string    `json:"product_id"`
	Direction      string    `json:"direction"`
	Quantity       int64     `json:"quantity"`
	LinkedOrderID  string    `json:"linked_order_id,omitempty"`
	IdempotencyKey string    `json:"idempotency_key"`
	OccurredAt     time.Time `json:"occurred_at"`
	Note           string    `json:"note,omitempty"`
}

// RecordStockOut POST /internal/movements. El servicio de inventario devuelve el
// movimiento ya existente si la clave de idempotencia se repite.
func (ic *InventoryClient) RecordStockOut(ctx context.Context, caller entity.Caller, cmd ports.StockOutCommand) (string, error) {
	resp, err := ic.client.Do(ctx, Request{
		Service: ServiceInventory,
		Method:  http.MethodPost,
		Path:    "/internal/movements",
		Caller:  caller,
		Body: JSONBody{Value: stockOutPayload{
			ProductID:      cmd.ProductID,
			Direction:      entity.DirectionOut,
			Quantity:       cmd.Quantity,
			LinkedOrderID:  cmd.OrderID,
			IdempotencyKey: cmd.IdempotencyKey,
			OccurredAt:     cmd.OccurredAt,
			Note:           cmd.Note,
		}},
	})
	if err != nil {
		return "", err
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return "", fmt.Errorf("interservice: decodificar movimiento: %w", err)
	}
	return out.ID, nil
}
