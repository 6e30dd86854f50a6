package interservice

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/jhoicas/stockflow/internal/domain/entity"
)

// batchEnvelope forma de la respuesta de /internal/<resource>/batch.
type batchEnvelope[T any] struct {
	Data map[string]T `json:"data"`
}

// UniqueIDs elimina vacíos y duplicados y ordena.
func UniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// BatchLookup resuelve todos los ids con una única llamada
// GET /internal/<resource>/batch?ids=a,b,c. Sin ids no se llama al remoto.
// Los ids que el remoto no conoce simplemente no aparecen en el mapa.
func BatchLookup[T any](ctx context.Context, c *Client, service, resource string, caller entity.Caller, ids []string) (map[string]T, error) {
	unique := UniqueIDs(ids)
	if len(unique) == 0 {
		return map[string]T{}, nil
	}
	resp, err := c.Do(ctx, Request{
		Service: service,
		Method:  http.MethodGet,
		Path:    "/internal/" + resource + "/batch",
		Query:   url.Values{"ids": {strings.Join(unique, ",")}},
		Caller:  caller,
	})
	if err != nil {
		return nil, err
	}
	var env batchEnvelope[T]
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return nil, fmt.Errorf("interservice: decodificar lote %s: %w", resource, err)
	}
	if env.Data == nil {
		env.Data = map[string]T{}
	}
	return env.Data, nil
}
