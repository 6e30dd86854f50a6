package interservice

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/stockflow/internal/application/ports"
	"github.com/jhoicas/stockflow/internal/domain/entity"
)

// ──────────────────────────────────────────────────────────────────────────────
// Helpers de test
// ──────────────────────────────────────────────────────────────────────────────

const testInternalKey = "clave-interna-test"

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := New(Config{
		BaseURLs: map[string]string{
			ServiceInventory: srv.URL,
			ServiceUsers:     srv.URL + "/",
		},
		InternalKey: testInternalKey,
		Timeout:     200 * time.Millisecond,
		Transport:   http.DefaultTransport,
	})
	return c, srv
}

// ──────────────────────────────────────────────────────────────────────────────
// Identidad del llamador
// ──────────────────────────────────────────────────────────────────────────────

func TestDo_UsuarioReenviaBearerSinHeadersInternos(t *testing.T) {
	var got http.Header
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	})

	_, err := c.Do(context.Background(), Request{
		Service: ServiceInventory, Method: http.MethodGet, Path: "/api/x",
		Caller: entity.UserCaller("tok-123"),
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok-123", got.Get("Authorization"))
	assert.Empty(t, got.Get(HeaderInternalService), "un llamador usuario no lleva marca interna")
	assert.Empty(t, got.Get(HeaderInternalKey))
}

func TestDo_ServicioEnviaMarcaClaveYRequestID(t *testing.T) {
	var ids []string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"), "un llamador servicio no reenvía bearer")
		assert.Equal(t, "orders", r.Header.Get(HeaderInternalService))
		assert.Equal(t, testInternalKey, r.Header.Get(HeaderInternalKey))
		ids = append(ids, r.Header.Get(HeaderRequestID))
		w.WriteHeader(http.StatusNoContent)
	})

	for i := 0; i < 2; i++ {
		_, err := c.Do(context.Background(), Request{
			Service: ServiceInventory, Method: http.MethodGet, Path: "/internal/x",
			Caller: entity.ServiceCaller("orders"),
		})
		require.NoError(t, err)
	}
	require.Len(t, ids, 2)
	assert.NotEmpty(t, ids[0])
	assert.NotEqual(t, ids[0], ids[1], "cada llamada lleva su propio request id")
}

func TestDo_SinCredenciales_NoLlamaAlRemoto(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})

	_, err := c.Do(context.Background(), Request{Service: ServiceInventory, Method: http.MethodGet, Path: "/", Caller: entity.UserCaller("")})
	assert.ErrorIs(t, err, ErrMissingCredentials)
	_, err = c.Do(context.Background(), Request{Service: ServiceInventory, Method: http.MethodGet, Path: "/"})
	assert.ErrorIs(t, err, ErrMissingCredentials)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestDo_ServicioDesconocido(t *testing.T) {
	c, _ := newTestClient(t, func(http.ResponseWriter, *http.Request) {})
	_, err := c.Do(context.Background(), Request{Service: "billing", Method: http.MethodGet, Path: "/", Caller: entity.UserCaller("t")})
	assert.ErrorIs(t, err, ErrUnknownService)
}

// ──────────────────────────────────────────────────────────────────────────────
// Errores remotos
// ──────────────────────────────────────────────────────────────────────────────

func TestDo_Non2xx_PreservaStatusYCuerpo(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"code":"VALIDATION","message":"quantity"}`)
	})

	_, err := c.Do(context.Background(), Request{Service: ServiceInventory, Method: http.MethodPost, Path: "/internal/movements", Caller: entity.ServiceCaller("orders")})
	var remote *RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, ServiceInventory, remote.Service)
	assert.Equal(t, http.StatusUnprocessableEntity, remote.Status)
	assert.JSONEq(t, `{"code":"VALIDATION","message":"quantity"}`, string(remote.Body))
	assert.False(t, remote.Retryable(), "un 4xx es definitivo")
}

func TestDo_Timeout(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})

	_, err := c.Do(context.Background(), Request{Service: ServiceInventory, Method: http.MethodGet, Path: "/slow", Caller: entity.UserCaller("t")})
	assert.ErrorIs(t, err, ErrRemoteTimeout)
	var remote *RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, http.StatusGatewayTimeout, remote.Status)
	assert.True(t, remote.Retryable())
}

func TestRemoteError_Retryable(t *testing.T) {
	assert.True(t, (&RemoteError{Status: 503}).Retryable())
	assert.True(t, (&RemoteError{Status: 429}).Retryable())
	assert.True(t, (&RemoteError{Status: 408}).Retryable())
	assert.False(t, (&RemoteError{Status: 404}).Retryable())
}

func TestRemoteError_MensajeUTF8Valido(t *testing.T) {
	// "á" ocupa los bytes 199 y 200: el corte no puede partirla.
	body := strings.Repeat("x", 199) + "ánimo"
	msg := (&RemoteError{Service: ServiceInventory, Status: 400, Body: []byte(body)}).Error()
	assert.True(t, utf8.ValidString(msg))
	assert.True(t, strings.HasSuffix(msg, strings.Repeat("x", 199)+"..."))

	msg = (&RemoteError{Service: ServiceInventory, Status: 400, Body: []byte{'o', 'k', 0xff, 0xfe}}).Error()
	assert.True(t, utf8.ValidString(msg), "bytes inválidos del remoto se reemplazan")
}

// ──────────────────────────────────────────────────────────────────────────────
// Variantes de payload
// ──────────────────────────────────────────────────────────────────────────────

func TestDo_JSONBody(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Empty(t, r.Header.Get(HeaderPayloadEncoding))
		raw, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"a":1}`, string(raw))
	})
	_, err := c.Do(context.Background(), Request{Service: ServiceInventory, Method: http.MethodPost, Path: "/", Caller: entity.UserCaller("t"),
		Body: JSONBody{Value: map[string]int{"a": 1}}})
	require.NoError(t, err)
}

func TestDo_MultipartBody_CamposNoEscalaresComoJSON(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mt, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		require.NoError(t, err)
		assert.Equal(t, "multipart/form-data", mt)

		form, err := multipart.NewReader(r.Body, params["boundary"]).ReadForm(1 << 20)
		require.NoError(t, err)
		assert.Equal(t, "Camisa", form.Value["name"][0])
		assert.Equal(t, "3", form.Value["qty"][0])
		assert.JSONEq(t, `{"color":"azul"}`, form.Value["attrs"][0])
		require.Len(t, form.File["photo"], 1)
		assert.Equal(t, "a.png", form.File["photo"][0].Filename)
	})
	_, err := c.Do(context.Background(), Request{Service: ServiceInventory, Method: http.MethodPost, Path: "/", Caller: entity.UserCaller("t"),
		Body: MultipartBody{
			Fields: map[string]interface{}{"name": "Camisa", "qty": 3, "attrs": map[string]string{"color": "azul"}},
			Files:  []FilePart{{Field: "photo", Filename: "a.png", ContentType: "image/png", Data: []byte{1, 2, 3}}},
		}})
	require.NoError(t, err)
}

func TestDo_EmbeddedBinaryBody(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, EncodingEmbeddedBinary, r.Header.Get(HeaderPayloadEncoding))
		var env EmbeddedEnvelope
		require.NoError(t, json.NewDecoder(r.Body).Decode(&env))
		assert.Equal(t, "Camisa", env.Fields["name"])
		assert.Equal(t, "image/png", env.Images["photo"].ContentType)
		assert.Equal(t, "AQID", env.Images["photo"].Data)
	})
	_, err := c.Do(context.Background(), Request{Service: ServiceInventory, Method: http.MethodPost, Path: "/", Caller: entity.UserCaller("t"),
		Body: EmbeddedBinaryBody{
			Fields: map[string]interface{}{"name": "Camisa"},
			Images: map[string]string{"photo": "data:image/png;base64,AQID"},
		}})
	require.NoError(t, err)
}

func TestDo_EmbeddedBinaryBody_DataURIInvalido_NoEnvia(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, func(http.ResponseWriter, *http.Request) { atomic.AddInt32(&calls, 1) })
	_, err := c.Do(context.Background(), Request{Service: ServiceInventory, Method: http.MethodPost, Path: "/", Caller: entity.UserCaller("t"),
		Body: EmbeddedBinaryBody{Images: map[string]string{"photo": "data:text/plain;base64,AQID"}}})
	assert.ErrorIs(t, err, ErrInvalidDataURI)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

// ──────────────────────────────────────────────────────────────────────────────
// Lote, fan-out y adaptadores
// ──────────────────────────────────────────────────────────────────────────────

func TestBatchLookup_UnaLlamadaConIDsUnicos(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/internal/products/batch", r.URL.Path)
		assert.Equal(t, "a,b", r.URL.Query().Get("ids"))
		_, _ = io.WriteString(w, `{"data":{"a":{"id":"a","name":"Tornillo"}}}`)
	})

	got, err := BatchLookup[entity.ProductRef](context.Background(), c, ServiceInventory, "products",
		entity.ServiceCaller("orders"), []string{"b", "a", "b", ""})
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, "Tornillo", got["a"].Name)
	_, ok := got["b"]
	assert.False(t, ok, "ids desconocidos no aparecen")
}

func TestBatchLookup_SinIDs_NoLlama(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, func(http.ResponseWriter, *http.Request) { atomic.AddInt32(&calls, 1) })
	got, err := BatchLookup[entity.CustomerRef](context.Background(), c, ServiceUsers, "customers", entity.UserCaller("t"), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestDirectory_FalloRemoto_MapaVacio(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	d := NewDirectory(c, ServiceOrders, nil)
	got := d.Customers(context.Background(), entity.UserCaller("t"), []string{"c1"})
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestInventoryClient_RecordStockOut(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/internal/movements", r.URL.Path)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "out", body["direction"])
		assert.Equal(t, "o1:i1", body["idempotency_key"])
		assert.EqualValues(t, 3, body["quantity"])
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":"mov-1","product_id":"p1"}`)
	})
	ic := NewInventoryClient(c)
	id, err := ic.RecordStockOut(context.Background(), entity.ServiceCaller("orders"), ports.StockOutCommand{
		ProductID: "p1", Quantity: 3, OrderID: "o1", IdempotencyKey: "o1:i1", OccurredAt: time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, "mov-1", id)
}

func TestParseDataURI(t *testing.T) {
	ct, data, err := ParseDataURI("data:image/jpeg;base64,AQID")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", ct)
	assert.Equal(t, []byte{1, 2, 3}, data)

	_, _, err = ParseDataURI("data:image/jpeg;base64,@@@")
	assert.ErrorIs(t, err, ErrInvalidDataURI)
	_, _, err = ParseDataURI(strings.Repeat("x", 10))
	assert.ErrorIs(t, err, ErrInvalidDataURI)
}
