// Package interservice es el cliente HTTP para llamadas entre servicios:
// identidad explícita del llamador, timeout por llamada, variantes de payload
// y propagación fiel de errores remotos.
package interservice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/jhoicas/stockflow/internal/domain/entity"
	"github.com/jhoicas/stockflow/pkg/logger"
	"github.com/jhoicas/stockflow/pkg/telemetry"
)

// Nombres lógicos de los servicios pares.
const (
	ServiceInventory = "inventory"
	ServiceOrders    = "orders"
	ServiceUsers     = "users"
)

// Headers del protocolo interno.
const (
	HeaderInternalService = "X-Internal-Service"
	HeaderInternalKey     = "X-Internal-Key"
	HeaderRequestID       = "X-Request-ID"
	HeaderPayloadEncoding = "X-Payload-Encoding"
)

const (
	defaultTimeout  = 5 * time.Second
	maxResponseBody = 4 << 20
	maxErrorBody    = 200 // bytes del cuerpo remoto en Error()
)

var (
	// ErrRemoteTimeout la llamada superó su timeout.
	ErrRemoteTimeout = errors.New("interservice: timeout")
	// ErrUnknownService no hay URL base configurada para el servicio.
	ErrUnknownService = errors.New("interservice: servicio desconocido")
	// ErrMissingCredentials el llamador no trae credenciales válidas para su modo.
	ErrMissingCredentials = errors.New("interservice: credenciales de llamador ausentes")
)

// RemoteError respuesta no exitosa (o fallo de transporte) de un servicio par.
// Status y Body son los del servicio remoto para que puedan reenviarse tal cual.
type RemoteError struct {
	Service string
	Status  int
	Body    []byte
	Err     error // causa de transporte; nil si el remoto respondió
}

func (e *RemoteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Service, e.Err)
	}
	return fmt.Sprintf("%s respondió %d: %s", e.Service, e.Status, clip(e.Body, maxErrorBody))
}

// clip resume un cuerpo remoto para mensajes de error: UTF-8 válido y corte en
// frontera de runa.
func clip(raw []byte, n int) string {
	s := strings.ToValidUTF8(string(raw), "\uFFFD")
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

func (e *RemoteError) Unwrap() error { return e.Err }

// Retryable indica si reintentar puede tener éxito: fallos de transporte, 5xx, 408 y 429.
// El resto de 4xx son definitivos.
func (e *RemoteError) Retryable() bool {
	if e.Err != nil {
		return true
	}
	if e.Status >= 500 {
		return true
	}
	return e.Status == http.StatusRequestTimeout || e.Status == http.StatusTooManyRequests
}

// Config del cliente.
type Config struct {
	BaseURLs    map[string]string // servicio -> URL base
	InternalKey string            // credencial compartida para llamadas de servicio
	Timeout     time.Duration
	Transport   http.RoundTripper // nil = transporte instrumentado con otelhttp
	Log         *logger.Logger
}

// Client cliente reutilizable para todos los servicios pares.
type Client struct {
	baseURLs    map[string]string
	internalKey string
	timeout     time.Duration
	http        *http.Client
	log         *logger.Logger
}

// Request llamada saliente. Caller es obligatorio y decide los headers de identidad.
type Request struct {
	Service string
	Method  string
	Path    string
	Query   url.Values
	Caller  entity.Caller
	Body    Body // nil = sin cuerpo
}

// Response respuesta 2xx.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// New construye el cliente.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	log := cfg.Log
	if log == nil {
		log = logger.Nop()
	}
	transport := cfg.Transport
	if transport == nil {
		transport = telemetry.NewTracedTransport(nil)
	}
	urls := make(map[string]string, len(cfg.BaseURLs))
	for k, v := range cfg.BaseURLs {
		if v != "" {
			urls[k] = strings.TrimRight(v, "/")
		}
	}
	return &Client{
		baseURLs:    urls,
		internalKey: cfg.InternalKey,
		timeout:     timeout,
		http:        &http.Client{Transport: transport},
		log:         log.Component("interservice"),
	}
}

// Do ejecuta la llamada con el timeout del cliente. Cualquier respuesta fuera de 2xx
// se devuelve como *RemoteError con el status y el cuerpo originales.
func (c *Client) Do(ctx context.Context, r Request) (*Response, error) {
	base, ok := c.baseURLs[r.Service]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, r.Service)
	}

	var (
		body        io.Reader
		contentType string
		extra       map[string]string
	)
	if r.Body != nil {
		var err error
		body, contentType, extra, err = r.Body.encode()
		if err != nil {
			return nil, fmt.Errorf("interservice: codificar payload: %w", err)
		}
	}

	target := base + r.Path
	if len(r.Query) > 0 {
		target += "?" + r.Query.Encode()
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, r.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("interservice: crear request: %w", err)
	}
	if err := c.identify(req, r.Caller); err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range extra {
		req.Header.Set(k, v)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.transportError(ctx, r.Service, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, c.transportError(ctx, r.Service, err)
	}

	c.log.Debug().
		Str("peer", r.Service).
		Str("method", r.Method).
		Str("path", r.Path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("llamada a servicio par")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RemoteError{Service: r.Service, Status: resp.StatusCode, Body: raw}
	}
	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: raw}, nil
}

// identify pone los headers de identidad según el modo del llamador. Nunca ambos.
func (c *Client) identify(req *http.Request, caller entity.Caller) error {
	switch caller.Kind {
	case entity.CallerUser:
		if caller.BearerToken == "" {
			return fmt.Errorf("%w: token de usuario vacío", ErrMissingCredentials)
		}
		req.Header.Set("Authorization", "Bearer "+caller.BearerToken)
	case entity.CallerService:
		if caller.Service == "" || c.internalKey == "" {
			return fmt.Errorf("%w: servicio o clave interna vacíos", ErrMissingCredentials)
		}
		req.Header.Set(HeaderInternalService, caller.Service)
		req.Header.Set(HeaderInternalKey, c.internalKey)
		req.Header.Set(HeaderRequestID, uuid.NewString())
	default:
		return fmt.Errorf("%w: modo %q", ErrMissingCredentials, caller.Kind)
	}
	return nil
}

func (c *Client) transportError(parent context.Context, service string, err error) error {
	// Cancelación del llamador: no es un fallo del remoto.
	if parent.Err() != nil {
		return parent.Err()
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		c.log.Warn().Str("peer", service).Dur("timeout", c.timeout).Msg("timeout en servicio par")
		return &RemoteError{Service: service, Status: http.StatusGatewayTimeout, Err: ErrRemoteTimeout}
	}
	c.log.Warn().Err(err).Str("peer", service).Msg("servicio par no disponible")
	return &RemoteError{Service: service, Status: http.StatusBadGateway, Err: err}
}
