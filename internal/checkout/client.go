package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/pkg/circuitbreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// IdempotencyKeyHeader carries the per-order key a deduplicating server can use.
const IdempotencyKeyHeader = "Idempotency-Key"

const maxResponseBody = 1 << 20 // 1MB

// OrderCreator submits an order request to the order API.
type OrderCreator interface {
	CreateOrder(ctx context.Context, req domain.OrderRequest, idempotencyKey string) (*domain.Order, error)
}

// OrderClient talks to POST {API_BASE}/orders/. It sets no timeout of its
// own; deadlines come from ctx.
type OrderClient struct {
	baseURL string
	client  *http.Client
	breaker *circuitbreaker.Breaker[*domain.Order]
}

type ClientOption func(*OrderClient)

func WithHTTPClient(c *http.Client) ClientOption {
	return func(o *OrderClient) { o.client = c }
}

// WithBreaker guards the order API. Only transport failures and 5xx
// responses count against it.
func WithBreaker(s circuitbreaker.Settings) ClientOption {
	return func(o *OrderClient) {
		s.IsSuccessful = func(err error) bool { return err == nil || !ambiguous(err) }
		o.breaker = circuitbreaker.New[*domain.Order](s)
	}
}

func NewOrderClient(baseURL string, opts ...ClientOption) *OrderClient {
	c := &OrderClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *OrderClient) CreateOrder(ctx context.Context, req domain.OrderRequest, idempotencyKey string) (*domain.Order, error) {
	if c.breaker == nil {
		return c.createOrder(ctx, req, idempotencyKey)
	}

	order, err := c.breaker.Execute(func() (*domain.Order, error) {
		return c.createOrder(ctx, req, idempotencyKey)
	})
	if circuitbreaker.IsOpen(err) {
		return nil, &NetworkError{Err: err}
	}
	return order, err
}

func (c *OrderClient) createOrder(ctx context.Context, req domain.OrderRequest, idempotencyKey string) (*domain.Order, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal order request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/orders/", bytes.NewReader(body))
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if idempotencyKey != "" {
		httpReq.Header.Set(IdempotencyKeyHeader, idempotencyKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, &NetworkError{Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ApiError{
			StatusCode: resp.StatusCode,
			Message:    detailMessage(payload),
		}
	}

	var order domain.Order
	if err := json.Unmarshal(payload, &order); err != nil {
		return nil, &ApiError{StatusCode: resp.StatusCode, Message: DefaultFailureMessage, Err: fmt.Errorf("decode order: %w", err)}
	}
	if order.ID == "" {
		return nil, &ApiError{StatusCode: resp.StatusCode, Message: DefaultFailureMessage, Err: errors.New("order response has no id")}
	}
	return &order, nil
}

// detailMessage extracts {"detail": "..."} from an error body. A FastAPI
// validation list contributes its first "msg".
func detailMessage(payload []byte) string {
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(payload, &body); err != nil || len(body.Detail) == 0 {
		return DefaultFailureMessage
	}

	var text string
	if err := json.Unmarshal(body.Detail, &text); err == nil {
		if text = strings.TrimSpace(text); text != "" {
			return text
		}
		return DefaultFailureMessage
	}

	var list []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(body.Detail, &list); err == nil {
		for _, entry := range list {
			if msg := strings.TrimSpace(entry.Msg); msg != "" {
				return msg
			}
		}
	}
	return DefaultFailureMessage
}
