package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/metrics"
	"github.com/fjod/go_cart/storefront/pkg/logger"
	"github.com/google/uuid"
)

// CartSource is the part of the cart store checkout needs.
type CartSource interface {
	GetCart(ctx context.Context) domain.Cart
	ClearCart(ctx context.Context)
}

type Receipt struct {
	OrderID domain.OrderID `json:"order_id"`
	Message string         `json:"message"`
}

// TransitionFunc observes the status changes of a single checkout attempt.
type TransitionFunc func(from, to domain.CheckoutStatus)

// Submitter turns the current cart into an order. One Submit runs at a time;
// a Submit that finds another in flight fails with ErrCheckoutInProgress.
//
// Every attempt sends an Idempotency-Key. When an attempt ends in a way that
// leaves the server side unknown (transport failure, 5xx, unreadable 2xx) and
// the next attempt would send the identical request, the key is reused.
type Submitter struct {
	cart    CartSource
	orders  OrderCreator
	log     *slog.Logger
	metrics *metrics.Metrics
	newKey  func() string
	onStep  TransitionFunc

	inFlight atomic.Bool

	mu      sync.Mutex
	pending *pendingAttempt
}

type pendingAttempt struct {
	key         string
	fingerprint uint64
}

type Option func(*Submitter)

func WithLogger(l *slog.Logger) Option {
	return func(s *Submitter) { s.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Submitter) { s.metrics = m }
}

// WithKeyGenerator replaces the uuid idempotency key source.
func WithKeyGenerator(fn func() string) Option {
	return func(s *Submitter) { s.newKey = fn }
}

func WithTransitionFunc(fn TransitionFunc) Option {
	return func(s *Submitter) { s.onStep = fn }
}

func NewSubmitter(cart CartSource, orders OrderCreator, opts ...Option) *Submitter {
	s := &Submitter{
		cart:   cart,
		orders: orders,
		log:    logger.Discard(),
		newKey: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates email and the cart, sends one create-order request and
// clears the cart on success. On any failure the cart is left as it was.
func (s *Submitter) Submit(ctx context.Context, email string) (*Receipt, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.count("in_progress")
		return nil, ErrCheckoutInProgress
	}
	defer s.inFlight.Store(false)

	a := &attempt{status: domain.CheckoutStatusIdle, log: s.log, onStep: s.onStep}
	a.to(domain.CheckoutStatusValidating)

	email = strings.TrimSpace(email)
	if email == "" {
		return nil, s.rejectInput(a, ReasonMissingEmail)
	}

	cart := s.cart.GetCart(ctx)
	if cart.IsEmpty() {
		return nil, s.rejectInput(a, ReasonEmptyCart)
	}

	req := domain.NewOrderRequest(email, cart)
	key, fingerprint := s.idempotencyKey(req)
	log := s.log.With("idempotency_key", key, "items", len(req.Items))

	a.to(domain.CheckoutStatusSubmitting)
	start := time.Now()
	order, err := s.orders.CreateOrder(ctx, req, key)
	if s.metrics != nil {
		s.metrics.CheckoutLatency.Observe(float64(time.Since(start).Milliseconds()))
	}

	if err != nil {
		err = asCheckoutError(err)
		a.to(domain.CheckoutStatusFailed)
		s.settle(err, key, fingerprint)

		var netErr *NetworkError
		if errors.As(err, &netErr) {
			s.count("network_error")
			log.Warn("checkout failed", "error", netErr.Detail())
		} else {
			s.count("api_error")
			log.Warn("checkout rejected", "error", err, "cause", errors.Unwrap(err))
		}
		return nil, err
	}

	s.settle(nil, key, fingerprint)
	a.to(domain.CheckoutStatusSucceeded)
	// the order exists, so the clear must not be cut short by the caller
	s.cart.ClearCart(context.WithoutCancel(ctx))
	s.count("succeeded")
	log.Info("order placed", "order_id", order.ID)

	return &Receipt{
		OrderID: order.ID,
		Message: fmt.Sprintf("Order #%s placed successfully!", order.ID),
	}, nil
}

func (s *Submitter) rejectInput(a *attempt, reason string) error {
	a.to(domain.CheckoutStatusFailed)
	s.count("validation_failed")
	s.log.Info("checkout validation failed", "reason", reason)
	return &ValidationError{Reason: reason}
}

func (s *Submitter) idempotencyKey(req domain.OrderRequest) (string, uint64) {
	var fingerprint uint64
	if data, err := json.Marshal(req); err == nil {
		fingerprint = xxhash.Sum64(data)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil && s.pending.fingerprint == fingerprint {
		return s.pending.key, fingerprint
	}
	return s.newKey(), fingerprint
}

// settle records whether the key of this attempt must survive to the next one.
func (s *Submitter) settle(err error, key string, fingerprint uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil && ambiguous(err) {
		s.pending = &pendingAttempt{key: key, fingerprint: fingerprint}
		return
	}
	s.pending = nil
}

func (s *Submitter) count(outcome string) {
	if s.metrics != nil {
		s.metrics.CheckoutAttempts.WithLabelValues(outcome).Inc()
	}
}

// asCheckoutError keeps ApiError and NetworkError as they are; anything else
// an OrderCreator returns is treated as a failed call.
func asCheckoutError(err error) error {
	var apiErr *ApiError
	var netErr *NetworkError
	if errors.As(err, &apiErr) || errors.As(err, &netErr) {
		return err
	}
	return &NetworkError{Err: err}
}

type attempt struct {
	status domain.CheckoutStatus
	log    *slog.Logger
	onStep TransitionFunc
}

func (a *attempt) to(next domain.CheckoutStatus) {
	if !a.status.CanTransitionTo(next) {
		a.log.Error("checkout status not changed", "from", a.status, "to", next, "error", ErrIllegalTransition)
		return
	}
	prev := a.status
	a.status = next
	a.log.Debug("checkout status changed", "from", prev, "to", next)
	if a.onStep != nil {
		a.onStep(prev, next)
	}
}
