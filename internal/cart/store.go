package cart

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/metrics"
	"github.com/fjod/go_cart/storefront/internal/storage"
	"github.com/fjod/go_cart/storefront/pkg/logger"
)

// Listener receives the cart as it stands after a mutation. Each listener
// gets its own copy.
type Listener func(cart domain.Cart)

// Store is the only reader and writer of the persisted cart.
//
// Reads never fail: a missing or unreadable cart is an empty cart. Writes
// that the storage rejects are logged and counted but not returned, so the
// caller always gets the cart it asked for, even if it was not persisted.
type Store struct {
	storage storage.CartStorage
	log     *slog.Logger
	metrics *metrics.Metrics

	mu sync.Mutex // serializes load-modify-save

	subMu     sync.RWMutex
	listeners map[uint64]Listener
	nextSubID uint64
}

type Option func(*Store)

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

func NewStore(st storage.CartStorage, opts ...Option) *Store {
	s := &Store{
		storage:   st,
		log:       logger.Discard(),
		listeners: make(map[uint64]Listener),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) GetCart(ctx context.Context) domain.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// AddToCart increments the quantity of an existing item by qty, or appends a
// new item with quantity qty. A qty below 1 counts as 1 and the sum
// saturates at math.MaxInt.
func (s *Store) AddToCart(ctx context.Context, ref domain.ProductRef, qty int) domain.Cart {
	if qty < 1 {
		qty = 1
	}
	return s.mutate(ctx, "add", func(cart domain.Cart) domain.Cart {
		if idx := cart.IndexOf(ref.ID); idx >= 0 {
			cart[idx].Quantity = domain.AddQuantity(cart[idx].Quantity, qty)
			return cart
		}
		return append(cart, domain.NewLineItem(ref, qty))
	})
}

// UpdateQuantity sets the item's quantity to max(1, quantity). Unknown ids
// leave the cart as it is.
func (s *Store) UpdateQuantity(ctx context.Context, id int64, quantity int) domain.Cart {
	if quantity < 1 {
		quantity = 1
	}
	return s.mutate(ctx, "update", func(cart domain.Cart) domain.Cart {
		if idx := cart.IndexOf(id); idx >= 0 {
			cart[idx].Quantity = quantity
		}
		return cart
	})
}

func (s *Store) RemoveFromCart(ctx context.Context, id int64) domain.Cart {
	return s.mutate(ctx, "remove", func(cart domain.Cart) domain.Cart {
		if idx := cart.IndexOf(id); idx >= 0 {
			return append(cart[:idx], cart[idx+1:]...)
		}
		return cart
	})
}

func (s *Store) ClearCart(ctx context.Context) {
	s.mutate(ctx, "clear", func(domain.Cart) domain.Cart {
		return domain.Cart{}
	})
}

// SaveCart replaces the stored cart. Duplicate ids are merged and quantities
// below 1 lifted, so the stored cart always holds the invariants.
func (s *Store) SaveCart(ctx context.Context, cart domain.Cart) domain.Cart {
	return s.mutate(ctx, "save", func(domain.Cart) domain.Cart {
		return cart.Normalize()
	})
}

// Subscribe registers l for every subsequent mutation and returns a function
// that removes it. Listeners run synchronously on the mutating goroutine,
// after the store lock is released, so they may call back into the store.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.listeners[id] = l
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.listeners, id)
			s.subMu.Unlock()
		})
	}
}

func (s *Store) mutate(ctx context.Context, op string, fn func(domain.Cart) domain.Cart) domain.Cart {
	s.mu.Lock()
	cart := fn(s.load(ctx))
	s.save(ctx, op, cart)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.CartMutations.WithLabelValues(op).Inc()
	}
	s.notify(cart)
	return cart.Clone()
}

func (s *Store) load(ctx context.Context) domain.Cart {
	cart, err := s.storage.Load(ctx)
	if err == nil {
		return cart.Normalize()
	}
	if !errors.Is(err, storage.ErrCartNotFound) {
		s.log.Warn("cart read failed, using empty cart", "error", err)
		if s.metrics != nil {
			s.metrics.CartReadFailures.Inc()
		}
	}
	return domain.Cart{}
}

func (s *Store) save(ctx context.Context, op string, cart domain.Cart) {
	if err := s.storage.Save(ctx, cart); err != nil {
		s.log.Error("cart save failed", "op", op, "items", len(cart), "error", err)
		if s.metrics != nil {
			s.metrics.CartSaveFailures.Inc()
		}
	}
}

func (s *Store) notify(cart domain.Cart) {
	s.subMu.RLock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.subMu.RUnlock()

	for _, l := range listeners {
		l(cart.Clone())
	}
}
