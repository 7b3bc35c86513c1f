package storage

import (
	"context"
	"sync"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

// MemoryStorage keeps the encoded cart in process memory. It holds raw bytes
// so it behaves exactly like the durable backends, corrupt payloads included.
type MemoryStorage struct {
	mu    sync.RWMutex
	data  []byte
	saved bool
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (m *MemoryStorage) Load(_ context.Context) (domain.Cart, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.saved {
		return nil, ErrCartNotFound
	}
	return decodeCart(m.data)
}

func (m *MemoryStorage) Save(_ context.Context, cart domain.Cart) error {
	data, err := encodeCart(cart)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = data
	m.saved = true
	return nil
}

// SetRaw stores payload verbatim, bypassing encoding.
func (m *MemoryStorage) SetRaw(payload []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append([]byte(nil), payload...)
	m.saved = true
}

// Raw returns the stored payload and whether anything was saved.
func (m *MemoryStorage) Raw() ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]byte(nil), m.data...), m.saved
}
