package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

var (
	ErrCartNotFound = errors.New("cart not found")
	ErrCorruptCart  = errors.New("corrupt cart payload")
)

// DefaultKey is the storage key the cart lives under when none is configured.
const DefaultKey = "storefront_cart"

// CartStorage persists a single cart under one key.
// Load returns ErrCartNotFound when nothing was saved yet and an error
// wrapping ErrCorruptCart when the stored payload cannot be decoded.
type CartStorage interface {
	Load(ctx context.Context) (domain.Cart, error)
	Save(ctx context.Context, cart domain.Cart) error
}

// encodeCart renders the persisted representation: a JSON array of line items.
func encodeCart(cart domain.Cart) ([]byte, error) {
	data, err := json.Marshal(cart.Clone())
	if err != nil {
		return nil, fmt.Errorf("marshal cart failed: %w", err)
	}
	return data, nil
}

func decodeCart(data []byte) (domain.Cart, error) {
	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptCart, err)
	}
	return cart.Clone(), nil
}
