package storage

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisStorage keeps the cart under "cart:<key>". A zero TTL never expires;
// a positive TTL gets up to five minutes of jitter on every save.
type RedisStorage struct {
	client  *redis.Client
	key     string
	baseTTL time.Duration
}

func NewRedisStorage(client *redis.Client, key string, ttl time.Duration) *RedisStorage {
	return &RedisStorage{
		client:  client,
		key:     key,
		baseTTL: ttl,
	}
}

func (r *RedisStorage) Load(ctx context.Context) (domain.Cart, error) {
	data, err := r.client.Get(ctx, cartKey(r.key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	return decodeCart(data)
}

func (r *RedisStorage) Save(ctx context.Context, cart domain.Cart) error {
	data, err := encodeCart(cart)
	if err != nil {
		return err
	}

	if err := r.client.Set(ctx, cartKey(r.key), data, r.ttl()).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisStorage) ttl() time.Duration {
	if r.baseTTL <= 0 {
		return 0
	}
	jitter := time.Duration(rand.Intn(5)) * time.Minute
	return r.baseTTL + jitter
}

func cartKey(key string) string {
	return fmt.Sprintf("cart:%s", key)
}
