package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func ConnectMongoDB(ctx context.Context, uri, database string) (*mongo.Database, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(20)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client.Database(database), nil
}

// cartDocument stores the same JSON payload as the other backends so a cart
// can move between them unchanged.
type cartDocument struct {
	Key       string    `bson:"_id"`
	Payload   string    `bson:"payload"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type MongoStorage struct {
	collection *mongo.Collection
	key        string
	ttl        time.Duration
}

// NewMongoStorage keeps carts until they are cleared. A positive ttl lets
// CreateIndexes expire carts untouched for that long.
func NewMongoStorage(db *mongo.Database, key string, ttl time.Duration) *MongoStorage {
	return &MongoStorage{
		collection: db.Collection("carts"),
		key:        key,
		ttl:        ttl,
	}
}

func (m *MongoStorage) Load(ctx context.Context) (domain.Cart, error) {
	var doc cartDocument
	err := m.collection.FindOne(ctx, bson.M{"_id": m.key}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	return decodeCart([]byte(doc.Payload))
}

func (m *MongoStorage) Save(ctx context.Context, cart domain.Cart) error {
	data, err := encodeCart(cart)
	if err != nil {
		return err
	}

	update := bson.M{"$set": bson.M{
		"payload":    string(data),
		"updated_at": time.Now().UTC(),
	}}
	opts := options.Update().SetUpsert(true)

	if _, err := m.collection.UpdateOne(ctx, bson.M{"_id": m.key}, update, opts); err != nil {
		return fmt.Errorf("failed to upsert cart: %w", err)
	}
	return nil
}

// CreateIndexes installs the expiry index when a ttl is configured and is a
// no-op otherwise.
func (m *MongoStorage) CreateIndexes(ctx context.Context) error {
	index, ok := expiryIndex(m.ttl)
	if !ok {
		return nil
	}

	if _, err := m.collection.Indexes().CreateOne(ctx, index); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

func expiryIndex(ttl time.Duration) (mongo.IndexModel, bool) {
	seconds := int32(min(ttl/time.Second, math.MaxInt32))
	if seconds < 1 {
		return mongo.IndexModel{}, false
	}
	return mongo.IndexModel{
		Keys:    bson.D{{Key: "updated_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(seconds),
	}, true
}
