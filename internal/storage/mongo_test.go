package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/bson"
)

func setupTestMongo(t *testing.T) *MongoStorage {
	return setupTestMongoWithTTL(t, 0)
}

func setupTestMongoWithTTL(t *testing.T, ttl time.Duration) *MongoStorage {
	if testing.Short() {
		t.Skip("skipping MongoDB container test in short mode")
	}
	ctx := context.Background()

	mongoContainer, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := mongoContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	db, err := ConnectMongoDB(ctx, uri, "testdb")
	require.NoError(t, err)
	t.Cleanup(func() { db.Client().Disconnect(ctx) })

	s := NewMongoStorage(db, DefaultKey, ttl)
	require.NoError(t, s.CreateIndexes(ctx))
	return s
}

func TestMongoStorage(t *testing.T) {
	exerciseStorage(t, setupTestMongo(t))
}

func TestMongoStorage_CorruptPayload(t *testing.T) {
	s := setupTestMongo(t)
	ctx := context.Background()

	_, err := s.collection.InsertOne(ctx, cartDocument{Key: DefaultKey, Payload: "{oops"})
	require.NoError(t, err)

	_, err = s.Load(ctx)
	assert.ErrorIs(t, err, ErrCorruptCart)
}

func TestExpiryIndex(t *testing.T) {
	_, ok := expiryIndex(0)
	assert.False(t, ok, "carts persist until cleared by default")

	_, ok = expiryIndex(500 * time.Millisecond)
	assert.False(t, ok)

	index, ok := expiryIndex(48 * time.Hour)
	require.True(t, ok)
	assert.Equal(t, int32(48*60*60), *index.Options.ExpireAfterSeconds)
}

func expiringIndexes(t *testing.T, s *MongoStorage) []bson.M {
	cursor, err := s.collection.Indexes().List(context.Background())
	require.NoError(t, err)

	var all []bson.M
	require.NoError(t, cursor.All(context.Background(), &all))
	var out []bson.M
	for _, idx := range all {
		if _, ok := idx["expireAfterSeconds"]; ok {
			out = append(out, idx)
		}
	}
	return out
}

func TestMongoStorage_NoExpiryByDefault(t *testing.T) {
	s := setupTestMongo(t)
	require.NoError(t, s.Save(context.Background(), sampleCart()))
	assert.Empty(t, expiringIndexes(t, s))
}

func TestMongoStorage_ExpiryWhenConfigured(t *testing.T) {
	s := setupTestMongoWithTTL(t, 24*time.Hour)
	require.NoError(t, s.Save(context.Background(), sampleCart()))
	assert.Len(t, expiringIndexes(t, s), 1)
}
