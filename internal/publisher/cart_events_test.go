package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_cart/storefront/internal/cart"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/storage"
	"github.com/fjod/go_cart/storefront/pkg/logger"
	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
)

type MockWriter struct {
	mu       sync.Mutex
	messages []kafkaGo.Message
	err      error
	closed   bool
}

func (w *MockWriter) WriteMessages(_ context.Context, msgs ...kafkaGo.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *MockWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *MockWriter) written() []kafkaGo.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafkaGo.Message(nil), w.messages...)
}

func lamp() domain.ProductRef {
	return domain.ProductRef{ID: 7, Name: "Lamp", Slug: "lamp", Price: decimal.RequireFromString("30.25")}
}

func TestPublisher_PublishesEveryMutation(t *testing.T) {
	w := &MockWriter{}
	sut := newCartEventPublisher(w, "storefront_cart", 8, logger.Discard())

	store := cart.NewStore(storage.NewMemoryStorage())
	store.Subscribe(sut.Listen)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sut.Run(ctx)
		close(done)
	}()

	store.AddToCart(context.Background(), lamp(), 2)
	store.ClearCart(context.Background())

	require.Eventually(t, func() bool { return len(w.written()) == 2 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	msgs := w.written()
	assert.Equal(t, "storefront_cart", string(msgs[0].Key))
	assert.Equal(t, []kafkaGo.Header{{Key: "event_type", Value: []byte(EventTypeCartUpdated)}}, msgs[0].Headers)

	var first CartEvent
	require.NoError(t, json.Unmarshal(msgs[0].Value, &first))
	assert.Equal(t, EventTypeCartUpdated, first.Type)
	assert.NotEmpty(t, first.EventID)
	assert.Equal(t, 2, first.ItemCount)
	assert.Equal(t, "60.5", first.Subtotal.String())
	assert.Equal(t, []domain.OrderItem{{ProductID: 7, Quantity: 2}}, first.Items)

	var second CartEvent
	require.NoError(t, json.Unmarshal(msgs[1].Value, &second))
	assert.Equal(t, 0, second.ItemCount)
	assert.Empty(t, second.Items)
	assert.NotEqual(t, first.EventID, second.EventID)

	assert.True(t, w.closed)
}

func TestPublisher_FullBufferDropsWithoutBlocking(t *testing.T) {
	w := &MockWriter{}
	sut := newCartEventPublisher(w, "k", 1, logger.Discard())

	finished := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			sut.Listen(domain.Cart{{ID: 1, Quantity: i + 1, Price: decimal.NewFromInt(1)}})
		}
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Listen blocked on a full buffer")
	}
	assert.Len(t, sut.events, 1)
}

func TestPublisher_WriteErrorsAreLoggedAndSkipped(t *testing.T) {
	w := &MockWriter{err: errors.New("broker unavailable")}
	sut := newCartEventPublisher(w, "k", 4, logger.Discard())

	sut.Listen(domain.Cart{})
	sut.Listen(domain.Cart{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sut.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(sut.events) == 0 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done
	assert.Empty(t, w.written())
}

func setupKafka(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	kafkaContainer, err := kafka.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	})

	brokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers, "broker address should not be empty")
	return brokers[0]
}

func createTopic(t *testing.T, brokerAddr, topic string) {
	conn, err := kafkaGo.Dial("tcp", brokerAddr)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	controllerConn, err := kafkaGo.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafkaGo.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil {
		t.Logf("topic creation error (may already exist): %v", err)
	}
}

func TestPublisher_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping kafka integration test in short mode")
	}

	broker := setupKafka(t)
	const topic = "storefront-cart-events-test"
	createTopic(t, broker, topic)

	sut := NewCartEventPublisher(topic, "storefront_cart", logger.Discard(), broker)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sut.Run(ctx)

	sut.Listen(domain.Cart{{ID: 7, Quantity: 1, Price: decimal.NewFromInt(30)}})

	reader := kafkaGo.NewReader(kafkaGo.ReaderConfig{
		Brokers:   []string{broker},
		Topic:     topic,
		Partition: 0,
		MaxWait:   500 * time.Millisecond,
	})
	defer reader.Close()

	readCtx, readCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer readCancel()
	msg, err := reader.ReadMessage(readCtx)
	require.NoError(t, err)

	var ev CartEvent
	require.NoError(t, json.Unmarshal(msg.Value, &ev))
	assert.Equal(t, "storefront_cart", string(msg.Key))
	assert.Equal(t, 1, ev.ItemCount)
}
