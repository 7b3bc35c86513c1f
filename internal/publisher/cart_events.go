package publisher

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

const (
	EventTypeCartUpdated = "cart.updated"

	defaultBuffer = 256
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// CartEvent is the payload of a cart.updated message.
type CartEvent struct {
	EventID    string             `json:"event_id"`
	Type       string             `json:"type"`
	ItemCount  int                `json:"item_count"`
	Subtotal   decimal.Decimal    `json:"subtotal"`
	Items      []domain.OrderItem `json:"items"`
	OccurredAt time.Time          `json:"occurred_at"`
}

func NewCartEvent(cart domain.Cart, at time.Time) CartEvent {
	return CartEvent{
		EventID:    uuid.NewString(),
		Type:       EventTypeCartUpdated,
		ItemCount:  cart.ItemCount(),
		Subtotal:   cart.Subtotal(),
		Items:      cart.OrderItems(),
		OccurredAt: at.UTC(),
	}
}

// CartEventPublisher turns cart mutations into Kafka messages. Listen is
// called on the mutating goroutine and only enqueues; Run does the writing.
type CartEventPublisher struct {
	key    string
	writer messageWriter
	events chan CartEvent
	log    *slog.Logger
	now    func() time.Time
}

func NewCartEventPublisher(topic, key string, log *slog.Logger, brokers ...string) *CartEventPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return newCartEventPublisher(w, key, defaultBuffer, log)
}

func newCartEventPublisher(w messageWriter, key string, buffer int, log *slog.Logger) *CartEventPublisher {
	return &CartEventPublisher{
		key:    key,
		writer: w,
		events: make(chan CartEvent, buffer),
		log:    log,
		now:    time.Now,
	}
}

// Listen matches cart.Listener.
func (p *CartEventPublisher) Listen(cart domain.Cart) {
	ev := NewCartEvent(cart, p.now())
	select {
	case p.events <- ev:
	default:
		p.log.Warn("cart event dropped, publisher buffer full", "event_id", ev.EventID, "item_count", ev.ItemCount)
	}
}

// Run writes queued events until ctx is done, then closes the writer.
func (p *CartEventPublisher) Run(ctx context.Context) {
	defer func() {
		if err := p.writer.Close(); err != nil {
			p.log.Error("failed to close kafka writer", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-p.events:
			if err := p.publish(ctx, ev); err != nil {
				p.log.Error("failed to publish cart event", "event_id", ev.EventID, "error", err)
			}
		}
	}
}

func (p *CartEventPublisher) publish(ctx context.Context, ev CartEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(p.key), // per-cart ordering
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
		},
	}
	return p.writer.WriteMessages(ctx, msg)
}
