package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/middleware"
)

const publishTimeout = 3 * time.Second

// Publisher emits cart lifecycle events. It implements cart.Notifier.
type Publisher struct {
	ch        Channel
	producer  string
	sequences SequenceRepository
	now       func() time.Time
}

var _ cart.Notifier = (*Publisher)(nil)

type PublisherOptions struct {
	Producer string
	// Sequences numbers events per session. Defaults to an in-memory counter.
	Sequences SequenceRepository
}

func NewPublisher(conn *amqp.Connection, opts PublisherOptions) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	p, err := newPublisher(ch, opts)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}
	return p, nil
}

func newPublisher(ch Channel, opts PublisherOptions) (*Publisher, error) {
	if err := declareEventsExchange(ch); err != nil {
		return nil, fmt.Errorf("declare events exchange: %w", err)
	}

	producer := opts.Producer
	if producer == "" {
		producer = storefrontServiceName
	}
	sequences := opts.Sequences
	if sequences == nil {
		sequences = NewMemorySequenceRepository()
	}
	return &Publisher{ch: ch, producer: producer, sequences: sequences, now: time.Now}, nil
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}

func (p *Publisher) PublishCartCheckedOut(ctx context.Context, ev cart.CheckoutEvent) error {
	seq, err := p.nextSequence(ctx, ev.SessionID)
	if err != nil {
		return err
	}
	env := newCartCheckedOutEvent(metaFrom(ctx), p.producer, seq, ev, p.now().UTC())
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal CartCheckedOut envelope: %w", err)
	}
	return p.publishJSON(ctx, CartCheckedOutRoutingKey, env.EventID, body)
}

func (p *Publisher) PublishCartReset(ctx context.Context, ev cart.ResetEvent) error {
	seq, err := p.nextSequence(ctx, ev.SessionID)
	if err != nil {
		return err
	}
	env := newCartResetEvent(metaFrom(ctx), p.producer, seq, ev, p.now().UTC())
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal CartReset envelope: %w", err)
	}
	return p.publishJSON(ctx, CartResetRoutingKey, env.EventID, body)
}

func (p *Publisher) nextSequence(ctx context.Context, sessionID string) (int64, error) {
	seqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	seq, err := p.sequences.NextSequence(seqCtx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("sequence for %s: %w", sessionID, err)
	}
	return seq, nil
}

func (p *Publisher) publishJSON(ctx context.Context, routingKey, messageID string, body []byte) error {
	// The request that triggered the event may already be finished.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	err := p.ch.PublishWithContext(
		pubCtx,
		EventsExchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    messageID,
			Timestamp:    p.now().UTC(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	return nil
}

func metaFrom(ctx context.Context) EventMeta {
	return EventMeta{CorrelationID: middleware.GetCorrelationID(ctx)}
}
