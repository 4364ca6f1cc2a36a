// Package notify publishes customer messages and handoff-status changes
// to the message broker. The conversational layer consumes both queues
// and owns the actual delivery to the customer's channel.
package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

const (
	customerQueue = "notify.customer"
	handoffQueue  = "notify.handoff"
)

type customerMessage struct {
	CustomerKey string `json:"customer_key"`
	Message     string `json:"message"`
	SentAt      string `json:"sent_at"`
}

type handoffMessage struct {
	CustomerKey string `json:"customer_key"`
	Status      string `json:"status"`
	SetAt       string `json:"set_at"`
}

// Publisher holds one connection and re-declares the durable queues on
// every (re)connect. Messages are persistent so a broker restart does
// not drop a pending handoff.
type Publisher struct {
	url string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func New(url string) *Publisher { return &Publisher{url: url} }

func (p *Publisher) Notify(ctx context.Context, customerKey, message string) error {
	return p.publish(ctx, customerQueue, customerMessage{
		CustomerKey: customerKey,
		Message:     message,
		SentAt:      time.Now().UTC().Format(time.RFC3339),
	})
}

func (p *Publisher) SetHandoffStatus(ctx context.Context, customerKey, status string) error {
	return p.publish(ctx, handoffQueue, handoffMessage{
		CustomerKey: customerKey,
		Status:      status,
		SetAt:       time.Now().UTC().Format(time.RFC3339),
	})
}

func (p *Publisher) publish(ctx context.Context, queue string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ch, err := p.channel()
	if err != nil {
		log.Error().Err(err).Str("queue", queue).Msg("broker channel unavailable")
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queue, false, false, pub); err != nil {
		p.reset()
		log.Error().Err(err).Str("queue", queue).Msg("publish failed")
		return err
	}
	return nil
}

func (p *Publisher) channel() (*amqp.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil && !p.conn.IsClosed() {
		return p.ch, nil
	}
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	for _, q := range []string{customerQueue, handoffQueue} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, err
		}
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *Publisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
}

// Close releases the broker connection.
func (p *Publisher) Close() { p.reset() }
