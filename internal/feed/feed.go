package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
)

// Message is the body published for every committed match change.
type Message struct {
	Kind       string      `json:"kind"`
	MatchID    string      `json:"match_id"`
	LeagueID   string      `json:"league_id"`
	SeasonID   string      `json:"season_id"`
	Version    int64       `json:"version"`
	Payload    interface{} `json:"payload,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// RoutingKey returns the topic a message of kind is published under,
// e.g. "match.goal" or "match.finished".
func RoutingKey(kind string) string {
	return "match." + kind
}

// Publisher sends match changes to a topic exchange.
type Publisher struct {
	exchange string
	conn     *amqp.Connection

	mu      sync.Mutex
	channel *amqp.Channel
}

// Dial connects to the broker and declares a durable topic exchange.
func Dial(url, exchange string) (*Publisher, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat: 60 * time.Second,
		Locale:    "en_US",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	if err := channel.ExchangeDeclare(
		exchange, // name
		"topic",  // kind
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	return &Publisher{exchange: exchange, conn: conn, channel: channel}, nil
}

// Publish sends msg as persistent JSON under its kind's routing key.
func (p *Publisher) Publish(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	pub, err := encode(msg)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.channel.Publish(p.exchange, RoutingKey(msg.Kind), false, false, pub); err != nil {
		return fmt.Errorf("publishing %s for match %s: %w", msg.Kind, msg.MatchID, err)
	}
	return nil
}

func encode(msg Message) (amqp.Publishing, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshaling %s message: %w", msg.Kind, err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.New().String(),
		Timestamp:    msg.OccurredAt,
		Type:         msg.Kind,
		Body:         body,
	}, nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
	}
	return p.conn.Close()
}
