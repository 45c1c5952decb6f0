// Package events publishes settled invoices to RabbitMQ so back-office
// consumers (reports, kitchen displays) can follow terminal activity.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kiwari-pos/terminal/internal/payment"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	Exchange       = "pos_events"
	publishTimeout = 5 * time.Second
)

// Channel is the part of *amqp.Channel the publisher uses.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends persistent JSON messages to the pos_events topic exchange.
type Publisher struct {
	conn *amqp.Connection
	ch   Channel
	now  func() time.Time
}

// Dial connects to url and declares the exchange.
func Dial(url string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	p, err := NewPublisher(ch)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

// NewPublisher declares the exchange on an open channel.
func NewPublisher(ch Channel) (*Publisher, error) {
	if err := ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare %s: %w", Exchange, err)
	}
	return &Publisher{ch: ch, now: time.Now}, nil
}

// Close shuts the channel and connection.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// RoutingKey is invoice.settled.<mode>, e.g. invoice.settled.takeaway.
func RoutingKey(r payment.Receipt) string {
	return "invoice.settled." + strings.ToLower(string(r.Mode))
}

// PublishSettled implements payment.Publisher.
func (p *Publisher) PublishSettled(ctx context.Context, r payment.Receipt) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal receipt: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	msg := amqp.Publishing{
		DeliveryMode:  amqp.Persistent,
		ContentType:   "application/json",
		Body:          body,
		MessageId:     r.InvoiceNumber,
		CorrelationId: r.OrderID,
		Timestamp:     p.now().UTC(),
		Headers: amqp.Table{
			"x-source":       "terminal-service",
			"x-terminal-id":  r.TerminalID.String(),
			"x-organization": r.OrganizationID,
		},
	}
	if err := p.ch.PublishWithContext(ctx, Exchange, RoutingKey(r), false, false, msg); err != nil {
		return fmt.Errorf("publish %s: %w", r.InvoiceNumber, err)
	}
	return nil
}
