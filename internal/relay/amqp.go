package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/mr1hm/disaster-sentinel/internal/models"
)

type amqpPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPSink publishes alert payloads to a topic exchange with routing key
// disaster.alert.<type>.
type AMQPSink struct {
	conn     *amqp.Connection
	ch       amqpPublisher
	exchange string
}

func NewAMQPSink(url, exchange string) (*AMQPSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("error connecting to amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("error opening amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("error declaring exchange %s: %w", exchange, err)
	}
	return &AMQPSink{conn: conn, ch: ch, exchange: exchange}, nil
}

func (a *AMQPSink) Name() string { return "amqp" }

func routingKey(t models.DisasterType) string {
	return EventTypeAlert + "." + strings.ToLower(string(t))
}

func (a *AMQPSink) Send(ctx context.Context, p models.AlertPayload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("serialize alert payload: %w", err)
	}
	return a.ch.PublishWithContext(ctx, a.exchange, routingKey(p.DisasterType), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    p.ID,
		Timestamp:    p.Timestamp,
		Type:         EventTypeAlert,
		Body:         body,
	})
}

func (a *AMQPSink) Close() error {
	err := a.ch.Close()
	if a.conn != nil {
		if cerr := a.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
