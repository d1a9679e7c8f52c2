package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPNotifier publishes envelopes to a RabbitMQ topic exchange. The mail
// service consumes them with routing keys EventTransferNotice and
// EventLimitExceeded.
type AMQPNotifier struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	loc      *time.Location
}

func NewAMQPNotifier(url, exchange string, loc *time.Location) (*AMQPNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPNotifier{conn: conn, ch: ch, exchange: exchange, loc: loc}, nil
}

func (n *AMQPNotifier) SendTransferNotice(ctx context.Context, guardianEmail string, notice TransferNotice) error {
	return n.publish(ctx, Envelope{
		Event:   EventTransferNotice,
		To:      guardianEmail,
		Message: ComposeTransferNotice(notice, n.loc),
		Notice:  notice,
		SentAt:  time.Now().UTC(),
	})
}

func (n *AMQPNotifier) SendLimitExceededNotice(ctx context.Context, guardianEmail string, notice LimitNotice) error {
	return n.publish(ctx, Envelope{
		Event:   EventLimitExceeded,
		To:      guardianEmail,
		Message: ComposeLimitExceededNotice(notice, n.loc),
		Notice:  notice,
		SentAt:  time.Now().UTC(),
	})
}

func (n *AMQPNotifier) publish(ctx context.Context, env Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return n.ch.PublishWithContext(ctx, n.exchange, env.Event, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    env.SentAt,
		Type:         env.Event,
		Body:         b,
	})
}

func (n *AMQPNotifier) Close() error {
	if n.ch != nil {
		_ = n.ch.Close()
	}
	if n.conn != nil {
		return n.conn.Close()
	}
	return nil
}
