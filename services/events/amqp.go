// Package eventsvc publishes domain events on a RabbitMQ broker.
package eventsvc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/rabbitmq/amqp091-go"

	"github.com/plantel/backend/core"
)

const publishTimeout = 5 * time.Second

type amqpPublisher struct {
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
	queue    string
	logger   core.Logger
}

var _ core.EventPublisher = (*amqpPublisher)(nil)

// NewAMQPPublisher dials the broker and declares a durable direct exchange
// and queue, bound with the queue name as routing key.
func NewAMQPPublisher(conf *core.Config, logger core.Logger) (*amqpPublisher, error) {
	conn, err := amqp091.Dial(conf.Broker.URL)
	if err != nil {
		return nil, errors.Wrap(err, "dialing broker")
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "opening channel")
	}

	pub := &amqpPublisher{
		conn:     conn,
		channel:  channel,
		exchange: conf.Broker.Exchange,
		queue:    conf.Broker.Queue,
		logger:   logger,
	}
	if err := pub.setup(); err != nil {
		_ = pub.Close()
		return nil, err
	}
	return pub, nil
}

func (pub *amqpPublisher) setup() error {
	if err := pub.channel.ExchangeDeclare(pub.exchange, "direct", true, false, false, false, nil); err != nil {
		return errors.Wrap(err, "declaring exchange")
	}
	if _, err := pub.channel.QueueDeclare(pub.queue, true, false, false, false, nil); err != nil {
		return errors.Wrap(err, "declaring queue")
	}
	if err := pub.channel.QueueBind(pub.queue, pub.queue, pub.exchange, false, nil); err != nil {
		return errors.Wrap(err, "binding queue")
	}
	return nil
}

func (pub *amqpPublisher) PublishPaymentApproved(ctx context.Context, evt core.PaymentApprovedEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return errors.Wrap(err, "marshalling event")
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = pub.channel.PublishWithContext(ctx, pub.exchange, pub.queue, false, false,
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return errors.Wrap(err, "publishing event")
	}

	pub.logger.Info("published payment approved event",
		map[string]interface{}{"pago_id": evt.PaymentID, "queue": pub.queue})
	return nil
}

func (pub *amqpPublisher) Close() error {
	if pub.channel != nil {
		_ = pub.channel.Close()
	}
	if pub.conn != nil {
		return pub.conn.Close()
	}
	return nil
}

type nopPublisher struct{}

var _ core.EventPublisher = (*nopPublisher)(nil)

// NewNopPublisher is used when the broker is disabled.
func NewNopPublisher() *nopPublisher { return &nopPublisher{} }

func (nopPublisher) PublishPaymentApproved(context.Context, core.PaymentApprovedEvent) error {
	return nil
}

func (nopPublisher) Close() error { return nil }
