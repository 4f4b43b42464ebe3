package audit

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Publisher is the subset of *amqp.Channel used by AMQPSink.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPSink publishes events as persistent JSON messages. The routing key is
// "<prefix>.<event_type>".
type AMQPSink struct {
	publisher Publisher
	exchange  string
	prefix    string
	timeout   time.Duration
	logger    logrus.FieldLogger
}

// NewAMQPSink returns a sink publishing to exchange. An empty prefix defaults to
// "audit".
func NewAMQPSink(publisher Publisher, exchange, prefix string, logger logrus.FieldLogger) *AMQPSink {
	if prefix == "" {
		prefix = "audit"
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AMQPSink{
		publisher: publisher,
		exchange:  exchange,
		prefix:    prefix,
		timeout:   2 * time.Second,
		logger:    logger,
	}
}

// DeclareExchange declares a durable topic exchange on ch.
func DeclareExchange(ch *amqp.Channel, exchange string) error {
	return ch.ExchangeDeclare(
		exchange, // name
		"topic",  // kind
		true,     // durable
		false,    // autoDelete
		false,    // internal
		false,    // noWait
		nil,      // args
	)
}

func (s *AMQPSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.publisher == nil {
		return
	}
	body, err := json.Marshal(event)
	if err != nil {
		s.logger.WithError(err).Warn("audit: marshal event failed")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err = s.publisher.PublishWithContext(ctx,
		s.exchange,
		s.prefix+"."+event.EventType,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    event.Timestamp,
			Type:         event.EventType,
			Body:         body,
		},
	)
	if err != nil {
		s.logger.WithError(err).WithField("audit", event.EventType).Warn("audit: publish failed")
	}
}
