package main

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const passwordResetRoutingKey = "notify.password_reset"

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// amqpNotifier hands reset tokens to a mail worker through the exchange.
type amqpNotifier struct {
	publisher publisher
	exchange  string
}

func newAMQPNotifier(p publisher, exchange string) *amqpNotifier {
	return &amqpNotifier{publisher: p, exchange: exchange}
}

type passwordResetMessage struct {
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (n *amqpNotifier) SendPasswordReset(ctx context.Context, email, token string, expiresAt time.Time) error {
	body, err := json.Marshal(passwordResetMessage{Email: email, Token: token, ExpiresAt: expiresAt.UTC()})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return n.publisher.PublishWithContext(ctx, n.exchange, passwordResetRoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         "password_reset",
		Body:         body,
	})
}

// logNotifier is used when no broker is configured. The token is never logged.
type logNotifier struct {
	logger logrus.FieldLogger
}

func newLogNotifier(logger logrus.FieldLogger) *logNotifier {
	return &logNotifier{logger: logger}
}

func (n *logNotifier) SendPasswordReset(_ context.Context, email string, _ string, expiresAt time.Time) error {
	n.logger.WithFields(logrus.Fields{
		"email":      email,
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
	}).Warn("password reset requested but no notification transport is configured")
	return nil
}
