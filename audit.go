package orgauth

import (
	"context"
	"io"

	"github.com/MrEthical07/orgauth/internal/audit"
	"github.com/sirupsen/logrus"
)

// AuditEvent is one security audit record.
type AuditEvent = audit.Event

// AuditSink receives audit events asynchronously. Emit must not assume it runs on
// the request goroutine.
type AuditSink = audit.Sink

// AMQPPublisher is the subset of *amqp.Channel used by the AMQP audit sink.
type AMQPPublisher = audit.Publisher

// NewJSONWriterSink writes one JSON object per line to w.
func NewJSONWriterSink(w io.Writer) AuditSink {
	return audit.NewJSONWriterSink(w)
}

// NewChannelSink buffers events in a channel readable with Events.
func NewChannelSink(buffer int) *audit.ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewLogrusSink logs each event through logger.
func NewLogrusSink(logger logrus.FieldLogger) AuditSink {
	return audit.NewLogrusSink(logger)
}

// NewAMQPSink publishes each event to exchange with routing key "audit.<type>".
func NewAMQPSink(publisher AMQPPublisher, exchange string, logger logrus.FieldLogger) AuditSink {
	return audit.NewAMQPSink(publisher, exchange, "audit", logger)
}

// MultiSink fans events out to every sink.
func MultiSink(sinks ...AuditSink) AuditSink {
	return audit.MultiSink(sinks)
}

func (e *Engine) emitAudit(ctx context.Context, eventType string, success bool, userID, orgID, sessionID string, err error, metadata map[string]string) {
	if e == nil || e.audit == nil {
		return
	}
	event := AuditEvent{
		Timestamp:      e.now().UTC(),
		EventType:      eventType,
		UserID:         userID,
		OrganizationID: orgID,
		SessionID:      sessionID,
		IP:             ClientFromContext(ctx).IP,
		Success:        success,
		Metadata:       metadata,
	}
	if err != nil {
		event.Error = err.Error()
	}
	e.audit.Emit(event)
}
