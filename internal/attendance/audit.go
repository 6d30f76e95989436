package attendance

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"attendx/internal/metrics"
	"attendx/internal/queue"
)

// EventKind names an audited action.
type EventKind string

const (
	EventLectureStarted      EventKind = "lecture.started"
	EventAttendanceSubmitted EventKind = "attendance.submitted"
	EventModeUnrestricted    EventKind = "mode.unrestricted"
)

// MessageType tags audit events on the shared queue.
const MessageType = "audit"

// Event is one audited action.
type Event struct {
	ID           string    `json:"id"`
	Kind         EventKind `json:"kind"`
	DeviceID     string    `json:"device_id"`
	Subject      string    `json:"subject,omitempty"`
	Date         string    `json:"date,omitempty"`
	Code         string    `json:"code,omitempty"`
	RollNo       string    `json:"roll_no,omitempty"`
	Unrestricted bool      `json:"unrestricted"`
	Outcome      string    `json:"outcome"`
	GrantID      string    `json:"grant_id,omitempty"`
	At           time.Time `json:"at"`
}

func newEvent(kind EventKind, deviceID string, at time.Time) Event {
	return Event{ID: uuid.NewString(), Kind: kind, DeviceID: deviceID, At: at.UTC()}
}

// Publisher accepts audit events.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// NopPublisher discards events; used when auditing is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// QueuePublisher serializes events onto a queue.
type QueuePublisher struct {
	Q queue.Queue
}

func (p QueuePublisher) Publish(ctx context.Context, evt Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}
	return p.Q.Publish(ctx, queue.Message{ID: evt.ID, Type: MessageType, Body: body})
}

// Sink stores consumed audit events.
type Sink interface {
	InsertEvent(ctx context.Context, evt Event) error
}

// LogSink writes events to the log when no ledger database is configured.
type LogSink struct {
	Log *zap.Logger
}

func (s LogSink) InsertEvent(_ context.Context, evt Event) error {
	s.Log.Info("audit",
		zap.String("id", evt.ID),
		zap.String("kind", string(evt.Kind)),
		zap.String("device_id", evt.DeviceID),
		zap.String("subject", evt.Subject),
		zap.String("date", evt.Date),
		zap.String("roll_no", evt.RollNo),
		zap.Bool("unrestricted", evt.Unrestricted),
		zap.String("outcome", evt.Outcome))
	return nil
}

// ConsumeAudit drains audit messages from q into sink until ctx is done.
// Messages of other types and undecodable bodies are skipped.
func ConsumeAudit(ctx context.Context, q queue.Queue, sink Sink, log *zap.Logger) error {
	msgs, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("consume audit queue: %w", err)
	}
	for msg := range msgs {
		if msg.Type != MessageType {
			log.Warn("unknown message type", zap.String("type", msg.Type), zap.String("id", msg.ID))
			continue
		}
		var evt Event
		if err := json.Unmarshal(msg.Body, &evt); err != nil {
			log.Warn("bad audit payload", zap.String("id", msg.ID), zap.Error(err))
			continue
		}
		if err := sink.InsertEvent(ctx, evt); err != nil {
			recordAudit(evt.Kind, "store_failed")
			log.Error("store audit event", zap.String("id", evt.ID), zap.Error(err))
			continue
		}
		recordAudit(evt.Kind, "stored")
	}
	return nil
}

func recordAudit(kind EventKind, result string) {
	metrics.AuditEvents.WithLabelValues(string(kind), result).Inc()
}
