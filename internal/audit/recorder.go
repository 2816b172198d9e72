package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shopfive/backend/internal/model"
	"github.com/shopfive/backend/internal/util"
)

// EventProducer publishes security events to the event stream.
// Implemented by the Kafka producer.
type EventProducer interface {
	ProduceMessage(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// ActivitySink stores activity rows for analytics.
// Implemented by the ClickHouse client.
type ActivitySink interface {
	BatchInsert(ctx context.Context, query string, data [][]interface{}) error
}

const insertActivityQuery = `INSERT INTO activity_logs (user_id, event, ip_address, user_agent, created_at)`

// Recorder writes the security audit trail: events to Kafka, activity
// rows to ClickHouse, both concurrently. Failures are logged and never
// propagate; the audit trail must not fail a request. Either sink may
// be nil when the backing service is not configured.
type Recorder struct {
	producer EventProducer
	sink     ActivitySink
	topic    string
	timeout  time.Duration
}

func NewRecorder(producer EventProducer, sink ActivitySink, topic string) *Recorder {
	return &Recorder{
		producer: producer,
		sink:     sink,
		topic:    topic,
		timeout:  5 * time.Second,
	}
}

// Record fans the event out to both sinks and waits for them.
func (r *Recorder) Record(ctx context.Context, event *model.SecurityEvent) {
	if r == nil {
		return
	}

	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	if event.EventTime.IsZero() {
		event.EventTime = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	if r.producer != nil {
		g.Go(func() error {
			payload, err := json.Marshal(event)
			if err != nil {
				return err
			}
			return r.producer.ProduceMessage(gctx, r.topic,
				[]byte(event.UserID), payload,
				map[string]string{"event_type": event.EventType})
		})
	}

	if r.sink != nil {
		g.Go(func() error {
			return r.sink.BatchInsert(gctx, insertActivityQuery, [][]interface{}{
				{event.UserID, event.EventType, event.IPAddress, event.UserAgent, event.EventTime},
			})
		})
	}

	if err := g.Wait(); err != nil {
		util.Warn("Failed to record security event",
			zap.String("event_type", event.EventType),
			zap.String("user_id", event.UserID),
			zap.Error(err))
		return
	}

	util.Debug("Security event recorded",
		zap.String("event_type", event.EventType),
		zap.String("user_id", event.UserID))
}
