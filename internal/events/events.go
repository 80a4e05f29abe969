// Package events publishes risk events raised while monitoring a mission.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/signalsfoundry/flight-twin/core"
	"github.com/signalsfoundry/flight-twin/internal/logging"
	"github.com/signalsfoundry/flight-twin/model"
)

// RiskEvent reports a tier change or a replan during a mission.
type RiskEvent struct {
	MissionID      string         `json:"mission_id"`
	DroneID        string         `json:"drone_id,omitempty"`
	Seq            int            `json:"seq"`
	Timestamp      time.Time      `json:"timestamp"`
	Tier           model.RiskTier `json:"tier"`
	PreviousTier   model.RiskTier `json:"previous_tier"`
	Score          float64        `json:"score"`
	IsAnomaly      bool           `json:"is_anomaly"`
	Recommendation string         `json:"recommendation"`
	Position       core.Vec3      `json:"position"`
	Replanned      bool           `json:"replanned"`
	Strategy       string         `json:"strategy,omitempty"`
}

// Publisher delivers risk events.
type Publisher interface {
	Publish(ctx context.Context, e RiskEvent) error
	Close() error
}

// Noop discards events.
type Noop struct{}

func (Noop) Publish(context.Context, RiskEvent) error { return nil }
func (Noop) Close() error                             { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []RiskEvent
}

// Publish appends e.
func (r *Recorder) Publish(_ context.Context, e RiskEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Close is a no-op.
func (r *Recorder) Close() error { return nil }

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []RiskEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RiskEvent(nil), r.events...)
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON to a Kafka topic, keyed by mission id
// so that one mission's events stay ordered within a partition.
type KafkaPublisher struct {
	w   messageWriter
	log logging.Logger
}

// KafkaConfig selects the brokers and topic for a KafkaPublisher.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// NewKafkaPublisher returns a publisher writing synchronously to cfg.Topic.
func NewKafkaPublisher(cfg KafkaConfig, log logging.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher: no brokers configured")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka publisher: no topic configured")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	return newKafkaPublisher(w, log), nil
}

func newKafkaPublisher(w messageWriter, log logging.Logger) *KafkaPublisher {
	if log == nil {
		log = logging.Noop()
	}
	return &KafkaPublisher{w: w, log: log.With(logging.String("component", "risk-events"))}
}

// Publish writes one event.
func (p *KafkaPublisher) Publish(ctx context.Context, e RiskEvent) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode risk event: %w", err)
	}
	msg := kafka.Message{Key: []byte(e.MissionID), Value: b, Time: e.Timestamp}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish risk event: %w", err)
	}
	p.log.Debug(ctx, "risk event published",
		logging.String("tier", e.Tier.String()),
		logging.Bool("replanned", e.Replanned),
	)
	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error { return p.w.Close() }
