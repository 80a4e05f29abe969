package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/signalsfoundry/flight-twin/internal/logging"
	"github.com/signalsfoundry/flight-twin/model"
)

// SubscriberConfig names the broker and topic telemetry arrives on.
type SubscriberConfig struct {
	Broker   string
	Topic    string
	ClientID string
	QoS      byte
	// ConnectTimeout bounds the initial connection. Zero means 10s.
	ConnectTimeout time.Duration
}

// Subscriber decodes JSON telemetry published on an MQTT topic into a Queue.
// A payload is either one record or an array of records.
type Subscriber struct {
	cfg    SubscriberConfig
	client mqtt.Client
	queue  *Queue
	log    logging.Logger

	received    atomic.Uint64
	decodeFails atomic.Uint64
}

// NewSubscriber builds a subscriber with an auto-reconnecting paho client.
// The topic is (re)subscribed on every successful connection.
func NewSubscriber(cfg SubscriberConfig, queue *Queue, log logging.Logger) (*Subscriber, error) {
	switch {
	case cfg.Broker == "":
		return nil, errors.New("ingest: mqtt broker is required")
	case cfg.Topic == "":
		return nil, errors.New("ingest: mqtt topic is required")
	case queue == nil:
		return nil, errors.New("ingest: queue is required")
	}
	if log == nil {
		log = logging.Noop()
	}
	s := &Subscriber{cfg: cfg, queue: queue, log: log}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetOrderMatters(false).
		SetOnConnectHandler(s.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn(context.Background(), "mqtt connection lost", logging.Err(err))
		})
	s.client = mqtt.NewClient(opts)
	return s, nil
}

// Start connects to the broker. It returns once connected or when ctx or the
// connect timeout expires.
func (s *Subscriber) Start(ctx context.Context) error {
	timeout := s.cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	token := s.client.Connect()
	select {
	case <-token.Done():
	case <-time.After(timeout):
		return fmt.Errorf("ingest: connect to %s: timed out after %s", s.cfg.Broker, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("ingest: connect to %s: %w", s.cfg.Broker, err)
	}
	s.log.Info(ctx, "mqtt subscriber connected",
		logging.String("broker", s.cfg.Broker),
		logging.String("topic", s.cfg.Topic),
	)
	return nil
}

// Stop unsubscribes, disconnects and closes the queue so consumers drain.
func (s *Subscriber) Stop() {
	if s.client.IsConnected() {
		s.client.Unsubscribe(s.cfg.Topic).WaitTimeout(time.Second)
		s.client.Disconnect(250)
	}
	s.queue.Close()
}

// Received returns how many records were decoded and queued.
func (s *Subscriber) Received() uint64 { return s.received.Load() }

// DecodeFailures returns how many payloads could not be decoded.
func (s *Subscriber) DecodeFailures() uint64 { return s.decodeFails.Load() }

func (s *Subscriber) onConnect(c mqtt.Client) {
	token := c.Subscribe(s.cfg.Topic, s.cfg.QoS, s.handle)
	// Subscribe from a paho callback must not wait on the token.
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			s.log.Error(context.Background(), "mqtt subscribe failed",
				logging.String("topic", s.cfg.Topic), logging.Err(err))
		}
	}()
}

func (s *Subscriber) handle(_ mqtt.Client, msg mqtt.Message) {
	records, err := DecodeTelemetry(msg.Payload())
	if err != nil {
		s.decodeFails.Add(1)
		s.log.Warn(context.Background(), "dropping undecodable telemetry",
			logging.String("topic", msg.Topic()), logging.Err(err))
		return
	}
	for _, r := range records {
		if s.queue.Push(r) {
			s.received.Add(1)
		}
	}
}

// DecodeTelemetry parses a JSON record or array of records.
func DecodeTelemetry(payload []byte) ([]model.TelemetryRecord, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, errors.New("empty payload")
	}
	if trimmed[0] == '[' {
		var out []model.TelemetryRecord
		if err := json.Unmarshal(trimmed, &out); err != nil {
			return nil, fmt.Errorf("decode telemetry batch: %w", err)
		}
		return out, nil
	}
	var r model.TelemetryRecord
	if err := json.Unmarshal(trimmed, &r); err != nil {
		return nil, fmt.Errorf("decode telemetry: %w", err)
	}
	return []model.TelemetryRecord{r}, nil
}
