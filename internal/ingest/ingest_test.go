package ingest

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/flight-twin/internal/logging"
	"github.com/signalsfoundry/flight-twin/model"
)

type countingRecorder struct{ n atomic.Int64 }

func (c *countingRecorder) IncDroppedTelemetry() { c.n.Add(1) }

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func rec(sec int) model.TelemetryRecord {
	return model.TelemetryRecord{Timestamp: time.Unix(int64(sec), 0).UTC()}
}

func TestQueueDropsOldest(t *testing.T) {
	recorder := &countingRecorder{}
	q := NewQueue(3, recorder)
	for i := 1; i <= 5; i++ {
		require.True(t, q.Push(rec(i)))
	}
	assert.Equal(t, 3, q.Len())
	assert.Equal(t, uint64(2), q.Dropped())
	assert.Equal(t, int64(2), recorder.n.Load())

	q.Close()
	var got []int64
	for r := range q.C() {
		got = append(got, r.Timestamp.Unix())
	}
	assert.Equal(t, []int64{3, 4, 5}, got)
	assert.False(t, q.Push(rec(6)), "push after close")
	q.Close()
}

func TestQueueConcurrentPushNeverBlocks(t *testing.T) {
	q := NewQueue(8, nil)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				q.Push(rec(i))
			}
		}()
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("producers blocked on a full queue")
	}
	assert.Equal(t, 8, q.Len())
	assert.Equal(t, uint64(2000-8), q.Dropped())
}

func TestDecodeTelemetry(t *testing.T) {
	one, err := DecodeTelemetry([]byte(` {"timestamp":"2024-06-01T09:00:00Z","altitude":75.5,"battery_remaining":91} `))
	require.NoError(t, err)
	require.Len(t, one, 1)
	require.NotNil(t, one[0].Altitude)
	assert.Equal(t, 75.5, *one[0].Altitude)
	assert.Nil(t, one[0].Latitude)

	batch, err := DecodeTelemetry([]byte(`[{"timestamp":"2024-06-01T09:00:00Z"},{"timestamp":"2024-06-01T09:00:01Z"}]`))
	require.NoError(t, err)
	assert.Len(t, batch, 2)

	for _, bad := range []string{"", "   ", "{", `{"altitude":"high"}`, "[1,2]"} {
		_, err := DecodeTelemetry([]byte(bad))
		assert.Error(t, err, "payload %q", bad)
	}
}

func TestSubscriberHandleQueuesRecords(t *testing.T) {
	q := NewQueue(16, nil)
	s := &Subscriber{cfg: SubscriberConfig{Topic: "twin/telemetry"}, queue: q, log: logging.Noop()}

	s.handle(nil, fakeMessage{topic: "twin/telemetry", payload: []byte(`{"timestamp":"2024-06-01T09:00:00Z","wind_speed":3}`)})
	s.handle(nil, fakeMessage{topic: "twin/telemetry", payload: []byte(`not json`)})
	s.handle(nil, fakeMessage{topic: "twin/telemetry", payload: []byte(`[{},{}]`)})

	assert.Equal(t, uint64(3), s.Received())
	assert.Equal(t, uint64(1), s.DecodeFailures())
	first := <-q.C()
	require.NotNil(t, first.WindSpeed)
	assert.Equal(t, 3.0, *first.WindSpeed)
}

func TestNewSubscriberValidates(t *testing.T) {
	q := NewQueue(1, nil)
	_, err := NewSubscriber(SubscriberConfig{Topic: "t"}, q, nil)
	assert.ErrorContains(t, err, "broker")
	_, err = NewSubscriber(SubscriberConfig{Broker: "tcp://localhost:1883"}, q, nil)
	assert.ErrorContains(t, err, "topic")
	_, err = NewSubscriber(SubscriberConfig{Broker: "tcp://localhost:1883", Topic: "t"}, nil, nil)
	assert.ErrorContains(t, err, "queue")

	s, err := NewSubscriber(SubscriberConfig{Broker: "tcp://localhost:1883", Topic: "t", ClientID: "test"}, q, nil)
	require.NoError(t, err)
	assert.NotNil(t, s.client)
}
