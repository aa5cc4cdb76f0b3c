package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/pacer/internal/domain"
)

type publishedMessage struct {
	queue   string
	msgType string
	msgID   string
	data    any
}

// fakePublisher fails the first failures calls with err
type fakePublisher struct {
	mu       sync.Mutex
	calls    int
	failures int
	err      error
	messages []publishedMessage
}

func (f *fakePublisher) PublishJSON(ctx context.Context, queue, msgType, msgID string, data any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return f.err
	}
	f.messages = append(f.messages, publishedMessage{queue, msgType, msgID, data})
	return nil
}

func testProducerConfig() ProducerConfig {
	return ProducerConfig{
		MaxAttempts:      3,
		InitialDelay:     time.Millisecond,
		MaxDelay:         5 * time.Millisecond,
		FailureThreshold: 100,
		OpenTimeout:      time.Minute,
	}
}

func TestProducer_PublishRoutesEvents(t *testing.T) {
	pub := &fakePublisher{}
	p := newProducer(pub, testProducerConfig(), nil, nil)
	ctx := context.Background()

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	strategyEvent := domain.NewStrategyUpdatedEvent(domain.AdaptiveStrategy{TopicID: "algebra", ComputedAt: at}, domain.DefaultMetrics())
	roadmapEvent := domain.NewRoadmapSequencedEvent(&domain.Roadmap{ID: uuid.New(), UpdatedAt: at})

	for _, e := range []domain.Event{strategyEvent, roadmapEvent} {
		if err := p.Publish(ctx, e); err != nil {
			t.Fatalf("Publish(%s) error = %v", e.EventType(), err)
		}
	}

	if len(pub.messages) != 2 {
		t.Fatalf("published %d messages; want 2", len(pub.messages))
	}
	if m := pub.messages[0]; m.queue != StrategyQueueName || m.msgType != domain.EventStrategyUpdated || m.msgID != strategyEvent.EventID().String() {
		t.Errorf("strategy message = %+v", m)
	}
	if m := pub.messages[1]; m.queue != RoadmapQueueName {
		t.Errorf("roadmap message queue = %q; want %q", m.queue, RoadmapQueueName)
	}
}

type unknownEvent struct{ domain.BaseEvent }

func TestProducer_PublishUnroutable(t *testing.T) {
	pub := &fakePublisher{}
	p := newProducer(pub, testProducerConfig(), nil, nil)

	err := p.Publish(context.Background(), unknownEvent{domain.NewBaseEvent("profile.updated", time.Now())})
	if !errors.Is(err, ErrUnroutable) {
		t.Errorf("Publish() error = %v; want ErrUnroutable", err)
	}
	if pub.calls != 0 {
		t.Errorf("calls = %d; want 0", pub.calls)
	}
}

func TestProducer_RetriesTransientFailures(t *testing.T) {
	pub := &fakePublisher{failures: 2, err: errors.New("channel closed")}
	p := newProducer(pub, testProducerConfig(), nil, nil)

	event := domain.NewAttemptRecordedEvent("algebra", 60, true, time.Now())
	if err := p.Publish(context.Background(), event); err != nil {
		t.Fatalf("Publish() error = %v; want success after retries", err)
	}
	if pub.calls != 3 {
		t.Errorf("calls = %d; want 3", pub.calls)
	}
	if len(pub.messages) != 1 || pub.messages[0].queue != AttemptQueueName {
		t.Errorf("messages = %+v", pub.messages)
	}
}

func TestProducer_DoesNotRetryEncodeErrors(t *testing.T) {
	pub := &fakePublisher{failures: 10, err: errEncode}
	p := newProducer(pub, testProducerConfig(), nil, nil)

	err := p.Publish(context.Background(), domain.NewAttemptRecordedEvent("algebra", 60, true, time.Now()))
	if err == nil {
		t.Fatal("Publish() should fail")
	}
	if pub.calls != 1 {
		t.Errorf("calls = %d; want 1", pub.calls)
	}
}

func TestProducer_CircuitOpensAfterFailures(t *testing.T) {
	pub := &fakePublisher{failures: 1000, err: errors.New("broker down")}
	cfg := testProducerConfig()
	cfg.MaxAttempts = 1
	cfg.FailureThreshold = 2
	p := newProducer(pub, cfg, nil, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := p.Publish(ctx, domain.NewAttemptRecordedEvent("algebra", 60, true, time.Now())); err == nil {
			t.Fatal("Publish() should fail while the broker is down")
		}
	}
	calls := pub.calls

	if err := p.Publish(ctx, domain.NewAttemptRecordedEvent("algebra", 60, true, time.Now())); err == nil {
		t.Fatal("Publish() should fail while the circuit is open")
	}
	if pub.calls != calls {
		t.Errorf("calls = %d; want %d (open circuit skips the broker)", pub.calls, calls)
	}
}
