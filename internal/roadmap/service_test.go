package roadmap

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/pacer/internal/domain"
	"github.com/felixgeelhaar/pacer/internal/storage/local"
)

type stubPerformances map[string]domain.TopicPerformance

func (s stubPerformances) Performances(_ context.Context, ids []string) map[string]domain.TopicPerformance {
	out := make(map[string]domain.TopicPerformance)
	for _, id := range ids {
		if p, ok := s[id]; ok {
			out[id] = p
		}
	}
	return out
}

func newTestService(t *testing.T, perf PerformanceSource) *Service {
	t.Helper()
	store, err := local.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	return NewService(newTestRunner(t, DefaultConfig(), DefaultRunnerConfig()), NewLocalRepository(store), perf)
}

func TestService_CreateAndGet(t *testing.T) {
	perf := stubPerformances{
		"a": {TopicID: "a", SuccessRate: 0.2},
		"b": {TopicID: "b", SuccessRate: 0.9},
	}
	svc := newTestService(t, perf)
	ctx := context.Background()

	rm, res, err := svc.Create(ctx, "Maths", makeTopics("a", "b", "c"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if rm.ID == uuid.Nil {
		t.Error("Create() should assign an ID")
	}
	if rm.Fitness != res.Fitness {
		t.Errorf("stored fitness = %f; result fitness = %f", rm.Fitness, res.Fitness)
	}
	if got := Fitness(rm.Topics, perf); math.Abs(got-rm.Fitness) > 1e-9 {
		t.Errorf("stored order scores %f; stored fitness %f", got, rm.Fitness)
	}

	loaded, err := svc.Get(ctx, rm.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if loaded.Title != "Maths" || len(loaded.Topics) != 3 {
		t.Errorf("Get() = %+v; want stored roadmap", loaded)
	}
}

func TestService_TrimsTopicIDsBeforeLookup(t *testing.T) {
	perf := stubPerformances{
		"a": {TopicID: "a", SuccessRate: 0.9, Attempts: 3},
		"b": {TopicID: "b", SuccessRate: 0.9, Attempts: 3},
	}
	svc := newTestService(t, perf)

	rm, _, err := svc.Create(context.Background(), "Padded", makeTopics(" a", "b "))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	for _, topic := range rm.Topics {
		if topic.ID != "a" && topic.ID != "b" {
			t.Errorf("stored topic id %q was not trimmed", topic.ID)
		}
	}
	if got := Fitness(rm.Topics, perf); got == 0 || math.Abs(got-rm.Fitness) > 1e-9 {
		t.Errorf("stored fitness = %f; order scores %f against the ledger", rm.Fitness, got)
	}
}

func TestService_Resequence(t *testing.T) {
	perf := stubPerformances{}
	svc := newTestService(t, perf)
	ctx := context.Background()

	rm, _, err := svc.Create(ctx, "Maths", makeTopics("a", "b", "c", "d"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	perf["b"] = domain.TopicPerformance{TopicID: "b", SuccessRate: 0.1}
	for _, id := range []string{"a", "c", "d"} {
		perf[id] = domain.TopicPerformance{TopicID: id, SuccessRate: 0.9}
	}
	svc.now = func() time.Time { return rm.CreatedAt.Add(time.Hour) }

	updated, _, err := svc.Resequence(ctx, rm.ID)
	if err != nil {
		t.Fatalf("Resequence() error = %v", err)
	}
	if updated.Topics[len(updated.Topics)-1].ID != "b" {
		t.Errorf("weak topic should move last, got order %v", updated.Topics)
	}
	if !updated.UpdatedAt.After(rm.CreatedAt) {
		t.Error("Resequence() should bump UpdatedAt")
	}
}

type recordingPublisher struct {
	events []domain.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e domain.Event) error {
	p.events = append(p.events, e)
	return p.err
}

func TestService_PublishesOrder(t *testing.T) {
	store, _ := local.NewStore(t.TempDir())
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc := NewService(newTestRunner(t, DefaultConfig(), DefaultRunnerConfig()), NewLocalRepository(store), nil, WithPublisher(pub))
	ctx := context.Background()

	rm, _, err := svc.Create(ctx, "Maths", makeTopics("a", "b", "c"))
	if err != nil {
		t.Fatalf("Create() error = %v; publish failures must not fail the call", err)
	}
	if _, _, err := svc.Resequence(ctx, rm.ID); err != nil {
		t.Fatalf("Resequence() error = %v", err)
	}
	if _, err := svc.Sequence(ctx, makeTopics("x", "y")); err != nil {
		t.Fatalf("Sequence() error = %v", err)
	}

	if len(pub.events) != 2 {
		t.Fatalf("published %d events; want 2 (ad-hoc sequencing is not announced)", len(pub.events))
	}
	e, ok := pub.events[0].(domain.RoadmapSequencedEvent)
	if !ok {
		t.Fatalf("event type = %T; want RoadmapSequencedEvent", pub.events[0])
	}
	if e.RoadmapID != rm.ID || len(e.TopicOrder) != 3 {
		t.Errorf("event = %+v", e)
	}
}

func TestService_GetUnknown(t *testing.T) {
	svc := newTestService(t, nil)

	_, err := svc.Get(context.Background(), uuid.New())
	if !errors.Is(err, domain.ErrRoadmapNotFound) {
		t.Errorf("Get() error = %v; want ErrRoadmapNotFound", err)
	}
}

func TestService_WithoutRepository(t *testing.T) {
	svc := NewService(newTestRunner(t, DefaultConfig(), DefaultRunnerConfig()), nil, nil)

	if _, err := svc.Sequence(context.Background(), makeTopics("a", "b")); err != nil {
		t.Errorf("Sequence() error = %v", err)
	}
	if _, _, err := svc.Create(context.Background(), "x", makeTopics("a")); err == nil {
		t.Error("Create() should fail without a repository")
	}
	list, err := svc.List(context.Background())
	if err != nil || len(list) != 0 {
		t.Errorf("List() = %v, %v; want empty", list, err)
	}
}

func TestLocalRepository_ListAndDelete(t *testing.T) {
	store, _ := local.NewStore(t.TempDir())
	repo := NewLocalRepository(store)
	ctx := context.Background()

	older := &domain.Roadmap{ID: uuid.New(), Title: "old", CreatedAt: time.Now().Add(-time.Hour)}
	newer := &domain.Roadmap{ID: uuid.New(), Title: "new", CreatedAt: time.Now()}
	for _, rm := range []*domain.Roadmap{older, newer} {
		if err := repo.Save(ctx, rm); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	list, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 || list[0].Title != "new" {
		t.Errorf("List() = %v; want newest first", list)
	}

	if err := repo.Delete(ctx, older.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := repo.Delete(ctx, older.ID); !errors.Is(err, domain.ErrRoadmapNotFound) {
		t.Errorf("second Delete() error = %v; want ErrRoadmapNotFound", err)
	}
}
