package roadmap

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/pacer/internal/domain"
)

func newTestRunner(t *testing.T, cfg Config, rc RunnerConfig) *Runner {
	t.Helper()
	return NewRunner(newTestSequencer(t, cfg, 21), rc, nil, nil)
}

func TestRunner_Run(t *testing.T) {
	r := newTestRunner(t, DefaultConfig(), DefaultRunnerConfig())
	topics := numberedTopics(6)

	res, err := r.Run(context.Background(), topics, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !isPermutation(res.Topics, topics) {
		t.Errorf("Run() topics = %v; want a permutation", res.Topics)
	}
}

func TestRunner_RejectsInvalidTopics(t *testing.T) {
	r := newTestRunner(t, DefaultConfig(), DefaultRunnerConfig())

	_, err := r.Run(context.Background(), makeTopics("a", "a"), nil)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("Run() error = %v; want ErrInvalidInput", err)
	}
}

func TestRunner_Canceled(t *testing.T) {
	r := newTestRunner(t, DefaultConfig(), DefaultRunnerConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Run(ctx, numberedTopics(4), nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v; want context.Canceled", err)
	}
}

func TestRunner_Concurrent(t *testing.T) {
	r := newTestRunner(t, DefaultConfig(), RunnerConfig{MaxConcurrent: 2, MaxQueue: 16, QueueTimeout: 30 * time.Second})
	topics := numberedTopics(8)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := r.Run(context.Background(), topics, nil)
			if err == nil && !isPermutation(res.Topics, topics) {
				err = errors.New("result is not a permutation")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("concurrent Run() error = %v", err)
		}
	}
}
