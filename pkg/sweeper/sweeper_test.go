package sweeper

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/petrijr/pageflow/internal/engine"
	"github.com/petrijr/pageflow/internal/testutil"
	"github.com/petrijr/pageflow/pkg/api"
)

type fakeTarget struct {
	collects  atomic.Int64
	purges    atomic.Int64
	retention time.Duration
	mu        sync.Mutex

	collectErr error
}

func (f *fakeTarget) Collect(ctx context.Context) (int, error) {
	f.collects.Add(1)
	return 2, f.collectErr
}

func (f *fakeTarget) Purge(ctx context.Context, retention time.Duration) (int, error) {
	f.purges.Add(1)
	f.mu.Lock()
	f.retention = retention
	f.mu.Unlock()
	return 1, nil
}

func TestRunOnce_CollectsAndPurges(t *testing.T) {
	target := &fakeTarget{}
	s := New(target, Config{Retention: time.Hour})

	res, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if res.Swept != 2 || res.Purged != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if target.retention != time.Hour {
		t.Fatalf("retention=%v, want 1h", target.retention)
	}
}

func TestRunOnce_ZeroRetentionSkipsPurge(t *testing.T) {
	target := &fakeTarget{}
	s := New(target, Config{})

	if _, err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n := target.purges.Load(); n != 0 {
		t.Fatalf("expected no purge, got %d", n)
	}
}

func TestRunOnce_ReportsCollectErrors(t *testing.T) {
	boom := errors.New("store down")
	target := &fakeTarget{collectErr: boom}
	s := New(target, Config{Retention: time.Hour})

	res, err := s.RunOnce(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected collect error, got %v", err)
	}
	if res.Purged != 1 {
		t.Fatalf("purge should still run, got %+v", res)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	target := &fakeTarget{}
	s := New(target, Config{Interval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for target.collects.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("sweeper did not tick")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}

func TestRunOnce_SweepsEngine(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewManualClock()
	eng := engine.NewEngineWithConfig(engine.Config{Expiration: time.Minute, Clock: clock})

	def := api.FlowDefinition{
		Name:       "Survey",
		FirstState: "Ask",
		States:     map[string]api.StateSpec{"Ask": {View: "question"}},
	}
	if err := eng.RegisterFlow(def); err != nil {
		t.Fatalf("RegisterFlow: %v", err)
	}
	ticket, err := eng.Start(ctx, "Survey", nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	s := New(eng, Config{Retention: time.Hour})
	clock.Advance(2 * time.Minute)

	res, err := s.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if res.Swept != 1 {
		t.Fatalf("swept=%d, want 1", res.Swept)
	}
	if !eng.IsMarked(ticket) {
		t.Fatalf("expected %s to stay marked", ticket)
	}

	clock.Advance(2 * time.Hour)
	res, err = s.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if res.Purged != 1 {
		t.Fatalf("purged=%d, want 1", res.Purged)
	}
}
