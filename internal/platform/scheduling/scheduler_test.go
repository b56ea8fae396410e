package scheduling

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestScheduler_AddRejectsBadSpec(t *testing.T) {
	s := New(zerolog.Nop(), 0)
	if err := s.Add("sweep", "not a schedule", func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected error for invalid spec")
	}
}

func TestScheduler_AddRejectsDuplicate(t *testing.T) {
	s := New(zerolog.Nop(), 0)
	noop := func(context.Context) error { return nil }
	if err := s.Add("sweep", "@daily", noop); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Add("sweep", "@hourly", noop); err == nil {
		t.Fatal("expected duplicate name to be rejected")
	}
}

func TestScheduler_RunNow(t *testing.T) {
	s := New(zerolog.Nop(), time.Second)
	var calls int32
	_ = s.Add("sweep", "@daily", func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("expected run to carry a deadline")
		}
		atomic.AddInt32(&calls, 1)
		return errors.New("logged, not returned")
	})

	if err := s.RunNow("sweep"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if err := s.RunNow("missing"); err == nil {
		t.Error("expected error for unknown job")
	}
}

func TestScheduler_NoOverlap(t *testing.T) {
	s := New(zerolog.Nop(), 0)
	release := make(chan struct{})
	started := make(chan struct{})
	_ = s.Add("sweep", "@daily", func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})

	go func() { _ = s.RunNow("sweep") }()
	<-started

	if err := s.RunNow("sweep"); err == nil {
		t.Error("expected overlapping run to be skipped")
	}
	close(release)
}

func TestScheduler_RecoversPanic(t *testing.T) {
	s := New(zerolog.Nop(), 0)
	_ = s.Add("boom", "@daily", func(context.Context) error { panic("bad job") })
	if err := s.RunNow("boom"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestScheduler_StartStop(t *testing.T) {
	s := New(zerolog.Nop(), 0)
	_ = s.Add("sweep", "@daily", func(context.Context) error { return nil })
	s.Start()

	next, ok := s.Next("sweep")
	if !ok || next.IsZero() {
		t.Error("expected next run to be scheduled")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
