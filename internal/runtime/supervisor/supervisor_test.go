package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	logx "sealdb/pkg/logx"
)

func TestGoCleanStop(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), WithLogger(logx.Nop()))

	ran := make(chan struct{})
	s.Go("one", func(ctx context.Context) error {
		close(ran)
		return nil
	})
	<-ran

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if err := s.Err(); err != nil {
		t.Fatalf("Err = %v, want nil", err)
	}
}

func TestCancelOnErrorPropagates(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), WithLogger(logx.Nop()), WithCancelOnError(true))

	boom := errors.New("boom")
	s.Go("failing", func(ctx context.Context) error { return boom })

	select {
	case <-s.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("context not canceled after error")
	}
	if err := s.Err(); !errors.Is(err, boom) {
		t.Fatalf("Err = %v, want wrapped boom", err)
	}
}

func TestContextCanceledIsClean(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), WithLogger(logx.Nop()), WithCancelOnError(true))

	s.Go("loop", func(ctx context.Context) error {
		<-ctx.Done()
		return context.Canceled
	})

	s.Cancel()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if err := s.Err(); err != nil {
		t.Fatalf("Err = %v, want nil (canceled is a clean stop)", err)
	}
}

func TestGoRecoversPanic(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), WithLogger(logx.Nop()))

	s.Go("panicky", func(ctx context.Context) error { panic("kaboom") })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if err := s.Err(); err == nil {
		t.Fatal("panic not surfaced through Err")
	}

	snap := s.GetSnapshot()
	var panics uint64
	for _, g := range snap.Goroutines {
		if g.Name == "panicky" {
			panics = g.Panics
		}
	}
	if panics != 1 {
		t.Fatalf("panics = %d, want 1", panics)
	}
}

func TestGoRestartRetriesUntilSuccess(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), WithLogger(logx.Nop()))

	var attempts atomic.Int64
	done := make(chan struct{})
	s.GoRestart("flaky", func(ctx context.Context) error {
		if attempts.Add(1) < 3 {
			return errors.New("transient")
		}
		close(done)
		return nil
	})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("restart loop never reached the successful attempt")
	}
	if got := attempts.Load(); got != 3 {
		t.Fatalf("attempts = %d, want 3", got)
	}
}

func TestGoRestartStopsOnCancel(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), WithLogger(logx.Nop()))

	s.GoRestart("worker", func(ctx context.Context) error {
		<-ctx.Done()
		return context.Canceled
	})

	s.Cancel()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestWaitHonorsDeadline(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), WithLogger(logx.Nop()))

	block := make(chan struct{})
	defer close(block)
	s.Go("stuck", func(ctx context.Context) error {
		<-block
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := s.Wait(ctx); err == nil {
		t.Fatal("Wait returned nil with a goroutine still running")
	}
}

func TestSnapshotTracksNames(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), WithLogger(logx.Nop()))

	ran := make(chan struct{})
	s.Go("tracked", func(ctx context.Context) error {
		close(ran)
		return nil
	})
	<-ran

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = s.Wait(ctx)

	snap := s.GetSnapshot()
	found := false
	for _, g := range snap.Goroutines {
		if g.Name == "tracked" {
			found = true
		}
	}
	if !found {
		t.Fatalf("snapshot missing goroutine: %+v", snap.Goroutines)
	}
}
