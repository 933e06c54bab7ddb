package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"sealdb/internal/eventbus"
	"sealdb/internal/pool"
	logx "sealdb/pkg/logx"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(Config{
		Path:        filepath.Join(t.TempDir(), "history.db"),
		BusyTimeout: time.Second,
	}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestAppendAndRecent(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	entries := []Entry{
		{Description: "checkpoint", Priority: "low", Type: "maintenance", Outcome: "completed", Duration: 120 * time.Millisecond},
		{Description: "query-1", Priority: "normal", Type: "query", Outcome: "failed", Error: "boom"},
		{Description: "query-2", Priority: "normal", Type: "query", Outcome: "timeout", QueueDelay: 3 * time.Second},
	}
	for _, e := range entries {
		if err := st.Append(ctx, e); err != nil {
			t.Fatalf("Append(%s): %v", e.Description, err)
		}
	}

	got, err := st.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Recent returned %d entries, want 3", len(got))
	}
	// Newest first.
	if got[0].Description != "query-2" || got[2].Description != "checkpoint" {
		t.Fatalf("order = %s ... %s", got[0].Description, got[2].Description)
	}
	if got[0].QueueDelay != 3*time.Second {
		t.Fatalf("QueueDelay = %v, want 3s", got[0].QueueDelay)
	}
	if got[1].Error != "boom" {
		t.Fatalf("Error = %q, want boom", got[1].Error)
	}
	if got[2].Duration != 120*time.Millisecond {
		t.Fatalf("Duration = %v, want 120ms", got[2].Duration)
	}
	if got[0].At.IsZero() {
		t.Fatal("At not set on append")
	}
}

func TestRecentLimit(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := st.Append(ctx, Entry{Description: "x", Priority: "normal", Type: "query", Outcome: "completed"}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	got, err := st.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Recent(2) returned %d entries", len(got))
	}
}

func TestPrune(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	old := Entry{At: now.Add(-48 * time.Hour), Description: "old", Priority: "normal", Type: "query", Outcome: "completed"}
	fresh := Entry{At: now, Description: "fresh", Priority: "normal", Type: "query", Outcome: "completed"}
	for _, e := range []Entry{old, fresh} {
		if err := st.Append(ctx, e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	n, err := st.Prune(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("Prune removed %d rows, want 1", n)
	}
	got, err := st.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 1 || got[0].Description != "fresh" {
		t.Fatalf("remaining = %+v", got)
	}
}

func TestAppendOnClosedStore(t *testing.T) {
	t.Parallel()
	var st *Store
	if err := st.Append(context.Background(), Entry{}); err != ErrClosed {
		t.Fatalf("nil store Append = %v, want ErrClosed", err)
	}
}

func TestServiceRecordsBusEvents(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	bus := eventbus.New()
	svc := NewService(st, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx, bus)

	bus.Publish(eventbus.Event{
		Type: pool.EventTaskCompleted,
		Time: time.Now(),
		Data: pool.TaskEvent{Description: "q1", Priority: "normal", Type: "query", Duration: 10 * time.Millisecond},
	})
	bus.Publish(eventbus.Event{
		Type: pool.EventTaskRejected, // not persisted
		Time: time.Now(),
		Data: pool.TaskEvent{Description: "q2", Priority: "normal", Type: "query"},
	})
	bus.Publish(eventbus.Event{
		Type: pool.EventTaskSwept,
		Time: time.Now(),
		Data: pool.TaskEvent{Description: "q3", Priority: "low", Type: "background"},
	})

	deadline := time.Now().Add(2 * time.Second)
	var got []Entry
	for time.Now().Before(deadline) {
		var err error
		got, err = st.Recent(ctx, 10)
		if err != nil {
			t.Fatalf("Recent: %v", err)
		}
		if len(got) == 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(got) != 2 {
		t.Fatalf("persisted %d entries, want 2 (rejections are skipped)", len(got))
	}
	if got[0].Outcome != "swept" || got[1].Outcome != "completed" {
		t.Fatalf("outcomes = %s, %s", got[0].Outcome, got[1].Outcome)
	}

	svc.Stop()
}
