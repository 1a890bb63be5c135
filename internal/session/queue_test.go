package session

import (
	"context"
	"errors"
	"testing"
)

func TestWriteQueueDrainPreservesOrder(t *testing.T) {
	q := NewWriteQueue()
	var applied []string
	for _, m := range []string{"a", "b", "c"} {
		m := m
		q.Enqueue(m, func(ctx context.Context) error {
			applied = append(applied, m)
			return nil
		})
	}
	if got := q.Methods(); len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Fatalf("methods out of order: %v", got)
	}
	if err := q.Drain(context.Background()); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(applied) != 3 || applied[0] != "a" || applied[1] != "b" || applied[2] != "c" {
		t.Fatalf("drain order wrong: %v", applied)
	}
	if q.Len() != 0 {
		t.Fatalf("queue should be empty after drain, has %d", q.Len())
	}
}

func TestWriteQueueDrainStopsAtFirstFailureAndResumes(t *testing.T) {
	q := NewWriteQueue()
	boom := errors.New("boom")
	var applied []string
	shouldFail := true

	q.Enqueue("first", func(ctx context.Context) error {
		applied = append(applied, "first")
		return nil
	})
	q.Enqueue("flaky", func(ctx context.Context) error {
		if shouldFail {
			return boom
		}
		applied = append(applied, "flaky")
		return nil
	})
	q.Enqueue("last", func(ctx context.Context) error {
		applied = append(applied, "last")
		return nil
	})

	if err := q.Drain(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected the flaky error, got %v", err)
	}
	if len(applied) != 1 || applied[0] != "first" {
		t.Fatalf("drain should stop at the failure: %v", applied)
	}
	if q.Len() != 2 {
		t.Fatalf("failed and unapplied calls must stay queued, have %d", q.Len())
	}

	shouldFail = false
	if err := q.Drain(context.Background()); err != nil {
		t.Fatalf("retry drain: %v", err)
	}
	if len(applied) != 3 || applied[2] != "last" {
		t.Fatalf("retry should resume where it stopped: %v", applied)
	}
}

func TestWriteQueueDiscard(t *testing.T) {
	q := NewWriteQueue()
	ran := false
	q.Enqueue("x", func(ctx context.Context) error { ran = true; return nil })
	q.Enqueue("y", func(ctx context.Context) error { ran = true; return nil })

	if n := q.Discard(); n != 2 {
		t.Fatalf("expected 2 discarded, got %d", n)
	}
	if err := q.Drain(context.Background()); err != nil {
		t.Fatalf("Drain after discard: %v", err)
	}
	if ran {
		t.Fatal("discarded calls must never run")
	}
}
