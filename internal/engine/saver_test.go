package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestSaverCoalescesPerCard(t *testing.T) {
	s := NewSaver(20*time.Millisecond, nil)
	var first, second atomic.Int32

	s.Schedule("a", func(context.Context) error { first.Add(1); return nil })
	s.Schedule("a", func(context.Context) error { second.Add(1); return nil })

	deadline := time.After(2 * time.Second)
	for second.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("debounced write never fired")
		case <-time.After(5 * time.Millisecond):
		}
	}
	s.Wait()
	if first.Load() != 0 {
		t.Fatal("superseded write must never run")
	}
	if second.Load() != 1 {
		t.Fatalf("latest write ran %d times", second.Load())
	}
}

func TestSaverCancelDiscardsPendingWrite(t *testing.T) {
	s := NewSaver(10*time.Millisecond, nil)
	var ran atomic.Int32

	s.Schedule("a", func(context.Context) error { ran.Add(1); return nil })
	s.Cancel("a")

	time.Sleep(50 * time.Millisecond)
	s.Wait()
	if ran.Load() != 0 {
		t.Fatal("canceled write must not run")
	}
	if s.PendingCount() != 0 {
		t.Fatalf("pending count %d after cancel", s.PendingCount())
	}
}

func TestSaverFlushRunsImmediately(t *testing.T) {
	s := NewSaver(time.Hour, nil)
	var ran atomic.Int32

	s.Schedule("a", func(context.Context) error { ran.Add(1); return nil })
	s.Flush("a")
	if ran.Load() != 1 {
		t.Fatalf("flush ran write %d times, want 1", ran.Load())
	}
	// Flushing again is a no-op.
	s.Flush("a")
	if ran.Load() != 1 {
		t.Fatal("second flush reran the write")
	}
}

func TestSaverFlushAll(t *testing.T) {
	s := NewSaver(time.Hour, nil)
	var ran atomic.Int32

	s.Schedule("a", func(context.Context) error { ran.Add(1); return nil })
	s.Schedule("b", func(context.Context) error { ran.Add(1); return nil })
	s.FlushAll()
	if ran.Load() != 2 {
		t.Fatalf("flush-all ran %d writes, want 2", ran.Load())
	}
}

func TestSaverSurfacesWriteFailure(t *testing.T) {
	s := NewSaver(time.Hour, nil)
	var gotCard string
	var gotErr error
	s.SetErrorHandler(func(cardID string, err error) {
		gotCard, gotErr = cardID, err
	})

	boom := errors.New("disk full")
	s.Schedule("a", func(context.Context) error { return boom })
	s.Flush("a")

	if gotCard != "a" || !errors.Is(gotErr, boom) {
		t.Fatalf("handler got (%q, %v)", gotCard, gotErr)
	}
}
