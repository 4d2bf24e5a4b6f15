package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/expertline/expertline/pkg/types"
)

func TestMemoryStore_CreateAndGet(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()

	created, err := s.Create(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID != "sess-1" {
		t.Errorf("ID = %q", created.ID)
	}
	if created.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}

	got, err := s.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != "sess-1" || got.Expert != nil || len(got.History) != 0 {
		t.Errorf("got = %+v", got)
	}
}

func TestMemoryStore_GetUnknown(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	if _, err := s.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_SetExpertAndAppend(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()
	s.Create(ctx, "sess-1")

	expert := &types.Expert{ID: "ada-lovelace", Name: "Ada Lovelace"}
	if err := s.SetExpert(ctx, "sess-1", expert); err != nil {
		t.Fatalf("SetExpert: %v", err)
	}
	if err := s.AppendMessage(ctx, "sess-1", types.Message{
		Role:    types.RoleUser,
		Content: "hello",
	}); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	got, err := s.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Expert == nil || got.Expert.Name != "Ada Lovelace" {
		t.Errorf("expert = %+v", got.Expert)
	}
	if len(got.History) != 1 || got.History[0].Content != "hello" {
		t.Errorf("history = %+v", got.History)
	}

	if err := s.SetExpert(ctx, "missing", expert); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetExpert unknown: err = %v", err)
	}
	if err := s.AppendMessage(ctx, "missing", types.Message{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("AppendMessage unknown: err = %v", err)
	}
}

func TestMemoryStore_SnapshotIsolation(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()
	s.Create(ctx, "sess-1")
	s.AppendMessage(ctx, "sess-1", types.Message{Content: "original"})

	snap, _ := s.Get(ctx, "sess-1")
	snap.History[0].Content = "mutated"
	snap.Expert = &types.Expert{Name: "intruder"}

	got, _ := s.Get(ctx, "sess-1")
	if got.History[0].Content != "original" {
		t.Error("mutating a snapshot leaked into the store")
	}
	if got.Expert != nil {
		t.Error("mutating a snapshot expert leaked into the store")
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()
	s.Create(ctx, "sess-1")

	removed, err := s.Delete(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !removed {
		t.Error("removed = false for an existing session, want true")
	}
	if _, err := s.Get(ctx, "sess-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err after delete = %v, want ErrNotFound", err)
	}
	removed, err = s.Delete(ctx, "sess-1")
	if err != nil {
		t.Errorf("Delete of unknown ID: %v, want nil", err)
	}
	if removed {
		t.Error("removed = true for an unknown ID, want false")
	}
	if s.Len() != 0 {
		t.Errorf("Len = %d, want 0", s.Len())
	}
}

func TestLocker_SerialisesSameSession(t *testing.T) {
	t.Parallel()

	l := NewLocker()
	ctx := context.Background()

	release, err := l.Acquire(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		r2, err := l.Acquire(ctx, "sess-1")
		if err != nil {
			t.Errorf("second Acquire: %v", err)
			close(acquired)
			return
		}
		close(acquired)
		r2()
	}()

	select {
	case <-acquired:
		t.Fatal("second Acquire succeeded while lock was held")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second Acquire did not proceed after release")
	}
}

func TestLocker_IndependentSessions(t *testing.T) {
	t.Parallel()

	l := NewLocker()
	ctx := context.Background()

	r1, err := l.Acquire(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Acquire sess-1: %v", err)
	}
	defer r1()

	ctx2, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	r2, err := l.Acquire(ctx2, "sess-2")
	if err != nil {
		t.Fatalf("Acquire sess-2 blocked by unrelated session: %v", err)
	}
	r2()
}

func TestLocker_AcquireCancelled(t *testing.T) {
	t.Parallel()

	l := NewLocker()
	release, err := l.Acquire(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := l.Acquire(ctx, "sess-1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
}

func TestLocker_ReleaseIdempotent(t *testing.T) {
	t.Parallel()

	l := NewLocker()
	release, err := l.Acquire(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	release()
	release() // second call must be a no-op

	r2, err := l.Acquire(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("re-Acquire: %v", err)
	}
	r2()
}

func TestLocker_NoLeakedEntries(t *testing.T) {
	t.Parallel()

	l := NewLocker()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(context.Background(), "shared")
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			release()
		}()
	}
	wg.Wait()

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.locks) != 0 {
		t.Errorf("locks map has %d entries, want 0", len(l.locks))
	}
}
