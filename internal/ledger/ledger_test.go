package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/plasma-match/internal/models"
)

func TestMemoryRecordAndHasLive(t *testing.T) {
	m := NewMemory(time.Hour)
	ctx := context.Background()

	live, err := m.HasLive(ctx, "r1", "d1")
	if err != nil || live {
		t.Fatalf("fresh ledger has live entry: %v %v", live, err)
	}

	e, err := m.Record(ctx, "r1", "d1")
	if err != nil {
		t.Fatal(err)
	}
	if e.Status != models.StatusPending {
		t.Errorf("new entry status = %s", e.Status)
	}
	if !e.ExpiresAt.After(e.CreatedAt) {
		t.Errorf("expiry not after creation: %+v", e)
	}

	if live, _ := m.HasLive(ctx, "r1", "d1"); !live {
		t.Error("recorded entry not live")
	}
	// other pairs unaffected
	if live, _ := m.HasLive(ctx, "r1", "d2"); live {
		t.Error("unrelated pair reported live")
	}
	if live, _ := m.HasLive(ctx, "r2", "d1"); live {
		t.Error("unrelated requester reported live")
	}
}

func TestMemoryRecordConflict(t *testing.T) {
	m := NewMemory(time.Hour)
	ctx := context.Background()
	if _, err := m.Record(ctx, "r1", "d1"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Record(ctx, "r1", "d1"); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate record: got %v, want ErrConflict", err)
	}
}

func TestMemoryRecordAtomicUnderConcurrency(t *testing.T) {
	m := NewMemory(time.Hour)
	ctx := context.Background()

	const workers = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Record(ctx, "r1", "d1"); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			} else if !errors.Is(err, ErrConflict) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if successes != 1 {
		t.Fatalf("concurrent records succeeded %d times, want exactly 1", successes)
	}
}

func TestMemoryLazyExpiry(t *testing.T) {
	m := NewMemory(time.Hour)
	now := time.Now()
	m.now = func() time.Time { return now }
	ctx := context.Background()

	if _, err := m.Record(ctx, "r1", "d1"); err != nil {
		t.Fatal(err)
	}

	// just before the window closes the entry is still live
	m.now = func() time.Time { return now.Add(time.Hour - time.Second) }
	if live, _ := m.HasLive(ctx, "r1", "d1"); !live {
		t.Error("entry expired early")
	}

	// past the window it stops blocking and a new record succeeds
	m.now = func() time.Time { return now.Add(time.Hour + time.Second) }
	if live, _ := m.HasLive(ctx, "r1", "d1"); live {
		t.Error("expired entry still live")
	}
	if _, err := m.Record(ctx, "r1", "d1"); err != nil {
		t.Errorf("record after expiry: %v", err)
	}
}

func TestMemoryResolve(t *testing.T) {
	m := NewMemory(time.Hour)
	ctx := context.Background()

	if _, err := m.Resolve(ctx, "r1", "d1", models.StatusAccepted); !errors.Is(err, ErrNotFound) {
		t.Fatalf("resolve without entry: got %v", err)
	}

	if _, err := m.Record(ctx, "r1", "d1"); err != nil {
		t.Fatal(err)
	}
	e, err := m.Resolve(ctx, "r1", "d1", models.StatusAccepted)
	if err != nil || e.Status != models.StatusAccepted {
		t.Fatalf("resolve: %+v %v", e, err)
	}

	// accepted entries stay live for dedup, but are no longer pending
	if live, _ := m.HasLive(ctx, "r1", "d1"); !live {
		t.Error("accepted entry should still be live")
	}
	if _, err := m.Resolve(ctx, "r1", "d1", models.StatusRejected); !errors.Is(err, ErrNotFound) {
		t.Fatalf("double resolve: got %v", err)
	}
}

func TestMemoryResolveRejectsBadOutcome(t *testing.T) {
	m := NewMemory(time.Hour)
	ctx := context.Background()
	if _, err := m.Record(ctx, "r1", "d1"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Resolve(ctx, "r1", "d1", models.StatusExpired); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired as outcome accepted: %v", err)
	}
}

func TestMemoryFraudulentEntriesExcludedFromDedup(t *testing.T) {
	m := NewMemory(time.Hour)
	ctx := context.Background()
	if _, err := m.Record(ctx, "r1", "d1"); err != nil {
		t.Fatal(err)
	}
	m.MarkFraudulent("r1")
	if live, _ := m.HasLive(ctx, "r1", "d1"); live {
		t.Error("fraud-flagged entry still counts toward dedup")
	}
	// the record itself is retained for audit
	if len(m.entries[pairKey{"r1", "d1"}]) != 1 {
		t.Error("fraud-flagged entry was deleted")
	}
}
