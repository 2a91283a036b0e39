package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/example/plasma-match/internal/models"
)

var (
	// ErrNotFound means no live pending entry exists for the pair.
	ErrNotFound = errors.New("ledger entry not found")
	// ErrConflict means the conditional insert lost a race: another
	// dispatch already created a live entry for the pair. The dispatcher
	// folds this into a skip, not a failure.
	ErrConflict = errors.New("live ledger entry already exists")
)

// DefaultCooldown is the window during which a (requester, donor) pair
// may hold at most one live entry.
const DefaultCooldown = 24 * time.Hour

// Ledger is the dispatched-request store. Record must be atomic with
// respect to HasLive: two concurrent callers must not both insert a live
// entry for the same pair.
type Ledger interface {
	HasLive(ctx context.Context, requesterID, donorID string) (bool, error)
	Record(ctx context.Context, requesterID, donorID string) (models.LedgerEntry, error)
	Resolve(ctx context.Context, requesterID, donorID string, outcome models.LedgerStatus) (models.LedgerEntry, error)
}

// Memory is the in-process ledger. A single mutex covers the
// check-then-insert sequence; expiry is lazy, judged against ExpiresAt on
// every read rather than swept by a background goroutine.
type Memory struct {
	mu       sync.Mutex
	entries  map[pairKey][]models.LedgerEntry
	cooldown time.Duration
	now      func() time.Time
}

type pairKey struct{ requester, donor string }

func NewMemory(cooldown time.Duration) *Memory {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Memory{entries: make(map[pairKey][]models.LedgerEntry), cooldown: cooldown, now: time.Now}
}

func (m *Memory) HasLive(ctx context.Context, requesterID, donorID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hasLiveLocked(requesterID, donorID), nil
}

func (m *Memory) hasLiveLocked(requesterID, donorID string) bool {
	now := m.now()
	for _, e := range m.entries[pairKey{requesterID, donorID}] {
		if e.Live(now) {
			return true
		}
	}
	return false
}

func (m *Memory) Record(ctx context.Context, requesterID, donorID string) (models.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hasLiveLocked(requesterID, donorID) {
		return models.LedgerEntry{}, ErrConflict
	}
	now := m.now()
	e := models.LedgerEntry{
		RequesterID: requesterID,
		DonorID:     donorID,
		Status:      models.StatusPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(m.cooldown),
	}
	k := pairKey{requesterID, donorID}
	m.entries[k] = append(m.entries[k], e)
	return e, nil
}

func (m *Memory) Resolve(ctx context.Context, requesterID, donorID string, outcome models.LedgerStatus) (models.LedgerEntry, error) {
	if outcome != models.StatusAccepted && outcome != models.StatusRejected {
		return models.LedgerEntry{}, ErrNotFound
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	k := pairKey{requesterID, donorID}
	list := m.entries[k]
	for i := range list {
		if list[i].Status == models.StatusPending && list[i].Live(now) {
			list[i].Status = outcome
			return list[i], nil
		}
	}
	return models.LedgerEntry{}, ErrNotFound
}

// MarkFraudulent flags every entry for the requester as fraudulent.
// Flagged entries stop counting toward dedup but stay for audit.
func (m *Memory) MarkFraudulent(requesterID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, list := range m.entries {
		if k.requester != requesterID {
			continue
		}
		for i := range list {
			list[i].Fraudulent = true
		}
	}
}
