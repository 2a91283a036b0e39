package storage

import (
	"context"
	"sync"

	"github.com/example/plasma-match/internal/models"
)

// DonorStore supplies read-only donor snapshots for a search call. The
// engine only borrows the records; it never writes back.
type DonorStore interface {
	FetchCandidates(ctx context.Context) ([]models.Donor, error)
	UpsertDonor(ctx context.Context, d models.Donor) error
}

type MemoryStore struct {
	mu     sync.RWMutex
	donors map[string]models.Donor
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{donors: make(map[string]models.Donor)}
}

func (m *MemoryStore) FetchCandidates(ctx context.Context) ([]models.Donor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Donor, 0, len(m.donors))
	for _, d := range m.donors {
		out = append(out, d)
	}
	return out, nil
}

func (m *MemoryStore) UpsertDonor(ctx context.Context, d models.Donor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.donors[d.ID] = d
	return nil
}
