package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/example/plasma-match/internal/models"
)

// ErrUnavailable means the external scorer could not produce a usable
// result for the batch: transport failure, timeout, or a structurally
// invalid response. The caller falls back to the deterministic Model for
// the whole batch; scores from the two sources are never mixed within
// one ranking.
var ErrUnavailable = errors.New("external scorer unavailable")

// ScoredDonor is one row of an external scoring response.
type ScoredDonor struct {
	DonorID string
	Score   float64
}

// External scores a donor batch for a requester. Implementations must
// enforce their own hard timeout; the matcher does not retry.
type External interface {
	TryScore(ctx context.Context, req models.Requester, donors []models.Donor) ([]ScoredDonor, error)
}

// HTTPScorer calls an out-of-process scoring service over HTTP. The
// request/response shapes mirror the ML matching service contract:
// {requester, donors} in, {matches: [{donor_id, score}]} out.
type HTTPScorer struct {
	Endpoint string
	Client   *http.Client
}

const DefaultScorerTimeout = 10 * time.Second

func NewHTTPScorer(endpoint string, timeout time.Duration) *HTTPScorer {
	if timeout <= 0 {
		timeout = DefaultScorerTimeout
	}
	return &HTTPScorer{Endpoint: endpoint, Client: &http.Client{Timeout: timeout}}
}

type scoreRequest struct {
	Requester models.Requester `json:"requester"`
	Donors    []models.Donor   `json:"donors"`
}

type scoreResponse struct {
	Matches []struct {
		DonorID string   `json:"donor_id"`
		Score   *float64 `json:"score"`
	} `json:"matches"`
}

func (s *HTTPScorer) TryScore(ctx context.Context, req models.Requester, donors []models.Donor) ([]ScoredDonor, error) {
	body, err := json.Marshal(scoreRequest{Requester: req, Donors: donors})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var out scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	// All-or-nothing: a single malformed row invalidates the batch so the
	// caller can keep scores comparable within one ranking.
	scored := make([]ScoredDonor, 0, len(out.Matches))
	for _, m := range out.Matches {
		if m.DonorID == "" || m.Score == nil || math.IsNaN(*m.Score) || math.IsInf(*m.Score, 0) {
			return nil, fmt.Errorf("%w: malformed match row", ErrUnavailable)
		}
		scored = append(scored, ScoredDonor{DonorID: m.DonorID, Score: *m.Score})
	}
	return scored, nil
}
