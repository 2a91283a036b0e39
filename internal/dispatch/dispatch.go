package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/plasma-match/internal/fraud"
	"github.com/example/plasma-match/internal/ledger"
	"github.com/example/plasma-match/internal/models"
	"github.com/example/plasma-match/internal/observability"
)

// ContactRequest is the payload delivered to a donor when an automatic
// request is dispatched.
type ContactRequest struct {
	RequesterID        string  `json:"requester_id"`
	RequesterBloodType string  `json:"requester_blood_type"`
	DonorID            string  `json:"donor_id"`
	DistanceKm         float64 `json:"distance_km"`
	Score              float64 `json:"score"`
	Message            string  `json:"message"`
}

// Notifier delivers a contact request to a donor, best effort.
type Notifier interface {
	Notify(donorID string, req ContactRequest) error
}

// Outcome is the result of one dispatch batch.
type Outcome struct {
	Dispatched []models.DispatchOutcome
	Blocked    bool // the fraud gate vetoed the whole batch
}

// Auto fires automatic contact requests at the top ranked matches. It is
// the only component with side effects: ledger writes and donor
// notifications happen here, never in the matcher.
type Auto struct {
	Ledger   ledger.Ledger
	Gate     fraud.Gate
	Notifier Notifier
	Logger   *slog.Logger
}

// Dispatch walks matches in rank order until topN requests were recorded
// or the candidates run out. The fraud gate is checked once up front: a
// suspicious requester gets zero automatic requests. Donors with a live
// ledger entry are skipped without counting toward topN, as is a
// conditional insert lost to a concurrent dispatch. The loop checks ctx
// between candidates so cancellation never leaves a partial write.
func (a *Auto) Dispatch(ctx context.Context, requester models.Requester, matches []models.Match, topN int) (Outcome, error) {
	if topN <= 0 {
		return Outcome{}, fmt.Errorf("dispatch: top-n must be positive, got %d", topN)
	}
	if a.Gate != nil && a.Gate.IsSuspicious(ctx, requester) {
		observability.DispatchesBlocked.Inc()
		return Outcome{Blocked: true}, nil
	}

	out := Outcome{Dispatched: []models.DispatchOutcome{}}
	for _, m := range matches {
		if len(out.Dispatched) >= topN {
			break
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}
		live, err := a.Ledger.HasLive(ctx, requester.ID, m.DonorID)
		if err != nil {
			return out, fmt.Errorf("dispatch: %w", err)
		}
		if live {
			observability.DispatchesSkipped.Inc()
			continue
		}
		if _, err := a.Ledger.Record(ctx, requester.ID, m.DonorID); err != nil {
			if errors.Is(err, ledger.ErrConflict) {
				// another dispatch won the pair; move on
				observability.DispatchesSkipped.Inc()
				continue
			}
			return out, fmt.Errorf("dispatch: %w", err)
		}
		if a.Notifier != nil {
			cr := ContactRequest{
				RequesterID:        requester.ID,
				RequesterBloodType: requester.BloodType,
				DonorID:            m.DonorID,
				DistanceKm:         m.DistanceKm,
				Score:              m.Score,
				Message:            fmt.Sprintf("Automatic plasma donation request. Blood type needed: %s", requester.BloodType),
			}
			if err := a.Notifier.Notify(m.DonorID, cr); err != nil && a.Logger != nil {
				a.Logger.Warn("donor notification failed", "donor_id", m.DonorID, "error", err)
			}
		}
		observability.DispatchesSent.Inc()
		out.Dispatched = append(out.Dispatched, models.DispatchOutcome{
			DonorID:   m.DonorID,
			Status:    models.DispatchSent,
			MatchRank: m.Rank,
		})
	}
	return out, nil
}
