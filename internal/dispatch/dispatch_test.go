package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/plasma-match/internal/fraud"
	"github.com/example/plasma-match/internal/ledger"
	"github.com/example/plasma-match/internal/models"
)

type recordingNotifier struct{ sent []string }

func (r *recordingNotifier) Notify(donorID string, req ContactRequest) error {
	r.sent = append(r.sent, donorID)
	return nil
}

func rankedMatches(ids ...string) []models.Match {
	out := make([]models.Match, 0, len(ids))
	for i, id := range ids {
		out = append(out, models.Match{DonorID: id, BloodType: "O-", Score: 1 - float64(i)*0.1, Rank: i + 1})
	}
	return out
}

func requester() models.Requester {
	return models.Requester{ID: "r1", BloodType: "O-", Loc: models.Coord{Lat: 10, Lng: 10}}
}

func TestDispatchTopNCap(t *testing.T) {
	n := &recordingNotifier{}
	a := &Auto{Ledger: ledger.NewMemory(time.Hour), Gate: fraud.StaticGate{}, Notifier: n}

	out, err := a.Dispatch(context.Background(), requester(), rankedMatches("d1", "d2", "d3", "d4", "d5"), 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Dispatched) != 3 {
		t.Fatalf("dispatched %d, want 3", len(out.Dispatched))
	}
	for i, d := range out.Dispatched {
		if d.MatchRank != i+1 || d.Status != models.DispatchSent {
			t.Errorf("outcome[%d] = %+v", i, d)
		}
	}
	if len(n.sent) != 3 {
		t.Errorf("notified %d donors, want 3", len(n.sent))
	}
}

func TestDispatchFraudShortCircuit(t *testing.T) {
	led := ledger.NewMemory(time.Hour)
	a := &Auto{Ledger: led, Gate: fraud.StaticGate{Suspicious: true}, Notifier: &recordingNotifier{}}

	out, err := a.Dispatch(context.Background(), requester(), rankedMatches("d1", "d2"), 3)
	if err != nil {
		t.Fatal(err)
	}
	if !out.Blocked || len(out.Dispatched) != 0 {
		t.Fatalf("fraud gate not honored: %+v", out)
	}
	if live, _ := led.HasLive(context.Background(), "r1", "d1"); live {
		t.Error("ledger written despite fraud block")
	}
}

func TestDispatchSkipsLiveEntriesWithoutCountingThem(t *testing.T) {
	led := ledger.NewMemory(time.Hour)
	ctx := context.Background()
	// d1 already holds a live request from a previous dispatch
	if _, err := led.Record(ctx, "r1", "d1"); err != nil {
		t.Fatal(err)
	}
	n := &recordingNotifier{}
	a := &Auto{Ledger: led, Gate: fraud.StaticGate{}, Notifier: n}

	out, err := a.Dispatch(ctx, requester(), rankedMatches("d1", "d2", "d3", "d4"), 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Dispatched) != 3 {
		t.Fatalf("dispatched %d, want 3 (skip must not consume topN)", len(out.Dispatched))
	}
	for _, d := range out.Dispatched {
		if d.DonorID == "d1" {
			t.Error("dispatched to donor with live entry")
		}
	}
}

func TestDispatchRepeatWithinCooldownIsNoop(t *testing.T) {
	led := ledger.NewMemory(time.Hour)
	a := &Auto{Ledger: led, Gate: fraud.StaticGate{}, Notifier: &recordingNotifier{}}
	ctx := context.Background()
	matches := rankedMatches("d1", "d2", "d3")

	first, err := a.Dispatch(ctx, requester(), matches, 3)
	if err != nil || len(first.Dispatched) != 3 {
		t.Fatalf("first dispatch: %+v %v", first, err)
	}
	second, err := a.Dispatch(ctx, requester(), matches, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(second.Dispatched) != 0 {
		t.Fatalf("second dispatch within cooldown produced %d sends", len(second.Dispatched))
	}
}

// conflictLedger reports no live entry but always loses the insert race,
// modelling a concurrent dispatch winning between check and record.
type conflictLedger struct{ records int }

func (c *conflictLedger) HasLive(ctx context.Context, requesterID, donorID string) (bool, error) {
	return false, nil
}

func (c *conflictLedger) Record(ctx context.Context, requesterID, donorID string) (models.LedgerEntry, error) {
	c.records++
	return models.LedgerEntry{}, ledger.ErrConflict
}

func (c *conflictLedger) Resolve(ctx context.Context, requesterID, donorID string, outcome models.LedgerStatus) (models.LedgerEntry, error) {
	return models.LedgerEntry{}, ledger.ErrNotFound
}

func TestDispatchFoldsConflictIntoSkip(t *testing.T) {
	c := &conflictLedger{}
	a := &Auto{Ledger: c, Gate: fraud.StaticGate{}, Notifier: &recordingNotifier{}}

	out, err := a.Dispatch(context.Background(), requester(), rankedMatches("d1", "d2"), 3)
	if err != nil {
		t.Fatalf("conflict surfaced as error: %v", err)
	}
	if len(out.Dispatched) != 0 {
		t.Fatalf("lost races still dispatched: %+v", out.Dispatched)
	}
	if c.records != 2 {
		t.Errorf("expected an insert attempt per candidate, got %d", c.records)
	}
}

func TestDispatchStopsCleanlyOnCancellation(t *testing.T) {
	led := ledger.NewMemory(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a := &Auto{Ledger: led, Gate: fraud.StaticGate{}, Notifier: &recordingNotifier{}}

	out, err := a.Dispatch(ctx, requester(), rankedMatches("d1", "d2"), 3)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(out.Dispatched) != 0 {
		t.Fatalf("cancelled dispatch left outcomes: %+v", out.Dispatched)
	}
	if live, _ := led.HasLive(context.Background(), "r1", "d1"); live {
		t.Error("cancelled dispatch left a ledger write")
	}
}

func TestDispatchRejectsBadTopN(t *testing.T) {
	a := &Auto{Ledger: ledger.NewMemory(time.Hour), Gate: fraud.StaticGate{}}
	if _, err := a.Dispatch(context.Background(), requester(), rankedMatches("d1"), 0); err == nil {
		t.Fatal("top-n 0 accepted")
	}
}
