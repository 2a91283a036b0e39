package scoring

import (
	"time"

	"github.com/example/plasma-match/internal/blood"
	"github.com/example/plasma-match/internal/models"
)

// Model is the deterministic fallback scorer. It is what ranks a batch
// whenever the external scorer is absent or unavailable.
//
// The score is a weighted sum in [0, 1.10]:
//
//	compatibility 0.40 (+0.05 exact type match)
//	distance      0.30 * max(0, 1 - d/radius)
//	availability  0.20 (+0.05 active within 7d, else +0.03 within 30d)
//	history       min(0.10, donations * 0.02)
//
// The two bonuses are why the cap exceeds 1.0.
type Model struct {
	CompatWeight     float64
	DistanceWeight   float64
	AvailWeight      float64
	HistoryCap       float64
	ExactBonus       float64
	RecentWeekBonus  float64
	RecentMonthBonus float64

	// Now is injectable for recency tests; nil means time.Now.
	Now func() time.Time
}

// NewModel returns a Model with the production weights.
func NewModel() *Model {
	return &Model{
		CompatWeight:     0.40,
		DistanceWeight:   0.30,
		AvailWeight:      0.20,
		HistoryCap:       0.10,
		ExactBonus:       0.05,
		RecentWeekBonus:  0.05,
		RecentMonthBonus: 0.03,
	}
}

func (m *Model) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// Score ranks one donor for a requester of type reqType at distKm, inside
// a search radius of radiusKm. Inputs are pre-validated by the matcher;
// Score itself never fails.
func (m *Model) Score(d models.Donor, reqType blood.Type, distKm, radiusKm float64) float64 {
	var score float64

	donorType := blood.Type(d.BloodType)
	if blood.CanDonateTo(donorType, reqType) {
		score += m.CompatWeight
		if donorType == reqType {
			score += m.ExactBonus
		}
	}

	if radiusKm > 0 {
		frac := 1 - distKm/radiusKm
		if frac < 0 {
			frac = 0
		}
		score += m.DistanceWeight * frac
	}

	if d.Available {
		score += m.AvailWeight
	}
	// Recency is independent of the availability flag: a donor can be
	// unavailable today and still recently active.
	if !d.LastActive.IsZero() {
		since := m.now().Sub(d.LastActive)
		switch {
		case since < 7*24*time.Hour:
			score += m.RecentWeekBonus
		case since < 30*24*time.Hour:
			score += m.RecentMonthBonus
		}
	}

	history := float64(d.SuccessfulDonations) * 0.02
	if history > m.HistoryCap {
		history = m.HistoryCap
	}
	score += history

	return score
}
