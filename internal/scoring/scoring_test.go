package scoring

import (
	"math"
	"testing"
	"time"

	"github.com/example/plasma-match/internal/blood"
	"github.com/example/plasma-match/internal/models"
)

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestScoreExactMatchScenario(t *testing.T) {
	// O- donor for an O- requester, 2 km inside a 20 km radius, available,
	// no history, no recent activity: 0.45 + 0.27 + 0.20 = 0.92
	m := NewModel()
	d := models.Donor{ID: "d1", BloodType: "O-", Available: true}
	got := m.Score(d, blood.ONeg, 2, 20)
	if !almostEqual(got, 0.92) {
		t.Fatalf("score = %f, want 0.92", got)
	}
}

func TestScoreBounds(t *testing.T) {
	now := time.Now()
	m := NewModel()
	m.Now = func() time.Time { return now }
	donors := []models.Donor{
		{},
		{BloodType: "AB+", Available: true, LastActive: now.Add(-time.Hour), SuccessfulDonations: 100},
		{BloodType: "O+", Available: false, LastActive: now.Add(-20 * 24 * time.Hour), SuccessfulDonations: 3},
		{BloodType: "B-", Available: true, SuccessfulDonations: 5},
	}
	for _, req := range blood.All {
		for _, d := range donors {
			for _, dist := range []float64{0, 1, 10, 49.999, 50, 500} {
				s := m.Score(d, req, dist, 50)
				if s < 0 || s > 1.10+1e-9 {
					t.Errorf("score out of bounds: %f for donor=%+v req=%s dist=%f", s, d, req, dist)
				}
			}
		}
	}
}

func TestScoreMaximum(t *testing.T) {
	now := time.Now()
	m := NewModel()
	m.Now = func() time.Time { return now }
	// exact match, zero distance, available, recent, deep history hits the cap
	d := models.Donor{BloodType: "A+", Available: true, LastActive: now.Add(-time.Hour), SuccessfulDonations: 50}
	got := m.Score(d, blood.APos, 0, 20)
	if !almostEqual(got, 1.10) {
		t.Fatalf("score = %f, want 1.10", got)
	}
}

func TestScoreRecencyBonusIndependentOfAvailability(t *testing.T) {
	now := time.Now()
	m := NewModel()
	m.Now = func() time.Time { return now }

	base := models.Donor{BloodType: "O-", Available: false}
	week := base
	week.LastActive = now.Add(-3 * 24 * time.Hour)
	month := base
	month.LastActive = now.Add(-20 * 24 * time.Hour)
	stale := base
	stale.LastActive = now.Add(-90 * 24 * time.Hour)

	s0 := m.Score(base, blood.ONeg, 10, 20)
	sw := m.Score(week, blood.ONeg, 10, 20)
	sm := m.Score(month, blood.ONeg, 10, 20)
	ss := m.Score(stale, blood.ONeg, 10, 20)

	if !almostEqual(sw-s0, 0.05) {
		t.Errorf("week bonus = %f, want 0.05", sw-s0)
	}
	if !almostEqual(sm-s0, 0.03) {
		t.Errorf("month bonus = %f, want 0.03", sm-s0)
	}
	if !almostEqual(ss, s0) {
		t.Errorf("stale activity changed score: %f vs %f", ss, s0)
	}
}

func TestScoreDistanceTermFloorsAtRadius(t *testing.T) {
	m := NewModel()
	d := models.Donor{BloodType: "O-", Available: true}
	at := m.Score(d, blood.ONeg, 20, 20)
	beyond := m.Score(d, blood.ONeg, 35, 20)
	if !almostEqual(at, beyond) {
		t.Fatalf("distance term below zero: at=%f beyond=%f", at, beyond)
	}
}

func TestScoreHistoryCap(t *testing.T) {
	m := NewModel()
	three := models.Donor{BloodType: "O-", SuccessfulDonations: 3}
	many := models.Donor{BloodType: "O-", SuccessfulDonations: 99}
	s3 := m.Score(three, blood.ONeg, 10, 20)
	s99 := m.Score(many, blood.ONeg, 10, 20)
	if !almostEqual(s99-s3, 0.10-0.06) {
		t.Fatalf("history cap broken: 3 donations = %f, 99 donations = %f", s3, s99)
	}
}
