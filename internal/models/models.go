package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// IsZero reports whether the coordinate is the (0,0) "unknown location"
// sentinel. Donors with an unknown location never enter a match set.
func (c Coord) IsZero() bool { return c.Lat == 0 && c.Lng == 0 }

// Valid reports whether the coordinate is within lat [-90,90] / lng [-180,180].
func (c Coord) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// Donor is a read-only snapshot of a donor record supplied by the store
// per search call. The engine never mutates it.
type Donor struct {
	ID                  string    `json:"id"`
	BloodType           string    `json:"blood_type"`
	Loc                 Coord     `json:"loc"`
	Available           bool      `json:"available"`
	LastActive          time.Time `json:"last_active,omitempty"`
	SuccessfulDonations int       `json:"successful_donations"`
	Phone               string    `json:"phone,omitempty"`
}

type Requester struct {
	ID        string `json:"id"`
	BloodType string `json:"blood_type"`
	Loc       Coord  `json:"loc"`
}

// ScoreSource records which scorer produced a match's score. A single
// search response never mixes the two.
type ScoreSource string

const (
	ScoreExternal ScoreSource = "external"
	ScoreFallback ScoreSource = "fallback"
)

type Match struct {
	DonorID    string      `json:"donor_id"`
	BloodType  string      `json:"blood_type"`
	DistanceKm float64     `json:"distance_km"`
	Score      float64     `json:"score"`
	Source     ScoreSource `json:"source"`
	Rank       int         `json:"rank"`
	Phone      string      `json:"phone,omitempty"`
}

// SearchReason distinguishes the normal empty-result outcomes from each
// other; none of them is an error.
type SearchReason string

const (
	ReasonOK             SearchReason = "ok"
	ReasonNoCandidates   SearchReason = "no_candidates"
	ReasonNoneCompatible SearchReason = "none_compatible"
)

type LedgerStatus string

const (
	StatusPending  LedgerStatus = "pending"
	StatusAccepted LedgerStatus = "accepted"
	StatusRejected LedgerStatus = "rejected"
	StatusExpired  LedgerStatus = "expired"
)

type LedgerEntry struct {
	RequesterID string       `json:"requester_id"`
	DonorID     string       `json:"donor_id"`
	Status      LedgerStatus `json:"status"`
	Fraudulent  bool         `json:"fraudulent,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	ExpiresAt   time.Time    `json:"expires_at"`
}

// Live reports whether the entry still blocks another automatic request
// for the same pair at time now. Fraud-flagged entries are kept for audit
// but never count toward dedup.
func (e LedgerEntry) Live(now time.Time) bool {
	if e.Fraudulent {
		return false
	}
	if e.Status != StatusPending && e.Status != StatusAccepted {
		return false
	}
	return now.Before(e.ExpiresAt)
}

type DispatchStatus string

const (
	DispatchSent    DispatchStatus = "sent"
	DispatchBlocked DispatchStatus = "blocked_by_fraud_gate"
)

type DispatchOutcome struct {
	DonorID   string         `json:"donor_id"`
	Status    DispatchStatus `json:"status"`
	MatchRank int            `json:"match_rank"`
}

// StatusUpdate is the donor availability/location event published by the
// API and consumed by the geo index updater.
type StatusUpdate struct {
	ID         string    `json:"id"`
	BloodType  string    `json:"blood_type"`
	Loc        Coord     `json:"loc"`
	Available  bool      `json:"available"`
	LastActive time.Time `json:"last_active"`
}
