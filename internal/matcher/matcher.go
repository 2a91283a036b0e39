package matcher

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/example/plasma-match/internal/blood"
	"github.com/example/plasma-match/internal/geo"
	"github.com/example/plasma-match/internal/models"
	"github.com/example/plasma-match/internal/observability"
	"github.com/example/plasma-match/internal/scoring"
)

var (
	// ErrInvalidLocation means the requester coordinate is out of range or
	// the (0,0) unknown-location sentinel.
	ErrInvalidLocation = errors.New("invalid requester location")
	// ErrInvalidArgument means a non-positive radius or max-matches.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Request is one search invocation.
type Request struct {
	Requester  models.Requester
	RadiusKm   float64
	MaxMatches int
}

// Result is the ordered, truncated match set plus a reason code that lets
// callers tell "no donors at all" from "no compatible donor in range".
// An empty match list is a success, not an error.
type Result struct {
	Matches []models.Match
	Reason  models.SearchReason
}

// Service ranks donor candidates for a requester. It holds no per-call
// state and is safe for concurrent use; all side effects belong to the
// dispatcher.
type Service struct {
	Scorer   scoring.External // optional; nil means fallback only
	Fallback *scoring.Model
}

func NewService(ext scoring.External) *Service {
	return &Service{Scorer: ext, Fallback: scoring.NewModel()}
}

type candidate struct {
	d    models.Donor
	dist float64
}

// FindMatches filters candidates by availability, plasma compatibility
// and radius, scores the survivors (external scorer first, deterministic
// model for the whole batch on unavailability), sorts, truncates to
// MaxMatches and assigns 1-based ranks.
func (s *Service) FindMatches(ctx context.Context, req Request, candidates []models.Donor) (Result, error) {
	if req.MaxMatches <= 0 {
		return Result{}, fmt.Errorf("%w: max matches %d", ErrInvalidArgument, req.MaxMatches)
	}
	if req.RadiusKm <= 0 {
		return Result{}, fmt.Errorf("%w: radius %g", ErrInvalidArgument, req.RadiusKm)
	}
	if !req.Requester.Loc.Valid() || req.Requester.Loc.IsZero() {
		return Result{}, fmt.Errorf("%w: (%g, %g)", ErrInvalidLocation, req.Requester.Loc.Lat, req.Requester.Loc.Lng)
	}
	reqType, err := blood.Parse(req.Requester.BloodType)
	if err != nil {
		return Result{}, err
	}

	observability.SearchesTotal.Inc()

	if len(candidates) == 0 {
		return Result{Reason: models.ReasonNoCandidates}, nil
	}

	kept := make([]candidate, 0, len(candidates))
	for _, d := range candidates {
		if !d.Available || d.Loc.IsZero() {
			continue
		}
		if !blood.CanDonateTo(blood.Type(d.BloodType), reqType) {
			continue
		}
		dist := geo.HaversineKm(req.Requester.Loc.Lat, req.Requester.Loc.Lng, d.Loc.Lat, d.Loc.Lng)
		// boundary inclusive: a donor at exactly the radius stays in
		if dist > req.RadiusKm {
			continue
		}
		kept = append(kept, candidate{d: d, dist: dist})
	}
	if len(kept) == 0 {
		return Result{Reason: models.ReasonNoneCompatible}, nil
	}

	source, scores := s.scoreBatch(ctx, req, reqType, kept)

	// cancellation checkpoint: after the external-score attempt, before
	// any result is assembled for dispatch
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	matches := make([]models.Match, 0, len(kept))
	for i, c := range kept {
		matches = append(matches, models.Match{
			DonorID:    c.d.ID,
			BloodType:  c.d.BloodType,
			DistanceKm: c.dist,
			Score:      scores[i],
			Source:     source,
			Phone:      c.d.Phone,
		})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if matches[i].DistanceKm != matches[j].DistanceKm {
			return matches[i].DistanceKm < matches[j].DistanceKm
		}
		return matches[i].DonorID < matches[j].DonorID
	})
	if len(matches) > req.MaxMatches {
		matches = matches[:req.MaxMatches]
	}
	for i := range matches {
		matches[i].Rank = i + 1
	}
	observability.MatchesTotal.Add(float64(len(matches)))
	return Result{Matches: matches, Reason: models.ReasonOK}, nil
}

// scoreBatch attempts the external scorer and falls back to the
// deterministic model for the entire batch on any unavailability, so a
// single ranking never mixes score sources.
func (s *Service) scoreBatch(ctx context.Context, req Request, reqType blood.Type, kept []candidate) (models.ScoreSource, []float64) {
	if s.Scorer != nil {
		donors := make([]models.Donor, len(kept))
		for i, c := range kept {
			donors[i] = c.d
		}
		if scored, err := s.Scorer.TryScore(ctx, req.Requester, donors); err == nil {
			if scores, ok := alignScores(kept, scored); ok {
				return models.ScoreExternal, scores
			}
			// a response missing donors is as unusable as a malformed one
		}
		observability.ScorerFallbacksTotal.Inc()
	}
	scores := make([]float64, len(kept))
	for i, c := range kept {
		scores[i] = s.Fallback.Score(c.d, reqType, c.dist, req.RadiusKm)
	}
	return models.ScoreFallback, scores
}

func alignScores(kept []candidate, scored []scoring.ScoredDonor) ([]float64, bool) {
	byID := make(map[string]float64, len(scored))
	for _, sd := range scored {
		byID[sd.DonorID] = sd.Score
	}
	scores := make([]float64, len(kept))
	for i, c := range kept {
		v, ok := byID[c.d.ID]
		if !ok {
			return nil, false
		}
		scores[i] = v
	}
	return scores, true
}
