package assigner

import (
	"context"
	"fmt"
	"time"

	"github.com/ppamtools/shift-assigner/pkg/db"
)

// Rejection reasons, as shown to operators in the pipeline
const (
	ReasonOK          = "OK"
	ReasonNotPossible = "Punto marcado no_posible"
	ReasonUnavailable = "No disponible"
	ReasonAbsent      = "Ausente"
	ReasonConflict    = "Conflicto horario"
)

// Score is the outcome of evaluating one candidate for one shift.
// Ineligibility is a normal outcome carried in Reason, never an error.
type Score struct {
	PublisherID int64
	Eligible    bool
	Total       float64
	Reason      string
}

// Scorer combines hard constraints and weighted soft signals into a Score
type Scorer struct {
	cfg   Config
	today func() time.Time
}

// NewScorer creates a scorer; today anchors the fairness window
func NewScorer(cfg Config, today func() time.Time) *Scorer {
	if today == nil {
		today = time.Now
	}
	return &Scorer{cfg: cfg, today: today}
}

func rejected(publisherID int64, reason string) Score {
	return Score{PublisherID: publisherID, Eligible: false, Reason: reason}
}

// Score evaluates the publisher for the shift, short-circuiting on the first hard failure
func (s *Scorer) Score(ctx context.Context, tx db.Tx, publisherID int64, shift *db.Shift) (Score, error) {
	checker := NewChecker(tx)
	var total float64

	// Point preference and language are optional signals; missing data is neutral
	pref, err := tx.PointPreference(ctx, publisherID, shift.PointID)
	if err != nil {
		return Score{}, fmt.Errorf("failed to load point preference for publisher %d: %w", publisherID, err)
	}
	switch pref {
	case db.PreferenceNotPossible:
		return rejected(publisherID, ReasonNotPossible), nil
	case db.PreferencePreferred:
		total += s.cfg.Weights.Preferred
	case db.PreferencePossible:
		total += s.cfg.Weights.Possible
	}

	compatible, err := tx.LanguageCompatible(ctx, publisherID, shift.PointID)
	if err != nil {
		return Score{}, fmt.Errorf("failed to check language for publisher %d: %w", publisherID, err)
	}
	if compatible {
		total += s.cfg.Weights.Language
	}

	available, err := checker.HasStandingRequestCovering(ctx, publisherID, shift)
	if err != nil {
		return Score{}, err
	}
	if !available {
		return rejected(publisherID, ReasonUnavailable), nil
	}
	total += s.cfg.Weights.Availability

	reason, err := checker.Conflict(ctx, publisherID, shift)
	if err != nil {
		return Score{}, err
	}
	if reason != "" {
		return rejected(publisherID, reason), nil
	}

	if s.cfg.UseFairness {
		recent, err := checker.RecentAssignmentCount(ctx, publisherID, s.cfg.FairnessWindowWeeks, s.today())
		if err != nil {
			return Score{}, err
		}
		total -= float64(recent) * s.cfg.PenaltyPerRecentShift
	}

	requested, err := checker.PreviouslyRequestedThisPoint(ctx, publisherID, shift.PointID)
	if err != nil {
		return Score{}, err
	}
	if requested {
		total += s.cfg.Weights.RoleBonus
	}

	return Score{PublisherID: publisherID, Eligible: true, Total: total, Reason: ReasonOK}, nil
}
