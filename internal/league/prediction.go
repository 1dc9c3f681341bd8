package league

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PredictionStatus is the grading state of a prediction.
type PredictionStatus string

const (
	PredictionPending          PredictionStatus = "pending"
	PredictionCorrect          PredictionStatus = "correct"
	PredictionPartiallyCorrect PredictionStatus = "partially_correct"
	PredictionIncorrect        PredictionStatus = "incorrect"
)

// Points per grading rule, highest priority first.
const (
	PointsExactScore   = 10
	PointsWinnerMargin = 7
	PointsWinnerOnly   = 5
	PointsMiss         = 0
)

// Prediction is a user's forecast of a final score. There is at most one per
// user and match.
type Prediction struct {
	ID              string           `json:"id"`
	MatchID         string           `json:"match_id"`
	UserID          string           `json:"user_id"`
	Predicted       Score            `json:"predicted_score"`
	PredictedWinner Winner           `json:"predicted_winner"`
	PointsEarned    int              `json:"points_earned"`
	Status          PredictionStatus `json:"status"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
	ScoredAt        *time.Time       `json:"scored_at,omitempty"`
}

// Result is the outcome of grading one prediction.
type Result struct {
	Points int              `json:"points"`
	Status PredictionStatus `json:"status"`
}

// NewPrediction creates a pending prediction and derives its winner.
func NewPrediction(matchID, userID string, predicted Score, at time.Time) (*Prediction, error) {
	if matchID == "" || userID == "" {
		return nil, fmt.Errorf("%w: prediction needs a match and a user", ErrValidation)
	}
	if err := validStruct(predicted); err != nil {
		return nil, err
	}
	return &Prediction{
		ID:              uuid.New().String(),
		MatchID:         matchID,
		UserID:          userID,
		Predicted:       predicted,
		PredictedWinner: predicted.Winner(),
		Status:          PredictionPending,
		CreatedAt:       at,
		UpdatedAt:       at,
	}, nil
}

// Update replaces the predicted score of a prediction that is not graded yet.
func (p *Prediction) Update(predicted Score, at time.Time) error {
	if p.Status != PredictionPending {
		return fmt.Errorf("%w: prediction %s is already graded", ErrInvalidState, p.ID)
	}
	if err := validStruct(predicted); err != nil {
		return err
	}
	p.Predicted = predicted
	p.PredictedWinner = predicted.Winner()
	p.UpdatedAt = at
	return nil
}

// CanPredict reports whether forecasts for m are still accepted.
func CanPredict(m *Match) error {
	if m.Status != StatusScheduled {
		return fmt.Errorf("%w: match %s is %s, predictions are closed", ErrPrecondition, m.ID, m.Status)
	}
	return nil
}

// Grade applies the scoring rules to a predicted and an actual score.
func Grade(predicted, actual Score) Result {
	switch {
	case predicted == actual:
		return Result{Points: PointsExactScore, Status: PredictionCorrect}
	case predicted.Winner() == actual.Winner() && predicted.Margin() == actual.Margin():
		return Result{Points: PointsWinnerMargin, Status: PredictionPartiallyCorrect}
	case predicted.Winner() == actual.Winner():
		return Result{Points: PointsWinnerOnly, Status: PredictionPartiallyCorrect}
	default:
		return Result{Points: PointsMiss, Status: PredictionIncorrect}
	}
}

// ScorePrediction grades p against the final score of m. It fails until m is
// finished.
func ScorePrediction(p *Prediction, m *Match) (Result, error) {
	if p.MatchID != m.ID {
		return Result{}, fmt.Errorf("%w: prediction %s is for match %s, not %s",
			ErrValidation, p.ID, p.MatchID, m.ID)
	}
	if m.Status != StatusFinished {
		return Result{}, fmt.Errorf("%w: match %s is %s, not finished", ErrPrecondition, m.ID, m.Status)
	}
	return Grade(p.Predicted, m.Score), nil
}

// Apply stores a grading result. A prediction is graded once; applying the
// same result again changes nothing, a different one is refused.
func (p *Prediction) Apply(r Result, at time.Time) error {
	if p.Status != PredictionPending {
		if p.Status == r.Status && p.PointsEarned == r.Points {
			return nil
		}
		return fmt.Errorf("%w: prediction %s already graded %s (%d points)",
			ErrInvalidState, p.ID, p.Status, p.PointsEarned)
	}
	p.PointsEarned = r.Points
	p.Status = r.Status
	p.ScoredAt = &at
	p.UpdatedAt = at
	return nil
}
