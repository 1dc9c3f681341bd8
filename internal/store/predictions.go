package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/utakatalp/matchday/internal/league"
)

const selectPrediction = `
SELECT id, match_id, user_id, home_goals, away_goals, winner, points_earned, status,
       created_at, updated_at, scored_at
FROM predictions
`

func scanPrediction(r rowScanner) (*league.Prediction, error) {
	var (
		p              league.Prediction
		winner, status string
		scored         pq.NullTime
	)
	if err := r.Scan(&p.ID, &p.MatchID, &p.UserID, &p.Predicted.Home, &p.Predicted.Away,
		&winner, &p.PointsEarned, &status, &p.CreatedAt, &p.UpdatedAt, &scored); err != nil {
		return nil, err
	}
	p.PredictedWinner = league.Winner(winner)
	p.Status = league.PredictionStatus(status)
	p.ScoredAt = timePtr(scored)
	return &p, nil
}

// GetPrediction returns the prediction of user for match.
func (s *Store) GetPrediction(ctx context.Context, matchID, userID string) (*league.Prediction, error) {
	p, err := scanPrediction(s.DB.QueryRowContext(ctx,
		selectPrediction+`WHERE match_id = $1 AND user_id = $2`, matchID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: prediction of user %s for match %s", league.ErrNotFound, userID, matchID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading prediction: %w", err)
	}
	return p, nil
}

// UpsertPrediction stores p, replacing the user's earlier forecast for the
// same match while it is still pending.
func (s *Store) UpsertPrediction(ctx context.Context, p *league.Prediction) error {
	const q = `
INSERT INTO predictions (id, match_id, user_id, home_goals, away_goals, winner, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (user_id, match_id) DO UPDATE
SET home_goals = EXCLUDED.home_goals,
    away_goals = EXCLUDED.away_goals,
    winner     = EXCLUDED.winner,
    updated_at = EXCLUDED.updated_at
WHERE predictions.status = 'pending'
`
	res, err := s.DB.ExecContext(ctx, q,
		p.ID, p.MatchID, p.UserID, p.Predicted.Home, p.Predicted.Away,
		string(p.PredictedWinner), string(p.Status), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving prediction of user %s for match %s: %w", p.UserID, p.MatchID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: prediction of user %s for match %s is already graded",
			league.ErrInvalidState, p.UserID, p.MatchID)
	}
	return nil
}

// PendingPredictions lists the ungraded predictions of a match.
func (s *Store) PendingPredictions(ctx context.Context, matchID string) ([]*league.Prediction, error) {
	rows, err := s.DB.QueryContext(ctx, selectPrediction+`WHERE match_id = $1 AND status = $2 ORDER BY id`,
		matchID, string(league.PredictionPending))
	if err != nil {
		return nil, fmt.Errorf("querying predictions: %w", err)
	}
	defer rows.Close()

	var out []*league.Prediction
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning prediction: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SavePredictionResult persists a graded prediction. Only a pending row is
// updated, so a result is written once.
func (s *Store) SavePredictionResult(ctx context.Context, p *league.Prediction) error {
	const q = `
UPDATE predictions
SET points_earned = $1, status = $2, scored_at = $3, updated_at = $4
WHERE id = $5 AND status = 'pending'
`
	if _, err := s.DB.ExecContext(ctx, q,
		p.PointsEarned, string(p.Status), nullTime(p.ScoredAt), p.UpdatedAt, p.ID); err != nil {
		return fmt.Errorf("saving result of prediction %s: %w", p.ID, err)
	}
	return nil
}
