package service

import (
	"context"
	"errors"

	"github.com/utakatalp/matchday/internal/league"
)

// SubmitPrediction records or replaces a user's forecast for a match that
// has not kicked off.
func (s *Service) SubmitPrediction(ctx context.Context, matchID, userID string, score league.Score) (*league.Prediction, error) {
	m, err := s.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if err := league.CanPredict(m); err != nil {
		return nil, err
	}

	now := s.engine.Now()
	p, err := s.store.GetPrediction(ctx, matchID, userID)
	switch {
	case errors.Is(err, league.ErrNotFound):
		if p, err = league.NewPrediction(matchID, userID, score, now); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		if err := p.Update(score, now); err != nil {
			return nil, err
		}
	}

	if err := s.store.UpsertPrediction(ctx, p); err != nil {
		return nil, err
	}
	s.log.WithField("match_id", matchID).WithField("user_id", userID).Debug("prediction saved")
	return p, nil
}

func (s *Service) GetPrediction(ctx context.Context, matchID, userID string) (*league.Prediction, error) {
	return s.store.GetPrediction(ctx, matchID, userID)
}

// SettlePredictions grades the pending predictions of a finished match and
// returns how many were graded. Graded rows are never touched again, so it
// is safe to run more than once.
func (s *Service) SettlePredictions(ctx context.Context, matchID string) (int, error) {
	m, err := s.store.GetMatch(ctx, matchID)
	if err != nil {
		return 0, err
	}
	return s.settle(ctx, m)
}

func (s *Service) settle(ctx context.Context, m *league.Match) (int, error) {
	pending, err := s.store.PendingPredictions(ctx, m.ID)
	if err != nil {
		return 0, err
	}

	graded := 0
	now := s.engine.Now()
	for _, p := range pending {
		r, err := league.ScorePrediction(p, m)
		if err != nil {
			return graded, err
		}
		if err := p.Apply(r, now); err != nil {
			s.log.WithError(err).WithField("prediction_id", p.ID).Warn("prediction not graded")
			continue
		}
		if err := s.store.SavePredictionResult(ctx, p); err != nil {
			return graded, err
		}
		graded++
	}
	if graded > 0 {
		s.log.WithField("match_id", m.ID).WithField("graded", graded).Info("predictions settled")
	}
	return graded, nil
}
