package service

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/utakatalp/matchday/internal/cache"
	"github.com/utakatalp/matchday/internal/league"
)

// Standings returns the table of a league season, from the cache when it
// holds one.
func (s *Service) Standings(ctx context.Context, leagueID, seasonID string) ([]*league.TeamSeasonStat, error) {
	key := cache.StandingsKey(leagueID, seasonID)
	var table []*league.TeamSeasonStat
	if s.cacheGet(ctx, key, &table) {
		return table, nil
	}

	matches, err := s.store.LoadFinishedMatches(ctx, leagueID, seasonID)
	if err != nil {
		return nil, err
	}
	table, skipped := league.ComputeStandingsConcurrent(matches, s.opts.Points, s.opts.Workers)
	s.logSkips(leagueID, seasonID, "standings", skipped)
	s.cacheSet(ctx, key, table)
	return table, nil
}

// Leaderboard returns the top scorers and assisters of a league season. A k
// above the configured size is computed without the cache; a smaller one
// truncates the cached board.
func (s *Service) Leaderboard(ctx context.Context, leagueID, seasonID string, k int) (league.Leaderboard, error) {
	if k > s.opts.LeaderboardSize {
		matches, err := s.store.LoadFinishedMatches(ctx, leagueID, seasonID)
		if err != nil {
			return league.Leaderboard{}, err
		}
		return league.ComputeLeaderboard(matches, k), nil
	}

	key := cache.LeaderboardKey(leagueID, seasonID)
	var board league.Leaderboard
	if !s.cacheGet(ctx, key, &board) {
		matches, err := s.store.LoadFinishedMatches(ctx, leagueID, seasonID)
		if err != nil {
			return league.Leaderboard{}, err
		}
		board = league.ComputeLeaderboard(matches, s.opts.LeaderboardSize)
		s.logSkips(leagueID, seasonID, "leaderboard", board.Skipped)
		s.cacheSet(ctx, key, board)
	}

	if k > 0 {
		board.Scorers = truncate(board.Scorers, k)
		board.Assists = truncate(board.Assists, k)
	}
	return board, nil
}

func truncate(rows []league.PlayerCount, k int) []league.PlayerCount {
	if len(rows) > k {
		return rows[:k]
	}
	return rows
}

// RebuildTables drops and recomputes the cached tables of several seasons
// in parallel and returns the fresh standings per season.
func (s *Service) RebuildTables(ctx context.Context, leagueID string, seasons []string) (map[string][]*league.TeamSeasonStat, error) {
	var mu sync.Mutex
	out := make(map[string][]*league.TeamSeasonStat, len(seasons))

	g, ctx := errgroup.WithContext(ctx)
	for _, season := range seasons {
		season := season
		g.Go(func() error {
			if s.opts.Cache != nil {
				if err := s.opts.Cache.Invalidate(ctx,
					cache.StandingsKey(leagueID, season),
					cache.LeaderboardKey(leagueID, season)); err != nil {
					s.log.WithError(err).WithField("season_id", season).Warn("cache invalidation failed")
				}
			}
			table, err := s.Standings(ctx, leagueID, season)
			if err != nil {
				return err
			}
			if _, err := s.Leaderboard(ctx, leagueID, season, 0); err != nil {
				return err
			}
			mu.Lock()
			out[season] = table
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) cacheGet(ctx context.Context, key string, v interface{}) bool {
	if s.opts.Cache == nil {
		return false
	}
	hit, err := s.opts.Cache.GetJSON(ctx, key, v)
	if err != nil {
		s.log.WithError(err).WithField("key", key).Warn("cache read failed")
		return false
	}
	return hit
}

func (s *Service) logSkips(leagueID, seasonID, table string, skipped []league.Skip) {
	for _, sk := range skipped {
		s.log.WithFields(logrus.Fields{
			"league_id": leagueID,
			"season_id": seasonID,
			"table":     table,
			"match_id":  sk.MatchID,
			"reason":    sk.Reason,
		}).Warn("match skipped")
	}
}
