package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utakatalp/matchday/internal/cache"
	"github.com/utakatalp/matchday/internal/league"
	"github.com/utakatalp/matchday/internal/store"
)

func goal(side league.Side, minute int, player, assist string) league.Event {
	return league.Event{Type: league.EventGoal, Team: side, Minute: minute, PlayerID: player, AssistedBy: assist}
}

func TestMatchLifecycleCommitsAndFansOut(t *testing.T) {
	kickoff := time.Date(2026, 9, 12, 15, 0, 0, 0, time.UTC)
	h := newHarness(fixture("m1", kickoff))
	ctx := context.Background()

	_, err := h.svc.Start(ctx, "m1")
	require.NoError(t, err)
	_, err = h.svc.AppendEvent(ctx, "m1", goal(league.SideHome, 12, "saka", "odegaard"))
	require.NoError(t, err)
	_, err = h.svc.Halftime(ctx, "m1")
	require.NoError(t, err)
	_, err = h.svc.AppendEvent(ctx, "m1", league.Event{Type: league.EventYellowCard, Team: league.SideAway, Minute: 51, PlayerID: "caicedo"})
	require.NoError(t, err)
	m, err := h.svc.Finish(ctx, "m1")
	require.NoError(t, err)

	assert.Equal(t, league.StatusFinished, m.Status)
	assert.Equal(t, league.Score{Home: 1}, m.Score)

	stored := h.store.stored("m1")
	assert.Equal(t, m.Version, stored.Version)
	assert.Len(t, stored.Events, 2)
	assert.NoError(t, league.Verify(stored))

	assert.Equal(t, []string{"started", "goal", "halftime", "yellow_card", "finished"}, h.hub.kinds())
	require.Len(t, h.feed.msgs, 5)
	for i, msg := range h.feed.msgs {
		assert.Equal(t, "m1", msg.MatchID)
		if i > 0 {
			assert.Greater(t, msg.Version, h.feed.msgs[i-1].Version)
		}
	}
	assert.Contains(t, h.cache.invalidated, cache.StandingsKey("premier", "2026"))
	assert.Contains(t, h.cache.invalidated, cache.LeaderboardKey("premier", "2026"))
}

func TestRejectedOperationDoesNotCommit(t *testing.T) {
	h := newHarness(fixture("m1", time.Now()))
	ctx := context.Background()

	_, err := h.svc.AppendEvent(ctx, "m1", goal(league.SideHome, 3, "saka", ""))
	assert.ErrorIs(t, err, league.ErrInvalidState)

	_, err = h.svc.Start(ctx, "m1")
	require.NoError(t, err)
	_, err = h.svc.AppendEvent(ctx, "m1", league.Event{Type: league.EventGoal, Team: league.SideHome, Minute: 200, PlayerID: "saka"})
	assert.ErrorIs(t, err, league.ErrValidation)

	assert.Equal(t, 1, h.store.commits)
	assert.Equal(t, []string{"started"}, h.hub.kinds())
	m, err := h.svc.GetMatch(ctx, "m1")
	require.NoError(t, err)
	assert.Empty(t, m.Events)
}

func TestGetMatchSkipsCacheWhenCommitRacesRead(t *testing.T) {
	h := newHarness(fixture("m1", time.Now()), fixture("m2", time.Now()))
	ctx := context.Background()

	_, err := h.svc.GetMatch(ctx, "m2")
	require.NoError(t, err)
	assert.True(t, h.cache.has(cache.MatchKey("m2")))

	// m1 starts after the read copied the scheduled row but before it caches it
	h.store.afterGet = func() {
		_, err := h.svc.Start(ctx, "m1")
		require.NoError(t, err)
	}
	m, err := h.svc.GetMatch(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, league.StatusLive, m.Status)
	assert.False(t, h.cache.has(cache.MatchKey("m1")))

	m, err = h.svc.GetMatch(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, league.StatusLive, m.Status)
}

func TestCommitFailureEvictsAndReloads(t *testing.T) {
	h := newHarness(fixture("m1", time.Now()))
	ctx := context.Background()

	_, err := h.svc.Start(ctx, "m1")
	require.NoError(t, err)

	h.store.commitErr = errors.New("connection reset")
	_, err = h.svc.AppendEvent(ctx, "m1", goal(league.SideAway, 20, "palmer", ""))
	require.Error(t, err)
	assert.Empty(t, h.store.stored("m1").Events)
	assert.Equal(t, []string{"started"}, h.hub.kinds())

	// the next call starts from the stored snapshot again
	h.store.commitErr = nil
	m, err := h.svc.AppendEvent(ctx, "m1", goal(league.SideAway, 21, "palmer", ""))
	require.NoError(t, err)
	require.Len(t, m.Events, 1)
	assert.Equal(t, 1, m.Events[0].Seq)
	assert.Equal(t, 21, m.Events[0].Minute)
}

func TestVersionConflictFromOtherWriter(t *testing.T) {
	h := newHarness(fixture("m1", time.Now()))
	ctx := context.Background()
	_, err := h.svc.Start(ctx, "m1")
	require.NoError(t, err)

	// another process moved the match on
	other := h.store.stored("m1")
	other.Version += 5
	h.store.matches["m1"] = other

	_, err = h.svc.AppendEvent(ctx, "m1", goal(league.SideHome, 5, "saka", ""))
	assert.ErrorIs(t, err, store.ErrVersionConflict)

	m, err := h.svc.AppendEvent(ctx, "m1", goal(league.SideHome, 5, "saka", ""))
	require.NoError(t, err)
	assert.Equal(t, other.Version+1, m.Version)
}

func TestFeedFailureIsOnlyLogged(t *testing.T) {
	h := newHarness(fixture("m1", time.Now()))
	h.feed.err = errors.New("broker down")

	m, err := h.svc.Start(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, league.StatusLive, m.Status)
	assert.Equal(t, []string{"started"}, h.hub.kinds())
}

func TestUnknownMatch(t *testing.T) {
	h := newHarness()
	_, err := h.svc.Start(context.Background(), "nope")
	assert.ErrorIs(t, err, league.ErrNotFound)
	_, err = h.svc.GetMatch(context.Background(), "nope")
	assert.ErrorIs(t, err, league.ErrNotFound)
}

func TestConcurrentAppendsCommitInOrder(t *testing.T) {
	h := newHarness(fixture("m1", time.Now()))
	ctx := context.Background()
	_, err := h.svc.Start(ctx, "m1")
	require.NoError(t, err)

	const n = 30
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			side := league.SideHome
			if i%2 == 1 {
				side = league.SideAway
			}
			_, err := h.svc.AppendEvent(ctx, "m1", league.Event{Type: league.EventCorner, Team: side, Minute: i % 90})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	stored := h.store.stored("m1")
	require.Len(t, stored.Events, n)
	for i, e := range stored.Events {
		assert.Equal(t, i+1, e.Seq)
	}
	assert.Equal(t, n/2, stored.Statistics.Home.Corners)
	assert.Equal(t, n/2, stored.Statistics.Away.Corners)
	assert.NoError(t, league.Verify(stored))
}

func TestFinishSettlesPredictions(t *testing.T) {
	h := newHarness(fixture("m1", time.Now()))
	ctx := context.Background()

	for user, score := range map[string]league.Score{
		"exact":  {Home: 2, Away: 1},
		"margin": {Home: 1, Away: 0},
		"winner": {Home: 3, Away: 0},
		"wrong":  {Home: 0, Away: 0},
	} {
		_, err := h.svc.SubmitPrediction(ctx, "m1", user, score)
		require.NoError(t, err)
	}

	_, err := h.svc.Start(ctx, "m1")
	require.NoError(t, err)
	_, err = h.svc.SubmitPrediction(ctx, "m1", "late", league.Score{})
	assert.ErrorIs(t, err, league.ErrPrecondition)

	for _, ev := range []league.Event{
		goal(league.SideHome, 10, "saka", ""),
		{Type: league.EventOwnGoal, Team: league.SideHome, Minute: 30, PlayerID: "white"},
		goal(league.SideHome, 80, "havertz", "rice"),
	} {
		_, err = h.svc.AppendEvent(ctx, "m1", ev)
		require.NoError(t, err)
	}
	_, err = h.svc.Finish(ctx, "m1")
	require.NoError(t, err)

	want := map[string]int{"exact": 10, "margin": 7, "winner": 5, "wrong": 0}
	for user, points := range want {
		p, err := h.svc.GetPrediction(ctx, "m1", user)
		require.NoError(t, err)
		assert.Equal(t, points, p.PointsEarned, user)
		assert.NotEqual(t, league.PredictionPending, p.Status, user)
		assert.NotNil(t, p.ScoredAt, user)
	}

	// nothing left to grade
	n, err := h.svc.SettlePredictions(ctx, "m1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSubmitPredictionReplacesPending(t *testing.T) {
	h := newHarness(fixture("m1", time.Now()))
	ctx := context.Background()

	first, err := h.svc.SubmitPrediction(ctx, "m1", "u1", league.Score{Home: 1})
	require.NoError(t, err)
	second, err := h.svc.SubmitPrediction(ctx, "m1", "u1", league.Score{Away: 3})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, league.WinnerAway, second.PredictedWinner)

	_, err = h.svc.SubmitPrediction(ctx, "m1", "u1", league.Score{Home: -1})
	assert.ErrorIs(t, err, league.ErrValidation)
}

func playFinished(t *testing.T, h *harness, id string, events ...league.Event) {
	t.Helper()
	ctx := context.Background()
	_, err := h.svc.Start(ctx, id)
	require.NoError(t, err)
	for _, ev := range events {
		_, err := h.svc.AppendEvent(ctx, id, ev)
		require.NoError(t, err)
	}
	_, err = h.svc.Finish(ctx, id)
	require.NoError(t, err)
}

func TestStandingsReadThroughCache(t *testing.T) {
	kickoff := time.Date(2026, 8, 1, 15, 0, 0, 0, time.UTC)
	h := newHarness(fixture("m1", kickoff), fixture("m2", kickoff.Add(7*24*time.Hour)))
	ctx := context.Background()
	playFinished(t, h, "m1", goal(league.SideHome, 10, "saka", ""))

	table, err := h.svc.Standings(ctx, "premier", "2026")
	require.NoError(t, err)
	require.Len(t, table, 2)
	assert.Equal(t, "ars", table[0].Team.ID)
	assert.Equal(t, 3, table[0].Points)

	_, err = h.svc.Standings(ctx, "premier", "2026")
	require.NoError(t, err)
	assert.Equal(t, 1, h.store.seasonLoads)
	assert.True(t, h.cache.has(cache.StandingsKey("premier", "2026")))

	// a newly finished match drops the cached table
	playFinished(t, h, "m2", goal(league.SideAway, 70, "palmer", ""), goal(league.SideAway, 75, "palmer", ""))
	assert.False(t, h.cache.has(cache.StandingsKey("premier", "2026")))

	table, err = h.svc.Standings(ctx, "premier", "2026")
	require.NoError(t, err)
	assert.Equal(t, 2, h.store.seasonLoads)
	assert.Equal(t, "che", table[0].Team.ID)
	assert.Equal(t, 3, table[0].Points)
	assert.Equal(t, 1, table[0].GoalDifference)
}

func TestLeaderboard(t *testing.T) {
	kickoff := time.Date(2026, 8, 1, 15, 0, 0, 0, time.UTC)
	h := newHarness(fixture("m1", kickoff))
	ctx := context.Background()
	playFinished(t, h, "m1",
		goal(league.SideHome, 10, "saka", "rice"),
		goal(league.SideHome, 20, "saka", "odegaard"),
		goal(league.SideHome, 30, "havertz", "rice"),
	)

	board, err := h.svc.Leaderboard(ctx, "premier", "2026", 0)
	require.NoError(t, err)
	require.Len(t, board.Scorers, 2)
	assert.Equal(t, league.PlayerCount{PlayerID: "saka", Count: 2}, board.Scorers[0])
	assert.Equal(t, league.PlayerCount{PlayerID: "rice", Count: 2}, board.Assists[0])

	top1, err := h.svc.Leaderboard(ctx, "premier", "2026", 1)
	require.NoError(t, err)
	assert.Len(t, top1.Scorers, 1)
	assert.Equal(t, 1, h.store.seasonLoads)
}

func TestRebuildTables(t *testing.T) {
	kickoff := time.Date(2026, 8, 1, 15, 0, 0, 0, time.UTC)
	var fixtures []*league.Match
	for i, season := range []string{"2024", "2025", "2026"} {
		m := fixture(fmt.Sprintf("m%d", i), kickoff)
		m.SeasonID = season
		fixtures = append(fixtures, m)
	}
	h := newHarness(fixtures...)
	for i := range fixtures {
		playFinished(t, h, fmt.Sprintf("m%d", i), goal(league.SideAway, 50, "palmer", ""))
	}

	tables, err := h.svc.RebuildTables(context.Background(), "premier", []string{"2024", "2025", "2026"})
	require.NoError(t, err)
	require.Len(t, tables, 3)
	for season, table := range tables {
		require.Len(t, table, 2, season)
		assert.Equal(t, "che", table[0].Team.ID, season)
		assert.True(t, h.cache.has(cache.StandingsKey("premier", season)))
		assert.True(t, h.cache.has(cache.LeaderboardKey("premier", season)))
	}
}

func TestAudit(t *testing.T) {
	h := newHarness(fixture("m1", time.Now()))
	playFinished(t, h, "m1", goal(league.SideHome, 10, "saka", ""))
	require.NoError(t, h.svc.Audit(context.Background(), "m1"))

	tampered := h.store.stored("m1")
	tampered.Score.Home = 4
	h.store.matches["m1"] = tampered
	assert.Error(t, h.svc.Audit(context.Background(), "m1"))
}
