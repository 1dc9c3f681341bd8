package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/utakatalp/matchday/internal/cache"
	"github.com/utakatalp/matchday/internal/feed"
	"github.com/utakatalp/matchday/internal/league"
	"github.com/utakatalp/matchday/internal/realtime"
)

// Store is the persistence the service needs. It hands out fully resolved
// matches and commits a match together with its newly appended events.
type Store interface {
	GetMatch(ctx context.Context, id string) (*league.Match, error)
	CommitMatch(ctx context.Context, m *league.Match, prev int64, appended []league.Event) error
	LoadFinishedMatches(ctx context.Context, leagueID, seasonID string) ([]*league.Match, error)

	GetPrediction(ctx context.Context, matchID, userID string) (*league.Prediction, error)
	UpsertPrediction(ctx context.Context, p *league.Prediction) error
	PendingPredictions(ctx context.Context, matchID string) ([]*league.Prediction, error)
	SavePredictionResult(ctx context.Context, p *league.Prediction) error
}

// Cache holds derived read models.
type Cache interface {
	GetJSON(ctx context.Context, key string, v interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, v interface{}) error
	Invalidate(ctx context.Context, keys ...string) error
}

type Broadcaster interface {
	Broadcast(u realtime.Update)
}

type Publisher interface {
	Publish(ctx context.Context, msg feed.Message) error
}

// Options carries the optional collaborators. Nil ones are skipped.
type Options struct {
	Cache           Cache
	Broadcaster     Broadcaster
	Publisher       Publisher
	Points          league.PointsRule
	LeaderboardSize int
	Workers         int
	Log             *logrus.Entry
}

// Service drives the league engine on behalf of the outer surfaces: it loads
// snapshots, commits every change and fans committed changes out.
type Service struct {
	store  Store
	engine *league.Engine
	opts   Options
	log    *logrus.Entry
}

func New(store Store, engine *league.Engine, opts Options) *Service {
	if opts.Points == (league.PointsRule{}) {
		opts.Points = league.DefaultPoints
	}
	if opts.LeaderboardSize <= 0 {
		opts.LeaderboardSize = league.DefaultTopK
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	log := opts.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Service{store: store, engine: engine, opts: opts, log: log.WithField("component", "service")}
}

// change describes a committed mutation for subscribers and the feed.
type change struct {
	Status        league.Status     `json:"status"`
	Score         league.Score      `json:"score"`
	HalftimeScore league.Score      `json:"halftime_score"`
	Statistics    league.Statistics `json:"statistics"`
	Event         *league.Event     `json:"event,omitempty"`
}

func (s *Service) ensureLoaded(ctx context.Context, id string) error {
	if s.engine.Has(id) {
		return nil
	}
	m, err := s.store.GetMatch(ctx, id)
	if err != nil {
		return err
	}
	return s.engine.Load(m)
}

// mutate runs op under the match's writer lock and commits the result before
// the lock is released. A failed commit evicts the snapshot so the next call
// starts from what the store holds.
func (s *Service) mutate(ctx context.Context, id, kind string, op func(m *league.Match) error) (*league.Match, error) {
	if err := s.ensureLoaded(ctx, id); err != nil {
		return nil, err
	}

	var commitErr error
	m, err := s.engine.Txn(id, func(m *league.Match) error {
		prev, before := m.Version, len(m.Events)
		if err := op(m); err != nil {
			return err
		}
		commitErr = s.store.CommitMatch(ctx, m, prev, m.Events[before:])
		return commitErr
	})
	if err != nil {
		if commitErr != nil {
			s.engine.Evict(id)
			s.log.WithError(commitErr).WithField("match_id", id).Warn("commit failed, snapshot evicted")
		}
		return nil, err
	}

	c := change{Status: m.Status, Score: m.Score, HalftimeScore: m.HalftimeScore, Statistics: m.Statistics}
	if kind == "event" && len(m.Events) > 0 {
		ev := m.Events[len(m.Events)-1]
		c.Event = &ev
		kind = string(ev.Type)
	}
	s.afterCommit(ctx, kind, m, c)
	return m, nil
}

// afterCommit runs the side effects of a committed change. Their failures
// are logged; the change itself already happened.
func (s *Service) afterCommit(ctx context.Context, kind string, m *league.Match, c change) {
	log := s.log.WithFields(logrus.Fields{"match_id": m.ID, "kind": kind, "version": m.Version})

	if s.opts.Cache != nil {
		keys := []string{cache.MatchKey(m.ID)}
		if m.Status == league.StatusFinished {
			keys = append(keys,
				cache.StandingsKey(m.LeagueID, m.SeasonID),
				cache.LeaderboardKey(m.LeagueID, m.SeasonID))
		}
		if err := s.opts.Cache.Invalidate(ctx, keys...); err != nil {
			log.WithError(err).Warn("cache invalidation failed")
		}
	}

	if s.opts.Broadcaster != nil {
		s.opts.Broadcaster.Broadcast(realtime.Update{
			Kind: kind, MatchID: m.ID, LeagueID: m.LeagueID, SeasonID: m.SeasonID,
			Version: m.Version, Payload: c,
		})
	}

	if s.opts.Publisher != nil {
		err := s.opts.Publisher.Publish(ctx, feed.Message{
			Kind: kind, MatchID: m.ID, LeagueID: m.LeagueID, SeasonID: m.SeasonID,
			Version: m.Version, Payload: c, OccurredAt: s.engine.Now(),
		})
		if err != nil {
			log.WithError(err).Warn("feed publish failed")
		}
	}

	if kind == string(league.StatusFinished) {
		if _, err := s.settle(ctx, m); err != nil {
			log.WithError(err).Error("settling predictions failed")
		}
	}
	log.Debug("change committed")
}

func (s *Service) Start(ctx context.Context, id string) (*league.Match, error) {
	return s.mutate(ctx, id, "started", func(m *league.Match) error { return m.Start(s.engine.Now()) })
}

func (s *Service) Halftime(ctx context.Context, id string) (*league.Match, error) {
	return s.mutate(ctx, id, "halftime", func(m *league.Match) error { return m.Halftime(s.engine.Now()) })
}

func (s *Service) Resume(ctx context.Context, id string) (*league.Match, error) {
	return s.mutate(ctx, id, "resumed", func(m *league.Match) error { return m.Resume() })
}

func (s *Service) Finish(ctx context.Context, id string) (*league.Match, error) {
	return s.mutate(ctx, id, string(league.StatusFinished), func(m *league.Match) error { return m.Finish(s.engine.Now()) })
}

func (s *Service) Postpone(ctx context.Context, id string) (*league.Match, error) {
	return s.mutate(ctx, id, string(league.StatusPostponed), func(m *league.Match) error { return m.Postpone() })
}

func (s *Service) Cancel(ctx context.Context, id string) (*league.Match, error) {
	return s.mutate(ctx, id, string(league.StatusCancelled), func(m *league.Match) error { return m.Cancel() })
}

func (s *Service) Abandon(ctx context.Context, id string) (*league.Match, error) {
	return s.mutate(ctx, id, string(league.StatusAbandoned), func(m *league.Match) error { return m.Abandon() })
}

func (s *Service) Reschedule(ctx context.Context, id string, kickoff time.Time) (*league.Match, error) {
	return s.mutate(ctx, id, "rescheduled", func(m *league.Match) error { return m.Reschedule(kickoff) })
}

// AppendEvent records ev on match id. The returned snapshot ends with the
// stored event, sequence number assigned.
func (s *Service) AppendEvent(ctx context.Context, id string, ev league.Event) (*league.Match, error) {
	return s.mutate(ctx, id, "event", func(m *league.Match) error {
		_, err := m.AppendEvent(ev, s.engine.Now())
		return err
	})
}

// GetMatch returns the freshest known snapshot: the engine's when the match
// is being played, otherwise the cached or stored one.
func (s *Service) GetMatch(ctx context.Context, id string) (*league.Match, error) {
	if m, err := s.engine.Get(id); err == nil {
		return m, nil
	}

	key := cache.MatchKey(id)
	var cached league.Match
	if s.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	m, err := s.store.GetMatch(ctx, id)
	if err != nil {
		return nil, err
	}
	// A commit that landed after the store read has loaded the engine and
	// invalidated the key; caching m now would pin the older version.
	if live, err := s.engine.Get(id); err == nil {
		if live.Version >= m.Version {
			return live, nil
		}
	}
	s.cacheSet(ctx, key, m)
	return m, nil
}

// Audit replays the stored log of a match and checks it against the stored
// score and statistics.
func (s *Service) Audit(ctx context.Context, id string) error {
	m, err := s.store.GetMatch(ctx, id)
	if err != nil {
		return err
	}
	return league.Verify(m)
}

func (s *Service) cacheSet(ctx context.Context, key string, v interface{}) {
	if s.opts.Cache == nil {
		return
	}
	if err := s.opts.Cache.SetJSON(ctx, key, v); err != nil {
		s.log.WithError(err).WithField("key", key).Warn("cache write failed")
	}
}
