package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/utakatalp/matchday/internal/feed"
	"github.com/utakatalp/matchday/internal/league"
	"github.com/utakatalp/matchday/internal/realtime"
	"github.com/utakatalp/matchday/internal/store"
)

type memStore struct {
	mu          sync.Mutex
	matches     map[string]*league.Match
	predictions map[string]*league.Prediction
	commitErr   error
	commits     int
	seasonLoads int
	// afterGet runs once GetMatch has taken its copy.
	afterGet func()
}

func newMemStore(matches ...*league.Match) *memStore {
	s := &memStore{matches: map[string]*league.Match{}, predictions: map[string]*league.Prediction{}}
	for _, m := range matches {
		s.matches[m.ID] = m.Clone()
	}
	return s
}

func (s *memStore) GetMatch(_ context.Context, id string) (*league.Match, error) {
	s.mu.Lock()
	m, ok := s.matches[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: match %s", league.ErrNotFound, id)
	}
	c, hook := m.Clone(), s.afterGet
	s.afterGet = nil
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	return c, nil
}

func (s *memStore) CommitMatch(_ context.Context, m *league.Match, prev int64, appended []league.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.commitErr != nil {
		return s.commitErr
	}
	cur := s.matches[m.ID]
	if cur.Version != prev {
		return store.ErrVersionConflict
	}
	if len(cur.Events)+len(appended) != len(m.Events) {
		return errors.New("appended events do not extend the stored log")
	}
	s.matches[m.ID] = m.Clone()
	s.commits++
	return nil
}

func (s *memStore) LoadFinishedMatches(_ context.Context, leagueID, seasonID string) ([]*league.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seasonLoads++
	var out []*league.Match
	for _, m := range s.matches {
		if m.LeagueID == leagueID && m.SeasonID == seasonID && m.Status == league.StatusFinished {
			out = append(out, m.Clone())
		}
	}
	return out, nil
}

func predKey(matchID, userID string) string { return matchID + "/" + userID }

func (s *memStore) GetPrediction(_ context.Context, matchID, userID string) (*league.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.predictions[predKey(matchID, userID)]
	if !ok {
		return nil, league.ErrNotFound
	}
	c := *p
	return &c, nil
}

func (s *memStore) UpsertPrediction(_ context.Context, p *league.Prediction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.predictions[predKey(p.MatchID, p.UserID)]; ok && cur.Status != league.PredictionPending {
		return league.ErrInvalidState
	}
	c := *p
	s.predictions[predKey(p.MatchID, p.UserID)] = &c
	return nil
}

func (s *memStore) PendingPredictions(_ context.Context, matchID string) ([]*league.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*league.Prediction
	for _, p := range s.predictions {
		if p.MatchID == matchID && p.Status == league.PredictionPending {
			c := *p
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *memStore) SavePredictionResult(_ context.Context, p *league.Prediction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.predictions[predKey(p.MatchID, p.UserID)]
	if cur.Status == league.PredictionPending {
		c := *p
		s.predictions[predKey(p.MatchID, p.UserID)] = &c
	}
	return nil
}

func (s *memStore) stored(id string) *league.Match {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matches[id].Clone()
}

type memCache struct {
	mu          sync.Mutex
	data        map[string][]byte
	invalidated []string
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (c *memCache) GetJSON(_ context.Context, key string, v interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, v)
}

func (c *memCache) SetJSON(_ context.Context, key string, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = b
	return nil
}

func (c *memCache) Invalidate(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.data, k)
		c.invalidated = append(c.invalidated, k)
	}
	return nil
}

func (c *memCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok
}

type recordingHub struct {
	mu      sync.Mutex
	updates []realtime.Update
}

func (h *recordingHub) Broadcast(u realtime.Update) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.updates = append(h.updates, u)
}

func (h *recordingHub) kinds() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.updates))
	for i, u := range h.updates {
		out[i] = u.Kind
	}
	return out
}

type recordingFeed struct {
	mu   sync.Mutex
	msgs []feed.Message
	err  error
}

func (f *recordingFeed) Publish(_ context.Context, msg feed.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

var (
	home = &league.Team{ID: "ars", Name: "Arsenal"}
	away = &league.Team{ID: "che", Name: "Chelsea"}
)

func fixture(id string, kickoff time.Time) *league.Match {
	return &league.Match{
		ID: id, LeagueID: "premier", SeasonID: "2026",
		Home: home, Away: away, Week: 1, KickoffAt: kickoff, Status: league.StatusScheduled,
	}
}

type harness struct {
	svc   *Service
	store *memStore
	cache *memCache
	hub   *recordingHub
	feed  *recordingFeed
	now   time.Time
}

func newHarness(matches ...*league.Match) *harness {
	h := &harness{
		store: newMemStore(matches...),
		cache: newMemCache(),
		hub:   &recordingHub{},
		feed:  &recordingFeed{},
		now:   time.Date(2026, 9, 12, 15, 0, 0, 0, time.UTC),
	}
	engine := league.NewEngine(league.WithClock(func() time.Time { return h.now }))
	h.svc = New(h.store, engine, Options{
		Cache:       h.cache,
		Broadcaster: h.hub,
		Publisher:   h.feed,
		Log:         quietLog(),
	})
	return h
}
