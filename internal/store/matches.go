package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/utakatalp/matchday/internal/league"
)

// Team and venue joins happen here so the engine only ever sees a resolved
// match. A team row that does not resolve leaves Home or Away nil.
const selectMatch = `
SELECT
  m.id, m.league_id, m.season_id, m.venue_id, m.week, m.kickoff_at, m.status,
  m.home_goals, m.away_goals, m.ht_home_goals, m.ht_away_goals, m.halftime_events,
  m.statistics, m.started_at, m.halftime_at, m.finished_at, m.version,
  h.id, h.name, a.id, a.name
FROM matches m
LEFT JOIN teams h ON h.id = m.home_team
LEFT JOIN teams a ON a.id = m.away_team
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMatch(r rowScanner) (*league.Match, error) {
	var (
		m                league.Match
		status           string
		stats            []byte
		started, ht, fin pq.NullTime
		homeID, homeName sql.NullString
		awayID, awayName sql.NullString
	)
	if err := r.Scan(
		&m.ID, &m.LeagueID, &m.SeasonID, &m.VenueID, &m.Week, &m.KickoffAt, &status,
		&m.Score.Home, &m.Score.Away, &m.HalftimeScore.Home, &m.HalftimeScore.Away, &m.HalftimeEvents,
		&stats, &started, &ht, &fin, &m.Version,
		&homeID, &homeName, &awayID, &awayName,
	); err != nil {
		return nil, err
	}
	m.Status = league.Status(status)
	if len(stats) > 0 {
		if err := json.Unmarshal(stats, &m.Statistics); err != nil {
			return nil, fmt.Errorf("decoding statistics of match %s: %w", m.ID, err)
		}
	}
	m.StartedAt = timePtr(started)
	m.HalftimeAt = timePtr(ht)
	m.FinishedAt = timePtr(fin)
	if homeID.Valid {
		m.Home = &league.Team{ID: homeID.String, Name: homeName.String}
	}
	if awayID.Valid {
		m.Away = &league.Team{ID: awayID.String, Name: awayName.String}
	}
	return &m, nil
}

func timePtr(t pq.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullTime(t *time.Time) pq.NullTime {
	if t == nil {
		return pq.NullTime{}
	}
	return pq.NullTime{Time: *t, Valid: true}
}

// GetMatch loads one match with its full event log.
func (s *Store) GetMatch(ctx context.Context, id string) (*league.Match, error) {
	m, err := scanMatch(s.DB.QueryRowContext(ctx, selectMatch+`WHERE m.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: match %s", league.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading match %s: %w", id, err)
	}
	if err := s.attachEvents(ctx, []*league.Match{m}); err != nil {
		return nil, err
	}
	return m, nil
}

// LoadFinishedMatches fetches every finished match of a league season, event
// logs included, oldest kickoff first.
func (s *Store) LoadFinishedMatches(ctx context.Context, leagueID, seasonID string) ([]*league.Match, error) {
	rows, err := s.DB.QueryContext(ctx, selectMatch+`
WHERE m.league_id = $1 AND m.season_id = $2 AND m.status = $3
ORDER BY m.kickoff_at, m.id`, leagueID, seasonID, string(league.StatusFinished))
	if err != nil {
		return nil, fmt.Errorf("querying finished matches: %w", err)
	}
	defer rows.Close()

	var matches []*league.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating matches: %w", err)
	}
	if err := s.attachEvents(ctx, matches); err != nil {
		return nil, err
	}
	return matches, nil
}

// attachEvents loads the logs of all given matches in one query.
func (s *Store) attachEvents(ctx context.Context, matches []*league.Match) error {
	if len(matches) == 0 {
		return nil
	}
	byID := make(map[string]*league.Match, len(matches))
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		byID[m.ID] = m
		ids = append(ids, m.ID)
	}

	rows, err := s.DB.QueryContext(ctx, `
SELECT match_id, seq, type, side, minute, player_id, assisted_by, player_out, player_in, recorded_at
FROM match_events
WHERE match_id = ANY($1)
ORDER BY match_id, seq`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("querying match events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			matchID   string
			e         league.Event
			typ, side string
		)
		if err := rows.Scan(&matchID, &e.Seq, &typ, &side, &e.Minute,
			&e.PlayerID, &e.AssistedBy, &e.PlayerOut, &e.PlayerIn, &e.RecordedAt); err != nil {
			return fmt.Errorf("scanning match event: %w", err)
		}
		e.Type = league.EventType(typ)
		e.Team = league.Side(side)
		if m := byID[matchID]; m != nil {
			m.Events = append(m.Events, e)
		}
	}
	return rows.Err()
}

// CommitMatch writes the new state of m and its appended events in one
// transaction. The update only applies if the stored version is still prev,
// otherwise ErrVersionConflict is returned and nothing is written.
func (s *Store) CommitMatch(ctx context.Context, m *league.Match, prev int64, appended []league.Event) error {
	stats, err := json.Marshal(m.Statistics)
	if err != nil {
		return fmt.Errorf("encoding statistics: %w", err)
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin CommitMatch tx: %w", err)
	}
	defer tx.Rollback()

	const q = `
      UPDATE matches
      SET
        status          = $1,
        kickoff_at      = $2,
        home_goals      = $3,
        away_goals      = $4,
        ht_home_goals   = $5,
        ht_away_goals   = $6,
        halftime_events = $7,
        statistics      = $8,
        started_at      = $9,
        halftime_at     = $10,
        finished_at     = $11,
        version         = $12
      WHERE id = $13 AND version = $14
    `
	res, err := tx.ExecContext(ctx, q,
		string(m.Status), m.KickoffAt,
		m.Score.Home, m.Score.Away, m.HalftimeScore.Home, m.HalftimeScore.Away, m.HalftimeEvents,
		string(stats), nullTime(m.StartedAt), nullTime(m.HalftimeAt), nullTime(m.FinishedAt),
		m.Version, m.ID, prev,
	)
	if err != nil {
		return fmt.Errorf("updating match %s: %w", m.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating match %s: %w", m.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: match %s is no longer at version %d", ErrVersionConflict, m.ID, prev)
	}

	const ins = `
INSERT INTO match_events (match_id, seq, type, side, minute, player_id, assisted_by, player_out, player_in, recorded_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`
	for _, e := range appended {
		if _, err := tx.ExecContext(ctx, ins,
			m.ID, e.Seq, string(e.Type), string(e.Team), e.Minute,
			e.PlayerID, e.AssistedBy, e.PlayerOut, e.PlayerIn, e.RecordedAt,
		); err != nil {
			return fmt.Errorf("inserting event %d of match %s: %w", e.Seq, m.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit CommitMatch tx: %w", err)
	}
	return nil
}
