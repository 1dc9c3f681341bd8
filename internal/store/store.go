package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/utakatalp/matchday/internal/league"
)

// ErrVersionConflict means the match changed in the database since it was
// loaded; the caller should reload and retry.
var ErrVersionConflict = errors.New("match version conflict")

// Store wraps a Postgres connection and provides methods to persist and retrieve league data.
type Store struct {
	DB *sql.DB
}

// NewStore opens a Postgres connection using the given connection string.
func NewStore(ctx context.Context, connStr string) (*Store, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// verify early
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	return &Store{DB: db}, nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}

// Migrate creates the necessary tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS teams (
			id   TEXT PRIMARY KEY,
			name TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS matches (
			id              TEXT PRIMARY KEY,
			league_id       TEXT NOT NULL,
			season_id       TEXT NOT NULL,
			venue_id        TEXT NOT NULL DEFAULT '',
			week            INT  NOT NULL,
			home_team       TEXT REFERENCES teams(id),
			away_team       TEXT REFERENCES teams(id),
			kickoff_at      TIMESTAMPTZ NOT NULL,
			status          TEXT NOT NULL DEFAULT 'scheduled',
			home_goals      INT  NOT NULL DEFAULT 0,
			away_goals      INT  NOT NULL DEFAULT 0,
			ht_home_goals   INT  NOT NULL DEFAULT 0,
			ht_away_goals   INT  NOT NULL DEFAULT 0,
			halftime_events INT  NOT NULL DEFAULT 0,
			statistics      JSONB NOT NULL DEFAULT '{}',
			started_at      TIMESTAMPTZ,
			halftime_at     TIMESTAMPTZ,
			finished_at     TIMESTAMPTZ,
			version         BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_matches_season ON matches(league_id, season_id, status)`,
		`CREATE TABLE IF NOT EXISTS match_events (
			match_id    TEXT NOT NULL REFERENCES matches(id),
			seq         INT  NOT NULL,
			type        TEXT NOT NULL,
			side        TEXT NOT NULL,
			minute      INT  NOT NULL,
			player_id   TEXT NOT NULL DEFAULT '',
			assisted_by TEXT NOT NULL DEFAULT '',
			player_out  TEXT NOT NULL DEFAULT '',
			player_in   TEXT NOT NULL DEFAULT '',
			recorded_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (match_id, seq)
		)`,
		`CREATE TABLE IF NOT EXISTS predictions (
			id            TEXT PRIMARY KEY,
			match_id      TEXT NOT NULL REFERENCES matches(id),
			user_id       TEXT NOT NULL,
			home_goals    INT  NOT NULL,
			away_goals    INT  NOT NULL,
			winner        TEXT NOT NULL,
			points_earned INT  NOT NULL DEFAULT 0,
			status        TEXT NOT NULL DEFAULT 'pending',
			created_at    TIMESTAMPTZ NOT NULL,
			updated_at    TIMESTAMPTZ NOT NULL,
			scored_at     TIMESTAMPTZ,
			UNIQUE (user_id, match_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_match ON predictions(match_id, status)`,
	}
	for _, q := range queries {
		if _, err := s.DB.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrating: %w", err)
		}
	}
	return nil
}

func (s *Store) InsertTeams(ctx context.Context, teams []*league.Team) error {
	const q = `
    INSERT INTO teams (id, name)
    VALUES ($1, $2)
    ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
    `
	for _, t := range teams {
		if _, err := s.DB.ExecContext(ctx, q, t.ID, t.Name); err != nil {
			return fmt.Errorf("inserting team %s (%s): %w", t.ID, t.Name, err)
		}
	}
	return nil
}

func (s *Store) GetTeams(ctx context.Context) ([]*league.Team, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, name FROM teams ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying teams: %w", err)
	}
	defer rows.Close()

	var teams []*league.Team
	for rows.Next() {
		t := &league.Team{}
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, fmt.Errorf("scanning team row: %w", err)
		}
		teams = append(teams, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating teams rows: %w", err)
	}
	return teams, nil
}

// SaveFixtures persists a generated season in one transaction.
func (s *Store) SaveFixtures(ctx context.Context, rounds [][]*league.Match) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin SaveFixtures tx: %w", err)
	}
	defer tx.Rollback()

	const q = `
INSERT INTO matches (id, league_id, season_id, venue_id, week, home_team, away_team, kickoff_at, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`
	for _, round := range rounds {
		for _, m := range round {
			if _, err := tx.ExecContext(ctx, q,
				m.ID, m.LeagueID, m.SeasonID, m.VenueID, m.Week,
				m.Home.ID, m.Away.ID, m.KickoffAt, string(m.Status),
			); err != nil {
				return fmt.Errorf("saving fixture %s: %w", m.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit SaveFixtures tx: %w", err)
	}
	return nil
}
