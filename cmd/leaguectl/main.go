// Command leaguectl administers a league database: schema, teams, fixtures
// and offline reports.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/utakatalp/matchday/internal/config"
	"github.com/utakatalp/matchday/internal/league"
	"github.com/utakatalp/matchday/internal/logger"
	"github.com/utakatalp/matchday/internal/service"
	"github.com/utakatalp/matchday/internal/store"
)

const usage = `usage: leaguectl <command> [flags]

commands:
  migrate                          create or update the schema
  teams [id=name ...]              add teams, then list all teams
  fixtures -league L -season S     generate a double round-robin season
  table -league L -season S        print the standings
  scorers -league L -season S      print top scorers and assisters
  audit -match ID                  replay a match log against its stored totals
  settle -match ID                 grade pending predictions of a finished match
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg := config.Load()
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	ctx := context.Background()

	db, err := store.NewStore(ctx, cfg.Database.URL)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	cmd, args := os.Args[1], os.Args[2:]
	if err := run(ctx, cmd, args, cfg, db, log); err != nil {
		log.WithError(err).WithField("command", cmd).Error("command failed")
		db.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd string, args []string, cfg *config.Config, db *store.Store, log *logrus.Logger) error {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	leagueID := fs.String("league", "", "league id")
	seasonID := fs.String("season", "", "season id")
	matchID := fs.String("match", "", "match id")
	start := fs.String("start", "", "first kickoff, RFC3339")
	interval := fs.Duration("interval", 7*24*time.Hour, "time between rounds")
	k := fs.Int("k", cfg.League.LeaderboardSize, "leaderboard size")
	if err := fs.Parse(args); err != nil {
		return err
	}

	svc := service.New(db, league.NewEngine(), service.Options{
		Points:          cfg.League.Points,
		LeaderboardSize: cfg.League.LeaderboardSize,
		Log:             logrus.NewEntry(log),
	})

	switch cmd {
	case "migrate":
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		log.Info("schema up to date")
		return nil

	case "teams":
		return teams(ctx, db, fs.Args())

	case "fixtures":
		if err := need(*leagueID, *seasonID); err != nil {
			return err
		}
		first := time.Now().UTC().Truncate(time.Hour)
		if *start != "" {
			t, err := time.Parse(time.RFC3339, *start)
			if err != nil {
				return fmt.Errorf("parsing -start: %w", err)
			}
			first = t
		}
		all, err := db.GetTeams(ctx)
		if err != nil {
			return err
		}
		if len(all) < 2 {
			return fmt.Errorf("need at least two teams, have %d", len(all))
		}
		season := league.GenerateFullSeason(all, league.FixturePlan{
			LeagueID: *leagueID, SeasonID: *seasonID, FirstKickoff: first, Interval: *interval,
		})
		if err := db.SaveFixtures(ctx, season); err != nil {
			return err
		}
		return league.WriteSchedule(os.Stdout, fmt.Sprintf("%s %s", *leagueID, *seasonID), season)

	case "table":
		if err := need(*leagueID, *seasonID); err != nil {
			return err
		}
		table, err := svc.Standings(ctx, *leagueID, *seasonID)
		if err != nil {
			return err
		}
		return league.WriteTable(os.Stdout, fmt.Sprintf("%s %s", *leagueID, *seasonID), table)

	case "scorers":
		if err := need(*leagueID, *seasonID); err != nil {
			return err
		}
		board, err := svc.Leaderboard(ctx, *leagueID, *seasonID, *k)
		if err != nil {
			return err
		}
		writeBoard("Top scorers", board.Scorers)
		writeBoard("Top assists", board.Assists)
		return nil

	case "audit":
		if err := need(*matchID); err != nil {
			return err
		}
		if err := svc.Audit(ctx, *matchID); err != nil {
			return err
		}
		log.WithField("match_id", *matchID).Info("event log matches stored totals")
		return nil

	case "settle":
		if err := need(*matchID); err != nil {
			return err
		}
		n, err := svc.SettlePredictions(ctx, *matchID)
		if err != nil {
			return err
		}
		log.WithField("match_id", *matchID).WithField("graded", n).Info("predictions settled")
		return nil

	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func teams(ctx context.Context, db *store.Store, pairs []string) error {
	var add []*league.Team
	for _, p := range pairs {
		id, name, ok := strings.Cut(p, "=")
		if !ok || id == "" || name == "" {
			return fmt.Errorf("team %q: want id=name", p)
		}
		add = append(add, &league.Team{ID: id, Name: name})
	}
	if err := db.InsertTeams(ctx, add); err != nil {
		return err
	}
	all, err := db.GetTeams(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tName")
	for _, t := range all {
		fmt.Fprintf(w, "%s\t%s\n", t.ID, t.Name)
	}
	return w.Flush()
}

func writeBoard(title string, rows []league.PlayerCount) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\n#\tPlayer\tCount\n", title)
	for i, r := range rows {
		fmt.Fprintf(w, "%d\t%s\t%d\n", i+1, r.PlayerID, r.Count)
	}
	w.Flush()
	fmt.Println()
}

func need(values ...string) error {
	for _, v := range values {
		if v == "" {
			return errors.New("missing required flag")
		}
	}
	return nil
}
