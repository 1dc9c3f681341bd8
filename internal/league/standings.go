package league

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// FormLength is how many recent results a table row keeps.
const FormLength = 5

// Result letters used in a team's form.
const (
	FormWin  = "W"
	FormDraw = "D"
	FormLoss = "L"
)

// PointsRule is what a league awards per result.
type PointsRule struct {
	Win  int `json:"win"`
	Draw int `json:"draw"`
	Loss int `json:"loss"`
}

var DefaultPoints = PointsRule{Win: 3, Draw: 1, Loss: 0}

// TeamSeasonStat holds the standings info for one team. It is derived on
// every call and has no identity of its own.
type TeamSeasonStat struct {
	Team           *Team    `json:"team"`
	Played         int      `json:"played"`
	Won            int      `json:"won"`
	Drawn          int      `json:"drawn"`
	Lost           int      `json:"lost"`
	GoalsFor       int      `json:"goals_for"`
	GoalsAgainst   int      `json:"goals_against"`
	GoalDifference int      `json:"goal_difference"`
	Points         int      `json:"points"`
	Form           []string `json:"form"`
	Position       int      `json:"position"`
}

// Skip records an input match an aggregation ignored and why.
type Skip struct {
	MatchID string `json:"match_id"`
	Reason  string `json:"reason"`
}

func (s Skip) String() string {
	return fmt.Sprintf("match %s skipped: %s", s.MatchID, s.Reason)
}

type formEntry struct {
	at      time.Time
	matchID string
	result  string
}

type teamTally struct {
	team                   *Team
	won, drawn, lost       int
	goalsFor, goalsAgainst int
	form                   []formEntry
}

// Tally accumulates finished matches into per-team counters. Two tallies
// built from disjoint partitions of a season merge into the tally of the
// whole season, in any order.
type Tally struct {
	teams   map[string]*teamTally
	skipped []Skip
}

func NewTally() *Tally {
	return &Tally{teams: make(map[string]*teamTally)}
}

// checkFinished returns why m cannot feed a season view, or "" if it can.
func checkFinished(m *Match) string {
	switch {
	case m.Status != StatusFinished:
		return "status is " + string(m.Status)
	case m.Home == nil || m.Home.ID == "":
		return "unresolved home team"
	case m.Away == nil || m.Away.ID == "":
		return "unresolved away team"
	case m.Home.ID == m.Away.ID:
		return "home and away are the same team"
	}
	return ""
}

// Add folds one match into the tally. Matches that are not finished or miss a
// team reference are recorded as skipped.
func (t *Tally) Add(m *Match) {
	if m == nil {
		t.skipped = append(t.skipped, Skip{Reason: "nil match"})
		return
	}
	if reason := checkFinished(m); reason != "" {
		t.skipped = append(t.skipped, Skip{MatchID: m.ID, Reason: reason})
		return
	}

	home := t.entry(m.Home)
	away := t.entry(m.Away)

	home.goalsFor += m.Score.Home
	home.goalsAgainst += m.Score.Away
	away.goalsFor += m.Score.Away
	away.goalsAgainst += m.Score.Home

	var homeResult, awayResult string
	switch m.Score.Winner() {
	case WinnerHome:
		home.won++
		away.lost++
		homeResult, awayResult = FormWin, FormLoss
	case WinnerAway:
		away.won++
		home.lost++
		homeResult, awayResult = FormLoss, FormWin
	default:
		home.drawn++
		away.drawn++
		homeResult, awayResult = FormDraw, FormDraw
	}
	home.form = append(home.form, formEntry{at: m.KickoffAt, matchID: m.ID, result: homeResult})
	away.form = append(away.form, formEntry{at: m.KickoffAt, matchID: m.ID, result: awayResult})
}

// Merge adds the counters of other into t.
func (t *Tally) Merge(other *Tally) {
	for id, o := range other.teams {
		e, ok := t.teams[id]
		if !ok {
			e = &teamTally{team: o.team}
			t.teams[id] = e
		}
		e.won += o.won
		e.drawn += o.drawn
		e.lost += o.lost
		e.goalsFor += o.goalsFor
		e.goalsAgainst += o.goalsAgainst
		e.form = append(e.form, o.form...)
	}
	t.skipped = append(t.skipped, other.skipped...)
}

// Skipped returns the matches that were ignored, in a stable order.
func (t *Tally) Skipped() []Skip {
	out := make([]Skip, len(t.skipped))
	copy(out, t.skipped)
	sort.SliceStable(out, func(i, j int) bool { return out[i].MatchID < out[j].MatchID })
	return out
}

// Table finalizes the tally into a ranked table.
func (t *Tally) Table(rule PointsRule) []*TeamSeasonStat {
	rows := make([]*TeamSeasonStat, 0, len(t.teams))
	for _, e := range t.teams {
		team := *e.team
		rows = append(rows, &TeamSeasonStat{
			Team:           &team,
			Played:         e.won + e.drawn + e.lost,
			Won:            e.won,
			Drawn:          e.drawn,
			Lost:           e.lost,
			GoalsFor:       e.goalsFor,
			GoalsAgainst:   e.goalsAgainst,
			GoalDifference: e.goalsFor - e.goalsAgainst,
			Points:         e.won*rule.Win + e.drawn*rule.Draw + e.lost*rule.Loss,
			Form:           recentForm(e.form),
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Points != b.Points {
			return a.Points > b.Points
		}
		if a.GoalDifference != b.GoalDifference {
			return a.GoalDifference > b.GoalDifference
		}
		if a.GoalsFor != b.GoalsFor {
			return a.GoalsFor > b.GoalsFor
		}
		return a.Team.ID < b.Team.ID
	})
	for i, r := range rows {
		r.Position = i + 1
	}
	return rows
}

func (t *Tally) entry(team *Team) *teamTally {
	e, ok := t.teams[team.ID]
	if !ok {
		e = &teamTally{team: team}
		t.teams[team.ID] = e
	}
	return e
}

// recentForm orders results by kickoff (match id breaks ties) and keeps the
// last FormLength letters, oldest first.
func recentForm(entries []formEntry) []string {
	sorted := make([]formEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].at.Equal(sorted[j].at) {
			return sorted[i].at.Before(sorted[j].at)
		}
		return sorted[i].matchID < sorted[j].matchID
	})
	if len(sorted) > FormLength {
		sorted = sorted[len(sorted)-FormLength:]
	}
	form := make([]string, len(sorted))
	for i, f := range sorted {
		form[i] = f.result
	}
	return form
}

// ComputeStandings turns a season's finished matches into a ranked table.
// Unusable matches are left out and reported, never fatal.
func ComputeStandings(matches []*Match, rule PointsRule) ([]*TeamSeasonStat, []Skip) {
	t := NewTally()
	for _, m := range matches {
		t.Add(m)
	}
	return t.Table(rule), t.Skipped()
}

// ComputeStandingsConcurrent splits matches into up to workers partitions,
// tallies them in parallel and merges the partial tallies. The result is the
// same as ComputeStandings.
func ComputeStandingsConcurrent(matches []*Match, rule PointsRule, workers int) ([]*TeamSeasonStat, []Skip) {
	if workers < 2 || len(matches) < workers {
		return ComputeStandings(matches, rule)
	}

	size := (len(matches) + workers - 1) / workers
	parts := make([]*Tally, 0, workers)
	for lo := 0; lo < len(matches); lo += size {
		parts = append(parts, NewTally())
	}

	var g errgroup.Group
	for i := range parts {
		lo := i * size
		hi := lo + size
		if hi > len(matches) {
			hi = len(matches)
		}
		part := parts[i]
		chunk := matches[lo:hi]
		g.Go(func() error {
			for _, m := range chunk {
				part.Add(m)
			}
			return nil
		})
	}
	_ = g.Wait()

	total := NewTally()
	for _, p := range parts {
		total.Merge(p)
	}
	return total.Table(rule), total.Skipped()
}

// WriteTable prints a plain text table, one row per team.
func WriteTable(w io.Writer, label string, table []*TeamSeasonStat) error {
	if _, err := fmt.Fprintln(w, label); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "%3s %-20s %2s %2s %2s %2s %3s %3s %3s %3s  %s\n",
		"#", "Team", "P", "W", "D", "L", "GF", "GA", "GD", "Pts", "Form"); err != nil {
		return err
	}
	for _, r := range table {
		name := r.Team.Name
		if name == "" {
			name = r.Team.ID
		}
		if _, err := fmt.Fprintf(w, "%3d %-20s %2d %2d %2d %2d %3d %3d %3d %3d  %s\n",
			r.Position, name, r.Played, r.Won, r.Drawn, r.Lost,
			r.GoalsFor, r.GoalsAgainst, r.GoalDifference, r.Points,
			strings.Join(r.Form, ""),
		); err != nil {
			return err
		}
	}
	return nil
}
