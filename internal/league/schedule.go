package league

import (
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// FixturePlan places generated fixtures on the calendar.
type FixturePlan struct {
	LeagueID     string
	SeasonID     string
	FirstKickoff time.Time
	// Interval separates consecutive weeks.
	Interval time.Duration
}

func (m *Match) ScoreLine() string {
	home, away := "?", "?"
	if m.Home != nil {
		home = m.Home.Name
	}
	if m.Away != nil {
		away = m.Away.Name
	}
	return fmt.Sprintf("%s %d - %d %s", home, m.Score.Home, m.Score.Away, away)
}

// GenerateSchedule returns a round-robin schedule for the provided teams.
// It outputs a slice of rounds, each round being a slice of pointers to Match.
// Every team meets every other team once.
func GenerateSchedule(teams []*Team) [][]*Match {
	// work on a copy, the rotation below reorders it
	rot := make([]*Team, len(teams), len(teams)+1)
	copy(rot, teams)
	// If odd number of teams, add a nil placeholder (bye)
	if len(rot)%2 != 0 {
		rot = append(rot, nil)
	}
	n := len(rot)
	if n < 2 {
		return nil
	}

	rounds := make([][]*Match, n-1)
	for i := 0; i < n-1; i++ {
		round := make([]*Match, 0, n/2)
		for j := 0; j < n/2; j++ {
			home := rot[j]
			away := rot[n-1-j]
			if home == nil || away == nil {
				continue
			}
			// alternate venues for the fixed team so it is not always at home
			if j == 0 && i%2 == 1 {
				home, away = away, home
			}
			round = append(round, &Match{Home: home, Away: away, Week: i + 1, Status: StatusScheduled})
		}
		rounds[i] = round

		// Rotate everyone except the first team
		last := rot[n-1]
		copy(rot[2:], rot[1:n-1])
		rot[1] = last
	}
	return rounds
}

// GenerateFullSeason builds a double round robin: the second half repeats the
// first with home and away swapped. Every fixture gets an id, the plan's
// league and season, and a kickoff one Interval after the previous week.
func GenerateFullSeason(teams []*Team, plan FixturePlan) [][]*Match {
	firstHalf := GenerateSchedule(teams)
	secondHalf := make([][]*Match, len(firstHalf))
	for i, rnd := range firstHalf {
		swapped := make([]*Match, len(rnd))
		for j, m := range rnd {
			swapped[j] = &Match{Home: m.Away, Away: m.Home, Week: i + 1 + len(firstHalf), Status: StatusScheduled}
		}
		secondHalf[i] = swapped
	}

	season := append(firstHalf, secondHalf...)
	for _, rnd := range season {
		for _, m := range rnd {
			m.ID = uuid.New().String()
			m.LeagueID = plan.LeagueID
			m.SeasonID = plan.SeasonID
			m.KickoffAt = plan.FirstKickoff.Add(time.Duration(m.Week-1) * plan.Interval)
		}
	}
	return season
}

// WriteSchedule prints fixtures grouped by week.
func WriteSchedule(w io.Writer, label string, season [][]*Match) error {
	if _, err := fmt.Fprintln(w, label); err != nil {
		return err
	}
	for _, round := range season {
		if len(round) == 0 {
			continue
		}
		if _, err := fmt.Fprintf(w, "Week %d (%s):\n", round[0].Week, round[0].KickoffAt.Format("2006-01-02")); err != nil {
			return err
		}
		for _, m := range round {
			if _, err := fmt.Fprintf(w, "  %s vs %s\n", m.Home.Name, m.Away.Name); err != nil {
				return err
			}
		}
	}
	return nil
}
