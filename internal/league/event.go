package league

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// EventType names an in-match occurrence.
type EventType string

const (
	EventGoal          EventType = "goal"
	EventOwnGoal       EventType = "own_goal"
	EventYellowCard    EventType = "yellow_card"
	EventRedCard       EventType = "red_card"
	EventSubstitution  EventType = "substitution"
	EventPenaltyMissed EventType = "penalty_missed"
	EventShot          EventType = "shot"
	EventShotOnTarget  EventType = "shot_on_target"
	EventCorner        EventType = "corner"
	EventFoul          EventType = "foul"
)

// MaxMinute bounds the descriptive minute, extra time and stoppage included.
// It matches the max on Event.Minute.
const MaxMinute = 130

// Event is one entry of a match's append-only log. Seq is its 1-based
// position in the log and is assigned on append; Minute only describes when
// it happened on the pitch.
type Event struct {
	Seq        int       `json:"seq"`
	Type       EventType `json:"type" validate:"oneof=goal own_goal yellow_card red_card substitution penalty_missed shot shot_on_target corner foul"`
	Team       Side      `json:"team" validate:"oneof=home away"`
	Minute     int       `json:"minute" validate:"min=0,max=130"`
	PlayerID   string    `json:"player_id,omitempty"`
	AssistedBy string    `json:"assisted_by,omitempty" validate:"omitempty,nefield=PlayerID"`
	PlayerOut  string    `json:"player_out,omitempty" validate:"required_if=Type substitution"`
	PlayerIn   string    `json:"player_in,omitempty" validate:"required_if=Type substitution,omitempty,nefield=PlayerOut"`
	RecordedAt time.Time `json:"recorded_at"`
}

var validate = validator.New()

// validStruct runs the validate tags of v.
func validStruct(v interface{}) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

// needsPlayer lists the types that must name the player involved.
var needsPlayer = map[EventType]bool{
	EventGoal:          true,
	EventOwnGoal:       true,
	EventYellowCard:    true,
	EventRedCard:       true,
	EventPenaltyMissed: true,
}

// Validate checks the event in isolation, before any match state is looked at.
func (e Event) Validate() error {
	if err := validStruct(e); err != nil {
		return err
	}
	// rules spanning several types stay out of the tags
	if needsPlayer[e.Type] && e.PlayerID == "" {
		return fmt.Errorf("%w: %s event needs a player", ErrValidation, e.Type)
	}
	if e.AssistedBy != "" && e.Type != EventGoal {
		return fmt.Errorf("%w: assist recorded on %s event", ErrValidation, e.Type)
	}
	return nil
}

// ScoringSide reports which side an event adds a goal for, if any.
func (e Event) ScoringSide() (Side, bool) {
	switch e.Type {
	case EventGoal:
		return e.Team, true
	case EventOwnGoal:
		return e.Team.Opponent(), true
	}
	return "", false
}

// apply folds one event into the derived score and counters. Incremental
// appends and Replay both go through here, so they cannot drift apart.
func apply(score *Score, stats *Statistics, e Event) {
	if side, ok := e.ScoringSide(); ok {
		score.add(side, 1)
	}

	ts := stats.For(e.Team)
	switch e.Type {
	case EventGoal:
		// a goal is an on-target shot
		ts.Shots++
		ts.ShotsOnTarget++
	case EventShotOnTarget:
		ts.Shots++
		ts.ShotsOnTarget++
	case EventShot, EventPenaltyMissed:
		ts.Shots++
	case EventYellowCard:
		ts.YellowCards++
	case EventRedCard:
		ts.RedCards++
	case EventCorner:
		ts.Corners++
	case EventFoul:
		ts.Fouls++
	}
}

// Derived is the state that Replay rebuilds from a log.
type Derived struct {
	Score         Score
	HalftimeScore Score
	Statistics    Statistics
}

// Replay rebuilds score, halftime score and statistics from an empty state
// using only the match's event log.
func Replay(m *Match) Derived {
	var d Derived
	for i, e := range m.Events {
		if m.HalftimeAt != nil && i == m.HalftimeEvents {
			d.HalftimeScore = d.Score
		}
		apply(&d.Score, &d.Statistics, e)
	}
	if m.HalftimeAt != nil && m.HalftimeEvents >= len(m.Events) {
		d.HalftimeScore = d.Score
	}
	return d
}

// Verify checks that the cached score and counters on m equal a replay of its
// log. It returns the first divergence found.
func Verify(m *Match) error {
	d := Replay(m)
	if d.Score != m.Score {
		return fmt.Errorf("match %s: score %d-%d, log replays to %d-%d",
			m.ID, m.Score.Home, m.Score.Away, d.Score.Home, d.Score.Away)
	}
	if m.HalftimeAt != nil && d.HalftimeScore != m.HalftimeScore {
		return fmt.Errorf("match %s: halftime score %d-%d, log replays to %d-%d",
			m.ID, m.HalftimeScore.Home, m.HalftimeScore.Away, d.HalftimeScore.Home, d.HalftimeScore.Away)
	}
	if d.Statistics != m.Statistics {
		return fmt.Errorf("match %s: statistics %+v, log replays to %+v", m.ID, m.Statistics, d.Statistics)
	}
	for i, e := range m.Events {
		if e.Seq != i+1 {
			return fmt.Errorf("match %s: event at position %d has seq %d", m.ID, i+1, e.Seq)
		}
	}
	return nil
}
