package league

import (
	"fmt"
	"time"
)

// The methods below are the only way a Match changes. Each one checks the
// current status first and leaves the match untouched when it fails.

// Start kicks off a scheduled match.
func (m *Match) Start(at time.Time) error {
	if m.Status != StatusScheduled {
		return m.illegal("start")
	}
	m.Status = StatusLive
	m.StartedAt = &at
	m.Version++
	return nil
}

// Halftime pauses a live match and snapshots the current score.
func (m *Match) Halftime(at time.Time) error {
	if m.Status != StatusLive {
		return m.illegal("set halftime on")
	}
	if m.HalftimeAt != nil {
		return fmt.Errorf("%w: match %s already had its halftime at %s",
			ErrInvalidState, m.ID, m.HalftimeAt.Format(time.RFC3339))
	}
	m.Status = StatusHalftime
	m.HalftimeScore = m.Score
	m.HalftimeEvents = len(m.Events)
	m.HalftimeAt = &at
	m.Version++
	return nil
}

// Resume restarts play after halftime.
func (m *Match) Resume() error {
	if m.Status != StatusHalftime {
		return m.illegal("resume")
	}
	m.Status = StatusLive
	m.Version++
	return nil
}

// Finish ends a live match or one paused at halftime. The score is frozen
// from here on.
func (m *Match) Finish(at time.Time) error {
	if !m.Status.InPlay() {
		return m.illegal("finish")
	}
	m.Status = StatusFinished
	m.FinishedAt = &at
	m.Version++
	return nil
}

// Postpone, Cancel and Abandon are administrative transitions, allowed only
// from scheduled or live.
func (m *Match) Postpone() error { return m.administrative(StatusPostponed) }

func (m *Match) Cancel() error { return m.administrative(StatusCancelled) }

func (m *Match) Abandon() error { return m.administrative(StatusAbandoned) }

func (m *Match) administrative(to Status) error {
	if m.Status != StatusScheduled && m.Status != StatusLive {
		return m.illegal("move to " + string(to))
	}
	m.Status = to
	m.Version++
	return nil
}

// Reschedule puts a postponed match back on the calendar.
func (m *Match) Reschedule(kickoff time.Time) error {
	if m.Status != StatusPostponed {
		return m.illegal("reschedule")
	}
	if kickoff.IsZero() {
		return fmt.Errorf("%w: reschedule of match %s needs a kickoff time", ErrValidation, m.ID)
	}
	m.Status = StatusScheduled
	m.KickoffAt = kickoff
	m.Version++
	return nil
}

// AppendEvent records ev at the end of the log and folds it into the score
// and statistics. An append during halftime resumes play.
func (m *Match) AppendEvent(ev Event, at time.Time) (Event, error) {
	if err := ev.Validate(); err != nil {
		return Event{}, err
	}
	if !m.Status.InPlay() {
		return Event{}, m.illegal("append " + string(ev.Type) + " to")
	}

	if m.Status == StatusHalftime {
		m.Status = StatusLive
	}
	ev.Seq = len(m.Events) + 1
	if ev.RecordedAt.IsZero() {
		ev.RecordedAt = at
	}
	m.Events = append(m.Events, ev)
	apply(&m.Score, &m.Statistics, ev)
	m.Version++
	return ev, nil
}

func (m *Match) illegal(op string) error {
	return fmt.Errorf("%w: cannot %s match %s in status %s", ErrInvalidState, op, m.ID, m.Status)
}
