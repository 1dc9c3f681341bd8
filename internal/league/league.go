package league

import "time"

// Side identifies one of the two teams in a fixture.
type Side string

const (
	SideHome Side = "home"
	SideAway Side = "away"
)

func (s Side) Valid() bool {
	return s == SideHome || s == SideAway
}

// Opponent returns the other side of the fixture.
func (s Side) Opponent() Side {
	if s == SideHome {
		return SideAway
	}
	return SideHome
}

// Status is the lifecycle state of a match.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusLive      Status = "live"
	StatusHalftime  Status = "halftime"
	StatusFinished  Status = "finished"
	StatusPostponed Status = "postponed"
	StatusCancelled Status = "cancelled"
	StatusAbandoned Status = "abandoned"
)

// Terminal reports whether no further transition or event is allowed.
func (s Status) Terminal() bool {
	switch s {
	case StatusFinished, StatusCancelled, StatusAbandoned:
		return true
	}
	return false
}

// InPlay reports whether events may be appended.
func (s Status) InPlay() bool {
	return s == StatusLive || s == StatusHalftime
}

// Winner is the outcome of a scoreline.
type Winner string

const (
	WinnerHome Winner = "home"
	WinnerAway Winner = "away"
	WinnerDraw Winner = "draw"
)

// Score holds goals per side.
type Score struct {
	Home int `json:"home" validate:"min=0"`
	Away int `json:"away" validate:"min=0"`
}

func (s Score) Get(side Side) int {
	if side == SideHome {
		return s.Home
	}
	return s.Away
}

func (s *Score) add(side Side, n int) {
	if side == SideHome {
		s.Home += n
		return
	}
	s.Away += n
}

// Winner derives the result of the scoreline. Predictions and real results
// share this rule.
func (s Score) Winner() Winner {
	switch {
	case s.Home > s.Away:
		return WinnerHome
	case s.Away > s.Home:
		return WinnerAway
	default:
		return WinnerDraw
	}
}

// Margin is the absolute goal difference.
func (s Score) Margin() int {
	if s.Home > s.Away {
		return s.Home - s.Away
	}
	return s.Away - s.Home
}

// TeamStats holds the per-team match counters.
type TeamStats struct {
	Shots         int `json:"shots"`
	ShotsOnTarget int `json:"shots_on_target"`
	Corners       int `json:"corners"`
	Fouls         int `json:"fouls"`
	YellowCards   int `json:"yellow_cards"`
	RedCards      int `json:"red_cards"`
}

// Statistics holds counters for both sides.
type Statistics struct {
	Home TeamStats `json:"home"`
	Away TeamStats `json:"away"`
}

// For returns the counters of one side.
func (s *Statistics) For(side Side) *TeamStats {
	if side == SideHome {
		return &s.Home
	}
	return &s.Away
}

// Team is a resolved club reference. The store joins it onto a match before
// the match reaches this package.
type Team struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Match represents a fixture between two teams and everything recorded while
// it was played.
type Match struct {
	ID        string    `json:"id"`
	LeagueID  string    `json:"league_id"`
	SeasonID  string    `json:"season_id"`
	VenueID   string    `json:"venue_id,omitempty"`
	Home      *Team     `json:"home"`
	Away      *Team     `json:"away"`
	Week      int       `json:"week"`
	KickoffAt time.Time `json:"kickoff_at"`
	Status    Status    `json:"status"`

	Score          Score      `json:"score"`
	HalftimeScore  Score      `json:"halftime_score"`
	HalftimeEvents int        `json:"halftime_events"`
	Statistics     Statistics `json:"statistics"`
	Events         []Event    `json:"events"`

	StartedAt  *time.Time `json:"started_at,omitempty"`
	HalftimeAt *time.Time `json:"halftime_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Version    int64      `json:"version"`
}

// TeamFor returns the team playing on side.
func (m *Match) TeamFor(side Side) *Team {
	if side == SideHome {
		return m.Home
	}
	return m.Away
}

// Clone returns a deep copy so a snapshot can be handed out or mutated
// without touching the original.
func (m *Match) Clone() *Match {
	c := *m
	if m.Home != nil {
		h := *m.Home
		c.Home = &h
	}
	if m.Away != nil {
		a := *m.Away
		c.Away = &a
	}
	if m.Events != nil {
		c.Events = make([]Event, len(m.Events))
		copy(c.Events, m.Events)
	}
	if m.StartedAt != nil {
		t := *m.StartedAt
		c.StartedAt = &t
	}
	if m.HalftimeAt != nil {
		t := *m.HalftimeAt
		c.HalftimeAt = &t
	}
	if m.FinishedAt != nil {
		t := *m.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}
