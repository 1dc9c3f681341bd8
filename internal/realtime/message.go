package realtime

import "time"

// Message types exchanged with websocket clients.
const (
	MessageTypeMatchUpdate = "match_update"
	MessageTypeSubscribe   = "subscribe"
	MessageTypeUnsubscribe = "unsubscribe"
	MessageTypeHeartbeat   = "heartbeat"
	MessageTypeError       = "error"
)

// Update is one committed match change pushed to subscribers.
type Update struct {
	Kind     string      `json:"kind"`
	MatchID  string      `json:"match_id"`
	LeagueID string      `json:"league_id"`
	SeasonID string      `json:"season_id"`
	Version  int64       `json:"version"`
	Payload  interface{} `json:"payload,omitempty"`
}

// Filter narrows what a client receives. Empty lists accept everything.
type Filter struct {
	Matches []string `json:"matches"`
	Leagues []string `json:"leagues"`
}

func (f Filter) accepts(u Update) bool {
	if len(f.Matches) > 0 && !contains(f.Matches, u.MatchID) {
		return false
	}
	if len(f.Leagues) > 0 && !contains(f.Leagues, u.LeagueID) {
		return false
	}
	return true
}

type ServerMessage struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

type ClientMessage struct {
	Type   string `json:"type"`
	Filter Filter `json:"filter"`
}

type ErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
