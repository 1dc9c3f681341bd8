package league

import "sort"

// DefaultTopK is the leaderboard length when the caller does not pick one.
const DefaultTopK = 20

// PlayerCount is one leaderboard row.
type PlayerCount struct {
	PlayerID string `json:"player_id"`
	Count    int    `json:"count"`
}

// Leaderboard holds the scorer and assist rankings of a season.
type Leaderboard struct {
	Scorers []PlayerCount `json:"scorers"`
	Assists []PlayerCount `json:"assists"`
	Skipped []Skip        `json:"-"`
}

// ComputeLeaderboard scans the event logs of finished matches once and ranks
// players by goals and by assists, keeping the top k of each (DefaultTopK
// when k <= 0). Own goals are not credited to anyone's scoring tally.
func ComputeLeaderboard(matches []*Match, k int) Leaderboard {
	if k <= 0 {
		k = DefaultTopK
	}

	goals := make(map[string]int)
	assists := make(map[string]int)
	var skipped []Skip

	for _, m := range matches {
		if m == nil {
			skipped = append(skipped, Skip{Reason: "nil match"})
			continue
		}
		if m.Status != StatusFinished {
			skipped = append(skipped, Skip{MatchID: m.ID, Reason: "status is " + string(m.Status)})
			continue
		}
		for _, e := range m.Events {
			if e.Type != EventGoal {
				continue
			}
			if e.PlayerID != "" {
				goals[e.PlayerID]++
			}
			if e.AssistedBy != "" {
				assists[e.AssistedBy]++
			}
		}
	}

	return Leaderboard{
		Scorers: rank(goals, k),
		Assists: rank(assists, k),
		Skipped: skipped,
	}
}

// TopScorers returns the k players with most goals.
func TopScorers(matches []*Match, k int) []PlayerCount {
	return ComputeLeaderboard(matches, k).Scorers
}

// TopAssists returns the k players with most assists.
func TopAssists(matches []*Match, k int) []PlayerCount {
	return ComputeLeaderboard(matches, k).Assists
}

// rank sorts by count desc, then player id asc, and truncates to k.
func rank(counts map[string]int, k int) []PlayerCount {
	rows := make([]PlayerCount, 0, len(counts))
	for id, n := range counts {
		rows = append(rows, PlayerCount{PlayerID: id, Count: n})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		return rows[i].PlayerID < rows[j].PlayerID
	})
	if len(rows) > k {
		rows = rows[:k]
	}
	return rows
}
