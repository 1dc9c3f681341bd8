package league

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var replayTypes = []EventType{
	EventGoal, EventOwnGoal, EventYellowCard, EventRedCard, EventSubstitution,
	EventPenaltyMissed, EventShot, EventShotOnTarget, EventCorner, EventFoul,
}

func randomEvent(r *rand.Rand) Event {
	side := SideHome
	if r.Intn(2) == 1 {
		side = SideAway
	}
	e := Event{Type: replayTypes[r.Intn(len(replayTypes))], Team: side, Minute: r.Intn(91), PlayerID: "p1"}
	if e.Type == EventSubstitution {
		e.PlayerID = ""
		e.PlayerOut, e.PlayerIn = "p1", "p2"
	}
	if e.Type == EventGoal && r.Intn(2) == 1 {
		e.AssistedBy = "p3"
	}
	return e
}

func TestReplayReproducesDerivedState(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for round := 0; round < 25; round++ {
		m := newFixture("m1")
		require.NoError(t, m.Start(kickoff))

		n := r.Intn(40)
		half := r.Intn(n + 1)
		for i := 0; i < n; i++ {
			if i == half {
				require.NoError(t, m.Halftime(kickoff.Add(45*time.Minute)))
			}
			_, err := m.AppendEvent(randomEvent(r), kickoff)
			require.NoError(t, err)
		}
		require.NoError(t, m.Finish(kickoff.Add(2*time.Hour)))

		d := Replay(m)
		assert.Equal(t, m.Score, d.Score)
		assert.Equal(t, m.Statistics, d.Statistics)
		if m.HalftimeAt != nil {
			assert.Equal(t, m.HalftimeScore, d.HalftimeScore)
		}
		assert.NoError(t, Verify(m))
	}
}

func TestVerifyDetectsDrift(t *testing.T) {
	m := newFixture("m1")
	require.NoError(t, m.Start(kickoff))
	_, err := m.AppendEvent(goal(SideHome, 3, "saka", ""), kickoff)
	require.NoError(t, err)

	m.Score.Home = 2
	assert.Error(t, Verify(m))

	m.Score.Home = 1
	m.Statistics.Away.RedCards = 1
	assert.Error(t, Verify(m))
}

func TestScoringSide(t *testing.T) {
	side, ok := Event{Type: EventGoal, Team: SideAway}.ScoringSide()
	assert.True(t, ok)
	assert.Equal(t, SideAway, side)

	side, ok = Event{Type: EventOwnGoal, Team: SideAway}.ScoringSide()
	assert.True(t, ok)
	assert.Equal(t, SideHome, side)

	_, ok = Event{Type: EventCorner, Team: SideAway}.ScoringSide()
	assert.False(t, ok)
}
