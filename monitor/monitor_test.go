package monitor

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/tugofwar/game"
)

func TestMonitor_ObserverCounters(t *testing.T) {
	m := NewMonitor("tug", func() int { return 0 }, func() int { return 0 })

	m.RoundFinished("1234", game.TeamA)
	m.RoundFinished("1234", game.TeamA)
	m.RoundFinished("1234", game.TeamB)
	m.MatchFinished(game.MatchResult{RoomID: "1234", Winner: game.TeamB})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.metrics.RoundsFinished.WithLabelValues("A")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.RoundsFinished.WithLabelValues("B")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.MatchesFinished.WithLabelValues("B")))
}

func TestMonitor_RequestCount(t *testing.T) {
	m := NewMonitor("tug", func() int { return 0 }, func() int { return 0 })
	m.IncMessagesReceived("click_action")
	m.IncMessagesReceived("click_action")
	m.IncMessagesReceived("join_lobby")

	assert.EqualValues(t, 3, m.RequestCount())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.metrics.MessagesReceived.WithLabelValues("click_action")))
}

func TestMonitor_HandlerExposesGauges(t *testing.T) {
	rooms := 3
	m := NewMonitor("tug", func() int { return rooms }, func() int { return 7 })
	m.IncRoomsCreated()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.True(t, strings.Contains(text, "tug_active_rooms 3"), text)
	assert.True(t, strings.Contains(text, "tug_online_players 7"), text)
	assert.True(t, strings.Contains(text, "tug_rooms_created_total 1"), text)
}

func TestMonitor_TwoInstancesDoNotCollide(t *testing.T) {
	require.NotPanics(t, func() {
		NewMonitor("tug", func() int { return 0 }, func() int { return 0 })
		NewMonitor("tug", func() int { return 0 }, func() int { return 0 })
	})
}
