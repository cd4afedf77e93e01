package api

import (
	"database/sql"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mkaplan/matchnight/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wsServer exposes the app's full route table over a real listener so
// handshake and close-code behavior can be observed from the client
// side.
func wsServer(t *testing.T, app *MatchnightApp) string {
	t.Helper()

	srv := httptest.NewServer(app.mux.Handler)
	t.Cleanup(srv.Close)
	return strings.Replace(srv.URL, "http", "ws", 1)
}

func sessionToken(t *testing.T, app *MatchnightApp, userId uuid.UUID) string {
	t.Helper()

	token, err := app.createJwtForSession(userId, time.Hour)
	require.NoError(t, err)
	return token
}

// expectClose asserts the server closed the connection with the given
// code without delivering any frame first.
func expectClose(t *testing.T, conn *websocket.Conn, code int) {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, code), "expected close code %d, got %v", code, err)
}

func readWelcome(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame map[string]any
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestServeEventWs(t *testing.T) {
	t.Run("no token closes with policy violation", func(t *testing.T) {
		app, _ := newTestApp(t)
		url := wsServer(t, app)

		conn, _, err := websocket.DefaultDialer.Dial(url+"/ws/events/"+uuid.NewString(), nil)
		require.NoError(t, err, "expected the handshake to be accepted before auth")
		defer conn.Close()

		expectClose(t, conn, websocket.ClosePolicyViolation)
	})

	t.Run("attendee not registered closes with unsupported data", func(t *testing.T) {
		app, db := newTestApp(t)
		account := attendeeAccount(t)
		event := database.Event{Id: uuid.New(), Name: "Spring Mixer", OrganizerId: uuid.New()}

		db.On("GetAccountById", account.Id).Return(account, nil)
		db.On("GetEventById", event.Id).Return(event, nil)
		db.On("AttendeeExists", account.Id, event.Id).Return(false)

		url := wsServer(t, app)
		conn, _, err := websocket.DefaultDialer.Dial(url+"/ws/events/"+event.Id.String()+"?token="+sessionToken(t, app, account.Id), nil)
		require.NoError(t, err)
		defer conn.Close()

		expectClose(t, conn, websocket.CloseUnsupportedData)
	})

	t.Run("unknown event closes with unsupported data", func(t *testing.T) {
		app, db := newTestApp(t)
		account := attendeeAccount(t)
		eventId := uuid.New()

		db.On("GetAccountById", account.Id).Return(account, nil)
		db.On("GetEventById", eventId).Return(database.Event{}, sql.ErrNoRows)

		url := wsServer(t, app)
		conn, _, err := websocket.DefaultDialer.Dial(url+"/ws/events/"+eventId.String()+"?token="+sessionToken(t, app, account.Id), nil)
		require.NoError(t, err)
		defer conn.Close()

		expectClose(t, conn, websocket.CloseUnsupportedData)
	})

	t.Run("registered attendee gets welcome message", func(t *testing.T) {
		app, db := newTestApp(t)
		account := attendeeAccount(t)
		event := database.Event{Id: uuid.New(), Name: "Spring Mixer", OrganizerId: uuid.New()}

		db.On("GetAccountById", account.Id).Return(account, nil)
		db.On("GetEventById", event.Id).Return(event, nil)
		db.On("AttendeeExists", account.Id, event.Id).Return(true)

		url := wsServer(t, app)
		conn, _, err := websocket.DefaultDialer.Dial(url+"/ws/events/"+event.Id.String()+"?token="+sessionToken(t, app, account.Id), nil)
		require.NoError(t, err)
		defer conn.Close()

		frame := readWelcome(t, conn)
		assert.Equal(t, "connected", frame["type"])
		assert.Equal(t, "Connected to event: Spring Mixer", frame["message"])
		assert.Equal(t, "attendee", frame["user_role"])
		assert.Equal(t, event.Id.String(), frame["event_id"])
	})
}

func TestServeRoundTimerWs(t *testing.T) {
	t.Run("registered attendee gets timer snapshot", func(t *testing.T) {
		app, db := newTestApp(t)
		account := attendeeAccount(t)
		eventId := uuid.New()
		round := database.Round{Id: uuid.New(), EventId: eventId, Number: 2, Name: "Round 2"}

		db.On("GetAccountById", account.Id).Return(account, nil)
		db.On("GetRoundById", round.Id).Return(round, nil)
		db.On("AttendeeExists", account.Id, eventId).Return(true)

		require.NoError(t, app.rounds.Start(round.Id, 5, 2))

		url := wsServer(t, app)
		conn, _, err := websocket.DefaultDialer.Dial(url+"/ws/rounds/"+round.Id.String()+"/timer?token="+sessionToken(t, app, account.Id), nil)
		require.NoError(t, err)
		defer conn.Close()

		frame := readWelcome(t, conn)
		assert.Equal(t, "timer_connected", frame["type"])
		assert.Equal(t, round.Id.String(), frame["round_id"])
		assert.Equal(t, float64(2), frame["round_number"])

		ts, ok := frame["timer_status"].(map[string]any)
		require.True(t, ok, "expected a running timer in the welcome frame")
		assert.Equal(t, float64(300), ts["time_remaining"])
	})

	t.Run("unregistered attendee rejected", func(t *testing.T) {
		app, db := newTestApp(t)
		account := attendeeAccount(t)
		round := database.Round{Id: uuid.New(), EventId: uuid.New()}

		db.On("GetAccountById", account.Id).Return(account, nil)
		db.On("GetRoundById", round.Id).Return(round, nil)
		db.On("AttendeeExists", account.Id, round.EventId).Return(false)

		url := wsServer(t, app)
		conn, _, err := websocket.DefaultDialer.Dial(url+"/ws/rounds/"+round.Id.String()+"/timer?token="+sessionToken(t, app, account.Id), nil)
		require.NoError(t, err)
		defer conn.Close()

		expectClose(t, conn, websocket.CloseUnsupportedData)
	})
}

func TestServeAdminWs(t *testing.T) {
	t.Run("organizer connects", func(t *testing.T) {
		app, db := newTestApp(t)
		account := organizerAccount(t)
		db.On("GetAccountById", account.Id).Return(account, nil)

		url := wsServer(t, app)
		conn, _, err := websocket.DefaultDialer.Dial(url+"/ws/admin/dashboard?token="+sessionToken(t, app, account.Id), nil)
		require.NoError(t, err)
		defer conn.Close()

		frame := readWelcome(t, conn)
		assert.Equal(t, "admin_connected", frame["type"])

		st, ok := frame["connection_stats"].(map[string]any)
		require.True(t, ok, "expected connection stats in the welcome frame")
		assert.Equal(t, float64(1), st["total_connections"])
	})

	t.Run("attendee rejected", func(t *testing.T) {
		app, db := newTestApp(t)
		account := attendeeAccount(t)
		db.On("GetAccountById", account.Id).Return(account, nil)

		url := wsServer(t, app)
		conn, _, err := websocket.DefaultDialer.Dial(url+"/ws/admin/dashboard?token="+sessionToken(t, app, account.Id), nil)
		require.NoError(t, err)
		defer conn.Close()

		expectClose(t, conn, websocket.CloseUnsupportedData)
	})
}
