package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mkaplan/matchnight/internal/config"
	"github.com/mkaplan/matchnight/internal/database"
	"github.com/mkaplan/matchnight/internal/gateway"
	"github.com/mkaplan/matchnight/internal/realtime"
	"github.com/mkaplan/matchnight/internal/stats"
	"github.com/mkaplan/matchnight/internal/testutil"
	"github.com/mkaplan/matchnight/internal/timer"
	"github.com/mkaplan/matchnight/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) (*MatchnightApp, *database.MockEventStore) {
	t.Helper()

	logger := testutil.TestLogger(t)
	ms := &stats.MockStatsUpdater{}
	ms.On("Incr", mock.Anything)
	ms.On("Decr", mock.Anything)

	db := &database.MockEventStore{}
	rg := realtime.NewRegistry(logger, ms)
	clock := clockwork.NewFakeClock()
	re := timer.NewRoundEngine(logger, clock, rg, ms)
	ce := timer.NewCountdownEngine(logger, clock, rg, ms)
	gw := gateway.New(logger, rg, re, ce, db)

	cfg := &config.Config{
		ServerAddr:     "127.0.0.1:0",
		SigningKey:     []byte("test-signing-key"),
		AllowedOrigins: []string{"http://localhost:3000"},
	}

	app := NewMatchnightApp(http.NewServeMux(), logger, cfg, db, rg, gw, re, ce, ms)
	t.Cleanup(re.Shutdown)
	t.Cleanup(ce.Shutdown)
	return app, db
}

// findCookie is a helper function to find a cookie by name in the response recorder.
func findCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rr.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func organizerAccount(t *testing.T) database.Account {
	t.Helper()

	hash, err := hashPassword("password")
	require.NoError(t, err)
	return database.Account{
		Id:           uuid.New(),
		Email:        "organizer@example.com",
		DisplayName:  "Organizer",
		PasswordHash: hash,
		IsOrganizer:  true,
	}
}

func attendeeAccount(t *testing.T) database.Account {
	t.Helper()

	hash, err := hashPassword("password")
	require.NoError(t, err)
	return database.Account{
		Id:           uuid.New(),
		Email:        "attendee@example.com",
		DisplayName:  "Attendee",
		PasswordHash: hash,
	}
}

func TestLogin(t *testing.T) {
	t.Run("successful login", func(t *testing.T) {
		app, db := newTestApp(t)
		account := organizerAccount(t)
		db.On("GetAccountByEmail", account.Email).Return(account, nil)

		body, _ := json.Marshal(LoginRequest{Email: account.Email, Password: "password"})
		rr := httptest.NewRecorder()
		app.login(rr, httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body)))

		assert.Equal(t, http.StatusOK, rr.Code)

		cookie := findCookie(rr, tokenCookieKey)
		require.NotNil(t, cookie, "expected a session cookie")
		assert.True(t, cookie.HttpOnly)

		userId, err := app.extractUserIdFromToken(cookie.Value)
		require.NoError(t, err)
		assert.Equal(t, account.Id, userId)

		var u types.User
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&u))
		assert.Equal(t, account.Email, u.Email)
		assert.True(t, u.IsOrganizer)
	})

	t.Run("wrong password", func(t *testing.T) {
		app, db := newTestApp(t)
		account := organizerAccount(t)
		db.On("GetAccountByEmail", account.Email).Return(account, nil)

		body, _ := json.Marshal(LoginRequest{Email: account.Email, Password: "nope"})
		rr := httptest.NewRecorder()
		app.login(rr, httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body)))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Nil(t, findCookie(rr, tokenCookieKey))
	})

	t.Run("unknown account", func(t *testing.T) {
		app, db := newTestApp(t)
		db.On("GetAccountByEmail", "ghost@example.com").Return(database.Account{}, sql.ErrNoRows)

		body, _ := json.Marshal(LoginRequest{Email: "ghost@example.com", Password: "password"})
		rr := httptest.NewRecorder()
		app.login(rr, httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body)))

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("missing fields", func(t *testing.T) {
		app, _ := newTestApp(t)

		body, _ := json.Marshal(LoginRequest{Email: "someone@example.com"})
		rr := httptest.NewRecorder()
		app.login(rr, httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body)))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestSession(t *testing.T) {
	app, db := newTestApp(t)
	account := attendeeAccount(t)
	db.On("GetAccountById", account.Id).Return(account, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
	req = req.WithContext(WithUserId(req.Context(), account.Id))

	rr := httptest.NewRecorder()
	app.session(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var u types.User
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&u))
	assert.Equal(t, account.Id, u.Id)
	assert.False(t, u.IsOrganizer)
}

func Test_health(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		app, db := newTestApp(t)
		db.On("Ping").Return(nil)

		rr := httptest.NewRecorder()
		app.health(rr, httptest.NewRequest(http.MethodGet, "/api/healthz", nil))

		assert.Equal(t, http.StatusOK, rr.Code)

		var resp HealthResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Equal(t, "ok", resp.Status)
		assert.Equal(t, "ok", resp.Database)
		assert.Zero(t, resp.Connections)
	})

	t.Run("database down", func(t *testing.T) {
		app, db := newTestApp(t)
		db.On("Ping").Return(errors.New("db error"))

		rr := httptest.NewRecorder()
		app.health(rr, httptest.NewRequest(http.MethodGet, "/api/healthz", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

		var resp HealthResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Equal(t, "degraded", resp.Status)
		assert.Equal(t, "error", resp.Database)
	})
}

// timerFixture is the account/event/round triple the timer control
// handlers look up.
type timerFixture struct {
	account database.Account
	event   database.Event
	round   database.Round
}

func newTimerFixture(t *testing.T, db *database.MockEventStore, organizer bool) timerFixture {
	t.Helper()

	var account database.Account
	if organizer {
		account = organizerAccount(t)
	} else {
		account = attendeeAccount(t)
	}

	event := database.Event{Id: uuid.New(), Name: "Spring Mixer", OrganizerId: account.Id}
	if !organizer {
		event.OrganizerId = uuid.New()
	}
	round := database.Round{
		Id:              uuid.New(),
		EventId:         event.Id,
		Number:          1,
		DurationMinutes: 5,
		BreakMinutes:    2,
	}

	db.On("GetAccountById", account.Id).Return(account, nil)
	db.On("GetEventById", event.Id).Return(event, nil)
	db.On("GetRoundById", round.Id).Return(round, nil)

	return timerFixture{account: account, event: event, round: round}
}

func timerRequest(method, target string, body []byte, userId uuid.UUID, pathId string) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req = req.WithContext(WithUserId(req.Context(), userId))
	req.SetPathValue("id", pathId)
	return req
}

func TestStartRoundTimer(t *testing.T) {
	t.Run("defaults from round record", func(t *testing.T) {
		app, db := newTestApp(t)
		fx := newTimerFixture(t, db, true)

		rr := httptest.NewRecorder()
		app.startRoundTimer(rr, timerRequest(http.MethodPost, "/api/rounds/x/timer/start", nil, fx.account.Id, fx.round.Id.String()))

		assert.Equal(t, http.StatusOK, rr.Code)

		var st types.TimerStatus
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&st))
		assert.Equal(t, fx.round.Id, st.RoundId)
		assert.Equal(t, "round", st.Phase)
		assert.Equal(t, 300, st.TimeRemaining, "expected the round record's five minute duration")
	})

	t.Run("explicit durations", func(t *testing.T) {
		app, db := newTestApp(t)
		fx := newTimerFixture(t, db, true)

		body, _ := json.Marshal(map[string]int{"duration_minutes": 10, "break_minutes": 0})
		rr := httptest.NewRecorder()
		app.startRoundTimer(rr, timerRequest(http.MethodPost, "/api/rounds/x/timer/start", body, fx.account.Id, fx.round.Id.String()))

		assert.Equal(t, http.StatusOK, rr.Code)

		var st types.TimerStatus
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&st))
		assert.Equal(t, 600, st.TimeRemaining)
	})

	t.Run("invalid duration", func(t *testing.T) {
		app, db := newTestApp(t)
		fx := newTimerFixture(t, db, true)

		body, _ := json.Marshal(map[string]int{"duration_minutes": 61})
		rr := httptest.NewRecorder()
		app.startRoundTimer(rr, timerRequest(http.MethodPost, "/api/rounds/x/timer/start", body, fx.account.Id, fx.round.Id.String()))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("attendee forbidden", func(t *testing.T) {
		app, db := newTestApp(t)
		fx := newTimerFixture(t, db, false)

		rr := httptest.NewRecorder()
		app.startRoundTimer(rr, timerRequest(http.MethodPost, "/api/rounds/x/timer/start", nil, fx.account.Id, fx.round.Id.String()))

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("round not found", func(t *testing.T) {
		app, db := newTestApp(t)
		account := organizerAccount(t)
		missing := uuid.New()
		db.On("GetAccountById", account.Id).Return(account, nil)
		db.On("GetRoundById", missing).Return(database.Round{}, sql.ErrNoRows)

		rr := httptest.NewRecorder()
		app.startRoundTimer(rr, timerRequest(http.MethodPost, "/api/rounds/x/timer/start", nil, account.Id, missing.String()))

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestStopRoundTimer(t *testing.T) {
	app, db := newTestApp(t)
	fx := newTimerFixture(t, db, true)

	rr := httptest.NewRecorder()
	app.startRoundTimer(rr, timerRequest(http.MethodPost, "/api/rounds/x/timer/start", nil, fx.account.Id, fx.round.Id.String()))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	app.stopRoundTimer(rr, timerRequest(http.MethodPost, "/api/rounds/x/timer/stop", nil, fx.account.Id, fx.round.Id.String()))
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = httptest.NewRecorder()
	app.getRoundTimer(rr, timerRequest(http.MethodGet, "/api/rounds/x/timer", nil, fx.account.Id, fx.round.Id.String()))
	assert.Equal(t, http.StatusNotFound, rr.Code, "expected no timer after stop")
}

func TestCountdownHandlers(t *testing.T) {
	t.Run("start and get", func(t *testing.T) {
		app, db := newTestApp(t)
		fx := newTimerFixture(t, db, true)

		body, _ := json.Marshal(StartCountdownRequest{DurationMinutes: 10, Message: "Doors open soon"})
		rr := httptest.NewRecorder()
		app.startCountdown(rr, timerRequest(http.MethodPost, "/api/events/x/countdown", body, fx.account.Id, fx.event.Id.String()))

		assert.Equal(t, http.StatusOK, rr.Code)

		var st types.CountdownStatus
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&st))
		assert.Equal(t, 600, st.TotalDuration)
		assert.Equal(t, "Doors open soon", st.Message)

		rr = httptest.NewRecorder()
		app.getCountdown(rr, timerRequest(http.MethodGet, "/api/events/x/countdown", nil, fx.account.Id, fx.event.Id.String()))
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("extend without active countdown", func(t *testing.T) {
		app, db := newTestApp(t)
		fx := newTimerFixture(t, db, true)

		body, _ := json.Marshal(ExtendCountdownRequest{AdditionalMinutes: 5})
		rr := httptest.NewRecorder()
		app.extendCountdown(rr, timerRequest(http.MethodPost, "/api/events/x/countdown/extend", body, fx.account.Id, fx.event.Id.String()))

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("extend active countdown", func(t *testing.T) {
		app, db := newTestApp(t)
		fx := newTimerFixture(t, db, true)

		body, _ := json.Marshal(StartCountdownRequest{DurationMinutes: 10})
		rr := httptest.NewRecorder()
		app.startCountdown(rr, timerRequest(http.MethodPost, "/api/events/x/countdown", body, fx.account.Id, fx.event.Id.String()))
		require.Equal(t, http.StatusOK, rr.Code)

		body, _ = json.Marshal(ExtendCountdownRequest{AdditionalMinutes: 5})
		rr = httptest.NewRecorder()
		app.extendCountdown(rr, timerRequest(http.MethodPost, "/api/events/x/countdown/extend", body, fx.account.Id, fx.event.Id.String()))

		assert.Equal(t, http.StatusOK, rr.Code)

		var st types.CountdownStatus
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&st))
		assert.Equal(t, 900, st.TotalDuration)
	})

	t.Run("stop", func(t *testing.T) {
		app, db := newTestApp(t)
		fx := newTimerFixture(t, db, true)

		body, _ := json.Marshal(StartCountdownRequest{DurationMinutes: 10})
		rr := httptest.NewRecorder()
		app.startCountdown(rr, timerRequest(http.MethodPost, "/api/events/x/countdown", body, fx.account.Id, fx.event.Id.String()))
		require.Equal(t, http.StatusOK, rr.Code)

		rr = httptest.NewRecorder()
		app.stopCountdown(rr, timerRequest(http.MethodDelete, "/api/events/x/countdown", nil, fx.account.Id, fx.event.Id.String()))
		assert.Equal(t, http.StatusNoContent, rr.Code)

		rr = httptest.NewRecorder()
		app.getCountdown(rr, timerRequest(http.MethodGet, "/api/events/x/countdown", nil, fx.account.Id, fx.event.Id.String()))
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}
