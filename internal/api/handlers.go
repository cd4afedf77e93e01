package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/mkaplan/matchnight/internal/database"
	"github.com/mkaplan/matchnight/internal/timer"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type StartTimerRequest struct {
	DurationMinutes *int `json:"duration_minutes"`
	BreakMinutes    *int `json:"break_minutes"`
}

type StartCountdownRequest struct {
	DurationMinutes int    `json:"duration_minutes"`
	Message         string `json:"message"`
}

type ExtendCountdownRequest struct {
	AdditionalMinutes int `json:"additional_minutes"`
}

type HealthResponse struct {
	Status           string `json:"status"`
	Database         string `json:"database"`
	Connections      int    `json:"connections"`
	ActiveTimers     int    `json:"active_timers"`
	ActiveCountdowns int    `json:"active_countdowns"`
}

func (s *MatchnightApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *MatchnightApp) login(w http.ResponseWriter, r *http.Request) {
	var lr LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&lr); err != nil {
		errResp := NewBadRequestError(nil)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if lr.Email == "" || lr.Password == "" {
		errResp := NewBadRequestError(nil)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	account, err := s.db.GetAccountByEmail(lr.Email)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !verifyPassword(account.PasswordHash, lr.Password) {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	token, err := s.createJwtForSession(account.Id, defaultJwtExpiration)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	http.SetCookie(w, createJwtCookie(token, defaultJwtExpiration))

	s.writeJson(w, http.StatusOK, account.ToUser())
}

func (s *MatchnightApp) logout(w http.ResponseWriter, _ *http.Request) {
	// instruct browser to delete the cookie by overwriting it with an expired one
	http.SetCookie(w, createJwtCookie("", -time.Hour))
	w.WriteHeader(http.StatusNoContent)
}

func (s *MatchnightApp) session(w http.ResponseWriter, r *http.Request) {
	account, errResp := s.requestAccount(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, account.ToUser())
}

func (s *MatchnightApp) health(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{
		Status:           "ok",
		Database:         "ok",
		Connections:      s.registry.Stats().TotalConnections,
		ActiveTimers:     len(s.rounds.ActiveTimers()),
		ActiveCountdowns: len(s.countdowns.ActiveCountdowns()),
	}

	statusCode := http.StatusOK
	if err := s.db.Ping(); err != nil {
		s.log.Printf("health: database ping: %v", err)
		resp.Status = "degraded"
		resp.Database = "error"
		statusCode = http.StatusServiceUnavailable
	}

	s.writeJson(w, statusCode, resp)
}

func (s *MatchnightApp) startRoundTimer(w http.ResponseWriter, r *http.Request) {
	round, errResp := s.authorizeRound(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	duration, breakDuration := round.DurationMinutes, round.BreakMinutes
	if r.ContentLength != 0 {
		var req StartTimerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			errResp := NewBadRequestError(nil)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
		if req.DurationMinutes != nil {
			duration = *req.DurationMinutes
		}
		if req.BreakMinutes != nil {
			breakDuration = *req.BreakMinutes
		}
	}

	if err := s.rounds.Start(round.Id, duration, breakDuration); err != nil {
		errResp := NewBadRequestError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	st, _ := s.rounds.Status(round.Id)
	s.writeJson(w, http.StatusOK, st)
}

func (s *MatchnightApp) stopRoundTimer(w http.ResponseWriter, r *http.Request) {
	round, errResp := s.authorizeRound(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.rounds.Stop(round.Id)
	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *MatchnightApp) getRoundTimer(w http.ResponseWriter, r *http.Request) {
	roundId, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		errResp := NewBadRequestError(nil)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	st, ok := s.rounds.Status(roundId)
	if !ok {
		errResp := NewNotFoundError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, st)
}

func (s *MatchnightApp) startCountdown(w http.ResponseWriter, r *http.Request) {
	event, errResp := s.authorizeEvent(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req StartCountdownRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError(nil)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.countdowns.Start(event.Id, req.DurationMinutes, req.Message); err != nil {
		errResp := NewBadRequestError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	st, _ := s.countdowns.Status(event.Id)
	s.writeJson(w, http.StatusOK, st)
}

func (s *MatchnightApp) extendCountdown(w http.ResponseWriter, r *http.Request) {
	event, errResp := s.authorizeEvent(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req ExtendCountdownRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError(nil)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.countdowns.Extend(event.Id, req.AdditionalMinutes); err != nil {
		var errResp *ApiError
		if errors.Is(err, timer.ErrNoActiveCountdown) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewBadRequestError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	st, _ := s.countdowns.Status(event.Id)
	s.writeJson(w, http.StatusOK, st)
}

func (s *MatchnightApp) stopCountdown(w http.ResponseWriter, r *http.Request) {
	event, errResp := s.authorizeEvent(r)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.countdowns.Stop(event.Id)
	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *MatchnightApp) getCountdown(w http.ResponseWriter, r *http.Request) {
	eventId, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		errResp := NewBadRequestError(nil)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	st, ok := s.countdowns.Status(eventId)
	if !ok {
		errResp := NewNotFoundError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, st)
}

func (s *MatchnightApp) requestAccount(r *http.Request) (database.Account, *ApiError) {
	userId, ok := UserId(r.Context())
	if !ok {
		return database.Account{}, NewUnauthorizedError()
	}

	account, err := s.db.GetAccountById(userId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.Account{}, NewUnauthorizedError()
		}
		return database.Account{}, NewInternalServerError(err)
	}

	return account, nil
}

// authorizeEvent resolves the event named in the path and verifies the
// caller is its organizer.
func (s *MatchnightApp) authorizeEvent(r *http.Request) (database.Event, *ApiError) {
	eventId, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return database.Event{}, NewBadRequestError(nil)
	}

	account, errResp := s.requestAccount(r)
	if errResp != nil {
		return database.Event{}, errResp
	}

	event, err := s.db.GetEventById(eventId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.Event{}, NewNotFoundError()
		}
		return database.Event{}, NewInternalServerError(err)
	}

	if !account.IsOrganizer || event.OrganizerId != account.Id {
		return database.Event{}, NewForbiddenError()
	}

	return event, nil
}

// authorizeRound resolves the round named in the path and verifies the
// caller organizes its event.
func (s *MatchnightApp) authorizeRound(r *http.Request) (database.Round, *ApiError) {
	roundId, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return database.Round{}, NewBadRequestError(nil)
	}

	account, errResp := s.requestAccount(r)
	if errResp != nil {
		return database.Round{}, errResp
	}

	round, err := s.db.GetRoundById(roundId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.Round{}, NewNotFoundError()
		}
		return database.Round{}, NewInternalServerError(err)
	}

	event, err := s.db.GetEventById(round.EventId)
	if err != nil {
		return database.Round{}, NewInternalServerError(err)
	}

	if !account.IsOrganizer || event.OrganizerId != account.Id {
		return database.Round{}, NewForbiddenError()
	}

	return round, nil
}
