package api

import (
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mkaplan/matchnight/internal/database"
	"github.com/mkaplan/matchnight/internal/realtime"
	"github.com/mkaplan/matchnight/internal/types"
)

const closeWriteWait = 10 * time.Second

// Websocket handshakes are accepted before credentials are checked, so
// failures surface to the browser as close codes instead of opaque
// HTTP errors: policy violation for a bad token, unsupported data for
// a caller who is authenticated but not allowed in the room.
const (
	closeAuthFailed   = websocket.ClosePolicyViolation
	closeNotPermitted = websocket.CloseUnsupportedData
	closeInternal     = websocket.CloseInternalServerErr
)

func (s *MatchnightApp) upgradeWs(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				// if no origin header, allow the request
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return nil, err
	}
	return conn, nil
}

func (s *MatchnightApp) closeWs(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteWait)); err != nil {
		s.log.Println("write close message:", err)
	}
	conn.Close()
}

// authenticateWs resolves the account behind the request's token. It
// runs after the upgrade, so the caller reports failure on the socket.
func (s *MatchnightApp) authenticateWs(r *http.Request) (database.Account, bool) {
	tokenString, ok := requestToken(r)
	if !ok {
		return database.Account{}, false
	}

	userId, err := s.extractUserIdFromToken(tokenString)
	if err != nil {
		s.log.Printf("ws auth: %v", err)
		return database.Account{}, false
	}

	account, err := s.db.GetAccountById(userId)
	if err != nil {
		s.log.Printf("ws auth: load account: %v", err)
		return database.Account{}, false
	}

	return account, true
}

func (s *MatchnightApp) serveEventWs(w http.ResponseWriter, r *http.Request) {
	eventId, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}

	conn, err := s.upgradeWs(w, r)
	if err != nil {
		return
	}

	account, ok := s.authenticateWs(r)
	if !ok {
		s.closeWs(conn, closeAuthFailed, "authentication failed")
		return
	}

	event, err := s.db.GetEventById(eventId)
	if err != nil {
		s.closeWs(conn, closeNotPermitted, "unknown event")
		return
	}

	if account.IsOrganizer {
		if event.OrganizerId != account.Id {
			s.closeWs(conn, closeNotPermitted, "not your event")
			return
		}
	} else if !s.db.AttendeeExists(account.Id, eventId) {
		s.closeWs(conn, closeNotPermitted, "not registered for event")
		return
	}

	client := realtime.NewClient(account.ToUser(), conn, s.registry, s.gateway, s.log, realtime.RoomEvent, eventId)
	id := s.registry.Register(client)
	go client.Write()
	go client.Read()

	var cd *types.CountdownStatus
	if st, ok := s.countdowns.Status(eventId); ok {
		cd = &st
	}
	s.registry.Send(id, realtime.NewConnected(event.Name, eventId, account.IsOrganizer, cd))
}

func (s *MatchnightApp) serveRoundTimerWs(w http.ResponseWriter, r *http.Request) {
	roundId, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}

	conn, err := s.upgradeWs(w, r)
	if err != nil {
		return
	}

	account, ok := s.authenticateWs(r)
	if !ok {
		s.closeWs(conn, closeAuthFailed, "authentication failed")
		return
	}

	round, err := s.db.GetRoundById(roundId)
	if err != nil {
		s.closeWs(conn, closeNotPermitted, "unknown round")
		return
	}

	if account.IsOrganizer {
		event, err := s.db.GetEventById(round.EventId)
		if err != nil {
			s.closeWs(conn, closeInternal, "internal error")
			return
		}
		if event.OrganizerId != account.Id {
			s.closeWs(conn, closeNotPermitted, "not your event")
			return
		}
	} else if !s.db.AttendeeExists(account.Id, round.EventId) {
		s.closeWs(conn, closeNotPermitted, "not registered for event")
		return
	}

	client := realtime.NewClient(account.ToUser(), conn, s.registry, s.gateway, s.log, realtime.RoomRoundTimer, roundId)
	id := s.registry.Register(client)
	go client.Write()
	go client.Read()

	var ts *types.TimerStatus
	if st, ok := s.rounds.Status(roundId); ok {
		ts = &st
	}
	s.registry.Send(id, realtime.NewTimerConnected(round.ToRound(), ts))
}

func (s *MatchnightApp) serveAdminWs(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgradeWs(w, r)
	if err != nil {
		return
	}

	account, ok := s.authenticateWs(r)
	if !ok {
		s.closeWs(conn, closeAuthFailed, "authentication failed")
		return
	}

	if !account.IsOrganizer {
		s.closeWs(conn, closeNotPermitted, "organizer access required")
		return
	}

	client := realtime.NewClient(account.ToUser(), conn, s.registry, s.gateway, s.log, realtime.RoomAdmin, uuid.Nil)
	id := s.registry.Register(client)
	go client.Write()
	go client.Read()

	s.registry.Send(id, realtime.NewAdminConnected(s.registry.Stats()))
}
