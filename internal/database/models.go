package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/mkaplan/matchnight/internal/types"
)

type Account struct {
	Id           uuid.UUID
	Email        string
	DisplayName  string
	PasswordHash string
	IsOrganizer  bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Event struct {
	Id                   uuid.UUID
	Name                 string
	Status               string
	OrganizerId          uuid.UUID
	CurrentRoundNumber   int
	RoundDurationMinutes int
	BreakDurationMinutes int
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

type Round struct {
	Id              uuid.UUID
	EventId         uuid.UUID
	Number          int
	Name            string
	Status          string
	DurationMinutes int
	BreakMinutes    int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (a Account) ToUser() types.User {
	return types.User{
		Id:          a.Id,
		Email:       a.Email,
		DisplayName: a.DisplayName,
		IsOrganizer: a.IsOrganizer,
		CreatedAt:   a.CreatedAt,
	}
}

func (e Event) ToEvent() types.Event {
	return types.Event{
		Id:                   e.Id,
		Name:                 e.Name,
		Status:               types.EventStatus(e.Status),
		OrganizerId:          e.OrganizerId,
		CurrentRoundNumber:   e.CurrentRoundNumber,
		RoundDurationMinutes: e.RoundDurationMinutes,
		BreakDurationMinutes: e.BreakDurationMinutes,
		CreatedAt:            e.CreatedAt,
		UpdatedAt:            e.UpdatedAt,
	}
}

func (r Round) ToRound() types.Round {
	return types.Round{
		Id:              r.Id,
		EventId:         r.EventId,
		Number:          r.Number,
		Name:            r.Name,
		Status:          types.RoundStatus(r.Status),
		DurationMinutes: r.DurationMinutes,
		BreakMinutes:    r.BreakMinutes,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}
