package types

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	Id           uuid.UUID `json:"id"`
	Email        string    `json:"email,omitempty"`
	DisplayName  string    `json:"display_name,omitempty"`
	IsOrganizer  bool      `json:"is_organizer"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
}

type EventStatus string

const (
	EventDraft      EventStatus = "draft"
	EventPublished  EventStatus = "published"
	EventInProgress EventStatus = "in_progress"
	EventCompleted  EventStatus = "completed"
)

type Event struct {
	Id                   uuid.UUID   `json:"id"`
	Name                 string      `json:"name"`
	Status               EventStatus `json:"status"`
	OrganizerId          uuid.UUID   `json:"organizer_id"`
	CurrentRoundNumber   int         `json:"current_round_number"`
	RoundDurationMinutes int         `json:"round_duration_minutes"`
	BreakDurationMinutes int         `json:"break_duration_minutes"`
	CreatedAt            time.Time   `json:"created_at,omitempty"`
	UpdatedAt            time.Time   `json:"updated_at,omitempty"`
}

type RoundStatus string

const (
	RoundPending    RoundStatus = "pending"
	RoundInProgress RoundStatus = "in_progress"
	RoundCompleted  RoundStatus = "completed"
)

type Round struct {
	Id              uuid.UUID   `json:"id"`
	EventId         uuid.UUID   `json:"event_id"`
	Number          int         `json:"number"`
	Name            string      `json:"name"`
	Status          RoundStatus `json:"status"`
	DurationMinutes int         `json:"duration_minutes"`
	BreakMinutes    int         `json:"break_minutes"`
	CreatedAt       time.Time   `json:"created_at,omitempty"`
	UpdatedAt       time.Time   `json:"updated_at,omitempty"`
}

// TimerStatus is the wall-clock snapshot of a running round timer.
// Remaining time is always recomputed from the start timestamp, never
// decremented, so a delayed reader still sees accurate values.
type TimerStatus struct {
	RoundId         uuid.UUID `json:"round_id"`
	Phase           string    `json:"phase"`
	TimeRemaining   int       `json:"time_remaining"`
	TotalDuration   int       `json:"total_duration"`
	ElapsedTime     int       `json:"elapsed_time"`
	PercentComplete float64   `json:"percentage_complete"`
	StartedAt       time.Time `json:"started_at"`
}

// CountdownStatus is the wall-clock snapshot of an event countdown.
type CountdownStatus struct {
	EventId         uuid.UUID `json:"event_id"`
	Active          bool      `json:"active"`
	TimeRemaining   int       `json:"time_remaining"`
	TotalDuration   int       `json:"total_duration"`
	PercentComplete float64   `json:"percentage_complete"`
	Message         string    `json:"message"`
	TargetTime      time.Time `json:"target_time"`
	StartedAt       time.Time `json:"started_at"`
}

// ConnectionStats summarizes the live connection registry for the admin
// dashboard and the health endpoint.
type ConnectionStats struct {
	TotalConnections      int            `json:"total_connections"`
	UniqueUsers           int            `json:"unique_users"`
	EventRooms            map[string]int `json:"event_rooms"`
	RoundTimerRooms       map[string]int `json:"round_timer_rooms"`
	OrganizerConnections  int            `json:"organizer_connections"`
}
