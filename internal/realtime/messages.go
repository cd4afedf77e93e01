package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mkaplan/matchnight/internal/types"
)

// RoomClass partitions connections into broadcast scopes. Event and
// round-timer rooms are keyed by their entity id; the admin dashboard
// and general classes are unkeyed.
type RoomClass string

const (
	RoomEvent      RoomClass = "event"
	RoomRoundTimer RoomClass = "round_timer"
	RoomAdmin      RoomClass = "admin_dashboard"
	RoomGeneral    RoomClass = "general"
)

type Kind string

const (
	KindConnected          Kind = "connected"
	KindTimerConnected     Kind = "timer_connected"
	KindAdminConnected     Kind = "admin_connected"
	KindPong               Kind = "pong"
	KindEventStatus        Kind = "event_status"
	KindCountdownStatus    Kind = "countdown_status"
	KindTimerStatus        Kind = "timer_status"
	KindTimerSync          Kind = "timer_sync"
	KindRoundInfo          Kind = "round_info"
	KindSubscribed         Kind = "subscribed"
	KindTimerUpdate        Kind = "timer_update"
	KindTimerWarning       Kind = "timer_warning"
	KindRoundEnded         Kind = "round_ended"
	KindBreakStarted       Kind = "break_started"
	KindBreakEnded         Kind = "break_ended"
	KindTimerError         Kind = "timer_error"
	KindCountdownUpdate    Kind = "countdown_update"
	KindCountdownWarning   Kind = "countdown_warning"
	KindCountdownCompleted Kind = "countdown_completed"
	KindCountdownExtended  Kind = "countdown_extended"
	KindAnnouncement       Kind = "announcement"
	KindConnectionStats    Kind = "connection_stats"
	KindActiveTimers       Kind = "active_timers"
	KindError              Kind = "error"
)

// Message is any outbound frame. Variants are plain structs carrying a
// `type` discriminator; they are serialized to JSON only at the socket
// boundary in the client's write pump.
type Message interface {
	MessageKind() Kind
}

// ClientMessage is the inbound frame shape. Only `type` is required;
// the remaining fields are populated per message kind.
type ClientMessage struct {
	Type         string          `json:"type"`
	Timestamp    json.RawMessage `json:"timestamp,omitempty"`
	EventId      string          `json:"event_id,omitempty"`
	RoundId      string          `json:"round_id,omitempty"`
	Announcement string          `json:"announcement,omitempty"`
}

type Connected struct {
	Type            Kind                   `json:"type"`
	Message         string                 `json:"message"`
	EventId         uuid.UUID              `json:"event_id"`
	UserRole        string                 `json:"user_role"`
	CountdownStatus *types.CountdownStatus `json:"countdown_status"`
}

func (m *Connected) MessageKind() Kind { return m.Type }

func NewConnected(eventName string, eventId uuid.UUID, isOrganizer bool, cd *types.CountdownStatus) *Connected {
	role := "attendee"
	if isOrganizer {
		role = "organizer"
	}
	return &Connected{
		Type:            KindConnected,
		Message:         fmt.Sprintf("Connected to event: %s", eventName),
		EventId:         eventId,
		UserRole:        role,
		CountdownStatus: cd,
	}
}

type TimerConnected struct {
	Type        Kind               `json:"type"`
	RoundId     uuid.UUID          `json:"round_id"`
	RoundNumber int                `json:"round_number"`
	RoundName   string             `json:"round_name"`
	TimerStatus *types.TimerStatus `json:"timer_status"`
}

func (m *TimerConnected) MessageKind() Kind { return m.Type }

func NewTimerConnected(round types.Round, ts *types.TimerStatus) *TimerConnected {
	return &TimerConnected{
		Type:        KindTimerConnected,
		RoundId:     round.Id,
		RoundNumber: round.Number,
		RoundName:   round.Name,
		TimerStatus: ts,
	}
}

type AdminConnected struct {
	Type    Kind                  `json:"type"`
	Message string                `json:"message"`
	Stats   types.ConnectionStats `json:"connection_stats"`
}

func (m *AdminConnected) MessageKind() Kind { return m.Type }

func NewAdminConnected(stats types.ConnectionStats) *AdminConnected {
	return &AdminConnected{
		Type:    KindAdminConnected,
		Message: "Connected to admin dashboard",
		Stats:   stats,
	}
}

type Pong struct {
	Type      Kind            `json:"type"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
}

func (m *Pong) MessageKind() Kind { return m.Type }

// NewPong echoes the client-supplied timestamp untouched.
func NewPong(timestamp json.RawMessage) *Pong {
	return &Pong{Type: KindPong, Timestamp: timestamp}
}

type EventStatus struct {
	Type            Kind                   `json:"type"`
	EventId         uuid.UUID              `json:"event_id"`
	EventStatus     types.EventStatus      `json:"event_status"`
	CurrentRound    int                    `json:"current_round"`
	CountdownStatus *types.CountdownStatus `json:"countdown_status"`
}

func (m *EventStatus) MessageKind() Kind { return m.Type }

func NewEventStatus(event types.Event, cd *types.CountdownStatus) *EventStatus {
	return &EventStatus{
		Type:            KindEventStatus,
		EventId:         event.Id,
		EventStatus:     event.Status,
		CurrentRound:    event.CurrentRoundNumber,
		CountdownStatus: cd,
	}
}

type CountdownStatusMessage struct {
	Type            Kind                   `json:"type"`
	CountdownStatus *types.CountdownStatus `json:"countdown_status"`
}

func (m *CountdownStatusMessage) MessageKind() Kind { return m.Type }

func NewCountdownStatus(cd *types.CountdownStatus) *CountdownStatusMessage {
	return &CountdownStatusMessage{Type: KindCountdownStatus, CountdownStatus: cd}
}

type TimerStatusMessage struct {
	Type        Kind               `json:"type"`
	TimerStatus *types.TimerStatus `json:"timer_status"`
}

func (m *TimerStatusMessage) MessageKind() Kind { return m.Type }

func NewTimerStatus(ts *types.TimerStatus) *TimerStatusMessage {
	return &TimerStatusMessage{Type: KindTimerStatus, TimerStatus: ts}
}

type TimerSync struct {
	Type         Kind                `json:"type"`
	ActiveTimers []types.TimerStatus `json:"active_timers"`
}

func (m *TimerSync) MessageKind() Kind { return m.Type }

func NewTimerSync(timers []types.TimerStatus) *TimerSync {
	return &TimerSync{Type: KindTimerSync, ActiveTimers: timers}
}

type RoundInfo struct {
	Type  Kind        `json:"type"`
	Round types.Round `json:"round"`
}

func (m *RoundInfo) MessageKind() Kind { return m.Type }

func NewRoundInfo(round types.Round) *RoundInfo {
	return &RoundInfo{Type: KindRoundInfo, Round: round}
}

type Subscribed struct {
	Type        Kind               `json:"type"`
	RoundId     uuid.UUID          `json:"round_id"`
	TimerStatus *types.TimerStatus `json:"timer_status"`
}

func (m *Subscribed) MessageKind() Kind { return m.Type }

func NewSubscribed(roundId uuid.UUID, ts *types.TimerStatus) *Subscribed {
	return &Subscribed{Type: KindSubscribed, RoundId: roundId, TimerStatus: ts}
}

type TimerUpdate struct {
	Type            Kind      `json:"type"`
	RoundId         uuid.UUID `json:"round_id"`
	Phase           string    `json:"phase"`
	TimeRemaining   int       `json:"time_remaining"`
	TotalDuration   int       `json:"total_duration"`
	PercentComplete float64   `json:"percentage_complete"`
}

func (m *TimerUpdate) MessageKind() Kind { return m.Type }

type TimerWarning struct {
	Type        Kind      `json:"type"`
	RoundId     uuid.UUID `json:"round_id"`
	Message     string    `json:"message"`
	WarningType string    `json:"warning_type"`
}

func (m *TimerWarning) MessageKind() Kind { return m.Type }

type RoundEnded struct {
	Type    Kind      `json:"type"`
	RoundId uuid.UUID `json:"round_id"`
	Message string    `json:"message"`
}

func (m *RoundEnded) MessageKind() Kind { return m.Type }

type BreakStarted struct {
	Type          Kind      `json:"type"`
	RoundId       uuid.UUID `json:"round_id"`
	BreakDuration int       `json:"break_duration"`
	Message       string    `json:"message"`
}

func (m *BreakStarted) MessageKind() Kind { return m.Type }

type BreakEnded struct {
	Type    Kind      `json:"type"`
	RoundId uuid.UUID `json:"round_id"`
	Message string    `json:"message"`
}

func (m *BreakEnded) MessageKind() Kind { return m.Type }

type TimerError struct {
	Type    Kind      `json:"type"`
	RoundId uuid.UUID `json:"round_id"`
	Message string    `json:"message"`
}

func (m *TimerError) MessageKind() Kind { return m.Type }

type CountdownUpdate struct {
	Type            Kind      `json:"type"`
	EventId         uuid.UUID `json:"event_id"`
	TimeRemaining   int       `json:"time_remaining"`
	TotalDuration   int       `json:"total_duration"`
	PercentComplete float64   `json:"percentage_complete"`
	Message         string    `json:"message"`
	TargetTime      time.Time `json:"target_time"`
}

func (m *CountdownUpdate) MessageKind() Kind { return m.Type }

type CountdownWarning struct {
	Type          Kind      `json:"type"`
	EventId       uuid.UUID `json:"event_id"`
	Message       string    `json:"message"`
	WarningType   string    `json:"warning_type"`
	TimeRemaining int       `json:"time_remaining"`
}

func (m *CountdownWarning) MessageKind() Kind { return m.Type }

type CountdownCompleted struct {
	Type        Kind      `json:"type"`
	EventId     uuid.UUID `json:"event_id"`
	Message     string    `json:"message"`
	CompletedAt time.Time `json:"completed_at"`
}

func (m *CountdownCompleted) MessageKind() Kind { return m.Type }

type CountdownExtended struct {
	Type              Kind      `json:"type"`
	EventId           uuid.UUID `json:"event_id"`
	AdditionalMinutes int       `json:"additional_minutes"`
	NewTargetTime     time.Time `json:"new_target_time"`
	Message           string    `json:"message"`
}

func (m *CountdownExtended) MessageKind() Kind { return m.Type }

type Announcement struct {
	Type      Kind   `json:"type"`
	Message   string `json:"message"`
	FromAdmin bool   `json:"from_admin"`
}

func (m *Announcement) MessageKind() Kind { return m.Type }

func NewAnnouncement(text string) *Announcement {
	return &Announcement{Type: KindAnnouncement, Message: text, FromAdmin: true}
}

type ConnectionStatsMessage struct {
	Type  Kind                  `json:"type"`
	Stats types.ConnectionStats `json:"stats"`
}

func (m *ConnectionStatsMessage) MessageKind() Kind { return m.Type }

func NewConnectionStats(stats types.ConnectionStats) *ConnectionStatsMessage {
	return &ConnectionStatsMessage{Type: KindConnectionStats, Stats: stats}
}

type ActiveTimers struct {
	Type       Kind                    `json:"type"`
	Timers     []types.TimerStatus     `json:"timers"`
	Countdowns []types.CountdownStatus `json:"countdowns"`
}

func (m *ActiveTimers) MessageKind() Kind { return m.Type }

func NewActiveTimers(timers []types.TimerStatus, countdowns []types.CountdownStatus) *ActiveTimers {
	return &ActiveTimers{Type: KindActiveTimers, Timers: timers, Countdowns: countdowns}
}

type ErrorMessage struct {
	Type    Kind   `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (m *ErrorMessage) MessageKind() Kind { return m.Type }

func ErrInvalidMessage() *ErrorMessage {
	return &ErrorMessage{Type: KindError, Code: "invalid_message", Message: "invalid message format"}
}

func ErrUnknownType(t string) *ErrorMessage {
	return &ErrorMessage{Type: KindError, Code: "unknown_type", Message: fmt.Sprintf("unknown message type %q", t)}
}

func ErrUnauthorized() *ErrorMessage {
	return &ErrorMessage{Type: KindError, Code: "unauthorized", Message: "not authorized for this operation"}
}

func ErrNotFound(what string) *ErrorMessage {
	return &ErrorMessage{Type: KindError, Code: "not_found", Message: what + " not found"}
}

func ErrInternal() *ErrorMessage {
	return &ErrorMessage{Type: KindError, Code: "internal_error", Message: "internal server error"}
}
