package database

import "github.com/google/uuid"

// EventStore is the persistence collaborator consumed by the realtime
// layer: enough account, event and round data to authenticate a login
// and authorize room access. Connection and timer state never touch it.
type EventStore interface {
	Ping() error
	GetAccountById(id uuid.UUID) (Account, error)
	GetAccountByEmail(email string) (Account, error)
	GetEventById(id uuid.UUID) (Event, error)
	GetRoundById(id uuid.UUID) (Round, error)
	AttendeeExists(userId, eventId uuid.UUID) bool
	Close() error
}
