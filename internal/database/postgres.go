package database

import (
	"database/sql"

	"github.com/google/uuid"
)

type PgEventStore struct {
	conn *sql.DB
}

func NewPgEventStore(dsn string) (*PgEventStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &PgEventStore{conn: db}, nil
}

func (db *PgEventStore) Ping() error {
	return db.conn.Ping()
}

func (db *PgEventStore) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

func (db *PgEventStore) GetAccountById(id uuid.UUID) (Account, error) {
	var a Account
	err := db.conn.QueryRow(`SELECT id, email, display_name, password_hash, is_organizer, created_at, updated_at
		FROM accounts WHERE id = $1`, id).
		Scan(&a.Id, &a.Email, &a.DisplayName, &a.PasswordHash, &a.IsOrganizer, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (db *PgEventStore) GetAccountByEmail(email string) (Account, error) {
	var a Account
	err := db.conn.QueryRow(`SELECT id, email, display_name, password_hash, is_organizer, created_at, updated_at
		FROM accounts WHERE email = $1`, email).
		Scan(&a.Id, &a.Email, &a.DisplayName, &a.PasswordHash, &a.IsOrganizer, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (db *PgEventStore) GetEventById(id uuid.UUID) (Event, error) {
	var e Event
	err := db.conn.QueryRow(`SELECT id, name, status, organizer_id, current_round_number,
		round_duration_minutes, break_duration_minutes, created_at, updated_at
		FROM events WHERE id = $1`, id).
		Scan(&e.Id, &e.Name, &e.Status, &e.OrganizerId, &e.CurrentRoundNumber,
			&e.RoundDurationMinutes, &e.BreakDurationMinutes, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

func (db *PgEventStore) GetRoundById(id uuid.UUID) (Round, error) {
	var r Round
	err := db.conn.QueryRow(`SELECT id, event_id, number, name, status, duration_minutes,
		break_minutes, created_at, updated_at
		FROM rounds WHERE id = $1`, id).
		Scan(&r.Id, &r.EventId, &r.Number, &r.Name, &r.Status, &r.DurationMinutes,
			&r.BreakMinutes, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

func (db *PgEventStore) AttendeeExists(userId, eventId uuid.UUID) bool {
	var exists bool
	err := db.conn.QueryRow(`SELECT EXISTS (
		SELECT 1 FROM attendees WHERE user_id = $1 AND event_id = $2)`, userId, eventId).
		Scan(&exists)
	if err != nil {
		return false
	}
	return exists
}
