package gateway

import (
	"database/sql"
	"errors"
	"log"

	"github.com/google/uuid"
	"github.com/mkaplan/matchnight/internal/database"
	"github.com/mkaplan/matchnight/internal/realtime"
	"github.com/mkaplan/matchnight/internal/timer"
	"github.com/mkaplan/matchnight/internal/types"
)

// Gateway dispatches inbound client frames against the registry, the
// timer engines and the event store. It owns no state of its own, so a
// single instance serves every connection.
type Gateway struct {
	log        *log.Logger
	registry   *realtime.Registry
	rounds     *timer.RoundEngine
	countdowns *timer.CountdownEngine
	store      database.EventStore
}

func New(logger *log.Logger, rg *realtime.Registry, re *timer.RoundEngine, ce *timer.CountdownEngine, store database.EventStore) *Gateway {
	return &Gateway{
		log:        logger,
		registry:   rg,
		rounds:     re,
		countdowns: ce,
		store:      store,
	}
}

// HandleMessage processes one inbound frame. A bad frame gets a single
// error reply; the connection itself stays open and usable.
func (g *Gateway) HandleMessage(c *realtime.Client, msg *realtime.ClientMessage) {
	switch msg.Type {
	case "ping":
		g.reply(c, realtime.NewPong(msg.Timestamp))
	case "get_event_status":
		g.handleEventStatus(c, msg)
	case "get_countdown_status":
		g.handleCountdownStatus(c, msg)
	case "get_timer_status":
		g.handleTimerStatus(c, msg)
	case "get_round_info":
		g.handleRoundInfo(c, msg)
	case "subscribe_round":
		g.handleSubscribeRound(c, msg)
	case "request_timer_sync":
		g.handleTimerSync(c)
	case "get_connection_stats":
		g.handleConnectionStats(c)
	case "get_active_timers":
		g.handleActiveTimers(c)
	case "broadcast_announcement":
		g.handleAnnouncement(c, msg)
	default:
		g.reply(c, realtime.ErrUnknownType(msg.Type))
	}
}

func (g *Gateway) reply(c *realtime.Client, msg realtime.Message) {
	g.registry.Send(c.Id(), msg)
}

func (g *Gateway) handleEventStatus(c *realtime.Client, msg *realtime.ClientMessage) {
	eventId, ok := g.resolveEventId(c, msg)
	if !ok {
		g.reply(c, realtime.ErrNotFound("event"))
		return
	}

	event, err := g.store.GetEventById(eventId)
	if err != nil {
		g.replyLookupErr(c, "event", err)
		return
	}

	g.reply(c, realtime.NewEventStatus(event.ToEvent(), g.countdownStatus(eventId)))
}

func (g *Gateway) handleCountdownStatus(c *realtime.Client, msg *realtime.ClientMessage) {
	eventId, ok := g.resolveEventId(c, msg)
	if !ok {
		g.reply(c, realtime.ErrNotFound("event"))
		return
	}

	g.reply(c, realtime.NewCountdownStatus(g.countdownStatus(eventId)))
}

func (g *Gateway) handleTimerStatus(c *realtime.Client, msg *realtime.ClientMessage) {
	roundId, ok := g.resolveRoundId(c, msg)
	if !ok {
		g.reply(c, realtime.ErrNotFound("round"))
		return
	}

	g.reply(c, realtime.NewTimerStatus(g.timerStatus(roundId)))
}

func (g *Gateway) handleRoundInfo(c *realtime.Client, msg *realtime.ClientMessage) {
	roundId, ok := g.resolveRoundId(c, msg)
	if !ok {
		g.reply(c, realtime.ErrNotFound("round"))
		return
	}

	round, err := g.store.GetRoundById(roundId)
	if err != nil {
		g.replyLookupErr(c, "round", err)
		return
	}

	g.reply(c, realtime.NewRoundInfo(round.ToRound()))
}

// handleSubscribeRound moves the connection into another round's timer
// room. Attendees must be registered for the round's event; organizers
// must own it.
func (g *Gateway) handleSubscribeRound(c *realtime.Client, msg *realtime.ClientMessage) {
	roundId, err := uuid.Parse(msg.RoundId)
	if err != nil {
		g.reply(c, realtime.ErrInvalidMessage())
		return
	}

	round, err := g.store.GetRoundById(roundId)
	if err != nil {
		g.replyLookupErr(c, "round", err)
		return
	}

	if !g.authorizedForEvent(c, round.EventId) {
		g.reply(c, realtime.ErrUnauthorized())
		return
	}

	if !g.registry.SubscribeRound(c.Id(), roundId) {
		return
	}

	g.log.Printf("connection %q subscribed to round %s", c.Id(), roundId)
	g.reply(c, realtime.NewSubscribed(roundId, g.timerStatus(roundId)))
}

func (g *Gateway) handleTimerSync(c *realtime.Client) {
	if !c.IsOrganizer() {
		g.reply(c, realtime.ErrUnauthorized())
		return
	}

	g.reply(c, realtime.NewTimerSync(g.rounds.ActiveTimers()))
}

func (g *Gateway) handleConnectionStats(c *realtime.Client) {
	if !c.IsOrganizer() {
		g.reply(c, realtime.ErrUnauthorized())
		return
	}

	g.reply(c, realtime.NewConnectionStats(g.registry.Stats()))
}

func (g *Gateway) handleActiveTimers(c *realtime.Client) {
	if !c.IsOrganizer() {
		g.reply(c, realtime.ErrUnauthorized())
		return
	}

	g.reply(c, realtime.NewActiveTimers(g.rounds.ActiveTimers(), g.countdowns.ActiveCountdowns()))
}

// handleAnnouncement fans an organizer's announcement out to an event
// room, or to every organizer connection when no event is named.
func (g *Gateway) handleAnnouncement(c *realtime.Client, msg *realtime.ClientMessage) {
	if !c.IsOrganizer() {
		g.reply(c, realtime.ErrUnauthorized())
		return
	}
	if msg.Announcement == "" {
		g.reply(c, realtime.ErrInvalidMessage())
		return
	}

	ann := realtime.NewAnnouncement(msg.Announcement)

	var delivered int
	if msg.EventId != "" {
		eventId, err := uuid.Parse(msg.EventId)
		if err != nil {
			g.reply(c, realtime.ErrInvalidMessage())
			return
		}
		delivered = g.registry.BroadcastToRoom(realtime.RoomEvent, eventId, ann)
	} else {
		delivered = g.registry.BroadcastToOrganizers(uuid.Nil, ann)
	}

	g.log.Printf("announcement from %q delivered to %d connections", c.User().Email, delivered)
}

// resolveEventId prefers an explicit event id from the frame, then
// falls back to the connection's own event room.
func (g *Gateway) resolveEventId(c *realtime.Client, msg *realtime.ClientMessage) (uuid.UUID, bool) {
	if msg.EventId != "" {
		id, err := uuid.Parse(msg.EventId)
		return id, err == nil
	}
	if c.Room() == realtime.RoomEvent && c.RoomKey() != uuid.Nil {
		return c.RoomKey(), true
	}
	return uuid.Nil, false
}

// resolveRoundId prefers an explicit round id, then the connection's
// current round-timer subscription.
func (g *Gateway) resolveRoundId(c *realtime.Client, msg *realtime.ClientMessage) (uuid.UUID, bool) {
	if msg.RoundId != "" {
		id, err := uuid.Parse(msg.RoundId)
		return id, err == nil
	}
	if sub := c.RoundSubscription(); sub != uuid.Nil {
		return sub, true
	}
	return uuid.Nil, false
}

func (g *Gateway) authorizedForEvent(c *realtime.Client, eventId uuid.UUID) bool {
	if c.IsOrganizer() {
		event, err := g.store.GetEventById(eventId)
		if err != nil {
			return false
		}
		return event.OrganizerId == c.User().Id
	}
	return g.store.AttendeeExists(c.User().Id, eventId)
}

func (g *Gateway) countdownStatus(eventId uuid.UUID) *types.CountdownStatus {
	if cd, ok := g.countdowns.Status(eventId); ok {
		return &cd
	}
	return nil
}

func (g *Gateway) timerStatus(roundId uuid.UUID) *types.TimerStatus {
	if ts, ok := g.rounds.Status(roundId); ok {
		return &ts
	}
	return nil
}

func (g *Gateway) replyLookupErr(c *realtime.Client, what string, err error) {
	if errors.Is(err, sql.ErrNoRows) {
		g.reply(c, realtime.ErrNotFound(what))
		return
	}
	g.log.Printf("%s lookup failed: %v", what, err)
	g.reply(c, realtime.ErrInternal())
}
