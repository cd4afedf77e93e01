package realtime

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mkaplan/matchnight/internal/stats"
	"github.com/mkaplan/matchnight/internal/types"
	"github.com/teris-io/shortid"
)

// Registry is the single source of truth for live connections. It
// tracks them by connection id, by owning user and by room membership,
// and fans out broadcasts. It knows nothing about timers.
//
// Every broadcast snapshots the target membership under the lock and
// delivers outside it, so a concurrent disconnect during delivery is
// just an ordinary send failure.
type Registry struct {
	log   *log.Logger
	stats stats.StatsProvider

	mu         sync.RWMutex
	conns      map[string]*Client
	users      map[uuid.UUID]map[string]struct{}
	eventRooms map[uuid.UUID]map[string]struct{}
	roundRooms map[uuid.UUID]map[string]struct{}
}

func NewRegistry(logger *log.Logger, sp stats.StatsProvider) *Registry {
	return &Registry{
		log:        logger,
		stats:      sp,
		conns:      make(map[string]*Client),
		users:      make(map[uuid.UUID]map[string]struct{}),
		eventRooms: make(map[uuid.UUID]map[string]struct{}),
		roundRooms: make(map[uuid.UUID]map[string]struct{}),
	}
}

// Register assigns the connection a fresh id and inserts it into the
// user index and its room. The channel is already open at this point,
// so registration is pure bookkeeping with no failure path.
func (r *Registry) Register(c *Client) string {
	id := shortid.MustGenerate()

	r.mu.Lock()
	c.id = id
	r.conns[id] = c

	if r.users[c.user.Id] == nil {
		r.users[c.user.Id] = make(map[string]struct{})
	}
	r.users[c.user.Id][id] = struct{}{}

	key := c.RoomKey()
	switch c.room {
	case RoomEvent:
		if key != uuid.Nil {
			r.addToRoom(r.eventRooms, key, id)
		}
	case RoomRoundTimer:
		if key != uuid.Nil {
			r.addToRoom(r.roundRooms, key, id)
			c.setRoundSubscription(key)
		}
	}
	r.mu.Unlock()

	r.stats.Incr(stats.ActiveConnections)
	r.log.Printf("registered connection %q for user %q (%s)", id, c.user.Email, c.room)
	return id
}

// Unregister removes the connection from every index and stops it.
// Idempotent, and safe to call concurrently with an in-flight send to
// the same connection.
func (r *Registry) Unregister(connId string) {
	r.mu.Lock()
	c, ok := r.conns[connId]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.conns, connId)

	if userConns, ok := r.users[c.user.Id]; ok {
		delete(userConns, connId)
		if len(userConns) == 0 {
			delete(r.users, c.user.Id)
		}
	}

	if c.room == RoomEvent {
		r.removeFromRoom(r.eventRooms, c.RoomKey(), connId)
	}
	if sub := c.RoundSubscription(); sub != uuid.Nil {
		r.removeFromRoom(r.roundRooms, sub, connId)
	}
	r.mu.Unlock()

	c.stopClient()
	r.stats.Decr(stats.ActiveConnections)
	r.log.Printf("unregistered connection %q", connId)
}

// SubscribeRound moves the connection into the round-timer room for
// roundId. A connection belongs to at most one round-timer room, so any
// previous subscription is dropped first.
func (r *Registry) SubscribeRound(connId string, roundId uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connId]
	if !ok {
		return false
	}

	if prev := c.RoundSubscription(); prev != uuid.Nil {
		r.removeFromRoom(r.roundRooms, prev, connId)
	}
	r.addToRoom(r.roundRooms, roundId, connId)
	c.setRoundSubscription(roundId)
	return true
}

// Send attempts a single delivery. A connection that cannot accept the
// message is treated as dead and reaped; this is the path by which
// broken connections are discovered.
func (r *Registry) Send(connId string, msg Message) bool {
	r.mu.RLock()
	c, ok := r.conns[connId]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	if !c.queueMessage(msg) {
		r.Unregister(connId)
		return false
	}

	r.stats.Incr(stats.MessagesSent)
	return true
}

// SendToUser fans out to every connection the user currently holds.
// Partial failures do not abort the fan-out.
func (r *Registry) SendToUser(userId uuid.UUID, msg Message) int {
	r.mu.RLock()
	ids := make([]string, 0, len(r.users[userId]))
	for id := range r.users[userId] {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	var delivered int
	for _, id := range ids {
		if r.Send(id, msg) {
			delivered++
		}
	}
	return delivered
}

// BroadcastToRoom delivers to every member of the (class, key) room and
// returns the number of successful deliveries. Delivery order across
// members is unspecified.
func (r *Registry) BroadcastToRoom(class RoomClass, key uuid.UUID, msg Message) int {
	r.mu.RLock()
	var members map[string]struct{}
	switch class {
	case RoomEvent:
		members = r.eventRooms[key]
	case RoomRoundTimer:
		members = r.roundRooms[key]
	}
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	var delivered int
	for _, id := range ids {
		if r.Send(id, msg) {
			delivered++
		}
	}
	return delivered
}

func (r *Registry) BroadcastToAll(msg Message) int {
	r.mu.RLock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	var delivered int
	for _, id := range ids {
		if r.Send(id, msg) {
			delivered++
		}
	}
	return delivered
}

// BroadcastToOrganizers delivers to organizer connections only. With a
// non-nil eventId the fan-out is further restricted to organizers whose
// room key matches that event.
func (r *Registry) BroadcastToOrganizers(eventId uuid.UUID, msg Message) int {
	r.mu.RLock()
	ids := make([]string, 0, len(r.conns))
	for id, c := range r.conns {
		if !c.IsOrganizer() {
			continue
		}
		if eventId != uuid.Nil && c.RoomKey() != eventId {
			continue
		}
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	var delivered int
	for _, id := range ids {
		if r.Send(id, msg) {
			delivered++
		}
	}
	return delivered
}

// Stats reports aggregate connection counts. Read-only.
func (r *Registry) Stats() types.ConnectionStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cs := types.ConnectionStats{
		TotalConnections: len(r.conns),
		UniqueUsers:      len(r.users),
		EventRooms:       make(map[string]int, len(r.eventRooms)),
		RoundTimerRooms:  make(map[string]int, len(r.roundRooms)),
	}
	for key, members := range r.eventRooms {
		cs.EventRooms[key.String()] = len(members)
	}
	for key, members := range r.roundRooms {
		cs.RoundTimerRooms[key.String()] = len(members)
	}
	for _, c := range r.conns {
		if c.IsOrganizer() {
			cs.OrganizerConnections++
		}
	}
	return cs
}

// SweepStale reaps connections with no inbound activity for longer than
// maxIdle. Send-failure reaping remains the correctness path; the sweep
// is a defensive backstop.
func (r *Registry) SweepStale(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	r.mu.RLock()
	var stale []string
	for id, c := range r.conns {
		if c.lastActivity().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range stale {
		r.log.Printf("sweeping stale connection %q", id)
		r.Unregister(id)
	}
	return len(stale)
}

// addToRoom and removeFromRoom maintain the invariant that no room key
// maps to an empty member set. Callers hold r.mu.
func (r *Registry) addToRoom(rooms map[uuid.UUID]map[string]struct{}, key uuid.UUID, connId string) {
	if rooms[key] == nil {
		rooms[key] = make(map[string]struct{})
	}
	rooms[key][connId] = struct{}{}
}

func (r *Registry) removeFromRoom(rooms map[uuid.UUID]map[string]struct{}, key uuid.UUID, connId string) {
	if members, ok := rooms[key]; ok {
		delete(members, connId)
		if len(members) == 0 {
			delete(rooms, key)
		}
	}
}
