package timer

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mkaplan/matchnight/internal/realtime"
	"github.com/mkaplan/matchnight/internal/stats"
	"github.com/mkaplan/matchnight/internal/types"
)

var countdownWarningThresholds = []int{600, 300, 120, 60, 30, 10}

var countdownWarningNames = map[int]string{
	600: "ten_minutes",
	300: "five_minutes",
	120: "two_minutes",
	60:  "one_minute",
	30:  "thirty_seconds",
	10:  "final_countdown",
}

// CountdownEngine runs one pre-start countdown goroutine per event.
// Each countdown ticks every second, broadcasting countdown_update to
// the event room plus one-shot warnings as remaining time crosses each
// threshold. Extending pushes the target forward without replaying
// warnings that already fired.
type CountdownEngine struct {
	log   *log.Logger
	clock clockwork.Clock
	br    Broadcaster
	stats stats.StatsProvider

	mu         sync.Mutex
	countdowns map[uuid.UUID]*countdown
}

type countdown struct {
	eventId   uuid.UUID
	startedAt time.Time
	stop      chan struct{}

	// mu guards the fields Extend rewrites while the tick loop reads.
	mu           sync.Mutex
	target       time.Time
	totalSeconds int
	message      string
}

func NewCountdownEngine(logger *log.Logger, clock clockwork.Clock, br Broadcaster, sp stats.StatsProvider) *CountdownEngine {
	return &CountdownEngine{
		log:        logger,
		clock:      clock,
		br:         br,
		stats:      sp,
		countdowns: make(map[uuid.UUID]*countdown),
	}
}

// Start begins a countdown for the event, cancelling any existing one
// for the same event first.
func (e *CountdownEngine) Start(eventId uuid.UUID, durationMinutes int, message string) error {
	if durationMinutes < 1 || durationMinutes > 60 {
		return ErrInvalidCountdown
	}
	if message == "" {
		message = fmt.Sprintf("Event starts in %d minutes!", durationMinutes)
	}

	now := e.clock.Now()
	cd := &countdown{
		eventId:      eventId,
		startedAt:    now,
		stop:         make(chan struct{}),
		target:       now.Add(time.Duration(durationMinutes) * time.Minute),
		totalSeconds: durationMinutes * 60,
		message:      message,
	}

	e.mu.Lock()
	if old, ok := e.countdowns[eventId]; ok {
		close(old.stop)
	} else {
		e.stats.Incr(stats.ActiveCountdowns)
	}
	e.countdowns[eventId] = cd
	e.mu.Unlock()

	go e.run(cd)

	e.log.Printf("started countdown for event %s (%d minutes)", eventId, durationMinutes)
	return nil
}

// Stop cancels the event's countdown and removes its state. No-op if
// none exists.
func (e *CountdownEngine) Stop(eventId uuid.UUID) {
	e.mu.Lock()
	cd, ok := e.countdowns[eventId]
	if ok {
		delete(e.countdowns, eventId)
		close(cd.stop)
	}
	e.mu.Unlock()

	if ok {
		e.stats.Decr(stats.ActiveCountdowns)
		e.log.Printf("stopped countdown for event %s", eventId)
	}
}

// Shutdown stops every active countdown.
func (e *CountdownEngine) Shutdown() {
	e.mu.Lock()
	ids := make([]uuid.UUID, 0, len(e.countdowns))
	for id := range e.countdowns {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	for _, id := range ids {
		e.Stop(id)
	}
}

// Extend pushes the countdown's target time forward. Warnings that
// already fired stay fired; thresholds not yet crossed fire normally as
// remaining time falls toward them again.
func (e *CountdownEngine) Extend(eventId uuid.UUID, additionalMinutes int) error {
	if additionalMinutes < 1 {
		return ErrInvalidExtension
	}

	e.mu.Lock()
	cd, ok := e.countdowns[eventId]
	e.mu.Unlock()
	if !ok {
		return ErrNoActiveCountdown
	}

	newTarget := cd.extend(time.Duration(additionalMinutes) * time.Minute)

	e.br.BroadcastToRoom(realtime.RoomEvent, eventId, &realtime.CountdownExtended{
		Type:              realtime.KindCountdownExtended,
		EventId:           eventId,
		AdditionalMinutes: additionalMinutes,
		NewTargetTime:     newTarget,
		Message:           fmt.Sprintf("Countdown extended by %d minutes!", additionalMinutes),
	})

	e.log.Printf("extended countdown for event %s by %d minutes", eventId, additionalMinutes)
	return nil
}

// Status recomputes the countdown's state from the wall clock at call
// time.
func (e *CountdownEngine) Status(eventId uuid.UUID) (types.CountdownStatus, bool) {
	e.mu.Lock()
	cd, ok := e.countdowns[eventId]
	e.mu.Unlock()
	if !ok {
		return types.CountdownStatus{}, false
	}

	return cd.snapshot(e.clock.Now()), true
}

// ActiveCountdowns returns a snapshot of every running countdown,
// oldest first.
func (e *CountdownEngine) ActiveCountdowns() []types.CountdownStatus {
	e.mu.Lock()
	handles := make([]*countdown, 0, len(e.countdowns))
	for _, cd := range e.countdowns {
		handles = append(handles, cd)
	}
	e.mu.Unlock()

	now := e.clock.Now()
	statuses := make([]types.CountdownStatus, 0, len(handles))
	for _, cd := range handles {
		statuses = append(statuses, cd.snapshot(now))
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].StartedAt.Before(statuses[j].StartedAt)
	})
	return statuses
}

func (cd *countdown) extend(d time.Duration) time.Time {
	cd.mu.Lock()
	defer cd.mu.Unlock()
	cd.target = cd.target.Add(d)
	cd.totalSeconds += seconds(d)
	return cd.target
}

func (cd *countdown) snapshot(now time.Time) types.CountdownStatus {
	cd.mu.Lock()
	target, total, message := cd.target, cd.totalSeconds, cd.message
	cd.mu.Unlock()

	return CountdownSnapshotAt(cd.eventId, cd.startedAt, target, total, message, now)
}

func (e *CountdownEngine) remove(cd *countdown) {
	e.mu.Lock()
	current, ok := e.countdowns[cd.eventId]
	if ok && current == cd {
		delete(e.countdowns, cd.eventId)
	}
	e.mu.Unlock()

	if ok && current == cd {
		e.stats.Decr(stats.ActiveCountdowns)
	}
}

func (e *CountdownEngine) run(cd *countdown) {
	defer e.remove(cd)
	defer func() {
		if rec := recover(); rec != nil {
			e.log.Printf("countdown %s: %v", cd.eventId, rec)
		}
	}()

	ticker := e.clock.NewTicker(time.Second)
	defer ticker.Stop()

	fired := make(map[int]bool)

	for {
		select {
		case <-cd.stop:
			return
		case <-ticker.Chan():
		}

		now := e.clock.Now()
		st := cd.snapshot(now)

		if st.TimeRemaining <= 0 {
			e.br.BroadcastToRoom(realtime.RoomEvent, cd.eventId, &realtime.CountdownCompleted{
				Type:        realtime.KindCountdownCompleted,
				EventId:     cd.eventId,
				Message:     "Event is starting now! Get ready for the first round.",
				CompletedAt: now,
			})
			return
		}

		e.br.BroadcastToRoom(realtime.RoomEvent, cd.eventId, &realtime.CountdownUpdate{
			Type:            realtime.KindCountdownUpdate,
			EventId:         cd.eventId,
			TimeRemaining:   st.TimeRemaining,
			TotalDuration:   st.TotalDuration,
			PercentComplete: st.PercentComplete,
			Message:         st.Message,
			TargetTime:      st.TargetTime,
		})

		if th, ok := nextWarning(countdownWarningThresholds, fired, st.TimeRemaining); ok {
			fired[th] = true
			e.br.BroadcastToRoom(realtime.RoomEvent, cd.eventId, &realtime.CountdownWarning{
				Type:          realtime.KindCountdownWarning,
				EventId:       cd.eventId,
				Message:       countdownWarningText(th, st.TimeRemaining),
				WarningType:   countdownWarningNames[th],
				TimeRemaining: st.TimeRemaining,
			})
		}
	}
}

func countdownWarningText(threshold, remaining int) string {
	switch threshold {
	case 600:
		return "10 minutes until event starts!"
	case 300:
		return "5 minutes until event starts! Please take your seats."
	case 120:
		return "2 minutes until event starts!"
	case 60:
		return "1 minute until event starts!"
	case 30:
		return "30 seconds until event starts!"
	default:
		return fmt.Sprintf("%d seconds!", remaining)
	}
}
