package timer

import (
	"errors"
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

var (
	ErrInvalidDuration   = errors.New("round duration must be between 1 and 60 minutes")
	ErrInvalidBreak      = errors.New("break duration must be between 0 and 30 minutes")
	ErrInvalidCountdown  = errors.New("countdown duration must be between 1 and 60 minutes")
	ErrInvalidExtension  = errors.New("extension must be at least 1 minute")
	ErrNoActiveCountdown = errors.New("no active countdown for this event")
)

var roundWarningThresholds = []int{60, 30, 10}

// Broadcaster is the slice of the connection registry the timer engines
// need: fan-out to a room, nothing else.
type Broadcaster interface {
	BroadcastToRoom(class realtime.RoomClass, key uuid.UUID, msg realtime.Message) int
}

// RoundEngine runs one countdown goroutine per active round. Rounds
// move through round -> break -> completed; the engine broadcasts a
// timer_update every tick and one-shot warnings as the remaining time
// crosses each threshold.
type RoundEngine struct {
	log   *log.Logger
	clock clockwork.Clock
	br    Broadcaster
	stats stats.StatsProvider

	mu     sync.Mutex
	timers map[uuid.UUID]*roundTimer
}

type roundTimer struct {
	roundId   uuid.UUID
	cfg       RoundConfig
	startedAt time.Time
	stop      chan struct{}
}

func NewRoundEngine(logger *log.Logger, clock clockwork.Clock, br Broadcaster, sp stats.StatsProvider) *RoundEngine {
	return &RoundEngine{
		log:    logger,
		clock:  clock,
		br:     br,
		stats:  sp,
		timers: make(map[uuid.UUID]*roundTimer),
	}
}

// Start begins a timer for the round. If one is already running it is
// cancelled first, so at most one live timer exists per round id.
func (e *RoundEngine) Start(roundId uuid.UUID, durationMinutes, breakMinutes int) error {
	if durationMinutes < 1 || durationMinutes > 60 {
		return ErrInvalidDuration
	}
	if breakMinutes < 0 || breakMinutes > 30 {
		return ErrInvalidBreak
	}

	t := &roundTimer{
		roundId: roundId,
		cfg: RoundConfig{
			RoundDuration: time.Duration(durationMinutes) * time.Minute,
			BreakDuration: time.Duration(breakMinutes) * time.Minute,
		},
		startedAt: e.clock.Now(),
		stop:      make(chan struct{}),
	}

	e.mu.Lock()
	if old, ok := e.timers[roundId]; ok {
		// The old loop exits on its own; its cleanup sees it has been
		// replaced and leaves the new entry alone.
		close(old.stop)
	} else {
		e.stats.Incr(stats.ActiveRoundTimers)
	}
	e.timers[roundId] = t
	e.mu.Unlock()

	go e.run(t)

	e.log.Printf("started timer for round %s (%dm + %dm break)", roundId, durationMinutes, breakMinutes)
	return nil
}

// Stop cancels the round's timer and removes its state. No-op if no
// timer exists.
func (e *RoundEngine) Stop(roundId uuid.UUID) {
	e.mu.Lock()
	t, ok := e.timers[roundId]
	if ok {
		delete(e.timers, roundId)
		close(t.stop)
	}
	e.mu.Unlock()

	if ok {
		e.stats.Decr(stats.ActiveRoundTimers)
		e.log.Printf("stopped timer for round %s", roundId)
	}
}

// Shutdown stops every active timer.
func (e *RoundEngine) Shutdown() {
	e.mu.Lock()
	ids := make([]uuid.UUID, 0, len(e.timers))
	for id := range e.timers {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	for _, id := range ids {
		e.Stop(id)
	}
}

// Status recomputes the round's state from the wall clock at call time.
func (e *RoundEngine) Status(roundId uuid.UUID) (types.TimerStatus, bool) {
	e.mu.Lock()
	t, ok := e.timers[roundId]
	e.mu.Unlock()
	if !ok {
		return types.TimerStatus{}, false
	}

	return t.status(e.clock.Now()), true
}

// ActiveTimers returns a snapshot of every running timer, oldest first.
func (e *RoundEngine) ActiveTimers() []types.TimerStatus {
	e.mu.Lock()
	handles := make([]*roundTimer, 0, len(e.timers))
	for _, t := range e.timers {
		handles = append(handles, t)
	}
	e.mu.Unlock()

	now := e.clock.Now()
	statuses := make([]types.TimerStatus, 0, len(handles))
	for _, t := range handles {
		statuses = append(statuses, t.status(now))
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].StartedAt.Before(statuses[j].StartedAt)
	})
	return statuses
}

func (t *roundTimer) status(now time.Time) types.TimerStatus {
	snap := RoundSnapshotAt(t.cfg, t.startedAt, now)
	return types.TimerStatus{
		RoundId:         t.roundId,
		Phase:           string(snap.Phase),
		TimeRemaining:   snap.TimeRemaining,
		TotalDuration:   snap.TotalDuration,
		ElapsedTime:     snap.Elapsed,
		PercentComplete: snap.PercentComplete,
		StartedAt:       t.startedAt,
	}
}

// remove deletes the timer's bookkeeping entry unless it has already
// been replaced by a newer instance for the same round.
func (e *RoundEngine) remove(t *roundTimer) {
	e.mu.Lock()
	current, ok := e.timers[t.roundId]
	if ok && current == t {
		delete(e.timers, t.roundId)
	}
	e.mu.Unlock()

	if ok && current == t {
		e.stats.Decr(stats.ActiveRoundTimers)
	}
}

func (e *RoundEngine) run(t *roundTimer) {
	defer e.remove(t)
	defer func() {
		if rec := recover(); rec != nil {
			e.log.Printf("round timer %s: %v", t.roundId, rec)
			e.br.BroadcastToRoom(realtime.RoomRoundTimer, t.roundId, &realtime.TimerError{
				Type:    realtime.KindTimerError,
				RoundId: t.roundId,
				Message: "Timer error occurred",
			})
		}
	}()

	ticker := e.clock.NewTicker(time.Second)
	defer ticker.Stop()

	fired := make(map[int]bool)
	phase := PhaseRound

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.Chan():
		}

		snap := RoundSnapshotAt(t.cfg, t.startedAt, e.clock.Now())

		if snap.Phase != phase {
			e.announceTransition(t, phase, snap.Phase)
			phase = snap.Phase
			clear(fired)
			if phase == PhaseCompleted {
				return
			}
		}

		e.br.BroadcastToRoom(realtime.RoomRoundTimer, t.roundId, &realtime.TimerUpdate{
			Type:            realtime.KindTimerUpdate,
			RoundId:         t.roundId,
			Phase:           string(snap.Phase),
			TimeRemaining:   snap.TimeRemaining,
			TotalDuration:   snap.TotalDuration,
			PercentComplete: snap.PercentComplete,
		})

		if th, ok := nextWarning(roundWarningThresholds, fired, snap.TimeRemaining); ok {
			fired[th] = true
			e.br.BroadcastToRoom(realtime.RoomRoundTimer, t.roundId, roundWarning(t.roundId, phase, th, snap.TimeRemaining))
		}
	}
}

func (e *RoundEngine) announceTransition(t *roundTimer, from, to Phase) {
	if from == PhaseRound {
		e.br.BroadcastToRoom(realtime.RoomRoundTimer, t.roundId, &realtime.RoundEnded{
			Type:    realtime.KindRoundEnded,
			RoundId: t.roundId,
			Message: "Round completed! Please finish your conversations.",
		})
	}

	switch to {
	case PhaseBreak:
		breakSeconds := seconds(t.cfg.BreakDuration)
		e.br.BroadcastToRoom(realtime.RoomRoundTimer, t.roundId, &realtime.BreakStarted{
			Type:          realtime.KindBreakStarted,
			RoundId:       t.roundId,
			BreakDuration: breakSeconds,
			Message:       fmt.Sprintf("Break time! %d minutes until next round.", breakSeconds/60),
		})
	case PhaseCompleted:
		if from == PhaseBreak {
			e.br.BroadcastToRoom(realtime.RoomRoundTimer, t.roundId, &realtime.BreakEnded{
				Type:    realtime.KindBreakEnded,
				RoundId: t.roundId,
				Message: "Break time is over! Next round will begin shortly.",
			})
		}
	}
}

func roundWarning(roundId uuid.UUID, phase Phase, threshold, remaining int) *realtime.TimerWarning {
	w := &realtime.TimerWarning{
		Type:    realtime.KindTimerWarning,
		RoundId: roundId,
	}

	if phase == PhaseBreak {
		switch threshold {
		case 60:
			w.Message, w.WarningType = "Break ends in 1 minute", "break_ending_soon"
		case 30:
			w.Message, w.WarningType = "Break ends in 30 seconds", "break_ending_very_soon"
		default:
			w.Message = fmt.Sprintf("Break ends in %d seconds", remaining)
			w.WarningType = "break_countdown"
		}
		return w
	}

	switch threshold {
	case 60:
		w.Message, w.WarningType = "1 minute remaining", "one_minute"
	case 30:
		w.Message, w.WarningType = "30 seconds remaining", "thirty_seconds"
	default:
		w.Message = fmt.Sprintf("%d seconds remaining", remaining)
		w.WarningType = "countdown"
	}
	return w
}
