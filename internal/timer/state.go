package timer

import (
	"time"

	"github.com/google/uuid"
	"github.com/mkaplan/matchnight/internal/types"
)

type Phase string

const (
	PhaseRound     Phase = "round"
	PhaseBreak     Phase = "break"
	PhaseCompleted Phase = "completed"
)

type RoundConfig struct {
	RoundDuration time.Duration
	BreakDuration time.Duration
}

// RoundSnapshot is the state of a round timer derived from wall-clock
// time. Remaining seconds are always recomputed from the start
// timestamp, never decremented, so delayed ticks cannot introduce
// drift.
type RoundSnapshot struct {
	Phase           Phase
	TimeRemaining   int
	TotalDuration   int
	Elapsed         int
	PercentComplete float64
}

// RoundSnapshotAt computes the round timer state for the given instant.
// It is a pure function of (config, startedAt, now) so it can be tested
// without waiting on real time.
func RoundSnapshotAt(cfg RoundConfig, startedAt, now time.Time) RoundSnapshot {
	elapsed := now.Sub(startedAt)
	if elapsed < 0 {
		elapsed = 0
	}

	if elapsed < cfg.RoundDuration {
		return RoundSnapshot{
			Phase:           PhaseRound,
			TimeRemaining:   seconds(cfg.RoundDuration - elapsed),
			TotalDuration:   seconds(cfg.RoundDuration),
			Elapsed:         seconds(elapsed),
			PercentComplete: percentComplete(elapsed, cfg.RoundDuration),
		}
	}

	breakElapsed := elapsed - cfg.RoundDuration
	if breakElapsed < cfg.BreakDuration {
		return RoundSnapshot{
			Phase:           PhaseBreak,
			TimeRemaining:   seconds(cfg.BreakDuration - breakElapsed),
			TotalDuration:   seconds(cfg.BreakDuration),
			Elapsed:         seconds(elapsed),
			PercentComplete: percentComplete(breakElapsed, cfg.BreakDuration),
		}
	}

	total := cfg.BreakDuration
	if total == 0 {
		total = cfg.RoundDuration
	}
	return RoundSnapshot{
		Phase:           PhaseCompleted,
		TimeRemaining:   0,
		TotalDuration:   seconds(total),
		Elapsed:         seconds(elapsed),
		PercentComplete: 100,
	}
}

// CountdownSnapshotAt computes the countdown state for the given
// instant. Pure, like RoundSnapshotAt.
func CountdownSnapshotAt(eventId uuid.UUID, startedAt, target time.Time, totalSeconds int, message string, now time.Time) types.CountdownStatus {
	remaining := seconds(target.Sub(now))
	if remaining < 0 {
		remaining = 0
	}
	elapsed := seconds(now.Sub(startedAt))
	if elapsed < 0 {
		elapsed = 0
	}

	var percent float64
	if totalSeconds <= 0 {
		percent = 100
	} else {
		percent = float64(elapsed) / float64(totalSeconds) * 100
		if percent < 0 {
			percent = 0
		}
		if percent > 100 {
			percent = 100
		}
	}

	return types.CountdownStatus{
		EventId:         eventId,
		Active:          remaining > 0,
		TimeRemaining:   remaining,
		TotalDuration:   totalSeconds,
		PercentComplete: percent,
		Message:         message,
		TargetTime:      target,
		StartedAt:       startedAt,
	}
}

// nextWarning returns the single unfired threshold whose band contains
// remaining, or ok=false. Thresholds are in descending order; a
// threshold's band runs from the next-lower threshold (exclusive) up to
// the threshold itself (inclusive). The band check keeps a slow tick
// from firing a warning the display has already moved past.
func nextWarning(thresholds []int, fired map[int]bool, remaining int) (int, bool) {
	for i, th := range thresholds {
		lower := 0
		if i+1 < len(thresholds) {
			lower = thresholds[i+1]
		}
		if remaining <= th && remaining > lower && !fired[th] {
			return th, true
		}
	}
	return 0, false
}

func seconds(d time.Duration) int {
	return int(d / time.Second)
}

func percentComplete(elapsed, total time.Duration) float64 {
	if total <= 0 {
		return 100
	}
	p := float64(elapsed) / float64(total) * 100
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
