package room

import "time"

// TimerState is the server's timer anchor for a room's current turn
// (spec §3 "Timer anchor", §4.2.3). The server is the sole authority on
// TurnStartEpoch; clients reconcile their local countdowns against it.
type TimerState struct {
	// TurnStartEpoch is nil exactly when Paused is true (spec §3 invariant).
	TurnStartEpoch     *time.Time
	ElapsedBeforePause time.Duration
	MoveTimeLimit      time.Duration
}

// NewTimerState returns a running timer anchored at now with the given
// per-move budget.
func NewTimerState(now time.Time, moveTimeLimit time.Duration) TimerState {
	t := now
	return TimerState{
		TurnStartEpoch:     &t,
		ElapsedBeforePause: 0,
		MoveTimeLimit:      moveTimeLimit,
	}
}

// Reset re-anchors the timer at now with elapsed time zeroed, as required
// after every committed move (spec §3 invariant, §4.2.2 step 4).
func (t *TimerState) Reset(now time.Time) {
	anchor := now
	t.TurnStartEpoch = &anchor
	t.ElapsedBeforePause = 0
}

// Elapsed returns the effective elapsed time on the current turn as of now
// (spec §3): ElapsedBeforePause + (now - TurnStartEpoch) while running, or
// exactly ElapsedBeforePause while paused.
func (t TimerState) Elapsed(now time.Time) time.Duration {
	if t.TurnStartEpoch == nil {
		return t.ElapsedBeforePause
	}
	return t.ElapsedBeforePause + now.Sub(*t.TurnStartEpoch)
}

// Pause freezes the timer, recording the effective elapsed time and clearing
// the running anchor (spec §3: "when paused, turn_start_epoch is None").
func (t *TimerState) Pause(now time.Time) {
	t.ElapsedBeforePause = t.Elapsed(now)
	t.TurnStartEpoch = nil
}

// ResumeFrom rebases the timer from a client-reported remaining-turn budget
// (spec §4.2.3 "On resume"): elapsed_before_pause = move_time_limit -
// remaining_turn, turn_start_epoch = now.
func (t *TimerState) ResumeFrom(now time.Time, remainingTurn time.Duration) {
	t.ElapsedBeforePause = t.MoveTimeLimit - remainingTurn
	if t.ElapsedBeforePause < 0 {
		t.ElapsedBeforePause = 0
	}
	anchor := now
	t.TurnStartEpoch = &anchor
}
