// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"time"
)

// Target is the part of the transcript a Merger writes to.
// *model.Transcript satisfies it.
type Target interface {
	MergeDelta(partIndex int, fragment string) error
	CloseStreamTarget()
}

// =============================================================================
// OUTCOME AND STATS
// =============================================================================

// Outcome describes how an exchange finished.
type Outcome int

const (
	// OutcomePending means no terminal event has been applied yet.
	OutcomePending Outcome = iota
	// OutcomeDone means the agent finished the reply.
	OutcomeDone
	// OutcomeError means the agent or transport reported a failure.
	OutcomeError
	// OutcomeStopped means the exchange was cancelled locally.
	OutcomeStopped
)

// String returns a lowercase name for the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeDone:
		return "done"
	case OutcomeError:
		return "error"
	case OutcomeStopped:
		return "stopped"
	default:
		return "pending"
	}
}

// Stats holds statistics collected while merging one exchange.
type Stats struct {
	StartTime      time.Time
	FirstDeltaTime time.Time
	EndTime        time.Time

	Deltas int
	Bytes  int

	TTFD     time.Duration // time to first delta
	Duration time.Duration
}

// Result is the final state of a Merger.
type Result struct {
	Outcome Outcome
	Reason  string
	Stats   Stats
}

// =============================================================================
// MERGER
// =============================================================================

// Merger folds the events of one exchange into a Target.
//
// Deltas are applied strictly in the order Apply is called. After a terminal
// event or Cancel, further events are discarded. Merger is not safe for
// concurrent use.
type Merger struct {
	target  Target
	stats   Stats
	outcome Outcome
	reason  string
}

// NewMerger creates a merger writing into target, which must already have an
// open stream target.
func NewMerger(target Target) *Merger {
	return &Merger{
		target: target,
		stats:  Stats{StartTime: time.Now()},
	}
}

// Apply folds ev into the target. It reports whether the exchange is finished.
// Errors come from the target and indicate a broken store contract.
func (m *Merger) Apply(ev Event) (bool, error) {
	if m.Finished() {
		return true, nil
	}

	switch ev.Kind {
	case EventDelta:
		if err := m.target.MergeDelta(ev.Part, ev.Text); err != nil {
			return false, err
		}
		m.recordDelta(len(ev.Text))
		return false, nil

	case EventDone:
		m.finish(OutcomeDone, "")
		return true, nil

	case EventError:
		m.finish(OutcomeError, ev.Reason)
		return true, nil
	}

	// Unknown kinds are ignored.
	return false, nil
}

// Cancel finalizes the exchange as stopped, keeping merged text intact.
// It does nothing once the merger has finished.
func (m *Merger) Cancel() {
	if m.Finished() {
		return
	}
	m.finish(OutcomeStopped, "")
}

// Finished reports whether a terminal event or Cancel has been applied.
func (m *Merger) Finished() bool {
	return m.outcome != OutcomePending
}

// Result returns the outcome so far.
func (m *Merger) Result() Result {
	return Result{Outcome: m.outcome, Reason: m.reason, Stats: m.stats}
}

func (m *Merger) recordDelta(n int) {
	if m.stats.FirstDeltaTime.IsZero() {
		m.stats.FirstDeltaTime = time.Now()
		m.stats.TTFD = m.stats.FirstDeltaTime.Sub(m.stats.StartTime)
	}
	m.stats.Deltas++
	m.stats.Bytes += n
}

func (m *Merger) finish(outcome Outcome, reason string) {
	m.target.CloseStreamTarget()
	m.outcome = outcome
	m.reason = reason
	m.stats.EndTime = time.Now()
	m.stats.Duration = m.stats.EndTime.Sub(m.stats.StartTime)
}

// =============================================================================
// SYNCHRONOUS CONSUMPTION
// =============================================================================

// Consume drives es into m on the calling goroutine until the exchange ends.
// Cancelling ctx finalizes the merger as stopped. The returned error is only
// set for store contract violations.
func Consume(ctx context.Context, es EventStream, m *Merger) (Result, error) {
	var applyErr error
	_ = Pump(ctx, es, func(ev Event) bool {
		if _, err := m.Apply(ev); err != nil {
			applyErr = err
			return false
		}
		return !m.Finished()
	})
	if applyErr != nil {
		return m.Result(), applyErr
	}
	if !m.Finished() {
		m.Cancel()
	}
	return m.Result(), nil
}
