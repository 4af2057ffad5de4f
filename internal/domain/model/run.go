package model

import (
	"fmt"
	"time"
)

// Outcome tags a single step of a reconciliation run.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeSkip    Outcome = "skip"
	OutcomeWarn    Outcome = "warn"
	OutcomeFail    Outcome = "fail"
)

// Trigger names the source that started a run. At most one run per trigger
// executes at a time.
type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerAdmin     Trigger = "admin"
	TriggerUser      Trigger = "user"
)

// LogEntry is one human-readable audit line of a run.
type LogEntry struct {
	Outcome Outcome `json:"outcome"`
	Ref     string  `json:"ref,omitempty"` // transaction / subscription / purchase id
	Message string  `json:"message"`
}

func (e LogEntry) String() string {
	return fmt.Sprintf("[%s] %s", e.Outcome, e.Message)
}

// RunResult is returned by every reconciliation entrypoint, also on partial failure.
type RunResult struct {
	RunID        string         `json:"run_id"`
	Trigger      Trigger        `json:"trigger"`
	CreatedCount int            `json:"created_count"`
	CreatedBy    map[string]int `json:"created_by_kind,omitempty"` // course, bundle, unlinked, subscription, legacy
	Log          []LogEntry     `json:"log"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   time.Time      `json:"finished_at"`
}

func NewRunResult(runID string, trigger Trigger, now time.Time) *RunResult {
	return &RunResult{RunID: runID, Trigger: trigger, StartedAt: now, Log: []LogEntry{}}
}

func (r *RunResult) Add(outcome Outcome, ref, format string, args ...any) {
	r.Log = append(r.Log, LogEntry{Outcome: outcome, Ref: ref, Message: fmt.Sprintf(format, args...)})
}

// Created records one newly materialized row of the given kind.
func (r *RunResult) Created(kind string) {
	if r.CreatedBy == nil {
		r.CreatedBy = map[string]int{}
	}
	r.CreatedBy[kind]++
	r.CreatedCount++
}

// Merge appends the log and counters of o, keeping r's identity.
func (r *RunResult) Merge(o *RunResult) {
	r.Log = append(r.Log, o.Log...)
	for k, n := range o.CreatedBy {
		if r.CreatedBy == nil {
			r.CreatedBy = map[string]int{}
		}
		r.CreatedBy[k] += n
	}
	r.CreatedCount += o.CreatedCount
}

// Count returns how many log entries carry the given outcome.
func (r *RunResult) Count(outcome Outcome) int {
	n := 0
	for _, e := range r.Log {
		if e.Outcome == outcome {
			n++
		}
	}
	return n
}

// SweepResult is returned by the manual-grant lifecycle sweep.
type SweepResult struct {
	NotifiedCount      int `json:"notified_count"`
	ExpiredCount       int `json:"expired_count"`
	LegacyExpiredCount int `json:"legacy_expired_count"`
}
