// Copyright 2025 Loft Manager Authors
// SPDX-License-Identifier: Apache-2.0

package envclone

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// CloneStatistics counts work done by an operation. Counters only ever grow
// while the operation is live.
type CloneStatistics struct {
	TablesProcessed  int           `json:"tables_processed"`
	TablesTotal      int           `json:"tables_total"`
	RecordsProcessed int64         `json:"records_processed"`
	RecordsTotal     int64         `json:"records_total"`
	BytesProcessed   int64         `json:"bytes_processed"`
	FunctionsCloned  int           `json:"functions_cloned"`
	TriggersCloned   int           `json:"triggers_cloned"`
	Duration         time.Duration `json:"duration"`
}

// Operation tracks one clone operation through its lifecycle:
// pending -> running -> completed | failed | cancelled.
// Terminal states are immutable; late mutations are ignored.
type Operation struct {
	ID       uuid.UUID `json:"operation_id"`
	recorder *LogRecorder

	mu          sync.Mutex
	status      string
	progress    int
	phase       string
	stats       CloneStatistics
	startedAt   time.Time
	completedAt *time.Time
	err         error
}

// NewOperation creates a pending operation with a fresh ID.
func NewOperation(recorder *LogRecorder) *Operation {
	return &Operation{
		ID:       uuid.New(),
		recorder: recorder,
		status:   StatusPending,
	}
}

// Start transitions the operation to running.
func (op *Operation) Start() {
	op.mu.Lock()
	defer op.mu.Unlock()
	if op.status != StatusPending {
		return
	}
	op.status = StatusRunning
	op.startedAt = time.Now()
}

// SetPhase updates the current phase label and progress percentage.
func (op *Operation) SetPhase(phase string, progress int) {
	op.mu.Lock()
	defer op.mu.Unlock()
	if op.terminalLocked() {
		return
	}
	op.phase = phase
	if progress > op.progress {
		op.progress = progress
	}
}

// AddRecords bumps the processed-record and byte counters.
func (op *Operation) AddRecords(records, bytes int64) {
	op.mu.Lock()
	defer op.mu.Unlock()
	if op.terminalLocked() {
		return
	}
	op.stats.RecordsProcessed += records
	op.stats.BytesProcessed += bytes
}

// AddFunctionsTriggers bumps the cloned function and trigger counters.
func (op *Operation) AddFunctionsTriggers(functions, triggers int) {
	op.mu.Lock()
	defer op.mu.Unlock()
	if op.terminalLocked() {
		return
	}
	op.stats.FunctionsCloned += functions
	op.stats.TriggersCloned += triggers
}

// AddTable marks one more table as processed.
func (op *Operation) AddTable() {
	op.mu.Lock()
	defer op.mu.Unlock()
	if op.terminalLocked() {
		return
	}
	op.stats.TablesProcessed++
}

// SetTotals sets the expected table/record totals for progress reporting.
func (op *Operation) SetTotals(tables int, records int64) {
	op.mu.Lock()
	defer op.mu.Unlock()
	if op.terminalLocked() {
		return
	}
	op.stats.TablesTotal = tables
	op.stats.RecordsTotal = records
}

// Complete transitions to the completed terminal state.
func (op *Operation) Complete() {
	op.finish(StatusCompleted, nil)
}

// Fail transitions to the failed terminal state.
func (op *Operation) Fail(err error) {
	op.finish(StatusFailed, err)
}

// Cancel transitions to the cancelled terminal state.
func (op *Operation) Cancel() {
	op.finish(StatusCancelled, nil)
}

func (op *Operation) finish(status string, err error) {
	op.mu.Lock()
	defer op.mu.Unlock()
	if op.terminalLocked() {
		return
	}
	now := time.Now()
	op.status = status
	op.completedAt = &now
	op.err = err
	if !op.startedAt.IsZero() {
		op.stats.Duration = now.Sub(op.startedAt)
	}
	if status == StatusCompleted {
		op.progress = 100
	}
}

func (op *Operation) terminalLocked() bool {
	switch op.status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Status returns the current lifecycle status.
func (op *Operation) Status() string {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.status
}

// Phase returns the current phase label and progress percentage.
func (op *Operation) Phase() (string, int) {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.phase, op.progress
}

// Statistics returns a snapshot of the operation counters.
func (op *Operation) Statistics() CloneStatistics {
	op.mu.Lock()
	defer op.mu.Unlock()
	stats := op.stats
	if op.completedAt == nil && !op.startedAt.IsZero() {
		stats.Duration = time.Since(op.startedAt)
	}
	return stats
}

// Err returns the terminal error, if any.
func (op *Operation) Err() error {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.err
}

// Logs returns the ordered log entries recorded so far.
func (op *Operation) Logs() []CloneLog {
	if op.recorder == nil {
		return nil
	}
	return op.recorder.Entries()
}
