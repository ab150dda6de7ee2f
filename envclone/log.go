// Copyright 2025 Loft Manager Authors
// SPDX-License-Identifier: Apache-2.0

package envclone

import (
	"log/slog"
	"sync"
	"time"
)

// CloneLog is one ordered entry of the clone progress stream.
type CloneLog struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Phase     string         `json:"phase"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// LogSink receives clone log entries as they are recorded. Sinks must not
// block; the recorder calls them synchronously.
type LogSink func(CloneLog)

// LogRecorder accumulates the ordered clone log stream and tees every entry
// to a slog.Logger. Safe for concurrent use.
type LogRecorder struct {
	logger *slog.Logger
	sink   LogSink

	mu      sync.Mutex
	entries []CloneLog
}

// NewLogRecorder creates a recorder. logger defaults to slog.Default();
// sink may be nil.
func NewLogRecorder(logger *slog.Logger, sink LogSink) *LogRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogRecorder{logger: logger, sink: sink}
}

func (r *LogRecorder) record(level, phase, message string, metadata map[string]any) {
	entry := CloneLog{
		Timestamp: time.Now(),
		Level:     level,
		Phase:     phase,
		Message:   message,
		Metadata:  metadata,
	}
	r.mu.Lock()
	r.entries = append(r.entries, entry)
	r.mu.Unlock()

	attrs := []any{"phase", phase}
	for k, v := range metadata {
		attrs = append(attrs, k, v)
	}
	switch level {
	case LevelError:
		r.logger.Error(message, attrs...)
	case LevelWarning:
		r.logger.Warn(message, attrs...)
	default:
		r.logger.Info(message, attrs...)
	}

	if r.sink != nil {
		r.sink(entry)
	}
}

// Info records an informational entry.
func (r *LogRecorder) Info(phase, message string, metadata map[string]any) {
	r.record(LevelInfo, phase, message, metadata)
}

// Warning records a warning entry.
func (r *LogRecorder) Warning(phase, message string, metadata map[string]any) {
	r.record(LevelWarning, phase, message, metadata)
}

// Error records an error entry.
func (r *LogRecorder) Error(phase, message string, metadata map[string]any) {
	r.record(LevelError, phase, message, metadata)
}

// Success records a success entry.
func (r *LogRecorder) Success(phase, message string, metadata map[string]any) {
	r.record(LevelSuccess, phase, message, metadata)
}

// Entries returns a copy of the ordered log stream recorded so far.
func (r *LogRecorder) Entries() []CloneLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CloneLog, len(r.entries))
	copy(out, r.entries)
	return out
}
