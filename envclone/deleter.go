// Copyright 2025 Loft Manager Authors
// SPDX-License-Identifier: Apache-2.0

package envclone

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lib/pq"
)

// DeleteOptions configures a destructive wipe. ConfirmDeletion must be
// explicitly true before any delete executes.
type DeleteOptions struct {
	ConfirmDeletion bool
	CreateBackup    bool
}

// TableDeleteError records one failed table inside a wipe.
type TableDeleteError struct {
	Table string `json:"table"`
	Err   string `json:"error"`
}

// DeleteResult aggregates a wipe. Success is true only when no table failed.
type DeleteResult struct {
	Success       bool               `json:"success"`
	TablesCleared []string           `json:"tables_cleared"`
	RowsDeleted   int64              `json:"rows_deleted"`
	Errors        []TableDeleteError `json:"errors,omitempty"`
}

// Deleter wipes all rows from a target's known tables.
type Deleter struct {
	target   Querier
	recorder *LogRecorder
	logger   *slog.Logger
}

// NewDeleter creates a deleter against the target database.
func NewDeleter(target Querier, recorder *LogRecorder, logger *slog.Logger) *Deleter {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = NewLogRecorder(logger, nil)
	}
	return &Deleter{target: target, recorder: recorder, logger: logger}
}

// IsProductionName reports whether the environment name indicates production.
// Substring match on purpose: "prod", "production-main", "preprod" all count.
func IsProductionName(environmentName string) bool {
	return strings.Contains(strings.ToLower(environmentName), "prod")
}

// DeleteAllData wipes every known table in reverse dependency order
// (children before parents). The production guard and the confirmation check
// both run before any SQL is issued; per-table failures are collected and the
// sweep continues.
func (d *Deleter) DeleteAllData(ctx context.Context, environmentName string, opts DeleteOptions) (*DeleteResult, error) {
	if IsProductionName(environmentName) {
		return nil, &ProductionProtectionError{Environment: environmentName}
	}
	if !opts.ConfirmDeletion {
		return nil, &ConfigurationError{Field: "confirm_deletion", Reason: "must be explicitly true before deleting data"}
	}

	result := &DeleteResult{Success: true}
	for _, table := range DeletionTableOrder() {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		exists, err := d.tableAccessible(ctx, table)
		if err != nil || !exists {
			d.logger.Debug("skipping inaccessible table", "table", table, "error", err)
			continue
		}

		tag, err := d.target.Exec(ctx, fmt.Sprintf("DELETE FROM %s", pq.QuoteIdentifier(table)))
		if err != nil {
			result.Success = false
			result.Errors = append(result.Errors, TableDeleteError{Table: table, Err: err.Error()})
			d.recorder.Error(PhaseWipe, fmt.Sprintf("failed to clear table %s", table), map[string]any{"error": err.Error()})
			continue
		}
		deleted := tag.RowsAffected()
		result.RowsDeleted += deleted
		result.TablesCleared = append(result.TablesCleared, table)
		d.recorder.Info(PhaseWipe, fmt.Sprintf("cleared table %s", table), map[string]any{"rows": deleted})
	}

	if result.Success {
		d.recorder.Success(PhaseWipe, "target wiped",
			map[string]any{"tables": len(result.TablesCleared), "rows": result.RowsDeleted})
	}
	return result, nil
}

// tableAccessible probes a table with a 1-row select. Missing or forbidden
// tables are skipped rather than failed.
func (d *Deleter) tableAccessible(ctx context.Context, table string) (bool, error) {
	rows, err := d.target.Query(ctx, fmt.Sprintf("SELECT 1 FROM %s LIMIT 1", pq.QuoteIdentifier(table)))
	if err != nil {
		return false, nil //nolint:nilerr // probe failure means "not accessible", not an error
	}
	rows.Close()
	if rows.Err() != nil {
		return false, nil
	}
	return true, nil
}
