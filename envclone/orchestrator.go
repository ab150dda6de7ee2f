// Copyright 2025 Loft Manager Authors
// SPDX-License-Identifier: Apache-2.0

// Package envclone clones a Supabase/PostgreSQL database from one
// environment to another, wiping the target first and anonymizing sensitive
// fields on the way.
package envclone

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nextjsreact/loft-envclone/anonymize"
)

// Clone modes.
const (
	ModeNative  = "native"  // pg_dump/psql orchestration
	ModeRowCopy = "rowcopy" // paginated row-level copy with inline anonymization
)

// CloneOptions configures one end-to-end clone.
type CloneOptions struct {
	Mode            string
	Anonymize       bool
	BatchSize       int
	ConfirmDeletion bool
	CreateBackup    bool
	PhaseTimeout    time.Duration
}

// DefaultCloneOptions returns the clone defaults.
func DefaultCloneOptions() CloneOptions {
	return CloneOptions{
		Mode:         ModeNative,
		Anonymize:    true,
		BatchSize:    500,
		PhaseTimeout: 30 * time.Minute,
	}
}

// CloneRequest asks for one environment-to-environment clone.
type CloneRequest struct {
	Source  Environment
	Target  Environment
	Options CloneOptions
}

// CloneResult is the structured outcome returned to callers. The
// orchestrator never throws past its boundary except for the two fatal
// guard errors; everything else lands here.
type CloneResult struct {
	Success           bool            `json:"success"`
	OperationID       string          `json:"operation_id"`
	SourceEnvironment string          `json:"source_environment"`
	TargetEnvironment string          `json:"target_environment"`
	Statistics        CloneStatistics `json:"statistics"`
	BackupID          string          `json:"backup_id,omitempty"`
	Errors            []string        `json:"errors,omitempty"`
	Warnings          []string        `json:"warnings,omitempty"`
	Duration          time.Duration   `json:"duration"`
	CompletedAt       time.Time       `json:"completed_at"`
	Logs              []CloneLog      `json:"logs,omitempty"`
}

// Connector opens a database handle for one resolved connection. The second
// return closes it. Injectable so tests never need a live database.
type Connector func(ctx context.Context, conn *PostgresConnection) (Querier, func(), error)

// PgxPoolConnector is the production Connector backed by pgxpool.
func PgxPoolConnector(ctx context.Context, conn *PostgresConnection) (Querier, func(), error) {
	pool, err := pgxpool.New(ctx, conn.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open connection pool: %w", err)
	}
	return pool, pool.Close, nil
}

// Orchestrator sequences resolve -> wipe/reset -> dump-or-copy -> restore
// into one operation with an ordered log stream.
type Orchestrator struct {
	tools   ToolRunner
	connect Connector
	logger  *slog.Logger
	sink    LogSink
}

// NewOrchestrator creates an orchestrator. tools defaults to the exec
// runner, connect to pgxpool, logger to slog.Default().
func NewOrchestrator(tools ToolRunner, connect Connector, logger *slog.Logger, sink LogSink) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if tools == nil {
		tools = NewExecToolRunner(0, logger)
	}
	if connect == nil {
		connect = PgxPoolConnector
	}
	return &Orchestrator{tools: tools, connect: connect, logger: logger, sink: sink}
}

// Clone runs one end-to-end clone operation. Phases are strictly ordered; a
// failure in an earlier phase prevents later phases from running. Guard
// violations (bad configuration, production target) are returned as errors;
// every other failure is folded into the result.
func (o *Orchestrator) Clone(ctx context.Context, req CloneRequest) (*CloneResult, error) {
	opts := req.Options
	if opts.Mode == "" {
		opts.Mode = ModeNative
	}
	if opts.PhaseTimeout <= 0 {
		opts.PhaseTimeout = DefaultCloneOptions().PhaseTimeout
	}

	// Both modes wipe the target, so both guards run before anything else.
	if IsProductionName(req.Target.Name) {
		return nil, &ProductionProtectionError{Environment: req.Target.Name}
	}
	if !opts.ConfirmDeletion {
		return nil, &ConfigurationError{Field: "confirm_deletion", Reason: "cloning overwrites the target; confirm_deletion must be explicitly true"}
	}

	sourceConn, err := ResolveConnection(req.Source.Credentials)
	if err != nil {
		return nil, err
	}
	targetConn, err := ResolveConnection(req.Target.Credentials)
	if err != nil {
		return nil, err
	}

	recorder := NewLogRecorder(o.logger, o.sink)
	op := NewOperation(recorder)
	op.Start()
	started := time.Now()

	result := &CloneResult{
		OperationID:       op.ID.String(),
		SourceEnvironment: req.Source.Name,
		TargetEnvironment: req.Target.Name,
	}
	fail := func(err error) *CloneResult {
		phase, _ := op.Phase()
		recorder.Error(phase, "clone failed", map[string]any{"error": err.Error()})
		op.Fail(err)
		result.Success = false
		result.Errors = append(result.Errors, err.Error())
		result.Statistics = op.Statistics()
		result.Duration = time.Since(started)
		result.CompletedAt = time.Now()
		result.Logs = recorder.Entries()
		return result
	}

	op.SetPhase(PhaseResolve, 2)
	recorder.Info(PhaseResolve, "environments resolved",
		map[string]any{"source": req.Source.Name, "target": req.Target.Name})

	targetDB, closeTarget, err := o.connect(ctx, targetConn)
	if err != nil {
		return fail(fmt.Errorf("failed to connect to target: %w", err)), nil
	}
	defer closeTarget()

	if opts.CreateBackup {
		backupID, err := o.backupTarget(ctx, targetConn)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("target backup failed: %v", err))
			recorder.Warning(PhaseWipe, "target backup failed, continuing", map[string]any{"error": err.Error()})
		} else {
			result.BackupID = backupID
			recorder.Info(PhaseWipe, "target backed up", map[string]any{"backup_id": backupID})
		}
	}

	switch opts.Mode {
	case ModeNative:
		cloner := NewNativeCloner(o.tools, recorder, o.logger)
		if err := cloner.Clone(ctx, sourceConn, targetConn, targetDB, op); err != nil {
			return fail(err), nil
		}

	case ModeRowCopy:
		sourceDB, closeSource, err := o.connect(ctx, sourceConn)
		if err != nil {
			return fail(fmt.Errorf("failed to connect to source: %w", err)), nil
		}
		defer closeSource()

		op.SetPhase(PhaseWipe, 10)
		deleter := NewDeleter(targetDB, recorder, o.logger)
		deleteResult, err := deleter.DeleteAllData(ctx, req.Target.Name, DeleteOptions{ConfirmDeletion: opts.ConfirmDeletion})
		if err != nil {
			if IsFatalGuardError(err) {
				return nil, err
			}
			return fail(err), nil
		}
		for _, tableErr := range deleteResult.Errors {
			result.Warnings = append(result.Warnings, fmt.Sprintf("wipe: table %s: %s", tableErr.Table, tableErr.Err))
		}

		op.SetPhase(PhaseCopy, 30)
		engine := anonymize.NewEngine(o.logger)
		copier := NewCopier(sourceDB, targetDB, engine, recorder, o.logger)
		op.SetTotals(len(CloneTableOrder()), 0)
		copyResult, err := copier.CopyAll(ctx, CopyOptions{
			BatchSize: opts.BatchSize,
			Anonymize: opts.Anonymize,
		})
		if err != nil {
			return fail(err), nil
		}
		op.AddRecords(copyResult.RecordsCopied, 0)
		for range copyResult.TablesCopied {
			op.AddTable()
		}
		if !copyResult.Success {
			errs := make([]string, 0, len(copyResult.Errors))
			for _, tableErr := range copyResult.Errors {
				errs = append(errs, fmt.Sprintf("copy: table %s: %s", tableErr.Table, tableErr.Err))
			}
			result.Errors = append(result.Errors, errs...)
			return fail(fmt.Errorf("row copy finished with %d failed tables", len(copyResult.Errors))), nil
		}

	default:
		return nil, &ConfigurationError{Field: "mode", Reason: fmt.Sprintf("unknown clone mode %q", opts.Mode)}
	}

	op.Complete()
	recorder.Success(PhaseCleanup, "clone completed",
		map[string]any{"operation_id": op.ID.String(), "duration": time.Since(started).String()})

	result.Success = true
	result.Statistics = op.Statistics()
	result.Duration = time.Since(started)
	result.CompletedAt = time.Now()
	result.Logs = recorder.Entries()
	return result, nil
}

// backupTarget dumps the target's user schemas to a retained file and
// returns the backup identifier.
func (o *Orchestrator) backupTarget(ctx context.Context, target *PostgresConnection) (string, error) {
	backupID := fmt.Sprintf("backup-%d", time.Now().Unix())
	path := filepath.Join(os.TempDir(), backupID+".sql")
	opts := DumpOptions{
		NoOwner:        true,
		NoACL:          true,
		ExcludeSchemas: userSchemaExcludes,
	}
	if err := o.tools.Dump(ctx, target, path, opts); err != nil {
		return "", err
	}
	return backupID, nil
}
