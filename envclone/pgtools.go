// Copyright 2025 Loft Manager Authors
// SPDX-License-Identifier: Apache-2.0

package envclone

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// DumpOptions selects what one pg_dump pass extracts.
type DumpOptions struct {
	DataOnly            bool
	SchemaOnly          bool
	Inserts             bool
	OnConflictDoNothing bool
	NoOwner             bool
	NoACL               bool
	Schemas             []string
	ExcludeSchemas      []string
	ExcludeTables       []string
}

// RestoreOptions configures one psql restore pass.
type RestoreOptions struct {
	SingleTransaction bool
}

// ToolRunner is the narrow adapter over the native PostgreSQL tooling. The
// pipeline only talks to pg_dump/psql through it, so the tool dependency is
// swappable and testable.
type ToolRunner interface {
	Verify(ctx context.Context) error
	Dump(ctx context.Context, conn *PostgresConnection, outFile string, opts DumpOptions) error
	Restore(ctx context.Context, conn *PostgresConnection, inFile string, opts RestoreOptions) error
}

// execToolRunner shells out to pg_dump and psql on PATH.
type execToolRunner struct {
	pgDumpPath string
	psqlPath   string
	timeout    time.Duration
	logger     *slog.Logger
}

// NewExecToolRunner creates a runner for the native tools. timeout bounds
// each child process; zero means the 30 minute default.
func NewExecToolRunner(timeout time.Duration, logger *slog.Logger) ToolRunner {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &execToolRunner{
		pgDumpPath: "pg_dump",
		psqlPath:   "psql",
		timeout:    timeout,
		logger:     logger,
	}
}

// Verify spawns pg_dump and psql with --version. Failure is fatal before any
// data movement begins.
func (r *execToolRunner) Verify(ctx context.Context) error {
	for _, tool := range []string{r.pgDumpPath, r.psqlPath} {
		cmd := exec.CommandContext(ctx, tool, "--version")
		out, err := cmd.CombinedOutput()
		if err != nil {
			return &ToolUnavailableError{Tool: tool, Err: fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out)))}
		}
		r.logger.Debug("verified native tool", "tool", tool, "version", strings.TrimSpace(string(out)))
	}
	return nil
}

func (r *execToolRunner) Dump(ctx context.Context, conn *PostgresConnection, outFile string, opts DumpOptions) error {
	args := BuildDumpArgs(conn, outFile, opts)
	return r.run(ctx, r.pgDumpPath, args, conn, false)
}

func (r *execToolRunner) Restore(ctx context.Context, conn *PostgresConnection, inFile string, opts RestoreOptions) error {
	args := BuildRestoreArgs(conn, inFile, opts)
	return r.run(ctx, r.psqlPath, args, conn, true)
}

func (r *execToolRunner) run(ctx context.Context, tool string, args []string, conn *PostgresConnection, restore bool) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, tool, args...)
	cmd.Env = append(os.Environ(), "PGPASSWORD="+conn.Password)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	r.logger.Debug("native tool finished", "tool", tool, "duration", time.Since(start), "error", err)
	if err == nil {
		return nil
	}
	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%s timed out after %s: %w", tool, r.timeout, ctx.Err())
	}
	return ClassifyToolError(conn.Host, stderr.String(), err, restore)
}

// BuildDumpArgs renders the pg_dump argument list. Pure so the argument
// surface is unit-testable without spawning anything.
func BuildDumpArgs(conn *PostgresConnection, outFile string, opts DumpOptions) []string {
	args := []string{
		"-h", conn.Host,
		"-p", fmt.Sprintf("%d", conn.Port),
		"-U", conn.User,
		"-d", conn.Database,
	}
	if opts.DataOnly {
		args = append(args, "--data-only")
	}
	if opts.SchemaOnly {
		args = append(args, "--schema-only")
	}
	if opts.Inserts {
		args = append(args, "--inserts")
	}
	if opts.OnConflictDoNothing {
		args = append(args, "--on-conflict-do-nothing")
	}
	if opts.NoOwner {
		args = append(args, "--no-owner")
	}
	if opts.NoACL {
		args = append(args, "--no-acl")
	}
	for _, schema := range opts.Schemas {
		args = append(args, "--schema", schema)
	}
	for _, schema := range opts.ExcludeSchemas {
		args = append(args, "--exclude-schema", schema)
	}
	for _, table := range opts.ExcludeTables {
		args = append(args, "--exclude-table", table)
	}
	return append(args, "-f", outFile)
}

// BuildRestoreArgs renders the psql argument list for a restore pass.
func BuildRestoreArgs(conn *PostgresConnection, inFile string, opts RestoreOptions) []string {
	args := []string{
		"-h", conn.Host,
		"-p", fmt.Sprintf("%d", conn.Port),
		"-U", conn.User,
		"-d", conn.Database,
		"--set", "ON_ERROR_STOP=on",
	}
	if opts.SingleTransaction {
		args = append(args, "--single-transaction")
	}
	return append(args, "-f", inFile)
}

// dnsFailurePatterns are the stderr fragments the native tools emit on
// hostname-resolution failures across platforms and libc flavors.
var dnsFailurePatterns = []string{
	"could not translate host name",
	"name or service not known",
	"nodename nor servname provided",
	"temporary failure in name resolution",
	"no address associated with hostname",
}

// ClassifyToolError parses known stderr patterns into the typed error
// taxonomy. This is the single place the DNS-retry heuristic lives.
func ClassifyToolError(host, stderr string, err error, restore bool) error {
	lower := strings.ToLower(stderr)
	for _, pattern := range dnsFailurePatterns {
		if strings.Contains(lower, pattern) {
			return &TransientConnectivityError{Host: host, Err: err}
		}
	}
	if restore {
		return &RestoreTransactionError{Stderr: stderr, Err: err}
	}
	if stderr != "" {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr))
	}
	return err
}
