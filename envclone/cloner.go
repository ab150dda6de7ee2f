// Copyright 2025 Loft Manager Authors
// SPDX-License-Identifier: Apache-2.0

package envclone

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// NativeCloner orchestrates pg_dump/psql to clone an entire database:
// verify-tools -> dump-system -> dump-user -> reset-target ->
// restore-system -> restore-user -> cleanup.
type NativeCloner struct {
	tools    ToolRunner
	recorder *LogRecorder
	logger   *slog.Logger
}

// NewNativeCloner creates a cloner over the given tool runner.
func NewNativeCloner(tools ToolRunner, recorder *LogRecorder, logger *slog.Logger) *NativeCloner {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = NewLogRecorder(logger, nil)
	}
	return &NativeCloner{tools: tools, recorder: recorder, logger: logger}
}

// Clone dumps the source and restores it into a freshly reset target.
// targetDB is a live connection to the target used for the reset step and
// its verification gate. Temporary dump files are removed on every exit path.
func (nc *NativeCloner) Clone(ctx context.Context, source, target *PostgresConnection, targetDB Querier, op *Operation) error {
	op.SetPhase(PhaseVerifyTools, 5)
	if err := nc.tools.Verify(ctx); err != nil {
		return err
	}
	nc.recorder.Info(PhaseVerifyTools, "native tools verified", nil)

	systemFile, err := os.CreateTemp("", "envclone-system-*.sql")
	if err != nil {
		return fmt.Errorf("failed to create system dump file: %w", err)
	}
	systemPath := systemFile.Name()
	_ = systemFile.Close()
	defer os.Remove(systemPath)

	userFile, err := os.CreateTemp("", "envclone-user-*.sql")
	if err != nil {
		return fmt.Errorf("failed to create user dump file: %w", err)
	}
	userPath := userFile.Name()
	_ = userFile.Close()
	defer os.Remove(userPath)

	// System schemas carry auth/storage data only; transient and
	// version-sensitive tables are excluded because the target regenerates
	// them or their schema drifts across engine versions.
	op.SetPhase(PhaseDumpSystem, 15)
	systemOpts := DumpOptions{
		DataOnly:            true,
		Inserts:             true,
		OnConflictDoNothing: true,
		NoOwner:             true,
		NoACL:               true,
		Schemas:             systemSchemas,
		ExcludeTables:       systemDumpExcludeTables,
	}
	if err := nc.dumpWithDNSRetry(ctx, &source, systemPath, systemOpts); err != nil {
		return fmt.Errorf("system schema dump failed: %w", err)
	}
	nc.recorder.Info(PhaseDumpSystem, "system schemas dumped", map[string]any{"file_bytes": fileSize(systemPath)})

	op.SetPhase(PhaseDumpUser, 35)
	userOpts := DumpOptions{
		NoOwner:        true,
		NoACL:          true,
		ExcludeSchemas: userSchemaExcludes,
	}
	if err := nc.dumpWithDNSRetry(ctx, &source, userPath, userOpts); err != nil {
		return fmt.Errorf("user schema dump failed: %w", err)
	}
	nc.recorder.Info(PhaseDumpUser, "user schemas dumped", map[string]any{"file_bytes": fileSize(userPath)})

	op.SetPhase(PhaseResetTarget, 50)
	if err := nc.resetTarget(ctx, targetDB); err != nil {
		return fmt.Errorf("target reset failed: %w", err)
	}
	nc.recorder.Info(PhaseResetTarget, "target reset and verified empty", nil)

	if err := nc.sanitizeFile(systemPath, op); err != nil {
		return err
	}
	if err := nc.sanitizeFile(userPath, op); err != nil {
		return err
	}

	op.SetPhase(PhaseRestoreSystem, 65)
	if err := nc.restoreWithDNSRetry(ctx, &target, systemPath, RestoreOptions{SingleTransaction: true}); err != nil {
		return fmt.Errorf("system schema restore failed: %w", err)
	}
	nc.recorder.Info(PhaseRestoreSystem, "system schemas restored", nil)

	op.SetPhase(PhaseRestoreUser, 85)
	if err := nc.restoreWithDNSRetry(ctx, &target, userPath, RestoreOptions{SingleTransaction: true}); err != nil {
		return fmt.Errorf("user schema restore failed: %w", err)
	}
	nc.recorder.Info(PhaseRestoreUser, "user schemas restored", nil)

	op.SetPhase(PhaseCleanup, 95)
	nc.recorder.Success(PhaseCleanup, "native clone completed", nil)
	return nil
}

// dumpWithDNSRetry runs one dump pass, retrying exactly once with an
// IP-substituted connection when the failure is a DNS resolution error and
// the connection has not already been substituted.
func (nc *NativeCloner) dumpWithDNSRetry(ctx context.Context, conn **PostgresConnection, outFile string, opts DumpOptions) error {
	err := nc.tools.Dump(ctx, *conn, outFile, opts)
	if err == nil || !IsTransientConnectivity(err) {
		return err
	}
	substituted := nc.substituteIP(*conn, err)
	if substituted == nil {
		return err
	}
	*conn = substituted
	return nc.tools.Dump(ctx, *conn, outFile, opts)
}

func (nc *NativeCloner) restoreWithDNSRetry(ctx context.Context, conn **PostgresConnection, inFile string, opts RestoreOptions) error {
	err := nc.tools.Restore(ctx, *conn, inFile, opts)
	if err == nil || !IsTransientConnectivity(err) {
		return err
	}
	substituted := nc.substituteIP(*conn, err)
	if substituted == nil {
		return err
	}
	*conn = substituted
	return nc.tools.Restore(ctx, *conn, inFile, opts)
}

// substituteIP resolves the host and returns the substituted connection, or
// nil when the connection was already substituted or resolution failed.
// Returning nil makes the original error terminal, which bounds the retry.
func (nc *NativeCloner) substituteIP(conn *PostgresConnection, cause error) *PostgresConnection {
	if conn.IsIPResolved {
		return nil
	}
	ip, ok := ResolveHostToIP(conn.Host)
	if !ok {
		return nil
	}
	nc.recorder.Warning(PhaseResolve, "DNS failure, retrying once with resolved IP",
		map[string]any{"host": conn.Host, "ip": ip, "error": cause.Error()})
	return conn.WithResolvedIP(ip)
}

// resetTargetStatements drops and recreates public with baseline grants, then
// truncates the system auth/storage tables. RLS on auth.users is toggled off
// around the truncate because row-level security can block the delete itself.
var resetTargetStatements = []string{
	"DROP SCHEMA IF EXISTS public CASCADE",
	"CREATE SCHEMA public",
	"GRANT ALL ON SCHEMA public TO postgres",
	"GRANT USAGE ON SCHEMA public TO anon, authenticated, service_role",
	"ALTER TABLE auth.users DISABLE ROW LEVEL SECURITY",
	"TRUNCATE TABLE storage.objects CASCADE",
	"TRUNCATE TABLE storage.buckets CASCADE",
	"TRUNCATE TABLE auth.identities CASCADE",
	"TRUNCATE TABLE auth.users CASCADE",
	"ALTER TABLE auth.users ENABLE ROW LEVEL SECURITY",
}

func (nc *NativeCloner) resetTarget(ctx context.Context, targetDB Querier) error {
	for _, stmt := range resetTargetStatements {
		if _, err := targetDB.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("reset statement %q failed: %w", stmt, err)
		}
	}

	// Correctness gate, not best effort: a non-empty users table here means
	// the restore would merge into stale data.
	var remaining int
	if err := targetDB.QueryRow(ctx, "SELECT COUNT(*) FROM auth.users").Scan(&remaining); err != nil {
		return fmt.Errorf("reset verification query failed: %w", err)
	}
	if remaining != 0 {
		return fmt.Errorf("reset verification failed: auth.users still has %d rows", remaining)
	}
	return nil
}

// sanitizeFile applies the dump sanitizer in place and records the
// function/trigger counts found in the dump.
func (nc *NativeCloner) sanitizeFile(path string, op *Operation) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read dump for sanitizing: %w", err)
	}
	sanitized := SanitizeDump(string(raw), SanitizeOptions{})
	if err := os.WriteFile(path, []byte(sanitized), 0o600); err != nil {
		return fmt.Errorf("failed to write sanitized dump: %w", err)
	}
	functions := strings.Count(sanitized, "CREATE FUNCTION")
	triggers := strings.Count(sanitized, "CREATE TRIGGER")
	op.AddRecords(0, int64(len(sanitized)))
	op.AddFunctionsTriggers(functions, triggers)
	nc.logger.Debug("dump sanitized",
		"file", path,
		"functions", functions,
		"triggers", triggers)
	return nil
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
