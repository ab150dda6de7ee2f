// Copyright 2025 Loft Manager Authors
// SPDX-License-Identifier: Apache-2.0

package envclone

import (
	"context"
	"errors"
	"net"
	"os"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
)

// toolCall records one invocation of the fake tool runner.
type toolCall struct {
	op          string
	host        string
	ipResolved  bool
	file        string
	dumpOpts    DumpOptions
	restoreOpts RestoreOptions
}

// fakeToolRunner scripts pg_dump/psql behavior without spawning anything.
type fakeToolRunner struct {
	calls     []toolCall
	verifyErr error
	// dumpErr/restoreErr decide the outcome of the n-th dump/restore call
	// (1-based). nil funcs mean success.
	dumpErr    func(n int, conn *PostgresConnection) error
	restoreErr func(n int, conn *PostgresConnection) error
	// dumpContent is written to the dump file on successful dumps.
	dumpContent string
	// restoredContents collects file contents as seen at restore time.
	restoredContents []string

	dumps    int
	restores int
}

func (f *fakeToolRunner) Verify(context.Context) error {
	f.calls = append(f.calls, toolCall{op: "verify"})
	return f.verifyErr
}

func (f *fakeToolRunner) Dump(_ context.Context, conn *PostgresConnection, outFile string, opts DumpOptions) error {
	f.dumps++
	f.calls = append(f.calls, toolCall{op: "dump", host: conn.Host, ipResolved: conn.IsIPResolved, file: outFile, dumpOpts: opts})
	if f.dumpErr != nil {
		if err := f.dumpErr(f.dumps, conn); err != nil {
			return err
		}
	}
	return os.WriteFile(outFile, []byte(f.dumpContent), 0o600)
}

func (f *fakeToolRunner) Restore(_ context.Context, conn *PostgresConnection, inFile string, opts RestoreOptions) error {
	f.restores++
	f.calls = append(f.calls, toolCall{op: "restore", host: conn.Host, ipResolved: conn.IsIPResolved, file: inFile, restoreOpts: opts})
	if f.restoreErr != nil {
		if err := f.restoreErr(f.restores, conn); err != nil {
			return err
		}
	}
	raw, err := os.ReadFile(inFile)
	if err != nil {
		return err
	}
	f.restoredContents = append(f.restoredContents, string(raw))
	return nil
}

func dnsError(host string) error {
	return &TransientConnectivityError{Host: host, Err: errors.New("could not translate host name")}
}

func runClone(t *testing.T, tools *fakeToolRunner, targetDB Querier, source *PostgresConnection) error {
	t.Helper()
	if source == nil {
		source = testConn()
	}
	op := NewOperation(nil)
	op.Start()
	nc := NewNativeCloner(tools, NewLogRecorder(testLogger(), nil), testLogger())
	return nc.Clone(context.Background(), source, testConn(), targetDB, op)
}

func TestNativeClone_PhaseOrdering(t *testing.T) {
	tools := &fakeToolRunner{dumpContent: "SELECT 1;\n"}
	targetDB := &fakeQuerier{}

	require.NoError(t, runClone(t, tools, targetDB, nil))

	ops := make([]string, len(tools.calls))
	for i, call := range tools.calls {
		ops[i] = call.op
	}
	require.Equal(t, []string{"verify", "dump", "dump", "restore", "restore"}, ops)

	// First dump is the data-only system pass over auth/storage.
	system := tools.calls[1].dumpOpts
	require.True(t, system.DataOnly)
	require.True(t, system.Inserts)
	require.True(t, system.OnConflictDoNothing)
	require.Equal(t, []string{"auth", "storage"}, system.Schemas)
	require.Contains(t, system.ExcludeTables, "auth.refresh_tokens")

	// Second dump is the full user-schema pass.
	user := tools.calls[2].dumpOpts
	require.False(t, user.DataOnly)
	require.Contains(t, user.ExcludeSchemas, "auth")
	require.Contains(t, user.ExcludeSchemas, "storage")

	// Both restores run in a single transaction, system first.
	require.True(t, tools.calls[3].restoreOpts.SingleTransaction)
	require.True(t, tools.calls[4].restoreOpts.SingleTransaction)
	require.Equal(t, tools.calls[1].file, tools.calls[3].file)
	require.Equal(t, tools.calls[2].file, tools.calls[4].file)

	// The target was reset before the restores: every reset statement ran, in
	// order, and the verification count was checked.
	require.Equal(t, resetTargetStatements, targetDB.execs)
	require.Contains(t, targetDB.queries[len(targetDB.queries)-1], "COUNT(*) FROM auth.users")
}

func TestNativeClone_VerifyFailureStopsEverything(t *testing.T) {
	tools := &fakeToolRunner{verifyErr: &ToolUnavailableError{Tool: "pg_dump", Err: errors.New("not found")}}
	targetDB := forbiddenQuerier{}

	err := runClone(t, tools, targetDB, nil)
	var unavailable *ToolUnavailableError
	require.ErrorAs(t, err, &unavailable)
	require.Zero(t, tools.dumps)
}

func TestNativeClone_ResetGateBlocksRestore(t *testing.T) {
	tools := &fakeToolRunner{dumpContent: "SELECT 1;\n"}
	targetDB := &fakeQuerier{
		queryRowFn: func(sql string) pgx.Row {
			return &fakeRow{values: []any{5}}
		},
	}

	err := runClone(t, tools, targetDB, nil)
	require.ErrorContains(t, err, "still has 5 rows")
	require.Zero(t, tools.restores)
}

func TestNativeClone_SanitizesDumpsBeforeRestore(t *testing.T) {
	tools := &fakeToolRunner{dumpContent: "SET transaction_timeout = 0;\nGRANT ALL ON SCHEMA public TO admin;\n"}

	require.NoError(t, runClone(t, tools, &fakeQuerier{}, nil))
	require.Len(t, tools.restoredContents, 2)
	for _, content := range tools.restoredContents {
		require.Contains(t, content, "SET statement_timeout = 0;")
		require.Contains(t, content, "TO service_role;")
		require.NotContains(t, content, "transaction_timeout")
	}
}

func TestNativeClone_CountsFunctionsAndTriggers(t *testing.T) {
	tools := &fakeToolRunner{dumpContent: "CREATE FUNCTION public.touch() RETURNS trigger AS $$ BEGIN END $$;\n" +
		"CREATE FUNCTION public.audit() RETURNS trigger AS $$ BEGIN END $$;\n" +
		"CREATE TRIGGER lofts_touch BEFORE UPDATE ON public.lofts EXECUTE FUNCTION public.touch();\n"}

	op := NewOperation(nil)
	op.Start()
	nc := NewNativeCloner(tools, NewLogRecorder(testLogger(), nil), testLogger())
	require.NoError(t, nc.Clone(context.Background(), testConn(), testConn(), &fakeQuerier{}, op))

	// Both the system and user dump passes carry the same content here, so
	// each definition is counted twice.
	stats := op.Statistics()
	require.Equal(t, 4, stats.FunctionsCloned)
	require.Equal(t, 2, stats.TriggersCloned)
}

func TestNativeClone_DNSRetryExactlyOnce(t *testing.T) {
	// Using localhost so the IP substitution actually resolves.
	source := &PostgresConnection{Host: "localhost", Port: 5432, Database: "postgres", User: "postgres", Password: "p"}

	tools := &fakeToolRunner{
		dumpContent: "SELECT 1;\n",
		dumpErr: func(n int, conn *PostgresConnection) error {
			if n == 1 {
				return dnsError(conn.Host)
			}
			return nil
		},
	}

	require.NoError(t, runClone(t, tools, &fakeQuerier{}, source))

	// The first dump failed on DNS, the second ran against the resolved IP,
	// and the user-schema pass reused the substituted connection.
	require.Equal(t, 3, tools.dumps)
	require.Equal(t, "localhost", tools.calls[1].host)
	require.True(t, tools.calls[2].ipResolved)
	require.NotNil(t, net.ParseIP(tools.calls[2].host))
	require.True(t, tools.calls[3].ipResolved)
}

func TestNativeClone_DNSRetryNotRepeated(t *testing.T) {
	source := &PostgresConnection{Host: "127.0.0.1", Port: 5432, Database: "postgres", User: "postgres", Password: "p", IsIPResolved: true}

	tools := &fakeToolRunner{
		dumpErr: func(n int, conn *PostgresConnection) error {
			return dnsError(conn.Host)
		},
	}

	err := runClone(t, tools, &fakeQuerier{}, source)
	require.True(t, IsTransientConnectivity(err))
	require.Equal(t, 1, tools.dumps, "an already-substituted connection must not retry")
}

func TestNativeClone_NonDNSDumpErrorNotRetried(t *testing.T) {
	tools := &fakeToolRunner{
		dumpErr: func(n int, conn *PostgresConnection) error {
			return errors.New("permission denied")
		},
	}

	err := runClone(t, tools, &fakeQuerier{}, nil)
	require.ErrorContains(t, err, "permission denied")
	require.Equal(t, 1, tools.dumps)
}

func TestNativeClone_TempFilesRemovedOnFailure(t *testing.T) {
	tools := &fakeToolRunner{
		dumpContent: "SELECT 1;\n",
		restoreErr: func(n int, conn *PostgresConnection) error {
			return &RestoreTransactionError{Stderr: "boom", Err: errors.New("exit status 3")}
		},
	}

	err := runClone(t, tools, &fakeQuerier{}, nil)
	require.Error(t, err)

	for _, call := range tools.calls {
		if call.file == "" {
			continue
		}
		_, statErr := os.Stat(call.file)
		require.True(t, os.IsNotExist(statErr), "temp file %s not cleaned up", call.file)
	}
}

func TestNativeClone_TempFilesRemovedOnSuccess(t *testing.T) {
	tools := &fakeToolRunner{dumpContent: "SELECT 1;\n"}
	require.NoError(t, runClone(t, tools, &fakeQuerier{}, nil))

	for _, call := range tools.calls {
		if call.file == "" {
			continue
		}
		_, statErr := os.Stat(call.file)
		require.True(t, os.IsNotExist(statErr), "temp file %s not cleaned up", call.file)
	}
}
