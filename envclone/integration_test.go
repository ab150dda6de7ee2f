// Copyright 2025 Loft Manager Authors
// SPDX-License-Identifier: Apache-2.0

package envclone

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/nextjsreact/loft-envclone/anonymize"
)

// integrationHarness runs a real PostgreSQL with a source and a target
// database so the copier and deleter are exercised against actual FK
// constraints.
type integrationHarness struct {
	t         *testing.T
	ctx       context.Context
	container *postgres.PostgresContainer
	source    *pgxpool.Pool
	target    *pgxpool.Pool
}

const integrationSchema = `
CREATE TABLE profiles (
	id TEXT PRIMARY KEY,
	email TEXT,
	full_name TEXT,
	phone TEXT
);
CREATE TABLE lofts (
	id TEXT PRIMARY KEY,
	name TEXT
);
CREATE TABLE reservations (
	id TEXT PRIMARY KEY,
	loft_id TEXT REFERENCES lofts(id),
	guest_name TEXT,
	guest_email TEXT,
	guest_phone TEXT
);
`

func newIntegrationHarness(t *testing.T) *integrationHarness {
	if testing.Short() {
		t.Skip("integration test requires Docker")
	}
	ctx := context.Background()

	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		postgres.WithDatabase("envclone_source"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)

	sourceStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	source, err := pgxpool.New(ctx, sourceStr)
	require.NoError(t, err)

	_, err = source.Exec(ctx, "CREATE DATABASE envclone_target")
	require.NoError(t, err)

	target, err := pgxpool.New(ctx, strings.Replace(sourceStr, "/envclone_source?", "/envclone_target?", 1))
	require.NoError(t, err)

	for _, pool := range []*pgxpool.Pool{source, target} {
		_, err = pool.Exec(ctx, integrationSchema)
		require.NoError(t, err)
	}

	h := &integrationHarness{t: t, ctx: ctx, container: container, source: source, target: target}
	t.Cleanup(h.cleanup)
	return h
}

func (h *integrationHarness) cleanup() {
	h.source.Close()
	h.target.Close()
	_ = h.container.Terminate(h.ctx)
}

func (h *integrationHarness) seedSource() {
	statements := []string{
		`INSERT INTO profiles (id, email, full_name, phone) VALUES
			('u-1', 'amine@example.com', 'Amine Benali', '0551234567'),
			('u-2', 'karim@example.com', 'Karim Cherif', '0661234567')`,
		`INSERT INTO lofts (id, name) VALUES ('l-1', 'Loft Didouche'), ('l-2', 'Loft Hydra')`,
		`INSERT INTO reservations (id, loft_id, guest_name, guest_email, guest_phone) VALUES
			('r-1', 'l-1', 'Yanis Haddad', 'yanis@example.com', '0771234567')`,
	}
	for _, stmt := range statements {
		_, err := h.source.Exec(h.ctx, stmt)
		require.NoError(h.t, err)
	}
}

func (h *integrationHarness) countRows(pool *pgxpool.Pool, table string) int {
	var n int
	err := pool.QueryRow(h.ctx, "SELECT COUNT(*) FROM "+table).Scan(&n)
	require.NoError(h.t, err)
	return n
}

func TestIntegration_CopyAllAnonymizes(t *testing.T) {
	h := newIntegrationHarness(t)
	h.seedSource()

	c := NewCopier(h.source, h.target, anonymize.NewEngine(testLogger()), nil, testLogger())
	c.SetTables([]string{"profiles", "lofts", "reservations"})

	result, err := c.CopyAll(h.ctx, CopyOptions{BatchSize: 100, Anonymize: true})
	require.NoError(t, err)
	require.True(t, result.Success, "errors: %v", result.Errors)
	require.Equal(t, int64(5), result.RecordsCopied)

	require.Equal(t, 2, h.countRows(h.target, "profiles"))
	require.Equal(t, 1, h.countRows(h.target, "reservations"))

	var email, fullName string
	err = h.target.QueryRow(h.ctx, "SELECT email, full_name FROM profiles WHERE id = 'u-1'").Scan(&email, &fullName)
	require.NoError(t, err)
	require.NotEqual(t, "amine@example.com", email)
	require.True(t, strings.HasSuffix(email, "@"+anonymize.TestDomain))
	require.NotEqual(t, "Amine Benali", fullName)

	// Foreign keys survived the copy because parents were inserted first.
	var loftID string
	err = h.target.QueryRow(h.ctx, "SELECT loft_id FROM reservations WHERE id = 'r-1'").Scan(&loftID)
	require.NoError(t, err)
	require.Equal(t, "l-1", loftID)
}

func TestIntegration_CopyIsIdempotent(t *testing.T) {
	h := newIntegrationHarness(t)
	h.seedSource()

	c := NewCopier(h.source, h.target, anonymize.NewEngine(testLogger()), nil, testLogger())
	c.SetTables([]string{"profiles", "lofts", "reservations"})

	_, err := c.CopyAll(h.ctx, CopyOptions{BatchSize: 100, Anonymize: true})
	require.NoError(t, err)
	result, err := c.CopyAll(h.ctx, CopyOptions{BatchSize: 100, Anonymize: true})
	require.NoError(t, err)
	require.True(t, result.Success)

	// ON CONFLICT DO NOTHING keeps the second pass from duplicating rows.
	require.Equal(t, 2, h.countRows(h.target, "profiles"))
	require.Equal(t, 2, h.countRows(h.target, "lofts"))
	require.Equal(t, 1, h.countRows(h.target, "reservations"))
}

func TestIntegration_DeleteAllDataRespectsForeignKeys(t *testing.T) {
	h := newIntegrationHarness(t)
	h.seedSource()

	c := NewCopier(h.source, h.target, anonymize.NewEngine(testLogger()), nil, testLogger())
	c.SetTables([]string{"profiles", "lofts", "reservations"})
	_, err := c.CopyAll(h.ctx, CopyOptions{BatchSize: 100, Anonymize: false})
	require.NoError(t, err)

	d := NewDeleter(h.target, nil, testLogger())
	result, err := d.DeleteAllData(h.ctx, "integration-dev", DeleteOptions{ConfirmDeletion: true})
	require.NoError(t, err)
	require.True(t, result.Success, "errors: %v", result.Errors)
	require.Equal(t, int64(5), result.RowsDeleted)

	require.Zero(t, h.countRows(h.target, "profiles"))
	require.Zero(t, h.countRows(h.target, "lofts"))
	require.Zero(t, h.countRows(h.target, "reservations"))

	// Source must be untouched.
	require.Equal(t, 2, h.countRows(h.source, "profiles"))
}
