// Copyright 2025 Loft Manager Authors
// SPDX-License-Identifier: Apache-2.0

package envclone

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/nextjsreact/loft-envclone/anonymize"
)

// Querier is the subset of pgxpool.Pool the pipeline issues SQL through.
// Narrow on purpose so tests can substitute fakes.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// CopyOptions configures a row-level copy pass.
type CopyOptions struct {
	BatchSize          int
	Anonymize          bool
	PreserveTimestamps bool
}

// DefaultCopyOptions returns the copy defaults.
func DefaultCopyOptions() CopyOptions {
	return CopyOptions{BatchSize: 500, Anonymize: true, PreserveTimestamps: true}
}

// TableCopyError records one failed table inside a copy pass.
type TableCopyError struct {
	Table string `json:"table"`
	Err   string `json:"error"`
}

// CopyResult aggregates a full copy pass. Success is true only when zero
// per-table errors accumulated.
type CopyResult struct {
	Success       bool             `json:"success"`
	TablesCopied  []string         `json:"tables_copied"`
	RecordsCopied int64            `json:"records_copied"`
	Errors        []TableCopyError `json:"errors,omitempty"`
}

// Copier moves rows table by table from source to target, applying
// anonymization inline. Used when native dump/restore is unavailable or
// insufficient.
type Copier struct {
	source   Querier
	target   Querier
	engine   *anonymize.Engine
	recorder *LogRecorder
	logger   *slog.Logger

	// rules maps table name to the anonymization rules applied to its pages.
	rules map[string][]anonymize.Rule
	// tables is the ordered table list to walk; defaults to the known tables.
	tables []string
}

// NewCopier creates a copier between two databases.
func NewCopier(source, target Querier, engine *anonymize.Engine, recorder *LogRecorder, logger *slog.Logger) *Copier {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = NewLogRecorder(logger, nil)
	}
	if engine == nil {
		engine = anonymize.NewEngine(logger)
	}
	return &Copier{
		source:   source,
		target:   target,
		engine:   engine,
		recorder: recorder,
		logger:   logger,
		rules:    DefaultCloneRules(),
		tables:   CloneTableOrder(),
	}
}

// SetTables overrides the ordered table list the copier walks. The order
// must keep referenced tables ahead of referencing tables.
func (c *Copier) SetTables(tables []string) {
	c.tables = tables
}

// SetRules replaces the per-table anonymization rule sets.
func (c *Copier) SetRules(rules map[string][]anonymize.Rule) {
	c.rules = rules
}

// DefaultCloneRules returns the anonymization rules applied during an
// anonymizing clone of the well-known tables.
func DefaultCloneRules() map[string][]anonymize.Rule {
	return map[string][]anonymize.Rule{
		"profiles": {
			anonymize.MustRule("profiles", "email", anonymize.KindEmail),
			anonymize.MustRule("profiles", "phone", anonymize.KindPhone).WithPreserveFormat(),
			anonymize.MustRule("profiles", "full_name", anonymize.KindName).WithPreserveFormat(),
		},
		"loft_owners": {
			anonymize.MustRule("loft_owners", "email", anonymize.KindEmail),
			anonymize.MustRule("loft_owners", "phone", anonymize.KindPhone).WithPreserveFormat(),
			anonymize.MustRule("loft_owners", "name", anonymize.KindName).WithPreserveFormat(),
			anonymize.MustRule("loft_owners", "address", anonymize.KindAddress),
		},
		"reservations": {
			anonymize.MustRule("reservations", "guest_name", anonymize.KindName).WithPreserveFormat(),
			anonymize.MustRule("reservations", "guest_email", anonymize.KindEmail),
			anonymize.MustRule("reservations", "guest_phone", anonymize.KindPhone).WithPreserveFormat(),
		},
	}
}

// CopyAll walks the known tables in dependency order (parents before
// children). A failing table is recorded and the pass moves on; one bad
// table never aborts the whole copy.
func (c *Copier) CopyAll(ctx context.Context, opts CopyOptions) (*CopyResult, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultCopyOptions().BatchSize
	}

	result := &CopyResult{Success: true}
	for _, table := range c.tables {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		copied, err := c.copyTable(ctx, table, opts)
		result.RecordsCopied += copied
		if err != nil {
			result.Success = false
			result.Errors = append(result.Errors, TableCopyError{Table: table, Err: err.Error()})
			c.recorder.Error(PhaseCopy, fmt.Sprintf("table %s failed", table), map[string]any{"error": err.Error()})
			continue
		}
		result.TablesCopied = append(result.TablesCopied, table)
		c.recorder.Info(PhaseCopy, fmt.Sprintf("table %s copied", table), map[string]any{"records": copied})
	}
	return result, nil
}

// copyTable pages through one table until a short or empty page terminates
// the loop, anonymizing and inserting each page.
func (c *Copier) copyTable(ctx context.Context, table string, opts CopyOptions) (int64, error) {
	var copied int64
	offset := 0
	for {
		rows, err := c.fetchPage(ctx, table, opts.BatchSize, offset)
		if err != nil {
			return copied, fmt.Errorf("failed to read page at offset %d: %w", offset, err)
		}
		if len(rows) == 0 {
			break
		}

		if opts.Anonymize {
			if rules := c.rules[table]; len(rules) > 0 {
				anonymized, report := c.engine.AnonymizeBatch(rows, rules, table)
				rows = anonymized
				for _, fieldErr := range report.Errors {
					c.recorder.Warning(PhaseAnonymize,
						fmt.Sprintf("field %s.%s kept original value", fieldErr.Table, fieldErr.Column),
						map[string]any{"row": fieldErr.Row, "error": fieldErr.Err})
				}
			}
		}

		if err := c.insertPage(ctx, table, rows); err != nil {
			return copied, fmt.Errorf("failed to insert page at offset %d: %w", offset, err)
		}

		copied += int64(len(rows))
		c.recorder.Info(PhaseCopy, fmt.Sprintf("table %s progress", table),
			map[string]any{"copied": copied, "batch_size": opts.BatchSize})

		if len(rows) < opts.BatchSize {
			break
		}
		offset += opts.BatchSize
	}
	return copied, nil
}

func (c *Copier) fetchPage(ctx context.Context, table string, limit, offset int) ([]map[string]any, error) {
	query := fmt.Sprintf("SELECT * FROM %s ORDER BY 1 LIMIT %d OFFSET %d",
		pq.QuoteIdentifier(table), limit, offset)
	rows, err := c.source.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []map[string]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(map[string]any, len(fields))
		for i, fd := range fields {
			row[fd.Name] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (c *Copier) insertPage(ctx context.Context, table string, rows []map[string]any) error {
	for _, row := range rows {
		columns := make([]string, 0, len(row))
		for col := range row {
			columns = append(columns, col)
		}
		// Stable column order keeps statements cacheable.
		sort.Strings(columns)

		quoted := make([]string, len(columns))
		placeholders := make([]string, len(columns))
		args := make([]any, len(columns))
		for i, col := range columns {
			quoted[i] = pq.QuoteIdentifier(col)
			placeholders[i] = fmt.Sprintf("$%d", i+1)
			args[i] = row[col]
		}

		query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT DO NOTHING",
			pq.QuoteIdentifier(table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
		if _, err := execWithRetry(ctx, c.target, query, args...); err != nil {
			return err
		}
	}
	return nil
}
