// Copyright 2025 Loft Manager Authors
// SPDX-License-Identifier: Apache-2.0

package envclone

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// fkConstraintQuery lists single-table FK edges from the catalog. Joining
// key_column_usage twice resolves the referenced column through the unique
// constraint the FK points at.
const fkConstraintQuery = `
SELECT
	kcu.constraint_name,
	kcu.table_name,
	kcu.column_name,
	kcu2.table_name AS referenced_table_name,
	kcu2.column_name AS referenced_column_name
FROM information_schema.key_column_usage AS kcu
JOIN information_schema.referential_constraints AS rc
	ON kcu.constraint_name = rc.constraint_name
	AND kcu.constraint_schema = rc.constraint_schema
JOIN information_schema.key_column_usage AS kcu2
	ON rc.unique_constraint_name = kcu2.constraint_name
	AND rc.unique_constraint_schema = kcu2.constraint_schema
	AND kcu.ordinal_position = kcu2.ordinal_position
WHERE kcu.table_schema = 'public'
	AND kcu.table_name = ANY($1::text[])
ORDER BY kcu.table_name, kcu.constraint_name, kcu.ordinal_position`

// DiscoverRelationships reads the foreign-key edges between the given public
// tables from the live catalog, so the relationship graph does not have to be
// declared by hand. Composite (multi-column) constraints are skipped: the
// remapper only rewrites single-column references, and the database still
// enforces the full constraint on insert.
func DiscoverRelationships(ctx context.Context, db Querier, tables []string, logger *slog.Logger) ([]Relationship, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(tables) == 0 {
		tables = CloneTableOrder()
	}
	sorted := make([]string, len(tables))
	copy(sorted, tables)
	sort.Strings(sorted)

	rows, err := db.Query(ctx, fkConstraintQuery, sorted)
	if err != nil {
		return nil, fmt.Errorf("failed to query foreign key constraints: %w", err)
	}
	defer rows.Close()

	type edge struct {
		constraint string
		rel        Relationship
	}
	var edges []edge
	for rows.Next() {
		var constraint string
		var rel Relationship
		if err := rows.Scan(&constraint, &rel.SourceTable, &rel.SourceColumn, &rel.TargetTable, &rel.TargetColumn); err != nil {
			return nil, fmt.Errorf("failed to scan foreign key constraint: %w", err)
		}
		edges = append(edges, edge{constraint: constraint, rel: rel})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating foreign key constraints: %w", err)
	}

	// Count columns per constraint so composites can be dropped whole.
	columnCount := make(map[string]int, len(edges))
	for _, e := range edges {
		columnCount[e.constraint]++
	}

	var out []Relationship
	for _, e := range edges {
		if columnCount[e.constraint] > 1 {
			logger.Debug("skipping composite foreign key",
				"constraint", e.constraint, "table", e.rel.SourceTable)
			continue
		}
		out = append(out, e.rel)
	}

	logger.Info("foreign keys discovered",
		"tables", len(sorted), "constraints", len(columnCount), "relationships", len(out))
	return out, nil
}
