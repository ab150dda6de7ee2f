// Copyright 2025 Loft Manager Authors
// SPDX-License-Identifier: Apache-2.0

package envclone

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func loftRelationships() []Relationship {
	return []Relationship{
		{SourceTable: "reservations", SourceColumn: "loft_id", TargetTable: "lofts", TargetColumn: "id"},
		{SourceTable: "transactions", SourceColumn: "reservation_id", TargetTable: "reservations", TargetColumn: "id"},
	}
}

func TestCreateIDMapping_Deterministic(t *testing.T) {
	ids := []any{"a1", "b2", "c3"}

	first := NewRelationshipManager().CreateIDMapping("lofts", "id", ids)
	second := NewRelationshipManager().CreateIDMapping("lofts", "id", ids)
	require.Equal(t, first, second)
	require.Len(t, first, 3)
	for original, replacement := range first {
		require.NotEqual(t, original, replacement)
	}
}

func TestCreateIDMapping_ScopedByTableAndColumn(t *testing.T) {
	m := NewRelationshipManager()
	lofts := m.CreateIDMapping("lofts", "id", []any{"shared"})
	owners := m.CreateIDMapping("loft_owners", "id", []any{"shared"})
	require.NotEqual(t, lofts["shared"], owners["shared"])
}

func TestCreateIDMapping_NilExcluded(t *testing.T) {
	m := NewRelationshipManager()
	mapping := m.CreateIDMapping("lofts", "id", []any{"a1", nil, "b2"})
	require.Len(t, mapping, 2)
	require.NotContains(t, mapping, "<nil>")
}

func TestCreateIDMapping_NumericIDsStayNumeric(t *testing.T) {
	m := NewRelationshipManager()
	mapping := m.CreateIDMapping("currencies", "id", []any{int64(1), int64(2)})
	for _, replacement := range mapping {
		n, ok := replacement.(int64)
		require.True(t, ok, "numeric identifier replaced with %T", replacement)
		require.GreaterOrEqual(t, n, int64(0))
	}
}

func TestAnonymizedReference_NilAndUnmappedPassThrough(t *testing.T) {
	m := NewRelationshipManager()
	m.RegisterRelationships(loftRelationships())

	require.Nil(t, m.AnonymizedReference(nil, "reservations", "loft_id"))
	require.Equal(t, "orphan", m.AnonymizedReference("orphan", "reservations", "loft_id"))
	require.Equal(t, "x", m.AnonymizedReference("x", "reservations", "no_such_column"))
}

func TestAnonymizedReference_ResolvesThroughTargetMapping(t *testing.T) {
	m := NewRelationshipManager()
	m.RegisterRelationships(loftRelationships())
	mapping := m.CreateIDMapping("lofts", "id", []any{"loft-1"})

	got := m.AnonymizedReference("loft-1", "reservations", "loft_id")
	require.Equal(t, mapping["loft-1"], got)
}

func TestProcessRelationalData_TransitiveChain(t *testing.T) {
	m := NewRelationshipManager()
	m.RegisterRelationships(loftRelationships())

	tables := []TableData{
		{Name: "transactions", PKColumn: "id", Rows: []map[string]any{
			{"id": "t-1", "reservation_id": "r-1", "amount": 120.0},
		}},
		{Name: "reservations", PKColumn: "id", Rows: []map[string]any{
			{"id": "r-1", "loft_id": "l-1"},
		}},
		{Name: "lofts", PKColumn: "id", Rows: []map[string]any{
			{"id": "l-1", "name": "Loft Didouche"},
		}},
	}

	out, err := m.ProcessRelationalData(tables)
	require.NoError(t, err)

	byName := map[string]TableData{}
	for _, t2 := range out {
		byName[t2.Name] = t2
	}

	newLoftID := byName["lofts"].Rows[0]["id"]
	require.NotEqual(t, "l-1", newLoftID)
	require.Equal(t, newLoftID, byName["reservations"].Rows[0]["loft_id"])

	newReservationID := byName["reservations"].Rows[0]["id"]
	require.NotEqual(t, "r-1", newReservationID)
	require.Equal(t, newReservationID, byName["transactions"].Rows[0]["reservation_id"])

	// Integrity must hold after remapping.
	report := m.ValidateReferentialIntegrity(out)
	require.True(t, report.IsValid, "violations: %v", report.Errors)

	// Inputs must be untouched.
	require.Equal(t, "l-1", tables[2].Rows[0]["id"])
	require.Equal(t, "l-1", tables[1].Rows[0]["loft_id"])
}

func TestProcessRelationalData_NilForeignKeysSurvive(t *testing.T) {
	m := NewRelationshipManager()
	m.RegisterRelationships(loftRelationships())

	tables := []TableData{
		{Name: "lofts", PKColumn: "id", Rows: []map[string]any{{"id": "l-1"}}},
		{Name: "reservations", PKColumn: "id", Rows: []map[string]any{
			{"id": "r-1", "loft_id": nil},
		}},
	}

	out, err := m.ProcessRelationalData(tables)
	require.NoError(t, err)
	for _, table := range out {
		if table.Name == "reservations" {
			require.Nil(t, table.Rows[0]["loft_id"])
		}
	}
}

func TestProcessRelationalData_CycleIsError(t *testing.T) {
	m := NewRelationshipManager()
	m.RegisterRelationships([]Relationship{
		{SourceTable: "a", SourceColumn: "b_id", TargetTable: "b", TargetColumn: "id"},
		{SourceTable: "b", SourceColumn: "a_id", TargetTable: "a", TargetColumn: "id"},
	})

	_, err := m.ProcessRelationalData([]TableData{
		{Name: "a", PKColumn: "id"},
		{Name: "b", PKColumn: "id"},
	})
	require.ErrorContains(t, err, "cycle")
}

func TestValidateReferentialIntegrity_ReportsViolation(t *testing.T) {
	m := NewRelationshipManager()
	m.RegisterRelationships(loftRelationships())

	tables := []TableData{
		{Name: "lofts", PKColumn: "id", Rows: []map[string]any{{"id": "l-1"}}},
		{Name: "reservations", PKColumn: "id", Rows: []map[string]any{
			{"id": "r-1", "loft_id": "l-1"},
			{"id": "r-2", "loft_id": "l-missing"},
		}},
	}

	report := m.ValidateReferentialIntegrity(tables)
	require.False(t, report.IsValid)
	require.Len(t, report.Errors, 1)
	require.Equal(t, "l-missing", report.Errors[0].Value)
	require.Equal(t, 1, report.Errors[0].RowIndex)
	require.Contains(t, report.Errors[0].String(), "reservations.loft_id")
}

func TestValidateReferentialIntegrity_MissingTargetTableIsWarning(t *testing.T) {
	m := NewRelationshipManager()
	m.RegisterRelationships(loftRelationships())

	report := m.ValidateReferentialIntegrity([]TableData{
		{Name: "reservations", PKColumn: "id", Rows: []map[string]any{{"id": "r-1", "loft_id": "l-1"}}},
	})
	require.True(t, report.IsValid)
	require.NotEmpty(t, report.Warnings)
}

func TestExportImportMappings_RoundTrip(t *testing.T) {
	m := NewRelationshipManager()
	original := m.CreateIDMapping("lofts", "id", []any{"l-1", "l-2"})

	data, err := m.ExportMappings()
	require.NoError(t, err)

	restored := NewRelationshipManager()
	restored.RegisterRelationships(loftRelationships())
	require.NoError(t, restored.ImportMappings(data))

	got := restored.AnonymizedReference("l-1", "reservations", "loft_id")
	require.Equal(t, original["l-1"], got)
}

func TestImportMappings_BadJSON(t *testing.T) {
	err := NewRelationshipManager().ImportMappings([]byte("{nope"))
	require.Error(t, err)
}

func TestReset_ClearsState(t *testing.T) {
	m := NewRelationshipManager()
	m.RegisterRelationships(loftRelationships())
	m.CreateIDMapping("lofts", "id", []any{"l-1"})

	m.Reset()
	stats := m.Statistics()
	require.Zero(t, stats.Relationships)
	require.Zero(t, stats.Mappings)
	require.Zero(t, stats.MappedIDs)
}

func TestStatistics_Counts(t *testing.T) {
	m := NewRelationshipManager()
	m.RegisterRelationships(loftRelationships())
	m.CreateIDMapping("lofts", "id", []any{"l-1", "l-2"})
	m.CreateIDMapping("reservations", "id", []any{"r-1"})

	stats := m.Statistics()
	require.Equal(t, 2, stats.Relationships)
	require.Equal(t, 2, stats.Mappings)
	require.Equal(t, 3, stats.MappedIDs)
}
