// Copyright 2025 Loft Manager Authors
// SPDX-License-Identifier: Apache-2.0

package envclone

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// mappingNamespace seeds deterministic replacement UUIDs. Fixed so the same
// original ID always maps to the same replacement across runs and processes.
var mappingNamespace = uuid.MustParse("6f1c24b8-5c1a-4a70-9d2e-3b8f4e9a1c55")

// Relationship declares one foreign-key edge: SourceTable.SourceColumn
// references TargetTable.TargetColumn.
type Relationship struct {
	SourceTable  string `json:"source_table"`
	SourceColumn string `json:"source_column"`
	TargetTable  string `json:"target_table"`
	TargetColumn string `json:"target_column"`
	Type         string `json:"relationship_type,omitempty"`
}

// TableData is one table's rows flowing through relational processing.
type TableData struct {
	Name     string
	PKColumn string
	Rows     []map[string]any
}

// IntegrityViolation is one broken foreign-key reference with enough detail
// to debug the offending value.
type IntegrityViolation struct {
	Relationship Relationship `json:"relationship"`
	Value        any          `json:"value"`
	RowIndex     int          `json:"row_index"`
}

func (v IntegrityViolation) String() string {
	return fmt.Sprintf("%s.%s value %v has no match in %s.%s (row %d)",
		v.Relationship.SourceTable, v.Relationship.SourceColumn, v.Value,
		v.Relationship.TargetTable, v.Relationship.TargetColumn, v.RowIndex)
}

// IntegrityReport is the outcome of referential-integrity validation.
type IntegrityReport struct {
	IsValid  bool                 `json:"is_valid"`
	Errors   []IntegrityViolation `json:"errors,omitempty"`
	Warnings []string             `json:"warnings,omitempty"`
}

// RelationshipStatistics summarizes the manager's current state.
type RelationshipStatistics struct {
	Relationships int `json:"relationships"`
	Mappings      int `json:"mappings"`
	MappedIDs     int `json:"mapped_ids"`
}

// RelationshipManager tracks foreign-key edges and maintains deterministic
// identifier remapping so cloned data keeps referential integrity. It is an
// explicit instance, not a global: one manager per operation, Reset between
// unrelated runs.
type RelationshipManager struct {
	mu            sync.RWMutex
	relationships []Relationship
	// mappings is keyed "table.column" then by the printed original ID.
	mappings map[string]map[string]any
}

// NewRelationshipManager creates an empty manager.
func NewRelationshipManager() *RelationshipManager {
	return &RelationshipManager{
		mappings: make(map[string]map[string]any),
	}
}

// RegisterRelationships adds edges to the dependency graph. Purely additive.
func (m *RelationshipManager) RegisterRelationships(edges []Relationship) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.relationships = append(m.relationships, edges...)
}

// Relationships returns a copy of the registered edges.
func (m *RelationshipManager) Relationships() []Relationship {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Relationship, len(m.relationships))
	copy(out, m.relationships)
	return out
}

func mappingKey(table, column string) string {
	return table + "." + column
}

// CreateIDMapping builds a deterministic original->replacement map for one
// table column. Nil originals are excluded: never mapped, never dereferenced.
// The same input set always produces the same mapping, across calls and
// across processes.
func (m *RelationshipManager) CreateIDMapping(table, column string, originalIDs []any) map[string]any {
	mapping := make(map[string]any, len(originalIDs))
	for _, id := range originalIDs {
		if id == nil {
			continue
		}
		mapping[fmt.Sprint(id)] = deterministicReplacement(table, column, id)
	}

	m.mu.Lock()
	m.mappings[mappingKey(table, column)] = mapping
	m.mu.Unlock()
	return mapping
}

// deterministicReplacement derives the replacement identifier from
// (table, column, original). String identifiers become SHA1-namespace UUIDs;
// numeric identifiers become stable positive integers.
func deterministicReplacement(table, column string, id any) any {
	seed := fmt.Sprintf("%s|%s|%v", table, column, id)
	switch id.(type) {
	case int, int32, int64, float64:
		h := fnv.New64a()
		_, _ = h.Write([]byte(seed))
		return int64(h.Sum64() % 1_000_000_000)
	default:
		return uuid.NewSHA1(mappingNamespace, []byte(seed)).String()
	}
}

// AnonymizedReference resolves an original foreign-key value through the
// mapping registered for the relationship's target. Nil passes through; an
// unknown relationship or unmapped value returns the original unchanged —
// references are never fabricated.
func (m *RelationshipManager) AnonymizedReference(originalID any, sourceTable, sourceColumn string) any {
	if originalID == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, rel := range m.relationships {
		if rel.SourceTable != sourceTable || rel.SourceColumn != sourceColumn {
			continue
		}
		mapping := m.mappings[mappingKey(rel.TargetTable, rel.TargetColumn)]
		if mapping == nil {
			return originalID
		}
		if replacement, ok := mapping[fmt.Sprint(originalID)]; ok {
			return replacement
		}
		return originalID
	}
	return originalID
}

// ProcessRelationalData remaps primary keys and foreign keys across tables in
// dependency order (referenced before referencing), so a child's remapped key
// always points at an already-remapped parent. Transitive chains work because
// each table's mapping is registered before its dependents are processed.
func (m *RelationshipManager) ProcessRelationalData(tables []TableData) ([]TableData, error) {
	order, err := m.dependencyOrder(tables)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]*TableData, len(tables))
	out := make([]TableData, len(tables))
	for i, t := range tables {
		copied := TableData{Name: t.Name, PKColumn: t.PKColumn, Rows: make([]map[string]any, len(t.Rows))}
		if copied.PKColumn == "" {
			copied.PKColumn = "id"
		}
		for j, row := range t.Rows {
			dup := make(map[string]any, len(row))
			for k, v := range row {
				dup[k] = v
			}
			copied.Rows[j] = dup
		}
		out[i] = copied
		byName[t.Name] = &out[i]
	}

	for _, name := range order {
		table := byName[name]
		if table == nil {
			continue
		}

		// Remap this table's primary keys first so dependents can resolve them.
		ids := make([]any, 0, len(table.Rows))
		for _, row := range table.Rows {
			ids = append(ids, row[table.PKColumn])
		}
		mapping := m.CreateIDMapping(table.Name, table.PKColumn, ids)
		for _, row := range table.Rows {
			if v := row[table.PKColumn]; v != nil {
				if replacement, ok := mapping[fmt.Sprint(v)]; ok {
					row[table.PKColumn] = replacement
				}
			}
		}

		// Then rewrite every foreign key this table holds.
		for _, rel := range m.Relationships() {
			if rel.SourceTable != table.Name {
				continue
			}
			for _, row := range table.Rows {
				if v, present := row[rel.SourceColumn]; present && v != nil {
					row[rel.SourceColumn] = m.AnonymizedReference(v, rel.SourceTable, rel.SourceColumn)
				}
			}
		}
	}
	return out, nil
}

// dependencyOrder topologically sorts the given tables against the
// registered edges using Kahn's algorithm with deterministic tie-breaking.
// A cycle is a hard error: the acyclic graph precondition is validated here
// instead of silently assumed.
func (m *RelationshipManager) dependencyOrder(tables []TableData) ([]string, error) {
	present := make(map[string]bool, len(tables))
	for _, t := range tables {
		present[t.Name] = true
	}

	inDegree := make(map[string]int, len(tables))
	dependents := make(map[string][]string)
	for name := range present {
		inDegree[name] = 0
	}
	for _, rel := range m.Relationships() {
		if !present[rel.SourceTable] || !present[rel.TargetTable] || rel.SourceTable == rel.TargetTable {
			continue
		}
		inDegree[rel.SourceTable]++
		dependents[rel.TargetTable] = append(dependents[rel.TargetTable], rel.SourceTable)
	}

	queue := make([]string, 0, len(inDegree))
	for name, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, name)
		}
	}
	sort.Strings(queue)

	var order []string
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		order = append(order, current)

		children := dependents[current]
		sort.Strings(children)
		for _, child := range children {
			inDegree[child]--
			if inDegree[child] == 0 {
				i := sort.SearchStrings(queue, child)
				queue = append(queue, "")
				copy(queue[i+1:], queue[i:])
				queue[i] = child
			}
		}
	}

	if len(order) != len(present) {
		return nil, fmt.Errorf("relationship graph contains a cycle: processed %d of %d tables", len(order), len(present))
	}
	return order, nil
}

// ValidateReferentialIntegrity checks that every non-nil foreign-key value in
// the given tables resolves to an existing key in its target table.
// Violations are collected, not raised.
func (m *RelationshipManager) ValidateReferentialIntegrity(tables []TableData) IntegrityReport {
	report := IntegrityReport{IsValid: true}

	byName := make(map[string]TableData, len(tables))
	for _, t := range tables {
		byName[t.Name] = t
	}

	for _, rel := range m.Relationships() {
		source, ok := byName[rel.SourceTable]
		if !ok {
			continue
		}
		target, ok := byName[rel.TargetTable]
		if !ok {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("target table %s for relationship %s.%s is not present", rel.TargetTable, rel.SourceTable, rel.SourceColumn))
			continue
		}

		targetValues := make(map[string]bool, len(target.Rows))
		for _, row := range target.Rows {
			if v := row[rel.TargetColumn]; v != nil {
				targetValues[fmt.Sprint(v)] = true
			}
		}

		for i, row := range source.Rows {
			v, present := row[rel.SourceColumn]
			if !present || v == nil {
				continue
			}
			if !targetValues[fmt.Sprint(v)] {
				report.IsValid = false
				report.Errors = append(report.Errors, IntegrityViolation{
					Relationship: rel,
					Value:        v,
					RowIndex:     i,
				})
			}
		}
	}
	return report
}

// Statistics reports the manager's current state for introspection.
func (m *RelationshipManager) Statistics() RelationshipStatistics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := RelationshipStatistics{
		Relationships: len(m.relationships),
		Mappings:      len(m.mappings),
	}
	for _, mapping := range m.mappings {
		stats.MappedIDs += len(mapping)
	}
	return stats
}

// ExportMappings serializes the mapping state for cross-process reuse, for
// example when resuming a partially completed clone.
func (m *RelationshipManager) ExportMappings() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return json.Marshal(m.mappings)
}

// ImportMappings restores previously exported mapping state.
func (m *RelationshipManager) ImportMappings(data []byte) error {
	var mappings map[string]map[string]any
	if err := json.Unmarshal(data, &mappings); err != nil {
		return fmt.Errorf("failed to import mappings: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range mappings {
		m.mappings[k] = v
	}
	return nil
}

// Reset clears all registered relationships and mappings so the manager can
// be reused for an unrelated operation without leaking state.
func (m *RelationshipManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.relationships = nil
	m.mappings = make(map[string]map[string]any)
}
