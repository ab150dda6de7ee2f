// Copyright 2025 Loft Manager Authors
// SPDX-License-Identifier: Apache-2.0

package anonymize

import "sort"

// FieldError records one per-field anonymization failure inside a batch.
type FieldError struct {
	Table  string `json:"table"`
	Column string `json:"column"`
	Row    int    `json:"row"`
	Err    string `json:"error"`
}

// Report aggregates the outcome of one batch pass.
type Report struct {
	TotalRows        int          `json:"total_rows"`
	AnonymizedRows   int          `json:"anonymized_rows"`
	AnonymizedFields []string     `json:"anonymized_fields"`
	Errors           []FieldError `json:"errors,omitempty"`
}

// AnonymizeBatch applies every matching rule to every row. Rows are copied,
// never mutated in place. A row counts as anonymized when at least one of its
// fields changed. Per-field failures are recorded in the report and the
// original value is kept; a failing field never aborts the batch.
func (e *Engine) AnonymizeBatch(rows []map[string]any, rules []Rule, table string) ([]map[string]any, *Report) {
	report := &Report{TotalRows: len(rows)}
	fields := make(map[string]bool)

	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		copied := make(map[string]any, len(row))
		for k, v := range row {
			copied[k] = v
		}

		rowChanged := false
		for _, rule := range rules {
			if rule.Table != table {
				continue
			}
			value, present := copied[rule.Column]
			if !present {
				continue
			}
			res := e.AnonymizeValue(value, rule, Context{
				Table:         table,
				Column:        rule.Column,
				OriginalValue: value,
				Row:           copied,
			})
			if errMsg, failed := res.Metadata["error"].(string); failed {
				report.Errors = append(report.Errors, FieldError{
					Table:  table,
					Column: rule.Column,
					Row:    i,
					Err:    errMsg,
				})
				continue
			}
			if res.WasAnonymized {
				copied[rule.Column] = res.Value
				fields[rule.Column] = true
				rowChanged = true
			}
		}
		if rowChanged {
			report.AnonymizedRows++
		}
		out[i] = copied
	}

	report.AnonymizedFields = make([]string, 0, len(fields))
	for f := range fields {
		report.AnonymizedFields = append(report.AnonymizedFields, f)
	}
	sort.Strings(report.AnonymizedFields)
	return out, report
}
