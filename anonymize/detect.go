// Copyright 2025 Loft Manager Authors
// SPDX-License-Identifier: Apache-2.0

package anonymize

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"
)

// DataType is the coarse classification used for rule suggestion.
type DataType string

const (
	TypeString  DataType = "string"
	TypeNumber  DataType = "number"
	TypeBoolean DataType = "boolean"
	TypeDate    DataType = "date"
	TypeUUID    DataType = "uuid"
	TypeJSON    DataType = "json"
)

var uuidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006-01-02 15:04:05",
	"02/01/2006",
}

// DetectDataType classifies a value. String values are pattern-checked for
// UUID, date and JSON shapes before falling back to plain string.
func DetectDataType(value any) DataType {
	switch v := value.(type) {
	case bool:
		return TypeBoolean
	case int, int32, int64, float32, float64:
		return TypeNumber
	case time.Time:
		return TypeDate
	case map[string]any, []any:
		return TypeJSON
	case string:
		if uuidPattern.MatchString(v) {
			return TypeUUID
		}
		for _, layout := range dateLayouts {
			if _, err := time.Parse(layout, v); err == nil {
				return TypeDate
			}
		}
		trimmed := strings.TrimSpace(v)
		if (strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")) && json.Valid([]byte(trimmed)) {
			return TypeJSON
		}
		return TypeString
	default:
		return TypeString
	}
}

// SuggestRuleKind maps a column name onto an anonymization kind by substring
// heuristics. KindCustom means "no automatic rule, human judgement required".
func SuggestRuleKind(columnName string, dataType DataType) Kind {
	name := strings.ToLower(columnName)
	switch {
	case strings.Contains(name, "email"):
		return KindEmail
	case strings.Contains(name, "phone"):
		return KindPhone
	case strings.Contains(name, "address"):
		return KindAddress
	case strings.Contains(name, "amount"),
		strings.Contains(name, "price"),
		strings.Contains(name, "cost"),
		strings.Contains(name, "payment"),
		strings.Contains(name, "salary"):
		return KindFinancial
	case strings.Contains(name, "name"):
		return KindName
	default:
		return KindCustom
	}
}
