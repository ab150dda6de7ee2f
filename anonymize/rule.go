// Copyright 2025 Loft Manager Authors
// SPDX-License-Identifier: Apache-2.0

package anonymize

import (
	"fmt"
	"regexp"
)

// Kind identifies which generator a rule applies.
type Kind string

const (
	KindEmail     Kind = "email"
	KindName      Kind = "name"
	KindPhone     Kind = "phone"
	KindAddress   Kind = "address"
	KindFinancial Kind = "financial"
	KindCustom    Kind = "custom"
)

// Generator is a caller-supplied pure replacement function for custom rules.
type Generator func(original any) (any, error)

// Constraints bound the output of a generator. Zero values mean "unconstrained".
type Constraints struct {
	MinLength int
	MaxLength int
	Pattern   *regexp.Regexp
	MinValue  float64
	MaxValue  float64
}

// Rule declares how one column of one table is anonymized. Rules are
// immutable after construction; one rule governs one column for one pass.
type Rule struct {
	Table          string
	Column         string
	Kind           Kind
	PreserveFormat bool
	PreserveLength bool
	Constraints    Constraints

	generator Generator
}

// NewRule creates a rule for one of the built-in generator kinds.
// KindCustom is rejected here; use NewCustomRule so the generator requirement
// is enforced at construction time.
func NewRule(table, column string, kind Kind) (Rule, error) {
	if kind == KindCustom {
		return Rule{}, fmt.Errorf("custom rules require a generator, use NewCustomRule")
	}
	return Rule{Table: table, Column: column, Kind: kind}, nil
}

// MustRule is NewRule that panics on error, for fixed rule tables.
func MustRule(table, column string, kind Kind) Rule {
	r, err := NewRule(table, column, kind)
	if err != nil {
		panic(err)
	}
	return r
}

// NewCustomRule creates a rule backed by a caller-supplied generator.
func NewCustomRule(table, column string, gen Generator) (Rule, error) {
	if gen == nil {
		return Rule{}, fmt.Errorf("custom rule for %s.%s: generator is required", table, column)
	}
	return Rule{Table: table, Column: column, Kind: KindCustom, generator: gen}, nil
}

// WithPreserveFormat returns a copy of the rule with format preservation set.
func (r Rule) WithPreserveFormat() Rule {
	r.PreserveFormat = true
	return r
}

// WithConstraints returns a copy of the rule with output constraints set.
func (r Rule) WithConstraints(c Constraints) Rule {
	r.Constraints = c
	return r
}

// Matches reports whether the rule governs the given table and column.
func (r Rule) Matches(table, column string) bool {
	return r.Table == table && r.Column == column
}
