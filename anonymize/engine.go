// Copyright 2025 Loft Manager Authors
// SPDX-License-Identifier: Apache-2.0

// Package anonymize replaces sensitive field values with realistic but
// non-identifying substitutes. Email, name and phone generators are pure
// functions of (value, table) plus the fixed pools, so repeated runs over the
// same input produce the same output; address and financial generators are
// randomized.
package anonymize

import (
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math/rand"
	"sync"
)

// Context carries per-value information into a generator call.
type Context struct {
	Table                 string
	Column                string
	OriginalValue         any
	Row                   map[string]any
	PreserveRelationships bool
}

// Result is the outcome of anonymizing one value. Failures never surface as
// Go errors on this path; they are recorded under Metadata["error"] and the
// original value is carried through unchanged.
type Result struct {
	Value           any
	WasAnonymized   bool
	PreservedFormat bool
	Metadata        map[string]any
}

// Engine applies anonymization rules to values and row batches.
type Engine struct {
	logger *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewEngine creates an engine with a non-deterministic seed for the
// randomized generators.
func NewEngine(logger *slog.Logger) *Engine {
	return NewEngineWithSeed(logger, rand.Int63())
}

// NewEngineWithSeed creates an engine whose randomized generators (address,
// financial) draw from a fixed seed. Used by tests; the deterministic
// generators ignore the seed entirely.
func NewEngineWithSeed(logger *slog.Logger, seed int64) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		logger: logger,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// AnonymizeValue maps one raw value to its substitute according to rule.
// Nil input passes through untouched with WasAnonymized=false; the engine
// never fabricates a value where none existed.
func (e *Engine) AnonymizeValue(value any, rule Rule, ctx Context) Result {
	if value == nil {
		return Result{Value: nil, WasAnonymized: false}
	}

	out, preserved, err := e.applyRule(value, rule, ctx)
	if err != nil {
		e.logger.Debug("anonymization failed, keeping original value",
			"table", rule.Table, "column", rule.Column, "kind", rule.Kind, "error", err)
		return Result{
			Value:         value,
			WasAnonymized: false,
			Metadata:      map[string]any{"error": err.Error()},
		}
	}
	return Result{
		Value:           out,
		WasAnonymized:   !valuesEqual(out, value),
		PreservedFormat: preserved,
	}
}

func (e *Engine) applyRule(value any, rule Rule, ctx Context) (out any, preservedFormat bool, err error) {
	switch rule.Kind {
	case KindEmail:
		s, ok := value.(string)
		if !ok {
			return value, false, nil
		}
		return e.anonymizeEmail(s, rule)
	case KindName:
		s, ok := value.(string)
		if !ok {
			return value, false, nil
		}
		return e.anonymizeName(s, rule)
	case KindPhone:
		s, ok := value.(string)
		if !ok {
			return value, false, nil
		}
		return e.anonymizePhone(s, rule)
	case KindAddress:
		out, err = e.anonymizeAddress(value, rule)
		return out, false, err
	case KindFinancial:
		out, err = e.anonymizeFinancial(value, rule)
		return out, false, err
	case KindCustom:
		out, err = e.applyCustom(value, rule)
		return out, false, err
	default:
		return value, false, fmt.Errorf("unsupported anonymization kind %q", rule.Kind)
	}
}

// applyCustom invokes the caller-supplied generator. The generator is
// arbitrary external code, so panics are converted into the same
// error-not-thrown contract as ordinary failures.
func (e *Engine) applyCustom(value any, rule Rule) (out any, err error) {
	if rule.generator == nil {
		return value, fmt.Errorf("custom rule for %s.%s has no generator", rule.Table, rule.Column)
	}
	defer func() {
		if r := recover(); r != nil {
			out = value
			err = fmt.Errorf("custom generator panicked: %v", r)
		}
	}()
	out, err = rule.generator(value)
	if err != nil {
		return value, fmt.Errorf("custom generator: %w", err)
	}
	return out, nil
}

// shortHash derives a short lowercase hex token from (value, table).
// All deterministic generators are built on this.
func shortHash(value, table string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(table))
	_, _ = h.Write([]byte{'|'})
	_, _ = h.Write([]byte(value))
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:4])
}

// poolIndex deterministically maps (value, table, salt) onto a pool slot.
func poolIndex(value, table, salt string, poolLen int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(salt))
	_, _ = h.Write([]byte{'|'})
	_, _ = h.Write([]byte(table))
	_, _ = h.Write([]byte{'|'})
	_, _ = h.Write([]byte(value))
	return int(h.Sum32() % uint32(poolLen))
}

// hashDigits expands (value, table, salt) into n deterministic decimal digits.
func hashDigits(value, table, salt string, n int) string {
	digits := make([]byte, 0, n)
	round := 0
	for len(digits) < n {
		h := fnv.New64a()
		fmt.Fprintf(h, "%s|%s|%s|%d", salt, table, value, round)
		v := h.Sum64()
		for v > 0 && len(digits) < n {
			digits = append(digits, byte('0'+v%10))
			v /= 10
		}
		round++
	}
	return string(digits)
}

func valuesEqual(a, b any) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func (e *Engine) randIntn(n int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.Intn(n)
}

func (e *Engine) randFloat64() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.Float64()
}
