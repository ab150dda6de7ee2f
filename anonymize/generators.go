// Copyright 2025 Loft Manager Authors
// SPDX-License-Identifier: Apache-2.0

package anonymize

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// anonymizeEmail replaces the local part with a deterministic hash token.
// Invalid email shapes pass through unchanged. With PreserveFormat the
// original domain is kept, otherwise TestDomain is substituted.
func (e *Engine) anonymizeEmail(value string, rule Rule) (any, bool, error) {
	if !emailPattern.MatchString(value) {
		return value, false, nil
	}
	domain := TestDomain
	preserved := false
	if rule.PreserveFormat {
		domain = value[strings.LastIndex(value, "@")+1:]
		preserved = true
	}
	return fmt.Sprintf("user%s@%s", shortHash(value, rule.Table), domain), preserved, nil
}

// anonymizeName maps a personal name into the fixed name pools. With
// PreserveFormat each whitespace token is mapped positionally (same token in
// the same table always maps to the same replacement, which keeps family
// members consistent); otherwise the whole value is replaced with a
// hash-selected first/last pair.
func (e *Engine) anonymizeName(value string, rule Rule) (any, bool, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return value, false, nil
	}

	if !rule.PreserveFormat {
		first := firstNamePool[poolIndex(trimmed, rule.Table, "name-first", len(firstNamePool))]
		last := lastNamePool[poolIndex(trimmed, rule.Table, "name-last", len(lastNamePool))]
		return first + " " + last, false, nil
	}

	parts := strings.Fields(trimmed)
	out := make([]string, len(parts))
	for i, part := range parts {
		if i == 0 {
			out[i] = firstNamePool[poolIndex(part, rule.Table, "name-first", len(firstNamePool))]
		} else {
			out[i] = lastNamePool[poolIndex(part, rule.Table, "name-last", len(lastNamePool))]
		}
	}
	return strings.Join(out, " "), true, nil
}

// anonymizePhone replaces an Algerian phone number with one from the same
// category (mobile or landline). The replacement keeps the international
// prefix and trunk zero of the original, always carries 9 local digits, and
// with PreserveFormat re-applies the original separator pattern.
func (e *Engine) anonymizePhone(value string, rule Rule) (any, bool, error) {
	digits := digitsOf(value)

	intl := ""
	trimmed := strings.TrimSpace(value)
	switch {
	case strings.HasPrefix(trimmed, "+213"):
		intl = "213"
		digits = strings.TrimPrefix(digits, "213")
	case strings.HasPrefix(digits, "213") && len(digits) > 10:
		intl = "213"
		digits = strings.TrimPrefix(digits, "213")
	}

	trunk := ""
	if strings.HasPrefix(digits, "0") {
		trunk = "0"
		digits = digits[1:]
	}
	if len(digits) != 9 {
		// Not a recognizable Algerian local number.
		return value, false, nil
	}

	pool := landlinePrefixPool
	if digits[0] == '5' || digits[0] == '6' || digits[0] == '7' {
		pool = mobilePrefixPool
	}
	prefix := pool[poolIndex(value, rule.Table, "phone-prefix", len(pool))]
	local := prefix + hashDigits(value, rule.Table, "phone-rest", 9-len(prefix))

	replacementDigits := intl + trunk + local
	if rule.PreserveFormat {
		return reapplySeparators(value, replacementDigits), true, nil
	}
	if intl != "" && strings.HasPrefix(trimmed, "+") {
		return "+" + replacementDigits, false, nil
	}
	return replacementDigits, false, nil
}

// anonymizeAddress assembles a synthetic Algerian street address. Unlike the
// other generators this one is randomized per call, not deterministic per
// input; addresses carry lower re-identification risk in this design.
func (e *Engine) anonymizeAddress(value any, rule Rule) (any, error) {
	if _, ok := value.(string); !ok {
		return value, nil
	}
	number := 1 + e.randIntn(199)
	streetType := streetTypePool[e.randIntn(len(streetTypePool))]
	streetName := streetNamePool[e.randIntn(len(streetNamePool))]
	city := cityPool[e.randIntn(len(cityPool))]
	return fmt.Sprintf("%d %s %s, %s", number, streetType, streetName, city), nil
}

// anonymizeFinancial draws a replacement from the rule's range when one is
// set, otherwise from a bucket matching the original value's order of
// magnitude so the replacement stays on the same scale.
func (e *Engine) anonymizeFinancial(value any, rule Rule) (any, error) {
	original, isInt, ok := toFloat(value)
	if !ok {
		return value, fmt.Errorf("financial rule on non-numeric value %T", value)
	}

	lo, hi := rule.Constraints.MinValue, rule.Constraints.MaxValue
	if hi <= lo {
		lo, hi = magnitudeBucket(math.Abs(original))
	}
	out := lo + e.randFloat64()*(hi-lo)
	if isInt {
		return int64(math.Round(out)), nil
	}
	return math.Round(out*100) / 100, nil
}

func magnitudeBucket(v float64) (float64, float64) {
	switch {
	case v < 100:
		return 10, 100
	case v < 1000:
		return 100, 1000
	case v < 10000:
		return 1000, 10000
	case v < 100000:
		return 10000, 100000
	default:
		return 100000, 1000000
	}
}

func toFloat(value any) (f float64, isInt bool, ok bool) {
	switch v := value.(type) {
	case float64:
		return v, false, true
	case float32:
		return float64(v), false, true
	case int:
		return float64(v), true, true
	case int32:
		return float64(v), true, true
	case int64:
		return float64(v), true, true
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false, false
		}
		return parsed, false, true
	default:
		return 0, false, false
	}
}

func digitsOf(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// reapplySeparators rewrites the digits of original with replacement digits,
// keeping every dash, space and dot exactly where the original had them.
// A leading plus sign is carried through as well.
func reapplySeparators(original, replacementDigits string) string {
	var b strings.Builder
	next := 0
	for _, r := range original {
		switch {
		case r >= '0' && r <= '9':
			if next < len(replacementDigits) {
				b.WriteByte(replacementDigits[next])
				next++
			}
		case r == '-' || r == ' ' || r == '.' || r == '+':
			b.WriteRune(r)
		}
	}
	// Digits the original did not have room for (should not happen for
	// same-length replacements) are appended rather than dropped.
	if next < len(replacementDigits) {
		b.WriteString(replacementDigits[next:])
	}
	return b.String()
}
