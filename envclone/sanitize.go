// Copyright 2025 Loft Manager Authors
// SPDX-License-Identifier: Apache-2.0

package envclone

import (
	"fmt"
	"regexp"
	"strings"
)

// SanitizeOptions toggles individual dump transformations. The zero value
// applies everything, which is what a cross-environment restore needs.
type SanitizeOptions struct {
	SkipTimeoutRename     bool
	SkipEventTriggers     bool
	SkipPublications      bool
	SkipSchemaIdempotency bool
	SkipSystemTruncates   bool
	SkipAdminRoleRewrite  bool
}

var (
	transactionTimeoutPattern = regexp.MustCompile(`(?m)^(SET\s+)transaction_timeout(\s*=)`)
	eventTriggerPattern       = regexp.MustCompile(`(?m)^(CREATE\s+EVENT\s+TRIGGER\b.*|ALTER\s+EVENT\s+TRIGGER\b.*)$`)
	publicationPattern        = regexp.MustCompile(`(?m)^((?:CREATE|ALTER|DROP)\s+PUBLICATION\b.*)$`)
	adminRolePattern          = regexp.MustCompile(`(?i)\b(TO|FROM|ROLE|OWNER TO|GRANTED BY)\s+("admin"|admin\b)`)
)

// SanitizeDump rewrites a pg_dump text stream so it restores cleanly into a
// target that may run a different engine version and lack the source's
// managed-environment fixtures. Pure text transformation; each rule is
// independently testable.
func SanitizeDump(dump string, opts SanitizeOptions) string {
	out := dump
	if !opts.SkipTimeoutRename {
		out = renameTransactionTimeout(out)
	}
	if !opts.SkipEventTriggers {
		out = commentEventTriggers(out)
	}
	if !opts.SkipPublications {
		out = commentPublications(out)
	}
	if !opts.SkipSchemaIdempotency {
		out = idempotentCreateSchema(out)
	}
	if !opts.SkipSystemTruncates {
		out = injectSystemTruncates(out)
	}
	if !opts.SkipAdminRoleRewrite {
		out = rewriteAdminRole(out)
	}
	return out
}

// renameTransactionTimeout maps the parameter renamed in newer engine
// versions back onto one every target understands.
func renameTransactionTimeout(dump string) string {
	return transactionTimeoutPattern.ReplaceAllString(dump, "${1}statement_timeout${2}")
}

// commentEventTriggers disables event-trigger statements that only make
// sense in the original managed environment.
func commentEventTriggers(dump string) string {
	return eventTriggerPattern.ReplaceAllString(dump, "-- $1")
}

// commentPublications disables realtime-publication statements; the target
// regenerates its own publications.
func commentPublications(dump string) string {
	return publicationPattern.ReplaceAllString(dump, "-- $1")
}

// idempotentCreateSchema makes CREATE SCHEMA statements safe to replay into
// a target where the schema already exists.
func idempotentCreateSchema(dump string) string {
	// Go's regexp has no lookahead, so guard by line.
	lines := strings.Split(dump, "\n")
	for i, line := range lines {
		if strings.HasPrefix(line, "CREATE SCHEMA ") && !strings.HasPrefix(line, "CREATE SCHEMA IF NOT EXISTS") {
			lines[i] = "CREATE SCHEMA IF NOT EXISTS " + strings.TrimPrefix(line, "CREATE SCHEMA ")
		}
	}
	return strings.Join(lines, "\n")
}

// systemCopyTargets are the system tables that get an explicit truncate
// injected ahead of their COPY/INSERT data, as a second safety net on top of
// the target reset.
var systemCopyTargets = []string{"auth.users", "auth.identities", "storage.buckets", "storage.objects"}

// injectSystemTruncates prepends a cascade truncate before the first data
// statement of each system table present in the dump.
func injectSystemTruncates(dump string) string {
	for _, table := range systemCopyTargets {
		marker := fmt.Sprintf("COPY %s ", table)
		idx := strings.Index(dump, marker)
		if idx < 0 {
			marker = fmt.Sprintf("INSERT INTO %s ", table)
			idx = strings.Index(dump, marker)
		}
		if idx < 0 {
			continue
		}
		truncate := fmt.Sprintf("TRUNCATE TABLE %s CASCADE;\n", table)
		if strings.Contains(dump[:idx], truncate) {
			continue
		}
		dump = dump[:idx] + truncate + dump[idx:]
	}
	return dump
}

// rewriteAdminRole replaces references to the custom admin role, which may
// not exist on the target, with the standard service_role. Covers
// TO/FROM/ROLE/OWNER TO/GRANTED BY clauses, quoted and unquoted.
func rewriteAdminRole(dump string) string {
	return adminRolePattern.ReplaceAllString(dump, "$1 service_role")
}
