// Copyright 2025 Loft Manager Authors
// SPDX-License-Identifier: Apache-2.0

package envclone

// Phase labels for the clone log stream.
const (
	PhaseResolve       = "resolve"
	PhaseVerifyTools   = "verify-tools"
	PhaseWipe          = "wipe"
	PhaseDumpSystem    = "dump-system-schemas"
	PhaseDumpUser      = "dump-user-schemas"
	PhaseResetTarget   = "reset-target"
	PhaseRestoreSystem = "restore-system"
	PhaseRestoreUser   = "restore-user"
	PhaseCopy          = "row-copy"
	PhaseAnonymize     = "anonymize"
	PhaseCleanup       = "cleanup"
)

// Log levels for clone log entries.
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
	LevelSuccess = "success"
)

// Operation statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// cloneTableOrder lists the well-known application tables in dependency
// order: a table referenced by a foreign key always precedes the tables
// holding that key. Copy and restore walk it forward, deletion walks it
// backward.
var cloneTableOrder = []string{
	"currencies",
	"categories",
	"zone_areas",
	"internet_connection_types",
	"payment_methods",
	"loft_owners",
	"profiles",
	"lofts",
	"teams",
	"team_members",
	"tasks",
	"reservations",
	"transactions",
	"notifications",
}

// userSchemaExcludes are the system/internal schemas left out of the
// user-schema dump pass entirely.
var userSchemaExcludes = []string{
	"auth",
	"storage",
	"realtime",
	"extensions",
	"graphql",
	"graphql_public",
	"vault",
	"pgbouncer",
	"pgsodium",
	"pgsodium_masks",
	"supabase_functions",
	"information_schema",
}

// systemSchemas are dumped data-only in the system pass.
var systemSchemas = []string{"auth", "storage"}

// systemDumpExcludeTables are transient or version-sensitive system tables
// that are either regenerated on the target or liable to schema drift across
// engine versions.
var systemDumpExcludeTables = []string{
	"auth.sessions",
	"auth.refresh_tokens",
	"auth.mfa_factors",
	"auth.mfa_challenges",
	"auth.mfa_amr_claims",
	"auth.one_time_tokens",
	"auth.flow_state",
	"auth.saml_providers",
	"auth.saml_relay_states",
	"auth.sso_providers",
	"auth.sso_domains",
	"auth.audit_log_entries",
	"storage.migrations",
	"storage.s3_multipart_uploads",
	"storage.s3_multipart_uploads_parts",
}

// DeletionTableOrder returns the known tables in reverse dependency order
// (children before parents), the only order in which a full wipe can run
// without tripping foreign-key constraints.
func DeletionTableOrder() []string {
	out := make([]string, len(cloneTableOrder))
	for i, t := range cloneTableOrder {
		out[len(cloneTableOrder)-1-i] = t
	}
	return out
}

// CloneTableOrder returns a copy of the known tables in dependency order.
func CloneTableOrder() []string {
	out := make([]string, len(cloneTableOrder))
	copy(out, cloneTableOrder)
	return out
}
