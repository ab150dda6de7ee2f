// Copyright 2025 Loft Manager Authors
// SPDX-License-Identifier: Apache-2.0

package envclone

import (
	"errors"
	"fmt"
)

// ConfigurationError reports malformed or incomplete credentials/options.
// Always fatal, never retried.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// ProductionProtectionError reports a destructive operation aimed at a
// production-named environment. Always fatal, never bypassable.
type ProductionProtectionError struct {
	Environment string
}

func (e *ProductionProtectionError) Error() string {
	return fmt.Sprintf("destructive operation blocked: environment %q looks like production", e.Environment)
}

// ToolUnavailableError reports that pg_dump or psql is missing or not runnable.
type ToolUnavailableError struct {
	Tool string
	Err  error
}

func (e *ToolUnavailableError) Error() string {
	return fmt.Sprintf("required tool %q is not available: %v", e.Tool, e.Err)
}

func (e *ToolUnavailableError) Unwrap() error { return e.Err }

// TransientConnectivityError reports a hostname-resolution failure that is
// recoverable exactly once via IP substitution.
type TransientConnectivityError struct {
	Host string
	Err  error
}

func (e *TransientConnectivityError) Error() string {
	return fmt.Sprintf("could not resolve host %q: %v", e.Host, e.Err)
}

func (e *TransientConnectivityError) Unwrap() error { return e.Err }

// RestoreTransactionError reports a failure during the single-transaction
// restore. The whole restore rolled back; Stderr carries the raw tool output
// for diagnostics.
type RestoreTransactionError struct {
	Stderr string
	Err    error
}

func (e *RestoreTransactionError) Error() string {
	return fmt.Sprintf("restore transaction failed and rolled back: %v", e.Err)
}

func (e *RestoreTransactionError) Unwrap() error { return e.Err }

// IsFatalGuardError reports whether err is one of the two guard errors that
// must propagate to the caller instead of being folded into a result.
func IsFatalGuardError(err error) bool {
	var cfg *ConfigurationError
	var prod *ProductionProtectionError
	return errors.As(err, &cfg) || errors.As(err, &prod)
}

// IsTransientConnectivity reports whether err is a DNS-class failure eligible
// for the single IP-substitution retry.
func IsTransientConnectivity(err error) bool {
	var tce *TransientConnectivityError
	return errors.As(err, &tce)
}
