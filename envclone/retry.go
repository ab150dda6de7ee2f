// Copyright 2025 Loft Manager Authors
// SPDX-License-Identifier: Apache-2.0

package envclone

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// retryBackoff is the pause before the single retry of a retryable statement.
const retryBackoff = 100 * time.Millisecond

// execWithRetry runs one statement, retrying exactly once after a backoff
// when the failure is a transient lock or serialization error.
func execWithRetry(ctx context.Context, db Querier, sql string, args ...any) (pgconn.CommandTag, error) {
	tag, err := db.Exec(ctx, sql, args...)
	if err == nil || !isRetryablePGError(err) {
		return tag, err
	}
	if sleepErr := sleepWithContext(ctx, retryBackoff); sleepErr != nil {
		return tag, sleepErr
	}
	return db.Exec(ctx, sql, args...)
}

func isRetryablePGError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.SQLState() {
	case "40001", // serialization_failure
		"40P01", // deadlock_detected
		"55P03": // lock_not_available (incl. lock_timeout)
		return true
	default:
		return false
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
