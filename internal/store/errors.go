package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// busyRetryMaxElapsed bounds how long a write keeps retrying while another
// connection holds the database lock.
const busyRetryMaxElapsed = 5 * time.Second

func newBusyBackoff(ctx context.Context) backoff.BackOffContext {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 20 * time.Millisecond
	bo.MaxElapsedTime = busyRetryMaxElapsed
	return backoff.WithContext(bo, ctx)
}

// sqliteCode returns the extended result code of a driver error, or 0.
func sqliteCode(err error) int {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code()
	}
	return 0
}

// isBusy reports whether err means the database was locked by another writer.
// A busy failure leaves nothing applied, so the operation can be repeated.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	switch sqliteCode(err) & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return strings.Contains(err.Error(), "database is locked")
}

// classify maps constraint failures onto the package sentinels. The driver
// error stays in the chain.
func classify(err error) error {
	if err == nil {
		return nil
	}
	code := sqliteCode(err)
	msg := err.Error()
	switch {
	case code == sqlite3.SQLITE_CONSTRAINT_UNIQUE, code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY,
		strings.Contains(msg, "UNIQUE constraint failed"):
		return fmt.Errorf("%w: %w", ErrDuplicate, err)
	case code&0xff == sqlite3.SQLITE_CONSTRAINT, strings.Contains(msg, "constraint failed"):
		return fmt.Errorf("%w: %w", ErrConstraint, err)
	}
	return err
}

// withRetry runs op, repeating it with exponential backoff while the
// database reports it is busy. Any other error stops immediately.
func withRetry(ctx context.Context, op func() error) error {
	return backoff.Retry(func() error {
		err := op()
		if err != nil && isBusy(err) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, newBusyBackoff(ctx))
}
