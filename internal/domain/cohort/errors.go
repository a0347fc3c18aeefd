package cohort

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrStoreUnavailable means the database could not be reached. No part
	// of the export was produced.
	ErrStoreUnavailable = errors.New("cohort store unavailable")
	// ErrSpreadsheetWriter means the XLSX writer failed. CSV exports are
	// unaffected.
	ErrSpreadsheetWriter = errors.New("spreadsheet writer unavailable")
	ErrUnsupportedFormat = errors.New("unsupported export format")
)

// storeError tags connection-level failures with ErrStoreUnavailable.
func storeError(op string, err error) error {
	if connectionLost(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// connectionLost reports whether err means the server could not be reached
// or the connection broke. Cancellation and deadlines belong to the caller.
func connectionLost(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var netErr net.Error
	return errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) ||
		pgconn.SafeToRetry(err) ||
		errors.As(err, &netErr)
}
