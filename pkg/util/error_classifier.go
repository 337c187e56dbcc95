package util

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5"
)

// ClassifyError reports whether err is worth retrying on a later run and a
// short kind label for logs, metrics and batch reports.
func ClassifyError(err error) (bool, string) {
	if err == nil {
		return false, ""
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return false, "json_decode_error"
	}

	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
		return false, "not_found"
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true, "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return false, "context_canceled"
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true, "network_timeout"
		}
		return true, "network_error"
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "not found"):
		return false, "not_found"
	case strings.Contains(errStr, "duplicate key") || strings.Contains(errStr, "unique constraint"):
		return false, "duplicate_key"
	case strings.Contains(errStr, "connection") || strings.Contains(errStr, "timeout"):
		return true, "db_connection_error"
	case strings.Contains(errStr, "database is locked"):
		return true, "db_locked"
	case strings.Contains(errStr, "panic"):
		return false, "panic"
	}

	return false, "unknown_error"
}

// ShouldRetry checks the attempt budget for a retryable error.
func ShouldRetry(retryCount int64, maxRetries int64, isRetryable bool) bool {
	if !isRetryable {
		return false
	}
	return retryCount <= maxRetries
}
