package logger

import (
	"fmt"
	"log/slog"
)

// Field keys used across the daemon. Using the same key for the same
// concept everywhere keeps the JSON output queryable.
const (
	// Access events.
	KeyCard     = "card"   // card number as decoded from the reader
	KeyReader   = "reader" // 1-based reader number
	KeyRelay    = "relay"  // 1-based relay number
	KeyBits     = "bits"   // Wiegand frame length
	KeyStatus   = "status" // transaction status string
	KeyUserName = "name"   // enrolled user's display name
	KeyState    = "state"  // relay or tracker state
	KeyAction   = "action" // relay action requested over the API

	// Control plane.
	KeyUsername = "username" // admin account name
	KeyClientIP = "client_ip"
	KeyMethod   = "method"
	KeyPath     = "path"
	KeyCode     = "code" // HTTP response code

	// Upload pipeline and housekeeping.
	KeyOnline     = "online"
	KeyPending    = "pending"  // rows waiting in the failed cache
	KeyUploaded   = "uploaded" // rows shipped this pass
	KeyCount      = "count"
	KeyFile       = "file"
	KeySize       = "size"
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
)

// Err wraps an error as a structured attribute. Nil-safe.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrMsg builds an error attribute from a format string, for failures
// that never materialized as an error value.
func ErrMsg(format string, args ...any) slog.Attr {
	return slog.String(KeyError, fmt.Sprintf(format, args...))
}

// Card returns a card-number attribute.
func Card(card string) slog.Attr {
	return slog.String(KeyCard, card)
}

// Reader returns a reader-number attribute.
func Reader(n int) slog.Attr {
	return slog.Int(KeyReader, n)
}

// Relay returns a relay-number attribute.
func Relay(n int) slog.Attr {
	return slog.Int(KeyRelay, n)
}

// Status returns a transaction-status attribute.
func Status(s string) slog.Attr {
	return slog.String(KeyStatus, s)
}

// DurationMs returns an operation-duration attribute in milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}
