package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
	"time"
)

// Transient marks an error as safe to retry. Status carries the HTTP
// status when the failure came off the wire; After carries a
// server-requested wait from a Retry-After header.
type Transient struct {
	Err    error
	Status int
	After  time.Duration
}

func (t *Transient) Error() string {
	return t.Err.Error()
}

func (t *Transient) Unwrap() error {
	return t.Err
}

// MarkTransient wraps err as retryable with the HTTP status that caused it.
func MarkTransient(err error, status int) error {
	return &Transient{Err: err, Status: status}
}

// MarkTransientAfter wraps err as retryable with a server-requested delay.
func MarkTransientAfter(err error, status int, after time.Duration) error {
	return &Transient{Err: err, Status: status, After: after}
}

// IsTransient reports whether err is retryable: explicitly marked, a
// network timeout, or a connection-level failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var t *Transient
	if errors.As(err, &t) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// Wrapped client errors lose their type; fall back to message checks.
	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"transport connection broken",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// RetryableStatus reports whether an HTTP status indicates a transient
// server-side condition.
func RetryableStatus(code int) bool {
	switch code {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// retryAfterHint returns the server-requested delay in err's chain, if any.
func retryAfterHint(err error) (time.Duration, bool) {
	var t *Transient
	if errors.As(err, &t) && t.After > 0 {
		return t.After, true
	}
	return 0, false
}
