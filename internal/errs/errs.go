// Package errs defines the error taxonomy shared by every pipeline
// component: a small set of sentinel causes wrapped with fmt.Errorf and
// %w at each call site.
package errs

import "errors"

// Kind classifies an error for the purposes of retry, circuit breaking and
// orchestrator-level accounting.
type Kind string

const (
	KindConfigInvalid     Kind = "ConfigInvalid"
	KindAuthFailed        Kind = "AuthFailed"
	KindSourceUnavailable Kind = "SourceUnavailable"
	KindSchemaMismatch    Kind = "SchemaMismatch"
	KindInvalidMetric     Kind = "InvalidMetric"
	KindBackendUnavailable Kind = "BackendUnavailable"
	KindRateLimited       Kind = "RateLimited"
	KindTimeout           Kind = "Timeout"
	KindCircuitOpen       Kind = "CircuitOpen"
	KindCancelled         Kind = "Cancelled"
	KindBufferFull        Kind = "BufferFull"
	KindValidationFailed  Kind = "ValidationFailed"
	KindUnknown           Kind = "Unknown"
)

// Sentinel errors. Wrap these with fmt.Errorf("...: %w", ErrX) at the call
// site so errors.Is keeps working through layers.
var (
	ErrConfigInvalid      = errors.New("config invalid")
	ErrAuthFailed         = errors.New("authentication failed")
	ErrSourceUnavailable  = errors.New("source unavailable")
	ErrSchemaMismatch     = errors.New("schema mismatch")
	ErrInvalidMetric      = errors.New("invalid metric")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrRateLimited        = errors.New("rate limited")
	ErrTimeout            = errors.New("timeout")
	ErrCircuitOpen        = errors.New("circuit open")
	ErrCancelled          = errors.New("cancelled")
	ErrBufferFull         = errors.New("buffer full")
	ErrValidationFailed   = errors.New("validation failed")
)

var kindOf = map[error]Kind{
	ErrConfigInvalid:      KindConfigInvalid,
	ErrAuthFailed:         KindAuthFailed,
	ErrSourceUnavailable:  KindSourceUnavailable,
	ErrSchemaMismatch:     KindSchemaMismatch,
	ErrInvalidMetric:      KindInvalidMetric,
	ErrBackendUnavailable: KindBackendUnavailable,
	ErrRateLimited:        KindRateLimited,
	ErrTimeout:            KindTimeout,
	ErrCircuitOpen:        KindCircuitOpen,
	ErrCancelled:          KindCancelled,
	ErrBufferFull:         KindBufferFull,
	ErrValidationFailed:   KindValidationFailed,
}

// Classify maps err (possibly wrapped) to the Kind of its deepest known
// sentinel. Unrecognized errors classify as KindUnknown, which callers
// should treat conservatively (retryable, but surfaced to the dead-letter
// path after the normal retry budget).
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	for sentinel, kind := range kindOf {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindUnknown
}

// Retryable reports whether a failure of this Kind should be retried by the
// caller (streamer batch, collector fetch, HTTP client) rather than treated
// as fatal or silently dropped.
func Retryable(k Kind) bool {
	switch k {
	case KindSourceUnavailable, KindBackendUnavailable, KindRateLimited, KindTimeout, KindCircuitOpen:
		return true
	default:
		return false
	}
}

// Fatal reports whether a failure of this Kind should abort startup
// entirely instead of being retried or contained.
func Fatal(k Kind) bool {
	return k == KindConfigInvalid || k == KindAuthFailed
}
