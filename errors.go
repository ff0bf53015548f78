package ytresolve

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors callers can match with errors.Is.
var (
	// ErrArgument indicates a malformed caller input (e.g. an invalid video id).
	ErrArgument = errors.New("ytresolve: invalid argument")

	// ErrTransient indicates a retryable failure of the underlying transport
	// (timeouts, 5xx responses, connection resets).
	ErrTransient = errors.New("ytresolve: transient failure")

	// ErrVideoUnavailable indicates the video does not exist, was deleted, or
	// was made private.
	ErrVideoUnavailable = errors.New("ytresolve: video unavailable")

	// ErrVideoUnplayable indicates the video exists but cannot be played back
	// under the current request context (age gate, region block, login wall).
	ErrVideoUnplayable = errors.New("ytresolve: video unplayable")

	// ErrVideoRequiresPurchase indicates the video is gated behind a paid
	// offer (rental, channel membership, premium-only release).
	ErrVideoRequiresPurchase = errors.New("ytresolve: video requires purchase")

	// ErrNotLiveStream indicates get_hls_url was called against a video that
	// has no live HLS manifest.
	ErrNotLiveStream = errors.New("ytresolve: not a live stream")

	// ErrCodecExtraction indicates a stream descriptor could not be assigned
	// either an audio or a video codec.
	ErrCodecExtraction = errors.New("ytresolve: codec extraction failed")

	// ErrScriptTimeout indicates the sandboxed descrambling script exceeded
	// its instruction budget.
	ErrScriptTimeout = errors.New("ytresolve: script evaluation timed out")

	// ErrCancelled indicates the caller's context was cancelled mid-resolve.
	ErrCancelled = errors.New("ytresolve: cancelled")
)

// ArgumentError wraps ErrArgument with the offending field.
type ArgumentError struct {
	Field  string
	Reason string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("ytresolve: invalid %s: %s", e.Field, e.Reason)
}

func (e *ArgumentError) Is(target error) bool { return target == ErrArgument }

// TransientFailureError wraps ErrTransient with attempt diagnostics.
type TransientFailureError struct {
	Persona string
	Cause   error
}

func (e *TransientFailureError) Error() string {
	if e.Persona == "" {
		return fmt.Sprintf("ytresolve: transient failure: %v", e.Cause)
	}
	return fmt.Sprintf("ytresolve: transient failure persona=%s: %v", e.Persona, e.Cause)
}

func (e *TransientFailureError) Is(target error) bool { return target == ErrTransient }

func (e *TransientFailureError) Unwrap() error { return e.Cause }

// VideoUnplayableError wraps ErrVideoUnplayable with a classified reason.
type VideoUnplayableError struct {
	Reason     string // e.g. "login_required", "age_restricted", "geo_restricted", "drm_protected"
	RawStatus  string
	RawMessage string
}

func (e *VideoUnplayableError) Error() string {
	return fmt.Sprintf("ytresolve: video unplayable: reason=%s status=%s", e.Reason, e.RawStatus)
}

func (e *VideoUnplayableError) Is(target error) bool { return target == ErrVideoUnplayable }

// VideoRequiresPurchaseError wraps ErrVideoRequiresPurchase.
type VideoRequiresPurchaseError struct {
	Preview bool // true when a preview/trailer player response was returned instead
}

func (e *VideoRequiresPurchaseError) Error() string {
	return fmt.Sprintf("ytresolve: video requires purchase: preview_available=%t", e.Preview)
}

func (e *VideoRequiresPurchaseError) Is(target error) bool {
	return target == ErrVideoRequiresPurchase
}

// CodecExtractionError wraps ErrCodecExtraction with the offending itag.
type CodecExtractionError struct {
	Itag     int
	MimeType string
}

func (e *CodecExtractionError) Error() string {
	return fmt.Sprintf("ytresolve: codec extraction failed itag=%d mime=%q", e.Itag, e.MimeType)
}

func (e *CodecExtractionError) Is(target error) bool { return target == ErrCodecExtraction }

// ScriptTimeoutError wraps ErrScriptTimeout with the script kind that timed out.
type ScriptTimeoutError struct {
	Operation string // e.g. "n_descramble"
	BudgetMS  int
}

func (e *ScriptTimeoutError) Error() string {
	return fmt.Sprintf("ytresolve: script timeout op=%s budget_ms=%d", e.Operation, e.BudgetMS)
}

func (e *ScriptTimeoutError) Is(target error) bool { return target == ErrScriptTimeout }

// AllPersonasFailedError is returned when every persona in the resolution
// order failed and none of the failures was itself fatal (unavailable,
// unplayable, requires-purchase).
type AllPersonasFailedError struct {
	Attempts []PersonaAttemptError
}

// PersonaAttemptError records one persona's failure during resolution.
type PersonaAttemptError struct {
	Persona string
	Err     error
}

func (e *AllPersonasFailedError) Error() string {
	if len(e.Attempts) == 0 {
		return "ytresolve: all personas failed"
	}
	return fmt.Sprintf("ytresolve: all personas failed (%d attempt(s)), last: %v",
		len(e.Attempts), e.Attempts[len(e.Attempts)-1].Err)
}

func (e *AllPersonasFailedError) Unwrap() error {
	if len(e.Attempts) == 0 {
		return nil
	}
	return e.Attempts[len(e.Attempts)-1].Err
}

// classifyPlayability turns a free-text playability status/reason pair into
// one of the taxonomy's fatal error shapes.
func classifyPlayability(status, reason, subreason string) error {
	text := strings.ToUpper(strings.TrimSpace(status + " " + reason + " " + subreason))
	contains := func(sub string) bool { return strings.Contains(text, sub) }

	switch {
	case contains("LOGIN") || contains("SIGN IN"):
		return &VideoUnplayableError{Reason: "login_required", RawStatus: status, RawMessage: reason}
	case contains("AGE"):
		return &VideoUnplayableError{Reason: "age_restricted", RawStatus: status, RawMessage: reason}
	case contains("COUNTRY") || contains("REGION") || contains("LOCATION"):
		return &VideoUnplayableError{Reason: "geo_restricted", RawStatus: status, RawMessage: reason}
	case contains("DRM"):
		return &VideoUnplayableError{Reason: "drm_protected", RawStatus: status, RawMessage: reason}
	case contains("UNAVAILABLE") || contains("PRIVATE") || contains("DELETED"):
		return ErrVideoUnavailable
	default:
		return &VideoUnplayableError{Reason: "unknown", RawStatus: status, RawMessage: reason}
	}
}
