package mixer

import "fmt"

// ErrorKind classifies the errors the public API can return synchronously.
// Process returns one only when called with the wrong frame count or buffer
// length; faults while mixing never surface as an ErrorKind, since the audio
// callback substitutes silence and reaps the offending source instead.
type ErrorKind int

const (
	// ErrInvalidFormat means a Sample or Stream declared an unsupported PCM
	// layout (channel count or bit width outside §6's contract).
	ErrInvalidFormat ErrorKind = iota
	// ErrAllocationFailed means preallocation at Context construction (the
	// FFT plan or the windowed-overlap MDCT) could not be satisfied. Source
	// construction has no error path and never returns it.
	ErrAllocationFailed
	// ErrNotFound means a named sample or object lookup failed.
	ErrNotFound
	// ErrHostAudioFailed is reserved for propagation from a host audio layer
	// (e.g. cmd/mixer3d-play) at device-open time; the core mixer never
	// returns it itself.
	ErrHostAudioFailed
)

func (k ErrorKind) String() string {
	switch k {
	case ErrInvalidFormat:
		return "invalid_format"
	case ErrAllocationFailed:
		return "allocation_failed"
	case ErrNotFound:
		return "not_found"
	case ErrHostAudioFailed:
		return "host_audio_failed"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned by the public API. It is
// errors.Is-compatible via Is, so callers write
// `errors.Is(err, mixer.ErrNotFoundSentinel)` rather than matching on exact
// error values or parsing strings.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("mixer: %s: %s", e.Kind, e.Msg)
}

// Is implements the errors.Is comparison contract against the exported
// sentinel *Error values below, comparing only Kind and ignoring Msg, so
// `errors.Is(err, mixer.ErrNotFoundSentinel)` works regardless of the
// message a particular call filled in.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// sentinel returns a zero-message *Error of the given kind, suitable for use
// with errors.Is as the target: errors.Is(err, mixer.ErrNotFoundSentinel)
// works because Is only compares Kind.
func sentinel(kind ErrorKind) *Error { return &Error{Kind: kind} }

// Exported sentinels for errors.Is comparisons.
var (
	ErrNotFoundSentinel      = sentinel(ErrNotFound)
	ErrInvalidFormatSentinel = sentinel(ErrInvalidFormat)
	ErrAllocFailedSentinel   = sentinel(ErrAllocationFailed)
	ErrHostAudioFailSentinel = sentinel(ErrHostAudioFailed)
)
