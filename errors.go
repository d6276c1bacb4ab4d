package jpegstream

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind categorizes a JpegError: Malformatted and Unsupported are
// fatal, EOF is recoverable at a scan boundary.
type ErrorKind int

const (
	// KindMalformatted marks a structural violation of the bitstream.
	KindMalformatted ErrorKind = iota
	// KindUnsupported marks a feature this decoder deliberately does not implement.
	KindUnsupported
	// KindEOF marks the stream ending in the middle of entropy-coded data.
	KindEOF
)

func (k ErrorKind) String() string {
	switch k {
	case KindMalformatted:
		return "Malformatted"
	case KindUnsupported:
		return "Unsupported"
	case KindEOF:
		return "EOF"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// JpegError is the error type the decoding operations in this package
// return; the ByteStream and hand-off marshaling functions use their
// own error values. It carries enough detail to distinguish a
// recoverable scan-boundary EOF from the two kinds of fatal failure.
type JpegError struct {
	Kind    ErrorKind
	Message string
	// cause holds a wrapped lower-level error (I/O, stream-status) when present.
	cause error
}

func (e *JpegError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *JpegError) Unwrap() error {
	return e.cause
}

// Malformatted builds a KindMalformatted JpegError.
func Malformatted(message string) *JpegError {
	return &JpegError{Kind: KindMalformatted, Message: message}
}

// Malformattedf builds a KindMalformatted JpegError with formatting.
func Malformattedf(format string, args ...interface{}) *JpegError {
	return &JpegError{Kind: KindMalformatted, Message: fmt.Sprintf(format, args...)}
}

// Unsupported builds a KindUnsupported JpegError.
func Unsupported(feature string) *JpegError {
	return &JpegError{Kind: KindUnsupported, Message: feature}
}

// ErrEOF is the sentinel returned when the stream ends mid-scan. It is
// recoverable: the caller may still have a valid, if truncated, result.
var ErrEOF = &JpegError{Kind: KindEOF, Message: "end of stream"}

// wrapEOF wraps a lower-level cause into the canonical EOF error while
// preserving it for Unwrap.
func wrapEOF(cause error) *JpegError {
	return &JpegError{Kind: KindEOF, Message: "end of stream", cause: errors.WithStack(cause)}
}

// wrapMalformatted wraps a lower-level cause (typically a ByteStream
// status) into a Malformatted error, used at header-parsing boundaries
// where EOF is never recoverable.
func wrapMalformatted(message string, cause error) *JpegError {
	return &JpegError{Kind: KindMalformatted, Message: message, cause: errors.WithStack(cause)}
}

// IsJpegError reports whether err is a *JpegError, unwrapping wrapped causes.
func IsJpegError(err error) (*JpegError, bool) {
	var je *JpegError
	if errors.As(err, &je) {
		return je, true
	}
	return nil, false
}
