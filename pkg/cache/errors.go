package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

// Common errors returned by the cache.
var (
	// ErrInvalidConfig is returned when a cache component is built from an unusable configuration.
	ErrInvalidConfig = errors.New("invalid cache configuration")

	// ErrRetryExhausted is returned when all retry attempts failed with transient errors.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrEncode is returned by Put when a value cannot be serialized.
	ErrEncode = errors.New("encode cache value")

	// ErrInvalidTTL is returned by Put for a TTL below one millisecond.
	ErrInvalidTTL = errors.New("invalid cache ttl")
)

// ErrorKind classifies a failure reported by the cache backend.
type ErrorKind string

const (
	// KindIO covers dropped connections, refused dials and closed clients.
	KindIO ErrorKind = "io"

	// KindTimeout covers deadlines hit while talking to the backend.
	KindTimeout ErrorKind = "timeout"

	// KindRedirect covers cluster redirections and nodes that are loading or read-only.
	KindRedirect ErrorKind = "redirect"

	// KindAuth covers rejected credentials and missing permissions.
	KindAuth ErrorKind = "auth"

	// KindProtocol covers error replies for malformed or mistyped commands.
	KindProtocol ErrorKind = "protocol"

	// KindOther covers everything else, including an open circuit breaker.
	KindOther ErrorKind = "other"
)

// Transient reports whether an operation that failed with this kind may succeed on retry.
func (k ErrorKind) Transient() bool {
	switch k {
	case KindIO, KindTimeout, KindRedirect:
		return true
	default:
		return false
	}
}

// RemoteError is a backend failure tagged with its kind at the client boundary.
type RemoteError struct {
	Op   string
	Kind ErrorKind
	Err  error
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	return fmt.Sprintf("cache %s (%s): %v", e.Op, e.Kind, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *RemoteError) Unwrap() error {
	return e.Err
}

// wrapRemote tags err with op and its kind. Nil stays nil.
func wrapRemote(op string, err error) error {
	if err == nil {
		return nil
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return err
	}
	return &RemoteError{Op: op, Kind: Classify(err), Err: err}
}

// Error codes sent by the server as the first token of an error reply.
var (
	redirectCodes = map[string]struct{}{
		"MOVED":       {},
		"ASK":         {},
		"TRYAGAIN":    {},
		"CLUSTERDOWN": {},
		"LOADING":     {},
		"READONLY":    {},
		"MASTERDOWN":  {},
	}

	authCodes = map[string]struct{}{
		"NOAUTH":    {},
		"WRONGPASS": {},
		"NOPERM":    {},
	}
)

// Classify maps an error to its ErrorKind. Server error replies are classified
// by their error code, transport failures by their Go error type.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindOther
	}

	var re *RemoteError
	if errors.As(err, &re) {
		return re.Kind
	}

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return KindOther
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindOther
	case errors.Is(err, redis.ErrClosed),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE):
		return KindIO
	}

	var replyErr redis.Error
	if errors.As(err, &replyErr) {
		return classifyReply(replyErr.Error())
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindIO
	}

	return KindOther
}

// classifyReply inspects the error code of a server error reply.
func classifyReply(msg string) ErrorKind {
	code, _, _ := strings.Cut(msg, " ")
	if _, ok := redirectCodes[code]; ok {
		return KindRedirect
	}
	if _, ok := authCodes[code]; ok {
		return KindAuth
	}
	return KindProtocol
}

// IsTransient reports whether err may succeed on retry.
func IsTransient(err error) bool {
	return err != nil && Classify(err).Transient()
}
