package fetcher

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed API call.
type ErrorKind int

// Failure kinds. Only KindNetwork means the API could not be reached.
const (
	KindNetwork ErrorKind = iota + 1
	KindServer
	KindDecoding
	KindThrottled
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindServer:
		return "server"
	case KindDecoding:
		return "decoding"
	case KindThrottled:
		return "throttled"
	default:
		return "unknown"
	}
}

// ErrSimulatedOffline is returned while the debug offline switch is on.
var ErrSimulatedOffline = errors.New("simulated offline")

// ErrThrottled wraps a rate limiter wait that could not finish in time. No
// request was sent.
var ErrThrottled = errors.New("rate limit exceeded")

// NetworkError is returned by every failed fetch.
type NetworkError struct {
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.Kind == KindServer {
		return fmt.Sprintf("cat api %s error: status %d", e.Kind, e.StatusCode)
	}
	return fmt.Sprintf("cat api %s error: %v", e.Kind, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsOffline reports whether err means the API was unreachable, as opposed
// to reachable but failing.
func IsOffline(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne) && ne.Kind == KindNetwork
}
