package carbon

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/rotisserie/eris"
)

// Provider-level failure taxonomy. Provider calls return exactly one of
// these (wrapped with context); the chain recovers them locally and they
// never surface to the scorer or dashboard as hard failures.
var (
	// ErrUnreachable is a network or transport failure, including timeouts.
	ErrUnreachable = eris.New("provider unreachable")
	// ErrInvalidResponse is a schema or parse failure in an upstream payload.
	ErrInvalidResponse = eris.New("invalid provider response")
	// ErrRateLimited is upstream throttling; transient by definition.
	ErrRateLimited = eris.New("provider rate limited")
	// ErrUnknownTopology means node labels do not map to a canonical region.
	ErrUnknownTopology = eris.New("unknown topology")
	// ErrUnavailable means no usable data exists after exhausting the chain.
	ErrUnavailable = eris.New("carbon data unavailable")
)

// ClassifyHTTPStatus maps an upstream HTTP status to the failure taxonomy.
// 2xx statuses return nil.
func ClassifyHTTPStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests:
		return ErrRateLimited
	case code >= 500 || code == http.StatusRequestTimeout:
		return ErrUnreachable
	default:
		return ErrInvalidResponse
	}
}

// ClassifyTransportError maps a transport-level error to the taxonomy.
// Timeouts, resets, and DNS failures are all Unreachable.
func ClassifyTransportError(err error) error {
	if err == nil {
		return nil
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return eris.Wrap(ErrUnreachable, netErr.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return eris.Wrap(ErrUnreachable, "request deadline exceeded")
	}
	return eris.Wrap(ErrUnreachable, err.Error())
}
