package resilience

import (
	"context"
	"errors"
	"net"
	"net/http"
	"syscall"
)

// ClassifyTransport is the base classification shared by the store adapters:
// caller cancellation is final, network failures and attempt timeouts are retried.
// It reports ok=false when the error is not a transport-level failure.
func ClassifyTransport(err error) (ErrorClassification, bool) {
	if err == nil {
		return ErrorClassification{}, true
	}
	var attemptErr *AttemptTimeoutError
	if errors.As(err, &attemptErr) {
		return ErrorClassification{Retryable: true, RecordFailure: true}, true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassification{Retryable: false, RecordFailure: false}, true
	}
	if IsCircuitOpen(err) {
		return ErrorClassification{Retryable: true, RecordFailure: true}, true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return ErrorClassification{Retryable: true, RecordFailure: true}, true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorClassification{Retryable: true, RecordFailure: true}, true
	}
	return ErrorClassification{}, false
}

func IsRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
