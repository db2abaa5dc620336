package executor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"

	"github.com/caseflow/caseflow/pkg/breaker"
	"github.com/caseflow/caseflow/pkg/invoker"
)

// ErrorKind classifies a stage failure for retry and compensation decisions.
type ErrorKind string

const (
	// KindTransient failures are retried per the stage's retry policy.
	KindTransient ErrorKind = "transient"
	// KindPermanent failures end the execution and trigger compensation.
	KindPermanent ErrorKind = "permanent"
	// KindBreakerOpen failures are permanent for this stage and are never
	// retried inline; the breaker already judged the dependency unhealthy.
	KindBreakerOpen ErrorKind = "breaker_open"
)

// StageError is the terminal error of one stage: the stage that failed, how
// the failure was classified, and the underlying cause.
type StageError struct {
	StageID string
	Kind    ErrorKind
	Err     error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed (%s): %v", e.StageID, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// transientStatusCodes are the agent response codes treated as retryable.
var transientStatusCodes = map[int]bool{
	http.StatusTooManyRequests:    true,
	http.StatusBadGateway:         true,
	http.StatusServiceUnavailable: true,
	http.StatusGatewayTimeout:     true,
}

// isTransient classifies an invocation error by inspecting its type chain
// rather than its message: deadline/timeout, connection-level failures and
// rate-limit/gateway statuses are transient, everything else is permanent.
func isTransient(err error) bool {
	if err == nil {
		return false
	}

	if breaker.IsOpen(err) {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	var agentErr *invoker.AgentError
	if errors.As(err, &agentErr) {
		return transientStatusCodes[agentErr.StatusCode]
	}

	return false
}

// classify maps an invocation error to its ErrorKind.
func classify(err error) ErrorKind {
	switch {
	case breaker.IsOpen(err):
		return KindBreakerOpen
	case isTransient(err):
		return KindTransient
	default:
		return KindPermanent
	}
}
