// Package invoker is the stage-invocation boundary: it performs the remote
// agent call for a stage and reports outcome and payload. The orchestration
// core treats it as an opaque remote procedure call; request schema, auth and
// payload sanitization live behind this interface.
package invoker

import (
	"context"
	"fmt"
)

// Invoker performs one remote capability invocation. Timeouts and
// cancellation arrive through ctx; implementations must honor them.
type Invoker interface {
	Invoke(ctx context.Context, capability string, payload map[string]any) (map[string]any, error)
}

// AgentError is a non-2xx response from an agent endpoint. The status code is
// preserved so the executor's transience classification can key on it rather
// than on surface strings.
type AgentError struct {
	Capability string
	StatusCode int
	Body       string
}

func (e *AgentError) Error() string {
	return fmt.Sprintf("agent call %q failed with status %d: %s", e.Capability, e.StatusCode, e.Body)
}

// Func adapts a plain function to the Invoker interface. Used by tests and by
// in-process capability stubs.
type Func func(ctx context.Context, capability string, payload map[string]any) (map[string]any, error)

func (f Func) Invoke(ctx context.Context, capability string, payload map[string]any) (map[string]any, error) {
	return f(ctx, capability, payload)
}
