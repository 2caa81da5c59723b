// Package llm adapts the provider-agnostic conversation model to the wire
// shapes of the supported LLM backends and back. All vendor-specific field
// naming lives here; the conversation loop never branches on a backend family.
package llm

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hestia-agent/hestia/session"
	"github.com/hestia-agent/hestia/tools"
)

// StopReason is the normalized stop condition of a backend response.
type StopReason string

const (
	// StopToolUse means the model requested one or more tool calls.
	StopToolUse StopReason = "tool_use"
	// StopEndTurn means the model completed its answer.
	StopEndTurn StopReason = "end_turn"
	// StopOther covers backend-specific codes (length limits, filters, ...).
	StopOther StopReason = "other"
)

// ChatResponse is a parsed backend response in the internal turn model.
// ToolCalls carry the backend-supplied call ids verbatim.
type ChatResponse struct {
	StopReason StopReason
	// RawStopReason preserves the vendor code for logging.
	RawStopReason string
	Text          string
	ToolCalls     []session.ToolCall
}

// Client is the interface all backend adapters implement. One call renders
// the conversation, performs one request/response exchange, and parses the
// result; there is no streaming.
type Client interface {
	Chat(ctx context.Context, messages []session.Message, catalog []tools.Tool) (*ChatResponse, error)
}

// BackendError normalizes network, auth, throttle and timeout failures from
// any backend. Its message is user-surfaceable: adapters must never place
// credential material in it.
type BackendError struct {
	Message string
}

func (e *BackendError) Error() string { return e.Message }

func backendErrorf(format string, a ...interface{}) *BackendError {
	return &BackendError{Message: fmt.Sprintf(format, a...)}
}

// wrapBackendErr normalizes an adapter failure, folding context cancellation
// and deadline expiry into a timeout-shaped message.
func wrapBackendErr(ctx context.Context, err error, backend string) *BackendError {
	if ctxErr := ctx.Err(); ctxErr == context.DeadlineExceeded {
		return backendErrorf("%s request timed out", backend)
	}
	return backendErrorf("%s request failed: %v", backend, err)
}

// fallbackToolCallID synthesizes a locally-unique call id for backends that
// omit one. Using the backend's own id whenever present keeps the exchange
// legible to it on the next round, so synthesis is an explicit, logged
// fallback.
func fallbackToolCallID(log zerolog.Logger, toolName string) string {
	id := "tool_" + uuid.NewString()
	log.Warn().Str("tool", toolName).Str("synthesized_id", id).
		Msg("backend supplied no tool call id, synthesizing one")
	return id
}
