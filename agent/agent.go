// Package agent implements the conversation loop: it seeds history, exchanges
// turns with the LLM backend, dispatches requested tool calls, and converges
// to a final answer or a bounded failure.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hestia-agent/hestia/config"
	"github.com/hestia-agent/hestia/devices"
	"github.com/hestia-agent/hestia/llm"
	"github.com/hestia-agent/hestia/session"
	"github.com/hestia-agent/hestia/tools"
)

// Fixed user-facing messages for the failure terminal states.
const (
	msgIterationLimit = "I'm sorry, I couldn't complete that request after multiple attempts."
	msgBackendError   = "Sorry, there was an error: %s"
	msgTemplateError  = "Sorry, I had a problem with my template: %s"
)

// Result is the single response contract for every terminal path, failure
// kinds included.
type Result struct {
	Text           string `json:"text"`
	ConversationID string `json:"conversation_id"`
	IsError        bool   `json:"-"`
}

// SnapshotProvider yields the exposed-device snapshot for prompt generation.
type SnapshotProvider interface {
	Snapshot() ([]devices.Snapshot, error)
}

// Composer renders the system prompt from template, snapshot and clock.
type Composer interface {
	Compose(tmpl string, snapshot []devices.Snapshot, language string, now time.Time) (string, error)
}

// ClientFactory lazily constructs the backend client on first use.
type ClientFactory func(ctx context.Context) (llm.Client, error)

// Agent processes user utterances. One Agent serves many conversations; a
// single conversation is processed sequentially, and the only shared mutable
// state across conversations is the lazily-built backend client handle.
type Agent struct {
	cfg      *config.Config
	store    *session.Store
	provider SnapshotProvider
	composer Composer
	catalog  *tools.Catalog
	factory  ClientFactory
	log      zerolog.Logger
	now      func() time.Time

	clientMu sync.Mutex
	client   atomic.Pointer[llm.Client]
}

// New creates an agent. The backend client is not constructed until the
// first Process call needs it.
func New(cfg *config.Config, store *session.Store, provider SnapshotProvider, composer Composer, catalog *tools.Catalog, factory ClientFactory, log zerolog.Logger) *Agent {
	return &Agent{
		cfg:      cfg,
		store:    store,
		provider: provider,
		composer: composer,
		catalog:  catalog,
		factory:  factory,
		log:      log.With().Str("component", "agent").Logger(),
		now:      time.Now,
	}
}

// backend returns the shared client handle, constructing it on first use.
// Double-checked so concurrent first-use from multiple conversations does not
// race to create duplicate clients.
func (a *Agent) backend(ctx context.Context) (llm.Client, error) {
	if c := a.client.Load(); c != nil {
		return *c, nil
	}
	a.clientMu.Lock()
	defer a.clientMu.Unlock()
	if c := a.client.Load(); c != nil {
		return *c, nil
	}
	client, err := a.factory(ctx)
	if err != nil {
		return nil, err
	}
	a.log.Info().Msg("backend client initialized")
	a.client.Store(&client)
	return client, nil
}

// Process turns one user utterance into a response, running the tool-calling
// loop to completion. Every outcome, failures included, comes back as a
// Result; Process never returns an error and never panics the host.
func (a *Agent) Process(ctx context.Context, text, conversationID string) Result {
	conv := a.loadConversation(conversationID)
	log := a.log.With().Str("conversation_id", conv.ID).Logger()

	conv.Trim(a.cfg.RememberNumInteractions)

	_, hasPrompt := conv.SystemPrompt()
	if !hasPrompt || a.cfg.RefreshSystemPrompt {
		systemPrompt, res := a.generateSystemPrompt(conv.ID, log)
		if res != nil {
			return *res
		}
		conv.SetSystemPrompt(systemPrompt)
	}

	conv.Append(session.Message{Role: session.RoleUser, Content: text})

	client, err := a.backend(ctx)
	if err != nil {
		log.Error().Err(err).Msg("backend client construction failed")
		return a.fail(conv, fmt.Sprintf(msgBackendError, err))
	}

	for iterations := 0; iterations <= a.cfg.MaxToolCallIterations; iterations++ {
		resp, err := client.Chat(ctx, conv.Messages, a.catalog.All())
		if err != nil {
			// History up to this point is preserved for the next attempt.
			log.Error().Err(err).Msg("backend call failed")
			return a.fail(conv, fmt.Sprintf(msgBackendError, err))
		}

		responseText := strings.TrimSpace(resp.Text)
		if responseText != "" || len(resp.ToolCalls) > 0 {
			conv.Append(session.Message{
				Role:      session.RoleAssistant,
				Content:   responseText,
				ToolCalls: resp.ToolCalls,
			})
		}

		// Natural completion, or a nominal tool-use stop with no calls to
		// dispatch: either way there is no work left, so never loop again.
		if resp.StopReason != llm.StopToolUse || len(resp.ToolCalls) == 0 {
			log.Debug().Str("stop_reason", resp.RawStopReason).Msg("conversation turn complete")
			return a.finish(conv, responseText)
		}

		a.dispatchToolCalls(ctx, conv, resp.ToolCalls, log)
	}

	// Hard ceiling on tool round-trips: fail with the fixed message instead
	// of issuing another model call.
	log.Warn().Int("max_iterations", a.cfg.MaxToolCallIterations).
		Msg("tool call iteration limit reached")
	return a.fail(conv, msgIterationLimit)
}

func (a *Agent) loadConversation(conversationID string) *session.Conversation {
	if a.cfg.RememberConversation {
		return a.store.Get(conversationID)
	}
	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	return session.NewConversation(conversationID)
}

// generateSystemPrompt builds the prompt text, or a terminal Result when the
// snapshot or the template fails.
func (a *Agent) generateSystemPrompt(conversationID string, log zerolog.Logger) (string, *Result) {
	snapshot, err := a.provider.Snapshot()
	if err != nil {
		// A failed registry read must not degrade into a "no devices" prompt.
		log.Error().Err(err).Msg("device snapshot failed")
		return "", &Result{
			Text:           fmt.Sprintf(msgBackendError, err),
			ConversationID: conversationID,
			IsError:        true,
		}
	}

	text, err := a.composer.Compose(a.cfg.PromptTemplate, snapshot, a.cfg.Language, a.now())
	if err != nil {
		log.Error().Err(err).Msg("prompt template failed")
		return "", &Result{
			Text:           fmt.Sprintf(msgTemplateError, err),
			ConversationID: conversationID,
			IsError:        true,
		}
	}
	return text, nil
}

// dispatchToolCalls validates and executes each requested call independently
// and appends one tool-result turn per call, preserving call order. A failed
// or unknown tool still yields an error-shaped result turn so the backend
// receives a result for every tool-use block it emitted.
func (a *Agent) dispatchToolCalls(ctx context.Context, conv *session.Conversation, calls []session.ToolCall, log zerolog.Logger) {
	for _, call := range calls {
		var result map[string]interface{}
		if tool, ok := a.catalog.Get(call.Name); ok {
			log.Debug().Str("tool", call.Name).Str("tool_call_id", call.ToolCallID).
				Msg("executing tool call")
			result = tool.Execute(ctx, call.Args)
		} else {
			log.Warn().Str("tool", call.Name).Msg("model requested unknown tool")
			result = map[string]interface{}{
				"result": "error",
				"error":  fmt.Sprintf("unknown tool %q", call.Name),
			}
		}

		content, err := json.Marshal(result)
		if err != nil {
			content = []byte(`{"result":"error","error":"unserializable tool result"}`)
		}
		conv.Append(session.Message{
			Role:       session.RoleTool,
			Content:    string(content),
			ToolCallID: call.ToolCallID,
			ToolName:   call.Name,
		})
	}
}

func (a *Agent) finish(conv *session.Conversation, text string) Result {
	a.persist(conv)
	return Result{Text: text, ConversationID: conv.ID}
}

func (a *Agent) fail(conv *session.Conversation, text string) Result {
	a.persist(conv)
	return Result{Text: text, ConversationID: conv.ID, IsError: true}
}

func (a *Agent) persist(conv *session.Conversation) {
	if !a.cfg.RememberConversation {
		return
	}
	if err := a.store.Put(conv); err != nil {
		a.log.Warn().Err(err).Str("conversation_id", conv.ID).
			Msg("failed to persist conversation")
	}
}
