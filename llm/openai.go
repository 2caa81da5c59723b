package llm

import (
	"context"
	"encoding/json"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/rs/zerolog"

	"github.com/hestia-agent/hestia/config"
	"github.com/hestia-agent/hestia/errors"
	"github.com/hestia-agent/hestia/session"
	"github.com/hestia-agent/hestia/tools"
)

// OpenAIClient talks to the OpenAI chat completions API (or any compatible
// endpoint via baseURL).
type OpenAIClient struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float64
	topP        float64
	timeout     time.Duration
	log         zerolog.Logger
}

// NewOpenAIClient constructs the client. The API key comes from the
// environment; an empty baseURL uses the public API.
func NewOpenAIClient(apiKey, baseURL string, cfg *config.Config, log zerolog.Logger) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key not set")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return &OpenAIClient{
		client:      &client,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		topP:        cfg.TopP,
		timeout:     cfg.RequestTimeout(),
		log:         log.With().Str("component", "llm").Str("backend", "openai").Logger(),
	}, nil
}

// Chat performs one chat completion exchange.
func (c *OpenAIClient) Chat(ctx context.Context, messages []session.Message, catalog []tools.Tool) (*ChatResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(c.model),
		Messages:            renderOpenAIMessages(messages),
		MaxCompletionTokens: openai.Int(int64(c.maxTokens)),
		// This family accepts temperature and top_p together.
		Temperature: openai.Float(c.temperature),
		TopP:        openai.Float(c.topP),
	}
	for _, t := range catalog {
		params.Tools = append(params.Tools, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        t.Name(),
			Description: openai.String(t.Description()),
			Parameters:  openai.FunctionParameters(t.InputSchema()),
		}))
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, wrapBackendErr(ctx, err, "OpenAI")
	}
	return c.parseResponse(resp)
}

// renderOpenAIMessages converts internal turns to chat completion messages.
// The system turn maps to a system-role message here; this backend has no
// dedicated system field.
func renderOpenAIMessages(messages []session.Message) []openai.ChatCompletionMessageParamUnion {
	var out []openai.ChatCompletionMessageParamUnion
	for _, msg := range messages {
		switch msg.Role {
		case session.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))

		case session.RoleUser:
			out = append(out, openai.UserMessage(msg.Content))

		case session.RoleAssistant:
			assistant := openai.ChatCompletionMessage{
				Role:    "assistant",
				Content: msg.Content,
			}
			for _, tc := range msg.ToolCalls {
				args, err := json.Marshal(tc.Args)
				if err != nil {
					continue
				}
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallUnion{
					ID:   tc.ToolCallID,
					Type: "function",
					Function: openai.ChatCompletionMessageFunctionToolCallFunction{
						Name:      tc.Name,
						Arguments: string(args),
					},
				})
			}
			out = append(out, assistant.ToParam())

		case session.RoleTool:
			out = append(out, openai.ToolMessage(msg.Content, msg.ToolCallID))
		}
	}
	return out
}

func (c *OpenAIClient) parseResponse(resp *openai.ChatCompletion) (*ChatResponse, error) {
	if len(resp.Choices) == 0 {
		return nil, backendErrorf("OpenAI response contained no choices")
	}
	choice := resp.Choices[0]

	raw := string(choice.FinishReason)
	if raw == "" {
		return nil, backendErrorf("OpenAI response missing finish_reason field")
	}

	out := &ChatResponse{RawStopReason: raw, Text: choice.Message.Content}
	switch raw {
	case "tool_calls":
		out.StopReason = StopToolUse
	case "stop":
		out.StopReason = StopEndTurn
	default:
		out.StopReason = StopOther
	}

	for _, tc := range choice.Message.ToolCalls {
		var args map[string]interface{}
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			return nil, backendErrorf("could not decode tool call arguments: %v", err)
		}
		id := tc.ID
		if id == "" {
			id = fallbackToolCallID(c.log, tc.Function.Name)
		}
		out.ToolCalls = append(out.ToolCalls, session.ToolCall{
			ToolCallID: id,
			Name:       tc.Function.Name,
			Args:       args,
		})
	}
	return out, nil
}
