package llm

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"

	"github.com/hestia-agent/hestia/config"
	"github.com/hestia-agent/hestia/errors"
	"github.com/hestia-agent/hestia/session"
	"github.com/hestia-agent/hestia/tools"
)

// AnthropicClient talks to the Anthropic Messages API directly, for
// deployments that are not routed through Bedrock.
type AnthropicClient struct {
	client      *anthropic.Client
	model       string
	maxTokens   int
	temperature float64
	timeout     time.Duration
	log         zerolog.Logger
}

// NewAnthropicClient constructs the client. The API key is read from the
// ANTHROPIC_API_KEY environment variable, never from the config file.
func NewAnthropicClient(apiKey string, cfg *config.Config, log zerolog.Logger) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic API key not set")
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicClient{
		client:      &client,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		timeout:     cfg.RequestTimeout(),
		log:         log.With().Str("component", "llm").Str("backend", "anthropic").Logger(),
	}, nil
}

// Chat performs one request/response exchange with the Messages API.
func (c *AnthropicClient) Chat(ctx context.Context, messages []session.Message, catalog []tools.Tool) (*ChatResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	wireMessages, systemPrompt := renderAnthropicMessages(messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(c.maxTokens),
		Messages:  wireMessages,
		// Claude models treat temperature and nucleus sampling as mutually
		// exclusive; temperature is in effect, so top_p is omitted.
		Temperature: anthropic.Float(c.temperature),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}
	for _, t := range catalog {
		schema := t.InputSchema()
		toolParam := anthropic.ToolParam{
			Name:        t.Name(),
			Description: anthropic.String(t.Description()),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: schema["properties"],
			},
		}
		if required, ok := schema["required"].([]string); ok {
			toolParam.InputSchema.Required = required
		}
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{OfTool: &toolParam})
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, wrapBackendErr(ctx, err, "Anthropic")
	}
	return c.parseResponse(resp)
}

// renderAnthropicMessages maps internal turns to SDK message params. Tool
// results fold into the open tail user message when one exists, matching the
// API's requirement that a tool_result immediately follows its tool_use.
func renderAnthropicMessages(messages []session.Message) ([]anthropic.MessageParam, string) {
	var out []anthropic.MessageParam
	var systemPrompt string

	appendUserBlock := func(block anthropic.ContentBlockParamUnion) {
		if len(out) > 0 && out[len(out)-1].Role == anthropic.MessageParamRoleUser {
			out[len(out)-1].Content = append(out[len(out)-1].Content, block)
			return
		}
		out = append(out, anthropic.MessageParam{
			Role:    anthropic.MessageParamRoleUser,
			Content: []anthropic.ContentBlockParamUnion{block},
		})
	}

	for _, msg := range messages {
		switch msg.Role {
		case session.RoleSystem:
			systemPrompt = msg.Content

		case session.RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))

		case session.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				input, err := json.Marshal(tc.Args)
				if err != nil {
					continue
				}
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    tc.ToolCallID,
						Name:  tc.Name,
						Input: input,
					},
				})
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.MessageParam{
					Role:    anthropic.MessageParamRoleAssistant,
					Content: blocks,
				})
			}

		case session.RoleTool:
			appendUserBlock(anthropic.ContentBlockParamUnion{
				OfToolResult: &anthropic.ToolResultBlockParam{
					ToolUseID: msg.ToolCallID,
					Content: []anthropic.ToolResultBlockParamContentUnion{{
						OfText: &anthropic.TextBlockParam{Text: msg.Content},
					}},
				},
			})
		}
	}

	return out, systemPrompt
}

func (c *AnthropicClient) parseResponse(resp *anthropic.Message) (*ChatResponse, error) {
	raw := string(resp.StopReason)
	if raw == "" {
		return nil, backendErrorf("Anthropic response missing stop_reason field")
	}

	out := &ChatResponse{RawStopReason: raw}
	switch resp.StopReason {
	case anthropic.StopReasonToolUse:
		out.StopReason = StopToolUse
	case anthropic.StopReasonEndTurn:
		out.StopReason = StopEndTurn
	default:
		out.StopReason = StopOther
	}

	var text strings.Builder
	for _, content := range resp.Content {
		switch block := content.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(block.Text)
		case anthropic.ToolUseBlock:
			var args map[string]interface{}
			if err := json.Unmarshal(block.Input, &args); err != nil {
				return nil, backendErrorf("could not decode tool call input: %v", err)
			}
			id := block.ID
			if id == "" {
				id = fallbackToolCallID(c.log, block.Name)
			}
			out.ToolCalls = append(out.ToolCalls, session.ToolCall{
				ToolCallID: id,
				Name:       block.Name,
				Args:       args,
			})
		}
	}
	out.Text = text.String()
	return out, nil
}
