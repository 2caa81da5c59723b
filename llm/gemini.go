package llm

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"github.com/hestia-agent/hestia/config"
	"github.com/hestia-agent/hestia/errors"
	"github.com/hestia-agent/hestia/session"
	"github.com/hestia-agent/hestia/tools"
)

// GeminiClient talks to the Google Gemini API. Gemini does not supply tool
// call ids, so ids for its calls are always synthesized locally (and logged).
type GeminiClient struct {
	client  *genai.Client
	model   string
	cfg     *config.Config
	timeout time.Duration
	log     zerolog.Logger
}

// NewGeminiClient constructs the client from an API key.
func NewGeminiClient(ctx context.Context, apiKey string, cfg *config.Config, log zerolog.Logger) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, errors.New("Gemini API key not set")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create genai client")
	}
	return &GeminiClient{
		client:  client,
		model:   cfg.Model,
		cfg:     cfg,
		timeout: cfg.RequestTimeout(),
		log:     log.With().Str("component", "llm").Str("backend", "gemini").Logger(),
	}, nil
}

// Chat performs one generation exchange.
func (c *GeminiClient) Chat(ctx context.Context, messages []session.Message, catalog []tools.Tool) (*ChatResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	model := c.client.GenerativeModel(c.model)
	model.SetMaxOutputTokens(int32(c.cfg.MaxTokens))
	// This family accepts temperature together with nucleus/top-k sampling.
	model.SetTemperature(float32(c.cfg.Temperature))
	model.SetTopP(float32(c.cfg.TopP))
	model.SetTopK(int32(c.cfg.TopK))

	history, systemPrompt := renderGeminiContents(messages)
	if systemPrompt != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}
	}
	model.Tools = renderGeminiTools(catalog)

	if len(history) == 0 {
		return nil, backendErrorf("conversation has no sendable messages")
	}
	last := history[len(history)-1]

	chat := model.StartChat()
	chat.History = history[:len(history)-1]

	resp, err := chat.SendMessage(ctx, last.Parts...)
	if err != nil {
		return nil, wrapBackendErr(ctx, err, "Gemini")
	}
	return c.parseResponse(resp)
}

// renderGeminiContents converts internal turns to genai contents. The system
// turn is returned separately for the model's system instruction.
func renderGeminiContents(messages []session.Message) ([]*genai.Content, string) {
	var out []*genai.Content
	var systemPrompt string

	for _, msg := range messages {
		switch msg.Role {
		case session.RoleSystem:
			systemPrompt = msg.Content

		case session.RoleUser:
			out = append(out, &genai.Content{
				Role:  "user",
				Parts: []genai.Part{genai.Text(msg.Content)},
			})

		case session.RoleAssistant:
			var parts []genai.Part
			if msg.Content != "" {
				parts = append(parts, genai.Text(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				parts = append(parts, genai.FunctionCall{Name: tc.Name, Args: tc.Args})
			}
			if len(parts) > 0 {
				out = append(out, &genai.Content{Role: "model", Parts: parts})
			}

		case session.RoleTool:
			var response map[string]interface{}
			if err := json.Unmarshal([]byte(msg.Content), &response); err != nil {
				response = map[string]interface{}{"result": msg.Content}
			}
			out = append(out, &genai.Content{
				Role:  "function",
				Parts: []genai.Part{genai.FunctionResponse{Name: msg.ToolName, Response: response}},
			})
		}
	}

	return out, systemPrompt
}

func renderGeminiTools(catalog []tools.Tool) []*genai.Tool {
	if len(catalog) == 0 {
		return nil
	}
	var decls []*genai.FunctionDeclaration
	for _, t := range catalog {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  schemaToGenai(t.InputSchema()),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// schemaToGenai converts the JSON-schema-shaped tool parameters into the
// genai schema type. Only the object/properties/required subset used by the
// catalog is mapped.
func schemaToGenai(schema map[string]interface{}) *genai.Schema {
	out := &genai.Schema{Type: genai.TypeObject, Properties: map[string]*genai.Schema{}}

	if props, ok := schema["properties"].(map[string]interface{}); ok {
		for name, raw := range props {
			prop, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			entry := &genai.Schema{Type: genaiType(prop["type"])}
			if desc, ok := prop["description"].(string); ok {
				entry.Description = desc
			}
			out.Properties[name] = entry
		}
	}
	if required, ok := schema["required"].([]string); ok {
		out.Required = required
	}
	return out
}

func genaiType(t interface{}) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	}
	return genai.TypeString
}

func (c *GeminiClient) parseResponse(resp *genai.GenerateContentResponse) (*ChatResponse, error) {
	if len(resp.Candidates) == 0 {
		return nil, backendErrorf("Gemini response contained no candidates")
	}
	candidate := resp.Candidates[0]

	if candidate.FinishReason == genai.FinishReasonUnspecified {
		return nil, backendErrorf("Gemini response missing finish reason")
	}

	out := &ChatResponse{RawStopReason: candidate.FinishReason.String()}

	var text strings.Builder
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			switch p := part.(type) {
			case genai.Text:
				text.WriteString(string(p))
			case genai.FunctionCall:
				args := p.Args
				if args == nil {
					args = map[string]interface{}{}
				}
				out.ToolCalls = append(out.ToolCalls, session.ToolCall{
					ToolCallID: fallbackToolCallID(c.log, p.Name),
					Name:       p.Name,
					Args:       args,
				})
			}
		}
	}
	out.Text = text.String()

	switch {
	case len(out.ToolCalls) > 0:
		out.StopReason = StopToolUse
	case candidate.FinishReason == genai.FinishReasonStop:
		out.StopReason = StopEndTurn
	default:
		out.StopReason = StopOther
	}
	return out, nil
}
