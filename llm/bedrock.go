package llm

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/rs/zerolog"

	"github.com/hestia-agent/hestia/config"
	"github.com/hestia-agent/hestia/errors"
	"github.com/hestia-agent/hestia/session"
	"github.com/hestia-agent/hestia/tools"
)

const anthropicVersion = "bedrock-2023-05-31"

// BedrockClient talks to models hosted on AWS Bedrock via InvokeModel.
// Anthropic Claude models get the full tool-calling Messages wire shape;
// meta.llama and mistral models are supported for plain text generation only.
type BedrockClient struct {
	runtime     *bedrockruntime.Client
	modelID     string
	maxTokens   int
	temperature float64
	topP        float64
	topK        int
	timeout     time.Duration
	log         zerolog.Logger
}

// NewBedrockClient constructs the client from configuration. Static
// credentials from the config take precedence over the ambient AWS chain.
func NewBedrockClient(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*BedrockClient, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWS.Region),
	}
	if cfg.AWS.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.AWS.AccessKeyID, cfg.AWS.SecretAccessKey, cfg.AWS.SessionToken,
			),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load AWS config")
	}

	return &BedrockClient{
		runtime:     bedrockruntime.NewFromConfig(awsCfg),
		modelID:     cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		topP:        cfg.TopP,
		topK:        cfg.TopK,
		timeout:     cfg.RequestTimeout(),
		log:         log.With().Str("component", "llm").Str("backend", "bedrock").Logger(),
	}, nil
}

// Wire shapes for the Anthropic Messages format on Bedrock.

type bedrockBlock struct {
	Type      string                 `json:"type"`
	Text      string                 `json:"text,omitempty"`
	ID        string                 `json:"id,omitempty"`
	Name      string                 `json:"name,omitempty"`
	Input     map[string]interface{} `json:"input,omitempty"`
	ToolUseID string                 `json:"tool_use_id,omitempty"`
	Content   []bedrockBlock         `json:"content,omitempty"`
}

type bedrockMessage struct {
	Role    string         `json:"role"`
	Content []bedrockBlock `json:"content"`
}

type bedrockToolDef struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

type bedrockRequest struct {
	AnthropicVersion string                 `json:"anthropic_version"`
	MaxTokens        int                    `json:"max_tokens"`
	System           string                 `json:"system,omitempty"`
	Messages         []bedrockMessage       `json:"messages"`
	Tools            []bedrockToolDef       `json:"tools,omitempty"`
	Temperature      *float64               `json:"temperature,omitempty"`
	TopP             *float64               `json:"top_p,omitempty"`
	TopK             *int                   `json:"top_k,omitempty"`
}

type bedrockResponse struct {
	Content    []bedrockBlock `json:"content"`
	StopReason *string        `json:"stop_reason"`
}

// Chat renders the conversation, invokes the model once and parses the
// response. All failures come back as *BackendError.
func (c *BedrockClient) Chat(ctx context.Context, messages []session.Message, catalog []tools.Tool) (*ChatResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body []byte
	var err error
	switch family(c.modelID) {
	case "claude":
		body, err = c.buildClaudeRequest(messages, catalog)
	default:
		body, err = c.buildTextRequest(messages)
	}
	if err != nil {
		return nil, backendErrorf("could not build Bedrock request: %v", err)
	}

	c.log.Debug().Str("model", c.modelID).Int("messages", len(messages)).
		Msg("invoking Bedrock model")

	resp, err := c.runtime.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.modelID),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, wrapBackendErr(ctx, err, "Bedrock")
	}

	switch family(c.modelID) {
	case "claude":
		return c.parseClaudeResponse(resp.Body)
	case "llama":
		return parseTextResponse(resp.Body, "generation")
	case "mistral":
		return parseMistralResponse(resp.Body)
	default:
		return parseTextResponse(resp.Body, "completion")
	}
}

func family(modelID string) string {
	switch {
	case strings.Contains(modelID, "anthropic.claude"):
		return "claude"
	case strings.Contains(modelID, "meta.llama"):
		return "llama"
	case strings.Contains(modelID, "mistral"):
		return "mistral"
	}
	return "generic"
}

func (c *BedrockClient) buildClaudeRequest(messages []session.Message, catalog []tools.Tool) ([]byte, error) {
	wireMessages, systemPrompt := renderBedrockMessages(messages)

	req := bedrockRequest{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        c.maxTokens,
		System:           systemPrompt,
		Messages:         wireMessages,
	}
	for _, t := range catalog {
		req.Tools = append(req.Tools, bedrockToolDef{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.InputSchema(),
		})
	}

	// Claude models reject temperature combined with nucleus sampling, so
	// top_p and top_k are sent only to other model families.
	temp := c.temperature
	req.Temperature = &temp

	return json.Marshal(req)
}

// buildTextRequest flattens the conversation into a single prompt for the
// text-only Bedrock families.
func (c *BedrockClient) buildTextRequest(messages []session.Message) ([]byte, error) {
	var sb strings.Builder
	for _, msg := range messages {
		switch msg.Role {
		case session.RoleSystem, session.RoleUser:
			sb.WriteString(msg.Content)
			sb.WriteString("\n\n")
		case session.RoleAssistant:
			if msg.Content != "" {
				sb.WriteString(msg.Content)
				sb.WriteString("\n\n")
			}
		}
	}
	prompt := strings.TrimSpace(sb.String())

	switch family(c.modelID) {
	case "llama":
		return json.Marshal(map[string]interface{}{
			"prompt":      prompt,
			"max_gen_len": c.maxTokens,
			"temperature": c.temperature,
		})
	default:
		return json.Marshal(map[string]interface{}{
			"prompt":      prompt,
			"max_tokens":  c.maxTokens,
			"temperature": c.temperature,
			"top_p":       c.topP,
		})
	}
}

// renderBedrockMessages maps internal turns onto the Anthropic Messages wire
// shape. The system turn goes to the dedicated system field; tool results are
// folded into a user-role message, appending to the previous message when it
// is already an open user turn.
func renderBedrockMessages(messages []session.Message) ([]bedrockMessage, string) {
	var out []bedrockMessage
	var systemPrompt string

	for _, msg := range messages {
		switch msg.Role {
		case session.RoleSystem:
			systemPrompt = msg.Content

		case session.RoleUser:
			out = append(out, bedrockMessage{
				Role:    "user",
				Content: []bedrockBlock{{Type: "text", Text: msg.Content}},
			})

		case session.RoleAssistant:
			var blocks []bedrockBlock
			if msg.Content != "" {
				blocks = append(blocks, bedrockBlock{Type: "text", Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				blocks = append(blocks, bedrockBlock{
					Type:  "tool_use",
					ID:    tc.ToolCallID,
					Name:  tc.Name,
					Input: tc.Args,
				})
			}
			if len(blocks) > 0 {
				out = append(out, bedrockMessage{Role: "assistant", Content: blocks})
			}

		case session.RoleTool:
			block := bedrockBlock{
				Type:      "tool_result",
				ToolUseID: msg.ToolCallID,
				Content:   []bedrockBlock{{Type: "text", Text: msg.Content}},
			}
			if len(out) > 0 && out[len(out)-1].Role == "user" {
				out[len(out)-1].Content = append(out[len(out)-1].Content, block)
			} else {
				out = append(out, bedrockMessage{Role: "user", Content: []bedrockBlock{block}})
			}
		}
	}

	return out, systemPrompt
}

func (c *BedrockClient) parseClaudeResponse(body []byte) (*ChatResponse, error) {
	var resp bedrockResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, backendErrorf("could not decode Bedrock response: %v", err)
	}

	// A missing stop_reason is a protocol violation; guessing "done" here
	// could discard a tool-use intent.
	if resp.StopReason == nil {
		return nil, backendErrorf("Bedrock response missing stop_reason field")
	}

	out := &ChatResponse{RawStopReason: *resp.StopReason}
	switch *resp.StopReason {
	case "tool_use":
		out.StopReason = StopToolUse
	case "end_turn":
		out.StopReason = StopEndTurn
	default:
		out.StopReason = StopOther
	}

	var text strings.Builder
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			id := block.ID
			if id == "" {
				id = fallbackToolCallID(c.log, block.Name)
			}
			args := block.Input
			if args == nil {
				args = map[string]interface{}{}
			}
			out.ToolCalls = append(out.ToolCalls, session.ToolCall{
				ToolCallID: id,
				Name:       block.Name,
				Args:       args,
			})
		}
	}
	out.Text = text.String()

	c.log.Debug().Str("stop_reason", out.RawStopReason).
		Int("tool_calls", len(out.ToolCalls)).Msg("parsed Bedrock response")
	return out, nil
}

func parseTextResponse(body []byte, field string) (*ChatResponse, error) {
	var resp map[string]interface{}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, backendErrorf("could not decode Bedrock response: %v", err)
	}
	text, _ := resp[field].(string)
	return &ChatResponse{StopReason: StopEndTurn, RawStopReason: "end_turn", Text: text}, nil
}

func parseMistralResponse(body []byte) (*ChatResponse, error) {
	var resp struct {
		Outputs []struct {
			Text string `json:"text"`
		} `json:"outputs"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, backendErrorf("could not decode Bedrock response: %v", err)
	}
	var text string
	if len(resp.Outputs) > 0 {
		text = resp.Outputs[0].Text
	}
	return &ChatResponse{StopReason: StopEndTurn, RawStopReason: "end_turn", Text: text}, nil
}
