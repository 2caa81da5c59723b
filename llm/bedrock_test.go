package llm

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/hestia-agent/hestia/session"
)

func TestFamily(t *testing.T) {
	cases := map[string]string{
		"anthropic.claude-3-5-sonnet-20240620-v1:0": "claude",
		"meta.llama3-70b-instruct-v1:0":             "llama",
		"mistral.mistral-large-2402-v1:0":           "mistral",
		"amazon.titan-text-express-v1":              "generic",
	}
	for modelID, want := range cases {
		if got := family(modelID); got != want {
			t.Errorf("family(%q) = %q, want %q", modelID, got, want)
		}
	}
}

func TestRenderBedrockMessages(t *testing.T) {
	messages := []session.Message{
		{Role: session.RoleSystem, Content: "You are Al."},
		{Role: session.RoleUser, Content: "Turn on the kitchen light."},
		{Role: session.RoleAssistant, ToolCalls: []session.ToolCall{
			{ToolCallID: "abc1", Name: "HassCallService", Args: map[string]interface{}{
				"service": "light.turn_on", "target_device": "light.kitchen",
			}},
		}},
		{Role: session.RoleTool, ToolCallID: "abc1", ToolName: "HassCallService",
			Content: `{"result":"success"}`},
	}

	wire, system := renderBedrockMessages(messages)

	if system != "You are Al." {
		t.Errorf("expected system prompt extracted, got %q", system)
	}
	if len(wire) != 3 {
		t.Fatalf("expected 3 wire messages, got %d", len(wire))
	}

	if wire[0].Role != "user" || wire[0].Content[0].Text != "Turn on the kitchen light." {
		t.Errorf("unexpected first message: %+v", wire[0])
	}

	if wire[1].Role != "assistant" {
		t.Fatalf("expected assistant message, got %q", wire[1].Role)
	}
	toolUse := wire[1].Content[0]
	if toolUse.Type != "tool_use" || toolUse.ID != "abc1" || toolUse.Name != "HassCallService" {
		t.Errorf("unexpected tool_use block: %+v", toolUse)
	}

	// The tool result becomes a user-role tool_result block correlated by id.
	if wire[2].Role != "user" {
		t.Fatalf("expected user-role tool result, got %q", wire[2].Role)
	}
	result := wire[2].Content[0]
	if result.Type != "tool_result" || result.ToolUseID != "abc1" {
		t.Errorf("unexpected tool_result block: %+v", result)
	}
}

func TestRenderBedrockMessagesFoldsToolResultIntoOpenUserTurn(t *testing.T) {
	messages := []session.Message{
		{Role: session.RoleTool, ToolCallID: "t1", Content: `{"result":"success"}`},
		{Role: session.RoleTool, ToolCallID: "t2", Content: `{"result":"success"}`},
	}
	wire, _ := renderBedrockMessages(messages)
	if len(wire) != 1 {
		t.Fatalf("expected consecutive tool results folded into one user message, got %d", len(wire))
	}
	if len(wire[0].Content) != 2 {
		t.Errorf("expected 2 tool_result blocks, got %d", len(wire[0].Content))
	}
}

func TestBuildClaudeRequestSendsTemperatureOnly(t *testing.T) {
	c := &BedrockClient{
		modelID:     "anthropic.claude-3-5-sonnet-20240620-v1:0",
		maxTokens:   4096,
		temperature: 0.7,
		topP:        0.999,
		topK:        250,
		log:         zerolog.Nop(),
	}
	body, err := c.buildClaudeRequest([]session.Message{
		{Role: session.RoleUser, Content: "hi"},
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var req map[string]interface{}
	if err := json.Unmarshal(body, &req); err != nil {
		t.Fatalf("request is not valid JSON: %v", err)
	}
	if req["anthropic_version"] != anthropicVersion {
		t.Errorf("expected anthropic_version %q, got %v", anthropicVersion, req["anthropic_version"])
	}
	if req["temperature"] != 0.7 {
		t.Errorf("expected temperature 0.7, got %v", req["temperature"])
	}
	if _, ok := req["top_p"]; ok {
		t.Error("expected top_p omitted for claude models")
	}
	if _, ok := req["top_k"]; ok {
		t.Error("expected top_k omitted for claude models")
	}
}

func TestBuildTextRequestLlama(t *testing.T) {
	c := &BedrockClient{
		modelID:     "meta.llama3-70b-instruct-v1:0",
		maxTokens:   512,
		temperature: 0.5,
		topP:        0.9,
		log:         zerolog.Nop(),
	}
	body, err := c.buildTextRequest([]session.Message{
		{Role: session.RoleSystem, Content: "You are Al."},
		{Role: session.RoleUser, Content: "hello"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var req map[string]interface{}
	json.Unmarshal(body, &req)
	if req["max_gen_len"] != float64(512) {
		t.Errorf("expected max_gen_len 512, got %v", req["max_gen_len"])
	}
	prompt, _ := req["prompt"].(string)
	if !strings.Contains(prompt, "You are Al.") || !strings.Contains(prompt, "hello") {
		t.Errorf("expected flattened prompt, got %q", prompt)
	}
}

func TestParseClaudeResponseToolUse(t *testing.T) {
	c := &BedrockClient{log: zerolog.Nop()}
	body := []byte(`{
		"content": [
			{"type": "text", "text": "Turning it on."},
			{"type": "tool_use", "id": "abc1", "name": "HassCallService",
			 "input": {"service": "light.turn_on", "target_device": "light.kitchen"}}
		],
		"stop_reason": "tool_use"
	}`)

	resp, err := c.parseClaudeResponse(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StopReason != StopToolUse {
		t.Errorf("expected StopToolUse, got %q", resp.StopReason)
	}
	if resp.Text != "Turning it on." {
		t.Errorf("unexpected text: %q", resp.Text)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(resp.ToolCalls))
	}
	call := resp.ToolCalls[0]
	if call.ToolCallID != "abc1" {
		t.Errorf("expected backend call id preserved verbatim, got %q", call.ToolCallID)
	}
	if call.Args["service"] != "light.turn_on" {
		t.Errorf("unexpected args: %v", call.Args)
	}
}

func TestParseClaudeResponseEndTurn(t *testing.T) {
	c := &BedrockClient{log: zerolog.Nop()}
	resp, err := c.parseClaudeResponse([]byte(`{"content":[{"type":"text","text":"Done."}],"stop_reason":"end_turn"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StopReason != StopEndTurn || resp.Text != "Done." {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestParseClaudeResponseMissingStopReason(t *testing.T) {
	c := &BedrockClient{log: zerolog.Nop()}
	_, err := c.parseClaudeResponse([]byte(`{"content":[{"type":"text","text":"hi"}]}`))
	if err == nil {
		t.Fatal("expected error for missing stop_reason")
	}
	if _, ok := err.(*BackendError); !ok {
		t.Errorf("expected *BackendError, got %T", err)
	}
	if !strings.Contains(err.Error(), "stop_reason") {
		t.Errorf("expected stop_reason mentioned, got %q", err)
	}
}

func TestParseClaudeResponseUnknownStopReason(t *testing.T) {
	c := &BedrockClient{log: zerolog.Nop()}
	resp, err := c.parseClaudeResponse([]byte(`{"content":[],"stop_reason":"max_tokens"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StopReason != StopOther {
		t.Errorf("expected StopOther, got %q", resp.StopReason)
	}
	if resp.RawStopReason != "max_tokens" {
		t.Errorf("expected raw code preserved, got %q", resp.RawStopReason)
	}
}

func TestParseClaudeResponseMissingToolCallID(t *testing.T) {
	c := &BedrockClient{log: zerolog.Nop()}
	resp, err := c.parseClaudeResponse([]byte(`{
		"content":[{"type":"tool_use","name":"HassCallService","input":{}}],
		"stop_reason":"tool_use"
	}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].ToolCallID == "" {
		t.Error("expected a synthesized tool call id when the backend omits one")
	}
}

func TestParseTextResponseVariants(t *testing.T) {
	resp, err := parseTextResponse([]byte(`{"generation":"hello"}`), "generation")
	if err != nil || resp.Text != "hello" {
		t.Errorf("llama parse failed: %v %+v", err, resp)
	}

	resp, err = parseMistralResponse([]byte(`{"outputs":[{"text":"bonjour"}]}`))
	if err != nil || resp.Text != "bonjour" {
		t.Errorf("mistral parse failed: %v %+v", err, resp)
	}
}
