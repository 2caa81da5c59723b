package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hestia-agent/hestia/agent"
	"github.com/hestia-agent/hestia/config"
	"github.com/hestia-agent/hestia/devices"
	"github.com/hestia-agent/hestia/llm"
	"github.com/hestia-agent/hestia/prompt"
	"github.com/hestia-agent/hestia/session"
	"github.com/hestia-agent/hestia/tools"
)

type fixedClient struct {
	resp *llm.ChatResponse
	err  error
}

func (f *fixedClient) Chat(ctx context.Context, messages []session.Message, catalog []tools.Tool) (*llm.ChatResponse, error) {
	return f.resp, f.err
}

type emptyProvider struct{}

func (emptyProvider) Snapshot() ([]devices.Snapshot, error) { return nil, nil }

func newTestServer(t *testing.T, client llm.Client) *Server {
	t.Helper()
	cfg := config.Default()
	store := session.NewStore(t.TempDir())
	factory := func(ctx context.Context) (llm.Client, error) { return client, nil }
	a := agent.New(cfg, store, emptyProvider{}, prompt.NewComposer(), tools.NewCatalog(), factory, zerolog.Nop())
	return New(a, DefaultConfig(":0"), zerolog.Nop())
}

func doRequest(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)
	return rec
}

func TestProcessEndpoint(t *testing.T) {
	client := &fixedClient{resp: &llm.ChatResponse{
		StopReason: llm.StopEndTurn, RawStopReason: "end_turn", Text: "The light is on.",
	}}
	s := newTestServer(t, client)

	rec := doRequest(s, http.MethodPost, "/api/conversation/process",
		`{"text": "turn on the light", "conversation_id": "conv-9"}`)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp processResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "The light is on.", resp.Response.Speech.Plain.Speech)
	assert.Equal(t, "action_done", resp.Response.ResponseType)
	assert.Equal(t, "conv-9", resp.ConversationID)
}

func TestProcessEndpointErrorEnvelope(t *testing.T) {
	client := &fixedClient{err: &llm.BackendError{Message: "Bedrock request timed out"}}
	s := newTestServer(t, client)

	rec := doRequest(s, http.MethodPost, "/api/conversation/process",
		`{"text": "hello"}`)

	// Agent failures still answer 200 with an error-typed envelope.
	require.Equal(t, http.StatusOK, rec.Code)

	var resp processResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "error", resp.Response.ResponseType)
	assert.Contains(t, resp.Response.Speech.Plain.Speech, "Bedrock request timed out")
	assert.NotEmpty(t, resp.ConversationID)
}

func TestProcessEndpointRejectsEmptyText(t *testing.T) {
	s := newTestServer(t, &fixedClient{})

	rec := doRequest(s, http.MethodPost, "/api/conversation/process", `{"text": ""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(s, http.MethodPost, "/api/conversation/process", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, &fixedClient{})

	rec := doRequest(s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}
