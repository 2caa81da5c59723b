package devices

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hestia-agent/hestia/errors"
)

// HassClient talks to a Home Assistant instance over its REST API. It serves
// both as the device registry behind snapshot generation and as the command
// invoker behind the service-call tool.
type HassClient struct {
	baseURL string
	token   string
	http    *http.Client
	log     zerolog.Logger
}

// NewHassClient creates a client for the given instance URL and long-lived
// access token.
func NewHassClient(baseURL, token string, log zerolog.Logger) *HassClient {
	return &HassClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
		log:     log.With().Str("component", "hass").Logger(),
	}
}

type hassState struct {
	EntityID   string                 `json:"entity_id"`
	State      string                 `json:"state"`
	Attributes map[string]interface{} `json:"attributes"`
}

// ListStates fetches the current state of every entity.
func (c *HassClient) ListStates() ([]State, error) {
	body, err := c.get("/api/states")
	if err != nil {
		return nil, err
	}
	var raw []hassState
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, errors.Wrapf(err, "error decoding states response")
	}
	states := make([]State, 0, len(raw))
	for _, r := range raw {
		name, _ := r.Attributes["friendly_name"].(string)
		states = append(states, State{
			EntityID:     r.EntityID,
			State:        r.State,
			FriendlyName: name,
			Attributes:   r.Attributes,
		})
	}
	return states, nil
}

// IsExposed reports whether an entity is visible on the given surface. The
// REST surface carries no per-surface expose flags, so every listed entity
// counts as exposed; narrowing happens through the configured entity
// patterns.
func (c *HassClient) IsExposed(entityID, surface string) bool {
	return true
}

// AreaOf resolves the area id an entity belongs to via the template API.
func (c *HassClient) AreaOf(entityID string) (string, bool) {
	out, err := c.renderTemplate(fmt.Sprintf("{{ area_id(%q) }}", entityID))
	if err != nil {
		c.log.Warn().Err(err).Str("entity_id", entityID).Msg("area lookup failed")
		return "", false
	}
	if out == "" || out == "None" {
		return "", false
	}
	return out, true
}

// AreaName resolves an area id to its display name via the template API.
func (c *HassClient) AreaName(areaID string) (string, bool) {
	out, err := c.renderTemplate(fmt.Sprintf("{{ area_name(%q) }}", areaID))
	if err != nil {
		c.log.Warn().Err(err).Str("area_id", areaID).Msg("area name lookup failed")
		return "", false
	}
	if out == "" || out == "None" {
		return "", false
	}
	return out, true
}

// Invoke calls a device-control service against the target entity.
func (c *HassClient) Invoke(ctx context.Context, domain, action, target string, extraArgs map[string]interface{}) error {
	payload := map[string]interface{}{"entity_id": target}
	for k, v := range extraArgs {
		payload[k] = v
	}
	path := fmt.Sprintf("/api/services/%s/%s", domain, action)
	if _, err := c.post(ctx, path, payload); err != nil {
		return errors.Wrapf(err, "error calling service %s.%s", domain, action)
	}
	c.log.Debug().Str("service", domain+"."+action).Str("target", target).Msg("service call dispatched")
	return nil
}

func (c *HassClient) renderTemplate(tmpl string) (string, error) {
	body, err := c.post(context.Background(), "/api/template", map[string]interface{}{"template": tmpl})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

func (c *HassClient) get(path string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "error building request")
	}
	return c.do(req)
}

func (c *HassClient) post(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "error encoding request body")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return nil, errors.Wrapf(err, "error building request")
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *HassClient) do(req *http.Request) ([]byte, error) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "error reaching Home Assistant")
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading response body")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.New("Home Assistant returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
