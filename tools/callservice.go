package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// ServiceToolName is the name of the single device-control tool.
const ServiceToolName = "HassCallService"

// Validation failure kinds.
type ValidationKind string

const (
	MalformedService ValidationKind = "malformed_service"
	DomainNotAllowed ValidationKind = "domain_not_allowed"
	ServiceNotAllowed ValidationKind = "service_not_allowed"
	MissingArgument  ValidationKind = "missing_argument"
)

// ValidationError rejects a tool call before dispatch. It is always recovered
// locally: the loop feeds it back to the model as an error-shaped tool result,
// never as a process-level failure.
type ValidationError struct {
	Kind    ValidationKind
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// allowedExtraArguments is the fixed set of optional parameters that may pass
// through to the execution backend. Anything else is dropped before dispatch.
var allowedExtraArguments = []string{
	"brightness", "rgb_color", "temperature", "humidity",
	"fan_mode", "hvac_mode", "preset_mode", "item", "duration",
}

// CommandRequest is a validated, dispatch-ready device command. Treated as
// immutable once constructed.
type CommandRequest struct {
	Domain    string
	Action    string
	Target    string
	ExtraArgs map[string]interface{}
}

// Service returns the fully-qualified service identifier.
func (r CommandRequest) Service() string {
	return r.Domain + "." + r.Action
}

// Invoker is the device-control backend collaborator. Invoke blocks until the
// backend acknowledges the command or rejects it.
type Invoker interface {
	Invoke(ctx context.Context, domain, action, target string, extraArgs map[string]interface{}) error
}

// CallServiceTool is the one safety-gated tool: it lets the model call an
// allow-listed device-control service against a named target device.
type CallServiceTool struct {
	invoker         Invoker
	allowedDomains  map[string]struct{}
	allowedServices map[string]struct{}
	log             zerolog.Logger
}

// NewCallServiceTool builds the tool. allowedServices entries may be bare
// action names ("turn_on") or fully qualified ("light.turn_on"); either form
// admits the corresponding call.
func NewCallServiceTool(invoker Invoker, allowedDomains, allowedServices []string, log zerolog.Logger) *CallServiceTool {
	return &CallServiceTool{
		invoker:         invoker,
		allowedDomains:  toSet(allowedDomains),
		allowedServices: toSet(allowedServices),
		log:             log.With().Str("component", "tools").Logger(),
	}
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}

func (t *CallServiceTool) Name() string { return ServiceToolName }

func (t *CallServiceTool) Description() string {
	return "Use this tool to call services to control the devices in the house."
}

func (t *CallServiceTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"service": map[string]interface{}{
				"type":        "string",
				"description": "The service to call (e.g., 'light.turn_on')",
			},
			"target_device": map[string]interface{}{
				"type":        "string",
				"description": "The entity_id of the device to control",
			},
			"brightness": map[string]interface{}{
				"type":        "number",
				"description": "Brightness level (0-255)",
			},
			"rgb_color": map[string]interface{}{
				"type":        "string",
				"description": "RGB color as comma-separated values (e.g., '255,0,0')",
			},
			"temperature": map[string]interface{}{
				"type":        "number",
				"description": "Temperature setting",
			},
			"humidity": map[string]interface{}{
				"type":        "number",
				"description": "Humidity setting",
			},
			"fan_mode": map[string]interface{}{
				"type":        "string",
				"description": "Fan mode setting",
			},
			"hvac_mode": map[string]interface{}{
				"type":        "string",
				"description": "HVAC mode setting",
			},
			"preset_mode": map[string]interface{}{
				"type":        "string",
				"description": "Preset mode",
			},
			"item": map[string]interface{}{
				"type":        "string",
				"description": "Item to add to a list",
			},
			"duration": map[string]interface{}{
				"type":        "string",
				"description": "Duration for the action",
			},
		},
		"required": []string{"service", "target_device"},
	}
}

// ValidateAndBuild checks the raw arguments against the allow-lists and
// returns an immutable CommandRequest ready for dispatch.
func (t *CallServiceTool) ValidateAndBuild(args map[string]interface{}) (CommandRequest, *ValidationError) {
	service, ok := stringArg(args, "service")
	if !ok || service == "" {
		return CommandRequest{}, &ValidationError{Kind: MissingArgument, Message: "missing required argument 'service'"}
	}
	target, ok := stringArg(args, "target_device")
	if !ok || target == "" {
		return CommandRequest{}, &ValidationError{Kind: MissingArgument, Message: "missing required argument 'target_device'"}
	}

	domain, action, found := strings.Cut(service, ".")
	if !found || domain == "" || action == "" || strings.Contains(action, ".") {
		return CommandRequest{}, &ValidationError{
			Kind:    MalformedService,
			Message: fmt.Sprintf("service %q must have the form domain.action", service),
		}
	}

	if _, ok := t.allowedDomains[domain]; !ok {
		return CommandRequest{}, &ValidationError{
			Kind:    DomainNotAllowed,
			Message: fmt.Sprintf("domain %q is not allowed", domain),
		}
	}

	// Both lists must pass: the service list is independent of and stricter
	// than the domain list.
	if !t.serviceAllowed(domain, action) {
		return CommandRequest{}, &ValidationError{
			Kind:    ServiceNotAllowed,
			Message: fmt.Sprintf("service %q is not allowed", service),
		}
	}

	extra := make(map[string]interface{})
	for _, name := range allowedExtraArguments {
		if value, ok := args[name]; ok {
			extra[name] = value
		}
	}
	for name := range args {
		if name == "service" || name == "target_device" {
			continue
		}
		if _, ok := extra[name]; !ok {
			// Deliberate safety boundary: unknown parameters never reach the
			// execution backend.
			t.log.Warn().Str("argument", name).Str("service", service).
				Msg("dropping argument not on the allow-list")
		}
	}

	return CommandRequest{Domain: domain, Action: action, Target: target, ExtraArgs: extra}, nil
}

func (t *CallServiceTool) serviceAllowed(domain, action string) bool {
	if _, ok := t.allowedServices[domain+"."+action]; ok {
		return true
	}
	_, ok := t.allowedServices[action]
	return ok
}

// Execute validates and dispatches the call. It always returns a result map;
// backend failures are captured as data because the conversation loop treats
// tool execution as always terminating with a result object.
func (t *CallServiceTool) Execute(ctx context.Context, args map[string]interface{}) map[string]interface{} {
	req, verr := t.ValidateAndBuild(args)
	if verr != nil {
		t.log.Warn().Str("kind", string(verr.Kind)).Str("reason", verr.Message).
			Msg("rejected tool call")
		return map[string]interface{}{"result": "error", "error": verr.Error()}
	}

	t.log.Info().Str("service", req.Service()).Str("target", req.Target).
		Msg("dispatching device command")

	if err := t.invoker.Invoke(ctx, req.Domain, req.Action, req.Target, req.ExtraArgs); err != nil {
		t.log.Error().Err(err).Str("service", req.Service()).Msg("device command failed")
		return map[string]interface{}{"result": "error", "error": err.Error()}
	}

	result := map[string]interface{}{
		"result":  "success",
		"service": req.Service(),
		"target":  req.Target,
	}
	if len(req.ExtraArgs) > 0 {
		result["arguments"] = req.ExtraArgs
	}
	return result
}

func stringArg(args map[string]interface{}, name string) (string, bool) {
	v, ok := args[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
