package devices

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"

	"github.com/hestia-agent/hestia/errors"
)

// Snapshot is one exposed device's bounded summary for prompt generation.
// Snapshots are built fresh per generation and never mutated afterwards.
type Snapshot struct {
	EntityID   string
	Name       string
	State      string
	AreaName   string
	Attributes []string
}

// Provider reads the device registry and produces prompt-ready snapshots.
type Provider struct {
	registry Registry
	// Attribute names to expose, in output order.
	attributes []string
	// Optional glob patterns restricting exposed entity ids (e.g. "light.*").
	patterns []string
	log      zerolog.Logger
}

// NewProvider creates a snapshot provider. attributes controls which device
// attributes appear and in what order; patterns, when non-empty, further
// restricts exposure to matching entity ids.
func NewProvider(registry Registry, attributes, patterns []string, log zerolog.Logger) *Provider {
	return &Provider{
		registry:   registry,
		attributes: attributes,
		patterns:   patterns,
		log:        log.With().Str("component", "devices").Logger(),
	}
}

// Snapshot returns the exposed devices with formatted attributes. A registry
// failure is returned as an error so callers never render a "no devices"
// prompt off a failed read.
func (p *Provider) Snapshot() ([]Snapshot, error) {
	states, err := p.registry.ListStates()
	if err != nil {
		return nil, errors.Wrapf(err, "device registry unreachable")
	}

	snapshots := make([]Snapshot, 0, len(states))
	for _, st := range states {
		if !p.registry.IsExposed(st.EntityID, SurfaceConversation) {
			continue
		}
		if !p.matchesPatterns(st.EntityID) {
			continue
		}

		var areaName string
		if areaID, ok := p.registry.AreaOf(st.EntityID); ok {
			if name, ok := p.registry.AreaName(areaID); ok {
				areaName = name
			}
		}

		snapshots = append(snapshots, Snapshot{
			EntityID:   st.EntityID,
			Name:       st.Name(),
			State:      st.State,
			AreaName:   areaName,
			Attributes: p.formatAttributes(st),
		})
	}

	p.log.Debug().Int("exposed", len(snapshots)).Int("total", len(states)).
		Msg("built device snapshot")
	return snapshots, nil
}

func (p *Provider) matchesPatterns(entityID string) bool {
	if len(p.patterns) == 0 {
		return true
	}
	for _, pattern := range p.patterns {
		if ok, err := doublestar.Match(pattern, entityID); err == nil && ok {
			return true
		} else if err != nil {
			p.log.Warn().Str("pattern", pattern).Err(err).Msg("invalid exposure pattern")
		}
	}
	return false
}

// formatAttributes renders the allow-listed attributes present on the device,
// in allow-list order rather than the device's native attribute order.
func (p *Provider) formatAttributes(st State) []string {
	var out []string
	for _, name := range p.attributes {
		value, ok := st.Attributes[name]
		if !ok || value == nil {
			continue
		}
		out = append(out, FormatAttribute(name, value))
	}
	return out
}

// FormatAttribute renders a single attribute through its fixed per-name rule.
// Total: unrecognized names fall back to "name: value".
func FormatAttribute(name string, value interface{}) string {
	switch name {
	case "brightness":
		if n, ok := toFloat(value); ok {
			return fmt.Sprintf("%d%%", int(math.Round(n*100/255)))
		}
	case "rgb_color":
		if r, g, b, ok := toRGB(value); ok {
			return ClosestColor(r, g, b)
		}
	case "temperature":
		return fmt.Sprintf("%v°", compactNumber(value))
	case "current_temperature":
		return fmt.Sprintf("current:%v°", compactNumber(value))
	case "target_temperature":
		return fmt.Sprintf("target:%v°", compactNumber(value))
	case "humidity":
		return fmt.Sprintf("%v%%RH", compactNumber(value))
	case "fan_mode":
		return fmt.Sprintf("fan:%v", value)
	case "hvac_mode":
		return fmt.Sprintf("hvac:%v", value)
	case "hvac_action":
		return fmt.Sprintf("action:%v", value)
	case "preset_mode":
		return fmt.Sprintf("preset:%v", value)
	case "media_title":
		return fmt.Sprintf("playing:%v", value)
	case "media_artist":
		return fmt.Sprintf("artist:%v", value)
	case "volume_level":
		if n, ok := toFloat(value); ok {
			return fmt.Sprintf("vol:%d%%", int(math.Round(n*100)))
		}
	}
	return fmt.Sprintf("%s: %v", name, value)
}

func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

// toRGB accepts the triple shapes a JSON attribute payload can carry.
func toRGB(value interface{}) (int, int, int, bool) {
	switch v := value.(type) {
	case []int:
		if len(v) == 3 {
			return v[0], v[1], v[2], true
		}
	case []interface{}:
		if len(v) == 3 {
			r, okR := toFloat(v[0])
			g, okG := toFloat(v[1])
			b, okB := toFloat(v[2])
			if okR && okG && okB {
				return int(r), int(g), int(b), true
			}
		}
	}
	return 0, 0, 0, false
}

// compactNumber drops the trailing ".0" floats pick up in JSON decoding so
// "21.0°" renders as "21°".
func compactNumber(value interface{}) interface{} {
	if f, ok := toFloat(value); ok && f == math.Trunc(f) {
		return int(f)
	}
	return value
}
