// Package prompt composes the system prompt from a persona fragment, a
// localized current-date string, and the device snapshot.
package prompt

import (
	"strings"
	"text/template"
	"time"

	"github.com/hestia-agent/hestia/devices"
)

// Placeholders recognized in the outer prompt template. Substitution is
// literal string replacement.
const (
	PlaceholderPersona = "<persona>"
	PlaceholderDate    = "<current_date>"
	PlaceholderDevices = "<devices>"
)

// TemplateError reports a malformed prompt template. The caller turns it into
// a user-visible apology rather than rendering an empty prompt.
type TemplateError struct {
	Err error
}

func (e *TemplateError) Error() string {
	return "template error: " + e.Err.Error()
}

func (e *TemplateError) Unwrap() error { return e.Err }

// defaultDevicesTemplate renders snapshot entries grouped by area, one line
// per device. The attribute tail inside the parenthetical is omitted when a
// device has no attributes.
const defaultDevicesTemplate = `{{- range .Areas}}
{{.Name}}:
{{- range .Devices}}
  - {{.Name}} ({{.EntityID}}, state={{.State}}{{if .Attributes}}, {{join .Attributes ", "}}{{end}})
{{- end}}
{{- end}}`

// Composer builds system prompts. The devices fragment template can be
// replaced with a user-supplied one; a malformed template surfaces as
// *TemplateError at composition time.
type Composer struct {
	devicesTemplate string
}

// NewComposer returns a composer using the built-in devices fragment.
func NewComposer() *Composer {
	return &Composer{devicesTemplate: defaultDevicesTemplate}
}

// WithDevicesTemplate overrides the devices fragment template.
func (c *Composer) WithDevicesTemplate(tmpl string) *Composer {
	c.devicesTemplate = tmpl
	return c
}

type deviceLine struct {
	Name       string
	EntityID   string
	State      string
	Attributes []string
}

type areaGroup struct {
	Name    string
	Devices []deviceLine
}

type devicesContext struct {
	Areas []areaGroup
}

// Compose resolves the three placeholders in tmpl against the given language,
// snapshot and clock. Unrecognized languages fall back to the baseline
// fragments.
func (c *Composer) Compose(tmpl string, snapshot []devices.Snapshot, language string, now time.Time) (string, error) {
	devicesText, err := c.renderDevices(snapshot, language)
	if err != nil {
		return "", err
	}

	out := tmpl
	out = strings.ReplaceAll(out, PlaceholderPersona, persona(language))
	out = strings.ReplaceAll(out, PlaceholderDate, currentDate(language, now))
	out = strings.ReplaceAll(out, PlaceholderDevices, devicesText)
	return out, nil
}

// renderDevices groups the snapshot by area name, preserving first-seen area
// order, and runs the constrained template pass over it.
func (c *Composer) renderDevices(snapshot []devices.Snapshot, language string) (string, error) {
	ctx := devicesContext{}
	index := map[string]int{}
	var ungrouped []deviceLine

	for _, snap := range snapshot {
		line := deviceLine{
			Name:       snap.Name,
			EntityID:   snap.EntityID,
			State:      snap.State,
			Attributes: snap.Attributes,
		}
		if snap.AreaName == "" {
			ungrouped = append(ungrouped, line)
			continue
		}
		i, ok := index[snap.AreaName]
		if !ok {
			i = len(ctx.Areas)
			index[snap.AreaName] = i
			ctx.Areas = append(ctx.Areas, areaGroup{Name: snap.AreaName})
		}
		ctx.Areas[i].Devices = append(ctx.Areas[i].Devices, line)
	}

	if len(ungrouped) > 0 {
		if heading, ok := ungroupedHeading(language); ok {
			ctx.Areas = append(ctx.Areas, areaGroup{Name: heading, Devices: ungrouped})
		}
	}

	parsed, err := template.New("devices").Funcs(template.FuncMap{
		"join": strings.Join,
	}).Parse(c.devicesTemplate)
	if err != nil {
		return "", &TemplateError{Err: err}
	}

	var sb strings.Builder
	if err := parsed.Execute(&sb, ctx); err != nil {
		return "", &TemplateError{Err: err}
	}
	return strings.TrimSpace(sb.String()), nil
}
