package prompt

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hestia-agent/hestia/devices"
)

var testNow = time.Date(2024, time.March, 15, 14, 30, 0, 0, time.UTC)

func TestComposeSubstitutesAllPlaceholders(t *testing.T) {
	snapshot := []devices.Snapshot{
		{EntityID: "light.kitchen", Name: "Kitchen Light", State: "on", AreaName: "Kitchen"},
	}
	tmpl := "<persona>\n\n<current_date>\n\nDevices:\n<devices>"

	out, err := NewComposer().Compose(tmpl, snapshot, "en", testNow)
	require.NoError(t, err)

	assert.NotContains(t, out, PlaceholderPersona)
	assert.NotContains(t, out, PlaceholderDate)
	assert.NotContains(t, out, PlaceholderDevices)
	assert.Contains(t, out, "You are 'Al'")
	assert.Contains(t, out, "02:30 PM on Friday March 15, 2024")
	assert.Contains(t, out, "Kitchen Light (light.kitchen, state=on)")
}

func TestComposeGroupsByAreaFirstSeenOrder(t *testing.T) {
	snapshot := []devices.Snapshot{
		{EntityID: "light.living", Name: "Living Light", State: "off", AreaName: "Living Room"},
		{EntityID: "light.kitchen", Name: "Kitchen Light", State: "on", AreaName: "Kitchen"},
		{EntityID: "switch.living", Name: "Living Switch", State: "on", AreaName: "Living Room"},
		{EntityID: "sensor.attic", Name: "Attic Sensor", State: "21"},
	}

	out, err := NewComposer().Compose("<devices>", snapshot, "en", testNow)
	require.NoError(t, err)

	living := strings.Index(out, "Living Room:")
	kitchen := strings.Index(out, "Kitchen:")
	ungrouped := strings.Index(out, "(ungrouped):")
	require.True(t, living >= 0 && kitchen >= 0 && ungrouped >= 0, "missing section in:\n%s", out)
	assert.Less(t, living, kitchen, "areas must keep first-seen order")
	assert.Greater(t, ungrouped, kitchen, "ungrouped section must come last")

	// Both Living Room devices land under the one heading.
	livingSection := out[living:kitchen]
	assert.Contains(t, livingSection, "Living Light")
	assert.Contains(t, livingSection, "Living Switch")
}

func TestComposeDeviceLineAttributes(t *testing.T) {
	snapshot := []devices.Snapshot{
		{EntityID: "light.kitchen", Name: "Kitchen Light", State: "on",
			AreaName: "Kitchen", Attributes: []string{"100%", "red"}},
		{EntityID: "switch.garage", Name: "Garage Switch", State: "off", AreaName: "Garage"},
	}

	out, err := NewComposer().Compose("<devices>", snapshot, "en", testNow)
	require.NoError(t, err)

	assert.Contains(t, out, "Kitchen Light (light.kitchen, state=on, 100%, red)")
	// No attribute tail when a device carries no attributes.
	assert.Contains(t, out, "Garage Switch (switch.garage, state=off)")
}

func TestComposeEmptySnapshot(t *testing.T) {
	out, err := NewComposer().Compose("before\n<devices>\nafter", nil, "en", testNow)
	require.NoError(t, err)
	assert.Contains(t, out, "before")
	assert.Contains(t, out, "after")
	assert.NotContains(t, out, "<devices>")
}

func TestComposeLanguageFallback(t *testing.T) {
	out, err := NewComposer().Compose("<persona> <current_date>", nil, "sv", testNow)
	require.NoError(t, err)
	assert.Contains(t, out, "You are 'Al'")
	assert.Contains(t, out, "The current time and date is")
}

func TestComposeGerman(t *testing.T) {
	snapshot := []devices.Snapshot{{EntityID: "light.flur", Name: "Flurlicht", State: "on"}}
	out, err := NewComposer().Compose("<persona>\n<current_date>\n<devices>", snapshot, "de", testNow)
	require.NoError(t, err)
	assert.Contains(t, out, "Du bist 'Al'")
	assert.Contains(t, out, "Freitag, 15 Maerz 2024")
	assert.Contains(t, out, "(nicht zugeordnet):")
}

func TestComposeBadDevicesTemplate(t *testing.T) {
	c := NewComposer().WithDevicesTemplate("{{ .Missing | bogus }}")
	_, err := c.Compose("<devices>", nil, "en", testNow)
	require.Error(t, err)

	var terr *TemplateError
	assert.ErrorAs(t, err, &terr)
}

func TestComposeTemplateWithoutPlaceholders(t *testing.T) {
	out, err := NewComposer().Compose("static prompt", []devices.Snapshot{
		{EntityID: "light.a", Name: "A", State: "on"},
	}, "en", testNow)
	require.NoError(t, err)
	assert.Equal(t, "static prompt", out)
}
