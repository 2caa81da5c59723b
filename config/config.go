// Package config loads agent configuration from YAML files, layering a
// project-level file over a user-level one.
package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hestia-agent/hestia/errors"
)

// Recognized backend identifiers.
const (
	BackendBedrock   = "bedrock"
	BackendAnthropic = "anthropic"
	BackendOpenAI    = "openai"
	BackendGemini    = "gemini"
)

// Defaults mirror the shipped configuration of the conversation agent.
const (
	DefaultModel                   = "anthropic.claude-3-5-sonnet-20240620-v1:0"
	DefaultMaxTokens               = 4096
	DefaultTemperature             = 1.0
	DefaultTopP                    = 0.999
	DefaultTopK                    = 250
	DefaultLanguage                = "en"
	DefaultMaxToolCallIterations   = 5
	DefaultRememberNumInteractions = 10
	DefaultRequestTimeoutSeconds   = 30
	DefaultAWSRegion               = "us-east-1"
	DefaultListenAddr              = ":8099"
)

// DefaultPromptTemplate is the system prompt used when none is configured.
// The three placeholders are substituted by the prompt composer.
const DefaultPromptTemplate = `<persona>

<current_date>

An overview of the areas and the devices in this smart home:
<devices>`

// HomeAssistant holds the connection settings for the device-control
// backend. The token is a long-lived access token; it may also arrive via
// the HASS_TOKEN environment variable.
type HomeAssistant struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

// AWS holds credentials for the Bedrock backend. Session token is optional.
type AWS struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
}

// Config is the process-wide agent configuration. Loaded once at startup and
// re-read only on explicit Reload.
type Config struct {
	Backend     string  `yaml:"backend"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	TopP        float64 `yaml:"top_p"`
	TopK        int     `yaml:"top_k"`

	Language       string `yaml:"language"`
	PromptTemplate string `yaml:"prompt"`

	// Attribute names (in order) that the snapshot provider may expose.
	ExtraAttributes []string `yaml:"extra_attributes_to_expose"`
	// Optional glob patterns further restricting which entity ids are exposed.
	ExposedEntityPatterns []string `yaml:"exposed_entity_patterns"`

	RememberConversation    bool `yaml:"remember_conversation"`
	RememberNumInteractions int  `yaml:"remember_num_interactions"`
	MaxToolCallIterations   int  `yaml:"max_tool_call_iterations"`
	RefreshSystemPrompt     bool `yaml:"refresh_system_prompt"`
	RequestTimeoutSeconds   int  `yaml:"request_timeout"`

	// Identifier of the enabled tool API surface.
	APIID string `yaml:"api_id"`

	AllowedDomains  []string `yaml:"allowed_domains"`
	AllowedServices []string `yaml:"allowed_services"`

	HomeAssistant HomeAssistant `yaml:"home_assistant"`

	AWS AWS `yaml:"aws"`

	ListenAddr string `yaml:"listen_addr"`
}

// Default returns a Config populated with the shipped defaults.
func Default() *Config {
	return &Config{
		Backend:                 BackendBedrock,
		Model:                   DefaultModel,
		MaxTokens:               DefaultMaxTokens,
		Temperature:             DefaultTemperature,
		TopP:                    DefaultTopP,
		TopK:                    DefaultTopK,
		Language:                DefaultLanguage,
		PromptTemplate:          DefaultPromptTemplate,
		ExtraAttributes:         []string{"brightness", "rgb_color", "temperature", "current_temperature", "humidity", "fan_mode", "hvac_mode", "preset_mode", "media_title", "volume_level"},
		RememberConversation:    true,
		RememberNumInteractions: DefaultRememberNumInteractions,
		MaxToolCallIterations:   DefaultMaxToolCallIterations,
		RequestTimeoutSeconds:   DefaultRequestTimeoutSeconds,
		APIID:                   "hestia-service-api",
		AllowedDomains: []string{
			"light", "switch", "cover", "lock", "climate",
			"fan", "vacuum", "media_player", "button",
		},
		AllowedServices: []string{
			"turn_on", "turn_off", "toggle", "press",
			"increase_speed", "decrease_speed",
			"open_cover", "close_cover", "stop_cover",
			"lock", "unlock", "start", "stop",
			"return_to_base", "pause", "cancel", "add_item",
			"set_temperature", "set_humidity",
			"set_fan_mode", "set_hvac_mode", "set_preset_mode",
		},
		HomeAssistant: HomeAssistant{URL: "http://homeassistant.local:8123"},
		AWS:           AWS{Region: DefaultAWSRegion},
		ListenAddr:    DefaultListenAddr,
	}
}

// Load reads configuration from ~/.hestia/config.yaml and ./.hestia/config.yaml,
// the latter taking precedence. Missing files are not an error; defaults apply.
func Load() (*Config, error) {
	cfg := Default()

	home, err := os.UserHomeDir()
	if err == nil {
		userPath := filepath.Join(home, ".hestia", "config.yaml")
		if _, err := os.Stat(userPath); err == nil {
			if err := loadFromFile(userPath, cfg); err != nil {
				return nil, errors.Wrapf(err, "error loading user config")
			}
		}
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrapf(err, "could not get working directory")
	}
	projectPath := filepath.Join(wd, ".hestia", "config.yaml")
	if _, err := os.Stat(projectPath); err == nil {
		if err := loadFromFile(projectPath, cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading project config")
		}
	}

	return cfg, nil
}

// Reload re-reads the configuration files from disk.
func Reload() (*Config, error) {
	return Load()
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// Unmarshal overwrites only fields present in the YAML, so project-level
	// values replace user-level ones field by field.
	return yaml.Unmarshal(data, cfg)
}

// RequestTimeout returns the per-backend-call timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	secs := c.RequestTimeoutSeconds
	if secs <= 0 {
		secs = DefaultRequestTimeoutSeconds
	}
	return time.Duration(secs) * time.Second
}
