package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/Knetic/govaluate"
	"github.com/creasty/defaults"
	"gopkg.in/go-playground/validator.v9"
	"gopkg.in/yaml.v3"
)

// ErrDuplicateLight is returned when two lights share an id.
var ErrDuplicateLight = errors.New("duplicate light id")

// Config represents the application configuration
type Config struct {
	Transmitter     TransmitterConfig `yaml:"transmitter"`
	Lights          []LightConfig     `yaml:"lights" validate:"dive"`
	Database        DatabaseConfig    `yaml:"database"`
	Log             LogConfig         `yaml:"log"`
	Reconciler      ReconcilerConfig  `yaml:"reconciler"`
	Ledger          LedgerConfig      `yaml:"ledger"`
	API             APIConfig         `yaml:"api"`
	Healthcheck     HealthcheckConfig `yaml:"healthcheck"`
	EventBus        EventBusConfig    `yaml:"eventbus"`
	Script          string            `yaml:"script"`           // Optional Lua script; empty disables scripting
	ShutdownTimeout Duration          `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// Transmitter backends
const (
	TransmitterLog    = "log"
	TransmitterSerial = "serial"
	TransmitterHTTP   = "http"
)

// TransmitterConfig selects and configures the IR blaster
type TransmitterConfig struct {
	Type   string                  `yaml:"type" default:"log" validate:"oneof=log serial http"`
	Serial SerialTransmitterConfig `yaml:"serial"`
	HTTP   HTTPTransmitterConfig   `yaml:"http"`
}

// SerialTransmitterConfig is a blaster attached over a serial line
type SerialTransmitterConfig struct {
	Device      string   `yaml:"device" default:"/dev/ttyUSB0"`
	Baud        int      `yaml:"baud" default:"115200" validate:"gt=0"`
	ReadTimeout Duration `yaml:"read_timeout"` // How long to wait for the blaster's "OK" (default: 2s)
}

// HTTPTransmitterConfig is a blaster with a local HTTP API
type HTTPTransmitterConfig struct {
	URL     string   `yaml:"url" validate:"omitempty,url"`
	Token   string   `yaml:"token"`
	Timeout Duration `yaml:"timeout"` // Request timeout (default: 5s)
}

// LightConfig declares one IR light fixture
type LightConfig struct {
	ID              string `yaml:"id" validate:"required"`
	Name            string `yaml:"name"`
	Kind            string `yaml:"kind" validate:"required,oneof=stepwise dualchannel boxlight"`
	Channel         int    `yaml:"channel" default:"1" validate:"min=1,max=2"`
	BrightnessCurve string `yaml:"brightness_curve" validate:"omitempty,curve"` // Expression over x in [0,1]
}

// DisplayName returns the name, falling back to the id
func (c LightConfig) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.ID
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path" default:"./irlightd.sqlite"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Colors  bool   `yaml:"colors"`
	UseJSON bool   `yaml:"json"`
}

// GetLevel returns the log level
func (c *LogConfig) GetLevel() string {
	return c.Level
}

// ReconcilerConfig contains reconciler settings
type ReconcilerConfig struct {
	PeriodicInterval Duration `yaml:"periodic_interval"`
	RateLimitRPS     float64  `yaml:"rate_limit_rps" default:"2" validate:"gt=0"`
}

// LedgerConfig contains transmission ledger settings
type LedgerConfig struct {
	CleanupInterval Duration `yaml:"cleanup_interval"`
	RetentionDays   int      `yaml:"retention_days" default:"30" validate:"gte=0"`
}

// APIConfig contains REST API server settings
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host" default:"0.0.0.0"`
	Port    int    `yaml:"port" default:"8080" validate:"port"`
	HueUser string `yaml:"hue_user"` // Accepted username for the Hue-compatible endpoint; empty accepts any
}

// Addr returns host:port
func (c *APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// HealthcheckConfig contains health check server settings
type HealthcheckConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host" default:"0.0.0.0"`
	Port    int    `yaml:"port" default:"9090" validate:"port"`
}

// Addr returns host:port
func (c *HealthcheckConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers" default:"4" validate:"gt=0"`      // Number of worker goroutines
	QueueSize int `yaml:"queue_size" default:"100" validate:"gt=0"` // Event queue size
}

// GetShutdownTimeout returns the general shutdown timeout
func (c *Config) GetShutdownTimeout() time.Duration {
	return c.ShutdownTimeout.Duration()
}

// Light returns the light with the given id
func (c *Config) Light(id string) (LightConfig, bool) {
	for _, l := range c.Lights {
		if l.ID == id {
			return l, true
		}
	}
	return LightConfig{}, false
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes, defaults and validates a configuration document
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("failed to set defaults: %w", err)
	}
	for i := range cfg.Lights {
		if err := defaults.Set(&cfg.Lights[i]); err != nil {
			return nil, fmt.Errorf("failed to set defaults for light %d: %w", i, err)
		}
	}

	// Durations are not handled by struct tags
	if cfg.Transmitter.Serial.ReadTimeout == 0 {
		cfg.Transmitter.Serial.ReadTimeout = Duration(2 * time.Second)
	}
	if cfg.Transmitter.HTTP.Timeout == 0 {
		cfg.Transmitter.HTTP.Timeout = Duration(5 * time.Second)
	}
	if cfg.Reconciler.PeriodicInterval == 0 {
		cfg.Reconciler.PeriodicInterval = Duration(5 * time.Minute)
	}
	if cfg.Ledger.CleanupInterval == 0 {
		cfg.Ledger.CleanupInterval = Duration(24 * time.Hour)
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	v := validator.New()
	if err := v.RegisterValidation("port", port); err != nil {
		return err
	}
	if err := v.RegisterValidation("curve", curve); err != nil {
		return err
	}

	if err := v.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, e := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", e.Namespace(), e.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(fields, ", "))
		}
		return err
	}

	if cfg.Transmitter.Type == TransmitterHTTP && cfg.Transmitter.HTTP.URL == "" {
		return fmt.Errorf("invalid configuration: transmitter.http.url is required for the http transmitter")
	}

	seen := make(map[string]bool, len(cfg.Lights))
	for _, l := range cfg.Lights {
		if seen[l.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicateLight, l.ID)
		}
		seen[l.ID] = true
	}

	return nil
}

// Port type validation.
func port(fl validator.FieldLevel) bool {
	p := fl.Field().Int()
	return p > 0 && p <= 65535
}

// Brightness curve validation: must parse and only reference x.
func curve(fl validator.FieldLevel) bool {
	expr, err := govaluate.NewEvaluableExpression(fl.Field().String())
	if err != nil {
		return false
	}
	for _, v := range expr.Vars() {
		if v != "x" {
			return false
		}
	}
	return true
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
