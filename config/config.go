// Package config loads the gateway's YAML configuration file: listen
// port, guacd endpoint, the token password, and the per-protocol-type
// argument policy (defaults and the unencrypted allow-list).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/guacgw/gateway/args"
)

// Default values applied when the YAML document omits a field.
const (
	DefaultWebSocketPort    = 4567
	DefaultMaxInactivityMin = 60
	DefaultGuacdPort        = 4822
	DefaultHandshakeTimeout = 30 * time.Second
	DefaultQueueCapacity    = 64
	DefaultWorkers          = 8
)

// Config is the gateway's full configuration surface.
type Config struct {
	WebSocket WebSocketConfig `yaml:"websocket"`
	Guacd     GuacdConfig     `yaml:"guacd"`
	Password  string          `yaml:"password"`
	Client    ClientConfig    `yaml:"client"`
	Recording RecordingConfig `yaml:"recording"`
	Intake    IntakeConfig    `yaml:"intake"`
}

type WebSocketConfig struct {
	Port             int `yaml:"port"`
	MaxInactivityMin int `yaml:"maxInactivityMin"`
}

type GuacdConfig struct {
	Hostname  string `yaml:"hostname"`
	Port      int    `yaml:"port"`
	TimeoutMs int    `yaml:"timeoutMs"`
}

// ClientConfig carries the argument-merge policy, keyed by
// protocol type ("rdp", "vnc", "ssh", "telnet", "kubernetes").
type ClientConfig struct {
	DefaultArguments     map[string]map[string]string `yaml:"defaultArguments"`
	UnencryptedArguments map[string]map[string]string `yaml:"unencryptedArguments"`
}

// Policy returns the merge policy for a given descriptor type. A type
// absent from both maps yields an empty policy, not an error; rejecting
// unknown types is the caller's job, via KnownType.
func (c ClientConfig) Policy(protocolType string) args.Policy {
	return args.Policy{
		Defaults:    c.DefaultArguments[protocolType],
		Unencrypted: c.UnencryptedArguments[protocolType],
	}
}

// KnownType reports whether protocolType has an entry in either policy
// map, used to reject unrecognized descriptor types before dialing.
func (c ClientConfig) KnownType(protocolType string) bool {
	_, inDefaults := c.DefaultArguments[protocolType]
	_, inUnencrypted := c.UnencryptedArguments[protocolType]
	return inDefaults || inUnencrypted
}

type RecordingConfig struct {
	Directory string `yaml:"directory"`
	GzipLevel int    `yaml:"gzipLevel"`
}

type IntakeConfig struct {
	QueueCapacity int `yaml:"queueCapacity"`
	Workers       int `yaml:"workers"`
}

// ValidationError is one rejected field; Load aggregates all of them
// into a ValidationErrors before failing, so a misconfigured deployment
// sees every problem at once instead of one at a time.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("configuration errors:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Load reads the YAML file at path, applies defaults, overlays
// GUACGW_PASSWORD when set, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := &Config{
		WebSocket: WebSocketConfig{Port: DefaultWebSocketPort, MaxInactivityMin: DefaultMaxInactivityMin},
		Guacd:     GuacdConfig{Port: DefaultGuacdPort, TimeoutMs: int(DefaultHandshakeTimeout / time.Millisecond)},
		Intake:    IntakeConfig{QueueCapacity: DefaultQueueCapacity, Workers: DefaultWorkers},
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if pw := os.Getenv("GUACGW_PASSWORD"); pw != "" {
		cfg.Password = pw
	}

	if errs := cfg.validate(); len(errs) > 0 {
		return nil, errs
	}
	return cfg, nil
}

func (c *Config) validate() ValidationErrors {
	var errs ValidationErrors
	if c.WebSocket.Port <= 0 || c.WebSocket.Port > 65535 {
		errs = append(errs, ValidationError{"websocket.port", fmt.Sprintf("must be a valid TCP port, got %d", c.WebSocket.Port)})
	}
	if c.Guacd.Hostname == "" {
		errs = append(errs, ValidationError{"guacd.hostname", "must not be empty"})
	}
	if c.Guacd.Port <= 0 || c.Guacd.Port > 65535 {
		errs = append(errs, ValidationError{"guacd.port", fmt.Sprintf("must be a valid TCP port, got %d", c.Guacd.Port)})
	}
	if c.Password == "" {
		errs = append(errs, ValidationError{"password", "must be set, either in the config file or GUACGW_PASSWORD"})
	}
	if c.Intake.Workers <= 0 {
		errs = append(errs, ValidationError{"intake.workers", "must be positive"})
	}
	return errs
}

// MaxInactivity is the idle timeout as a time.Duration, per the
// tunnel's watchdog. Zero disables it.
func (c *Config) MaxInactivity() time.Duration {
	return time.Duration(c.WebSocket.MaxInactivityMin) * time.Minute
}

// HandshakeTimeout is the per-connection guacd handshake deadline.
func (c *Config) HandshakeTimeout() time.Duration {
	return time.Duration(c.Guacd.TimeoutMs) * time.Millisecond
}
