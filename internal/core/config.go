// internal/core/config.go
// Configuration management using Koanf

package core

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/aspnmy/porttester/internal/models"
	"github.com/aspnmy/porttester/internal/prober"
	"github.com/aspnmy/porttester/pkg/portrange"
)

// EnvPrefix prefixes environment overrides. Nested keys use a double
// underscore: PORTTEST_PROBE__CONCURRENT=200.
const EnvPrefix = "PORTTEST_"

// ErrInvalidConfig is wrapped by every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// Output formats
var Formats = []string{"list", "table", "json"}

// Config represents the complete application configuration
type Config struct {
	Target TargetConfig `koanf:"target"`
	Range  RangeConfig  `koanf:"range"`
	Probe  ProbeConfig  `koanf:"probe"`
	Output OutputConfig `koanf:"output"`
	Log    LogConfig    `koanf:"log"`
}

// TargetConfig describes the cooperative test server
type TargetConfig struct {
	Protocol string `koanf:"protocol"` // http, https, tcp
	Host     string `koanf:"host"`
	Path     string `koanf:"path"`
}

// RangeConfig is the inclusive port range
type RangeConfig struct {
	From int `koanf:"from"`
	To   int `koanf:"to"`
}

// ProbeConfig controls dispatch
type ProbeConfig struct {
	Concurrent int           `koanf:"concurrent"`
	Timeout    time.Duration `koanf:"timeout"` // bare numbers are seconds, 0 disables the deadline
}

// OutputConfig contains output settings
type OutputConfig struct {
	Format        string        `koanf:"format"`
	ListBlocked   bool          `koanf:"list_blocked"`
	Debug         bool          `koanf:"debug"`
	Progress      bool          `koanf:"progress"`
	ProgressWidth int           `koanf:"progress_width"` // bar cells when the terminal size is unknown
	Refresh       time.Duration `koanf:"refresh"` // min spacing of progress redraws
	Color         bool          `koanf:"color"`
	OutcomesFile  string        `koanf:"outcomes_file"` // JSONL export, empty = off
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	File   string `koanf:"file"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Target: TargetConfig{
			Protocol: "http",
			Host:     "portquiz.net",
		},
		Range: RangeConfig{
			From: portrange.MinPort,
			To:   portrange.MaxPort,
		},
		Probe: ProbeConfig{
			Timeout: 120 * time.Second,
		},
		Output: OutputConfig{
			Format:        "list",
			Progress:      true,
			ProgressWidth: 50,
			Refresh:       100 * time.Millisecond,
			Color:         true,
		},
		Log: LogConfig{
			Level:  "warn",
			Format: "console",
		},
	}
}

// Load layers defaults, the optional yaml file, PORTTEST_ environment
// variables and finally overrides (explicitly set CLI flags, keyed like
// "probe.concurrent"), then validates the result.
func Load(configPath string, overrides map[string]interface{}) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		// PORTTEST_OUTPUT__LIST_BLOCKED -> output.list_blocked
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
			return nil, fmt.Errorf("failed to load flag overrides: %w", err)
		}
	}

	cfg := &Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.DecodeHookFuncType(secondsHook),
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
				mapstructure.TextUnmarshallerHookFunc(),
			),
			Result:           cfg,
			WeaklyTypedInput: true,
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// secondsHook reads a bare number given for a duration as seconds, so
// "timeout: 30" in yaml or PORTTEST_PROBE__TIMEOUT=30 means 30s like -t 30.
// Values with a unit ("1500ms", "2m") are left to the duration parser.
func secondsHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if to != durationType || from == durationType {
		return data, nil
	}

	switch v := data.(type) {
	case int:
		return time.Duration(v) * time.Second, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	case uint64:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	case string:
		s := strings.TrimSpace(v)
		if secs, err := strconv.ParseFloat(s, 64); err == nil {
			return time.Duration(secs * float64(time.Second)), nil
		}
		return s, nil
	}
	return data, nil
}

// Validate rejects configurations the engine must never see
func Validate(cfg *Config) error {
	if _, ok := prober.Registry[cfg.Target.Protocol]; !ok {
		return fmt.Errorf("%w: unsupported protocol %q (must be one of %s)",
			ErrInvalidConfig, cfg.Target.Protocol, strings.Join(prober.Protocols(), ", "))
	}

	if strings.TrimSpace(cfg.Target.Host) == "" {
		return fmt.Errorf("%w: host is empty", ErrInvalidConfig)
	}

	if _, err := portrange.New(cfg.Range.From, cfg.Range.To); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if cfg.Probe.Concurrent < 1 {
		return fmt.Errorf("%w: concurrent must be at least 1 (got %d)", ErrInvalidConfig, cfg.Probe.Concurrent)
	}

	if cfg.Probe.Timeout < 0 {
		return fmt.Errorf("%w: negative timeout %v", ErrInvalidConfig, cfg.Probe.Timeout)
	}

	if !slices.Contains(Formats, cfg.Output.Format) {
		return fmt.Errorf("%w: unknown output format %q (must be one of %s)",
			ErrInvalidConfig, cfg.Output.Format, strings.Join(Formats, ", "))
	}

	return nil
}

// PortRange returns the validated range
func (c *Config) PortRange() portrange.Range {
	return portrange.Range{From: c.Range.From, To: c.Range.To}
}

// Endpoint returns the probe endpoint template
func (c *Config) Endpoint() models.Endpoint {
	return models.Endpoint{
		Protocol: c.Target.Protocol,
		Host:     c.Target.Host,
		Path:     c.Target.Path,
	}
}
