// Package config handles configuration for apptest-runner.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Defaults applied when neither the config file nor flags set a value.
const (
	DefaultAppiumURL = "http://localhost:4723"
	DefaultPlatform  = "android"
	DefaultReportDir = "reports"
)

// Environment variables consulted by ApplyEnv.
const (
	EnvAppiumURL = "APPIUM_URL"
	EnvPlatform  = "APPTEST_PLATFORM"
)

// Config represents the run configuration (config.yaml).
type Config struct {
	// Session settings
	AppiumURL        string                 `yaml:"appiumUrl"`
	Platform         string                 `yaml:"platform"` // android, ios
	Capabilities     map[string]interface{} `yaml:"capabilities"`
	CapabilitiesFile string                 `yaml:"capabilitiesFile"` // JSON, relative to the config file

	// Output
	ReportDir     string `yaml:"reportDir"`
	ScreenshotDir string `yaml:"screenshotDir"` // defaults to ReportDir
	LogDir        string `yaml:"logDir"`        // defaults to ReportDir

	// Execution settings
	Env               map[string]string `yaml:"env"`
	StopOnFailure     bool              `yaml:"stopOnFailure"`
	ScrollMaxAttempts int               `yaml:"scrollMaxAttempts"`
	ScrollSettleMs    int               `yaml:"scrollSettleMs"`
	FindTimeoutMs     int               `yaml:"findTimeoutMs"`
	Expand            string            `yaml:"expand"` // off (default), vars, js

	baseDir string
}

// Load loads configuration from a file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided config file
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	cfg.baseDir = filepath.Dir(path)

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config %s", path)
	}
	return &cfg, nil
}

// LoadFromDir looks for config.yaml or config.yml in the directory.
func LoadFromDir(dir string) (*Config, error) {
	for _, name := range []string{"config.yaml", "config.yml"} {
		configPath := filepath.Join(dir, name)
		if _, err := os.Stat(configPath); err == nil {
			return Load(configPath)
		}
	}

	// No config file found, return empty config
	return &Config{baseDir: dir}, nil
}

// Validate checks value ranges and capability value kinds.
func (c *Config) Validate() error {
	if c.ScrollMaxAttempts < 0 {
		return errors.Errorf("scrollMaxAttempts must not be negative, got %d", c.ScrollMaxAttempts)
	}
	if c.ScrollSettleMs < 0 {
		return errors.Errorf("scrollSettleMs must not be negative, got %d", c.ScrollSettleMs)
	}
	if c.FindTimeoutMs < 0 {
		return errors.Errorf("findTimeoutMs must not be negative, got %d", c.FindTimeoutMs)
	}
	if c.Platform != "" {
		switch strings.ToLower(c.Platform) {
		case "android", "ios", "mock":
		default:
			return errors.Errorf("unsupported platform %q", c.Platform)
		}
	}
	switch strings.ToLower(c.Expand) {
	case "", "off", "vars", "js":
	default:
		return errors.Errorf("unsupported expand mode %q (want off, vars or js)", c.Expand)
	}
	return ValidateCapabilities(c.Capabilities)
}

// ApplyEnv fills unset fields from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup(EnvAppiumURL); ok && v != "" && c.AppiumURL == "" {
		c.AppiumURL = v
	}
	if v, ok := lookup(EnvPlatform); ok && v != "" && c.Platform == "" {
		c.Platform = v
	}
}

// ApplyDefaults fills every still-empty field with its default. Platform
// is left to ResolvePlatform, since the script may name one.
func (c *Config) ApplyDefaults() {
	if c.AppiumURL == "" {
		c.AppiumURL = DefaultAppiumURL
	}
	c.Platform = strings.ToLower(c.Platform)
	if c.ReportDir == "" {
		c.ReportDir = DefaultReportDir
	}
	if c.ScreenshotDir == "" {
		c.ScreenshotDir = c.ReportDir
	}
	if c.LogDir == "" {
		c.LogDir = c.ReportDir
	}
}

// ResolvePlatform settles Platform when flags, config and environment left
// it empty: the script's platform wins over DefaultPlatform.
func (c *Config) ResolvePlatform(scriptPlatform string) error {
	if c.Platform == "" {
		c.Platform = scriptPlatform
	}
	if c.Platform == "" {
		c.Platform = DefaultPlatform
	}
	c.Platform = strings.ToLower(c.Platform)
	return c.Validate()
}

// ScrollSettle returns the configured wait between scrolls, zero when unset.
func (c *Config) ScrollSettle() time.Duration {
	return time.Duration(c.ScrollSettleMs) * time.Millisecond
}

// ResolveCapabilities merges the capability file with inline capabilities
// (inline wins) and fills platformName from Platform when absent.
func (c *Config) ResolveCapabilities() (map[string]interface{}, error) {
	caps := make(map[string]interface{})
	if c.CapabilitiesFile != "" {
		path := c.CapabilitiesFile
		if !filepath.IsAbs(path) && c.baseDir != "" {
			path = filepath.Join(c.baseDir, path)
		}
		fileCaps, err := LoadCapabilities(path)
		if err != nil {
			return nil, err
		}
		for k, v := range fileCaps {
			caps[k] = v
		}
	}
	for k, v := range c.Capabilities {
		caps[k] = v
	}
	if _, ok := caps["platformName"]; !ok && c.Platform != "" {
		caps["platformName"] = platformName(c.Platform)
	}
	return caps, nil
}

// LoadCapabilities reads a JSON capability file.
func LoadCapabilities(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided capabilities file
	if err != nil {
		return nil, errors.Wrap(err, "read capabilities")
	}

	var caps map[string]interface{}
	if err := json.Unmarshal(data, &caps); err != nil {
		return nil, errors.Wrapf(err, "parse capabilities %s", path)
	}
	if err := ValidateCapabilities(caps); err != nil {
		return nil, errors.Wrapf(err, "invalid capabilities %s", path)
	}
	return caps, nil
}

// ValidateCapabilities accepts only string, bool and number values.
func ValidateCapabilities(caps map[string]interface{}) error {
	keys := make([]string, 0, len(caps))
	for k := range caps {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		switch caps[k].(type) {
		case string, bool, int, int64, uint64, float64:
		default:
			return errors.Errorf("capability %q has unsupported value type %s", k, describeKind(caps[k]))
		}
	}
	return nil
}

func describeKind(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}

func platformName(platform string) string {
	if strings.EqualFold(platform, "ios") {
		return "iOS"
	}
	return "Android"
}
