package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Leonezz/serialport-api-mgr-sub005/internal/framing"
	"github.com/pelletier/go-toml/v2"
)

var ErrInvalidConfig = errors.New("config: invalid workbench config")

// WorkbenchConfig is the on-disk profile for one connection.
type WorkbenchConfig struct {
	Name        string        `toml:"name"`
	View        string        `toml:"view"`
	Encoding    string        `toml:"encoding"`
	LineEnding  string        `toml:"line_ending"`
	Checksum    string        `toml:"checksum"`
	MetricsAddr string        `toml:"metrics_addr"`
	CorsOrigins []string      `toml:"cors_origins"`
	Framing     FramingConfig `toml:"framing"`
}

type FramingConfig struct {
	Strategy        string `toml:"strategy"`
	Delimiter       string `toml:"delimiter"`
	TimeoutMS       int64  `toml:"timeout_ms"`
	PrefixWidth     int    `toml:"prefix_width"`
	PrefixEndian    string `toml:"prefix_endian"`
	Script          string `toml:"script"`
	ScriptFile      string `toml:"script_file"`
	ScriptTimeoutMS int64  `toml:"script_timeout_ms"`
	Persistence     string `toml:"persistence"`
	StripDelimiter  *bool  `toml:"strip_delimiter"`
	MaxFrameBytes   int    `toml:"max_frame_bytes"`
	ResetOnError    *bool  `toml:"reset_on_error"`
}

func DefaultWorkbenchConfig() WorkbenchConfig {
	cfg := WorkbenchConfig{}
	ApplyWorkbenchDefaults(&cfg)
	return cfg
}

// ApplyWorkbenchDefaults fills every unset key.
func ApplyWorkbenchDefaults(cfg *WorkbenchConfig) {
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = "bench"
	}
	if cfg.View == "" {
		cfg.View = "text"
	}
	if cfg.Encoding == "" {
		cfg.Encoding = "utf-8"
	}
	if cfg.LineEnding == "" {
		cfg.LineEnding = "crlf"
	}
	if cfg.Checksum == "" {
		cfg.Checksum = "none"
	}
	f := &cfg.Framing
	if f.Strategy == "" {
		f.Strategy = "delimiter"
	}
	if f.Delimiter == "" {
		f.Delimiter = "0D 0A"
	}
	if f.TimeoutMS == 0 {
		f.TimeoutMS = 50
	}
	if f.PrefixWidth == 0 {
		f.PrefixWidth = 1
	}
	if f.PrefixEndian == "" {
		f.PrefixEndian = "big"
	}
	if f.ScriptTimeoutMS == 0 {
		f.ScriptTimeoutMS = 5
	}
	if f.Persistence == "" {
		f.Persistence = "persistent"
	}
	if f.StripDelimiter == nil {
		f.StripDelimiter = boolPtr(true)
	}
	if f.MaxFrameBytes == 0 {
		f.MaxFrameBytes = framing.DefaultLimits().MaxFrameBytes
	}
	if f.ResetOnError == nil {
		f.ResetOnError = boolPtr(true)
	}
}

// LoadWorkbenchConfig reads path, fills defaults and validates the result.
// A relative script_file is resolved against the directory of path.
func LoadWorkbenchConfig(path string) (WorkbenchConfig, error) {
	var cfg WorkbenchConfig
	if err := loadToml(path, &cfg); err != nil {
		return WorkbenchConfig{}, err
	}
	ApplyWorkbenchDefaults(&cfg)
	cfg.Framing.ScriptFile = resolveRelative(filepath.Dir(path), cfg.Framing.ScriptFile)
	if err := ValidateWorkbenchConfig(cfg); err != nil {
		return WorkbenchConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

// ValidateWorkbenchConfig resolves every field, which also compiles a script
// strategy so a broken script is rejected before any byte is fed.
func ValidateWorkbenchConfig(cfg WorkbenchConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidConfig)
	}
	if cfg.Framing.Script != "" && cfg.Framing.ScriptFile != "" {
		return fmt.Errorf("%w: script and script_file are mutually exclusive", ErrInvalidConfig)
	}
	if cfg.Framing.MaxFrameBytes < 0 {
		return fmt.Errorf("%w: max_frame_bytes must not be negative", ErrInvalidConfig)
	}
	if _, err := Resolve(cfg); err != nil {
		return err
	}
	return nil
}

func resolveRelative(dir, path string) string {
	path = strings.TrimSpace(path)
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

func boolPtr(v bool) *bool {
	return &v
}
