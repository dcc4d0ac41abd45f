package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/Leonezz/serialport-api-mgr-sub005/internal/config"
)

type fileConfig struct {
	Name        string      `toml:"name"`
	View        string      `toml:"view"`
	Encoding    string      `toml:"encoding"`
	LineEnding  string      `toml:"line_ending"`
	Checksum    string      `toml:"checksum"`
	MetricsAddr string      `toml:"metrics_addr"`
	CorsOrigins []string    `toml:"cors_origins"`
	Framing     fileFraming `toml:"framing"`
}

type fileFraming struct {
	Strategy        string `toml:"strategy"`
	Delimiter       string `toml:"delimiter"`
	TimeoutMS       int64  `toml:"timeout_ms"`
	PrefixWidth     int    `toml:"prefix_width"`
	PrefixEndian    string `toml:"prefix_endian"`
	Script          string `toml:"script"`
	ScriptFile      string `toml:"script_file"`
	ScriptTimeoutMS int64  `toml:"script_timeout_ms"`
	Persistence     string `toml:"persistence"`
	StripDelimiter  bool   `toml:"strip_delimiter"`
	MaxFrameBytes   int    `toml:"max_frame_bytes"`
	ResetOnError    bool   `toml:"reset_on_error"`
}

// loadWorkbenchConfig overlays the keys present in path onto the defaults.
// An empty path yields the defaults.
func loadWorkbenchConfig(path string) (config.WorkbenchConfig, error) {
	cfg := config.DefaultWorkbenchConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return config.WorkbenchConfig{}, fmt.Errorf("load serialbench config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return config.WorkbenchConfig{}, fmt.Errorf("load serialbench config: unknown key %s", undecoded[0])
	}

	if meta.IsDefined("name") {
		if name := strings.TrimSpace(raw.Name); name != "" {
			cfg.Name = name
		}
	}
	if meta.IsDefined("view") {
		cfg.View = strings.TrimSpace(raw.View)
	}
	if meta.IsDefined("encoding") {
		cfg.Encoding = strings.TrimSpace(raw.Encoding)
	}
	if meta.IsDefined("line_ending") {
		cfg.LineEnding = strings.TrimSpace(raw.LineEnding)
	}
	if meta.IsDefined("checksum") {
		cfg.Checksum = strings.TrimSpace(raw.Checksum)
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = normalizeList(raw.CorsOrigins)
	}

	f := &cfg.Framing
	if meta.IsDefined("framing", "strategy") {
		f.Strategy = strings.TrimSpace(raw.Framing.Strategy)
	}
	if meta.IsDefined("framing", "delimiter") {
		f.Delimiter = raw.Framing.Delimiter
	}
	if meta.IsDefined("framing", "timeout_ms") {
		f.TimeoutMS = raw.Framing.TimeoutMS
	}
	if meta.IsDefined("framing", "prefix_width") {
		f.PrefixWidth = raw.Framing.PrefixWidth
	}
	if meta.IsDefined("framing", "prefix_endian") {
		f.PrefixEndian = strings.TrimSpace(raw.Framing.PrefixEndian)
	}
	if meta.IsDefined("framing", "script") {
		f.Script = raw.Framing.Script
	}
	if meta.IsDefined("framing", "script_file") {
		f.ScriptFile = strings.TrimSpace(raw.Framing.ScriptFile)
		if f.ScriptFile != "" && !filepath.IsAbs(f.ScriptFile) {
			f.ScriptFile = filepath.Join(filepath.Dir(path), f.ScriptFile)
		}
	}
	if meta.IsDefined("framing", "script_timeout_ms") {
		f.ScriptTimeoutMS = raw.Framing.ScriptTimeoutMS
	}
	if meta.IsDefined("framing", "persistence") {
		f.Persistence = strings.TrimSpace(raw.Framing.Persistence)
	}
	if meta.IsDefined("framing", "strip_delimiter") {
		v := raw.Framing.StripDelimiter
		f.StripDelimiter = &v
	}
	if meta.IsDefined("framing", "max_frame_bytes") {
		f.MaxFrameBytes = raw.Framing.MaxFrameBytes
	}
	if meta.IsDefined("framing", "reset_on_error") {
		v := raw.Framing.ResetOnError
		f.ResetOnError = &v
	}

	if err := config.ValidateWorkbenchConfig(cfg); err != nil {
		return config.WorkbenchConfig{}, err
	}
	return cfg, nil
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
