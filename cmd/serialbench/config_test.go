package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Leonezz/serialport-api-mgr-sub005/internal/config"
	"github.com/Leonezz/serialport-api-mgr-sub005/internal/testutil/testlog"
)

func TestLoadWorkbenchConfigDefaultsAndOverrides(t *testing.T) {
	testlog.Start(t)
	cfg, err := loadWorkbenchConfig("ex.config.toml")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Name != "COM3" {
		t.Fatalf("unexpected name: %q", cfg.Name)
	}
	if cfg.View != "hex" || cfg.Encoding != "gbk" || cfg.Checksum != "crc16" {
		t.Fatalf("unexpected top-level overlay: %+v", cfg)
	}
	if cfg.LineEnding != "crlf" {
		t.Fatalf("line_ending default lost: %q", cfg.LineEnding)
	}
	if len(cfg.CorsOrigins) != 1 || cfg.CorsOrigins[0] != "http://localhost:5173" {
		t.Fatalf("unexpected cors origins: %+v", cfg.CorsOrigins)
	}
	if cfg.Framing.Strategy != "prefix_length" || cfg.Framing.PrefixWidth != 2 || cfg.Framing.PrefixEndian != "little" {
		t.Fatalf("unexpected framing overlay: %+v", cfg.Framing)
	}
	if cfg.Framing.StripDelimiter == nil || *cfg.Framing.StripDelimiter {
		t.Fatalf("strip_delimiter=false not applied")
	}
	if cfg.Framing.ResetOnError == nil || !*cfg.Framing.ResetOnError {
		t.Fatalf("reset_on_error default lost")
	}
	if cfg.Framing.MaxFrameBytes != 1024 {
		t.Fatalf("unexpected max_frame_bytes: %d", cfg.Framing.MaxFrameBytes)
	}
	if cfg.Framing.Delimiter != "0D 0A" {
		t.Fatalf("delimiter default lost: %q", cfg.Framing.Delimiter)
	}
}

func TestLoadWorkbenchConfigEmptyPathIsDefault(t *testing.T) {
	testlog.Start(t)
	cfg, err := loadWorkbenchConfig("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	want := config.DefaultWorkbenchConfig()
	if cfg.Name != want.Name || cfg.Framing.Strategy != want.Framing.Strategy {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadWorkbenchConfigRejectsUnknownKeysAndBadValues(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	for name, body := range map[string]string{
		"unknown": "baud = 9600\n",
		"invalid": "checksum = \"sha1\"\n",
	} {
		path := filepath.Join(dir, name+".toml")
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := loadWorkbenchConfig(path); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadWorkbenchConfigScriptFileRelativeToConfig(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "f.js"), []byte("return data.length > 1 ? 2 : false;"), 0o600); err != nil {
		t.Fatalf("write script: %v", err)
	}
	path := filepath.Join(dir, "c.toml")
	if err := os.WriteFile(path, []byte("[framing]\nstrategy = \"script\"\nscript_file = \"f.js\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := loadWorkbenchConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Framing.ScriptFile != filepath.Join(dir, "f.js") {
		t.Fatalf("unexpected script_file: %q", cfg.Framing.ScriptFile)
	}
}
