package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Leonezz/serialport-api-mgr-sub005/internal/checksum"
	"github.com/Leonezz/serialport-api-mgr-sub005/internal/codec"
	"github.com/Leonezz/serialport-api-mgr-sub005/internal/framing"
	"github.com/Leonezz/serialport-api-mgr-sub005/internal/script"
	"github.com/Leonezz/serialport-api-mgr-sub005/internal/workbench"
)

// Profile is a WorkbenchConfig turned into the typed values the codec,
// framing and workbench packages take.
type Profile struct {
	Name        string
	View        codec.ViewMode
	Encoding    codec.TextEncoding
	LineEnding  codec.LineEnding
	Outbound    workbench.Outbound
	Session     workbench.Config
	MetricsAddr string
	CorsOrigins []string
}

func Resolve(cfg WorkbenchConfig) (Profile, error) {
	view, err := codec.ParseViewMode(cfg.View)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: view: %w", ErrInvalidConfig, err)
	}
	enc, err := codec.ParseTextEncoding(cfg.Encoding)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: encoding: %w", ErrInvalidConfig, err)
	}
	ending, err := codec.ParseLineEnding(cfg.LineEnding)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: line_ending: %w", ErrInvalidConfig, err)
	}
	algo, err := checksum.ParseAlgorithm(cfg.Checksum)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: checksum: %w", ErrInvalidConfig, err)
	}
	strategy, err := FramingStrategy(cfg.Framing)
	if err != nil {
		return Profile{}, err
	}
	persistence, err := framing.ParsePersistence(cfg.Framing.Persistence)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: persistence: %w", ErrInvalidConfig, err)
	}

	return Profile{
		Name:       cfg.Name,
		View:       view,
		Encoding:   enc,
		LineEnding: ending,
		Outbound: workbench.Outbound{
			View:       view,
			Encoding:   enc,
			Checksum:   algo,
			LineEnding: ending,
		},
		Session: workbench.Config{
			Port:           cfg.Name,
			Strategy:       strategy,
			Persistence:    persistence,
			Limits:         framing.Limits{MaxFrameBytes: cfg.Framing.MaxFrameBytes},
			Checksum:       algo,
			StripDelimiter: cfg.Framing.StripDelimiter == nil || *cfg.Framing.StripDelimiter,
			ResetOnError:   cfg.Framing.ResetOnError == nil || *cfg.Framing.ResetOnError,
		},
		MetricsAddr: strings.TrimSpace(cfg.MetricsAddr),
		CorsOrigins: cfg.CorsOrigins,
	}, nil
}

// FramingStrategy builds and validates the strategy named by f.
func FramingStrategy(f FramingConfig) (framing.Strategy, error) {
	kind, err := framing.ParseKind(f.Strategy)
	if err != nil {
		return framing.Strategy{}, fmt.Errorf("%w: framing.strategy: %w", ErrInvalidConfig, err)
	}
	var st framing.Strategy
	switch kind {
	case framing.KindNone:
		st = framing.NoFraming()
	case framing.KindDelimiter:
		delim, err := codec.ParseHexData(f.Delimiter)
		if err != nil {
			return framing.Strategy{}, fmt.Errorf("%w: framing.delimiter: %w", ErrInvalidConfig, err)
		}
		st = framing.Delimited(delim)
	case framing.KindTimeout:
		st = framing.Timed(time.Duration(f.TimeoutMS) * time.Millisecond)
	case framing.KindPrefixLength:
		endian, err := framing.ParseEndianness(f.PrefixEndian)
		if err != nil {
			return framing.Strategy{}, fmt.Errorf("%w: framing.prefix_endian: %w", ErrInvalidConfig, err)
		}
		st = framing.PrefixLength(f.PrefixWidth, endian)
	case framing.KindScript:
		source, err := scriptSource(f)
		if err != nil {
			return framing.Strategy{}, err
		}
		st = framing.Scripted(source, time.Duration(f.ScriptTimeoutMS)*time.Millisecond)
	}
	if err := st.Validate(); err != nil {
		return framing.Strategy{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if kind == framing.KindScript {
		if _, err := script.Compile(st.Script, script.WithBudget(st.ScriptBudget)); err != nil {
			return framing.Strategy{}, fmt.Errorf("%w: framing.script: %w", ErrInvalidConfig, err)
		}
	}
	return st, nil
}

func scriptSource(f FramingConfig) (string, error) {
	if strings.TrimSpace(f.ScriptFile) == "" {
		return f.Script, nil
	}
	data, err := os.ReadFile(f.ScriptFile)
	if err != nil {
		return "", fmt.Errorf("%w: framing.script_file: %w", ErrInvalidConfig, err)
	}
	return string(data), nil
}
