package main

import (
	"flag"
	"strings"

	"github.com/Leonezz/serialport-api-mgr-sub005/internal/config"
	"github.com/Leonezz/serialport-api-mgr-sub005/internal/logging"
	"github.com/rs/zerolog/log"
)

func main() {
	logging.ConfigureRuntime()

	kind := flag.String("kind", "workbench", "config kind: "+strings.Join(config.TemplateKinds(), "|"))
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "cmd/serialbench/config.toml", "config path for validation")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		cfg, err := config.LoadWorkbenchConfig(*input)
		if err != nil {
			log.Fatal().Err(err).Str("path", *input).Msg("config invalid")
		}
		log.Info().
			Str("path", *input).
			Str("name", cfg.Name).
			Str("strategy", cfg.Framing.Strategy).
			Msg("config valid")
		return
	}

	target := *output
	if target == "" {
		target = "cmd/serialbench/config.toml"
	}
	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal().Err(err).Msg("write template")
	}
	log.Info().Str("kind", *kind).Str("path", target).Msg("wrote config template")
}
