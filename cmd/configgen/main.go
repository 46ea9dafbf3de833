package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/danmuck/sdapctl/internal/config"
	"github.com/danmuck/sdapctl/internal/logging"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

var defaultPaths = map[string]string{
	"client":   "cmd/sdapctl/config.toml",
	"document": "cmd/sdapctl/document.jsonc",
	"schema":   "cmd/sdapctl/schema.yaml",
}

func main() {
	logging.ConfigureRuntime()
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		log.Fatal().Err(err).Msg("configgen failed")
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("configgen", pflag.ContinueOnError)
	kind := flags.StringP("kind", "k", "client", "file kind: "+strings.Join(config.Kinds(), "|"))
	output := flags.StringP("output", "o", "", "output path for the template")
	validate := flags.Bool("validate", false, "validate an existing file")
	input := flags.StringP("input", "i", "", "path to validate (defaults to the per-kind cmd path)")
	force := flags.Bool("force", false, "overwrite an existing file")
	if err := flags.Parse(args); err != nil {
		return err
	}

	fallback, ok := defaultPaths[*kind]
	if !ok {
		return fmt.Errorf("unknown kind: %s", *kind)
	}

	if *validate {
		path := *input
		if path == "" {
			path = fallback
		}
		if err := config.Validate(path, *kind); err != nil {
			return err
		}
		log.Info().Str("kind", *kind).Str("path", path).Msg("validated")
		return nil
	}

	target := *output
	if target == "" {
		target = fallback
	}
	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		return err
	}
	log.Info().Str("kind", *kind).Str("path", target).Msg("wrote template")
	return nil
}
