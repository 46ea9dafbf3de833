package main

import (
	"fmt"
	"strings"

	"github.com/danmuck/sdapctl/internal/config"
	"github.com/spf13/pflag"
)

type cliOptions struct {
	flags *pflag.FlagSet

	configPath  string
	url         string
	room        string
	create      bool
	valueFile   string
	schemaFile  string
	username    string
	metricsAddr string
	logLevel    string
	rollback    bool
}

func parseFlags(args []string) (cliOptions, error) {
	opts := cliOptions{flags: pflag.NewFlagSet("sdapctl", pflag.ContinueOnError)}
	f := opts.flags
	f.StringVarP(&opts.configPath, "config", "c", "", "client config file (toml)")
	f.StringVar(&opts.url, "url", "", "server websocket url")
	f.StringVarP(&opts.room, "room", "r", "", "room to join, or the name to create with --create")
	f.BoolVar(&opts.create, "create", false, "create a room from --value and --schema instead of joining")
	f.StringVar(&opts.valueFile, "value", "", "initial document file (json or jsonc)")
	f.StringVar(&opts.schemaFile, "schema", "", "schema file (yaml or json)")
	f.StringVarP(&opts.username, "username", "u", "", "username announced in hello")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	f.StringVar(&opts.logLevel, "log-level", "", "log level (trace|debug|info|warn|error|off)")
	f.BoolVar(&opts.rollback, "rollback", false, "undo local edits the server rejects")
	if err := f.Parse(args); err != nil {
		return cliOptions{}, err
	}
	if rest := f.Args(); len(rest) > 0 {
		return cliOptions{}, fmt.Errorf("unexpected arguments: %s", strings.Join(rest, " "))
	}
	return opts, nil
}

// resolveConfig layers explicitly set flags over the config file, or over
// the defaults when no file is given.
func resolveConfig(opts cliOptions) (config.ClientConfig, error) {
	cfg := config.DefaultClientConfig()
	if opts.configPath != "" {
		loaded, err := config.LoadClientConfig(opts.configPath)
		if err != nil {
			return config.ClientConfig{}, err
		}
		cfg = loaded
	}

	changed := opts.flags.Changed
	if changed("url") {
		cfg.URL = strings.TrimSpace(opts.url)
	}
	if changed("room") {
		cfg.Room = strings.TrimSpace(opts.room)
	}
	if changed("create") {
		cfg.Create = opts.create
	}
	if changed("value") {
		cfg.ValueFile = opts.valueFile
	}
	if changed("schema") {
		cfg.SchemaFile = opts.schemaFile
	}
	if changed("username") {
		cfg.Username = strings.TrimSpace(opts.username)
	}
	if changed("metrics-addr") {
		cfg.MetricsAddr = strings.TrimSpace(opts.metricsAddr)
	}
	if changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if changed("rollback") && opts.rollback {
		cfg.RejectPolicy = "rollback"
	}

	if err := config.ValidateClientConfig(cfg); err != nil {
		return config.ClientConfig{}, err
	}
	return cfg, nil
}
