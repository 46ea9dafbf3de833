// Command sdapctl is a terminal client for an SDAP document server. It keeps
// a local copy of one room, prints it whenever it changes, and reads edit
// commands from stdin.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/danmuck/sdapctl/internal/config"
	"github.com/danmuck/sdapctl/internal/logging"
	"github.com/danmuck/sdapctl/internal/observability"
	"github.com/danmuck/sdapctl/internal/room"
	"github.com/danmuck/sdapctl/internal/transport"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

func main() {
	logging.ConfigureRuntime()
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "sdapctl: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	cfg, err := resolveConfig(opts)
	if err != nil {
		return err
	}

	logger := log.Logger.With().Str("app", "sdapctl").Logger()
	if level, ok := logging.ParseLevel(cfg.LogLevel); ok {
		logger = observability.InitLogger("sdapctl", level)
	}

	var initial, schema any
	if cfg.ValueFile != "" {
		if initial, err = config.LoadDocumentFile(cfg.ValueFile); err != nil {
			return err
		}
	}
	if cfg.SchemaFile != "" {
		if schema, err = config.LoadSchemaFile(cfg.SchemaFile); err != nil {
			return err
		}
	}
	if initial == nil {
		initial = map[string]any{}
	}

	client, err := transport.New(cfg.URL, cfg.TransportConfig(), logger)
	if err != nil {
		return err
	}
	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return err
	}
	con := newConsole(os.Stdout, schema)
	engine, err := room.NewEngine(room.Options{
		Config:   engineCfg,
		Sender:   client,
		Initial:  initial,
		Logger:   logger,
		OnRender: con.render,
		OnReport: con.report,
	})
	if err != nil {
		return err
	}
	con.attach(engine)

	var connects atomic.Int32
	client.OnConnect(func() {
		if err := engine.Hello(); err != nil {
			logger.Warn().Err(err).Msg("hello not sent")
		}
		if connects.Add(1) > 1 {
			if err := engine.Resync(); err != nil {
				logger.Warn().Err(err).Msg("resync failed")
			}
			return
		}
		startRoom(logger, engine, cfg, schema, initial)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		srv := serveMetrics(logger, cfg.MetricsAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	runErr := make(chan error, 1)
	go func() {
		runErr <- client.Run(ctx, engine.HandleRaw)
	}()

	consoleDone := make(chan error, 1)
	go func() {
		consoleDone <- con.loop(ctx, os.Stdin)
	}()

	select {
	case err := <-consoleDone:
		_ = engine.Leave()
		client.Close()
		<-runErr
		return err
	case err := <-runErr:
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
}

// startRoom performs the initial create or join requested on the command line.
func startRoom(logger zerolog.Logger, engine *room.Engine, cfg config.ClientConfig, schema, initial any) {
	switch {
	case cfg.Create:
		if err := engine.Create(cfg.Room, schema, initial); err != nil {
			logger.Warn().Err(err).Msg("create not sent")
		}
	case cfg.Room != "":
		if err := engine.Join(cfg.Room); err != nil {
			logger.Warn().Err(err).Msg("join not sent")
		}
	}
}

func serveMetrics(logger zerolog.Logger, addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("addr", addr).Msg("metrics listener stopped")
		}
	}()
	logger.Info().Str("addr", addr).Msg("serving metrics")
	return srv
}
