package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/georgepadayatti/pdfseal/api"
	"github.com/georgepadayatti/pdfseal/pipeline"
)

// ServeCommand implements the 'serve' command.
func ServeCommand(args []string) int {
	serveFlags := newFlagSet("serve")

	var configFile, addr string
	serveFlags.StringVar(&configFile, "config", "", "Configuration file (YAML)")
	serveFlags.StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")

	serveFlags.Usage = func() {
		fmt.Fprintf(stderr, "Usage: pdfseal serve [options]\n\n")
		fmt.Fprintln(stderr, "Run the HTTP API until interrupted.")
		fmt.Fprintln(stderr, "")
		fmt.Fprintln(stderr, "Options:")
		serveFlags.PrintDefaults()
	}

	if code, ok := parseFlags(serveFlags, args); !ok {
		return code
	}

	cfg, logger, err := loadConfig(configFile, true)
	if err != nil {
		return fail(err)
	}
	defer logger.Sync() //nolint:errcheck
	if addr != "" {
		cfg.Server.Addr = addr
	}

	engine, err := pipeline.NewEngine(cfg, pipeline.WithLogger(logger))
	if err != nil {
		logger.Error("failed to build engine", zap.Error(err))
		return fail(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := api.NewServer(engine, cfg.Server, logger)
	if err := server.Run(ctx); err != nil {
		logger.Error("server stopped", zap.Error(err))
		return fail(err)
	}
	logger.Info("server exiting")
	return ExitOK
}
