package cli

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"time"

	"github.com/google/subcommands"

	apphttp "ledger/internal/http"
	"ledger/internal/log"
)

const shutdownTimeout = 30 * time.Second

type serveCmd struct {
	app  *App
	port string
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "run the HTTP API and web page" }
func (*serveCmd) Usage() string {
	return `ledger serve [-port <port>]

  Serves the ledger until SIGINT or SIGTERM.
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.port, "port", "", "Port to listen on. Defaults to PORT.")
}

func (c *serveCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	logger := c.app.Logger
	port := c.port
	if port == "" {
		port = c.app.Config.Port
	}

	res, err := c.app.Open(ctx)
	if err != nil {
		return c.app.fail("open ledger: %v", err)
	}

	srv := apphttp.NewServer(":"+port, res.Store, apphttp.Options{
		Currency: c.app.currency(),
		Ready:    res.Ping,
		Logger:   logger,
	})
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	shutdownCtx, done := GracefulShutdown(logger, shutdownTimeout, func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if res.Cleanup != nil {
			if err := res.Cleanup(); err != nil {
				logger.Error("Backend cleanup error", log.FieldError, err)
			}
		}
	})

	logger.Info("Starting ledger server",
		"port", port,
		"backend", c.app.Config.Backend,
		log.FieldSlotKey, res.Store.Key(),
		log.FieldCount, res.Store.Len())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", port)
		if res.Cleanup != nil {
			_ = res.Cleanup()
		}
		return subcommands.ExitFailure
	}

	WaitForShutdown(shutdownCtx, done)
	logger.Info("Server stopped gracefully")
	return subcommands.ExitSuccess
}
