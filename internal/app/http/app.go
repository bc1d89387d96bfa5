package httpapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"ssoengine/internal/config"
)

type App struct {
	log        *slog.Logger
	httpServer *http.Server
}

// New creates new HTTP server app
func New(log *slog.Logger, conf config.HTTPConfig, handler http.Handler) *App {
	return &App{
		log: log,
		httpServer: &http.Server{
			Addr:         conf.Address,
			Handler:      handler,
			ReadTimeout:  conf.Timeout,
			WriteTimeout: conf.Timeout,
			IdleTimeout:  conf.IdleTimeout,
		},
	}
}

// MustRun runs HTTP server and panic if any occurs
func (a *App) MustRun() {
	if err := a.Run(); err != nil {
		panic(err)
	}
}

// Run HTTP server until Stop is called
func (a *App) Run() error {
	const op = "httpapp.Run"

	log := a.log.With(slog.String("op", op))

	l, err := net.Listen("tcp", a.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("starting HTTP server", slog.String("addr", l.Addr().String()))

	if err := a.httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Stop HTTP server, waiting for in-flight requests until ctx is done
func (a *App) Stop(ctx context.Context) {
	const op = "httpapp.Stop"

	a.log.With(slog.String("op", op)).Info("stopping HTTP server")
	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.log.Error("graceful shutdown failed", slog.String("error", err.Error()))
	}
}
