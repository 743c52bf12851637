package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/jrsteele09/go-oidc-relay/auth"
	"github.com/jrsteele09/go-oidc-relay/internal/config"
	"github.com/jrsteele09/go-oidc-relay/internal/logging"
	"github.com/jrsteele09/go-oidc-relay/internal/metrics"
	"github.com/jrsteele09/go-oidc-relay/relay"
	"github.com/jrsteele09/go-oidc-relay/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Error running server")
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.New()
	if err != nil {
		return err
	}
	logging.Setup(c.GetEnv(), c.GetLogLevel())
	if err := c.Validate(); err != nil {
		return err
	}
	displayAppname(c.GetAppName())

	stores, err := server.InitialiseStores(context.Background(), c)
	if err != nil {
		return err
	}
	defer func() {
		if err := stores.Close(); err != nil {
			log.Err(err).Msg("failed to close stores")
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	provider := auth.NewProvider(c.GetIssuerURL(),
		auth.WithHTTPClient(cleanhttp.DefaultPooledClient()),
		auth.WithAllowedIssuers(c.GetAllowedIssuers()),
	)
	authenticator, err := auth.NewAuthenticator(c, provider, stores.Flows, stores.Sessions)
	if err != nil {
		return err
	}

	relayClient, err := relay.New(c, m)
	if err != nil {
		return err
	}

	handler, err := server.New(c, server.Dependencies{
		Authenticator: authenticator,
		Sessions:      stores.Sessions,
		Relay:         relayClient,
		Metrics:       m,
		Gatherer:      registry,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              c.GetPort(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- listenAndServe(srv) }()

	select {
	case err := <-serveErr:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(srv)
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
