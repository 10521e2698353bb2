// Package app composes the store, the inventory syncer, and the HTTP server
// behind a single Run call.
package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"pantry/internal/docstore"
	"pantry/internal/httpserver"
	"pantry/internal/inventory"
	"pantry/internal/search"
	"pantry/internal/ui"
	"pantry/pkg/domain"
)

// Version is overridden at build time with -ldflags.
var Version = "dev"

const shutdownTimeout = 5 * time.Second

// Config captures the command line flags.
type Config struct {
	showVersion bool
	addr        string
	collection  string
	debounce    time.Duration
	logLevel    string
	traceFile   string
}

// Run opens the configured store, loads the pantry, and serves HTTP until ctx
// is cancelled. A nil logger is replaced by a text logger on stderr at the
// level given by -log-level.
func Run(ctx context.Context, args []string, logger *slog.Logger) error {
	cfg, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if logger == nil {
		level, err := parseLevel(cfg.logLevel)
		if err != nil {
			return err
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}
	if cfg.showVersion {
		logger.Info("pantry version", "version", Version)
		return nil
	}

	store, err := docstore.Open(ctx)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()
	logger.Info("document store ready", "driver", store.Driver(), "collection", cfg.collection)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	promMetrics, err := inventory.NewPrometheusMetricsRecorder(registry)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	expvarMetrics := inventory.NewExpvarMetricsRecorder("")

	opts := []inventory.Option{
		inventory.WithLogger(logger),
		inventory.WithMetricsRecorder(inventory.MultiMetricsRecorder{promMetrics, expvarMetrics}),
		inventory.WithCollection(cfg.collection),
	}
	if cfg.traceFile != "" {
		f, err := os.OpenFile(cfg.traceFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open trace file: %w", err)
		}
		defer f.Close()
		tracer := inventory.NewJSONTracer(f)
		defer func() {
			if n := tracer.EncodeErrors(); n > 0 {
				logger.Warn("trace spans were dropped", "file", cfg.traceFile, "count", n)
			}
		}()
		opts = append(opts, inventory.WithTracer(tracer))
	}
	syncer := inventory.New(store, opts...)

	controller := ui.New(syncer, search.WithDelay(cfg.debounce))
	defer controller.Close()
	if err := controller.Load(ctx); err != nil {
		logger.Warn("initial load failed; starting with an empty list", "error", err)
	}

	srv, err := httpserver.New(controller, httpserver.WithLogger(logger), httpserver.WithGatherer(registry))
	if err != nil {
		return fmt.Errorf("build http server: %w", err)
	}

	listener, err := net.Listen("tcp", cfg.address())
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	server := &http.Server{
		Handler:      srv.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return serve(ctx, server, listener, logger)
}

func serve(ctx context.Context, server *http.Server, listener net.Listener, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("pantry is running", "addr", listener.Addr().String())
		errCh <- server.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server stopped unexpectedly: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	logger.Info("shutting down")
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	<-errCh
	return nil
}

// address applies the PORT override used by hosting platforms.
func (c Config) address() string {
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	return c.addr
}

func parseFlags(args []string) (Config, error) {
	set := flag.NewFlagSet("pantry", flag.ContinueOnError)
	set.SetOutput(io.Discard)

	var cfg Config
	set.BoolVar(&cfg.showVersion, "version", false, "Show the application version")
	set.StringVar(&cfg.addr, "addr", ":8080", "Listen address; PORT overrides the port.")
	set.StringVar(&cfg.collection, "collection", domain.Collection, "Document collection holding pantry items.")
	set.DurationVar(&cfg.debounce, "debounce", search.DefaultDelay, "Quiet period before a search query is applied.")
	set.StringVar(&cfg.logLevel, "log-level", "info", "Log level: debug, info, warn or error.")
	set.StringVar(&cfg.traceFile, "trace-file", "", "Append store operation spans as JSON lines to this file.")

	if err := set.Parse(args); err != nil {
		return Config{}, err
	}
	if cfg.collection == "" {
		return Config{}, errors.New("collection must not be empty")
	}
	if cfg.debounce < 0 {
		return Config{}, fmt.Errorf("debounce must not be negative: %s", cfg.debounce)
	}
	return cfg, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}
