// Command parley runs the two-party negotiation service.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/parley-labs/parley/pkg/api"
	"github.com/parley-labs/parley/pkg/config"
	"github.com/parley-labs/parley/pkg/contracts"
	"github.com/parley-labs/parley/pkg/judgment"
	"github.com/parley-labs/parley/pkg/llm"
	"github.com/parley-labs/parley/pkg/mailer"
	"github.com/parley-labs/parley/pkg/mediation"
	"github.com/parley-labs/parley/pkg/notify"
	"github.com/parley-labs/parley/pkg/observability"
	"github.com/parley-labs/parley/pkg/orchestrator"
	"github.com/parley-labs/parley/pkg/profile"
	"github.com/parley-labs/parley/pkg/store"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint, split out for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		return runServer()
	}
	switch args[1] {
	case "server", "serve":
		return runServer()
	case "health":
		return runHealthCmd(stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: parley <command>")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  server   Run the negotiation service (default)")
	fmt.Fprintln(w, "  health   Check server health (HTTP)")
	fmt.Fprintln(w, "  help     Show this help")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// newEngineClient builds the generation client for one endpoint, wrapped in
// the shared rate limit.
func newEngineClient(cfg *config.Config, baseURL, model string) llm.Client {
	var inner llm.Client
	switch cfg.LLMProvider {
	case "anthropic":
		inner = llm.NewAnthropicClient(baseURL, cfg.LLMAPIKey, model)
	default:
		inner = llm.NewOpenAIClient(baseURL, cfg.LLMAPIKey, model)
	}
	return llm.NewRateLimited(inner, cfg.LLMRPS, cfg.LLMBurst)
}

//nolint:gocognit // Wiring is linear and intentionally exhaustive.
func runServer() int {
	ctx := context.Background()

	cfg := config.Load()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	tuning := config.DefaultTuning()
	if cfg.TuningDir != "" {
		loaded, err := config.LoadTuning(cfg.TuningDir, "default")
		if err != nil {
			logger.Warn("tuning profile not loaded, using defaults", "dir", cfg.TuningDir, "error", err)
		} else {
			tuning = loaded
		}
	}

	obsCfg := observability.DefaultConfig()
	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" {
		obsCfg.Enabled = true
		obsCfg.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	obs, err := observability.New(ctx, obsCfg, logger)
	if err != nil {
		logger.Error("observability init failed", "error", err)
		return 1
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		logger.Error("session store init failed", "path", cfg.DatabasePath, "error", err)
		return 1
	}
	defer func() { _ = st.Close() }()
	logger.Info("session store ready", "path", cfg.DatabasePath)

	files, err := store.NewFileStore(cfg.FileStoreDir)
	if err != nil {
		logger.Error("file store init failed", "dir", cfg.FileStoreDir, "error", err)
		return 1
	}

	defaultClient := newEngineClient(cfg, cfg.LLMBaseURL, cfg.LLMModel)
	engines := func(sess *contracts.Session) orchestrator.Engines {
		client := defaultClient
		if sess.Override != nil && sess.Override.BaseURL != "" {
			model := sess.Override.Model
			if model == "" {
				model = cfg.LLMModel
			}
			client = newEngineClient(cfg, sess.Override.BaseURL, model)
		} else if sess.Model != "" && sess.Model != cfg.LLMModel {
			client = newEngineClient(cfg, cfg.LLMBaseURL, sess.Model)
		}
		return orchestrator.Engines{
			Deriver:     mediation.NewDeriver(client, tuning.Derivation, logger),
			Accumulator: profile.NewAccumulator(client, tuning.Analysis, logger),
			Pipeline:    judgment.NewPipeline(client, tuning, logger),
		}
	}

	var channel notify.Channel
	var events notify.Subscriber
	if cfg.RedisURL != "" {
		redisChannel, err := notify.NewRedisChannel(cfg.RedisURL, logger)
		if err != nil {
			logger.Error("redis connect failed", "error", err)
			return 1
		}
		defer func() { _ = redisChannel.Close() }()
		channel, events = redisChannel, redisChannel
		logger.Info("notifications over redis")
	} else {
		memory := notify.NewMemoryChannel()
		channel, events = memory, memory
		logger.Info("notifications in memory")
	}

	mail := mailer.New(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.MailFrom, cfg.PublicURL, logger)
	if mail.Enabled() {
		logger.Info("mail notifications enabled", "host", cfg.SMTPHost)
	}

	orc := orchestrator.New(st, files, engines, channel, mail, logger)
	orc.SetTracker(obs.TrackAction)
	srv := api.NewServer(orc, events, cfg.PublicURL, logger)
	limiter := api.NewIPRateLimiter(10, 20)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Routes(limiter),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", httpServer.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			return 1
		}
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		logger.Error("observability shutdown failed", "error", err)
	}
	return 0
}

func runHealthCmd(out, errOut io.Writer) int {
	cfg := config.Load()
	resp, err := http.Get("http://localhost:" + cfg.Port + "/health")
	if err != nil {
		fmt.Fprintf(errOut, "Health check failed: %v\n", err)
		return 1
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(errOut, "Health check failed: status %d\n", resp.StatusCode)
		return 1
	}
	fmt.Fprintln(out, "OK")
	return 0
}
