package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"soonpsy/internal/adapter"
	"soonpsy/internal/companion"
	"soonpsy/internal/config"
	"soonpsy/internal/metrics"
	"soonpsy/internal/server"
)

var (
	logLevel  string
	transport string

	askMood      string
	askRest      string
	askGratitude string
)

var rootCmd = &cobra.Command{
	Use:           "soonpsy",
	Short:         "SoonPsy companion chat client",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var askCmd = &cobra.Command{
	Use:   "ask MESSAGE",
	Short: "Send one message and print the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the provider answers",
	RunE:  runPing,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the chat API over HTTP",
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides LOG_LEVEL")
	rootCmd.PersistentFlags().StringVar(&transport, "transport", "", "http, sdk_responses or sdk_chat; overrides CHAT_TRANSPORT")

	askCmd.Flags().StringVar(&askMood, "mood", "", "current mood")
	askCmd.Flags().StringVar(&askRest, "rest", "", "hours of pet sleep")
	askCmd.Flags().StringVar(&askGratitude, "gratitude", "", "something you are grateful for")

	rootCmd.AddCommand(askCmd, pingCmd, serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type app struct {
	cfg      *config.Config
	adapter  *adapter.Adapter
	provider adapter.ProviderConfig
}

func setup() (*app, error) {
	cfg, err := config.Load(config.WithTransport(transport))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	level := cfg.Log.Level
	if logLevel != "" {
		level = logLevel
	}
	setupLogger(level, cfg.Log.Pretty)

	a := adapter.New(adapter.Config{
		HTTPClient: &http.Client{Timeout: cfg.HTTP.ClientTimeout},
		Logger:     log.Logger,
		Metrics:    metrics.Global(),
	})
	return &app{
		cfg:     cfg,
		adapter: a,
		provider: adapter.ProviderConfig{
			APIKey:      cfg.Provider.APIKey,
			EndpointURL: cfg.Provider.EndpointURL,
			Model:       cfg.Provider.Model,
			Transport:   cfg.Provider.Transport,
		},
	}, nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	chatCtx := &companion.Context{
		Mood:      askMood,
		RestHours: companion.ParseRestHours(askRest),
		Gratitude: askGratitude,
	}
	res := a.adapter.Send(cmd.Context(), chatCtx, strings.Join(args, " "), a.provider)
	if !res.OK() {
		return res.Err()
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.Text)
	return nil
}

func runPing(cmd *cobra.Command, _ []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	log.Info().Str("transport", a.provider.Transport).Str("model", a.provider.Model).Msg("testing provider connection")
	if err := a.adapter.Ping(cmd.Context(), a.provider); err != nil {
		return fmt.Errorf("provider connection failed: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "provider connection ok")
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv := server.New(server.Config{
		Adapter:     a.adapter,
		Provider:    a.provider,
		Logger:      log.Logger,
		HealthPath:  a.cfg.Server.HealthPath,
		MetricsPath: a.cfg.Server.MetricsPath,
	})
	httpServer := &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       a.cfg.Server.ReadTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", a.cfg.Server.ListenAddr).
			Str("transport", a.provider.Transport).
			Str("model", a.provider.Model).
			Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to stop http server")
	}
	log.Info().Msg("stopped")
	return nil
}

func setupLogger(level string, pretty bool) {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(parseLogLevel(level))
	if pretty {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
		return
	}
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
