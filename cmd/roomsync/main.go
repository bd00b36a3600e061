package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/p-blackswan/roomsync/internal/boards"
	"github.com/p-blackswan/roomsync/internal/cache"
	"github.com/p-blackswan/roomsync/internal/config"
	"github.com/p-blackswan/roomsync/internal/control"
	"github.com/p-blackswan/roomsync/internal/discovery"
	"github.com/p-blackswan/roomsync/internal/health"
	"github.com/p-blackswan/roomsync/internal/help"
	"github.com/p-blackswan/roomsync/internal/metrics"
	"github.com/p-blackswan/roomsync/internal/monday"
	"github.com/p-blackswan/roomsync/internal/presentation"
	"github.com/p-blackswan/roomsync/internal/retry"
	"github.com/p-blackswan/roomsync/internal/syncer"
	"github.com/p-blackswan/roomsync/internal/variables"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	if os.Getenv("ENVIRONMENT") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	log.Logger = logger

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	setLogLevel(cfg.LogLevel)

	loc, _ := cfg.Location()

	layout := boards.DefaultLayout()
	if cfg.BoardLayoutPath != "" {
		layout, err = boards.LoadLayout(cfg.BoardLayoutPath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.BoardLayoutPath).Msg("failed to load board layout")
		}
	}

	mode, err := boards.ParseMode(cfg.TerminalMode, layout)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid terminal mode")
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Str("mode", mode.Name).
		Str("kit", cfg.KitSelection).
		Int("polling_minutes", cfg.PollingRateMinutes).
		Int("http_port", cfg.HTTPPort).
		Str("control_addr", cfg.ControlListenAddr).
		Str("timezone", loc.String()).
		Msg("starting roomsync")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	m := metrics.New()

	// Board API client
	client := monday.NewClient(cfg.MondayAPIURL, &monday.TokenAuth{Token: cfg.MondayAPIToken}, logger)
	client.SetHTTPClient(&http.Client{Timeout: cfg.MondayRequestTimeout})
	client.SetMetrics(m)
	if cfg.MondayAPIVersion != "" {
		client.SetAPIVersion(cfg.MondayAPIVersion)
	}
	rc := retry.DefaultConfig()
	rc.MaxAttempts = cfg.MondayRetryAttempts
	rc.OnRetry = func(attempt int, err error) {
		logger.Warn().Err(err).Int("attempt", attempt).Msg("retrying board API request")
	}
	client.SetRetry(rc)

	// Variable store
	var (
		vars      variables.Store
		actionLog control.ActionLog
		closeVars = func() error { return nil }
	)
	if cfg.VariablesDB != "" {
		sqlStore, err := variables.OpenSQLite(cfg.VariablesDB, logger)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.VariablesDB).Msg("failed to open variable store")
		}
		vars, actionLog, closeVars = sqlStore, sqlStore, sqlStore.Close
	} else {
		vars = variables.NewMemoryStore()
	}

	cacheDir := cfg.CacheDir
	if cacheDir == "" {
		cacheDir = cache.DefaultDir()
	}
	store := cache.NewStore(cacheDir, m, logger)

	resolver := discovery.NewResolver(client, layout, mode, cfg.KitSelection, m, logger)
	fetcher := presentation.NewFetcher(client, mode, loc, logger)
	tracker := help.NewTracker(client, layout)

	var notifiers help.Multi
	if cfg.HelpWebhookEnabled() {
		notifiers = append(notifiers, help.NewWebhookNotifier(cfg.HelpWebhookURL, cfg.HelpNotifyTimeout, logger))
	}
	if cfg.SlackHelpEnabled() {
		notifiers = append(notifiers, help.NewSlackNotifier(cfg.HelpSlackWebhookURL, cfg.HelpNotifyTimeout, logger))
	}
	var notifier help.Notifier
	if len(notifiers) > 0 {
		notifier = notifiers
	}

	orch := syncer.New(syncer.Deps{
		Resolver:  resolver,
		Fetcher:   fetcher,
		Cache:     store,
		Variables: vars,
		Help:      tracker,
		Notifier:  notifier,
		Mode:      mode,
		Location:  loc,
		Metrics:   m,
		Logger:    logger,
	}, settingsFrom(cfg))
	client.OnFailure(orch.ReportFailure)

	// Health
	checker := health.NewChecker(logger)
	checker.Register("discovery", health.DiscoveryCheck(orch.Ready))
	checker.Register("sync", health.SyncCheck(vars))
	checker.Register("cache", health.CacheDirCheck(cacheDir))

	// Probe server with push channel
	hub := control.NewHub(vars, logger)
	mux := http.NewServeMux()
	mux.HandleFunc("/health", health.LivenessHandler())
	mux.HandleFunc("/ready", checker.ReadinessHandler())
	mux.Handle("/metrics", m.Handler())
	mux.Handle("/ws", hub)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Control API
	roles := make(map[string]control.Role)
	for _, k := range cfg.OperatorKeyList() {
		roles[k] = control.RoleOperator
	}
	controlServer := control.NewServer(ctx, control.ServerConfig{
		ListenAddr: cfg.ControlListenAddr,
		AuthConfig: control.AuthConfig{
			Mode:      cfg.ControlAuthMode,
			APIKey:    cfg.ControlAPIKey,
			Roles:     roles,
			JWTSecret: []byte(cfg.ControlJWTSecret),
		},
		RateLimit: control.RateLimitConfig{
			RPS:   cfg.ControlRateLimitRPS,
			Burst: cfg.ControlRateLimitBurst,
		},
		CORSOrigins: cfg.ControlCORSOrigins,
		KitsBoardID: layout.KitsBoardID,
	}, control.Deps{
		Engine:    orch,
		Variables: vars,
		Kits:      client,
		ActionLog: actionLog,
		Checker:   checker,
		Metrics:   m,
	}, logger)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := controlServer.Start(); err != nil {
			logger.Error().Err(err).Msg("control API server error")
		}
	}()

	orch.Start(ctx)

	for sig := range sigCh {
		if sig == syscall.SIGHUP {
			reload(orch, logger)
			continue
		}
		logger.Info().Str("signal", sig.String()).Msg("shutting down gracefully")
		break
	}

	cancel()
	orch.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	hub.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}
	if err := controlServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("control API server shutdown error")
	}

	done := make(chan struct{})
	go func() {
		orch.Wait()
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("all goroutines stopped")
	case <-time.After(15 * time.Second):
		logger.Warn().Msg("forced shutdown after timeout")
	}

	if err := closeVars(); err != nil {
		logger.Error().Err(err).Msg("failed to close variable store")
	}

	logger.Info().Msg("roomsync stopped")
}

func settingsFrom(cfg *config.Config) syncer.Settings {
	return syncer.Settings{
		KitID:             cfg.KitSelection,
		PollingInterval:   cfg.PollingInterval(),
		DiscoveryInterval: cfg.DiscoveryInterval,
		Threshold:         cfg.CompletionThreshold,
		HelpGroup:         cfg.HelpGroup,
		HelpCrew:          cfg.HelpCrew,
		NotifyTimeout:     cfg.HelpNotifyTimeout,
	}
}

// reload re-reads the environment and applies the tunables. Board layout,
// terminal mode and listeners need a restart.
func reload(orch *syncer.Orchestrator, logger zerolog.Logger) {
	cfg, err := config.Load()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		logger.Error().Err(err).Msg("config reload rejected")
		return
	}
	setLogLevel(cfg.LogLevel)
	orch.Reload(settingsFrom(cfg))
	logger.Info().
		Str("kit", cfg.KitSelection).
		Int("polling_minutes", cfg.PollingRateMinutes).
		Float64("threshold", cfg.CompletionThreshold).
		Msg("config reloaded")
}

func setLogLevel(name string) {
	if level, err := zerolog.ParseLevel(name); err == nil {
		zerolog.SetGlobalLevel(level)
	}
}
