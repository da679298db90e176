package main

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	slacklib "github.com/slack-go/slack"

	"github.com/gosuda/parley/internal/action"
	"github.com/gosuda/parley/internal/campaign"
	"github.com/gosuda/parley/internal/config"
	"github.com/gosuda/parley/internal/domain"
	"github.com/gosuda/parley/internal/journal"
	"github.com/gosuda/parley/internal/messenger"
	parleyslack "github.com/gosuda/parley/internal/messenger/slack"
	"github.com/gosuda/parley/internal/metrics"
	"github.com/gosuda/parley/internal/notify"
	"github.com/gosuda/parley/internal/secrets"
	"github.com/gosuda/parley/internal/server"
	"github.com/gosuda/parley/internal/session"
	"github.com/gosuda/parley/internal/store/memory"
	"github.com/gosuda/parley/internal/store/postgres"
	redisstore "github.com/gosuda/parley/internal/store/redis"
	"github.com/gosuda/parley/internal/surface"
)

// dataStore is satisfied by both the in-memory and the PostgreSQL store.
type dataStore interface {
	Sessions() domain.SessionRepository
	Campaigns() domain.CampaignRepository
	Logs() domain.LogRepository
	Close()
}

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
}

func run() error {
	if err := config.LoadDotenv(); err != nil {
		return err
	}

	// Load configuration from environment.
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	setupLogging(cfg.Log)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	// Campaign events are optional; without Redis the runner skips publishing
	// and the WebSocket routes answer 501.
	var (
		publisher campaign.PubSubPublisher
		services  server.Services
	)
	if cfg.Redis.Addr != "" {
		pubsub, psErr := redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if psErr != nil {
			return psErr
		}
		defer pubsub.Close()
		publisher = pubsub
		services.Events = pubsub
	}

	j := journal.New(store.Logs())
	surf := surface.NewGateway(cfg.Surface.GatewayURL, cfg.Surface.GatewayToken, cfg.Surface.RequestTimeout, cfg.Surface.ActionTimeout)
	creds := session.NewCredentials()
	if cfg.Account.ID != "" {
		creds.Put(domain.Credential{AccountID: cfg.Account.ID, Secret: cfg.Account.Secret})
		log.Info().Str("account_id", cfg.Account.ID).Msg("seeded account credential")
	}

	// Operator alerts and campaign summaries go to Slack when a bot token is set.
	var (
		alerter     session.Alerter
		notifier    campaign.Notifier
		alertRouter *messenger.Router
	)
	if cfg.Slack.BotToken != "" {
		slackMessenger := parleyslack.NewSlackMessenger(slacklib.New(cfg.Slack.BotToken))
		alertRouter = messenger.NewRouter(slackMessenger, cfg.Slack.ChannelID, messenger.WithAlertTTL(cfg.Slack.AlertTTL))
		alerter = alertRouter
		notifier = notify.New(slackMessenger, cfg.Slack.ChannelID)
	}

	manager := session.NewManager(store.Sessions(), surf, cfg.Surface.Rules(), creds, j, alerter)
	exec := action.NewExecutor(manager, surf, j, cfg.Surface.ActionTimeout)
	runner := campaign.NewRunner(store.Campaigns(), exec, manager, publisher, j, campaign.Options{
		FailureCooldown: cfg.Campaign.FailureCooldown,
		MaxIterations:   cfg.Campaign.MaxIterations,
		Notifier:        notifier,
	})

	if alertRouter != nil {
		alertRouter.SetSubmitter(manager)
		go alertRouter.StartExpiryWatcher(ctx)
		if cfg.Slack.SigningSecret != "" {
			handler := parleyslack.NewHandler(cfg.Slack.SigningSecret, cfg.Slack.ChannelID, alertRouter)
			services.Slack = http.HandlerFunc(handler.HandleEvents)
		}
	}

	services.Sessions = manager
	services.Actions = exec
	services.Campaigns = runner
	services.Logs = store.Logs()

	// Create HTTP server with all routes wired.
	srv := server.New(ctx, cfg, services)

	// Start server in background goroutine.
	go func() {
		if startErr := srv.Start(ctx); startErr != nil {
			log.Error().Err(startErr).Msg("server error")
			cancel()
		}
	}()

	// Block until shutdown signal.
	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		return shutdownErr
	}
	if shutdownErr := runner.Shutdown(shutdownCtx); shutdownErr != nil {
		return shutdownErr
	}

	log.Info().Msg("stopped")
	return nil
}

func setupLogging(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
}

func openStore(ctx context.Context, cfg *config.Config) (dataStore, error) {
	if cfg.Store != config.StorePostgres {
		log.Warn().Msg("using in-memory store; sessions and campaigns are lost on restart")
		return memory.New(), nil
	}

	if cfg.Database.MaxConns < 0 || cfg.Database.MaxConns > math.MaxInt32 {
		return nil, fmt.Errorf("database max_conns %d out of int32 range", cfg.Database.MaxConns)
	}

	var (
		vault *secrets.Vault
		err   error
	)
	if len(cfg.Vault.Key) > 0 {
		vault, err = secrets.NewVault(cfg.Vault.Key)
	} else {
		vault, err = secrets.NewVaultFromPassphrase(cfg.Vault.Passphrase, cfg.Vault.Salt)
	}
	if err != nil {
		return nil, fmt.Errorf("vault: %w", err)
	}

	store, err := postgres.New(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns), vault) //nolint:gosec // bounds checked above
	if err != nil {
		return nil, err
	}
	return store, nil
}
