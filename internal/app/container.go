// Package app wires configuration, storage, services, and transports
// into a runnable application.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/michael/adapter/api"
	bookingApp "github.com/felixgeelhaar/michael/internal/booking/application"
	bookingPersistence "github.com/felixgeelhaar/michael/internal/booking/infrastructure/persistence"
	calendarApp "github.com/felixgeelhaar/michael/internal/calendar/application"
	calendarDomain "github.com/felixgeelhaar/michael/internal/calendar/domain"
	caldavClient "github.com/felixgeelhaar/michael/internal/calendar/infrastructure/caldav"
	calendarPersistence "github.com/felixgeelhaar/michael/internal/calendar/infrastructure/persistence"
	identityApp "github.com/felixgeelhaar/michael/internal/identity/application"
	identityPersistence "github.com/felixgeelhaar/michael/internal/identity/infrastructure/persistence"
	"github.com/felixgeelhaar/michael/internal/notify"
	"github.com/felixgeelhaar/michael/internal/parser"
	schedulingApp "github.com/felixgeelhaar/michael/internal/scheduling/application"
	schedulingPersistence "github.com/felixgeelhaar/michael/internal/scheduling/infrastructure/persistence"
	sharedDomain "github.com/felixgeelhaar/michael/internal/shared/domain"
	"github.com/felixgeelhaar/michael/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/michael/internal/shared/infrastructure/migrations"
	"github.com/felixgeelhaar/michael/pkg/config"
	"github.com/felixgeelhaar/michael/pkg/observability"
)

// Container holds the wired application.
type Container struct {
	Config *config.Config
	Logger *slog.Logger
	DB     *sql.DB

	Server *api.Server
	Runner *calendarApp.Runner
	Syncer *calendarApp.Syncer
}

// NewContainer loads configuration, opens and migrates the store, and
// wires every service. It fails fast on any startup error.
func NewContainer(ctx context.Context, logger *slog.Logger) (*Container, error) {
	cfg, err := config.Load(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	db, err := database.Open(ctx, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := migrations.Run(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	hostLoc := cfg.HostLocation()
	clock := sharedDomain.SystemClock{}

	bookingRepo := bookingPersistence.NewSQLiteBookingRepository(db)
	availabilityRepo := schedulingPersistence.NewSQLiteAvailabilityRepository(db)
	calendarRepo := calendarPersistence.NewSQLiteCalendarRepository(db)
	sessionRepo := identityPersistence.NewSQLiteSessionRepository(db)

	mailer := notify.NewMailer(smtpConfig(cfg), hostLoc, logger)
	parserClient := parser.NewClient(cfg.GeminiAPIKey, logger)

	bookingService := bookingApp.NewService(bookingRepo, availabilityRepo, calendarRepo, mailer, clock, hostLoc, logger)
	slotService := schedulingApp.NewSlotService(availabilityRepo, bookingRepo, calendarRepo, clock, hostLoc, logger)
	sessionService := identityApp.NewSessionService(sessionRepo, clock, cfg.AdminPassword)

	factory := func(baseURL string, creds calendarDomain.Credentials) (calendarApp.RemoteClient, error) {
		return caldavClient.NewClient(baseURL, creds)
	}
	syncer := calendarApp.NewSyncer(calendarRepo, factory, clock, hostLoc, logger)
	if err := registerSources(ctx, syncer, cfg); err != nil {
		db.Close()
		return nil, err
	}
	runner := calendarApp.NewRunner(syncer, cfg.SyncInterval, logger)

	health := observability.NewHealthRegistry()
	health.Register("database", func(ctx context.Context) observability.HealthCheckResult {
		if err := db.PingContext(ctx); err != nil {
			return observability.HealthCheckResult{
				Status:  observability.HealthStatusUnhealthy,
				Message: err.Error(),
			}
		}
		return observability.HealthCheckResult{Status: observability.HealthStatusHealthy}
	})

	publicHandler := api.NewPublicHandler(parserClient, slotService, bookingService, logger)
	adminHandler := api.NewAdminHandler(sessionService, bookingService, slotService, calendarRepo, runner, hostLoc, cfg.IsProduction(), logger)

	serverCfg := api.DefaultServerConfig()
	serverCfg.Addr = cfg.Addr
	server := api.NewServer(serverCfg, publicHandler, adminHandler, health, logger)

	return &Container{
		Config: cfg,
		Logger: logger,
		DB:     db,
		Server: server,
		Runner: runner,
		Syncer: syncer,
	}, nil
}

// registerSources upserts the configured CalDAV providers. Credentials
// stay inside the syncer for the life of the process.
func registerSources(ctx context.Context, syncer *calendarApp.Syncer, cfg *config.Config) error {
	type entry struct {
		provider calendarDomain.Provider
		baseURL  string
		account  *config.CalDAVAccount
	}
	entries := []entry{
		{calendarDomain.ProviderFastmail, caldavClient.FastmailURL, cfg.Fastmail},
		{calendarDomain.ProviderICloud, caldavClient.ICloudURL, cfg.ICloud},
	}
	for _, e := range entries {
		if e.account == nil {
			continue
		}
		if e.account.BaseURL != "" {
			e.baseURL = e.account.BaseURL
		}
		src, err := calendarDomain.NewSource(e.provider, e.baseURL)
		if err != nil {
			return fmt.Errorf("failed to build %s source: %w", e.provider, err)
		}
		creds := calendarDomain.Credentials{
			Username: e.account.Username,
			Password: e.account.Password,
		}
		if err := syncer.Register(ctx, src, creds); err != nil {
			return fmt.Errorf("failed to register %s: %w", e.provider, err)
		}
	}
	return nil
}

func smtpConfig(cfg *config.Config) *notify.Config {
	if cfg.SMTP == nil {
		return nil
	}
	return &notify.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		FromName: cfg.SMTP.FromName,
	}
}

// Close releases container resources.
func (c *Container) Close() error {
	return c.DB.Close()
}

// Shutdown stops the HTTP server with a bounded grace period.
func (c *Container) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return c.Server.Shutdown(shutdownCtx)
}
