package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/campaigndesk/campaigndesk/internal/cache"
	"github.com/campaigndesk/campaigndesk/internal/config"
	"github.com/campaigndesk/campaigndesk/internal/console"
	"github.com/campaigndesk/campaigndesk/internal/feed"
	"github.com/campaigndesk/campaigndesk/internal/geoip"
	"github.com/campaigndesk/campaigndesk/internal/guard"
	"github.com/campaigndesk/campaigndesk/internal/http_api"
	"github.com/campaigndesk/campaigndesk/internal/metrics"
	"github.com/campaigndesk/campaigndesk/internal/notificator"
	"github.com/campaigndesk/campaigndesk/internal/repository"
	"github.com/campaigndesk/campaigndesk/pkg/logger"
)

const (
	idleSweepInterval = time.Minute
	geoipTimeout      = 2 * time.Second
	geoipCacheTTL     = 24 * time.Hour
)

func main() {
	app := &cli.App{
		Name:  "campaigndesk",
		Usage: "Campaigndesk is the backend of the ad campaign console",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "postgres-user", Aliases: []string{"u"}, Usage: "Postgres user"},
			&cli.StringFlag{Name: "postgres-password", Aliases: []string{"p"}, Usage: "Postgres password"},
			&cli.StringFlag{Name: "postgres-host", Aliases: []string{"t"}, Usage: "Postgres host"},
			&cli.IntFlag{Name: "postgres-port", Aliases: []string{"P"}, Usage: "Postgres port"},
			&cli.StringFlag{Name: "postgres-db", Aliases: []string{"d"}, Usage: "Postgres database name"},
			&cli.StringFlag{Name: "migrations-path", Aliases: []string{"m"}, Usage: "Directory of SQL migrations; AutoMigrate when empty"},
			&cli.StringFlag{Name: "redis-url", Aliases: []string{"r"}, Usage: "Redis URL for client guard state"},
			&cli.IntFlag{Name: "api-port", Aliases: []string{"a"}, Usage: "HTTP API port"},
			&cli.BoolFlag{Name: "development", Aliases: []string{"D"}, Usage: "Development mode"},
		},
		Action: func(c *cli.Context) error {
			return run(c)
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	// Load configuration from environment variables
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}

	// Override with flags if set
	if c.IsSet("postgres-user") {
		cfg.PostgresUser = c.String("postgres-user")
	}
	if c.IsSet("postgres-password") {
		cfg.PostgresPassword = c.String("postgres-password")
	}
	if c.IsSet("postgres-host") {
		cfg.PostgresHost = c.String("postgres-host")
	}
	if c.IsSet("postgres-port") {
		cfg.PostgresPort = c.Int("postgres-port")
	}
	if c.IsSet("postgres-db") {
		cfg.PostgresDB = c.String("postgres-db")
	}
	if c.IsSet("migrations-path") {
		cfg.MigrationsPath = c.String("migrations-path")
	}
	if c.IsSet("redis-url") {
		cfg.RedisURL = c.String("redis-url")
	}
	if c.IsSet("api-port") {
		cfg.APIPort = c.Int("api-port")
	}
	if c.IsSet("development") {
		cfg.Development = c.Bool("development")
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Development)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %v", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(registry)

	// Change feed, mirrored to Kafka when brokers are configured
	var mirror feed.Mirror
	var kafkaMirror *feed.KafkaMirror
	if len(cfg.KafkaBrokers) > 0 {
		kafkaMirror = feed.NewKafkaMirror(feed.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic), m.RecordMirrorError, log)
		mirror = kafkaMirror
		log.Info("Mirroring change feed to Kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}
	hub := feed.NewHub(m, mirror, log)

	// Initialize database
	db, err := repository.NewPostgresDB(cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDB, cfg.PostgresHost, cfg.PostgresPort, cfg.MigrationsPath, hub, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %v", err)
	}

	// Guard state lives in Redis when configured so lockouts survive restarts
	var state guard.StateStore = guard.NewMemoryStore()
	if cfg.RedisURL != "" {
		client, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %v", err)
		}
		defer client.Close()
		state = cache.NewGuardStore(client)
	} else {
		log.Warn("REDIS_URL not set, guard state is kept in memory")
	}

	// Initialize notificator
	var channels []notificator.Channel
	var telegram *notificator.TelegramNotificator
	if cfg.TelegramBotToken != "" {
		telegram, err = notificator.NewTelegramNotificator(log, cfg.TelegramBotToken, cfg.TelegramChatID, cfg.TelegramAllowedUsernames, db)
		if err != nil {
			return err
		}
		channels = append(channels, telegram)
	}
	if cfg.EmailEnabled() {
		channels = append(channels, notificator.NewEmailNotificator(log, cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPSender, cfg.AlertEmail, db))
	}
	notif := notificator.NewNotificator(log, channels...)

	// Client guards
	sched := guard.NewRealScheduler()
	addresses := guard.NewAddressLocks(state, log)
	guardOptions := guard.Options{
		Secrets:           guard.Secrets{Admin: cfg.AdminSecret, Viewer: cfg.ViewerSecret},
		LockoutDuration:   cfg.LockoutDuration(),
		HeartbeatInterval: cfg.HeartbeatInterval(),
	}
	guards := guard.NewRegistry(func(key string) *guard.Guard {
		return guard.New(key, guardOptions, guard.Deps{
			State:     state,
			Sessions:  db,
			Scheduler: sched,
			Observer:  guard.Observers{m, notif},
			Addresses: addresses,
			Logger:    log.Named("guard"),
		})
	}, sched, cfg.ClientIdleTimeout(), cfg.MaxClients, log)
	guards.Start(idleSweepInterval)

	// Location lookups
	var locator http_api.Locator
	if cfg.GeoIPURL != "" {
		geo := geoip.NewService(cfg.GeoIPURL, geoipTimeout, geoipCacheTTL, log)
		geo.StartPeriodicPrune()
		defer geo.Stop()
		locator = geo
	}

	// Create Console instance
	app := console.NewConsole(db, m, log, console.Options{
		TaxRate:           cfg.TaxRate,
		CompanyName:       cfg.CompanyName,
		StaleSessionAfter: cfg.StaleSessionAfter(),
	})

	// Initialize API server
	apiServer := http_api.NewHTTPServer(http_api.Options{
		Port:           cfg.APIPort,
		CookieSecure:   cfg.CookieSecure,
		AllowedOrigins: cfg.AllowedOrigins,
		TrustedProxies: cfg.TrustedProxies,
		Development:    cfg.Development,
	}, http_api.Deps{
		Console:  app,
		Guards:   guards,
		Feed:     hub,
		Locator:  locator,
		Observer: m,
		Metrics:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		Health:   db,
		Logger:   log,
	})

	go app.Start(ctx)
	if telegram != nil {
		go telegram.Start(ctx)
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- apiServer.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down")
	case err = <-serverErr:
		if err != nil {
			log.Error("HTTP server stopped", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), http_api.ShutdownTimeout)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to shut down HTTP server", "error", err)
	}

	guards.Close()
	hub.Close()
	if kafkaMirror != nil {
		if err := kafkaMirror.Close(); err != nil {
			log.Error("Failed to close Kafka mirror", "error", err)
		}
	}
	notif.Close()
	if err := db.Close(); err != nil {
		log.Error("Failed to close database", "error", err)
	}
	return err
}
