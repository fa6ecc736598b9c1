package collector

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-migrate/migrate/v4"
	postgresdriver "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"

	"fleetwatch/collector/handlers"
	"fleetwatch/collector/middleware"
	"fleetwatch/collector/services"
	"fleetwatch/collector/storage"
	"fleetwatch/collector/storage/memory"
	"fleetwatch/collector/storage/postgres"
	"fleetwatch/collector/storage/sqlite"
	"fleetwatch/collector/stream"
	"fleetwatch/pkg/logger"
)

// App represents the collector application.
type App struct {
	Config   *Config
	Log      *logger.Logger
	Storage  storage.Adapter
	Sessions services.SessionStore
	Events   services.EventPublisher
	Stream   *stream.Manager
	Sweeper  *services.Sweeper
	Router   *gin.Engine
}

// Bootstrap initializes the collector: storage backend, session store,
// event publisher, handlers and routes.
func Bootstrap() (*App, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New("collector", cfg.LogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	store, err := newStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	sessions, err := newSessionStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize session store: %w", err)
	}

	events, err := newEventPublisher(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize event publisher: %w", err)
	}

	streamMgr := stream.NewManager()

	// Fan each status transition out to the dashboard feed and, when
	// configured, to the downstream event bus.
	notify := func(event services.StatusEvent) {
		streamMgr.Broadcast(stream.Message{
			Type:      "pc_status",
			Timestamp: event.At,
			Data:      event,
		})
		events.PublishStatus(event)
	}

	offlineAfter := time.Duration(cfg.OfflineAfterSec) * time.Second
	tokenService := services.NewTokenService(cfg.JWTSecret, time.Duration(cfg.AgentTokenTTLSec)*time.Second)
	sweeper := services.NewSweeper(store, offlineAfter, time.Duration(cfg.SweepIntervalSec)*time.Second, notify, log)

	agentHandler := handlers.NewAgentHandler(store, tokenService, notify, log)
	pcHandler := handlers.NewPCHandler(store, tokenService, offlineAfter, log)
	credentialsHandler := handlers.NewCredentialsHandler(sessions, log)
	settingsHandler := handlers.NewSettingsHandler(store, log)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:5173", "http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	setupRoutes(router, cfg, agentHandler, pcHandler, credentialsHandler, settingsHandler, streamMgr, tokenService)

	return &App{
		Config:   cfg,
		Log:      log,
		Storage:  store,
		Sessions: sessions,
		Events:   events,
		Stream:   streamMgr,
		Sweeper:  sweeper,
		Router:   router,
	}, nil
}

// Run starts the background sweeper; it returns when ctx is cancelled.
func (a *App) Run(ctx context.Context) {
	a.Sweeper.Start(ctx)
}

// Close releases storage, session and event-bus resources.
func (a *App) Close() {
	a.Events.Close()
	if err := a.Sessions.Close(); err != nil {
		a.Log.WithField("error", err).Warn("failed to close session store")
	}
	if err := a.Storage.Close(); err != nil {
		a.Log.WithField("error", err).Warn("failed to close storage")
	}
	a.Log.Close()
}

func newStore(cfg *Config) (storage.Adapter, error) {
	switch cfg.StorageBackend {
	case "postgres":
		connString := fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode,
		)
		store, err := postgres.NewStore(connString)
		if err != nil {
			return nil, err
		}
		if err := runMigrations(connString, cfg.MigrationsPath); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return store, nil
	case "sqlite":
		return sqlite.NewStore(cfg.SQLitePath)
	case "memory":
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.StorageBackend)
	}
}

func runMigrations(connString, migrationsPath string) error {
	// golang-migrate expects a database/sql driver, so the pgx stdlib
	// adapter is used here.
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}
	defer db.Close()

	driver, err := postgresdriver.WithInstance(db, &postgresdriver.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migrate driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func newSessionStore(cfg *Config) (services.SessionStore, error) {
	ttl := time.Duration(cfg.SessionTTLSec) * time.Second
	if cfg.RedisAddr != "" {
		return services.NewRedisSessionStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, ttl)
	}
	return services.NewMemorySessionStore(ttl), nil
}

func newEventPublisher(cfg *Config, log *logger.Logger) (services.EventPublisher, error) {
	if cfg.NATSURL == "" {
		return services.NoopPublisher{}, nil
	}
	return services.NewNATSPublisher(cfg.NATSURL, log)
}

func setupRoutes(
	router *gin.Engine,
	cfg *Config,
	agentHandler *handlers.AgentHandler,
	pcHandler *handlers.PCHandler,
	credentialsHandler *handlers.CredentialsHandler,
	settingsHandler *handlers.SettingsHandler,
	streamMgr *stream.Manager,
	tokenService *services.TokenService,
) {
	healthHandler := handlers.NewHealthHandler()
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	api := router.Group("/api")
	{
		// Agent endpoints.
		agentAuth := middleware.AgentAuth(tokenService)
		api.POST("/register-agent", agentAuth, agentHandler.Register)
		api.POST("/heartbeat", agentAuth, agentHandler.Heartbeat)

		// Dashboard endpoints.
		adminAuth := middleware.AdminAuth(cfg.AdminToken)
		api.POST("/pcs", adminAuth, pcHandler.Enroll)
		api.GET("/pcs", pcHandler.List)
		api.GET("/pcs/:pcId", pcHandler.Get)
		api.PUT("/pcs/:pcId", adminAuth, pcHandler.Update)
		api.DELETE("/pcs/:pcId", adminAuth, pcHandler.Delete)

		api.POST("/run-credentials", credentialsHandler.RunCredentials)
		api.GET("/credentials/:sessionId", credentialsHandler.GetCredentials)

		api.POST("/settings/api-key", adminAuth, settingsHandler.SetAPIKey)
		api.GET("/settings/api-key", adminAuth, settingsHandler.GetAPIKey)

		api.GET("/stream", streamMgr.HandleWS)
	}
}
