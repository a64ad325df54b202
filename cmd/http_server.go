package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/hanifrahman/talenthub-payments/internal"
	"github.com/hanifrahman/talenthub-payments/internal/auth"
	"github.com/hanifrahman/talenthub-payments/internal/core/events"
	"github.com/hanifrahman/talenthub-payments/internal/gateway"
	"github.com/hanifrahman/talenthub-payments/internal/membership"
	membershipdb "github.com/hanifrahman/talenthub-payments/internal/membership/postgres"
	"github.com/hanifrahman/talenthub-payments/internal/metrics"
	"github.com/hanifrahman/talenthub-payments/internal/signature"
	"github.com/hanifrahman/talenthub-payments/internal/transport"
	"github.com/hanifrahman/talenthub-payments/internal/transport/rest"
	"github.com/hanifrahman/talenthub-payments/pkg/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config *internal.Config
	DB     *sqlx.DB
	GormDB *gorm.DB
	Router *chi.Mux
	Logger *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	setupRoutes(deps)

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("received signal, shutting down", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("server shutdown error", "error", err)
		}
		if err := deps.DB.Close(); err != nil {
			deps.Logger.Error("database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			deps.Logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}

	deps.Logger.Info("server stopped")
}

func setupRoutes(deps *Dependencies) {
	cfg := deps.Config
	baseHandler := transport.NewBaseHandler(deps.Logger)

	transactionRepo := membershipdb.NewTransactionRepository(deps.GormDB)
	webhookRepo := membershipdb.NewWebhookEventRepository(deps.GormDB)
	auditRepo := membershipdb.NewAuditRepository(deps.GormDB)
	profileRepo := membershipdb.NewProfileRepository(deps.GormDB)

	paylink := gateway.NewPaylinkClient(cfg.Gateways.Paylink.BaseURL, cfg.Gateways.Paylink.APIKey, cfg.Payments.GatewayCallTimout, deps.Logger)
	xpresspay := gateway.NewXpressPayClient(cfg.Gateways.XpressPay.BaseURL, cfg.Gateways.XpressPay.APIKey, cfg.Payments.GatewayCallTimout, deps.Logger)
	selector := gateway.NewSelector(paylink, xpresspay)

	eventBus := events.NewEventBus(deps.Logger)
	membership.NewEventHandler(deps.Logger).RegisterEventHandlers(eventBus)

	paymentService := membership.NewService(
		transactionRepo, auditRepo, selector,
		cfg.Payments.Currency, cfg.Server.BaseURL, deps.Logger)

	webhookService := membership.NewWebhookService(
		transactionRepo, webhookRepo, auditRepo, profileRepo,
		[]signature.Verifier{
			signature.NewPaylinkVerifier(cfg.Gateways.Paylink.WebhookSecret, cfg.Payments.FreshnessWindow),
			signature.NewXpressPayVerifier(cfg.Gateways.XpressPay.WebhookSecret, cfg.Payments.FreshnessWindow),
		},
		eventBus, deps.Logger)

	tokenGenerator := auth.NewJWTTokenGenerator(cfg.Security.JWTSecret, cfg.Security.AccessTokenDuration)
	authMiddleware := auth.NewMiddleware(baseHandler, tokenGenerator, cfg.Security.AdminPrincipals)

	membershipHandler := membership.NewHandler(baseHandler, paymentService, authMiddleware.IsAdmin)
	webhookHandler := membership.NewWebhookHandler(baseHandler, webhookService)

	metrics.Init()

	rest.RegisterAllRoutes(
		deps.Router, deps.DB.DB,
		authMiddleware, membershipHandler, webhookHandler,
		cfg.Server.AllowedOrigins, deps.Logger)
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(os.Getenv("APP_ENV"))
	log := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := initGorm(db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}

	return &Dependencies{
		Config: config,
		Logger: log,
		DB:     db,
		GormDB: gormDB,
		Router: chi.NewRouter(),
	}, nil
}

func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}

// initGorm layers gorm over the already-pooled pgx connection so both access
// paths share one pool.
func initGorm(db *sqlx.DB) (*gorm.DB, error) {
	return gorm.Open(gormpostgres.New(gormpostgres.Config{
		Conn: db.DB,
	}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
}
