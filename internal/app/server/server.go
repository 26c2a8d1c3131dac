package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"hrflow/internal/domain/audit"
	"hrflow/internal/domain/auth"
	"hrflow/internal/domain/kpi"
	"hrflow/internal/domain/leave"
	"hrflow/internal/domain/notifications"
	"hrflow/internal/domain/org"
	"hrflow/internal/domain/policy"
	"hrflow/internal/domain/reports"
	"hrflow/internal/domain/retention"
	"hrflow/internal/platform/blob"
	"hrflow/internal/platform/config"
	cryptoutil "hrflow/internal/platform/crypto"
	"hrflow/internal/platform/db"
	"hrflow/internal/platform/email"
	"hrflow/internal/platform/events"
	"hrflow/internal/platform/metrics"
	audithandler "hrflow/internal/transport/http/handlers/audit"
	authhandler "hrflow/internal/transport/http/handlers/auth"
	kpihandler "hrflow/internal/transport/http/handlers/kpi"
	leavehandler "hrflow/internal/transport/http/handlers/leave"
	maintenancehandler "hrflow/internal/transport/http/handlers/maintenance"
	notificationshandler "hrflow/internal/transport/http/handlers/notifications"
	reportshandler "hrflow/internal/transport/http/handlers/reports"
	"hrflow/internal/transport/http/middleware"
)

// App is a fully wired service. Close releases the database, Redis and event
// subscriptions in reverse order of acquisition.
type App struct {
	Config    config.Config
	Router    http.Handler
	Directory *org.Directory
	KPI       *kpi.Service
	Leave     *leave.Service
	Metrics   *metrics.Collector

	ready   func(ctx context.Context) error
	closers []func()
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

type stores struct {
	kpi           kpi.StoreAPI
	leave         leave.StoreAPI
	audit         audit.StoreAPI
	notifications notifications.StoreAPI
	idempotency   middleware.IdempotencyStore
	purger        retention.Purger
	ping          func(ctx context.Context) error
}

func openStores(ctx context.Context, cfg config.Config, cipher leave.Cipher) (stores, func(), error) {
	switch cfg.DatabaseDriver {
	case config.DriverSQLite:
		conn, err := db.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return stores{}, nil, fmt.Errorf("open sqlite: %w", err)
		}
		if cfg.RunMigrations {
			if err := db.MigrateSQLite(ctx, conn); err != nil {
				_ = conn.Close()
				return stores{}, nil, fmt.Errorf("migrate sqlite: %w", err)
			}
		}
		return sqliteStores(conn, cipher), func() { _ = conn.Close() }, nil
	default:
		pool, err := db.Connect(ctx, cfg)
		if err != nil {
			return stores{}, nil, fmt.Errorf("db connect: %w", err)
		}
		if cfg.RunMigrations {
			if err := db.Migrate(ctx, pool); err != nil {
				pool.Close()
				return stores{}, nil, fmt.Errorf("migrate: %w", err)
			}
		}
		return postgresStores(pool, cipher), pool.Close, nil
	}
}

func sqliteStores(conn *sql.DB, cipher leave.Cipher) stores {
	return stores{
		kpi:           kpi.NewSQLiteStore(conn),
		leave:         leave.NewSQLiteStore(conn, cipher),
		audit:         audit.NewSQLiteStore(conn),
		notifications: notifications.NewSQLiteStore(conn),
		idempotency:   middleware.NewSQLiteIdempotencyStore(conn),
		purger:        retention.NewSQLitePurger(conn),
		ping:          conn.PingContext,
	}
}

func postgresStores(pool *pgxpool.Pool, cipher leave.Cipher) stores {
	return stores{
		kpi:           kpi.NewPostgresStore(pool),
		leave:         leave.NewPostgresStore(pool, cipher),
		audit:         audit.NewPostgresStore(pool),
		notifications: notifications.NewPostgresStore(pool),
		idempotency:   middleware.NewPostgresIdempotencyStore(pool),
		purger:        retention.NewPostgresPurger(pool),
		ping:          pool.Ping,
	}
}

// New builds the service from cfg. The caller owns the returned App and must Close it.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	app := &App{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	directory, err := org.LoadFile(cfg.OrgFile)
	if err != nil {
		return nil, err
	}
	specs, err := policy.LoadRules(cfg.RulesFile)
	if err != nil {
		return nil, err
	}
	rules, err := policy.CompileRules(specs)
	if err != nil {
		return nil, err
	}
	cipher, err := cryptoutil.New(cfg.DataEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("data encryption key: %w", err)
	}
	if !cipher.Configured() {
		zap.L().Warn("DATA_ENCRYPTION_KEY not set, medical details are stored unencrypted")
	}
	blobs, err := blob.NewDirStore(cfg.UploadsDir)
	if err != nil {
		return nil, err
	}

	st, closeStores, err := openStores(ctx, cfg, cipher)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, closeStores)
	app.ready = st.ping

	collector := metrics.New()
	app.Metrics = collector
	bus := events.NewBus(&events.BusConfig{BufferSize: 64})
	publisher := events.Publisher(bus)
	idempotency := st.idempotency
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		app.closers = append(app.closers, func() { _ = client.Close() })
		publisher = events.Fanout(bus, events.NewRedisPublisher(client, cfg.EventsChannel))
		idempotency = middleware.NewRedisIdempotencyStore(client, cfg.IdempotencyTTL)
		zap.L().Info("redis connected", zap.String("addr", cfg.RedisAddr), zap.String("channel", cfg.EventsChannel))
	}

	permissions := auth.DefaultPolicy()

	kpiService := kpi.NewService(st.kpi, directory)
	kpiService.Policy = permissions
	kpiService.Events = publisher

	leaveService := leave.NewService(st.leave, policy.NewResolver(directory, rules), directory)
	leaveService.Policy = permissions
	leaveService.Events = publisher
	leaveService.Blobs = blobs
	leaveService.StuckThreshold = cfg.StuckThreshold
	if cfg.RunSeed {
		if _, err := leaveService.SeedBalances(ctx, directory.Employees()); err != nil {
			return nil, fmt.Errorf("seed balances: %w", err)
		}
	}

	auditService := audit.New(st.audit)
	notificationService := notifications.New(st.notifications, email.New(cfg))
	notificationService.Addresses = directory
	notificationService.EmailEnabled = cfg.EmailEnabled
	notificationService.DefaultFrom = cfg.EmailFrom
	notifier := &notifications.Notifier{Service: notificationService, Directory: directory}
	app.closers = append(app.closers, bus.Handle(collector.ObserveEvent), bus.Handle(notifier.Handle))

	sweeper := retention.NewSweeper(st.purger, retention.Policy{
		IdempotencyKeys:   cfg.IdempotencyTTL,
		ReadNotifications: cfg.NotificationRetention,
		AuditEvents:       cfg.AuditRetention,
	})

	app.Directory = directory
	app.KPI = kpiService
	app.Leave = leaveService

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(collector))
	router.Use(middleware.Recoverer)
	router.Use(middleware.SecureHeaders(cfg.Production()))
	if len(cfg.CORSOrigins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID", middleware.IdempotencyHeader},
			ExposedHeaders:   []string{"X-Request-ID", "X-Total-Count", "X-Unread-Count"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes, cfg.MaxUploadBytes))
	router.Use(middleware.Auth(cfg.JWTSecret, directory))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := app.ready(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	if cfg.MetricsEnabled {
		router.Method(http.MethodGet, "/metrics", collector.Handler())
	}

	authHandler := authhandler.NewHandler(auth.NewService(directory, cfg.JWTSecret, cfg.TokenTTL), directory)
	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitPerMinute, time.Minute))
		r.Use(middleware.SensitiveMutationRateLimit(cfg.RateLimitPerMinute, time.Minute))
		authHandler.RegisterPublicRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireUser)
			r.Use(middleware.Idempotency(idempotency))

			authHandler.RegisterRoutes(r)
			kpihandler.NewHandler(kpiService, permissions, auditService).RegisterRoutes(r)
			leavehandler.NewHandler(leaveService, permissions, auditService).RegisterRoutes(r)
			reportshandler.NewHandler(reports.NewService(kpiService, leaveService), kpiService, leaveService, permissions).RegisterRoutes(r)
			audithandler.NewHandler(auditService, permissions).RegisterRoutes(r)
			maintenancehandler.NewHandler(sweeper, permissions, auditService).RegisterRoutes(r)
			notificationshandler.NewHandler(notificationService).RegisterRoutes(r)
		})
	})

	app.Router = router
	ok = true
	return app, nil
}

// Run serves cfg.Addr until ctx is cancelled, then drains in-flight requests.
func Run(ctx context.Context, cfg config.Config) error {
	app, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("hrflow listening", zap.String("addr", cfg.Addr), zap.String("driver", cfg.DatabaseDriver))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	zap.L().Info("shutting down", zap.Duration("timeout", cfg.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
