// Command orgauth-server exposes the orgauth engine over HTTP.
//
// Users, organizations and refresh records live in Postgres (DATABASE_URL).
// Sessions, revocations, password-reset tokens and rate limits live in Redis
// (REDIS_ADDR). When AMQP_URL is set, audit events and password-reset
// notifications are published to RabbitMQ; otherwise they are logged.
//
// Endpoints:
//
//	POST   /auth/register            JSON {"organizationName","name","email","password"}
//	POST   /auth/login               JSON {"email","password"}
//	POST   /auth/refresh             refresh_token cookie or JSON {"refreshToken"}
//	POST   /auth/password/forgot     JSON {"email"}
//	POST   /auth/password/reset      JSON {"token","newPassword"}
//	POST   /auth/logout              bearer
//	POST   /auth/logout-all          bearer
//	POST   /auth/password/change     bearer, JSON {"currentPassword","newPassword"}
//	GET    /auth/sessions            bearer
//	DELETE /auth/sessions/{sessionId} bearer
//	GET    /me                       bearer
//	GET    /branches/{branchId}      bearer, branch scope
//	GET    /departments/{departmentId} bearer, department scope
//	GET    /metrics                  Prometheus
//	GET    /healthz                  Redis and Postgres reachability
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrEthical07/orgauth"
	"github.com/MrEthical07/orgauth/internal/audit"
	"github.com/MrEthical07/orgauth/internal/config"
	"github.com/MrEthical07/orgauth/middleware"
	"github.com/MrEthical07/orgauth/pgstore"
	"github.com/MrEthical07/orgauth/refresh"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const refreshSweepInterval = time.Hour

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	if err := run(logger); err != nil {
		logger.WithError(err).Fatal("orgauth-server exited")
	}
}

func run(logger *logrus.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger.SetLevel(level)

	if cfg.DatabaseURL == "" {
		return errors.New("config: DATABASE_URL must be set")
	}
	engineCfg, err := cfg.Engine()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return err
	}

	db, err := pgstore.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := pgstore.Migrate(ctx, db); err != nil {
		return err
	}
	refreshStore := refresh.NewSQLStore(db)
	if err := refreshStore.Migrate(ctx); err != nil {
		return err
	}

	auditSink := orgauth.NewLogrusSink(logger.WithField("component", "audit"))
	var notifier orgauth.ResetNotifier = newLogNotifier(logger)
	if cfg.AMQPURL != "" {
		conn, err := amqp.Dial(cfg.AMQPURL)
		if err != nil {
			return err
		}
		defer conn.Close()

		auditCh, err := conn.Channel()
		if err != nil {
			return err
		}
		if err := audit.DeclareExchange(auditCh, cfg.AMQPExchange); err != nil {
			return err
		}
		auditSink = orgauth.MultiSink(auditSink, orgauth.NewAMQPSink(auditCh, cfg.AMQPExchange, logger))

		notifyCh, err := conn.Channel()
		if err != nil {
			return err
		}
		notifier = newAMQPNotifier(notifyCh, cfg.AMQPExchange)
		logger.WithField("exchange", cfg.AMQPExchange).Info("publishing audit events and reset notifications to AMQP")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	engine, err := orgauth.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithUserProvider(pgstore.NewUserStore(db)).
		WithOrganizationProvider(pgstore.NewOrganizationStore(db)).
		WithRefreshStore(refreshStore).
		WithDepartmentResolver(pgstore.NewDepartmentResolver(db)).
		WithResetNotifier(notifier).
		WithAuditSink(auditSink).
		WithLogger(logger).
		WithMetricsRegisterer(registry).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	go sweepRefreshTokens(ctx, refreshStore, logger)

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: newRouter(engine, registry, healthCheck(engine, db), middleware.Options{
			Logger:     logger,
			TrustProxy: cfg.TrustProxy,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", cfg.HTTPAddr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// healthCheck reports Redis through the engine and Postgres through db.
func healthCheck(engine *orgauth.Engine, db *sql.DB) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := engine.Ping(ctx); err != nil {
			return err
		}
		return db.PingContext(ctx)
	}
}

// sweepRefreshTokens deletes expired refresh records until ctx is done.
func sweepRefreshTokens(ctx context.Context, store *refresh.SQLStore, logger logrus.FieldLogger) {
	ticker := time.NewTicker(refreshSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := store.DeleteExpired(ctx, now)
			if err != nil {
				logger.WithError(err).Warn("refresh token sweep failed")
				continue
			}
			if n > 0 {
				logger.WithField("deleted", n).Debug("expired refresh tokens removed")
			}
		}
	}
}
