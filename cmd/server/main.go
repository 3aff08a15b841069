package main // Entry point package

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/fair-ticketing/internal/config"
	"github.com/iliyamo/fair-ticketing/internal/database"
	"github.com/iliyamo/fair-ticketing/internal/handler"
	"github.com/iliyamo/fair-ticketing/internal/idempotency"
	"github.com/iliyamo/fair-ticketing/internal/ledger"
	"github.com/iliyamo/fair-ticketing/internal/middleware"
	"github.com/iliyamo/fair-ticketing/internal/queue"
	"github.com/iliyamo/fair-ticketing/internal/repository"
	"github.com/iliyamo/fair-ticketing/internal/router"
	"github.com/iliyamo/fair-ticketing/internal/scheduler"
	"github.com/iliyamo/fair-ticketing/internal/service"
)

// stores are the persistence backends selected by STORAGE_DRIVER.
type stores struct {
	db      *sql.DB // nil with the memory driver
	ledger  ledger.SeatLedger
	events  service.EventStore
	tickets service.TicketStore
}

// redisPinger adapts the Redis client to handler.Pinger.
type redisPinger struct{ rdb *redis.Client }

func (p redisPinger) PingContext(ctx context.Context) error { return p.rdb.Ping(ctx).Err() }

func main() {
	_ = godotenv.Load() // .env is optional; real env vars win

	cfg := config.Load()
	logger := config.NewLogger(cfg.Log)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	clock := clockwork.NewRealClock()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if st.db != nil {
		defer st.db.Close()
	}

	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb == nil {
		logger.Warn("redis unavailable; rate limiting and offer cache disabled")
	} else {
		defer rdb.Close()
	}

	var idem idempotency.Store
	if cfg.Engine.IdempotencyDriver == "redis" && rdb != nil {
		idem = idempotency.NewRedis(rdb, idempotency.RedisOptions{Retention: cfg.Engine.IdempotencyRetention, Clock: clock})
	} else {
		if cfg.Engine.IdempotencyDriver == "redis" {
			logger.Warn("idempotency falls back to process memory")
		}
		idem = idempotency.NewMemory(clock, cfg.Engine.IdempotencyRetention)
	}

	var notifier service.Notifier = service.LogNotifier{Logger: logger}
	if cfg.Broker.NotifyEnabled {
		rabbit := service.NewRabbitNotifier(service.RabbitOptions{
			URL:          cfg.Broker.URL,
			DialTimeout:  cfg.Broker.DialTimeout,
			RetryBackoff: cfg.Broker.RetryBackoff,
		}, logger)
		defer rabbit.Close()
		notifier = service.FanoutNotifier{notifier, rabbit}

		audit := config.RotatingFile(cfg.Broker.AuditLogPath)
		defer audit.Close()
		consumer := &queue.AuditConsumer{URL: cfg.Broker.URL, Out: audit, Logger: logger}
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("audit consumer stopped", "error", err)
			}
		}()
	}

	box := service.NewBoxOffice(service.Deps{
		Ledger:      st.ledger,
		Events:      st.events,
		Idempotency: idem,
		Issuer:      service.NewStoreIssuer(st.tickets, st.events, clock),
		Notifier:    notifier,
		Clock:       clock,
		Logger:      logger,
	}, service.Options{
		HoldTTL:       cfg.Engine.HoldTTL,
		MaxQueueDepth: cfg.Engine.QueueDepthOption(),
	})
	if err := box.Bootstrap(ctx); err != nil {
		return err
	}
	market := service.NewResaleMarket(st.tickets, st.events, notifier, clock, logger, service.MarketOptions{
		FeeRate:   cfg.Engine.ResaleFeeRate,
		Window:    cfg.Engine.ResaleWindow,
		Threshold: cfg.Engine.ResaleInterestThreshold,
	})
	if _, err := market.Recover(ctx); err != nil {
		return err
	}

	sched, err := scheduler.New(scheduler.Jobs{
		Holds:       box.Reservations,
		Queue:       box.Queue,
		Offers:      market,
		Idempotency: idem,
		Retention:   cfg.Engine.IdempotencyRetention,
	}, cfg.Engine.SweepInterval, clock, logger)
	if err != nil {
		return err
	}
	sched.Start()
	defer func() {
		if err := sched.Shutdown(); err != nil {
			logger.Warn("scheduler shutdown", "error", err)
		}
	}()

	e := newEcho(logger)
	health := &handler.HealthHandler{Checks: map[string]handler.Pinger{}}
	if st.db != nil {
		health.Checks["mysql"] = st.db
	}
	if rdb != nil {
		health.Checks["redis"] = redisPinger{rdb}
	}
	router.Register(e, router.Handlers{
		Health:     health,
		Events:     handler.NewEventHandler(box, logger),
		Queue:      handler.NewQueueHandler(box.Queue, logger),
		Orders:     handler.NewOrderHandler(box.Reservations, st.tickets, logger),
		Resale:     handler.NewResaleHandler(market, logger),
		JWTSecret:  cfg.JWTSecret,
		RateLimit:  middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, clock, logger),
		OfferCache: middleware.NewRedisCache(config.LoadCacheConfig(), rdb, logger),
	})

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr, "env", cfg.Env, "storage", cfg.StorageDriver)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
	return e.Shutdown(shutdownCtx)
}

func openStores(ctx context.Context, cfg config.Config, logger *slog.Logger) (stores, error) {
	if cfg.StorageDriver == config.StorageMemory {
		logger.Warn("using in-memory storage; state is lost on restart")
		return stores{
			ledger:  ledger.NewMemory(logger),
			events:  repository.NewMemEventRepo(),
			tickets: repository.NewMemTicketRepo(),
		}, nil
	}
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return stores{}, err
	}
	if err := database.Migrate(ctx, db); err != nil {
		db.Close()
		return stores{}, err
	}
	return stores{
		db:      db,
		ledger:  repository.NewLedgerRepo(db, logger),
		events:  repository.NewEventRepo(db),
		tickets: repository.NewTicketRepo(db),
	}, nil
}

func newEcho(logger *slog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Logger.SetOutput(io.Discard)
	e.Validator = handler.NewValidator()
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus:   true,
		LogMethod:   true,
		LogURI:      true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			attrs := []any{"method", v.Method, "uri", v.URI, "status", v.Status,
				"latency", v.Latency, "remote_ip", v.RemoteIP}
			if uid := middleware.UserID(c); uid != "" {
				attrs = append(attrs, "user_id", uid)
			}
			if v.Error != nil {
				logger.Warn("request", append(attrs, "error", v.Error)...)
				return nil
			}
			logger.Info("request", attrs...)
			return nil
		},
	}))
	return e
}
