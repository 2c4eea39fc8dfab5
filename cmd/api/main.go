package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"reservo/internal/api"
	"reservo/internal/availability"
	"reservo/internal/checkout"
	"reservo/internal/config"
	"reservo/internal/database"
	"reservo/internal/domain"
	"reservo/internal/events"
	"reservo/internal/holds"
	"reservo/internal/logging"
	"reservo/internal/metrics"
	"reservo/internal/notify"
	"reservo/internal/rebalance"
	"reservo/internal/repository"
	"reservo/internal/service"
	"reservo/internal/slotclock"
	"reservo/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	loc, err := cfg.Booking.Location()
	if err != nil {
		return err
	}

	db, err := initDatabase(cfg, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, carts := initCartStorage(ctx, cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	eventBus := events.NewEventBus()
	if cfg.Events.Kafka.Enabled() {
		forwarder := events.NewKafkaForwarder(events.NewKafkaWriter(cfg.Events.Kafka), &logger)
		forwarder.Attach(eventBus)
		defer func() { _ = forwarder.Close() }()
		logger.Info().Strs("brokers", cfg.Events.Kafka.Brokers).Str("topic", cfg.Events.Kafka.Topic).Msg("kafka forwarding enabled")
	}

	clock := slotclock.System()
	sink := notify.NewSink(db, eventBus, &logger)
	policy := service.NewPenaltyPolicy(db, cfg.Policy, clock, &logger)
	rebalancer := rebalance.NewRebalancer(db, db, sink, eventBus, clock, loc, &logger)

	engine := checkout.NewEngine(checkout.Deps{
		Tx:           db,
		Items:        db,
		Reservations: db,
		Policy:       policy,
		Notifier:     sink,
		Reminders:    notify.NewReminderScheduler(db, db, cfg.Booking.ReminderStartLead, cfg.Booking.ReminderEndLead),
		EventBus:     eventBus,
		Clock:        clock,
		Location:     loc,
	}, &logger)

	svc := api.Services{
		Items:         service.NewItemService(db, db, rebalancer, &logger),
		Reservations:  service.NewReservationService(db, eventBus, &logger),
		Availability:  availability.NewCalculator(db, clock),
		Holds:         holds.NewService(db, db, db, clock, loc, cfg.Booking.HoldTTL, &logger),
		Pruner:        holds.NewPruner(db, clock, loc, &logger),
		Checkout:      engine,
		Notifications: db,
		Carts:         carts,
		Ready:         db.PingContext,
	}

	sweeper := holds.NewSweeper(db, eventBus, clock, cfg.Booking.HoldSweepInterval, &logger)
	reminders := worker.NewReminderWorker(worker.ReminderWorkerDeps{
		Jobs:         db,
		Reservations: db,
		Items:        db,
		Notifier:     sink,
		EventBus:     eventBus,
		Clock:        clock,
		Location:     loc,
	}, worker.DefaultRetryPolicy(cfg.Booking.ReminderMaxAttempts), cfg.Booking.ReminderPollInterval, &logger)
	backups := database.NewBackupService(db, cfg.Backup, &logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sweeper.Run(gctx) })
	g.Go(func() error { return reminders.Run(gctx) })
	g.Go(func() error { return backups.Run(gctx) })

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		g.Go(func() error { return serveMetrics(gctx, cfg.Monitoring.PrometheusPort, &logger) })
	}

	if cfg.API.HTTP.Enabled {
		httpServer := api.NewHTTPServer(cfg.API, svc, loc, cfg.Booking.HorizonDays, clock, &logger)
		g.Go(httpServer.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		})
	}

	if cfg.API.GRPC.Enabled {
		grpcServer, err := api.NewGRPCServer(&cfg.API, &logger)
		if err != nil {
			stop()
			_ = g.Wait()
			return fmt.Errorf("create grpc server: %w", err)
		}
		g.Go(grpcServer.Serve)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			grpcServer.Shutdown(shutdownCtx)
			return nil
		})
	}

	logger.Info().
		Str("time_zone", loc.String()).
		Bool("http", cfg.API.HTTP.Enabled).
		Bool("grpc", cfg.API.GRPC.Enabled).
		Msg("reservo started")

	err = g.Wait()
	logger.Info().Msg("Shutdown complete")
	return err
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := logging.Component(baseLogger, "main")

	return cfg, logger, closer, nil
}

func initDatabase(cfg *config.Config, logger *zerolog.Logger) (*database.DB, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}

	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}

	itemsPath := os.Getenv("ITEMS_PATH")
	if itemsPath == "" {
		itemsPath = "configs/items.yaml"
	}
	items, err := config.LoadItems(itemsPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.Warn().Str("items_path", itemsPath).Msg("items file not found, skipping seed")
	case err != nil:
		db.Close()
		return nil, err
	default:
		if err := db.SeedItems(context.Background(), items); err != nil {
			db.Close()
			return nil, fmt.Errorf("seed items: %w", err)
		}
		logger.Info().Int("items", len(items)).Msg("items seeded")
	}

	return db, nil
}

// initCartStorage prefers redis and falls back to process memory whenever
// redis is unreachable.
func initCartStorage(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*redis.Client, domain.CartStorage) {
	memory := repository.NewMemoryCartStorage(cfg.Redis.CartTTL)
	if cfg.Redis.Address == "" {
		logger.Info().Msg("redis not configured, carts kept in memory")
		return nil, memory
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		logger.Warn().Err(err).Msg("Redis unavailable, using in-memory carts until it recovers")
	} else {
		logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	}

	primary := repository.NewRedisCartStorage(client, cfg.Redis.CartTTL)
	return client, repository.NewFailoverCartStorage(primary, memory, logger)
}

func serveMetrics(ctx context.Context, port int, logger *zerolog.Logger) error {
	if port == 0 {
		port = 9090
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Int("port", port).Msg("metrics server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
