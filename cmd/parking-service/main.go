package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"parking-service/internal/config"
	"parking-service/internal/db"
	"parking-service/internal/health"
	httphandler "parking-service/internal/http"
	"parking-service/internal/logger"
	"parking-service/internal/realtime"
	"parking-service/internal/repository"
	"parking-service/internal/service"
)

// store is everything the services need from persistence.
type store interface {
	service.ConfigRepository
	service.SpecialPlateRepository
	service.SessionRepository
	service.GateEventRecorder
	service.GateEventStore
	health.Pinger
}

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	issueToken := flag.String("issue-token", "", "print an operator token for this subject and exit")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "lifetime of a token printed by -issue-token")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	if *issueToken != "" {
		token, err := httphandler.IssueToken(cfg.Auth.JWTSecret, cfg.Auth.Issuer, *issueToken, *tokenTTL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to issue token")
		}
		fmt.Println(token)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("parking service stopped with error")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	st, err := openStore(cfg, log)
	if err != nil {
		return err
	}

	configSvc := service.NewConfigService(st, cfg.Parking.Seed(), log)
	if _, err := configSvc.Get(ctx); err != nil {
		return err
	}
	registry := service.NewSpecialPlateRegistry(st, log)
	capacity := service.NewCapacityAccountant(st, configSvc)
	ledger := service.NewSessionLedger(st, configSvc, registry, capacity, log)
	dispatcher := service.NewGateDispatcher(ledger, log)
	audit := service.NewAuditLog(st, log)

	hub := realtime.NewHub(log, cfg.Server.CORSOrigins)
	monitor := service.NewMonitor(dispatcher, service.MonitorOptions{
		CameraID:      cfg.Camera.ID,
		MinConfidence: cfg.Monitor.MinConfidence,
		Debounce:      cfg.Monitor.Debounce,
	}, log).
		WithRecorder(st).
		WithPublisher(hub)

	if _, err := monitor.Start(cfg.Camera.ID, cfg.GateRole()); err != nil {
		return err
	}

	checks := health.NewRegistry()
	checks.Register("store", health.PingCheck("store", st))
	checks.Register("monitor", func(context.Context) health.Status {
		if info, running := monitor.Current(); running {
			return health.Status{Name: "monitor", Healthy: true, Detail: "running " + info.ID}
		}
		return health.Status{Name: "monitor", Healthy: true, Detail: "stopped"}
	})

	handler := httphandler.NewHandler(httphandler.Deps{
		Ledger:   ledger,
		Monitor:  monitor,
		Registry: registry,
		Config:   configSvc,
		Capacity: capacity,
		Audit:    audit,
		Hub:      hub,
		Health:   checks,
	}, log)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           httphandler.NewRouter(cfg, handler, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return hub.Run(gctx)
	})

	g.Go(func() error {
		return audit.RunRetention(gctx, cfg.Monitor.AuditRetention, cfg.Monitor.AuditCleanupInterval)
	})

	g.Go(func() error {
		log.Info().
			Str("addr", srv.Addr).
			Str("camera_id", cfg.Camera.ID).
			Str("camera_model", cfg.Camera.Model).
			Str("gate_role", string(cfg.GateRole())).
			Bool("memory_store", cfg.UsesMemoryStore()).
			Msg("parking service listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		monitor.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info().Msg("shutting down http server")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openStore(cfg *config.Config, log zerolog.Logger) (store, error) {
	if cfg.UsesMemoryStore() {
		log.Warn().Msg("database.dsn is empty, using the in-memory store; data is lost on restart")
		return repository.NewMemoryStore(), nil
	}

	gdb, err := db.Connect(cfg.Database, log)
	if err != nil {
		return nil, err
	}
	return repository.NewParkingRepository(gdb), nil
}
