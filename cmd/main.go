package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"

	"potion_master/internal/broadcast"
	"potion_master/internal/bus"
	"potion_master/internal/config"
	"potion_master/internal/handlers"
	"potion_master/internal/logger"
	"potion_master/internal/metrics"
	"potion_master/internal/mqttbridge"
	"potion_master/internal/pour"
	"potion_master/internal/relay"
	"potion_master/internal/repository"
	"potion_master/internal/repository/db"
	"potion_master/internal/scale"
	"potion_master/internal/server"
	"potion_master/internal/service"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

func main() {
	// load config.yml (POTION_CONFIG overrides the search path)
	cfg, err := config.Load(os.Getenv("POTION_CONFIG"))
	if err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}
	log := logger.Get(cfg.Log.Level)

	// open DB
	sqlDB, err := db.InitDB(cfg.DB.Path)
	if err != nil {
		log.Fatalw("failed to init sqlite", "path", cfg.DB.Path, "err", err)
	}
	defer closeDB(sqlDB, log)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector, err := metrics.NewPrometheusCollector(registry)
	if err != nil {
		log.Fatalw("failed to register metrics", "err", err)
	}

	// hardware
	adapter := bus.NewAdapter(busOpener(cfg, log), log.Named("bus"), collector)
	bank := relay.NewBank(adapter, byte(cfg.Hardware.RelayAddr), log.Named("relay"))
	reader := scale.NewReader(adapter, scale.Config{
		Addr:           byte(cfg.Hardware.ScaleAddr),
		WeightRegister: byte(cfg.Hardware.WeightRegister),
		TareRegister:   byte(cfg.Hardware.TareRegister),
		TareCommand:    byte(cfg.Hardware.TareCommand),
		TareSettle:     cfg.Hardware.TareSettle,
	}, log.Named("scale"), collector)
	hub := broadcast.NewHub(cfg.Broadcast.Buffer, log.Named("hub"), collector)

	seq := pour.New(bank, reader, hub, pour.Config{
		Channels: pour.Assignment(cfg.Channels),
		Timing: pour.Timing{
			Tick:          cfg.Pour.Tick,
			SettleDelay:   cfg.Pour.SettleDelay,
			StepTimeout:   cfg.Pour.StepTimeout,
			CleanDuration: cfg.Cleaning.Duration,
			CleanPause:    cfg.Cleaning.Pause,
		},
	}, log.Named("pour"), collector)

	hw := service.NewHardwareService(adapter, bank, reader, seq, log.Named("hardware"))
	if err := hw.Open(); err != nil {
		log.Warnw("hardware unavailable, serving in degraded mode", "err", err)
	}

	// wire dependencies
	repos := repository.NewRepository(sqlDB)
	services := service.NewService(repos, seq, hw, service.AuthOptions{
		SigningKey: cfg.Auth.SigningKey,
		TokenTTL:   cfg.Auth.TokenTTL,
	}, log)
	apiHandler := handlers.NewHandler(services, hub, registry, log.Named("http"))

	// context for background goroutines
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	startBackground(gctx, g, cfg, log, bank, reader, hub, hw, seq, repos)

	mqttClient := startMQTT(gctx, g, cfg, log, hub)

	// start HTTP server
	srv := &server.Server{}
	g.Go(func() error {
		log.Infow("http server listening", "port", cfg.Server.Port)
		return srv.Run(cfg.Server.Port, apiHandler.InitRoutes())
	})

	waitForSignal(gctx, log)

	// stop pour and force relays off before anything else goes away
	_ = seq.StopPour(context.Background())
	seq.Close()
	bank.AllOff()

	// stop background goroutines
	cancel()
	if err := hw.Close(); err != nil {
		log.Warnw("bus close failed", "err", err)
	}
	if mqttClient != nil {
		mqttClient.Close()
	}
	hub.Close()

	// allow in-flight requests to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "err", err)
	}

	if err := g.Wait(); err != nil {
		log.Errorw("background task failed", "err", err)
	}
	log.Infow("shutdown complete")
}

// busOpener picks the real I2C device or the in-memory simulator.
func busOpener(cfg *config.Config, log *logger.Logger) bus.Opener {
	if !cfg.Hardware.Simulate {
		return bus.I2C()
	}
	log.Infow("using simulated hardware", "flowRate", cfg.Hardware.FlowRate)
	sim := bus.NewSimulator(bus.SimConfig{
		RelayAddr: byte(cfg.Hardware.RelayAddr),
		ScaleAddr: byte(cfg.Hardware.ScaleAddr),
		WeightReg: byte(cfg.Hardware.WeightRegister),
		TareReg:   byte(cfg.Hardware.TareRegister),
		FlowRate:  cfg.Hardware.FlowRate,
	})
	return sim.Opener()
}

// startBackground launches the hardware poll loops, the periodic broadcasts,
// the journal and the optional cleaning schedule.
func startBackground(
	ctx context.Context,
	g *errgroup.Group,
	cfg *config.Config,
	log *logger.Logger,
	bank *relay.Bank,
	reader *scale.Reader,
	hub *broadcast.Hub,
	hw *service.HardwareService,
	seq *pour.Sequencer,
	repos *repository.Repository,
) {
	g.Go(func() error {
		reader.Run(ctx, cfg.Hardware.ScalePoll)
		return nil
	})
	g.Go(func() error {
		bank.Run(ctx, cfg.Hardware.RelayReassert)
		return nil
	})
	g.Go(func() error {
		hub.Run(ctx, hw, cfg.Broadcast.StatusInterval, cfg.Broadcast.WeightInterval)
		return nil
	})

	recorder := service.NewJournalRecorder(repos.Journal, log.Named("journal"))
	g.Go(func() error {
		recorder.Run(ctx, hub)
		return nil
	})

	if cfg.Cleaning.Schedule == "" {
		return
	}
	sched, err := service.NewCleaningScheduler(cfg.Cleaning.Schedule, seq, log.Named("cleaning"))
	if err != nil {
		log.Errorw("cleaning schedule disabled", "err", err)
		return
	}
	g.Go(func() error {
		sched.Run(ctx)
		return nil
	})
}

// startMQTT connects the event bridge when a broker is configured. A broker
// that cannot be reached is logged and skipped.
func startMQTT(ctx context.Context, g *errgroup.Group, cfg *config.Config, log *logger.Logger, hub *broadcast.Hub) *mqttbridge.Client {
	if cfg.MQTT.Broker == "" {
		return nil
	}
	mlog := log.Named("mqtt")
	client, err := mqttbridge.Connect(mqttbridge.Settings{
		Broker:   cfg.MQTT.Broker,
		ClientID: cfg.MQTT.ClientID,
		Topic:    cfg.MQTT.Topic,
		Username: cfg.MQTT.Username,
		Password: cfg.MQTT.Password,
		QoS:      byte(cfg.MQTT.QoS),
	}, mlog)
	if err != nil {
		mlog.Errorw("mqtt bridge disabled", "broker", cfg.MQTT.Broker, "err", err)
		return nil
	}
	bridge := mqttbridge.New(client, cfg.MQTT.Topic, byte(cfg.MQTT.QoS), mlog)
	g.Go(func() error {
		bridge.Run(ctx, hub)
		return nil
	})
	return client
}

// waitForSignal blocks until SIGINT/SIGTERM or until a background task fails.
func waitForSignal(ctx context.Context, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		log.Infow("shutting down", "signal", sig.String())
	case <-ctx.Done():
		log.Errorw("background task stopped, shutting down", "err", context.Cause(ctx))
	}
}

func closeDB(sqlDB *sql.DB, log *logger.Logger) {
	if err := sqlDB.Close(); err != nil {
		log.Errorw("failed to close sqlite", "err", err)
	}
}

