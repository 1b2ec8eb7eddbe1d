package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ruuvigate/config"
	"ruuvigate/cycle"
	"ruuvigate/log"
	"ruuvigate/services"
	"ruuvigate/storage"

	"go.uber.org/zap"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Initialize structured logger
	logger := log.GetInstance()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("Failed to load config", zap.Error(err))
		return 1
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", zap.Error(err))
		return 1
	}
	log.SetLevel(cfg.LogLevel)

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Error("Failed to load timezone", zap.String("timezone", cfg.Timezone), zap.Error(err))
		return 1
	}
	time.Local = loc
	cfg.Log(logger)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Error("Failed to create data directory", zap.Error(err))
		return 1
	}

	// Persistent state
	store, err := storage.Open(cfg.CheckpointBackend, cfg.CheckpointPath())
	if err != nil {
		logger.Error("Failed to open checkpoint store", zap.Error(err))
		return 1
	}
	defer store.Close()

	journal, err := log.NewJournal(cfg.JournalPath(), cfg.JournalMaxBytes)
	if err != nil {
		logger.Error("Failed to open journal", zap.Error(err))
		return 1
	}

	accumulator, err := services.NewAccumulator(cfg.DocumentsDir(), loc, journal, logger)
	if err != nil {
		logger.Error("Failed to initialize document storage", zap.Error(err))
		return 1
	}

	// Collection
	scanner := services.NewBLEScanner("", logger)
	collector := services.NewCollector(scanner, services.CollectorConfig{
		MaxAttempts:    cfg.ScanMaxAttempts,
		AttemptTimeout: cfg.ScanAttemptTimeout,
		PollInterval:   cfg.ScanPollInterval,
		SettleDelay:    cfg.ScanSettleDelay,
		BufferSize:     cfg.ScanBufferSize,
	}, logger)

	// Upload
	account, err := services.ParseServiceAccount([]byte(cfg.FirebaseServiceAccountJSON))
	if err != nil {
		logger.Error("Invalid Firebase service account", zap.Error(err))
		return 1
	}
	issuer, err := services.NewCredentialIssuer(account, services.FirestoreAudience, time.Now)
	if err != nil {
		logger.Error("Failed to initialize credential issuer", zap.Error(err))
		return 1
	}
	connect := func(ctx context.Context) (cycle.Flusher, func() error, error) {
		sink, err := services.NewFirestoreSink(ctx, cfg.FirebaseProjectID, cfg.FirebaseCollection, issuer, logger)
		if err != nil {
			return nil, nil, err
		}
		uploader := services.NewBatchUploader(accumulator, sink, services.UploaderConfig{
			Attempts:      cfg.UploadAttempts,
			RetryDelay:    cfg.UploadRetryDelay,
			WorkerTimeout: cfg.WorkerTimeout,
			SettleDelay:   cfg.UploadSettleDelay,
		}, journal, logger)
		return uploader, sink.Close, nil
	}

	// Notifications
	notifier, closeNotifiers := buildNotifier(cfg, logger)
	defer closeNotifiers()

	modem := services.NewModemService(services.ModemConfig{
		DialCmd:        cfg.ModemDialCmd,
		HangupCmd:      cfg.ModemHangupCmd,
		PwrKeyPin:      cfg.ModemPwrKeyPin,
		PowerPin:       cfg.ModemPowerPin,
		ProbeURL:       cfg.NetworkProbeURL,
		ConnectTimeout: cfg.NetworkConnectTimeout,
	}, nil, logger)

	var battery cycle.Battery = services.StaticBattery{}
	if cfg.BatteryADCEnabled {
		battery = services.NewADCBattery(cfg.BatteryI2CBus, cfg.BatteryADCAddress, cfg.BatteryDivider)
	}

	suspender, err := services.NewSuspender(cfg.SuspendMode, cfg.RTCWakeMode, nil, logger)
	if err != nil {
		logger.Error("Invalid suspend mode", zap.Error(err))
		return 1
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, finishing current cycle")
		cancel()
	}()

	deps := cycle.Deps{
		Store:     store,
		Collector: collector,
		Recorder:  accumulator,
		Connect:   connect,
		Network:   modem,
		Clock:     services.SystemClock{},
		Notifier:  notifier,
		Battery:   battery,
		Journal:   journal,
		Reporter:  services.NewReporter(cfg.GatewayID, cfg.NotifyMaxLen),
		Metrics:   services.NewMetrics(cfg.MetricsTextfile, cfg.GatewayID),
		Logger:    logger,
	}
	if cfg.FirebaseDbUrl != "" {
		mirror, err := services.NewStatusMirror(ctx, cfg.FirebaseDbUrl, cfg.FirebaseServiceAccountJSON, cfg.GatewayID, logger)
		if err != nil {
			logger.Warn("Status mirror disabled", zap.Error(err))
		} else {
			deps.Mirror = mirror
		}
	}

	orchestrator := cycle.New(cycle.Config{
		Registry:            cfg.Registry,
		FlushThreshold:      cfg.FlushThreshold,
		TargetPeriod:        cfg.TargetPeriod,
		MaxRecoveryAttempts: cfg.MaxRecoveryAttempts,
		RestartGrace:        cfg.RestartGrace,
		WorkerTimeout:       cfg.WorkerTimeout,
		// Power sequencing runs before the dial timeout starts
		NetworkTimeout:      cfg.NetworkConnectTimeout + cfg.WorkerTimeout,
		NotifyAttempts:      cfg.NotifyAttempts,
		NotifyRetryDelay:    cfg.NotifyRetryDelay,
	}, deps)

	logger.Info("RUUVIGATE gateway started",
		zap.String("gateway_id", cfg.GatewayID),
		zap.Int("registered_tags", len(cfg.Registry)))

	for {
		result, err := orchestrator.Run(ctx)
		if err != nil {
			var fatal *cycle.FatalError
			if errors.As(err, &fatal) && !fatal.Immediate && fatal.Grace > 0 {
				logger.Error("Unsuccessful init, restarting after grace delay",
					zap.String("phase", fatal.Phase),
					zap.Duration("grace", fatal.Grace),
					zap.Error(err))
				time.Sleep(fatal.Grace)
			} else {
				logger.Error("Fatal error, exiting", zap.Error(err))
			}
			return 1
		}

		if ctx.Err() != nil {
			logger.Info("RUUVIGATE gateway stopped")
			return 0
		}
		if err := suspender.Suspend(ctx, result.Sleep); err != nil {
			if ctx.Err() != nil {
				logger.Info("RUUVIGATE gateway stopped")
				return 0
			}
			logger.Warn("Suspend failed, starting next cycle", zap.Error(err))
		}
		if !suspender.Resident() {
			return 0
		}
	}
}

// buildNotifier fans notifications out to every configured sink
func buildNotifier(cfg *config.Config, logger *zap.Logger) (*services.MultiNotifier, func()) {
	var sinks []services.Notifier
	var closers []func() error

	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		telegram, err := services.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID, logger)
		if err != nil {
			logger.Warn("Telegram notifier disabled", zap.Error(err))
		} else {
			sinks = append(sinks, telegram)
		}
	}
	if cfg.MQTTBroker != "" {
		mqtt := services.NewMQTTNotifier(services.MQTTConfig{
			Broker:    cfg.MQTTBroker,
			Port:      cfg.MQTTPort,
			ClientID:  cfg.MQTTClientID,
			Topic:     cfg.MQTTTopic,
			GatewayID: cfg.GatewayID,
		}, logger)
		sinks = append(sinks, mqtt)
		closers = append(closers, mqtt.Close)
	}
	if cfg.RabbitMQURL != "" {
		amqp := services.NewAMQPNotifier(services.AMQPConfig{
			URL:       cfg.RabbitMQURL,
			Exchange:  cfg.RabbitMQExchange,
			GatewayID: cfg.GatewayID,
		}, logger)
		sinks = append(sinks, amqp)
		closers = append(closers, amqp.Close)
	}
	if len(sinks) == 0 {
		logger.Warn("No notification sink configured, journal will accumulate")
	}

	return services.NewMultiNotifier(logger, sinks...), func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Warn("Error closing notifier", zap.Error(err))
			}
		}
	}
}
