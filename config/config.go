package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"ruuvigate/models"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	GatewayID string
	LogLevel  string
	Timezone  string
	DataDir   string

	CheckpointBackend string
	Registry          []models.DeviceID

	// Duty cycle
	FlushThreshold      uint32
	TargetPeriod        time.Duration
	MaxRecoveryAttempts uint32
	RestartGrace        time.Duration
	SuspendMode         string
	RTCWakeMode         string

	// Collection
	ScanMaxAttempts    int
	ScanAttemptTimeout time.Duration
	ScanPollInterval   time.Duration
	ScanSettleDelay    time.Duration
	ScanBufferSize     int

	// Upload
	WorkerTimeout     time.Duration
	UploadAttempts    int
	UploadRetryDelay  time.Duration
	UploadSettleDelay time.Duration

	// Journal and notifications
	JournalMaxBytes  int64
	NotifyMaxLen     int
	NotifyAttempts   int
	NotifyRetryDelay time.Duration
	TelegramBotToken string
	TelegramChatID   string
	MQTTBroker       string
	MQTTPort         int
	MQTTClientID     string
	MQTTTopic        string
	RabbitMQURL      string
	RabbitMQExchange string
	MetricsTextfile  string

	// Modem / network
	ModemDialCmd          string
	ModemHangupCmd        string
	ModemPwrKeyPin        string
	ModemPowerPin         string
	NetworkProbeURL       string
	NetworkConnectTimeout time.Duration

	// Firebase
	FirebaseProjectID          string
	FirebaseServiceAccountJSON string
	FirebaseCollection         string
	FirebaseDbUrl              string

	// Battery
	BatteryADCEnabled bool
	BatteryI2CBus     string
	BatteryADCAddress uint16
	BatteryDivider    float64
}

func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	registry, err := ParseRegistry(getEnv("SENSOR_MACS", ""))
	if err != nil {
		return nil, err
	}

	dataDir := getEnv("DATA_DIR", "/var/lib/ruuvigate")

	config := &Config{
		GatewayID:         getEnv("GATEWAY_ID", hostname()),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		Timezone:          getEnv("TIMEZONE", "Europe/Helsinki"),
		DataDir:           dataDir,
		CheckpointBackend: getEnv("CHECKPOINT_BACKEND", "bolt"),
		Registry:          registry,

		FlushThreshold:      uint32(getEnvInt("FLUSH_THRESHOLD", 144)),
		TargetPeriod:        getEnvDuration("TARGET_PERIOD", 10*time.Minute),
		MaxRecoveryAttempts: uint32(getEnvInt("MAX_RECOVERY_ATTEMPTS", 3)),
		RestartGrace:        getEnvDuration("RESTART_GRACE", 10*time.Second),
		SuspendMode:         getEnv("SUSPEND_MODE", "sleep"),
		RTCWakeMode:         getEnv("RTCWAKE_MODE", "mem"),

		ScanMaxAttempts:    getEnvInt("SCAN_MAX_ATTEMPTS", 3),
		ScanAttemptTimeout: getEnvDuration("SCAN_ATTEMPT_TIMEOUT", 10*time.Second),
		ScanPollInterval:   getEnvDuration("SCAN_POLL_INTERVAL", 500*time.Millisecond),
		ScanSettleDelay:    getEnvDuration("SCAN_SETTLE_DELAY", 500*time.Millisecond),
		ScanBufferSize:     getEnvInt("SCAN_BUFFER_SIZE", 64),

		WorkerTimeout:     getEnvDuration("WORKER_TIMEOUT", 30*time.Second),
		UploadAttempts:    getEnvInt("UPLOAD_ATTEMPTS", 3),
		UploadRetryDelay:  getEnvDuration("UPLOAD_RETRY_DELAY", time.Second),
		UploadSettleDelay: getEnvDuration("UPLOAD_SETTLE_DELAY", 500*time.Millisecond),

		JournalMaxBytes:  int64(getEnvInt("JOURNAL_MAX_BYTES", 64*1024)),
		NotifyMaxLen:     getEnvInt("NOTIFY_MAX_LEN", 2000),
		NotifyAttempts:   getEnvInt("NOTIFY_ATTEMPTS", 3),
		NotifyRetryDelay: getEnvDuration("NOTIFY_RETRY_DELAY", time.Second),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		MQTTBroker:       getEnv("MQTT_BROKER", ""),
		MQTTPort:         getEnvInt("MQTT_PORT", 1883),
		MQTTClientID:     getEnv("MQTT_CLIENT_ID", "ruuvigate"),
		MQTTTopic:        getEnv("MQTT_TOPIC", "ruuvigate/status"),
		RabbitMQURL:      getEnv("RABBITMQ_URL", ""),
		RabbitMQExchange: getEnv("RABBITMQ_EXCHANGE", "ruuvigate.events"),
		MetricsTextfile:  getEnv("METRICS_TEXTFILE", ""),

		ModemDialCmd:          getEnv("MODEM_DIAL_CMD", "pon"),
		ModemHangupCmd:        getEnv("MODEM_HANGUP_CMD", "poff"),
		ModemPwrKeyPin:        getEnv("MODEM_PWRKEY_PIN", ""),
		ModemPowerPin:         getEnv("MODEM_POWER_PIN", ""),
		NetworkProbeURL:       getEnv("NETWORK_PROBE_URL", "https://firestore.googleapis.com/"),
		NetworkConnectTimeout: getEnvDuration("NETWORK_CONNECT_TIMEOUT", 60*time.Second),

		FirebaseProjectID:          getEnv("FIREBASE_PROJECT_ID", ""),
		FirebaseServiceAccountJSON: getEnv("FIREBASE_SERVICE_ACCOUNT_JSON", ""),
		FirebaseCollection:         getEnv("FIREBASE_COLLECTION", "daily_measurements"),
		FirebaseDbUrl:              getEnv("FIREBASE_DB_URL", ""),

		BatteryADCEnabled: getEnvBool("BATTERY_ADC_ENABLED", false),
		BatteryI2CBus:     getEnv("BATTERY_I2C_BUS", ""),
		BatteryADCAddress: uint16(getEnvInt("BATTERY_ADC_ADDRESS", 0x48)),
		BatteryDivider:    getEnvFloat("BATTERY_DIVIDER", 2.0),
	}

	return config, nil
}

// Validate checks the values the duty cycle cannot run without
func (c *Config) Validate() error {
	var errs []error
	if len(c.Registry) == 0 {
		errs = append(errs, errors.New("sensor registry is empty"))
	}
	if c.FlushThreshold == 0 {
		errs = append(errs, errors.New("FLUSH_THRESHOLD must be positive"))
	}
	if c.ScanMaxAttempts < 1 {
		errs = append(errs, errors.New("SCAN_MAX_ATTEMPTS must be at least 1"))
	}
	if c.ScanPollInterval <= 0 || c.ScanAttemptTimeout <= 0 {
		errs = append(errs, errors.New("scan timings must be positive"))
	}
	if c.UploadAttempts < 1 || c.NotifyAttempts < 1 {
		errs = append(errs, errors.New("retry attempts must be at least 1"))
	}
	if c.NotifyMaxLen < 64 {
		errs = append(errs, errors.New("NOTIFY_MAX_LEN too small"))
	}
	switch c.CheckpointBackend {
	case "bolt", "badger":
	default:
		errs = append(errs, fmt.Errorf("unknown CHECKPOINT_BACKEND %q", c.CheckpointBackend))
	}
	switch c.SuspendMode {
	case "sleep", "rtcwake", "oneshot":
	default:
		errs = append(errs, fmt.Errorf("unknown SUSPEND_MODE %q", c.SuspendMode))
	}
	if c.FirebaseProjectID == "" || c.FirebaseServiceAccountJSON == "" {
		errs = append(errs, errors.New("firebase configuration is required"))
	}
	return errors.Join(errs...)
}

// DocumentsDir is where per-device documents live
func (c *Config) DocumentsDir() string {
	return filepath.Join(c.DataDir, "documents")
}

// CheckpointPath is the checkpoint database location for the configured backend
func (c *Config) CheckpointPath() string {
	if c.CheckpointBackend == "badger" {
		return filepath.Join(c.DataDir, "checkpoint.badger")
	}
	return filepath.Join(c.DataDir, "checkpoint.db")
}

// JournalPath is the durable audit log
func (c *Config) JournalPath() string {
	return filepath.Join(c.DataDir, "journal.log")
}

// Log echoes the effective configuration without secrets
func (c *Config) Log(logger *zap.Logger) {
	ids := make([]string, len(c.Registry))
	for i, id := range c.Registry {
		ids[i] = id.String()
	}
	logger.Info("Configuration loaded",
		zap.String("gateway_id", c.GatewayID),
		zap.String("data_dir", c.DataDir),
		zap.String("checkpoint_backend", c.CheckpointBackend),
		zap.Strings("registry", ids),
		zap.Uint32("flush_threshold", c.FlushThreshold),
		zap.Duration("target_period", c.TargetPeriod),
		zap.String("suspend_mode", c.SuspendMode),
		zap.Int("scan_max_attempts", c.ScanMaxAttempts),
		zap.Duration("scan_attempt_timeout", c.ScanAttemptTimeout),
		zap.String("firebase_project_id", c.FirebaseProjectID),
		zap.String("firebase_collection", c.FirebaseCollection),
		zap.Bool("firebase_rtdb_mirror", c.FirebaseDbUrl != ""),
		zap.Bool("telegram_configured", c.TelegramBotToken != ""),
		zap.Bool("mqtt_configured", c.MQTTBroker != ""),
		zap.Bool("rabbitmq_configured", c.RabbitMQURL != ""),
		zap.Bool("battery_adc_enabled", c.BatteryADCEnabled),
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 0, 64); err == nil {
			return int(i)
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil || strings.TrimSpace(h) == "" {
		return "ruuvigate"
	}
	return h
}
