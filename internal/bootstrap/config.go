package bootstrap

import (
	"time"

	libCommons "github.com/LerianStudio/lib-commons/v2/commons"
	"github.com/LerianStudio/lib-commons/v2/commons/log"
	libOtel "github.com/LerianStudio/lib-commons/v2/commons/opentelemetry"
	libZap "github.com/LerianStudio/lib-commons/v2/commons/zap"
	"github.com/LerianStudio/lib-redis-guard/pkg/redis"
)

// Config holds the application's configurable parameters read from environment variables.
type Config struct {
	EnvName    string `env:"ENV_NAME"`
	LogLevel   string `env:"LOG_LEVEL"`
	ServerPort string `env:"SERVER_PORT" default:"4100"`
	// Redis connection envs
	RedisAddress          string `env:"REDIS_ADDRESS" default:"localhost:6379"`
	RedisPassword         string `env:"REDIS_PASSWORD"`
	RedisDB               int    `env:"REDIS_DB"`
	MaxConnections        int    `env:"REDIS_MAX_CONNECTIONS" default:"50"`
	ConnectTimeoutSeconds int    `env:"REDIS_CONNECT_TIMEOUT_SECONDS" default:"5"`
	SocketTimeoutSeconds  int    `env:"REDIS_SOCKET_TIMEOUT_SECONDS" default:"5"`
	// Resilience envs
	FailureThreshold           int  `env:"CIRCUIT_FAILURE_THRESHOLD" default:"5"`
	RecoveryTimeoutSeconds     int  `env:"CIRCUIT_RECOVERY_TIMEOUT_SECONDS" default:"60"`
	MaxRetryAttempts           int  `env:"REDIS_MAX_RETRY_ATTEMPTS" default:"3"`
	HealthCheckIntervalSeconds int  `env:"HEALTH_CHECK_INTERVAL_SECONDS" default:"30"`
	EnableHealthMonitoring     bool `env:"ENABLE_HEALTH_MONITORING" default:"true"`
	// Telemetry envs
	OtelServiceName         string `env:"OTEL_RESOURCE_SERVICE_NAME"`
	OtelLibraryName         string `env:"OTEL_LIBRARY_NAME"`
	OtelServiceVersion      string `env:"OTEL_RESOURCE_SERVICE_VERSION"`
	OtelDeploymentEnv       string `env:"OTEL_RESOURCE_DEPLOYMENT_ENVIRONMENT"`
	OtelColExporterEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	EnableTelemetry         bool   `env:"ENABLE_TELEMETRY"`
}

// connectionConfig maps the environment configuration onto the connection
// manager's config, converting second-granularity envs into durations.
func (cfg *Config) connectionConfig(logger log.Logger) redis.ConnectionConfig {
	return redis.ConnectionConfig{
		Address:                 cfg.RedisAddress,
		Password:                cfg.RedisPassword,
		DB:                      cfg.RedisDB,
		MaxConnections:          cfg.MaxConnections,
		ConnectTimeout:          time.Duration(cfg.ConnectTimeoutSeconds) * time.Second,
		SocketTimeout:           time.Duration(cfg.SocketTimeoutSeconds) * time.Second,
		FailureThreshold:        cfg.FailureThreshold,
		RecoveryTimeout:         time.Duration(cfg.RecoveryTimeoutSeconds) * time.Second,
		MaxRetryAttempts:        cfg.MaxRetryAttempts,
		HealthCheckInterval:     time.Duration(cfg.HealthCheckIntervalSeconds) * time.Second,
		DisableHealthMonitoring: !cfg.EnableHealthMonitoring,
		Logger:                  logger,
	}
}

// InitApp initializes and configures the application's dependencies and returns the Service instance.
func InitApp() *Service {
	cfg := &Config{}
	if err := libCommons.SetConfigFromEnvVars(cfg); err != nil {
		panic(err)
	}

	logger := libZap.InitializeLogger()

	telemetry := libOtel.InitializeTelemetry(&libOtel.TelemetryConfig{
		LibraryName:               cfg.OtelLibraryName,
		ServiceName:               cfg.OtelServiceName,
		ServiceVersion:            cfg.OtelServiceVersion,
		DeploymentEnv:             cfg.OtelDeploymentEnv,
		CollectorExporterEndpoint: cfg.OtelColExporterEndpoint,
		EnableTelemetry:           cfg.EnableTelemetry,
		Logger:                    logger,
	})

	manager := redis.NewConnectionManager(cfg.connectionConfig(logger))

	server := NewOpsServer(cfg.ServerPort, manager, logger)

	return &Service{
		server:    server,
		manager:   manager,
		telemetry: telemetry,
		Logger:    logger,
	}
}
