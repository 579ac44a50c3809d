package bootstrap

import (
	"github.com/LerianStudio/lib-commons/v2/commons"
	libOtel "github.com/LerianStudio/lib-commons/v2/commons/opentelemetry"
	"github.com/LerianStudio/lib-commons/v2/commons/log"
	"github.com/LerianStudio/lib-redis-guard/pkg/redis"
)

// Service is the application glue where we put all top level components to be used.
type Service struct {
	server    *OpsServer
	manager   *redis.ConnectionManager
	telemetry *libOtel.Telemetry
	log.Logger
}

// Run starts the application.
// This is the only necessary code to run an app in main.go
func (app *Service) Run() {
	commons.NewLauncher(
		commons.WithLogger(app.Logger),
		commons.RunApp("Ops server", app.server),
	).Run()

	// Graceful shutdown
	app.Logger.Info("Starting graceful shutdown...")

	if err := app.manager.Close(); err != nil {
		app.Logger.Errorf("Failed to close connection manager: %v", err)
	}

	if app.telemetry != nil {
		app.telemetry.ShutdownTelemetry()
	}

	app.Logger.Info("Graceful shutdown complete")
}
