package logging

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"detectorx-worker-go/internal/config"
)

func NewServiceLogger(cfg *config.Config, service string) zerolog.Logger {
	return log.With().Str("worker_id", cfg.WorkerID).Str("service", service).Logger()
}

func WithMonitor(base zerolog.Logger, monitorID string) zerolog.Logger {
	return base.With().Str("monitor_id", monitorID).Logger()
}
