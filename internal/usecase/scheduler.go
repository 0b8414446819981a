package usecase

import (
	"context"
	"log/slog"
	"time"

	"GradScrape/internal/domain"
	"GradScrape/internal/ports"
)

// Scheduler wires the interval driver with the ingestion use case.
type Scheduler struct {
	driver    ports.Scheduler
	ingestion *Ingestion
	logger    *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring pulls.
func NewScheduler(driver ports.Scheduler, ingestion *Ingestion, logger *slog.Logger) *Scheduler {
	return &Scheduler{driver: driver, ingestion: ingestion, logger: logger}
}

// Start registers gated pulls with the provided scheduler. A tick that
// finds the gate busy is dropped, never queued.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.ingestion == nil {
		return nil
	}

	job := func(tick time.Time) {
		status := s.ingestion.StartPull(domain.TriggerScheduler)
		if s.logger != nil {
			s.logger.Debug("scheduled pull", "tick", tick, "status", status)
		}
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
