package scheduler

import (
	"context"
	"time"

	"deadline_notification_bot/internal/app"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// ScanScheduler drives the two periodic scans of the notification engine:
// the fast upcoming scan and the slow full reconciliation. The two jobs are
// independent and may overlap; the ledger serializes them per key.
type ScanScheduler struct {
	cronEngine             *cron.Cron
	scans                  app.SchedulerService
	logger                 *logrus.Entry
	cronSpecUpcomingScan   string
	cronSpecReconciliation string
}

func NewScanScheduler(
	scans app.SchedulerService,
	logger *logrus.Entry,
	cronSpecUpcomingScan string, // e.g. "* * * * *" (every minute)
	cronSpecReconciliation string, // e.g. "*/30 * * * *"
) *ScanScheduler {
	return &ScanScheduler{
		// Cron in UTC: all threshold arithmetic happens in the stored
		// reference timezone.
		cronEngine:             cron.New(cron.WithLocation(time.UTC)),
		scans:                  scans,
		logger:                 logger,
		cronSpecUpcomingScan:   cronSpecUpcomingScan,
		cronSpecReconciliation: cronSpecReconciliation,
	}
}

func (s *ScanScheduler) Start() {
	s.logger.Info("Starting scan scheduler...")

	_, err := s.cronEngine.AddFunc(s.cronSpecUpcomingScan, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := s.scans.RunUpcomingScan(ctx); err != nil {
			s.logger.WithError(err).Error("Upcoming scan failed")
		}
	})
	if err != nil {
		s.logger.WithError(err).Fatal("Could not add upcoming scan cron job")
	}

	_, err = s.cronEngine.AddFunc(s.cronSpecReconciliation, func() {
		// Longer timeout: reconciliation sweeps everything active.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := s.scans.RunReconciliationScan(ctx); err != nil {
			s.logger.WithError(err).Error("Reconciliation scan failed")
		}
	})
	if err != nil {
		s.logger.WithError(err).Fatal("Could not add reconciliation cron job")
	}

	s.cronEngine.Start()
	s.logger.WithFields(logrus.Fields{
		"upcoming":       s.cronSpecUpcomingScan,
		"reconciliation": s.cronSpecReconciliation,
	}).Info("Scan scheduler started")
}

// Stop stops accepting new ticks and waits for running scans to finish.
func (s *ScanScheduler) Stop() {
	s.logger.Info("Stopping scan scheduler...")
	ctx := s.cronEngine.Stop()
	<-ctx.Done()
	s.logger.Info("Scan scheduler gracefully stopped")
}
