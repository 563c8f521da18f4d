package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/tourops/dispatch-core/internal/repository"
)

// ReconcilerScheduler periodically sweeps every tenant's open dispatch
// days and refreshes their status, so a warning whose underlying condition
// cleared through means other than resolveWarning (a booking cancelled
// itself out, a guide's availability changed) still gets auto-resolved
// without waiting for the next read (spec §4.10).
type ReconcilerScheduler struct {
	cron          *cron.Cron
	dispatchRepo  *repository.DispatchRepository
	dispatchStore *DispatchStoreService
	logger        *logrus.Logger
}

func NewReconcilerScheduler(
	dispatchRepo *repository.DispatchRepository,
	dispatchStore *DispatchStoreService,
	logger *logrus.Logger,
) *ReconcilerScheduler {
	return &ReconcilerScheduler{
		cron:          cron.New(cron.WithSeconds()),
		dispatchRepo:  dispatchRepo,
		dispatchStore: dispatchStore,
		logger:        logger,
	}
}

// Start schedules the sweep job and starts the cron scheduler. The sweep
// runs every 15 minutes; dispatch days are short-lived (one operational
// day) so this cadence keeps warning staleness bounded without hammering
// the store.
func (s *ReconcilerScheduler) Start() error {
	if _, err := s.cron.AddFunc("0 */15 * * * *", s.sweep); err != nil {
		return fmt.Errorf("schedule warning reconciler sweep: %w", err)
	}
	s.cron.Start()
	s.logger.Info("warning reconciler sweep scheduled every 15 minutes")
	return nil
}

// Stop drains any in-flight sweep and stops the scheduler.
func (s *ReconcilerScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *ReconcilerScheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	start := time.Now()
	days, err := s.dispatchRepo.ListOpenDays(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("reconciler sweep: failed to list open dispatch days")
		return
	}

	refreshed, failed := 0, 0
	for _, day := range days {
		if _, err := s.dispatchStore.Refresh(ctx, day.OrganizationID, day.Date); err != nil {
			failed++
			s.logger.WithFields(logrus.Fields{
				"organization_id": day.OrganizationID,
				"date":            day.Date,
				"error":           err,
			}).Warn("reconciler sweep: failed to refresh dispatch day")
			continue
		}
		refreshed++
	}

	s.logger.WithFields(logrus.Fields{
		"open_days": len(days),
		"refreshed": refreshed,
		"failed":    failed,
		"duration":  time.Since(start),
	}).Info("reconciler sweep completed")
}
