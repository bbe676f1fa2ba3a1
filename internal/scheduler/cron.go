package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/sorabane/bangusync/internal/config"
	"github.com/sorabane/bangusync/internal/services/dataset"
	"github.com/sorabane/bangusync/internal/services/trakt"
)

// Scheduler owns the periodic jobs: incremental Trakt pulls for every enabled
// account and dataset refreshes. Jobs run under a shared parent context so
// shutdown interrupts a pull between pages.
type Scheduler struct {
	cron    *cron.Cron
	cfg     *config.Config
	puller  *trakt.Puller
	dataset *dataset.Store
	logger  *logrus.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a scheduler. puller may be nil when Trakt is not configured.
func New(cfg *config.Config, puller *trakt.Puller, datasetStore *dataset.Store, logger *logrus.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron.New(),
		cfg:     cfg,
		puller:  puller,
		dataset: datasetStore,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start registers the jobs and starts the cron loop.
func (s *Scheduler) Start() error {
	if s.puller != nil && len(s.cfg.TraktAccounts()) > 0 {
		if _, err := s.cron.AddFunc(s.cfg.TraktSyncCron, s.runTraktSync); err != nil {
			return fmt.Errorf("invalid trakt sync cron spec %q: %w", s.cfg.TraktSyncCron, err)
		}
		s.logger.WithField("cron", s.cfg.TraktSyncCron).Info("Scheduled Trakt history pulls")
	}

	// The dataset TTL is checked on load, so a daily nudge is enough.
	if _, err := s.cron.AddFunc("30 4 * * *", s.runDatasetRefresh); err != nil {
		return fmt.Errorf("failed to schedule dataset refresh: %w", err)
	}

	s.cron.Start()
	s.logger.Info("Scheduler started")
	return nil
}

// Stop cancels running jobs and waits for the cron loop to drain.
func (s *Scheduler) Stop() {
	s.cancel()
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(30 * time.Second):
		s.logger.Warn("Timed out waiting for scheduled jobs to finish")
	}
	s.logger.Info("Scheduler stopped")
}

// runTraktSync pulls incremental history for every Trakt-enabled account.
// Accounts run sequentially; one failing account never blocks the others.
func (s *Scheduler) runTraktSync() {
	for _, binding := range s.cfg.TraktAccounts() {
		if s.ctx.Err() != nil {
			return
		}

		summary, err := s.puller.Sync(s.ctx, binding, false)
		if err != nil {
			if errors.Is(err, trakt.ErrSyncActive) {
				s.logger.WithField("account", binding.UserName).Debug("Skipping scheduled pull, one is already running")
				continue
			}
			if errors.Is(err, trakt.ErrNotConnected) || errors.Is(err, trakt.ErrDisconnected) {
				s.logger.WithField("account", binding.UserName).Debug("Skipping scheduled pull, account not connected")
				continue
			}
			s.logger.WithError(err).WithField("account", binding.UserName).Error("Scheduled Trakt pull failed")
			continue
		}

		s.logger.WithFields(logrus.Fields{
			"account":  summary.Account,
			"episodes": summary.Episodes,
			"success":  summary.Success,
			"ignored":  summary.Ignored,
			"errors":   summary.Errors,
		}).Info("Scheduled Trakt pull finished")
	}
}

func (s *Scheduler) runDatasetRefresh() {
	if err := s.dataset.Load(s.ctx); err != nil {
		s.logger.WithError(err).Error("Scheduled dataset refresh failed")
	}
}
