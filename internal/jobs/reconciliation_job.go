package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	defaultBatchSize = 200
	runTimeout       = 2 * time.Minute
)

// Reconciler settles pending payments whose enrollment already exists
type Reconciler interface {
	ReconcileEnrolledPayments(ctx context.Context, batchSize int) (int, error)
}

// ReconciliationJob periodically closes payments left pending after a
// partially applied approval
type ReconciliationJob struct {
	cron       *cron.Cron
	reconciler Reconciler
	logger     *logrus.Logger
	schedule   string
	batchSize  int
}

// NewReconciliationJob creates a job with seconds-precision scheduling
func NewReconciliationJob(reconciler Reconciler, schedule string, logger *logrus.Logger) *ReconciliationJob {
	return &ReconciliationJob{
		cron:       cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		reconciler: reconciler,
		logger:     logger,
		schedule:   schedule,
		batchSize:  defaultBatchSize,
	}
}

// Start registers the schedule and starts the scheduler
func (j *ReconciliationJob) Start() error {
	if _, err := j.cron.AddFunc(j.schedule, j.run); err != nil {
		return err
	}
	j.cron.Start()
	j.logger.WithField("schedule", j.schedule).Info("Reconciliation job started")
	return nil
}

// Stop halts the scheduler and waits for a running pass to finish
func (j *ReconciliationJob) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
	j.logger.Info("Reconciliation job stopped")
}

func (j *ReconciliationJob) run() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()
	j.RunOnce(ctx)
}

// RunOnce performs a single reconciliation pass
func (j *ReconciliationJob) RunOnce(ctx context.Context) int {
	j.logger.Debug("Running payment reconciliation...")

	reconciled, err := j.reconciler.ReconcileEnrolledPayments(ctx, j.batchSize)
	if err != nil {
		j.logger.WithError(err).WithField("reconciled", reconciled).Error("Payment reconciliation failed")
		return reconciled
	}

	if reconciled > 0 {
		j.logger.Infof("Reconciled %d pending payments with existing enrollments", reconciled)
	}
	return reconciled
}
