package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/curation-engine/pkg/metrics"
	"github.com/ekaya-inc/curation-engine/pkg/models"
	"github.com/ekaya-inc/curation-engine/pkg/repositories"
)

// JobStatusClient fetches the state of a submitted job from the curation
// manager.
type JobStatusClient interface {
	JobStatus(ctx context.Context, externalJobID string) (*models.JobStatusResponse, []byte, error)
}

// JobPoller drives in-progress curation jobs to a terminal state.
type JobPoller interface {
	// PollOnce checks every IN_PROGRESS job against the curation manager.
	// Per-job failures are isolated; a transport failure leaves that job
	// IN_PROGRESS for the next pass.
	PollOnce(ctx context.Context)

	// RunScheduler starts a background goroutine polling on the given
	// interval. It runs immediately on startup, then repeats every interval.
	// Cancel the context to stop the scheduler.
	RunScheduler(ctx context.Context, interval time.Duration)
}

type jobPoller struct {
	jobRepo   repositories.CurationJobRepository
	manager   JobStatusClient
	publisher PublishService
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

func NewJobPoller(
	jobRepo repositories.CurationJobRepository,
	manager JobStatusClient,
	publisher PublishService,
	m *metrics.Metrics,
	logger *zap.Logger,
) JobPoller {
	return &jobPoller{
		jobRepo:   jobRepo,
		manager:   manager,
		publisher: publisher,
		metrics:   m,
		logger:    logger.Named("job-poller"),
	}
}

var _ JobPoller = (*jobPoller)(nil)

func (p *jobPoller) PollOnce(ctx context.Context) {
	jobs, err := p.jobRepo.ListInProgress(ctx)
	if err != nil {
		p.logger.Error("failed to list in-progress jobs", zap.Error(err))
		return
	}

	for _, job := range jobs {
		if ctx.Err() != nil {
			return
		}
		p.pollJob(ctx, job)
	}

	p.metrics.IncrementPollPass()
}

func (p *jobPoller) pollJob(ctx context.Context, job *models.CurationJob) {
	status, raw, err := p.manager.JobStatus(ctx, job.ExternalJobID)
	if err != nil {
		// Left IN_PROGRESS, the next pass retries.
		p.logger.Warn("job status check failed",
			zap.String("job_id", job.ID.String()),
			zap.String("external_job_id", job.ExternalJobID),
			zap.Error(err))
		return
	}

	if err := p.jobRepo.SaveSnapshot(ctx, job.ID, raw); err != nil {
		p.logger.Error("failed to cache job snapshot",
			zap.String("job_id", job.ID.String()),
			zap.Error(err))
	}

	switch models.JobStatus(status.JobStatus) {
	case models.JobStatusCompleted:
		if err := p.publisher.Publish(ctx, status.JobItems); err != nil {
			p.logger.Error("publish fan-out reported failures",
				zap.String("job_id", job.ID.String()),
				zap.Error(err))
		}
		p.markTerminal(ctx, job, models.JobStatusCompleted)
	case models.JobStatusInProgress:
		p.logger.Debug("job still in progress",
			zap.String("external_job_id", job.ExternalJobID))
	case models.JobStatusFailed:
		p.markTerminal(ctx, job, models.JobStatusFailed)
	default:
		if status.JobStatus == "" {
			// A well-formed response with no status is treated as a failure
			// rather than polled forever.
			p.markTerminal(ctx, job, models.JobStatusFailed)
			return
		}
		p.logger.Warn("unrecognized job status, leaving job in progress",
			zap.String("external_job_id", job.ExternalJobID),
			zap.String("status", status.JobStatus))
	}
}

func (p *jobPoller) markTerminal(ctx context.Context, job *models.CurationJob, status models.JobStatus) {
	if err := p.jobRepo.UpdateStatus(ctx, job.ID, status); err != nil {
		p.logger.Error("failed to update job status",
			zap.String("job_id", job.ID.String()),
			zap.String("status", string(status)),
			zap.Error(err))
		return
	}
	p.metrics.IncrementCompletion(string(status))
	p.logger.Info("curation job reached terminal status",
		zap.String("job_id", job.ID.String()),
		zap.String("external_job_id", job.ExternalJobID),
		zap.String("status", string(status)))
}

// RunScheduler starts the background poll loop.
func (p *jobPoller) RunScheduler(ctx context.Context, interval time.Duration) {
	go func() {
		p.logger.Info("job poll scheduler started", zap.Duration("interval", interval))

		// Run immediately on startup, then at each interval
		p.PollOnce(ctx)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				p.logger.Info("job poll scheduler stopped")
				return
			case <-ticker.C:
				p.PollOnce(ctx)
			}
		}
	}()
}
