package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/curation-engine/pkg/metrics"
	"github.com/ekaya-inc/curation-engine/pkg/models"
	"github.com/ekaya-inc/curation-engine/pkg/repositories"
)

// JobSubmitter submits a built curation message to the curation manager.
type JobSubmitter interface {
	CreateJob(ctx context.Context, message *models.CurationMessage) (string, error)
}

// CurationService runs the request half of the pipeline: resolve the graph,
// build the message, submit it and persist the tracking job.
type CurationService interface {
	// RequestCuration starts curation for the record graph rooted at oid.
	// Submission failure returns an error and persists nothing; the caller
	// re-triggers curation if desired.
	RequestCuration(ctx context.Context, oid string) (*models.CurationJob, error)

	// GetSnapshot returns the last raw status payload cached for a job.
	GetSnapshot(ctx context.Context, jobID uuid.UUID) ([]byte, error)
}

type curationService struct {
	resolver RelationshipResolver
	builder  MessageBuilder
	manager  JobSubmitter
	jobRepo  repositories.CurationJobRepository
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func NewCurationService(
	resolver RelationshipResolver,
	builder MessageBuilder,
	manager JobSubmitter,
	jobRepo repositories.CurationJobRepository,
	m *metrics.Metrics,
	logger *zap.Logger,
) CurationService {
	return &curationService{
		resolver: resolver,
		builder:  builder,
		manager:  manager,
		jobRepo:  jobRepo,
		metrics:  m,
		logger:   logger.Named("curation-service"),
	}
}

var _ CurationService = (*curationService)(nil)

func (s *curationService) RequestCuration(ctx context.Context, oid string) (*models.CurationJob, error) {
	start := time.Now()
	graph, err := s.resolver.ResolveGraph(ctx, oid)
	if err != nil {
		s.metrics.IncrementRequest("error")
		return nil, err
	}
	s.metrics.ObserveResolveLatency(time.Since(start))

	message, err := s.builder.Build(ctx, graph)
	if err != nil {
		s.metrics.IncrementRequest("error")
		return nil, err
	}

	externalJobID, err := s.manager.CreateJob(ctx, message)
	if err != nil {
		s.metrics.IncrementRequest("rejected")
		return nil, fmt.Errorf("failed to submit curation job: %w", err)
	}

	// Members cover every participant in the graph, including records the
	// builder excluded from the outgoing message.
	job := &models.CurationJob{
		ExternalJobID: externalJobID,
		Status:        models.JobStatusInProgress,
		Members:       graph.Keys(),
	}
	if err := s.jobRepo.Create(ctx, job); err != nil {
		s.metrics.IncrementRequest("error")
		return nil, fmt.Errorf("failed to persist curation job: %w", err)
	}

	s.metrics.IncrementRequest("submitted")
	s.logger.Info("curation job submitted",
		zap.String("root_oid", oid),
		zap.String("job_id", job.ID.String()),
		zap.String("external_job_id", externalJobID),
		zap.Int("members", len(job.Members)))

	return job, nil
}

func (s *curationService) GetSnapshot(ctx context.Context, jobID uuid.UUID) ([]byte, error) {
	return s.jobRepo.GetSnapshot(ctx, jobID)
}
