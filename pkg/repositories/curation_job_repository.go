package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/curation-engine/pkg/apperrors"
	"github.com/ekaya-inc/curation-engine/pkg/database"
	"github.com/ekaya-inc/curation-engine/pkg/models"
)

// CurationJobRepository provides data access for curation jobs, their member
// records and the cached status snapshots.
type CurationJobRepository interface {
	// Create persists a new job and one member row per OID. The job's ID is
	// assigned here if unset.
	Create(ctx context.Context, job *models.CurationJob) error

	// ListInProgress returns every job still awaiting a terminal poll result,
	// members included.
	ListInProgress(ctx context.Context) ([]*models.CurationJob, error)

	// UpdateStatus transitions a job to the given status.
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.JobStatus) error

	// SaveSnapshot stores the raw status payload for a job, replacing any
	// earlier snapshot.
	SaveSnapshot(ctx context.Context, jobID uuid.UUID, payload []byte) error

	// GetSnapshot returns the last stored status payload for a job.
	GetSnapshot(ctx context.Context, jobID uuid.UUID) ([]byte, error)
}

type curationJobRepository struct {
	db *database.DB
}

func NewCurationJobRepository(db *database.DB) CurationJobRepository {
	return &curationJobRepository{db: db}
}

var _ CurationJobRepository = (*curationJobRepository)(nil)

func (r *curationJobRepository) Create(ctx context.Context, job *models.CurationJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = models.JobStatusInProgress
	}
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO curation_jobs (id, external_job_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`,
		job.ID, job.ExternalJobID, job.Status, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create curation job: %w", err)
	}

	for _, oid := range job.Members {
		_, err = tx.Exec(ctx, `
			INSERT INTO curation_records (oid, job_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING`,
			oid, job.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to create curation record %s: %w", oid, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit curation job: %w", err)
	}

	return nil
}

func (r *curationJobRepository) ListInProgress(ctx context.Context) ([]*models.CurationJob, error) {
	rows, err := r.db.Query(ctx, `
		SELECT j.id, j.external_job_id, j.status, j.created_at, j.updated_at,
		       COALESCE(array_agg(r.oid ORDER BY r.oid) FILTER (WHERE r.oid IS NOT NULL), '{}')
		FROM curation_jobs j
		LEFT JOIN curation_records r ON r.job_id = j.id
		WHERE j.status = $1
		GROUP BY j.id
		ORDER BY j.created_at`,
		models.JobStatusInProgress,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list in-progress jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.CurationJob
	for rows.Next() {
		var job models.CurationJob
		if err := rows.Scan(&job.ID, &job.ExternalJobID, &job.Status, &job.CreatedAt, &job.UpdatedAt, &job.Members); err != nil {
			return nil, fmt.Errorf("failed to scan curation job: %w", err)
		}
		jobs = append(jobs, &job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating curation jobs: %w", err)
	}

	return jobs, nil
}

func (r *curationJobRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.JobStatus) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE curation_jobs
		SET status = $1, updated_at = now()
		WHERE id = $2`,
		status, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *curationJobRepository) SaveSnapshot(ctx context.Context, jobID uuid.UUID, payload []byte) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO curation_job_snapshots (job_id, payload, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (job_id)
		DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()`,
		jobID, payload,
	)
	if err != nil {
		return fmt.Errorf("failed to save job snapshot: %w", err)
	}
	return nil
}

func (r *curationJobRepository) GetSnapshot(ctx context.Context, jobID uuid.UUID) ([]byte, error) {
	var payload []byte
	err := r.db.QueryRow(ctx, `
		SELECT payload FROM curation_job_snapshots WHERE job_id = $1`,
		jobID,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read job snapshot: %w", err)
	}
	return payload, nil
}
