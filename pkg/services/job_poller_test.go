package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/curation-engine/pkg/models"
)

func seedInProgressJob(t *testing.T, repo *mockJobRepository, externalJobID string) *models.CurationJob {
	t.Helper()
	job := &models.CurationJob{
		ExternalJobID: externalJobID,
		Status:        models.JobStatusInProgress,
		Members:       []string{"R"},
	}
	require.NoError(t, repo.Create(context.Background(), job))
	return job
}

func TestPollOnce_CompletedJobPublishesAndTransitions(t *testing.T) {
	repo := newMockJobRepository()
	job := seedInProgressJob(t, repo, "J1")

	items := []models.PublishItem{{Type: "dataset", OID: "R"}}
	raw := []byte(`{"jobId": "J1", "jobStatus": "COMPLETED"}`)
	manager := &mockJobManager{
		statusByJobID: map[string]*models.JobStatusResponse{
			"J1": {JobStatus: "COMPLETED", JobItems: items},
		},
		rawByJobID: map[string][]byte{"J1": raw},
	}
	publisher := &mockPublisher{}

	NewJobPoller(repo, manager, publisher, nil, zap.NewNop()).PollOnce(context.Background())

	require.Len(t, publisher.items, 1)
	assert.Equal(t, items, publisher.items[0])

	assert.Equal(t, models.JobStatusCompleted, repo.jobs[job.ID].Status)
	snapshot, err := repo.GetSnapshot(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, raw, snapshot)
}

func TestPollOnce_FailedJobTransitionsWithoutPublish(t *testing.T) {
	repo := newMockJobRepository()
	job := seedInProgressJob(t, repo, "J1")

	manager := &mockJobManager{
		statusByJobID: map[string]*models.JobStatusResponse{"J1": {JobStatus: "FAILED"}},
		rawByJobID:    map[string][]byte{"J1": []byte(`{"jobStatus": "FAILED"}`)},
	}
	publisher := &mockPublisher{}

	NewJobPoller(repo, manager, publisher, nil, zap.NewNop()).PollOnce(context.Background())

	assert.Empty(t, publisher.items)
	assert.Equal(t, models.JobStatusFailed, repo.jobs[job.ID].Status)
}

func TestPollOnce_MissingStatusIsFailure(t *testing.T) {
	repo := newMockJobRepository()
	job := seedInProgressJob(t, repo, "J1")

	manager := &mockJobManager{
		statusByJobID: map[string]*models.JobStatusResponse{"J1": {}},
		rawByJobID:    map[string][]byte{"J1": []byte(`{}`)},
	}

	NewJobPoller(repo, manager, &mockPublisher{}, nil, zap.NewNop()).PollOnce(context.Background())

	assert.Equal(t, models.JobStatusFailed, repo.jobs[job.ID].Status)
}

func TestPollOnce_TransportFailureLeavesJobInProgress(t *testing.T) {
	repo := newMockJobRepository()
	job := seedInProgressJob(t, repo, "J1")

	manager := &mockJobManager{statusErr: assert.AnError}

	NewJobPoller(repo, manager, &mockPublisher{}, nil, zap.NewNop()).PollOnce(context.Background())

	assert.Equal(t, models.JobStatusInProgress, repo.jobs[job.ID].Status)
	_, err := repo.GetSnapshot(context.Background(), job.ID)
	assert.Error(t, err)
}

func TestPollOnce_UnrecognizedStatusLeavesJobInProgress(t *testing.T) {
	repo := newMockJobRepository()
	job := seedInProgressJob(t, repo, "J1")

	manager := &mockJobManager{
		statusByJobID: map[string]*models.JobStatusResponse{"J1": {JobStatus: "PENDING_REVIEW"}},
		rawByJobID:    map[string][]byte{"J1": []byte(`{"jobStatus": "PENDING_REVIEW"}`)},
	}

	NewJobPoller(repo, manager, &mockPublisher{}, nil, zap.NewNop()).PollOnce(context.Background())

	assert.Equal(t, models.JobStatusInProgress, repo.jobs[job.ID].Status)
}

func TestPollOnce_PerJobIsolation(t *testing.T) {
	// J1's status check fails; J2 still completes on the same pass.
	repo := newMockJobRepository()
	broken := seedInProgressJob(t, repo, "J1")
	healthy := seedInProgressJob(t, repo, "J2")

	manager := &mockJobManager{
		statusByJobID: map[string]*models.JobStatusResponse{"J2": {JobStatus: "COMPLETED"}},
		rawByJobID:    map[string][]byte{"J2": []byte(`{"jobStatus": "COMPLETED"}`)},
	}

	NewJobPoller(repo, manager, &mockPublisher{}, nil, zap.NewNop()).PollOnce(context.Background())

	assert.Equal(t, models.JobStatusInProgress, repo.jobs[broken.ID].Status)
	assert.Equal(t, models.JobStatusCompleted, repo.jobs[healthy.ID].Status)
}

func TestPollOnce_SnapshotOverwritten(t *testing.T) {
	repo := newMockJobRepository()
	job := seedInProgressJob(t, repo, "J1")

	first := []byte(`{"jobStatus": "IN_PROGRESS", "pass": 1}`)
	manager := &mockJobManager{
		statusByJobID: map[string]*models.JobStatusResponse{"J1": {JobStatus: "IN_PROGRESS"}},
		rawByJobID:    map[string][]byte{"J1": first},
	}
	poller := NewJobPoller(repo, manager, &mockPublisher{}, nil, zap.NewNop())

	poller.PollOnce(context.Background())
	snapshot, err := repo.GetSnapshot(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, first, snapshot)

	second := []byte(`{"jobStatus": "IN_PROGRESS", "pass": 2}`)
	manager.rawByJobID["J1"] = second
	poller.PollOnce(context.Background())
	snapshot, err = repo.GetSnapshot(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, second, snapshot)
}
