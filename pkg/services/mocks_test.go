package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/ekaya-inc/curation-engine/pkg/apperrors"
	"github.com/ekaya-inc/curation-engine/pkg/models"
	"github.com/ekaya-inc/curation-engine/pkg/repositories"
)

// mockIdentifierResolver resolves identifiers from a fixed table.
type mockIdentifierResolver struct {
	oids map[string]string
}

func (m *mockIdentifierResolver) ResolveIdentifier(_ context.Context, identifier string) (string, error) {
	oid, ok := m.oids[identifier]
	if !ok {
		return "", fmt.Errorf("identifier %q: %w", identifier, apperrors.ErrNotFound)
	}
	return oid, nil
}

// mockRemoteRelations answers relation lookups from fixed tables and records
// publish calls.
type mockRemoteRelations struct {
	byIdentifier map[string][]models.RelationshipEntry
	byOID        map[string][]models.RelationshipEntry
	relationsErr error

	publishErr error
	published  map[string][]models.PublishItem
}

func (m *mockRemoteRelations) RelationsByIdentifier(_ context.Context, system, identifier string) ([]models.RelationshipEntry, error) {
	if m.relationsErr != nil {
		return nil, m.relationsErr
	}
	return m.byIdentifier[system+"/"+identifier], nil
}

func (m *mockRemoteRelations) RelationsByOID(_ context.Context, system, oid string) ([]models.RelationshipEntry, error) {
	if m.relationsErr != nil {
		return nil, m.relationsErr
	}
	return m.byOID[system+"/"+oid], nil
}

func (m *mockRemoteRelations) Publish(_ context.Context, system string, items []models.PublishItem) error {
	if m.publishErr != nil {
		return m.publishErr
	}
	if m.published == nil {
		m.published = map[string][]models.PublishItem{}
	}
	m.published[system] = append(m.published[system], items...)
	return nil
}

// mockReindexer records reindex calls.
type mockReindexer struct {
	reindexed []string
	err       error
}

func (m *mockReindexer) Reindex(_ context.Context, oid string) error {
	if m.err != nil {
		return m.err
	}
	m.reindexed = append(m.reindexed, oid)
	return nil
}

// mockJobManager plays the curation manager for submission and polling.
type mockJobManager struct {
	createErr     error
	nextJobID     string
	createdWith   *models.CurationMessage
	statusErr     error
	statusByJobID map[string]*models.JobStatusResponse
	rawByJobID    map[string][]byte
}

func (m *mockJobManager) CreateJob(_ context.Context, message *models.CurationMessage) (string, error) {
	if m.createErr != nil {
		return "", m.createErr
	}
	m.createdWith = message
	return m.nextJobID, nil
}

func (m *mockJobManager) JobStatus(_ context.Context, externalJobID string) (*models.JobStatusResponse, []byte, error) {
	if m.statusErr != nil {
		return nil, nil, m.statusErr
	}
	status, ok := m.statusByJobID[externalJobID]
	if !ok {
		return nil, nil, fmt.Errorf("unknown job %s", externalJobID)
	}
	return status, m.rawByJobID[externalJobID], nil
}

// mockJobRepository is an in-memory CurationJobRepository.
type mockJobRepository struct {
	mu        sync.Mutex
	jobs      map[uuid.UUID]*models.CurationJob
	snapshots map[uuid.UUID][]byte

	createErr   error
	snapshotErr error
}

func newMockJobRepository() *mockJobRepository {
	return &mockJobRepository{
		jobs:      map[uuid.UUID]*models.CurationJob{},
		snapshots: map[uuid.UUID][]byte{},
	}
}

var _ repositories.CurationJobRepository = (*mockJobRepository)(nil)

func (m *mockJobRepository) Create(_ context.Context, job *models.CurationJob) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	m.jobs[job.ID] = job
	return nil
}

func (m *mockJobRepository) ListInProgress(_ context.Context) ([]*models.CurationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var jobs []*models.CurationJob
	for _, job := range m.jobs {
		if job.Status == models.JobStatusInProgress {
			jobs = append(jobs, job)
		}
	}
	return jobs, nil
}

func (m *mockJobRepository) UpdateStatus(_ context.Context, id uuid.UUID, status models.JobStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	job.Status = status
	return nil
}

func (m *mockJobRepository) SaveSnapshot(_ context.Context, jobID uuid.UUID, payload []byte) error {
	if m.snapshotErr != nil {
		return m.snapshotErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[jobID] = payload
	return nil
}

func (m *mockJobRepository) GetSnapshot(_ context.Context, jobID uuid.UUID) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	payload, ok := m.snapshots[jobID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return payload, nil
}

// mockPublisher records fan-out invocations.
type mockPublisher struct {
	items [][]models.PublishItem
	err   error
}

func (m *mockPublisher) Publish(_ context.Context, items []models.PublishItem) error {
	m.items = append(m.items, items)
	return m.err
}
