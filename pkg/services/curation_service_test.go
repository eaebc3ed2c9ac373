package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/curation-engine/pkg/apperrors"
	"github.com/ekaya-inc/curation-engine/pkg/models"
	"github.com/ekaya-inc/curation-engine/pkg/storage"
)

func newTestCurationService(t *testing.T, store *storage.MemoryStorage, manager *mockJobManager, repo *mockJobRepository) CurationService {
	t.Helper()
	resolver := newResolver(store, &mockIdentifierResolver{}, &mockRemoteRelations{}, resolverConfig())
	builder := NewMessageBuilder(store, storageConfig(), zap.NewNop())
	return NewCurationService(resolver, builder, manager, repo, nil, zap.NewNop())
}

func TestRequestCuration_PersistsJobWithAllMembers(t *testing.T) {
	store := storage.NewMemoryStorage()
	// The root is already curated, so it is excluded from the message but
	// must still appear as a job member.
	seedLocalRecord(t, store, "R",
		`{"collector": {"orcid": "EXT1"}, "title": "x"}`,
		`{"curation": {"alreadyCurated": true}}`)

	manager := &mockJobManager{nextJobID: "J1"}
	repo := newMockJobRepository()

	job, err := newTestCurationService(t, store, manager, repo).RequestCuration(context.Background(), "R")
	require.NoError(t, err)

	assert.Equal(t, "J1", job.ExternalJobID)
	assert.Equal(t, models.JobStatusInProgress, job.Status)
	assert.ElementsMatch(t, []string{"R", "EXT1"}, job.Members)

	// The excluded root is absent from the submitted message.
	require.NotNil(t, manager.createdWith)
	require.Len(t, manager.createdWith.Records, 1)
	assert.Equal(t, "EXT1", manager.createdWith.Records[0]["identifier"])

	persisted, err := repo.ListInProgress(context.Background())
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	assert.Equal(t, job.ID, persisted[0].ID)
}

func TestRequestCuration_SubmissionFailurePersistsNothing(t *testing.T) {
	store := storage.NewMemoryStorage()
	seedLocalRecord(t, store, "R", `{"title": "x"}`, builderRecordConfig)

	manager := &mockJobManager{createErr: assert.AnError}
	repo := newMockJobRepository()

	_, err := newTestCurationService(t, store, manager, repo).RequestCuration(context.Background(), "R")
	require.Error(t, err)

	persisted, err := repo.ListInProgress(context.Background())
	require.NoError(t, err)
	assert.Empty(t, persisted)
}

func TestRequestCuration_UnknownRoot(t *testing.T) {
	store := storage.NewMemoryStorage()
	manager := &mockJobManager{nextJobID: "J1"}
	repo := newMockJobRepository()

	_, err := newTestCurationService(t, store, manager, repo).RequestCuration(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
