package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/curation-engine/pkg/apperrors"
	"github.com/ekaya-inc/curation-engine/pkg/config"
	"github.com/ekaya-inc/curation-engine/pkg/models"
)

func TestRelationsByIdentifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "detail", r.URL.Query().Get("mode"))
		assert.Equal(t, "http://orcid.org/0000-0001", r.URL.Query().Get("identifier"))
		_, _ = w.Write([]byte(`{"records": [` +
			`{"identifier": "http://orcid.org/0000-0001", "relationship": "hasCollector", "curatedPid": "hdl:1/9"}]}`))
	}))
	defer srv.Close()

	client := NewClient(map[string]config.RemoteSystem{
		"mint": {RelationshipsURL: srv.URL + "/relations?mode=detail"},
	}, zap.NewNop())

	entries, err := client.RelationsByIdentifier(context.Background(), "mint", "http://orcid.org/0000-0001")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "hasCollector", entries[0].Relationship)
	assert.Equal(t, "hdl:1/9", entries[0].Extra["curatedPid"])
}

func TestRelationsByOID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "mint-77", r.URL.Query().Get("oid"))
		_, _ = w.Write([]byte(`{"rel-1": {"oid": "mint-77", "relationship": "isManagedBy"}}`))
	}))
	defer srv.Close()

	client := NewClient(map[string]config.RemoteSystem{
		"mint": {RelationshipsByOIDURL: srv.URL + "/relations?by=oid"},
	}, zap.NewNop())

	entries, err := client.RelationsByOID(context.Background(), "mint", "mint-77")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "mint-77", entries[0].OID)
}

func TestRelations_UnknownSystem(t *testing.T) {
	client := NewClient(nil, zap.NewNop())
	_, err := client.RelationsByIdentifier(context.Background(), "vault", "id")
	assert.ErrorIs(t, err, apperrors.ErrUnmappedSystem)
}

func TestPublish(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(map[string]config.RemoteSystem{
		"mint": {PublishURL: srv.URL + "/publish"},
	}, zap.NewNop())

	items := []models.PublishItem{{Type: "party", OID: "mint-77"}}
	require.NoError(t, client.Publish(context.Background(), "mint", items))

	var sent struct {
		Records []models.PublishItem `json:"records"`
	}
	require.NoError(t, json.Unmarshal(gotBody, &sent))
	require.Len(t, sent.Records, 1)
	assert.Equal(t, "mint-77", sent.Records[0].OID)
}

func TestPublish_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(map[string]config.RemoteSystem{
		"mint": {PublishURL: srv.URL + "/publish"},
	}, zap.NewNop())

	err := client.Publish(context.Background(), "mint", nil)
	assert.ErrorContains(t, err, "status 500")
}
