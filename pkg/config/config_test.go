package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseYAML = `
port: "3480"
index_url: "http://localhost:8983/solr/fascinator"
curation:
  system: "redbox"
  manager_url: "http://localhost:9000/curation"
  poll_interval: 30s
  relations:
    foaf:Person:
      path: ["contributor_ci.1"]
      identifier: ["dc:identifier"]
      relationship: "hasAssociationWith"
      system: "mint"
  reverse_mappings:
    isPartOf: "hasPart"
  remote_systems:
    mint:
      relationships_url: "http://mint.example/api/relations?source=redbox"
      relationships_by_oid_url: "http://mint.example/api/relations/oid?source=redbox"
      publish_url: "http://mint.example/api/publish"
  supported_types:
    dataset: "redbox"
    party: "mint"
  identifier_properties:
    doi: "doi_identifier"
storage:
  root: "/var/lib/curation/storage"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, baseYAML), "test")
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Version)
	assert.Equal(t, "http://localhost:3480", cfg.BaseURL)
	assert.Equal(t, "redbox", cfg.Curation.System)
	assert.Equal(t, 30*time.Second, cfg.Curation.PollInterval)
	assert.Equal(t, ".tfpackage", cfg.Storage.DataPayloadSuffix)
	assert.Equal(t, "metadata.json", cfg.Storage.MetadataPayloadName)
	assert.Equal(t, "hasAssociationWith", cfg.Curation.DefaultRelationship)

	rule, ok := cfg.Curation.Relations["foaf:Person"]
	require.True(t, ok)
	assert.Equal(t, []string{"contributor_ci.1"}, rule.Path)
	assert.Equal(t, "mint", rule.System)

	assert.Equal(t, "hasPart", cfg.Curation.ReverseMappings["isPartOf"])
	assert.Equal(t, "http://mint.example/api/publish", cfg.Curation.RemoteSystems["mint"].PublishURL)
}

func TestLoadFile_RelationsFileOverridesInline(t *testing.T) {
	relPath := filepath.Join(t.TempDir(), "relations.yaml")
	require.NoError(t, os.WriteFile(relPath, []byte(`
dc:relation:
  path: ["related"]
  identifier: ["id"]
  relationship_path: ["predicate"]
  exclude_condition:
    path: ["origin"]
    starts_with: "on"
`), 0o600))

	cfg, err := LoadFile(writeConfig(t, baseYAML+"\n  relations_file: \""+relPath+"\""), "test")
	require.NoError(t, err)

	require.Len(t, cfg.Curation.Relations, 1)
	rule := cfg.Curation.Relations["dc:relation"]
	assert.Equal(t, []string{"predicate"}, rule.RelationshipPath)
	assert.True(t, rule.ExcludeCondition.Enabled())
}

func TestLoadFile_RejectsMissingManagerURL(t *testing.T) {
	_, err := LoadFile(writeConfig(t, `
port: "3480"
index_url: "http://localhost:8983/solr"
`), "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "manager_url")
}

func TestLoadFile_RejectsUnmappedSupportedType(t *testing.T) {
	_, err := LoadFile(writeConfig(t, `
port: "3480"
index_url: "http://localhost:8983/solr"
curation:
  manager_url: "http://localhost:9000/curation"
  supported_types:
    service: "vivo"
`), "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vivo")
}

func TestExcludeCondition_Enabled(t *testing.T) {
	assert.False(t, ExcludeCondition{}.Enabled())
	assert.False(t, ExcludeCondition{Path: []string{"a"}}.Enabled())
	assert.True(t, ExcludeCondition{Path: []string{"a"}, Value: "x"}.Enabled())
	assert.True(t, ExcludeCondition{Path: []string{"a"}, StartsWith: "x"}.Enabled())
}
