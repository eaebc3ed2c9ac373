package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for curation-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3480"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Curation pipeline configuration
	Curation CurationConfig `yaml:"curation"`

	// Storage holds local digital-object storage settings.
	Storage StorageConfig `yaml:"storage"`

	// IndexURL is the base URL of the local search index.
	IndexURL string `yaml:"index_url" env:"INDEX_URL" env-default:""`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"curation"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"curation_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// StorageConfig selects where digital objects live and how their data payload
// is recognised.
type StorageConfig struct {
	// Root is the directory holding one subdirectory per object.
	Root string `yaml:"root" env:"STORAGE_ROOT" env-default:"./storage"`
	// DataPayloadSuffix marks a record's editable data payload.
	DataPayloadSuffix string `yaml:"data_payload_suffix" env:"STORAGE_DATA_PAYLOAD_SUFFIX" env-default:".tfpackage"`
	// MetadataPayloadName is the well-known payload name used by records
	// ingested from name-authority systems, which carry no form data.
	MetadataPayloadName string `yaml:"metadata_payload_name" env:"STORAGE_METADATA_PAYLOAD_NAME" env-default:"metadata.json"`
}

// CurationConfig drives graph resolution, submission and publish fan-out.
type CurationConfig struct {
	// System is the identifier this deployment uses for itself in
	// relationship entries.
	System string `yaml:"system" env:"CURATION_SYSTEM" env-default:"redbox"`

	// ManagerURL is the external curation manager's base URL.
	ManagerURL string `yaml:"manager_url" env:"CURATION_MANAGER_URL" env-default:""`

	// PollInterval is how often IN_PROGRESS jobs are polled.
	PollInterval time.Duration `yaml:"poll_interval" env:"CURATION_POLL_INTERVAL" env-default:"60s"`

	// DefaultRemoteSystem is the owning system assumed by relation rules
	// that do not name one.
	DefaultRemoteSystem string `yaml:"default_remote_system" env:"CURATION_DEFAULT_REMOTE_SYSTEM" env-default:"mint"`

	// DefaultRelationship is the predicate used when a rule's relationship
	// path yields nothing.
	DefaultRelationship string `yaml:"default_relationship" env:"CURATION_DEFAULT_RELATIONSHIP" env-default:"hasAssociationWith"`

	// RelationsFile optionally points at a standalone YAML rule catalog.
	// When set it replaces the inline Relations map.
	RelationsFile string `yaml:"relations_file" env:"CURATION_RELATIONS_FILE" env-default:""`

	// Relations is the rule catalog, keyed by rule (field) name.
	Relations map[string]RelationRule `yaml:"relations"`

	// ReverseMappings maps a relationship predicate to its reverse.
	ReverseMappings map[string]string `yaml:"reverse_mappings"`

	// RemoteSystems maps a system id to its HTTP endpoints.
	RemoteSystems map[string]RemoteSystem `yaml:"remote_systems"`

	// SupportedTypes maps a decided record's type to the system that owns
	// records of that type.
	SupportedTypes map[string]string `yaml:"supported_types"`

	// IdentifierProperties maps an identifier type to the object metadata
	// property the curated value is written to.
	IdentifierProperties map[string]string `yaml:"identifier_properties"`
}

// RelationRule describes how to find one kind of related record inside a
// record's form data.
type RelationRule struct {
	// Path locates the base node (object or array of objects) the rule
	// inspects.
	Path []string `yaml:"path"`

	// Identifier locates the related record's identifier inside the base
	// node.
	Identifier []string `yaml:"identifier"`

	// Relationship is a static predicate. When empty, RelationshipPath is
	// consulted instead.
	Relationship string `yaml:"relationship"`

	// RelationshipPath locates the predicate inside the base node.
	RelationshipPath []string `yaml:"relationship_path"`

	// ExcludeCondition suppresses the relation when it matches.
	ExcludeCondition ExcludeCondition `yaml:"exclude_condition"`

	// Description is attached verbatim to produced entries.
	Description string `yaml:"description"`

	// System is the owning system of records this rule discovers.
	// Defaults to CurationConfig.DefaultRemoteSystem.
	System string `yaml:"system"`

	// Optional marks relations curation may proceed without.
	Optional bool `yaml:"optional"`
}

// ExcludeCondition matches a value inside the base node either exactly or by
// prefix. Either match excludes the relation.
type ExcludeCondition struct {
	Path       []string `yaml:"path"`
	Value      string   `yaml:"value"`
	StartsWith string   `yaml:"starts_with"`
}

// Enabled reports whether the condition is configured at all.
func (c ExcludeCondition) Enabled() bool {
	return len(c.Path) > 0 && (c.Value != "" || c.StartsWith != "")
}

// RemoteSystem holds the configured endpoints of one named remote system.
// The relationship URLs carry their own query strings; lookup keys are
// appended as additional parameters.
type RemoteSystem struct {
	// RelationshipsURL answers identifier-based subgraph lookups.
	RelationshipsURL string `yaml:"relationships_url"`
	// RelationshipsByOIDURL answers lookups by the remote system's own id.
	RelationshipsByOIDURL string `yaml:"relationships_by_oid_url"`
	// PublishURL receives decided records owned by the remote system.
	PublishURL string `yaml:"publish_url"`
}

// Load reads configuration from config.yaml with environment variable
// overrides. The version parameter is injected at build time and set on the
// returned Config.
func Load(version string) (*Config, error) {
	return LoadFile("config.yaml", version)
}

// LoadFile is Load with an explicit config file path.
func LoadFile(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if cfg.Curation.RelationsFile != "" {
		rules, err := loadRelationsFile(cfg.Curation.RelationsFile)
		if err != nil {
			return nil, err
		}
		cfg.Curation.Relations = rules
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = (&url.URL{
			Scheme: "http",
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

// loadRelationsFile reads a standalone rule catalog:
// a YAML mapping of rule name to RelationRule.
func loadRelationsFile(path string) (map[string]RelationRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read relations file: %w", err)
	}
	var rules map[string]RelationRule
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse relations file %s: %w", path, err)
	}
	return rules, nil
}

// Validate checks cross-field consistency. Rule-level problems are not
// validated here: a broken rule is skipped (and logged) at resolution time so
// one bad rule cannot keep the service down.
func (c *Config) Validate() error {
	if c.Curation.ManagerURL == "" {
		return fmt.Errorf("curation.manager_url is required")
	}
	if c.IndexURL == "" {
		return fmt.Errorf("index_url is required")
	}
	if c.Curation.PollInterval <= 0 {
		return fmt.Errorf("curation.poll_interval must be positive")
	}

	for recordType, system := range c.Curation.SupportedTypes {
		if system == c.Curation.System {
			continue
		}
		if _, ok := c.Curation.RemoteSystems[system]; !ok {
			return fmt.Errorf("supported type %q maps to system %q which has no remote_systems entry", recordType, system)
		}
	}

	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
