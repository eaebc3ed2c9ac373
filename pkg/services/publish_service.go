package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/ekaya-inc/curation-engine/pkg/config"
	"github.com/ekaya-inc/curation-engine/pkg/metrics"
	"github.com/ekaya-inc/curation-engine/pkg/models"
	"github.com/ekaya-inc/curation-engine/pkg/storage"
)

// Reindexer refreshes a record in the local search index.
type Reindexer interface {
	Reindex(ctx context.Context, oid string) error
}

// RemotePublisher forwards decided records to a remote system.
type RemotePublisher interface {
	Publish(ctx context.Context, system string, items []models.PublishItem) error
}

// PublishService fans a completed job's decided records out to whichever
// system owns each one.
type PublishService interface {
	// Publish partitions items by their configured owning system. Local
	// records get their assigned identifiers written into metadata and are
	// re-indexed; each remote partition goes out as one batch. Failures are
	// collected per item or partition with no rollback.
	Publish(ctx context.Context, items []models.PublishItem) error
}

type publishService struct {
	storage storage.Storage
	index   Reindexer
	remote  RemotePublisher
	cfg     config.CurationConfig
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewPublishService(
	store storage.Storage,
	index Reindexer,
	remote RemotePublisher,
	cfg config.CurationConfig,
	m *metrics.Metrics,
	logger *zap.Logger,
) PublishService {
	return &publishService{
		storage: store,
		index:   index,
		remote:  remote,
		cfg:     cfg,
		metrics: m,
		logger:  logger.Named("publish-service"),
	}
}

var _ PublishService = (*publishService)(nil)

func (s *publishService) Publish(ctx context.Context, items []models.PublishItem) error {
	var local []models.PublishItem
	remote := map[string][]models.PublishItem{}

	for _, item := range items {
		system, ok := s.cfg.SupportedTypes[item.Type]
		if !ok {
			s.logger.Error("dropping record of unmapped type",
				zap.String("type", item.Type),
				zap.String("oid", item.OID))
			continue
		}
		if system == s.cfg.System {
			local = append(local, item)
		} else {
			remote[system] = append(remote[system], item)
		}
	}

	var errs []error
	for _, item := range local {
		if err := s.publishLocal(ctx, item); err != nil {
			s.logger.Error("failed to publish local record",
				zap.String("oid", item.OID),
				zap.Error(err))
			errs = append(errs, err)
			continue
		}
		s.metrics.IncrementPublished("local", 1)
	}

	systems := make([]string, 0, len(remote))
	for system := range remote {
		systems = append(systems, system)
	}
	sort.Strings(systems)
	for _, system := range systems {
		batch := remote[system]
		if err := s.remote.Publish(ctx, system, batch); err != nil {
			s.logger.Error("failed to publish to remote system",
				zap.String("system", system),
				zap.Int("records", len(batch)),
				zap.Error(err))
			errs = append(errs, err)
			continue
		}
		s.metrics.IncrementPublished(system, len(batch))
	}

	return errors.Join(errs...)
}

// publishLocal writes the assigned identifiers into the record's metadata
// properties, flags it published and re-indexes it.
func (s *publishService) publishLocal(ctx context.Context, item models.PublishItem) error {
	obj, err := s.storage.GetObject(ctx, item.OID)
	if err != nil {
		return err
	}

	for _, identifier := range item.RequiredIdentifiers {
		property, ok := s.cfg.IdentifierProperties[identifier.IdentifierType]
		if !ok {
			s.logger.Warn("no metadata property configured for identifier type",
				zap.String("identifier_type", identifier.IdentifierType),
				zap.String("oid", item.OID))
			continue
		}
		if err := obj.SetProperty(property, identifier.Identifier); err != nil {
			return fmt.Errorf("failed to set %s: %w", property, err)
		}
	}
	if err := obj.SetProperty("published", "true"); err != nil {
		return fmt.Errorf("failed to set published flag: %w", err)
	}
	if err := obj.SaveProperties(); err != nil {
		return fmt.Errorf("failed to save metadata of %s: %w", item.OID, err)
	}

	if err := s.index.Reindex(ctx, item.OID); err != nil {
		return fmt.Errorf("failed to reindex %s: %w", item.OID, err)
	}
	return nil
}
