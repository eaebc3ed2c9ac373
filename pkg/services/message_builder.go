package services

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/curation-engine/pkg/config"
	"github.com/ekaya-inc/curation-engine/pkg/jsonutil"
	"github.com/ekaya-inc/curation-engine/pkg/models"
	"github.com/ekaya-inc/curation-engine/pkg/storage"
)

// MessageBuilder converts a resolved relationship map into the request body
// submitted to the curation manager.
type MessageBuilder interface {
	// Build renders one record item per local participant that still needs
	// curation. Participants marked alreadyCurated by their record config are
	// excluded; non-local entries pass through verbatim. A storage or parse
	// failure excludes that participant only.
	Build(ctx context.Context, graph models.RelationshipMap) (*models.CurationMessage, error)
}

type messageBuilder struct {
	storage    storage.Storage
	storageCfg config.StorageConfig
	logger     *zap.Logger
}

func NewMessageBuilder(store storage.Storage, storageCfg config.StorageConfig, logger *zap.Logger) MessageBuilder {
	return &messageBuilder{
		storage:    store,
		storageCfg: storageCfg,
		logger:     logger.Named("message-builder"),
	}
}

var _ MessageBuilder = (*messageBuilder)(nil)

func (b *messageBuilder) Build(ctx context.Context, graph models.RelationshipMap) (*models.CurationMessage, error) {
	message := &models.CurationMessage{Records: []map[string]any{}}

	for _, key := range graph.Keys() {
		entry := graph[key]
		if !entry.IsSelf() {
			record, err := entryAsMap(entry)
			if err != nil {
				b.logger.Error("failed to encode relationship entry",
					zap.String("participant", key),
					zap.Error(err))
				continue
			}
			message.Records = append(message.Records, record)
			continue
		}

		oid := entry.ID
		metadata, err := b.loadData(ctx, oid)
		if err != nil {
			b.logger.Error("excluding record with unreadable data",
				zap.String("oid", oid),
				zap.Error(err))
			continue
		}
		recordCfg, err := b.loadRecordConfig(ctx, oid)
		if err != nil {
			b.logger.Error("excluding record with unreadable config",
				zap.String("oid", oid),
				zap.Error(err))
			continue
		}

		if alreadyCurated(recordCfg) {
			b.logger.Debug("record already curated, excluding from message", zap.String("oid", oid))
			continue
		}

		message.Records = append(message.Records, buildRecordItem(oid, metadata, recordCfg))
	}

	return message, nil
}

// buildRecordItem assembles the wire item for one local record: the general
// identifier-mapping fields rendered against the flattened metadata, plus the
// declared required identifier types with their per-type mapping metadata.
func buildRecordItem(oid string, metadata, recordCfg map[string]any) map[string]any {
	values := jsonutil.Flatten(metadata)

	record := map[string]any{"oid": oid}
	if general, ok := jsonutil.Path(recordCfg, "curation", "identifierDataMapping", "general").(map[string]any); ok {
		for key, template := range general {
			record[key] = jsonutil.Substitute(jsonutil.Stringify(template), values)
		}
	}

	required := []models.RequiredIdentifier{}
	if declared, ok := jsonutil.Path(recordCfg, "curation", "requiredIdentifiers").([]any); ok {
		for _, item := range declared {
			identifierType, ok := item.(string)
			if !ok {
				continue
			}
			info := models.RequiredIdentifier{IdentifierType: identifierType}
			if mappings, ok := jsonutil.Path(recordCfg, "curation", "identifierDataMapping", identifierType).(map[string]any); ok {
				info.Metadata = make(map[string]string, len(mappings))
				for key, template := range mappings {
					info.Metadata[key] = jsonutil.Substitute(jsonutil.Stringify(template), values)
				}
			}
			required = append(required, info)
		}
	}
	record["required_identifiers"] = required

	return record
}

// alreadyCurated reads curation.alreadyCurated from the record config,
// defaulting to true so records without an explicit opt-in are never
// re-submitted.
func alreadyCurated(recordCfg map[string]any) bool {
	value := jsonutil.Path(recordCfg, "curation", "alreadyCurated")
	if flag, ok := value.(bool); ok {
		return flag
	}
	return true
}

func (b *messageBuilder) loadData(ctx context.Context, oid string) (map[string]any, error) {
	obj, err := b.storage.GetObject(ctx, oid)
	if err != nil {
		return nil, err
	}
	pid, err := storage.DataPayloadID(obj, b.storageCfg.DataPayloadSuffix, b.storageCfg.MetadataPayloadName)
	if err != nil {
		return nil, err
	}
	raw, err := obj.ReadPayload(pid)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse data payload %s: %w", pid, err)
	}
	return doc, nil
}

// loadRecordConfig follows the jsonConfigOid/jsonConfigPid metadata
// properties to the record's curation configuration payload.
func (b *messageBuilder) loadRecordConfig(ctx context.Context, oid string) (map[string]any, error) {
	obj, err := b.storage.GetObject(ctx, oid)
	if err != nil {
		return nil, err
	}
	props, err := obj.Properties()
	if err != nil {
		return nil, err
	}
	configOid := props["jsonConfigOid"]
	configPid := props["jsonConfigPid"]
	if configOid == "" || configPid == "" {
		return nil, fmt.Errorf("record %s has no curation config reference", oid)
	}

	configObj, err := b.storage.GetObject(ctx, configOid)
	if err != nil {
		return nil, err
	}
	raw, err := configObj.ReadPayload(configPid)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse curation config %s: %w", configOid, err)
	}
	return doc, nil
}

func entryAsMap(entry models.RelationshipEntry) (map[string]any, error) {
	encoded, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	var record map[string]any
	if err := json.Unmarshal(encoded, &record); err != nil {
		return nil, err
	}
	return record, nil
}
