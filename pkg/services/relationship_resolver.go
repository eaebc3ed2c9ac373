package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/curation-engine/pkg/config"
	"github.com/ekaya-inc/curation-engine/pkg/jsonutil"
	"github.com/ekaya-inc/curation-engine/pkg/models"
	"github.com/ekaya-inc/curation-engine/pkg/storage"
)

// IdentifierResolver maps an external identifier to a local object id.
type IdentifierResolver interface {
	ResolveIdentifier(ctx context.Context, identifier string) (string, error)
}

// RemoteRelationsClient fetches the relationship subgraph a remote system
// holds for one of its records.
type RemoteRelationsClient interface {
	RelationsByIdentifier(ctx context.Context, system, identifier string) ([]models.RelationshipEntry, error)
	RelationsByOID(ctx context.Context, system, oid string) ([]models.RelationshipEntry, error)
}

// RelationshipResolver discovers every record transitively related to a
// starting record, across local storage and remote systems.
type RelationshipResolver interface {
	// ResolveGraph returns the deduplicated participant map reachable from
	// rootOID. A failure reading the root record is fatal; any other branch
	// failure is logged and contributes no relations.
	ResolveGraph(ctx context.Context, rootOID string) (models.RelationshipMap, error)
}

type relationshipResolver struct {
	storage    storage.Storage
	index      IdentifierResolver
	remote     RemoteRelationsClient
	cfg        config.CurationConfig
	storageCfg config.StorageConfig
	logger     *zap.Logger
}

func NewRelationshipResolver(
	store storage.Storage,
	index IdentifierResolver,
	remote RemoteRelationsClient,
	cfg config.CurationConfig,
	storageCfg config.StorageConfig,
	logger *zap.Logger,
) RelationshipResolver {
	return &relationshipResolver{
		storage:    store,
		index:      index,
		remote:     remote,
		cfg:        cfg,
		storageCfg: storageCfg,
		logger:     logger.Named("relationship-resolver"),
	}
}

var _ RelationshipResolver = (*relationshipResolver)(nil)

func (r *relationshipResolver) ResolveGraph(ctx context.Context, rootOID string) (models.RelationshipMap, error) {
	graph := models.RelationshipMap{}
	graph.AddSelf(rootOID)

	// Worklist of local object ids still to expand. Membership in the graph
	// doubles as the visited set, so cycles terminate.
	worklist := []string{rootOID}
	for len(worklist) > 0 {
		oid := worklist[0]
		worklist = worklist[1:]

		relations, err := r.relationsForObject(ctx, oid)
		if err != nil {
			if oid == rootOID {
				return nil, fmt.Errorf("failed to resolve relationships of %s: %w", oid, err)
			}
			r.logger.Error("skipping unreadable related record",
				zap.String("oid", oid),
				zap.Error(err))
			continue
		}

		for _, rel := range relations {
			system := rel.System
			if system == "" {
				system = r.cfg.System
			}

			if system == r.cfg.System {
				relOID := rel.OID
				if relOID == "" {
					relOID, err = r.index.ResolveIdentifier(ctx, strings.TrimSpace(rel.Identifier))
					if err != nil {
						r.logger.Error("cannot resolve local relation",
							zap.String("from", oid),
							zap.String("identifier", rel.Identifier),
							zap.Error(err))
						continue
					}
				}
				if graph.AddSelf(relOID) {
					worklist = append(worklist, relOID)
				}
				continue
			}

			if _, seen := graph[rel.Key()]; seen {
				continue
			}

			// The remote system is authoritative for its own subgraph, so
			// its entries are merged as-is with no further expansion. The
			// locally derived entry is kept only as a fallback for when the
			// remote answer does not describe the participant itself.
			var entries []models.RelationshipEntry
			if rel.OID != "" {
				entries, err = r.remote.RelationsByOID(ctx, system, rel.OID)
			} else {
				entries, err = r.remote.RelationsByIdentifier(ctx, system, strings.TrimSpace(rel.Identifier))
			}
			if err != nil {
				r.logger.Error("remote relation lookup failed",
					zap.String("system", system),
					zap.String("identifier", rel.Identifier),
					zap.Error(err))
			}
			for _, entry := range entries {
				graph.Add(entry)
			}
			graph.Add(rel)
		}
	}

	return graph, nil
}

// relationsForObject returns the relationship entries of one local record.
// Form-data records get the rule catalog applied and their stored
// relationships array rewritten when new relations were found. Records
// ingested without form data carry a pre-computed relationships array, which
// is trusted as-is and tagged with the local system.
func (r *relationshipResolver) relationsForObject(ctx context.Context, oid string) ([]models.RelationshipEntry, error) {
	obj, err := r.storage.GetObject(ctx, oid)
	if err != nil {
		return nil, err
	}
	pid, err := storage.DataPayloadID(obj, r.storageCfg.DataPayloadSuffix, r.storageCfg.MetadataPayloadName)
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

	if !strings.HasSuffix(pid, r.storageCfg.DataPayloadSuffix) {
		entries, err := entriesFromDoc(doc)
		if err != nil {
			return nil, err
		}
		for i := range entries {
			entries[i].System = r.cfg.System
		}
		return entries, nil
	}

	stored, err := entriesFromDoc(doc)
	if err != nil {
		return nil, err
	}

	changed := false
	for _, name := range sortedRuleNames(r.cfg.Relations) {
		rule := r.cfg.Relations[name]
		base := jsonutil.Path(doc, rule.Path...)
		for _, node := range baseNodes(base) {
			entry, ok := r.applyRule(name, rule, node)
			if !ok {
				continue
			}
			if isKnownRelation(stored, entry) {
				continue
			}
			r.logger.Info("adding relation",
				zap.String("oid", oid),
				zap.String("field", name),
				zap.String("identifier", entry.Identifier))
			stored = append(stored, entry)
			changed = true
		}
	}

	if changed {
		if err := writeRelations(obj, pid, doc, stored); err != nil {
			return nil, fmt.Errorf("failed to store relationships of %s: %w", oid, err)
		}
	}

	return stored, nil
}

// applyRule evaluates one rule against one base node. It reports false when
// the node yields no relation, whether by exclusion, a missing identifier or
// a broken rule configuration.
func (r *relationshipResolver) applyRule(name string, rule config.RelationRule, node map[string]any) (models.RelationshipEntry, bool) {
	if rule.ExcludeCondition.Enabled() {
		value := jsonutil.StringAt(node, rule.ExcludeCondition.Path...)
		if value != "" && value == rule.ExcludeCondition.Value {
			r.logger.Info("relation excluded by configured value", zap.String("field", name))
			return models.RelationshipEntry{}, false
		}
		if value != "" && rule.ExcludeCondition.StartsWith != "" &&
			strings.HasPrefix(value, rule.ExcludeCondition.StartsWith) {
			r.logger.Info("relation excluded by configured prefix", zap.String("field", name))
			return models.RelationshipEntry{}, false
		}
	}

	if len(rule.Identifier) == 0 {
		r.logger.Error("ignoring relationship rule with no identifier path", zap.String("field", name))
		return models.RelationshipEntry{}, false
	}
	identifier := strings.TrimSpace(jsonutil.StringAt(node, rule.Identifier...))
	if identifier == "" {
		r.logger.Info("relation has no identifier, ignoring", zap.String("field", name))
		return models.RelationshipEntry{}, false
	}

	if rule.Relationship == "" && len(rule.RelationshipPath) == 0 {
		r.logger.Error("ignoring relationship rule with no predicate", zap.String("field", name))
		return models.RelationshipEntry{}, false
	}
	predicate := rule.Relationship
	if predicate == "" {
		predicate = jsonutil.StringAt(node, rule.RelationshipPath...)
		if predicate == "" {
			predicate = r.cfg.DefaultRelationship
		}
	}

	reverse, ok := r.cfg.ReverseMappings[predicate]
	if !ok {
		reverse = r.cfg.DefaultRelationship
	}

	system := rule.System
	if system == "" {
		system = r.cfg.DefaultRemoteSystem
	}

	return models.RelationshipEntry{
		Field:               name,
		Identifier:          identifier,
		Relationship:        predicate,
		ReverseRelationship: reverse,
		Description:         rule.Description,
		System:              system,
		Authority:           true,
		Optional:            rule.Optional,
	}, true
}

// isKnownRelation reports whether the stored array already carries the
// candidate. An OID match wins outright; identifier matches also need the
// same source field, so one record may be linked through several fields.
func isKnownRelation(stored []models.RelationshipEntry, candidate models.RelationshipEntry) bool {
	if candidate.OID != "" {
		for _, known := range stored {
			if known.OID == candidate.OID {
				return true
			}
		}
		return false
	}
	for _, known := range stored {
		if known.Identifier != "" &&
			known.Identifier == candidate.Identifier &&
			known.Field == candidate.Field {
			return true
		}
	}
	return false
}

func sortedRuleNames(rules map[string]config.RelationRule) []string {
	names := make([]string, 0, len(rules))
	for name := range rules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// baseNodes normalizes a rule's base value: a single object or an array of
// objects, anything else contributes nothing.
func baseNodes(base any) []map[string]any {
	switch v := base.(type) {
	case map[string]any:
		return []map[string]any{v}
	case []any:
		nodes := make([]map[string]any, 0, len(v))
		for _, item := range v {
			if obj, ok := item.(map[string]any); ok {
				nodes = append(nodes, obj)
			}
		}
		return nodes
	default:
		return nil
	}
}

func entriesFromDoc(doc map[string]any) ([]models.RelationshipEntry, error) {
	raw, ok := doc["relationships"]
	if !ok {
		return nil, nil
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode relationships: %w", err)
	}
	var entries []models.RelationshipEntry
	if err := json.Unmarshal(encoded, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse relationships: %w", err)
	}
	return entries, nil
}

// writeRelations rewrites the record's relationships array in place and
// stores the data payload back.
func writeRelations(obj storage.Object, pid string, doc map[string]any, entries []models.RelationshipEntry) error {
	encoded, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	var plain []any
	if err := json.Unmarshal(encoded, &plain); err != nil {
		return err
	}
	doc["relationships"] = plain

	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return obj.WritePayload(pid, data)
}
