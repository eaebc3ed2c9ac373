package models

import (
	"encoding/json"
	"sort"
	"strings"
)

// RelationshipEntry describes one edge of the relationship graph: a related
// record, the predicate linking it, and where it lives. Self entries (the
// record a graph was resolved from) carry only an ID.
//
// Remote systems attach fields of their own to relationship records. Those
// are preserved in Extra so entries can be forwarded verbatim.
type RelationshipEntry struct {
	ID                  string `json:"id,omitempty"`
	OID                 string `json:"oid,omitempty"`
	Field               string `json:"field,omitempty"`
	Identifier          string `json:"identifier,omitempty"`
	Relationship        string `json:"relationship,omitempty"`
	ReverseRelationship string `json:"reverseRelationship,omitempty"`
	Description         string `json:"description,omitempty"`
	System              string `json:"system,omitempty"`
	Authority           bool   `json:"authority,omitempty"`
	IsCurated           bool   `json:"isCurated,omitempty"`
	Optional            bool   `json:"optional,omitempty"`

	// Extra holds fields we do not model, round-tripped untouched.
	Extra map[string]any `json:"-"`
}

// knownEntryFields are the JSON keys owned by the typed fields above.
var knownEntryFields = map[string]struct{}{
	"id": {}, "oid": {}, "field": {}, "identifier": {}, "relationship": {},
	"reverseRelationship": {}, "description": {}, "system": {},
	"authority": {}, "isCurated": {}, "optional": {},
}

// Key returns the identity a relationship entry is deduplicated under:
// local id when known, otherwise the external identifier.
func (e RelationshipEntry) Key() string {
	if e.ID != "" {
		return e.ID
	}
	if e.OID != "" {
		return e.OID
	}
	return strings.TrimSpace(e.Identifier)
}

// IsSelf reports whether the entry is a self marker for a local record
// rather than a described relationship.
func (e RelationshipEntry) IsSelf() bool {
	return e.ID != ""
}

func (e RelationshipEntry) MarshalJSON() ([]byte, error) {
	type alias RelationshipEntry
	base, err := json.Marshal(alias(e))
	if err != nil {
		return nil, err
	}
	if len(e.Extra) == 0 {
		return base, nil
	}

	merged := make(map[string]any, len(e.Extra)+8)
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range e.Extra {
		if _, owned := knownEntryFields[k]; owned {
			continue
		}
		merged[k] = v
	}
	return json.Marshal(merged)
}

func (e *RelationshipEntry) UnmarshalJSON(data []byte) error {
	type alias RelationshipEntry
	var typed alias
	if err := json.Unmarshal(data, &typed); err != nil {
		return err
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for k := range knownEntryFields {
		delete(raw, k)
	}
	if len(raw) == 0 {
		raw = nil
	}

	*e = RelationshipEntry(typed)
	e.Extra = raw
	return nil
}

// RelationshipMap is the flat result of graph resolution: participant key to
// its relationship entry. Keys are unique; the first entry for a key wins.
type RelationshipMap map[string]RelationshipEntry

// Add stores the entry under its key. It reports false, without overwriting,
// when the key is empty or already present.
func (m RelationshipMap) Add(e RelationshipEntry) bool {
	key := e.Key()
	if key == "" {
		return false
	}
	if _, ok := m[key]; ok {
		return false
	}
	m[key] = e
	return true
}

// AddSelf stores a bare self entry for a local record.
func (m RelationshipMap) AddSelf(oid string) bool {
	return m.Add(RelationshipEntry{ID: oid})
}

// Keys returns the participant keys in sorted order.
func (m RelationshipMap) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RecordRef identifies a record in whichever system owns it. At least one of
// OID and Identifier is set.
type RecordRef struct {
	System     string
	OID        string
	Identifier string
}
