package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a curation job. IN_PROGRESS is the only
// non-terminal state; COMPLETED and FAILED are terminal.
type JobStatus string

const (
	JobStatusInProgress JobStatus = "IN_PROGRESS"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

// Terminal reports whether a job in this status is done being polled.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CurationJob tracks one submission to the external curation manager.
// Members lists every participant key of the resolved relationship map,
// including records that were excluded from the outgoing message.
type CurationJob struct {
	ID            uuid.UUID `json:"id"`
	ExternalJobID string    `json:"external_job_id"`
	Status        JobStatus `json:"status"`
	Members       []string  `json:"members"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CurationMessage is the request body submitted to the curation manager.
// Records mixes freshly built record items (whose identifier-mapping keys are
// configuration-driven) with relationship entries passed through verbatim,
// so the entries stay schemaless.
type CurationMessage struct {
	Records []map[string]any `json:"records"`
}

// RequiredIdentifier declares one persistent identifier a record needs, and,
// after curation, carries the value the manager assigned.
type RequiredIdentifier struct {
	IdentifierType string            `json:"identifier_type"`
	Identifier     string            `json:"identifier,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// JobID is the identifier the curation manager assigns to a job. Managers
// differ on the wire type: some issue opaque strings, others numeric ids, so
// it decodes from either and normalises to a string.
type JobID string

func (j *JobID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*j = JobID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("job id must be a string or number, got %s", string(data))
	}
	*j = JobID(n.String())
	return nil
}

func (j JobID) String() string {
	return string(j)
}

// JobStatusResponse is the curation manager's status payload for one job.
type JobStatusResponse struct {
	JobID     JobID         `json:"jobId"`
	JobStatus string        `json:"jobStatus"`
	JobItems  []PublishItem `json:"jobItems"`
}

// PublishItem is one decided record from a completed job. Type selects the
// owning system; Extra keeps any manager-added fields intact for forwarding.
type PublishItem struct {
	Type                string               `json:"type"`
	OID                 string               `json:"oid,omitempty"`
	RequiredIdentifiers []RequiredIdentifier `json:"required_identifiers,omitempty"`

	Extra map[string]any `json:"-"`
}

var knownItemFields = map[string]struct{}{
	"type": {}, "oid": {}, "required_identifiers": {},
}

func (p PublishItem) MarshalJSON() ([]byte, error) {
	type alias PublishItem
	base, err := json.Marshal(alias(p))
	if err != nil {
		return nil, err
	}
	if len(p.Extra) == 0 {
		return base, nil
	}

	merged := make(map[string]any, len(p.Extra)+3)
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range p.Extra {
		if _, owned := knownItemFields[k]; owned {
			continue
		}
		merged[k] = v
	}
	return json.Marshal(merged)
}

func (p *PublishItem) UnmarshalJSON(data []byte) error {
	type alias PublishItem
	var typed alias
	if err := json.Unmarshal(data, &typed); err != nil {
		return err
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for k := range knownItemFields {
		delete(raw, k)
	}
	if len(raw) == 0 {
		raw = nil
	}

	*p = PublishItem(typed)
	p.Extra = raw
	return nil
}
