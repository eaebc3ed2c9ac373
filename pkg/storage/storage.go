// Package storage provides access to the local repository's digital objects:
// payload streams plus a flat metadata property set per object.
package storage

import (
	"context"
	"strings"

	"github.com/ekaya-inc/curation-engine/pkg/apperrors"
)

// Storage resolves object identifiers to digital objects.
type Storage interface {
	GetObject(ctx context.Context, oid string) (Object, error)
}

// Object is one stored record: named payloads and metadata properties.
// Property writes are staged in memory until SaveProperties.
type Object interface {
	OID() string
	PayloadIDs() ([]string, error)
	ReadPayload(pid string) ([]byte, error)
	WritePayload(pid string, data []byte) error
	Properties() (map[string]string, error)
	SetProperty(key, value string) error
	SaveProperties() error
}

// DataPayloadID selects an object's data payload: the payload carrying the
// configured form-data suffix, or the well-known metadata payload used by
// records ingested without form data.
func DataPayloadID(obj Object, suffix, wellKnown string) (string, error) {
	pids, err := obj.PayloadIDs()
	if err != nil {
		return "", err
	}
	for _, pid := range pids {
		if strings.HasSuffix(pid, suffix) || pid == wellKnown {
			return pid, nil
		}
	}
	return "", apperrors.ErrPayloadNotFound
}
