package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ekaya-inc/curation-engine/pkg/apperrors"
)

// MemoryStorage is an in-memory Storage used by tests and local tooling.
type MemoryStorage struct {
	mu      sync.Mutex
	objects map[string]*memObject
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{objects: map[string]*memObject{}}
}

var _ Storage = (*MemoryStorage)(nil)

func (s *MemoryStorage) GetObject(_ context.Context, oid string) (Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[oid]
	if !ok {
		return nil, fmt.Errorf("object %s: %w", oid, apperrors.ErrNotFound)
	}
	return obj, nil
}

// AddObject creates (or returns) an object with the given payloads.
func (s *MemoryStorage) AddObject(oid string, payloads map[string][]byte) *memObject {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[oid]
	if !ok {
		obj = &memObject{oid: oid, payloads: map[string][]byte{}, props: map[string]string{}}
		s.objects[oid] = obj
	}
	for pid, data := range payloads {
		obj.payloads[pid] = append([]byte(nil), data...)
	}
	return obj
}

type memObject struct {
	oid string

	mu       sync.Mutex
	payloads map[string][]byte
	props    map[string]string
	saved    int
}

var _ Object = (*memObject)(nil)

func (o *memObject) OID() string { return o.oid }

func (o *memObject) PayloadIDs() ([]string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	pids := make([]string, 0, len(o.payloads))
	for pid := range o.payloads {
		pids = append(pids, pid)
	}
	sort.Strings(pids)
	return pids, nil
}

func (o *memObject) ReadPayload(pid string) ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	data, ok := o.payloads[pid]
	if !ok {
		return nil, fmt.Errorf("payload %s on %s: %w", pid, o.oid, apperrors.ErrPayloadNotFound)
	}
	return append([]byte(nil), data...), nil
}

func (o *memObject) WritePayload(pid string, data []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.payloads[pid] = append([]byte(nil), data...)
	return nil
}

func (o *memObject) Properties() (map[string]string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	props := make(map[string]string, len(o.props))
	for k, v := range o.props {
		props[k] = v
	}
	return props, nil
}

func (o *memObject) SetProperty(key, value string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.props[key] = value
	return nil
}

func (o *memObject) SaveProperties() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.saved++
	return nil
}

// SaveCount reports how often SaveProperties ran; tests assert persistence
// actually happened.
func (o *memObject) SaveCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.saved
}
