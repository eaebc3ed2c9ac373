package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ekaya-inc/curation-engine/pkg/apperrors"
)

// propertiesFile holds an object's metadata properties; it is not a payload.
const propertiesFile = "object.properties.json"

// FilesystemStorage keeps one directory per object under a root directory.
// Payloads are plain files; metadata properties live in a JSON sidecar
// written atomically (temp file + rename).
type FilesystemStorage struct {
	root string
}

func NewFilesystemStorage(root string) (*FilesystemStorage, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &FilesystemStorage{root: root}, nil
}

var _ Storage = (*FilesystemStorage)(nil)

func (s *FilesystemStorage) objectDir(oid string) (string, error) {
	if oid == "" || strings.ContainsAny(oid, "/\\") || oid == "." || oid == ".." {
		return "", fmt.Errorf("invalid oid %q", oid)
	}
	return filepath.Join(s.root, oid), nil
}

func (s *FilesystemStorage) GetObject(_ context.Context, oid string) (Object, error) {
	dir, err := s.objectDir(oid)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("object %s: %w", oid, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat object %s: %w", oid, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("object %s: %w", oid, apperrors.ErrNotFound)
	}
	return newFsObject(oid, dir)
}

// CreateObject makes an empty object directory. Harvest ingest and tests use
// this; the curation pipeline itself only reads existing objects.
func (s *FilesystemStorage) CreateObject(_ context.Context, oid string) (Object, error) {
	dir, err := s.objectDir(oid)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create object %s: %w", oid, err)
	}
	return newFsObject(oid, dir)
}

type fsObject struct {
	oid string
	dir string

	mu    sync.Mutex
	props map[string]string
}

func newFsObject(oid, dir string) (*fsObject, error) {
	obj := &fsObject{oid: oid, dir: dir}
	if err := obj.loadProperties(); err != nil {
		return nil, err
	}
	return obj, nil
}

func (o *fsObject) OID() string { return o.oid }

func (o *fsObject) PayloadIDs() ([]string, error) {
	entries, err := os.ReadDir(o.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list payloads for %s: %w", o.oid, err)
	}
	var pids []string
	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == propertiesFile {
			continue
		}
		pids = append(pids, entry.Name())
	}
	return pids, nil
}

func (o *fsObject) ReadPayload(pid string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(o.dir, pid))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("payload %s on %s: %w", pid, o.oid, apperrors.ErrPayloadNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read payload %s on %s: %w", pid, o.oid, err)
	}
	return data, nil
}

func (o *fsObject) WritePayload(pid string, data []byte) error {
	if err := writeFileAtomic(filepath.Join(o.dir, pid), data); err != nil {
		return fmt.Errorf("failed to write payload %s on %s: %w", pid, o.oid, err)
	}
	return nil
}

func (o *fsObject) loadProperties() error {
	o.props = map[string]string{}
	data, err := os.ReadFile(filepath.Join(o.dir, propertiesFile))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read properties for %s: %w", o.oid, err)
	}
	if err := json.Unmarshal(data, &o.props); err != nil {
		return fmt.Errorf("failed to parse properties for %s: %w", o.oid, err)
	}
	return nil
}

func (o *fsObject) Properties() (map[string]string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	props := make(map[string]string, len(o.props))
	for k, v := range o.props {
		props[k] = v
	}
	return props, nil
}

func (o *fsObject) SetProperty(key, value string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.props[key] = value
	return nil
}

func (o *fsObject) SaveProperties() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	data, err := json.MarshalIndent(o.props, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode properties for %s: %w", o.oid, err)
	}
	if err := writeFileAtomic(filepath.Join(o.dir, propertiesFile), data); err != nil {
		return fmt.Errorf("failed to write properties for %s: %w", o.oid, err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
