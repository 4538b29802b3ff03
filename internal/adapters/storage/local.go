package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LocalStore is a DocumentStore that keeps one JSON file per document
// under basePath/<collection>/<id>.json
type LocalStore struct {
	*versionedStore
	basePath string
}

// NewLocalStore creates a new LocalStore instance
func NewLocalStore(basePath string) (*LocalStore, error) {
	// Ensure base path exists
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, NewStorageError("NewLocalStore", "", err, false)
	}

	// Convert to absolute path
	absPath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, NewStorageError("NewLocalStore", "", err, false)
	}

	return &LocalStore{
		versionedStore: newVersionedStore(&fileBackend{basePath: absPath}),
		basePath:       absPath,
	}, nil
}

// BasePath returns the absolute directory holding the collections
func (l *LocalStore) BasePath() string {
	return l.basePath
}

// fileEnvelope is the on-disk layout of a document
type fileEnvelope struct {
	Version   int64           `json:"version"`
	UpdatedAt time.Time       `json:"updated_at"`
	Data      json.RawMessage `json:"data"`
}

type fileBackend struct {
	basePath string
}

func (b *fileBackend) load(collection, id string) (*record, error) {
	raw, err := os.ReadFile(b.getFilePath(collection, id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var env fileEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, ErrInvalidData
	}
	return &record{Data: []byte(env.Data), Version: env.Version, UpdatedAt: env.UpdatedAt}, nil
}

func (b *fileBackend) save(collection, id string, rec *record) error {
	filePath := b.getFilePath(collection, id)

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return err
	}

	raw, err := json.Marshal(fileEnvelope{
		Version:   rec.Version,
		UpdatedAt: rec.UpdatedAt,
		Data:      json.RawMessage(rec.Data),
	})
	if err != nil {
		return ErrInvalidData
	}

	// Write file atomically by writing to temp file first
	tempPath := filePath + ".tmp"
	if err := os.WriteFile(tempPath, raw, 0644); err != nil {
		return err
	}

	if err := os.Rename(tempPath, filePath); err != nil {
		os.Remove(tempPath)
		return err
	}
	return nil
}

func (b *fileBackend) remove(collection, id string) error {
	err := os.Remove(b.getFilePath(collection, id))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (b *fileBackend) list(collection string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(b.basePath, collection))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	return ids, nil
}

func (b *fileBackend) close() error {
	// No resources to clean up for local storage
	return nil
}

func (b *fileBackend) getFilePath(collection, id string) string {
	return filepath.Join(b.basePath, collection, id+".json")
}
