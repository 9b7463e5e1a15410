package blobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// FileStore writes each blob under root/<category>/<id> with a JSON
// metadata sidecar next to it.
type FileStore struct {
	root    string
	maxSize int64
}

func NewFileStore(root string, maxSize int64) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create media root %s: %w", root, err)
	}
	return &FileStore{root: root, maxSize: maxSize}, nil
}

func (s *FileStore) paths(category, id string) (string, string) {
	base := filepath.Join(s.root, category, id)
	return base, base + ".json"
}

// find locates a blob's sidecar by id. Ids are uuids, which keeps the
// lookup inside root.
func (s *FileStore) find(id string) (string, *BlobMetadata, error) {
	if _, err := uuid.Parse(id); err != nil {
		return "", nil, ErrBlobNotFound
	}
	for category := range AllowedCategories {
		dataPath, metaPath := s.paths(category, id)
		raw, err := os.ReadFile(metaPath)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", nil, fmt.Errorf("read blob metadata: %w", err)
		}
		var meta BlobMetadata
		if err := json.Unmarshal(raw, &meta); err != nil {
			return "", nil, fmt.Errorf("decode blob metadata: %w", err)
		}
		return dataPath, &meta, nil
	}
	return "", nil, ErrBlobNotFound
}

func (s *FileStore) Upload(_ context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error) {
	meta, data, err := prepare(meta, content, s.maxSize)
	if err != nil {
		return nil, err
	}

	dataPath, metaPath := s.paths(meta.Category, meta.ID)
	if err := os.MkdirAll(filepath.Dir(dataPath), 0o750); err != nil {
		return nil, fmt.Errorf("create category dir: %w", err)
	}
	if err := os.WriteFile(dataPath, data, 0o640); err != nil {
		return nil, fmt.Errorf("write blob: %w", err)
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		_ = os.Remove(dataPath)
		return nil, fmt.Errorf("encode blob metadata: %w", err)
	}
	if err := os.WriteFile(metaPath, raw, 0o640); err != nil {
		_ = os.Remove(dataPath)
		return nil, fmt.Errorf("write blob metadata: %w", err)
	}
	return &meta, nil
}

func (s *FileStore) Download(_ context.Context, id string) (io.ReadCloser, *BlobMetadata, error) {
	dataPath, meta, err := s.find(id)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(dataPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open blob: %w", err)
	}
	return f, meta, nil
}

func (s *FileStore) Delete(_ context.Context, id string) error {
	dataPath, _, err := s.find(id)
	if err != nil {
		return err
	}
	if err := os.Remove(dataPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove blob: %w", err)
	}
	if err := os.Remove(dataPath + ".json"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove blob metadata: %w", err)
	}
	return nil
}
