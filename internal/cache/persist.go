package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sqlchat/sqlchat/internal/storage"
)

// FilePersister keeps the cache document in a single local file. Saves go
// through a temp file and rename so a crash never leaves a partial document.
type FilePersister struct {
	Path string
}

func (p FilePersister) Load(_ context.Context) ([]byte, error) {
	document, err := os.ReadFile(p.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read cache file %q: %w", p.Path, err)
	}
	return document, nil
}

func (p FilePersister) Save(_ context.Context, document []byte) error {
	dir := filepath.Dir(p.Path)
	tmp, err := os.CreateTemp(dir, filepath.Base(p.Path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(document); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp cache file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp cache file: %w", err)
	}
	if err := os.Rename(tmpName, p.Path); err != nil {
		return fmt.Errorf("replace cache file %q: %w", p.Path, err)
	}
	return nil
}

// ObjectPersister keeps the cache document as one object in an object store.
type ObjectPersister struct {
	Store storage.ObjectStore
	Key   string
}

func (p ObjectPersister) Load(ctx context.Context) ([]byte, error) {
	document, err := p.Store.Get(ctx, p.Key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load cache object: %w", err)
	}
	return document, nil
}

func (p ObjectPersister) Save(ctx context.Context, document []byte) error {
	if err := p.Store.Put(ctx, p.Key, document, "application/json"); err != nil {
		return fmt.Errorf("save cache object: %w", err)
	}
	return nil
}

// Remove deletes the cache object. A missing object is already empty.
func (p ObjectPersister) Remove(ctx context.Context) error {
	if err := p.Store.Delete(ctx, p.Key); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		return fmt.Errorf("remove cache object: %w", err)
	}
	return nil
}
