package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage keeps blobs on the server's filesystem. Direct-to-storage
// tickets make no sense here; local-mode uploads go through the server's
// own upload endpoint instead.
type LocalStorage struct {
	root        string
	externalURL string
}

func NewLocal(root, externalURL string) (*LocalStorage, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &LocalStorage{root: root, externalURL: strings.TrimRight(externalURL, "/")}, nil
}

func (l *LocalStorage) RequestUploadURL(ctx context.Context, scope, filename string) (*UploadTarget, error) {
	return nil, errors.New("local storage does not presign upload urls")
}

func (l *LocalStorage) Save(ctx context.Context, key string, r io.Reader, size int64) error {
	full := filepath.Join(l.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	f, err := os.Create(full)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(full)
		return err
	}
	return f.Close()
}

func (l *LocalStorage) Fetch(ctx context.Context, key string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(l.root, filepath.FromSlash(key)))
}

func (l *LocalStorage) Delete(ctx context.Context, key string) error {
	return os.Remove(filepath.Join(l.root, filepath.FromSlash(key)))
}

func (l *LocalStorage) DownloadURL(ctx context.Context, key string) (string, error) {
	return l.externalURL + "/files/" + key, nil
}
