package storage

import (
	"context"
	"io"
	"time"
)

type Config struct {
	// Type selects the backend: LocalFileSystem or RemoteObjectStore.
	Type         string        `env:"STORAGE_TYPE" env-default:"LocalFileSystem"`
	LocalRoot    string        `env:"STORAGE_LOCAL_ROOT" env-default:"./data"`
	FetchTimeout time.Duration `env:"STORAGE_FETCH_TIMEOUT" env-default:"30s"`
	MinIO        MinIOConfig
}

// UploadTarget is what the external storage collaborator hands back when
// asked for a direct-upload destination.
type UploadTarget struct {
	Key string
	URL string
}

// Storage is the object-storage collaborator contract the core consumes.
type Storage interface {
	// RequestUploadURL mints a short-lived single-use upload destination
	// scoped under the given prefix.
	RequestUploadURL(ctx context.Context, scope, filename string) (*UploadTarget, error)
	Save(ctx context.Context, key string, r io.Reader, size int64) error
	Fetch(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	DownloadURL(ctx context.Context, key string) (string, error)
}
