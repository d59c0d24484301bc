package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinIOConfig struct {
	Endpoint      string        `env:"MINIO_ENDPOINT" env-default:"minio:9000"`
	BucketName    string        `env:"MINIO_BUCKET_NAME" env-default:"apphub"`
	AccessKey     string        `env:"MINIO_ACCESS_KEY" env-default:"admin"`
	SecretKey     string        `env:"MINIO_SECRET_KEY" env-default:""`
	UseSSL        bool          `env:"MINIO_USE_SSL" env-default:"false"`
	PresignExpiry time.Duration `env:"MINIO_PRESIGN_EXPIRY" env-default:"15m"`
}

type MinIOStorage struct {
	client *minio.Client
	bucket string
	expiry time.Duration
}

func NewMinIO(ctx context.Context, cfg MinIOConfig) (*MinIOStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize minio client: %w", err)
	}

	err = client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{})
	if err != nil {
		exists, errBucketExists := client.BucketExists(ctx, cfg.BucketName)
		if !(errBucketExists == nil && exists) {
			return nil, fmt.Errorf("failed to create bucket %q: %w", cfg.BucketName, err)
		}
	}

	return &MinIOStorage{
		client: client,
		bucket: cfg.BucketName,
		expiry: cfg.PresignExpiry,
	}, nil
}

func (m *MinIOStorage) RequestUploadURL(ctx context.Context, scope, filename string) (*UploadTarget, error) {
	key := path.Join(scope, "incoming", uuid.NewString(), filename)
	u, err := m.client.PresignedPutObject(ctx, m.bucket, key, m.expiry)
	if err != nil {
		return nil, fmt.Errorf("presign upload url: %w", err)
	}
	return &UploadTarget{Key: key, URL: u.String()}, nil
}

func (m *MinIOStorage) Save(ctx context.Context, key string, r io.Reader, size int64) error {
	_, err := m.client.PutObject(ctx, m.bucket, key, r, size, minio.PutObjectOptions{})
	return err
}

func (m *MinIOStorage) Fetch(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	// GetObject is lazy; stat now so a missing key fails here.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, err
	}
	return obj, nil
}

func (m *MinIOStorage) Delete(ctx context.Context, key string) error {
	return m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{})
}

func (m *MinIOStorage) DownloadURL(ctx context.Context, key string) (string, error) {
	u, err := m.client.PresignedGetObject(ctx, m.bucket, key, m.expiry, nil)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}
