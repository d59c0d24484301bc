package distributeService

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/myapphub/apphub/internal/model/appInfo"
	"github.com/myapphub/apphub/internal/model/packageInfo"
	"github.com/myapphub/apphub/internal/sign"
	"github.com/myapphub/apphub/internal/storage"
)

// AppStore is the slice of the app repository this service reads and the
// single icon write it performs.
type AppStore interface {
	GetApplication(ctx context.Context, universalAppID int64, os appInfo.OperatingSystem) (*appInfo.Application, error)
	SetApplicationIconIfEmpty(ctx context.Context, applicationID int64, iconKey string) error
}

type PackageStore interface {
	CreatePackage(ctx context.Context, pkg *packageInfo.Package) error
	GetPackage(ctx context.Context, universalAppID int64, seq int) (*packageInfo.Package, error)
	GetPackageByID(ctx context.Context, id int64) (*packageInfo.Package, error)
	ListPackages(ctx context.Context, universalAppID int64, os appInfo.OperatingSystem, page, perPage int) ([]*packageInfo.Package, int, error)
	UpdatePackage(ctx context.Context, id int64, description, commitID string) error
	SetSymbolKey(ctx context.Context, id int64, symbolKey string) error
	DeletePackage(ctx context.Context, id int64) error
	HasRelease(ctx context.Context, packageID int64) (bool, error)
	EnvironmentExists(ctx context.Context, universalAppID int64, name string) (bool, error)
	CreateRelease(ctx context.Context, rel *packageInfo.Release) error
	GetRelease(ctx context.Context, universalAppID int64, seq int) (*packageInfo.Release, error)
	ListReleases(ctx context.Context, universalAppID int64, page, perPage int) ([]*packageInfo.Release, int, error)
	UpdateRelease(ctx context.Context, id int64, releaseNotes string, enabled bool) error
	DeleteRelease(ctx context.Context, id int64) error
}

type UploadStore interface {
	CreateRecord(ctx context.Context, rec *packageInfo.UploadRecord) error
	GetRecord(ctx context.Context, id string, universalAppID int64) (*packageInfo.UploadRecord, error)
	AttachPackage(ctx context.Context, id string, packageID int64) (bool, error)
}

type Notifier interface {
	NotifyNewPackage(ctx context.Context, packageID int64)
}

type DistributeService struct {
	apps     AppStore
	packages PackageStore
	uploads  UploadStore
	store    storage.Storage
	notifier Notifier
	signer   *sign.Signer

	storageType  packageInfo.StorageKind
	externalURL  string
	fetchTimeout time.Duration
}

type Options struct {
	StorageType  packageInfo.StorageKind
	ExternalURL  string
	FetchTimeout time.Duration
}

func New(apps AppStore, packages PackageStore, uploads UploadStore, store storage.Storage, notifier Notifier, signer *sign.Signer, opts Options) *DistributeService {
	if opts.FetchTimeout == 0 {
		opts.FetchTimeout = 30 * time.Second
	}
	return &DistributeService{
		apps:         apps,
		packages:     packages,
		uploads:      uploads,
		store:        store,
		notifier:     notifier,
		signer:       signer,
		storageType:  opts.StorageType,
		externalURL:  strings.TrimRight(opts.ExternalURL, "/"),
		fetchTimeout: opts.FetchTimeout,
	}
}

// namespacePath is the path segment of whoever owns the app, used in
// install-token subjects and upload endpoints.
func namespacePath(app *appInfo.UniversalApp) string {
	if app.OwnerUsername != "" {
		return app.OwnerUsername
	}
	return app.OrgPath
}

// fileExtension returns the lowercase extension without the leading dot.
func fileExtension(name string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
}
