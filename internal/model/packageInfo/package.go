package packageInfo

import (
	"time"

	"github.com/myapphub/apphub/internal/model/appInfo"
)

// Package is one parsed build artifact. Seq is the per-universal-app
// sequence number ("package_id" on the wire); it is unique within the app
// but concurrent uploads make no contiguity promise.
type Package struct {
	ID               int64                    `json:"-"`
	ApplicationID    int64                    `json:"-"`
	UniversalAppID   int64                    `json:"-"`
	Seq              int                      `json:"package_id"`
	OS               appInfo.OperatingSystem  `json:"os"`
	Name             string                   `json:"name"`
	BundleIdentifier string                   `json:"bundle_identifier"`
	Version          string                   `json:"version"`
	ShortVersion     string                   `json:"short_version"`
	MinOS            string                   `json:"min_os"`
	Channel          string                   `json:"channel"`
	BuildType        string                   `json:"build_type"`
	CommitID         string                   `json:"commit_id"`
	Description      string                   `json:"description"`
	Fingerprint      string                   `json:"fingerprint"`
	Size             int64                    `json:"size"`
	FileKey          string                   `json:"-"`
	IconKey          string                   `json:"-"`
	SymbolKey        string                   `json:"-"`
	CreatedAt        time.Time                `json:"create_time"`
}

// Release promotes one package to a named deployment environment. Seq is
// scoped to the universal app and independent of the package sequence.
type Release struct {
	ID             int64     `json:"-"`
	UniversalAppID int64     `json:"-"`
	ApplicationID  int64     `json:"-"`
	PackageID      int64     `json:"-"`
	Seq            int       `json:"release_id"`
	Environment    string    `json:"environment"`
	ReleaseNotes   string    `json:"release_notes"`
	Enabled        bool      `json:"enabled"`
	CreatedAt      time.Time `json:"create_time"`
}

type UploadKind string

const (
	UploadKindPackage UploadKind = "package"
	UploadKindSymbol  UploadKind = "symbol"
)

// UploadRecord links a remote upload ticket to the blob a client pushes
// straight to object storage. PackageID is set exactly once, when the
// record is finalized; it memoizes the confirm result.
type UploadRecord struct {
	ID              string     `json:"record_id"`
	UniversalAppID  int64      `json:"-"`
	Kind            UploadKind `json:"kind"`
	StorageKey      string     `json:"-"`
	Filename        string     `json:"filename"`
	UploaderType    string     `json:"-"`
	UploaderID      int64      `json:"-"`
	CommitID        string     `json:"-"`
	Description     string     `json:"-"`
	BuildType       string     `json:"-"`
	Channel         string     `json:"-"`
	TargetPackageID int64      `json:"-"`
	PackageID       *int64     `json:"-"`
	CreatedAt       time.Time  `json:"-"`
}

type StorageKind string

const (
	StorageLocal  StorageKind = "LocalFileSystem"
	StorageRemote StorageKind = "RemoteObjectStore"
)

// UploadTicket is the wire response to an upload request.
type UploadTicket struct {
	UploadURL string      `json:"upload_url"`
	Storage   StorageKind `json:"storage"`
	RecordID  string      `json:"record_id,omitempty"`
}

type UploadStatus string

const (
	UploadWaiting   UploadStatus = "waiting"
	UploadCompleted UploadStatus = "completed"
)

// ConfirmResult is the wire response to an upload status check or confirm.
type ConfirmResult struct {
	Status UploadStatus `json:"status"`
	Data   *Package     `json:"data,omitempty"`
}
