package parser

import (
	"io"

	"github.com/myapphub/apphub/internal/model/appInfo"
)

// AppInfo is the metadata a parser extracts from a package stream.
type AppInfo struct {
	OS               appInfo.OperatingSystem
	DisplayName      string
	BundleName       string
	BundleIdentifier string
	Version          string
	ShortVersion     string
	MinimumOSVersion string
	Icon             []byte
}

// PackageParser reads identity and display metadata out of one package
// format without executing or fully unpacking it.
type PackageParser interface {
	// CanParse reports whether this parser handles the extension; osHint
	// narrows the match and may be empty.
	CanParse(ext string, osHint appInfo.OperatingSystem) bool
	Parse(r io.ReaderAt, size int64) (*AppInfo, error)
}

var registry = []PackageParser{ipaParser{}, apkParser{}}

// Parse dispatches to the first registered parser claiming the extension.
// (nil, nil) means no parser matched; a non-nil error means the matched
// parser could not read the stream. Callers surface both as validation
// failures, never as panics past this boundary.
func Parse(r io.ReaderAt, size int64, ext string, osHint appInfo.OperatingSystem) (*AppInfo, error) {
	for _, p := range registry {
		if p.CanParse(ext, osHint) {
			return p.Parse(r, size)
		}
	}
	return nil, nil
}
