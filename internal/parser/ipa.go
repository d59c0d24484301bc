package parser

import (
	"archive/zip"
	"fmt"
	"io"
	"path"
	"regexp"
	"sort"
	"strings"

	"howett.net/plist"

	"github.com/myapphub/apphub/internal/model/appInfo"
)

var (
	infoPlistRe = regexp.MustCompile(`^Payload/[^/]*\.app/Info\.plist$`)
	iconEntryRe = regexp.MustCompile(`^Payload/[^/]*\.app/[^/]*\.png$`)
)

type bundlePlist struct {
	CFBundleDisplayName        string `plist:"CFBundleDisplayName"`
	CFBundleName               string `plist:"CFBundleName"`
	CFBundleIdentifier         string `plist:"CFBundleIdentifier"`
	CFBundleVersion            string `plist:"CFBundleVersion"`
	CFBundleShortVersionString string `plist:"CFBundleShortVersionString"`
	MinimumOSVersion           string `plist:"MinimumOSVersion"`
	CFBundleIcons              struct {
		CFBundlePrimaryIcon struct {
			CFBundleIconFiles []string `plist:"CFBundleIconFiles"`
		} `plist:"CFBundlePrimaryIcon"`
	} `plist:"CFBundleIcons"`
}

type ipaParser struct{}

func (ipaParser) CanParse(ext string, osHint appInfo.OperatingSystem) bool {
	return ext == "ipa" && (osHint == appInfo.OSiOS || osHint == "")
}

func (ipaParser) Parse(r io.ReaderAt, size int64) (*AppInfo, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("open ipa archive: %w", err)
	}

	var bundle bundlePlist
	found := false
	for _, f := range zr.File {
		if !infoPlistRe.MatchString(f.Name) {
			continue
		}
		data, err := readZipEntry(f)
		if err != nil {
			return nil, fmt.Errorf("read Info.plist: %w", err)
		}
		bundle = bundlePlist{}
		if _, err := plist.Unmarshal(data, &bundle); err != nil {
			return nil, fmt.Errorf("decode Info.plist: %w", err)
		}
		found = true
	}

	info := &AppInfo{
		OS:               appInfo.OSiOS,
		DisplayName:      bundle.CFBundleDisplayName,
		BundleName:       bundle.CFBundleName,
		BundleIdentifier: bundle.CFBundleIdentifier,
		Version:          bundle.CFBundleVersion,
		ShortVersion:     bundle.CFBundleShortVersionString,
		MinimumOSVersion: bundle.MinimumOSVersion,
	}
	if found {
		info.Icon = extractIcon(zr, bundle.CFBundleIcons.CFBundlePrimaryIcon.CFBundleIconFiles)
	}
	return info, nil
}

// extractIcon picks the lexicographically largest icon candidate and
// returns the first payload PNG whose name starts with it. The descending
// sort approximates "highest resolution"; it is a heuristic inherited
// from the original naming scheme, not a guarantee. A failed CgBI
// normalization falls back to the raw bytes.
func extractIcon(zr *zip.Reader, candidates []string) []byte {
	if len(candidates) == 0 {
		return nil
	}
	sorted := append([]string(nil), candidates...)
	sort.Sort(sort.Reverse(sort.StringSlice(sorted)))
	want := sorted[0]

	for _, f := range zr.File {
		if !iconEntryRe.MatchString(f.Name) {
			continue
		}
		leaf := path.Base(f.Name)
		if !strings.HasPrefix(leaf, want) || !strings.HasSuffix(leaf, ".png") {
			continue
		}
		data, err := readZipEntry(f)
		if err != nil {
			return nil
		}
		if normalized := normalizePNG(data); normalized != nil {
			return normalized
		}
		return data
	}
	return nil
}

func readZipEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
