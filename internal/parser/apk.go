package parser

import (
	"bytes"
	"fmt"
	"image/png"
	"io"
	"strconv"

	"github.com/shogo82148/androidbinary/apk"

	"github.com/myapphub/apphub/internal/model/appInfo"
)

type apkParser struct{}

func (apkParser) CanParse(ext string, osHint appInfo.OperatingSystem) bool {
	return ext == "apk" && (osHint == appInfo.OSAndroid || osHint == "")
}

func (apkParser) Parse(r io.ReaderAt, size int64) (*AppInfo, error) {
	pkg, err := apk.OpenZipReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("open apk archive: %w", err)
	}

	manifest := pkg.Manifest()
	info := &AppInfo{OS: appInfo.OSAndroid}
	info.BundleIdentifier, _ = manifest.Package.String()
	info.ShortVersion, _ = manifest.VersionName.String()
	if code, err := manifest.VersionCode.Int32(); err == nil {
		info.Version = strconv.FormatInt(int64(code), 10)
	}
	if minSDK, err := manifest.SDK.Min.Int32(); err == nil {
		info.MinimumOSVersion = strconv.FormatInt(int64(minSDK), 10)
	}
	if label, err := pkg.Label(nil); err == nil {
		info.DisplayName = label
		info.BundleName = label
	}

	// Adaptive/vector launcher icons cannot be rasterized here; the icon
	// is simply omitted in that case.
	if icon, err := pkg.Icon(nil); err == nil && icon != nil {
		var buf bytes.Buffer
		if err := png.Encode(&buf, icon); err == nil {
			info.Icon = buf.Bytes()
		}
	}
	return info, nil
}
