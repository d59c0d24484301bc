package distributeService_test

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"howett.net/plist"

	"github.com/myapphub/apphub/internal/model/appInfo"
	"github.com/myapphub/apphub/internal/model/packageInfo"
	"github.com/myapphub/apphub/internal/service/distributeService"
	"github.com/myapphub/apphub/internal/sign"
	"github.com/myapphub/apphub/internal/storage"
)

// fakeBackend is an in-memory stand-in for the app, package and upload
// repositories. Mutations run under one lock so concurrent service calls
// observe the same uniqueness the database enforces.
type fakeBackend struct {
	mu sync.Mutex

	variants map[appInfo.OperatingSystem]*appInfo.Application
	icons    map[int64]string

	nextID   int64
	packages map[int64]*packageInfo.Package
	releases map[int64]*packageInfo.Release
	envs     map[string]bool

	records map[string]packageInfo.UploadRecord
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		variants: make(map[appInfo.OperatingSystem]*appInfo.Application),
		icons:    make(map[int64]string),
		packages: make(map[int64]*packageInfo.Package),
		releases: make(map[int64]*packageInfo.Release),
		envs:     make(map[string]bool),
		records:  make(map[string]packageInfo.UploadRecord),
	}
}

func (b *fakeBackend) GetApplication(_ context.Context, _ int64, os appInfo.OperatingSystem) (*appInfo.Application, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.variants[os], nil
}

func (b *fakeBackend) SetApplicationIconIfEmpty(_ context.Context, applicationID int64, iconKey string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.icons[applicationID] == "" {
		b.icons[applicationID] = iconKey
	}
	return nil
}

func (b *fakeBackend) CreatePackage(_ context.Context, pkg *packageInfo.Package) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	seq := 0
	for _, p := range b.packages {
		if p.UniversalAppID == pkg.UniversalAppID && p.Seq > seq {
			seq = p.Seq
		}
	}
	b.nextID++
	pkg.ID = b.nextID
	pkg.Seq = seq + 1
	cp := *pkg
	b.packages[pkg.ID] = &cp
	return nil
}

func (b *fakeBackend) GetPackage(_ context.Context, universalAppID int64, seq int) (*packageInfo.Package, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range b.packages {
		if p.UniversalAppID == universalAppID && p.Seq == seq {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (b *fakeBackend) GetPackageByID(_ context.Context, id int64) (*packageInfo.Package, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.packages[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (b *fakeBackend) ListPackages(_ context.Context, universalAppID int64, os appInfo.OperatingSystem, page, perPage int) ([]*packageInfo.Package, int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var all []*packageInfo.Package
	for _, p := range b.packages {
		if p.UniversalAppID != universalAppID {
			continue
		}
		if os != "" && p.OS != os {
			continue
		}
		cp := *p
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Seq > all[j].Seq })
	total := len(all)
	start := (page - 1) * perPage
	if start > total {
		start = total
	}
	end := start + perPage
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (b *fakeBackend) UpdatePackage(_ context.Context, id int64, description, commitID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.packages[id]; ok {
		p.Description = description
		p.CommitID = commitID
	}
	return nil
}

func (b *fakeBackend) SetSymbolKey(_ context.Context, id int64, symbolKey string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.packages[id]; ok {
		p.SymbolKey = symbolKey
	}
	return nil
}

func (b *fakeBackend) DeletePackage(_ context.Context, id int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.packages, id)
	return nil
}

func (b *fakeBackend) HasRelease(_ context.Context, packageID int64) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range b.releases {
		if r.PackageID == packageID {
			return true, nil
		}
	}
	return false, nil
}

func (b *fakeBackend) EnvironmentExists(_ context.Context, _ int64, name string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.envs[name], nil
}

func (b *fakeBackend) CreateRelease(_ context.Context, rel *packageInfo.Release) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	seq := 0
	for _, r := range b.releases {
		if r.UniversalAppID == rel.UniversalAppID && r.Seq > seq {
			seq = r.Seq
		}
	}
	b.nextID++
	rel.ID = b.nextID
	rel.Seq = seq + 1
	cp := *rel
	b.releases[rel.ID] = &cp
	return nil
}

func (b *fakeBackend) GetRelease(_ context.Context, universalAppID int64, seq int) (*packageInfo.Release, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range b.releases {
		if r.UniversalAppID == universalAppID && r.Seq == seq {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (b *fakeBackend) ListReleases(_ context.Context, universalAppID int64, page, perPage int) ([]*packageInfo.Release, int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var all []*packageInfo.Release
	for _, r := range b.releases {
		if r.UniversalAppID == universalAppID {
			cp := *r
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Seq > all[j].Seq })
	total := len(all)
	start := (page - 1) * perPage
	if start > total {
		start = total
	}
	end := start + perPage
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (b *fakeBackend) UpdateRelease(_ context.Context, id int64, releaseNotes string, enabled bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r, ok := b.releases[id]; ok {
		r.ReleaseNotes = releaseNotes
		r.Enabled = enabled
	}
	return nil
}

func (b *fakeBackend) DeleteRelease(_ context.Context, id int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.releases, id)
	return nil
}

func (b *fakeBackend) CreateRecord(_ context.Context, rec *packageInfo.UploadRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records[rec.ID] = *rec
	return nil
}

func (b *fakeBackend) GetRecord(_ context.Context, id string, universalAppID int64) (*packageInfo.UploadRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.records[id]
	if !ok || rec.UniversalAppID != universalAppID {
		return nil, nil
	}
	cp := rec
	return &cp, nil
}

func (b *fakeBackend) AttachPackage(_ context.Context, id string, packageID int64) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.records[id]
	if !ok || rec.PackageID != nil {
		return false, nil
	}
	rec.PackageID = &packageID
	b.records[id] = rec
	return true, nil
}

func (b *fakeBackend) packageCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.packages)
}

// fakeStorage keeps blobs in a map and records every delete, so tests can
// assert temp-blob cleanup happened exactly once.
type fakeStorage struct {
	mu sync.Mutex

	objects    map[string][]byte
	deletes    []string
	presignErr error
	nextTicket int
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte)}
}

func (s *fakeStorage) RequestUploadURL(_ context.Context, scope, filename string) (*storage.UploadTarget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.presignErr != nil {
		return nil, s.presignErr
	}
	s.nextTicket++
	key := fmt.Sprintf("%s/incoming/%d/%s", scope, s.nextTicket, filename)
	return &storage.UploadTarget{Key: key, URL: "https://blob.test/" + key}, nil
}

func (s *fakeStorage) Save(_ context.Context, key string, r io.Reader, _ int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return nil
}

func (s *fakeStorage) Fetch(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %q does not exist", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *fakeStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	s.deletes = append(s.deletes, key)
	return nil
}

func (s *fakeStorage) DownloadURL(_ context.Context, key string) (string, error) {
	return "https://cdn.test/" + key, nil
}

func (s *fakeStorage) deleteCount(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, k := range s.deletes {
		if k == key {
			n++
		}
	}
	return n
}

func (s *fakeStorage) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}

type fakeNotifier struct {
	mu       sync.Mutex
	notified []int64
}

func (n *fakeNotifier) NotifyNewPackage(_ context.Context, packageID int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notified = append(n.notified, packageID)
}

var testApp = &appInfo.UniversalApp{
	ID:            7,
	Path:          "demo",
	Name:          "Demo",
	InstallSlug:   "demoslug",
	OwnerUsername: "alice",
}

func newTestService(storageType packageInfo.StorageKind) (*distributeService.DistributeService, *fakeBackend, *fakeStorage, *fakeNotifier) {
	backend := newFakeBackend()
	backend.variants[appInfo.OSiOS] = &appInfo.Application{ID: 70, UniversalAppID: testApp.ID, OS: appInfo.OSiOS}
	backend.envs["production"] = true

	store := newFakeStorage()
	notifier := &fakeNotifier{}
	svc := distributeService.New(backend, backend, backend, store, notifier, sign.New("test-secret"), distributeService.Options{
		StorageType: storageType,
		ExternalURL: "https://hub.test/",
	})
	return svc, backend, store, notifier
}

// buildIPA assembles a minimal runnable-looking archive: one Info.plist
// and one icon entry.
func buildIPA(t *testing.T, bundleID, version, shortVersion string) []byte {
	t.Helper()

	icon := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	var iconBuf bytes.Buffer
	require.NoError(t, png.Encode(&iconBuf, icon))

	values := map[string]any{
		"CFBundleDisplayName":        "Demo",
		"CFBundleName":               "demo",
		"CFBundleIdentifier":         bundleID,
		"CFBundleVersion":            version,
		"CFBundleShortVersionString": shortVersion,
		"MinimumOSVersion":           "12.0",
		"CFBundleIcons": map[string]any{
			"CFBundlePrimaryIcon": map[string]any{
				"CFBundleIconFiles": []string{"AppIcon"},
			},
		},
	}
	plistData, err := plist.Marshal(values, plist.XMLFormat)
	require.NoError(t, err)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("Payload/Demo.app/Info.plist")
	require.NoError(t, err)
	_, err = w.Write(plistData)
	require.NoError(t, err)
	w, err = zw.Create("Payload/Demo.app/AppIcon.png")
	require.NoError(t, err)
	_, err = w.Write(iconBuf.Bytes())
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}
