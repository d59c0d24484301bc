package distributeService

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/myapphub/apphub/internal/apperrors"
	"github.com/myapphub/apphub/internal/model/appInfo"
	"github.com/myapphub/apphub/internal/model/packageInfo"
	"github.com/myapphub/apphub/internal/parser"
	"github.com/myapphub/apphub/pkg/logger"
)

// PackageUploadOptions is the caller-supplied metadata accompanying a
// package upload.
type PackageUploadOptions struct {
	Filename    string
	CommitID    string
	Description string
	BuildType   string
	Channel     string
}

func (o *PackageUploadOptions) normalize() error {
	if o.Filename == "" {
		return apperrors.Validation("filename", "filename is required")
	}
	if o.BuildType == "" {
		o.BuildType = "Debug"
	}
	return nil
}

func uploaderOf(actor appInfo.Actor) (string, int64) {
	if actor.Token != nil {
		return "token", actor.Token.ID
	}
	return "user", actor.UserID
}

// RequestUploadPackage decides whether the upload goes through this
// server or straight to object storage. In local mode no record is
// created; the client immediately posts the bytes to the returned URL.
// In remote mode a pending record ties the presigned destination to the
// app and uploader, waiting for a later confirm.
func (s *DistributeService) RequestUploadPackage(ctx context.Context, app *appInfo.UniversalApp, actor appInfo.Actor, opts PackageUploadOptions) (*packageInfo.UploadTicket, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}

	if s.storageType == packageInfo.StorageLocal {
		return &packageInfo.UploadTicket{
			UploadURL: s.externalURL + "/upload/package",
			Storage:   packageInfo.StorageLocal,
		}, nil
	}

	target, err := s.store.RequestUploadURL(ctx, app.InstallSlug, opts.Filename)
	if err != nil {
		return nil, apperrors.Retryable(fmt.Errorf("request upload url: %w", err))
	}

	uploaderType, uploaderID := uploaderOf(actor)
	rec := &packageInfo.UploadRecord{
		ID:             uuid.NewString(),
		UniversalAppID: app.ID,
		Kind:           packageInfo.UploadKindPackage,
		StorageKey:     target.Key,
		Filename:       opts.Filename,
		UploaderType:   uploaderType,
		UploaderID:     uploaderID,
		CommitID:       opts.CommitID,
		Description:    opts.Description,
		BuildType:      opts.BuildType,
		Channel:        opts.Channel,
		CreatedAt:      time.Now(),
	}
	if err := s.uploads.CreateRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("create upload record: %w", err)
	}

	return &packageInfo.UploadTicket{
		UploadURL: target.URL,
		Storage:   packageInfo.StorageRemote,
		RecordID:  rec.ID,
	}, nil
}

// RequestUploadSymbol issues a ticket for a debug-symbol upload attaching
// to an existing package.
func (s *DistributeService) RequestUploadSymbol(ctx context.Context, app *appInfo.UniversalApp, actor appInfo.Actor, packageSeq int, filename string) (*packageInfo.UploadTicket, error) {
	if filename == "" {
		return nil, apperrors.Validation("filename", "filename is required")
	}
	pkg, err := s.packages.GetPackage(ctx, app.ID, packageSeq)
	if err != nil {
		return nil, err
	}
	if pkg == nil {
		return nil, apperrors.ErrNotFound
	}

	if s.storageType == packageInfo.StorageLocal {
		return &packageInfo.UploadTicket{
			UploadURL: fmt.Sprintf("%s/upload/symbol/%d", s.externalURL, packageSeq),
			Storage:   packageInfo.StorageLocal,
		}, nil
	}

	target, err := s.store.RequestUploadURL(ctx, app.InstallSlug, filename)
	if err != nil {
		return nil, apperrors.Retryable(fmt.Errorf("request upload url: %w", err))
	}

	uploaderType, uploaderID := uploaderOf(actor)
	rec := &packageInfo.UploadRecord{
		ID:              uuid.NewString(),
		UniversalAppID:  app.ID,
		Kind:            packageInfo.UploadKindSymbol,
		StorageKey:      target.Key,
		Filename:        filename,
		UploaderType:    uploaderType,
		UploaderID:      uploaderID,
		TargetPackageID: pkg.ID,
		CreatedAt:       time.Now(),
	}
	if err := s.uploads.CreateRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("create upload record: %w", err)
	}

	return &packageInfo.UploadTicket{
		UploadURL: target.URL,
		Storage:   packageInfo.StorageRemote,
		RecordID:  rec.ID,
	}, nil
}

// UploadPackageDirect is the local/synchronous path: the actor posts the
// file body straight at this server.
func (s *DistributeService) UploadPackageDirect(ctx context.Context, app *appInfo.UniversalApp, r io.Reader, opts PackageUploadOptions) (*packageInfo.Package, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read upload body: %w", err)
	}
	return s.createPackage(ctx, app, data, opts)
}

// UploadSymbolDirect attaches a posted debug-symbol file to an existing
// package. No parsing is performed.
func (s *DistributeService) UploadSymbolDirect(ctx context.Context, app *appInfo.UniversalApp, packageSeq int, filename string, r io.Reader) (*packageInfo.Package, error) {
	pkg, err := s.packages.GetPackage(ctx, app.ID, packageSeq)
	if err != nil {
		return nil, err
	}
	if pkg == nil {
		return nil, apperrors.ErrNotFound
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read upload body: %w", err)
	}
	return s.attachSymbol(ctx, app, pkg, filename, data)
}

// CheckUploadStatus reports whether a pending upload has been finalized.
func (s *DistributeService) CheckUploadStatus(ctx context.Context, app *appInfo.UniversalApp, recordID string, kind packageInfo.UploadKind) (*packageInfo.ConfirmResult, error) {
	rec, err := s.uploads.GetRecord(ctx, recordID, app.ID)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.Kind != kind {
		return nil, apperrors.ErrNotFound
	}
	if rec.PackageID == nil {
		return &packageInfo.ConfirmResult{Status: packageInfo.UploadWaiting}, nil
	}
	pkg, err := s.packages.GetPackageByID(ctx, *rec.PackageID)
	if err != nil {
		return nil, err
	}
	return &packageInfo.ConfirmResult{Status: packageInfo.UploadCompleted, Data: pkg}, nil
}

// ConfirmUpload is the remote/confirm path: it fetches the blob the
// client pushed out-of-band and materializes the catalog entry. Repeated
// confirmation is idempotent; a record that already carries a package
// short-circuits to the memoized result.
func (s *DistributeService) ConfirmUpload(ctx context.Context, app *appInfo.UniversalApp, recordID string, kind packageInfo.UploadKind) (*packageInfo.ConfirmResult, error) {
	rec, err := s.uploads.GetRecord(ctx, recordID, app.ID)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.Kind != kind {
		return nil, apperrors.ErrNotFound
	}

	if rec.PackageID != nil {
		pkg, err := s.packages.GetPackageByID(ctx, *rec.PackageID)
		if err != nil {
			return nil, err
		}
		return &packageInfo.ConfirmResult{Status: packageInfo.UploadCompleted, Data: pkg}, nil
	}

	switch rec.Kind {
	case packageInfo.UploadKindPackage:
		return s.confirmPackage(ctx, app, rec)
	case packageInfo.UploadKindSymbol:
		return s.confirmSymbol(ctx, app, rec)
	}
	return nil, apperrors.ErrNotFound
}

func (s *DistributeService) confirmPackage(ctx context.Context, app *appInfo.UniversalApp, rec *packageInfo.UploadRecord) (*packageInfo.ConfirmResult, error) {
	data, err := s.fetchBlob(ctx, rec.StorageKey)
	if err != nil {
		return nil, apperrors.Retryable(fmt.Errorf("fetch uploaded blob: %w", err))
	}

	pkg, err := s.createPackage(ctx, app, data, PackageUploadOptions{
		Filename:    rec.Filename,
		CommitID:    rec.CommitID,
		Description: rec.Description,
		BuildType:   rec.BuildType,
		Channel:     rec.Channel,
	})
	if err != nil {
		return nil, err
	}

	attached, err := s.uploads.AttachPackage(ctx, rec.ID, pkg.ID)
	if err != nil {
		return nil, err
	}
	if !attached {
		// A concurrent confirm won the compare-and-set; discard our copy
		// and return the winner's package.
		log := logger.GetLogger(ctx)
		log.Warn("concurrent confirm detected, discarding duplicate package",
			zap.String("record_id", rec.ID), zap.Int64("package_id", pkg.ID))
		if err := s.packages.DeletePackage(ctx, pkg.ID); err != nil {
			log.Warn("delete duplicate package failed", zap.Error(err))
		}
		winner, err := s.uploads.GetRecord(ctx, rec.ID, app.ID)
		if err != nil {
			return nil, err
		}
		if winner == nil || winner.PackageID == nil {
			return nil, apperrors.ErrNotFound
		}
		pkg, err = s.packages.GetPackageByID(ctx, *winner.PackageID)
		if err != nil {
			return nil, err
		}
		return &packageInfo.ConfirmResult{Status: packageInfo.UploadCompleted, Data: pkg}, nil
	}

	s.deleteTempBlob(ctx, rec.StorageKey)
	return &packageInfo.ConfirmResult{Status: packageInfo.UploadCompleted, Data: pkg}, nil
}

func (s *DistributeService) confirmSymbol(ctx context.Context, app *appInfo.UniversalApp, rec *packageInfo.UploadRecord) (*packageInfo.ConfirmResult, error) {
	pkg, err := s.packages.GetPackageByID(ctx, rec.TargetPackageID)
	if err != nil {
		return nil, err
	}
	if pkg == nil {
		return nil, apperrors.ErrNotFound
	}
	if pkg.SymbolKey != "" {
		return &packageInfo.ConfirmResult{Status: packageInfo.UploadCompleted, Data: pkg}, nil
	}

	data, err := s.fetchBlob(ctx, rec.StorageKey)
	if err != nil {
		return nil, apperrors.Retryable(fmt.Errorf("fetch uploaded blob: %w", err))
	}
	pkg, err = s.attachSymbol(ctx, app, pkg, rec.Filename, data)
	if err != nil {
		return nil, err
	}
	// Memoize for status checks. Losing the compare-and-set is harmless
	// here: a concurrent confirm attached the same package.
	if _, err := s.uploads.AttachPackage(ctx, rec.ID, pkg.ID); err != nil {
		logger.GetLogger(ctx).Warn("memoize symbol confirm failed",
			zap.String("record_id", rec.ID), zap.Error(err))
	}
	s.deleteTempBlob(ctx, rec.StorageKey)
	return &packageInfo.ConfirmResult{Status: packageInfo.UploadCompleted, Data: pkg}, nil
}

// createPackage is the shared ingestion tail: sniff and parse the
// artifact, match it to the right platform variant, persist the blobs,
// then the row, then announce it. Blob writes come first so a failed row
// insert leaves no half-visible package.
func (s *DistributeService) createPackage(ctx context.Context, app *appInfo.UniversalApp, data []byte, opts PackageUploadOptions) (*packageInfo.Package, error) {
	log := logger.GetLogger(ctx)

	ext := fileExtension(opts.Filename)
	info, err := parser.Parse(bytes.NewReader(data), int64(len(data)), ext, "")
	if err != nil {
		log.Info("package parse failed", zap.String("filename", opts.Filename), zap.Error(err))
	}
	if info == nil || err != nil {
		return nil, apperrors.Validation("file", "can not parse the package")
	}

	variant, err := s.apps.GetApplication(ctx, app.ID, info.OS)
	if err != nil {
		return nil, err
	}
	if variant == nil {
		return nil, apperrors.Validation("file", "OS not supported")
	}

	sum := sha256.Sum256(data)
	blobDir := fmt.Sprintf("packages/%s/%s", app.InstallSlug, uuid.NewString())
	pkg := &packageInfo.Package{
		ApplicationID:    variant.ID,
		UniversalAppID:   app.ID,
		OS:               info.OS,
		Name:             info.DisplayName,
		BundleIdentifier: info.BundleIdentifier,
		Version:          info.Version,
		ShortVersion:     info.ShortVersion,
		MinOS:            info.MinimumOSVersion,
		Channel:          opts.Channel,
		BuildType:        opts.BuildType,
		CommitID:         opts.CommitID,
		Description:      opts.Description,
		Fingerprint:      hex.EncodeToString(sum[:]),
		Size:             int64(len(data)),
		FileKey:          blobDir + "/" + opts.Filename,
		CreatedAt:        time.Now(),
	}

	if err := s.store.Save(ctx, pkg.FileKey, bytes.NewReader(data), pkg.Size); err != nil {
		return nil, apperrors.Retryable(fmt.Errorf("store package file: %w", err))
	}
	if info.Icon != nil {
		pkg.IconKey = blobDir + "/icon.png"
		if err := s.store.Save(ctx, pkg.IconKey, bytes.NewReader(info.Icon), int64(len(info.Icon))); err != nil {
			s.deleteTempBlob(ctx, pkg.FileKey)
			return nil, apperrors.Retryable(fmt.Errorf("store icon file: %w", err))
		}
	}

	if err := s.packages.CreatePackage(ctx, pkg); err != nil {
		s.deleteTempBlob(ctx, pkg.FileKey)
		if pkg.IconKey != "" {
			s.deleteTempBlob(ctx, pkg.IconKey)
		}
		return nil, fmt.Errorf("create package entry: %w", err)
	}

	if pkg.IconKey != "" {
		// First write wins; an app icon that is already set stays.
		if err := s.apps.SetApplicationIconIfEmpty(ctx, variant.ID, pkg.IconKey); err != nil {
			log.Warn("set app icon failed", zap.Int64("application_id", variant.ID), zap.Error(err))
		}
	}

	s.notifier.NotifyNewPackage(ctx, pkg.ID)
	return pkg, nil
}

func (s *DistributeService) attachSymbol(ctx context.Context, app *appInfo.UniversalApp, pkg *packageInfo.Package, filename string, data []byte) (*packageInfo.Package, error) {
	if filename == "" {
		filename = "symbols.zip"
	}
	key := fmt.Sprintf("symbols/%s/%d/%s", app.InstallSlug, pkg.Seq, filename)
	if err := s.store.Save(ctx, key, bytes.NewReader(data), int64(len(data))); err != nil {
		return nil, apperrors.Retryable(fmt.Errorf("store symbol file: %w", err))
	}
	if err := s.packages.SetSymbolKey(ctx, pkg.ID, key); err != nil {
		return nil, fmt.Errorf("attach symbol file: %w", err)
	}
	pkg.SymbolKey = key
	return pkg, nil
}

// fetchBlob pulls the out-of-band uploaded bytes from storage under a
// bounded timeout; a timeout surfaces as retryable, not permanent.
func (s *DistributeService) fetchBlob(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	rc, err := s.store.Fetch(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// deleteTempBlob is best-effort cleanup: failure is logged and swallowed,
// never surfaced to the caller.
func (s *DistributeService) deleteTempBlob(ctx context.Context, key string) {
	if err := s.store.Delete(ctx, key); err != nil {
		logger.GetLogger(ctx).Warn("delete temporary blob failed",
			zap.String("key", key), zap.Error(err))
	}
}
