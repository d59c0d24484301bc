package distributeService

import (
	"context"
	"fmt"
	"time"

	"github.com/myapphub/apphub/internal/apperrors"
	"github.com/myapphub/apphub/internal/model/appInfo"
	"github.com/myapphub/apphub/internal/model/packageInfo"
)

func (s *DistributeService) ListPackages(ctx context.Context, app *appInfo.UniversalApp, os appInfo.OperatingSystem, page, perPage int) ([]*packageInfo.Package, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	return s.packages.ListPackages(ctx, app.ID, os, page, perPage)
}

func (s *DistributeService) GetPackage(ctx context.Context, app *appInfo.UniversalApp, seq int) (*packageInfo.Package, error) {
	pkg, err := s.packages.GetPackage(ctx, app.ID, seq)
	if err != nil {
		return nil, err
	}
	if pkg == nil {
		return nil, apperrors.ErrNotFound
	}
	return pkg, nil
}

type PackageUpdate struct {
	Description *string
	CommitID    *string
}

func (s *DistributeService) UpdatePackage(ctx context.Context, app *appInfo.UniversalApp, seq int, upd PackageUpdate) (*packageInfo.Package, error) {
	pkg, err := s.GetPackage(ctx, app, seq)
	if err != nil {
		return nil, err
	}
	if upd.Description != nil {
		pkg.Description = *upd.Description
	}
	if upd.CommitID != nil {
		pkg.CommitID = *upd.CommitID
	}
	if err := s.packages.UpdatePackage(ctx, pkg.ID, pkg.Description, pkg.CommitID); err != nil {
		return nil, err
	}
	return pkg, nil
}

// DeletePackage refuses to remove a package that a release still points
// at; the release has to go first.
func (s *DistributeService) DeletePackage(ctx context.Context, app *appInfo.UniversalApp, seq int) error {
	pkg, err := s.GetPackage(ctx, app, seq)
	if err != nil {
		return err
	}
	released, err := s.packages.HasRelease(ctx, pkg.ID)
	if err != nil {
		return err
	}
	if released {
		return apperrors.Validation("package_id", "package is referenced by a release")
	}
	return s.packages.DeletePackage(ctx, pkg.ID)
}

type ReleaseOptions struct {
	PackageSeq   int
	Environment  string
	ReleaseNotes string
	Enabled      bool
}

// CreateRelease promotes one package to a deployment environment. The
// release sequence is scoped to the universal app and independent of the
// package sequence.
func (s *DistributeService) CreateRelease(ctx context.Context, app *appInfo.UniversalApp, opts ReleaseOptions) (*packageInfo.Release, error) {
	pkg, err := s.packages.GetPackage(ctx, app.ID, opts.PackageSeq)
	if err != nil {
		return nil, err
	}
	if pkg == nil {
		return nil, apperrors.Validation("package_id", "package is not found")
	}
	ok, err := s.packages.EnvironmentExists(ctx, app.ID, opts.Environment)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.Validation("environment", "environment is not found")
	}

	notes := opts.ReleaseNotes
	if notes == "" {
		notes = pkg.Description
	}
	rel := &packageInfo.Release{
		UniversalAppID: app.ID,
		ApplicationID:  pkg.ApplicationID,
		PackageID:      pkg.ID,
		Environment:    opts.Environment,
		ReleaseNotes:   notes,
		Enabled:        opts.Enabled,
		CreatedAt:      time.Now(),
	}
	if err := s.packages.CreateRelease(ctx, rel); err != nil {
		return nil, fmt.Errorf("create release entry: %w", err)
	}
	return rel, nil
}

func (s *DistributeService) ListReleases(ctx context.Context, app *appInfo.UniversalApp, page, perPage int) ([]*packageInfo.Release, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	return s.packages.ListReleases(ctx, app.ID, page, perPage)
}

func (s *DistributeService) GetRelease(ctx context.Context, app *appInfo.UniversalApp, seq int) (*packageInfo.Release, error) {
	rel, err := s.packages.GetRelease(ctx, app.ID, seq)
	if err != nil {
		return nil, err
	}
	if rel == nil {
		return nil, apperrors.ErrNotFound
	}
	return rel, nil
}

type ReleaseUpdate struct {
	ReleaseNotes *string
	Enabled      *bool
}

func (s *DistributeService) UpdateRelease(ctx context.Context, app *appInfo.UniversalApp, seq int, upd ReleaseUpdate) (*packageInfo.Release, error) {
	rel, err := s.GetRelease(ctx, app, seq)
	if err != nil {
		return nil, err
	}
	if upd.ReleaseNotes != nil {
		rel.ReleaseNotes = *upd.ReleaseNotes
	}
	if upd.Enabled != nil {
		rel.Enabled = *upd.Enabled
	}
	if err := s.packages.UpdateRelease(ctx, rel.ID, rel.ReleaseNotes, rel.Enabled); err != nil {
		return nil, err
	}
	return rel, nil
}

func (s *DistributeService) DeleteRelease(ctx context.Context, app *appInfo.UniversalApp, seq int) error {
	rel, err := s.GetRelease(ctx, app, seq)
	if err != nil {
		return err
	}
	return s.packages.DeleteRelease(ctx, rel.ID)
}

// InstallManifest is the data the iOS over-the-air install plist is
// rendered from.
type InstallManifest struct {
	IPA        string `json:"ipa"`
	Icon       string `json:"icon"`
	Identifier string `json:"identifier"`
	Version    string `json:"version"`
	Name       string `json:"name"`
}

// IssueInstallToken signs a short-lived token for one package's install
// manifest, so install links can be handed out without further auth.
func (s *DistributeService) IssueInstallToken(app *appInfo.UniversalApp, packageSeq int) (string, error) {
	return s.signer.SignInstall(namespacePath(app), app.Path, packageSeq)
}

// GetInstallManifest verifies the install token and builds the manifest.
// Bad tokens come back as ErrForbidden.
func (s *DistributeService) GetInstallManifest(ctx context.Context, app *appInfo.UniversalApp, packageSeq int, token string) (*InstallManifest, error) {
	if err := s.signer.VerifyInstall(token, namespacePath(app), app.Path, packageSeq); err != nil {
		return nil, err
	}
	pkg, err := s.GetPackage(ctx, app, packageSeq)
	if err != nil {
		return nil, err
	}

	ipaURL, err := s.store.DownloadURL(ctx, pkg.FileKey)
	if err != nil {
		return nil, apperrors.Retryable(fmt.Errorf("package download url: %w", err))
	}
	iconURL := ""
	if pkg.IconKey != "" {
		iconURL, err = s.store.DownloadURL(ctx, pkg.IconKey)
		if err != nil {
			return nil, apperrors.Retryable(fmt.Errorf("icon download url: %w", err))
		}
	}

	return &InstallManifest{
		IPA:        ipaURL,
		Icon:       iconURL,
		Identifier: pkg.BundleIdentifier,
		Version:    pkg.ShortVersion,
		Name:       pkg.Name,
	}, nil
}
