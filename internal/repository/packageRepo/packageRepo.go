package packageRepo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/myapphub/apphub/internal/model/appInfo"
	"github.com/myapphub/apphub/internal/model/packageInfo"
)

// maxSeqRetries bounds the optimistic retry loop on sequence allocation.
const maxSeqRetries = 5

type PackageRepository struct {
	pool *pgxpool.Pool
}

func New(db *pgxpool.Pool) *PackageRepository {
	return &PackageRepository{pool: db}
}

// CreatePackage allocates the next per-app sequence number and inserts the
// row in one transaction. Two concurrent uploads to the same app can both
// read the same count; the unique index on (universal_app_id, seq) rejects
// the loser, which retries with a fresh sequence.
func (r *PackageRepository) CreatePackage(ctx context.Context, pkg *packageInfo.Package) error {
	for attempt := 0; attempt < maxSeqRetries; attempt++ {
		err := r.tryCreatePackage(ctx, pkg)
		if err == nil {
			return nil
		}
		if isUniqueViolation(err) {
			continue
		}
		return err
	}
	return fmt.Errorf("allocate package sequence: retries exhausted")
}

func (r *PackageRepository) tryCreatePackage(ctx context.Context, pkg *packageInfo.Package) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var count int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM packages WHERE universal_app_id = $1`,
		pkg.UniversalAppID).Scan(&count); err != nil {
		return err
	}
	pkg.Seq = count + 1

	err = tx.QueryRow(ctx,
		`INSERT INTO packages (universal_app_id, application_id, seq, os, name,
			bundle_identifier, version, short_version, min_os, channel, build_type,
			commit_id, description, fingerprint, size, file_key, icon_key, symbol_key, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		 RETURNING id`,
		pkg.UniversalAppID, pkg.ApplicationID, pkg.Seq, pkg.OS, pkg.Name,
		pkg.BundleIdentifier, pkg.Version, pkg.ShortVersion, pkg.MinOS, pkg.Channel,
		pkg.BuildType, pkg.CommitID, pkg.Description, pkg.Fingerprint, pkg.Size,
		pkg.FileKey, pkg.IconKey, pkg.SymbolKey, pkg.CreatedAt).Scan(&pkg.ID)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const packageColumns = `id, universal_app_id, application_id, seq, os, name,
	bundle_identifier, version, short_version, min_os, channel, build_type,
	commit_id, description, fingerprint, size, file_key, icon_key, symbol_key, created_at`

func scanPackage(row pgx.Row) (*packageInfo.Package, error) {
	var pkg packageInfo.Package
	err := row.Scan(&pkg.ID, &pkg.UniversalAppID, &pkg.ApplicationID, &pkg.Seq,
		&pkg.OS, &pkg.Name, &pkg.BundleIdentifier, &pkg.Version, &pkg.ShortVersion,
		&pkg.MinOS, &pkg.Channel, &pkg.BuildType, &pkg.CommitID, &pkg.Description,
		&pkg.Fingerprint, &pkg.Size, &pkg.FileKey, &pkg.IconKey, &pkg.SymbolKey,
		&pkg.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pkg, nil
}

func (r *PackageRepository) GetPackage(ctx context.Context, universalAppID int64, seq int) (*packageInfo.Package, error) {
	return scanPackage(r.pool.QueryRow(ctx,
		`SELECT `+packageColumns+` FROM packages
		 WHERE universal_app_id = $1 AND seq = $2`,
		universalAppID, seq))
}

func (r *PackageRepository) GetPackageByID(ctx context.Context, id int64) (*packageInfo.Package, error) {
	return scanPackage(r.pool.QueryRow(ctx,
		`SELECT `+packageColumns+` FROM packages WHERE id = $1`, id))
}

func (r *PackageRepository) ListPackages(ctx context.Context, universalAppID int64, os appInfo.OperatingSystem, page, perPage int) ([]*packageInfo.Package, int, error) {
	var count int
	countQuery := `SELECT COUNT(*) FROM packages WHERE universal_app_id = $1`
	listQuery := `SELECT ` + packageColumns + ` FROM packages
		 WHERE universal_app_id = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	args := []any{universalAppID}
	if os != "" {
		countQuery = `SELECT COUNT(*) FROM packages WHERE universal_app_id = $1 AND os = $2`
		listQuery = `SELECT ` + packageColumns + ` FROM packages
		 WHERE universal_app_id = $1 AND os = $2
		 ORDER BY created_at DESC LIMIT $3 OFFSET $4`
		args = append(args, os)
	}

	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&count); err != nil {
		return nil, 0, err
	}

	args = append(args, perPage, (page-1)*perPage)
	rows, err := r.pool.Query(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var packages []*packageInfo.Package
	for rows.Next() {
		pkg, err := scanPackage(rows)
		if err != nil {
			return nil, 0, err
		}
		packages = append(packages, pkg)
	}
	return packages, count, rows.Err()
}

func (r *PackageRepository) UpdatePackage(ctx context.Context, id int64, description, commitID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE packages SET description = $2, commit_id = $3 WHERE id = $1`,
		id, description, commitID)
	return err
}

func (r *PackageRepository) SetSymbolKey(ctx context.Context, id int64, symbolKey string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE packages SET symbol_key = $2 WHERE id = $1`,
		id, symbolKey)
	return err
}

func (r *PackageRepository) DeletePackage(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM packages WHERE id = $1`, id)
	return err
}

func (r *PackageRepository) HasRelease(ctx context.Context, packageID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM releases WHERE package_id = $1)`,
		packageID).Scan(&exists)
	return exists, err
}

func (r *PackageRepository) EnvironmentExists(ctx context.Context, universalAppID int64, name string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM deployment_environments
		 WHERE universal_app_id = $1 AND name = $2)`,
		universalAppID, name).Scan(&exists)
	return exists, err
}

// CreateRelease follows the same count-then-insert discipline as
// CreatePackage, with its own per-app sequence.
func (r *PackageRepository) CreateRelease(ctx context.Context, rel *packageInfo.Release) error {
	for attempt := 0; attempt < maxSeqRetries; attempt++ {
		err := r.tryCreateRelease(ctx, rel)
		if err == nil {
			return nil
		}
		if isUniqueViolation(err) {
			continue
		}
		return err
	}
	return fmt.Errorf("allocate release sequence: retries exhausted")
}

func (r *PackageRepository) tryCreateRelease(ctx context.Context, rel *packageInfo.Release) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var count int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM releases WHERE universal_app_id = $1`,
		rel.UniversalAppID).Scan(&count); err != nil {
		return err
	}
	rel.Seq = count + 1

	err = tx.QueryRow(ctx,
		`INSERT INTO releases (universal_app_id, application_id, package_id, seq,
			environment, release_notes, enabled, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		rel.UniversalAppID, rel.ApplicationID, rel.PackageID, rel.Seq,
		rel.Environment, rel.ReleaseNotes, rel.Enabled, rel.CreatedAt).Scan(&rel.ID)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func scanRelease(row pgx.Row) (*packageInfo.Release, error) {
	var rel packageInfo.Release
	err := row.Scan(&rel.ID, &rel.UniversalAppID, &rel.ApplicationID, &rel.PackageID,
		&rel.Seq, &rel.Environment, &rel.ReleaseNotes, &rel.Enabled, &rel.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rel, nil
}

const releaseColumns = `id, universal_app_id, application_id, package_id, seq,
	environment, release_notes, enabled, created_at`

func (r *PackageRepository) GetRelease(ctx context.Context, universalAppID int64, seq int) (*packageInfo.Release, error) {
	return scanRelease(r.pool.QueryRow(ctx,
		`SELECT `+releaseColumns+` FROM releases
		 WHERE universal_app_id = $1 AND seq = $2`,
		universalAppID, seq))
}

func (r *PackageRepository) ListReleases(ctx context.Context, universalAppID int64, page, perPage int) ([]*packageInfo.Release, int, error) {
	var count int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM releases WHERE universal_app_id = $1`,
		universalAppID).Scan(&count); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+releaseColumns+` FROM releases
		 WHERE universal_app_id = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		universalAppID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var releases []*packageInfo.Release
	for rows.Next() {
		rel, err := scanRelease(rows)
		if err != nil {
			return nil, 0, err
		}
		releases = append(releases, rel)
	}
	return releases, count, rows.Err()
}

func (r *PackageRepository) UpdateRelease(ctx context.Context, id int64, releaseNotes string, enabled bool) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE releases SET release_notes = $2, enabled = $3 WHERE id = $1`,
		id, releaseNotes, enabled)
	return err
}

func (r *PackageRepository) DeleteRelease(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM releases WHERE id = $1`, id)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
