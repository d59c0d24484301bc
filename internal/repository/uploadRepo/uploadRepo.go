package uploadRepo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/myapphub/apphub/internal/model/packageInfo"
)

type UploadRepository struct {
	pool *pgxpool.Pool
}

func New(db *pgxpool.Pool) *UploadRepository {
	return &UploadRepository{pool: db}
}

func (r *UploadRepository) CreateRecord(ctx context.Context, rec *packageInfo.UploadRecord) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO upload_records (id, universal_app_id, kind, storage_key, filename,
			uploader_type, uploader_id, commit_id, description, build_type, channel,
			target_package_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		rec.ID, rec.UniversalAppID, rec.Kind, rec.StorageKey, rec.Filename,
		rec.UploaderType, rec.UploaderID, rec.CommitID, rec.Description,
		rec.BuildType, rec.Channel, rec.TargetPackageID, rec.CreatedAt)
	return err
}

// GetRecord is always scoped by the owning app: a record id alone never
// resolves for a caller who cannot name the app it belongs to.
func (r *UploadRepository) GetRecord(ctx context.Context, id string, universalAppID int64) (*packageInfo.UploadRecord, error) {
	var rec packageInfo.UploadRecord
	err := r.pool.QueryRow(ctx,
		`SELECT id, universal_app_id, kind, storage_key, filename, uploader_type,
			uploader_id, commit_id, description, build_type, channel,
			target_package_id, package_id, created_at
		 FROM upload_records WHERE id = $1 AND universal_app_id = $2`,
		id, universalAppID).
		Scan(&rec.ID, &rec.UniversalAppID, &rec.Kind, &rec.StorageKey, &rec.Filename,
			&rec.UploaderType, &rec.UploaderID, &rec.CommitID, &rec.Description,
			&rec.BuildType, &rec.Channel, &rec.TargetPackageID, &rec.PackageID,
			&rec.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// AttachPackage memoizes the finalize result with a compare-and-set; only
// one of two racing confirms can attach. Returns false when another
// confirm already won.
func (r *UploadRepository) AttachPackage(ctx context.Context, id string, packageID int64) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE upload_records SET package_id = $2
		 WHERE id = $1 AND package_id IS NULL`,
		id, packageID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
