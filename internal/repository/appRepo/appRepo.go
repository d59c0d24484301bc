package appRepo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/myapphub/apphub/internal/model/appInfo"
	"github.com/myapphub/apphub/internal/permission"
)

type AppRepository struct {
	pool *pgxpool.Pool
}

func New(db *pgxpool.Pool) *AppRepository {
	return &AppRepository{pool: db}
}

// GetApp resolves an app by path within a user or organization namespace.
// Visibility is not filtered here; the permission engine decides that.
func (r *AppRepository) GetApp(ctx context.Context, path string, ns permission.Namespace) (*appInfo.UniversalApp, error) {
	query := `SELECT id, path, name, install_slug, COALESCE(owner_username, ''), COALESCE(org_path, ''), visibility, created_at
		 FROM universal_apps WHERE path = $1 AND owner_username = $2`
	if ns.IsOrganization() {
		query = `SELECT id, path, name, install_slug, COALESCE(owner_username, ''), COALESCE(org_path, ''), visibility, created_at
		 FROM universal_apps WHERE path = $1 AND org_path = $2`
	}

	var app appInfo.UniversalApp
	err := r.pool.QueryRow(ctx, query, path, ns.Path).
		Scan(&app.ID, &app.Path, &app.Name, &app.InstallSlug,
			&app.OwnerUsername, &app.OrgPath, &app.Visibility, &app.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &app, nil
}

func (r *AppRepository) GetAppRole(ctx context.Context, universalAppID, userID int64) (appInfo.Role, bool, error) {
	var role appInfo.Role
	err := r.pool.QueryRow(ctx,
		`SELECT role FROM universal_app_users
		 WHERE universal_app_id = $1 AND user_id = $2`,
		universalAppID, userID).Scan(&role)

	if errors.Is(err, pgx.ErrNoRows) {
		return appInfo.RoleNone, false, nil
	}
	if err != nil {
		return appInfo.RoleNone, false, err
	}
	return role, true, nil
}

func (r *AppRepository) GetOrgRole(ctx context.Context, orgPath string, userID int64) (appInfo.Role, bool, error) {
	var role appInfo.Role
	err := r.pool.QueryRow(ctx,
		`SELECT role FROM organization_users
		 WHERE org_path = $1 AND user_id = $2`,
		orgPath, userID).Scan(&role)

	if errors.Is(err, pgx.ErrNoRows) {
		return appInfo.RoleNone, false, nil
	}
	if err != nil {
		return appInfo.RoleNone, false, err
	}
	return role, true, nil
}

func (r *AppRepository) GetApplication(ctx context.Context, universalAppID int64, os appInfo.OperatingSystem) (*appInfo.Application, error) {
	var app appInfo.Application
	err := r.pool.QueryRow(ctx,
		`SELECT id, universal_app_id, os, COALESCE(icon_key, '')
		 FROM applications WHERE universal_app_id = $1 AND os = $2`,
		universalAppID, os).
		Scan(&app.ID, &app.UniversalAppID, &app.OS, &app.IconKey)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &app, nil
}

// SetApplicationIconIfEmpty records the app icon only when none is set
// yet; an existing icon is never overwritten.
func (r *AppRepository) SetApplicationIconIfEmpty(ctx context.Context, applicationID int64, iconKey string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE applications SET icon_key = $2
		 WHERE id = $1 AND (icon_key IS NULL OR icon_key = '')`,
		applicationID, iconKey)
	return err
}
