package permission

import (
	"context"

	"github.com/myapphub/apphub/internal/apperrors"
	"github.com/myapphub/apphub/internal/model/appInfo"
)

// Scope says where a role grant came from; an application-level grant is
// authoritative over an organization-level one.
type Scope int

const (
	ScopeApplication Scope = iota
	ScopeOrganization
)

type RoleGrant struct {
	Scope Scope
	Role  appInfo.Role
}

// Directory is the read-only membership surface owned by the excluded
// user/organization subsystems.
type Directory interface {
	// GetApp resolves an app by path within a namespace, ignoring
	// visibility. Returns nil when no such app exists.
	GetApp(ctx context.Context, path string, ns Namespace) (*appInfo.UniversalApp, error)
	// GetAppRole returns the actor's direct app-level role, if any.
	GetAppRole(ctx context.Context, universalAppID, userID int64) (appInfo.Role, bool, error)
	// GetOrgRole returns the actor's organization-level role, if any.
	GetOrgRole(ctx context.Context, orgPath string, userID int64) (appInfo.Role, bool, error)
}

type Engine struct {
	dir Directory
}

func New(dir Directory) *Engine {
	return &Engine{dir: dir}
}

// CheckView resolves the app and the actor's strongest applicable role.
// A nil grant with a nil error means view access came purely through the
// visibility fallback. Unviewable apps surface as ErrNotFound, never
// ErrForbidden: their existence must not leak.
func (e *Engine) CheckView(ctx context.Context, actor appInfo.Actor, path string, ns Namespace) (*appInfo.UniversalApp, *RoleGrant, error) {
	app, err := e.dir.GetApp(ctx, path, ns)
	if err != nil {
		return nil, nil, err
	}
	if app == nil {
		return nil, nil, apperrors.ErrNotFound
	}

	if actor.Token != nil {
		if actor.Token.UniversalAppID == app.ID {
			return app, nil, nil
		}
		return nil, nil, apperrors.ErrNotFound
	}

	if actor.IsAuthenticated() {
		// An app-level grant wins regardless of any organization role.
		role, ok, err := e.dir.GetAppRole(ctx, app.ID, actor.UserID)
		if err != nil {
			return nil, nil, err
		}
		if ok {
			return app, &RoleGrant{Scope: ScopeApplication, Role: role}, nil
		}
		if ns.IsOrganization() {
			role, ok, err := e.dir.GetOrgRole(ctx, ns.Path, actor.UserID)
			if err != nil {
				return nil, nil, err
			}
			if ok {
				return app, &RoleGrant{Scope: ScopeOrganization, Role: role}, nil
			}
		}
	}

	if visibleTo(actor, app.Visibility) {
		return app, nil, nil
	}
	return nil, nil, apperrors.ErrNotFound
}

// CheckManage requires an Owner or Manager role. When the actor can see
// the app but holds no sufficient role the outcome is ErrForbidden; the
// actor has already proven the app exists.
func (e *Engine) CheckManage(ctx context.Context, actor appInfo.Actor, path string, ns Namespace) (*appInfo.UniversalApp, *RoleGrant, error) {
	app, grant, err := e.CheckView(ctx, actor, path, ns)
	if err != nil {
		return nil, nil, err
	}
	if grant == nil || !grant.Role.CanManage() {
		return nil, nil, apperrors.ErrForbidden
	}
	return app, grant, nil
}

// CheckUpload grants upload rights to a matching single-app API token or
// to any role holder; visibility-only viewers cannot upload.
func (e *Engine) CheckUpload(ctx context.Context, actor appInfo.Actor, path string, ns Namespace) (*appInfo.UniversalApp, *RoleGrant, error) {
	app, grant, err := e.CheckView(ctx, actor, path, ns)
	if err != nil {
		return nil, nil, err
	}
	if actor.Token != nil {
		// CheckView already matched the token against this app.
		return app, nil, nil
	}
	if grant == nil {
		return nil, nil, apperrors.ErrForbidden
	}
	return app, grant, nil
}

func visibleTo(actor appInfo.Actor, v appInfo.Visibility) bool {
	if actor.IsAuthenticated() {
		return v == appInfo.VisibilityPublic || v == appInfo.VisibilityInternal
	}
	return v == appInfo.VisibilityPublic
}
