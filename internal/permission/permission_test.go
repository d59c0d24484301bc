package permission_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myapphub/apphub/internal/apperrors"
	"github.com/myapphub/apphub/internal/model/appInfo"
	"github.com/myapphub/apphub/internal/permission"
)

type fakeDirectory struct {
	apps     map[string]*appInfo.UniversalApp // keyed by "<ns path>/<app path>"
	appRoles map[int64]map[int64]appInfo.Role // universal app id -> user id -> role
	orgRoles map[string]map[int64]appInfo.Role
}

func (d *fakeDirectory) GetApp(_ context.Context, path string, ns permission.Namespace) (*appInfo.UniversalApp, error) {
	return d.apps[ns.Path+"/"+path], nil
}

func (d *fakeDirectory) GetAppRole(_ context.Context, universalAppID, userID int64) (appInfo.Role, bool, error) {
	role, ok := d.appRoles[universalAppID][userID]
	return role, ok, nil
}

func (d *fakeDirectory) GetOrgRole(_ context.Context, orgPath string, userID int64) (appInfo.Role, bool, error) {
	role, ok := d.orgRoles[orgPath][userID]
	return role, ok, nil
}

const (
	aliceID int64 = 1
	bobID   int64 = 2
)

func demoDirectory() *fakeDirectory {
	return &fakeDirectory{
		apps: map[string]*appInfo.UniversalApp{
			"alice/private": {ID: 10, Path: "private", OwnerUsername: "alice", Visibility: appInfo.VisibilityPrivate},
			"alice/public":  {ID: 11, Path: "public", OwnerUsername: "alice", Visibility: appInfo.VisibilityPublic},
			"acme/internal": {ID: 20, Path: "internal", OrgPath: "acme", Visibility: appInfo.VisibilityInternal},
			"acme/secret":   {ID: 21, Path: "secret", OrgPath: "acme", Visibility: appInfo.VisibilityPrivate},
		},
		appRoles: map[int64]map[int64]appInfo.Role{
			10: {aliceID: appInfo.RoleOwner},
			11: {aliceID: appInfo.RoleOwner},
			21: {bobID: appInfo.RoleViewer},
		},
		orgRoles: map[string]map[int64]appInfo.Role{
			"acme": {bobID: appInfo.RoleOwner},
		},
	}
}

func TestCheckView_OwnerSeesPrivateApp(t *testing.T) {
	eng := permission.New(demoDirectory())

	app, grant, err := eng.CheckView(context.Background(), appInfo.UserActor(aliceID, "alice"), "private", permission.User("alice"))
	require.NoError(t, err)
	require.NotNil(t, app)
	require.NotNil(t, grant)
	assert.Equal(t, permission.ScopeApplication, grant.Scope)
	assert.Equal(t, appInfo.RoleOwner, grant.Role)
}

func TestCheckView_AnonymousPrivateIsNotFound(t *testing.T) {
	eng := permission.New(demoDirectory())

	_, _, err := eng.CheckView(context.Background(), appInfo.AnonymousActor(), "private", permission.User("alice"))
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NotErrorIs(t, err, apperrors.ErrForbidden)
}

func TestCheckView_MissingAppIsNotFound(t *testing.T) {
	eng := permission.New(demoDirectory())

	_, _, err := eng.CheckView(context.Background(), appInfo.UserActor(aliceID, "alice"), "ghost", permission.User("alice"))
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCheckView_VisibilityFallback(t *testing.T) {
	eng := permission.New(demoDirectory())

	// Anonymous readers only reach public apps.
	app, grant, err := eng.CheckView(context.Background(), appInfo.AnonymousActor(), "public", permission.User("alice"))
	require.NoError(t, err)
	assert.NotNil(t, app)
	assert.Nil(t, grant)

	// Any authenticated user additionally reaches internal apps.
	app, grant, err = eng.CheckView(context.Background(), appInfo.UserActor(99, "carol"), "internal", permission.Organization("acme"))
	require.NoError(t, err)
	assert.NotNil(t, app)
	assert.Nil(t, grant)

	_, _, err = eng.CheckView(context.Background(), appInfo.AnonymousActor(), "internal", permission.Organization("acme"))
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCheckView_AppGrantBeatsOrgRole(t *testing.T) {
	eng := permission.New(demoDirectory())

	// Bob owns the organization but holds an explicit viewer grant on the
	// app itself; the app-level grant is authoritative.
	_, grant, err := eng.CheckView(context.Background(), appInfo.UserActor(bobID, "bob"), "secret", permission.Organization("acme"))
	require.NoError(t, err)
	require.NotNil(t, grant)
	assert.Equal(t, permission.ScopeApplication, grant.Scope)
	assert.Equal(t, appInfo.RoleViewer, grant.Role)
}

func TestCheckView_OrgRoleFallback(t *testing.T) {
	eng := permission.New(demoDirectory())

	_, grant, err := eng.CheckView(context.Background(), appInfo.UserActor(bobID, "bob"), "internal", permission.Organization("acme"))
	require.NoError(t, err)
	require.NotNil(t, grant)
	assert.Equal(t, permission.ScopeOrganization, grant.Scope)
	assert.Equal(t, appInfo.RoleOwner, grant.Role)
}

func TestCheckView_TokenScopedToOneApp(t *testing.T) {
	eng := permission.New(demoDirectory())
	token := appInfo.TokenActor(&appInfo.AppAPIToken{ID: 1, UniversalAppID: 21})

	app, grant, err := eng.CheckView(context.Background(), token, "secret", permission.Organization("acme"))
	require.NoError(t, err)
	assert.Equal(t, int64(21), app.ID)
	assert.Nil(t, grant)

	// The same token aimed at any other app reveals nothing, not even
	// that the app exists.
	_, _, err = eng.CheckView(context.Background(), token, "public", permission.User("alice"))
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCheckManage(t *testing.T) {
	eng := permission.New(demoDirectory())

	_, grant, err := eng.CheckManage(context.Background(), appInfo.UserActor(aliceID, "alice"), "private", permission.User("alice"))
	require.NoError(t, err)
	assert.Equal(t, appInfo.RoleOwner, grant.Role)

	// A viewer grant can see the app, so the refusal is forbidden rather
	// than not found.
	_, _, err = eng.CheckManage(context.Background(), appInfo.UserActor(bobID, "bob"), "secret", permission.Organization("acme"))
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	// Visibility-only access never manages.
	_, _, err = eng.CheckManage(context.Background(), appInfo.UserActor(99, "carol"), "public", permission.User("alice"))
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	// Invisible apps stay invisible even on the manage path.
	_, _, err = eng.CheckManage(context.Background(), appInfo.UserActor(99, "carol"), "secret", permission.Organization("acme"))
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCheckUpload(t *testing.T) {
	eng := permission.New(demoDirectory())

	// A matching token uploads without any role grant.
	token := appInfo.TokenActor(&appInfo.AppAPIToken{ID: 1, UniversalAppID: 11})
	app, _, err := eng.CheckUpload(context.Background(), token, "public", permission.User("alice"))
	require.NoError(t, err)
	assert.Equal(t, int64(11), app.ID)

	// Any role holder uploads, even a viewer.
	_, _, err = eng.CheckUpload(context.Background(), appInfo.UserActor(bobID, "bob"), "secret", permission.Organization("acme"))
	require.NoError(t, err)

	// Visibility alone does not grant upload.
	_, _, err = eng.CheckUpload(context.Background(), appInfo.UserActor(99, "carol"), "public", permission.User("alice"))
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	_, _, err = eng.CheckUpload(context.Background(), appInfo.AnonymousActor(), "public", permission.User("alice"))
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}
