package appInfo

import (
	"time"
)

type OperatingSystem string

const (
	OSiOS     OperatingSystem = "iOS"
	OSAndroid OperatingSystem = "Android"
)

// Visibility orders who may see an app without holding a role.
type Visibility int

const (
	VisibilityPrivate Visibility = iota
	VisibilityInternal
	VisibilityPublic
)

type Role int

const (
	RoleNone Role = iota
	RoleViewer
	RoleManager
	RoleOwner
)

func (r Role) CanManage() bool {
	return r == RoleOwner || r == RoleManager
}

// UniversalApp groups the platform variants of one product and carries
// the ownership and visibility used by permission checks. Exactly one of
// OwnerUsername / OrgPath is set.
type UniversalApp struct {
	ID            int64      `json:"id"`
	Path          string     `json:"path"`
	Name          string     `json:"name"`
	InstallSlug   string     `json:"install_slug"`
	OwnerUsername string     `json:"owner,omitempty"`
	OrgPath       string     `json:"org,omitempty"`
	Visibility    Visibility `json:"visibility"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Application is one platform-specific variant of a UniversalApp.
type Application struct {
	ID             int64           `json:"id"`
	UniversalAppID int64           `json:"universal_app_id"`
	OS             OperatingSystem `json:"os"`
	IconKey        string          `json:"icon_key,omitempty"`
}

// AppAPIToken is an upload credential scoped to exactly one universal app.
// Token issuance and validation belong to the excluded auth subsystem; the
// core only ever sees an already-validated token.
type AppAPIToken struct {
	ID             int64 `json:"id"`
	UniversalAppID int64 `json:"universal_app_id"`
}

// Actor is the identity a request acts as: an authenticated user, an app
// API token, or anonymous. Immutable per request.
type Actor struct {
	UserID   int64
	Username string
	Token    *AppAPIToken
}

func AnonymousActor() Actor {
	return Actor{}
}

func UserActor(id int64, username string) Actor {
	return Actor{UserID: id, Username: username}
}

func TokenActor(token *AppAPIToken) Actor {
	return Actor{Token: token}
}

func (a Actor) IsAnonymous() bool {
	return a.UserID == 0 && a.Token == nil
}

func (a Actor) IsAuthenticated() bool {
	return a.UserID != 0
}
