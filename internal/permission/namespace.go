package permission

// Kind distinguishes the two namespace flavors an app can live under.
type Kind int

const (
	KindUser Kind = iota
	KindOrganization
)

func (k Kind) String() string {
	if k == KindOrganization {
		return "Organization"
	}
	return "User"
}

// Namespace is a per-request lookup key: a path segment tagged with the
// kind of owner it names. It is never persisted.
type Namespace struct {
	Kind Kind
	Path string
}

func User(path string) Namespace {
	return Namespace{Kind: KindUser, Path: path}
}

func Organization(path string) Namespace {
	return Namespace{Kind: KindOrganization, Path: path}
}

func (n Namespace) IsUser() bool {
	return n.Kind == KindUser
}

func (n Namespace) IsOrganization() bool {
	return n.Kind == KindOrganization
}
