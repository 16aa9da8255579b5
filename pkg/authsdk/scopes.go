package authsdk

// Scopes understood by the server. Unknown scopes are carried through to
// relying parties untouched.
const (
	ScopeOpenID  = "openid"
	ScopeProfile = "profile"
	ScopeEmail   = "email"

	// ScopeTenant releases the tenant_id claim.
	ScopeTenant = "tenant"

	// ScopeAdmin gates the administrative API. The caller's role is still
	// checked on top of it.
	ScopeAdmin = "admin"
)
