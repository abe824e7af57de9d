package server

// Route path constants
// All protocol routes are defined here to ensure consistency and prevent typos
const (
	// CAS protocol routes
	RouteAuthLogin        = "/auth/login"
	RouteAuthValidate     = "/auth/validate"
	RouteAuthCheckSession = "/auth/check-session"
	RouteAuthLogout       = "/auth/logout"
)
