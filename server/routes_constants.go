package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	RouteIndex = "/{$}"

	// Auth Routes - Login & Logout
	RouteLogin      = "/login"
	RouteAuthOpenID = "/auth/openid"
	RouteCallback   = "/auth/openid/return"
	RouteLogout     = "/logout"

	// Protected Routes
	RouteAccount = "/account"
	RouteWebAPI  = "/webapi"
	RouteGraph   = "/graph"

	// Operational Routes
	RouteHealth  = "/healthz"
	RouteMetrics = "/metrics"
)

// Query parameters read by the login routes
const (
	paramReturnTo        = "return_to"
	paramFailureRedirect = "failureRedirect"
	paramError           = "error"
)
