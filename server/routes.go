package server

import (
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) initRoutes() {
	s.RegisterRouteFunc("GET "+RouteIndex, ChainMiddleware(s.IndexHandler(), s.BrowserMiddleware()...))

	// LOGIN
	s.RegisterRouteFunc("GET "+RouteAuthOpenID, ChainMiddleware(s.BeginAuthHandler(), s.BrowserMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteLogin, ChainMiddleware(s.BeginAuthHandler(), s.BrowserMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteCallback, ChainMiddleware(s.OAuthCallbackHandler(), s.BrowserMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteCallback, ChainMiddleware(s.OAuthCallbackHandler(), s.BrowserMiddleware()...)) // For form_post response mode
	s.RegisterRouteFunc("GET "+RouteLogout, ChainMiddleware(s.LogoutHandler(), s.BrowserMiddleware()...))

	// Protected routes (require a login session)
	s.RegisterRouteFunc("GET "+RouteAccount, ChainMiddleware(s.AccountHandler(), s.BrowserMiddleware(s.RequireSessionAuth())...))
	s.RegisterRouteFunc("GET "+RouteWebAPI, ChainMiddleware(s.RelayHandler(s.webAPI), s.BrowserMiddleware(s.RequireSessionAuth())...))
	s.RegisterRouteFunc("GET "+RouteGraph, ChainMiddleware(s.RelayHandler(s.graph), s.BrowserMiddleware(s.RequireSessionAuth())...))

	// Operational routes
	s.RegisterRouteFunc("GET "+RouteHealth, ChainMiddleware(s.HealthHandler(), s.OperationalMiddleware()...))
	if s.gatherer != nil {
		metricsHandler := promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})
		s.RegisterRouteFunc("GET "+RouteMetrics, ChainMiddleware(metricsHandler.ServeHTTP, s.OperationalMiddleware()...))
	}
}

