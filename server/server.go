package server

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-oidc-relay/auth"
	"github.com/jrsteele09/go-oidc-relay/internal/config"
	"github.com/jrsteele09/go-oidc-relay/internal/metrics"
	"github.com/jrsteele09/go-oidc-relay/relay"
	"github.com/jrsteele09/go-oidc-relay/server/loginsession"
	"github.com/jrsteele09/go-oidc-relay/token"
	"github.com/prometheus/client_golang/prometheus"
)

// Dependencies are the collaborators a Server routes requests to.
type Dependencies struct {
	Authenticator *auth.Authenticator
	Sessions      *loginsession.Store
	Relay         *relay.Client
	Metrics       *metrics.Metrics
	Gatherer      prometheus.Gatherer // Served at /metrics when set
}

type Server struct {
	env      string // Environment (e.g., "DEV", "PROD")
	mux      *http.ServeMux
	routes   []string
	config   config.Config
	auth     *auth.Authenticator
	guard    *auth.Guard
	sessions *loginsession.Store
	relay    *relay.Client
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer

	webAPI relay.Endpoint
	graph  relay.Endpoint
}

func New(config config.Config, deps Dependencies) (*Server, error) {
	if deps.Authenticator == nil || deps.Sessions == nil || deps.Relay == nil {
		return nil, errors.New("[Server New] authenticator, sessions and relay are required")
	}

	webAPIToken, err := token.ParseKind(config.GetWebAPIToken())
	if err != nil {
		return nil, fmt.Errorf("[Server New] invalid web API token kind: %w", err)
	}

	s := &Server{
		env:      config.GetEnv(),
		mux:      http.NewServeMux(),
		config:   config,
		auth:     deps.Authenticator,
		guard:    auth.NewGuard(deps.Sessions, RouteLogin),
		sessions: deps.Sessions,
		relay:    deps.Relay,
		metrics:  deps.Metrics,
		gatherer: deps.Gatherer,
		webAPI: relay.Endpoint{
			Name:  "webapi",
			URL:   config.GetWebAPIURL(),
			Token: webAPIToken,
		},
		graph: relay.Endpoint{
			Name:  "graph",
			URL:   config.GetGraphURL(),
			Token: token.KindAccess,
		},
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

// ANSI colours for the DEV route listing
const (
	colourGreen = "\033[32m"
	colourBlue  = "\033[34m"
	colourGray  = "\033[90m"
	colourReset = "\033[0m"
)

var methodColours = map[string]string{
	http.MethodGet:  colourGreen,
	http.MethodPost: colourBlue,
}

func logRoute(method, path string) {
	colour, ok := methodColours[method]
	if !ok {
		colour = colourGray
	}
	displayMethod := colour + fmt.Sprintf(" %-7s", method) + colourReset
	log.Printf("[%-19s] %s\n", displayMethod, path)
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
