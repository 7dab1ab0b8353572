// Package api serves the tokenvault devnet over HTTP.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tokenvault/tokenvault/log"
	"github.com/tokenvault/tokenvault/metrics"
)

const (
	moduleName = "api"

	// RPCPath is where the Ethereum JSON-RPC endpoint is mounted.
	RPCPath = "/rpc"
)

// APIHandler is a handler that handles API requests.
type APIHandler interface {
	// RegisterRoutes registers routes for this API Handler
	RegisterRoutes(chi.Router)

	// Name returns the name of this API handler.
	Name() string
}

// NewRouter builds the devnet router: the REST handlers plus, if rpc is not
// nil, the JSON-RPC endpoint at RPCPath.
func NewRouter(rpc http.Handler, l *log.Logger, handlers ...APIHandler) *chi.Mux {
	logger := l.WithModule(moduleName)
	r := chi.NewRouter()
	r.Use(CorsMiddleware)
	r.Use(MetricsMiddleware(metrics.NewDefaultRequestMetrics(moduleName), logger))
	r.Use(middleware.Recoverer)

	for _, handler := range handlers {
		logger.Info("registering api handler", "handler", handler.Name())
		handler.RegisterRoutes(r)
	}
	if rpc != nil {
		r.Handle(RPCPath, rpc)
	}
	return r
}
