package v1

import (
	"github.com/go-chi/chi/v5"

	"github.com/tokenvault/tokenvault/deploy"
	"github.com/tokenvault/tokenvault/log"
	"github.com/tokenvault/tokenvault/metrics"
	storage "github.com/tokenvault/tokenvault/storage/client"
)

const moduleName = "api_v1"

// Handler is the tokenvault V1 API handler.
type Handler struct {
	client  *chainClient
	logger  *log.Logger
	metrics metrics.RequestMetrics
}

// NewHandler creates a new V1 API handler. s may be nil, in which case the
// endpoints serving indexed data reply with 503.
func NewHandler(c Chain, d *deploy.Deployment, s *storage.StorageClient, l *log.Logger) *Handler {
	logger := l.WithModule(moduleName)
	return &Handler{
		client:  newChainClient(c, d, s, logger),
		logger:  logger,
		metrics: metrics.NewDefaultRequestMetrics(moduleName),
	}
}

// RegisterRoutes implements the APIHandler interface.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", h.GetStatus)

		r.Route("/vault", func(r chi.Router) {
			r.Get("/", h.GetVault)
			r.Get("/roles/{role}/{account}", h.GetRoleMembership)
		})

		r.Route("/tokens/{address}", func(r chi.Router) {
			r.Get("/balances/{account}", h.GetTokenBalance)
			r.Get("/holders", h.ListTokenHolders)
		})

		r.Get("/receipts/{tx_hash}", h.GetReceipt)
		r.Get("/events", h.ListEvents)
	})
}

// Name implements the APIHandler interface.
func (h *Handler) Name() string {
	return "v1"
}
