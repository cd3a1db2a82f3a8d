package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/derivhub/relay/internal/account"
	"github.com/derivhub/relay/internal/catalog"
	"github.com/derivhub/relay/internal/feed"
	"github.com/derivhub/relay/internal/hub"
)

// Config configures the gateway.
type Config struct {
	LoginTimeout time.Duration // Bound on the credential-login round-trip
}

// Gateway wires downstream endpoints to the multiplexer, orchestrator,
// and catalogue service.
type Gateway struct {
	cfg      Config
	feed     *feed.Multiplexer
	account  *account.Orchestrator
	catalog  *catalog.Service
	hub      *hub.Hub
	logger   *slog.Logger
	validate *validator.Validate
	upgrader websocket.Upgrader

	// flowCtx scopes spawned action flows to the process lifetime, not
	// to the downstream connection that started them.
	flowCtx context.Context
}

// New creates a gateway. flowCtx is cancelled at shutdown to stop all
// in-flight action flows.
func New(flowCtx context.Context, cfg Config, fd *feed.Multiplexer, acct *account.Orchestrator, cat *catalog.Service, h *hub.Hub, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		cfg:      cfg,
		feed:     fd,
		account:  acct,
		catalog:  cat,
		hub:      h,
		logger:   logger,
		validate: validator.New(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		flowCtx: flowCtx,
	}
}

// Router builds the HTTP routing table.
func (g *Gateway) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ws", g.handleWS)
	// Path spelling matches the downstream wire contract.
	r.HandleFunc("/api/v1/user/assests", g.handleAssets).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/user/auth/deriv/login", g.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/health", g.handleHealth).Methods(http.MethodGet)
	return r
}
