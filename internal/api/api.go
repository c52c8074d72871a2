// Package api serves the tradeflow REST surface and mounts the WebSocket
// endpoint.
//
// Every JSON response uses the Envelope shape. Errors carry their code in
// "error" and the HTTP status follows the error kind.
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/felixgeelhaar/tradeflow/internal/auth"
	"github.com/felixgeelhaar/tradeflow/internal/chat"
	"github.com/felixgeelhaar/tradeflow/internal/config"
	"github.com/felixgeelhaar/tradeflow/internal/errors"
	"github.com/felixgeelhaar/tradeflow/internal/log"
	"github.com/felixgeelhaar/tradeflow/internal/metrics"
	"github.com/felixgeelhaar/tradeflow/internal/module"
	"github.com/felixgeelhaar/tradeflow/internal/notify"
	"github.com/felixgeelhaar/tradeflow/internal/orchestrator"
	"github.com/felixgeelhaar/tradeflow/internal/plan"
)

// Deps are the services the API routes onto.
type Deps struct {
	Config       config.Config
	Plans        *plan.Store
	Orchestrator *orchestrator.Orchestrator
	Dispatcher   *module.Dispatcher
	Chat         *chat.Service
	Auth         *auth.Service
	// Hub enables /ws when set.
	Hub     *notify.Hub
	Logger  *log.Logger
	Metrics *metrics.Metrics
}

// API is the root HTTP handler.
type API struct {
	cfg        config.Config
	plans      *plan.Store
	orch       *orchestrator.Orchestrator
	dispatcher *module.Dispatcher
	chat       *chat.Service
	auth       *auth.Service
	hub        *notify.Hub
	logger     *log.Logger
	metrics    *metrics.Metrics

	validator *requestValidator
	authMW    *auth.Middleware
	general   *clientLimiter
	login     *clientLimiter
	handler   http.Handler
}

// New builds the API. It fails when the embedded OpenAPI document does not
// load or a required service is missing.
func New(ctx context.Context, d Deps) (*API, error) {
	switch {
	case d.Plans == nil, d.Orchestrator == nil, d.Dispatcher == nil:
		return nil, errors.New(errors.ErrCodeConfig, "api requires the plan store, orchestrator and dispatcher")
	case d.Chat == nil, d.Auth == nil:
		return nil, errors.New(errors.ErrCodeConfig, "api requires the chat and auth services")
	}

	v, err := newRequestValidator(ctx)
	if err != nil {
		return nil, fmt.Errorf("api: %w", err)
	}

	logger := d.Logger
	if logger == nil {
		logger = log.DefaultLogger()
	}

	a := &API{
		cfg:        d.Config,
		plans:      d.Plans,
		orch:       d.Orchestrator,
		dispatcher: d.Dispatcher,
		chat:       d.Chat,
		auth:       d.Auth,
		hub:        d.Hub,
		logger:     logger.WithComponent("api"),
		metrics:    d.Metrics,
		validator:  v,
	}
	a.authMW = auth.NewMiddleware(d.Auth.Sessions(), a.writeError)

	if rl := d.Config.RateLimit; rl.Enabled {
		if rl.Requests > 0 && rl.Window > 0 {
			a.general = newClientLimiter(rl.Requests, rl.Window, rl.ClientIdleTime,
				"too many requests, please try again later")
		}
		if rl.LoginRequests > 0 && rl.LoginWindow > 0 {
			a.login = newClientLimiter(rl.LoginRequests, rl.LoginWindow, rl.ClientIdleTime,
				"too many login attempts, please try again later")
		}
	}

	a.handler = a.chain(a.routes())
	return a, nil
}

// ServeHTTP implements http.Handler.
func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.handler.ServeHTTP(w, r)
}

// chain applies the middleware shared by every route, outermost first.
func (a *API) chain(mux http.Handler) http.Handler {
	h := a.instrument(mux)
	h = a.limitBody(h)
	h = a.cors(h)
	h = securityHeaders(h)
	h = a.accessLog(h)
	h = requestID(h)
	return a.recoverer(h)
}

func (a *API) routes() *http.ServeMux {
	mux := http.NewServeMux()

	public := func(h http.HandlerFunc) http.Handler {
		return a.validated(h)
	}
	private := func(h http.HandlerFunc) http.Handler {
		return a.rateLimit(a.general, a.authMW.RequireAuth(a.validated(h)))
	}
	credentials := func(h http.HandlerFunc) http.Handler {
		return a.rateLimit(a.login, a.rateLimit(a.general, public(h)))
	}
	admin := func(h http.HandlerFunc) http.Handler {
		return a.rateLimit(a.general, a.authMW.RequireRole(auth.RoleAdmin)(a.validated(h)))
	}

	mux.Handle("POST /api/auth/register", credentials(a.register))
	mux.Handle("POST /api/auth/login", credentials(a.loginUser))
	mux.Handle("GET /api/auth/verify", private(a.verify))
	mux.Handle("GET /api/auth/me", private(a.me))
	mux.Handle("POST /api/auth/refresh", private(a.refresh))

	mux.Handle("PATCH /api/admin/users/{id}", admin(a.updateAccount))

	mux.Handle("GET /api/plans", private(a.listPlans))
	mux.Handle("POST /api/plans", private(a.createPlan))
	mux.Handle("GET /api/plans/{id}", private(a.getPlan))
	mux.Handle("PUT /api/plans/{id}", private(a.updatePlan))
	mux.Handle("DELETE /api/plans/{id}", private(a.deletePlan))
	mux.Handle("POST /api/plans/{id}/execute", private(a.executePlan))
	mux.Handle("GET /api/plans/{id}/execution", private(a.getExecution))

	mux.Handle("GET /api/mcp/modules", private(a.listModules))
	mux.Handle("GET /api/mcp/modules/{id}", private(a.getModule))
	mux.Handle("POST /api/mcp/execute", private(a.executeModule))
	mux.Handle("POST /api/mcp/execute-batch", private(a.executeModuleBatch))

	mux.Handle("GET /api/chat", private(a.listMessages))
	mux.Handle("POST /api/chat/send", private(a.sendMessage))
	mux.Handle("DELETE /api/chat/{id}", private(a.deleteMessage))

	mux.HandleFunc("GET /api/openapi.yaml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(openapiDocument)
	})

	if a.hub != nil {
		mux.Handle("GET /ws", notify.NewWebSocketHandler(a.hub, notify.WebSocketConfig{
			Verifier:       a.auth.Sessions(),
			Authorize:      a.authorizeWorkflow,
			OnMessage:      a.chatFromSocket,
			AllowedOrigins: a.cfg.Server.CORSOrigins,
			PingInterval:   a.cfg.Notify.PingInterval,
			WriteTimeout:   a.cfg.Notify.WriteTimeout,
			Logger:         a.logger,
			Metrics:        a.metrics,
		}))
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		a.writeError(w, r, errors.New(errors.ErrCodeRouteNotFound,
			fmt.Sprintf("route not found: %s %s", r.Method, r.URL.Path)))
	})

	return mux
}

func (a *API) validated(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := a.validator.check(r); err != nil {
			a.writeError(w, r, err)
			return
		}
		next(w, r)
	})
}

// identity returns the caller attached by RequireAuth.
func identity(r *http.Request) *auth.Identity {
	return auth.IdentityFromContext(r.Context())
}
