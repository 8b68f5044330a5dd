package httpapi

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"contractdesk.org/internal/auth"
	"contractdesk.org/internal/obs"
)

const serviceName = "contractdesk-api"

// ReadinessChecker reports whether dependencies are reachable.
type ReadinessChecker interface {
	Check(ctx context.Context) error
}

// ReadyProbe reports readiness; with a database configured it pings it.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options wires the HTTP layer to its collaborators.
type Options struct {
	Credentials   *auth.CredentialStore
	Authenticator *auth.Authenticator
	Ready         ReadinessChecker
	Version       string
	// MaxBodyBytes caps request bodies; zero means 1 MiB.
	MaxBodyBytes int64
}

// API is the HTTP layer.
type API struct {
	mux     *http.ServeMux
	creds   *auth.CredentialStore
	authn   *auth.Authenticator
	ready   ReadinessChecker
	version string
	maxBody int64
}

func New(opts Options) (*API, error) {
	if opts.Credentials == nil {
		return nil, errors.New("httpapi: credential store is required")
	}
	if opts.Authenticator == nil {
		return nil, errors.New("httpapi: authenticator is required")
	}
	a := &API{
		mux:     http.NewServeMux(),
		creds:   opts.Credentials,
		authn:   opts.Authenticator,
		ready:   opts.Ready,
		version: opts.Version,
		maxBody: opts.MaxBodyBytes,
	}
	if a.ready == nil {
		a.ready = ReadyProbe{}
	}
	if a.maxBody <= 0 {
		a.maxBody = 1 << 20
	}

	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.Handle("GET /metrics", obs.Handler())

	a.mux.HandleFunc("GET /api", a.hello)
	a.mux.HandleFunc("POST /api/users", a.register)
	a.mux.HandleFunc("POST /api/users/login", a.login)
	a.mux.HandleFunc("POST /api/users/logout", a.requireSession(a.logout))
	a.mux.HandleFunc("POST /api/users/logoutAll", a.requireSession(a.logoutAll))
	a.mux.HandleFunc("GET /api/users/me", a.requireSession(a.me))
	a.mux.HandleFunc("PATCH /api/users/me", a.requireSession(a.updateMe))
	a.mux.HandleFunc("DELETE /api/users/me", a.requireSession(a.deleteMe))
	a.mux.HandleFunc("GET /api/users/{id}", a.getUser)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusNotFound)
	})

	return a, nil
}

// Handler returns the mux wrapped in the middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = obs.Instrument(a.mux)
	h = MaxBodyBytes(h, a.maxBody)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return Recover(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) hello(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Hello"})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.ready.Check(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}
