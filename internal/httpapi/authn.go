package httpapi

import (
	"errors"
	"net/http"

	"contractdesk.org/internal/audit"
	"contractdesk.org/internal/auth"
	"contractdesk.org/internal/obs"
)

const authHeader = "Authorization"

// sessionHandler is a handler that runs only for an authenticated request.
type sessionHandler func(w http.ResponseWriter, r *http.Request, sess auth.Session)

// requireSession authenticates the bearer token and hands the resulting
// session to next. Rejections get 401 with no body so clients learn nothing
// about why a token was refused; the reason goes to metrics and logs.
func (a *API) requireSession(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := a.authn.Authenticate(r.Context(), r.Header.Get(authHeader))
		if err != nil {
			if errors.Is(err, auth.ErrAuthentication) {
				reason := auth.RejectionReason(err)
				obs.RecordAuthRejection(reason)
				obs.Logger().DebugContext(r.Context(), "auth_rejected",
					"request_id", audit.RequestIDFromContext(r.Context()),
					"path", r.URL.Path,
					"reason", reason,
				)
				w.Header().Set("WWW-Authenticate", "Bearer")
				writeStatus(w, http.StatusUnauthorized)
				return
			}
			obs.LogError(r.Context(), "authenticate", err, "request_id", audit.RequestIDFromContext(r.Context()))
			writeStatus(w, http.StatusInternalServerError)
			return
		}
		ctx := auth.ContextWithUserID(r.Context(), sess.Identity.ID)
		next(w, r.WithContext(ctx), sess)
	}
}
