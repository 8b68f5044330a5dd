package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"contractdesk.org/internal/audit"
	"contractdesk.org/internal/auth"
	"contractdesk.org/internal/obs"
)

type registerRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	User  auth.PublicIdentity `json:"user"`
	Token string              `json:"token"`
}

const (
	msgLoginFailed    = "unable to login"
	msgInvalidUpdates = "invalid updates"
)

var updatableFields = map[string]struct{}{
	"firstName": {},
	"lastName":  {},
	"email":     {},
	"password":  {},
}

func (a *API) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := a.creds.Register(r.Context(), auth.RegisterInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
	})
	if err != nil {
		a.writeSaveError(w, r, "register", err)
		return
	}
	token, err := a.creds.IssueToken(r.Context(), rec)
	if err != nil {
		a.writeSaveError(w, r, "register", err)
		return
	}

	obs.RecordRegistration()
	ctx := auth.ContextWithUserID(r.Context(), rec.ID)
	_ = audit.LogEvent(ctx, audit.EventRegistered, nil)
	writeJSON(w, http.StatusCreated, sessionResponse{User: a.creds.Serialize(rec), Token: token})
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := a.creds.VerifyCredentials(r.Context(), req.Email, req.Password)
	if err == nil {
		var token string
		if token, err = a.creds.IssueToken(r.Context(), rec); err == nil {
			obs.RecordLogin("success")
			ctx := auth.ContextWithUserID(r.Context(), rec.ID)
			_ = audit.LogEvent(ctx, audit.EventLogin, nil)
			writeJSON(w, http.StatusOK, sessionResponse{User: a.creds.Serialize(rec), Token: token})
			return
		}
	}

	obs.RecordLogin("failure")
	if !errors.Is(err, auth.ErrAuthentication) {
		obs.LogError(r.Context(), "login", err, "request_id", audit.RequestIDFromContext(r.Context()))
	}
	_ = audit.LogEvent(r.Context(), audit.EventLoginFailed, nil)
	writeError(w, r, http.StatusBadRequest, msgLoginFailed)
}

func (a *API) logout(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	if err := a.creds.RevokeToken(r.Context(), sess.Identity, sess.Token); err != nil {
		obs.LogError(r.Context(), "logout", err, "request_id", audit.RequestIDFromContext(r.Context()))
		writeStatus(w, http.StatusInternalServerError)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventLogout, nil)
	writeStatus(w, http.StatusOK)
}

func (a *API) logoutAll(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	revoked := len(sess.Identity.Tokens)
	if err := a.creds.RevokeAllTokens(r.Context(), sess.Identity); err != nil {
		obs.LogError(r.Context(), "logout all", err, "request_id", audit.RequestIDFromContext(r.Context()))
		writeStatus(w, http.StatusInternalServerError)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventLogoutAll, map[string]any{"revoked": revoked})
	writeStatus(w, http.StatusOK)
}

func (a *API) me(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	writeJSON(w, http.StatusOK, a.creds.Serialize(sess.Identity))
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request) {
	rec, err := a.creds.Find(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, auth.ErrNotFound):
		writeStatus(w, http.StatusNotFound)
		return
	case err != nil:
		obs.LogError(r.Context(), "get user", err, "request_id", audit.RequestIDFromContext(r.Context()))
		writeStatus(w, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, a.creds.Serialize(rec))
}

func (a *API) updateMe(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	var body map[string]json.RawMessage
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	patch, ok := parsePatch(body)
	if !ok {
		writeError(w, r, http.StatusBadRequest, msgInvalidUpdates)
		return
	}

	rec, err := a.creds.Update(r.Context(), sess.Identity, patch)
	if err != nil {
		a.writeSaveError(w, r, "update", err)
		return
	}
	fields := make([]string, 0, len(body))
	for k := range body {
		fields = append(fields, k)
	}
	_ = audit.LogEvent(r.Context(), audit.EventUpdated, map[string]any{"fields": fields})
	writeJSON(w, http.StatusOK, a.creds.Serialize(rec))
}

func (a *API) deleteMe(w http.ResponseWriter, r *http.Request, sess auth.Session) {
	if err := a.creds.Delete(r.Context(), sess.Identity); err != nil {
		obs.LogError(r.Context(), "delete user", err, "request_id", audit.RequestIDFromContext(r.Context()))
		writeStatus(w, http.StatusInternalServerError)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventDeleted, nil)
	writeJSON(w, http.StatusOK, a.creds.Serialize(sess.Identity))
}

// parsePatch accepts only string values for the updatable fields. A null body
// decodes to an empty patch.
func parsePatch(body map[string]json.RawMessage) (auth.Patch, bool) {
	var patch auth.Patch
	for key, raw := range body {
		if _, ok := updatableFields[key]; !ok {
			return auth.Patch{}, false
		}
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return auth.Patch{}, false
		}
		switch key {
		case "firstName":
			patch.FirstName = &v
		case "lastName":
			patch.LastName = &v
		case "email":
			patch.Email = &v
		case "password":
			patch.Password = &v
		}
	}
	return patch, true
}

// writeSaveError answers register and profile-update failures. Both routes
// report every failure as 400; storage faults are logged but not described.
func (a *API) writeSaveError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var verr *auth.ValidationError
	switch {
	case errors.As(err, &verr):
		writeErrorFields(w, r, http.StatusBadRequest, verr.Error(), verr.Fields)
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusBadRequest, "email already registered")
	default:
		obs.LogError(r.Context(), op, err, "request_id", audit.RequestIDFromContext(r.Context()))
		writeError(w, r, http.StatusBadRequest, op+" failed")
	}
}
