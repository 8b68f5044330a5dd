package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"contractdesk.org/internal/auth"
	"contractdesk.org/internal/contract"
	"contractdesk.org/internal/ids"
	"contractdesk.org/internal/store/memory"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
}

func newTestAPI(t *testing.T, store auth.Store) *apiClient {
	t.Helper()
	if store == nil {
		store = memory.New()
	}
	signer, err := auth.NewTokenSigner("test-secret-value")
	require.NoError(t, err)
	creds, err := auth.NewCredentialStore(store, signer, auth.WithHasher(auth.NewBcryptHasher(bcrypt.MinCost)))
	require.NoError(t, err)
	api, err := New(Options{
		Credentials:   creds,
		Authenticator: auth.NewAuthenticator(store, signer),
		Version:       "test",
	})
	require.NoError(t, err)

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{baseURL: srv.URL, client: srv.Client(), t: t}
}

func (c *apiClient) do(method, path, token string, body any) (*http.Response, []byte) {
	c.t.Helper()
	var payload io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		payload = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(c.t, err)
		payload = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.baseURL+path, payload)
	require.NoError(c.t, err)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.client.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	return resp, data
}

type session struct {
	User  map[string]any `json:"user"`
	Token string         `json:"token"`
}

func (c *apiClient) register(email string) session {
	c.t.Helper()
	resp, body := c.do(http.MethodPost, "/api/users", "", map[string]string{
		"firstName": "Jane", "lastName": "Doe", "email": email, "password": "secret12",
	})
	require.Equal(c.t, http.StatusCreated, resp.StatusCode, string(body))
	var s session
	require.NoError(c.t, json.Unmarshal(body, &s))
	return s
}

func decodeMap(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(body, &m), string(body))
	return m
}

func TestRegisterThenMe(t *testing.T) {
	c := newTestAPI(t, nil)
	s := c.register("jane@x.com")

	assert.NotEmpty(t, s.Token)
	assert.Equal(t, "jane@x.com", s.User["email"])
	assert.NotContains(t, s.User, "password")
	assert.NotContains(t, s.User, "tokens")

	resp, body := c.do(http.MethodGet, "/api/users/me", s.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, s.User, decodeMap(t, body))
}

func TestRegisterFailures(t *testing.T) {
	c := newTestAPI(t, nil)
	c.register("jane@x.com")

	cases := map[string]any{
		"bad email":      map[string]string{"firstName": "a", "lastName": "b", "email": "nope", "password": "secret12"},
		"short password": map[string]string{"firstName": "a", "lastName": "b", "email": "a@b.co", "password": " abc  "},
		"duplicate":      map[string]string{"firstName": "a", "lastName": "b", "email": "JANE@x.com", "password": "secret12"},
		"malformed":      `{"firstName":`,
		"empty":          nil,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			resp, data := c.do(http.MethodPost, "/api/users", "", body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.NotEmpty(t, decodeMap(t, data)["error"])
		})
	}
}

func TestLoginFailuresLookAlike(t *testing.T) {
	c := newTestAPI(t, nil)
	c.register("jane@x.com")

	resp, body := c.do(http.MethodPost, "/api/users/login", "", map[string]string{"email": "jane@x.com", "password": "secret12"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var s session
	require.NoError(t, json.Unmarshal(body, &s))
	assert.NotEmpty(t, s.Token)

	_, wrongPassword := c.do(http.MethodPost, "/api/users/login", "", map[string]string{"email": "jane@x.com", "password": "secret13"})
	resp, unknownEmail := c.do(http.MethodPost, "/api/users/login", "", map[string]string{"email": "who@x.com", "password": "secret12"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "unable to login", decodeMap(t, wrongPassword)["error"])
	assert.Equal(t, "unable to login", decodeMap(t, unknownEmail)["error"])
}

func TestLogoutRevokesOnlyThatToken(t *testing.T) {
	c := newTestAPI(t, nil)
	first := c.register("jane@x.com")
	_, body := c.do(http.MethodPost, "/api/users/login", "", map[string]string{"email": "jane@x.com", "password": "secret12"})
	var second session
	require.NoError(t, json.Unmarshal(body, &second))

	resp, body := c.do(http.MethodPost, "/api/users/logout", first.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body)

	resp, _ = c.do(http.MethodGet, "/api/users/me", first.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = c.do(http.MethodGet, "/api/users/me", second.Token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLogoutAll(t *testing.T) {
	c := newTestAPI(t, nil)
	first := c.register("jane@x.com")
	_, body := c.do(http.MethodPost, "/api/users/login", "", map[string]string{"email": "jane@x.com", "password": "secret12"})
	var second session
	require.NoError(t, json.Unmarshal(body, &second))

	resp, _ := c.do(http.MethodPost, "/api/users/logoutAll", second.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	for _, tok := range []string{first.Token, second.Token} {
		resp, _ := c.do(http.MethodGet, "/api/users/me", tok, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
}

func TestUnauthenticatedIsEmpty401(t *testing.T) {
	c := newTestAPI(t, nil)
	for _, path := range []string{"/api/users/me", "/api/users/logout"} {
		method := http.MethodGet
		if path == "/api/users/logout" {
			method = http.MethodPost
		}
		resp, body := c.do(method, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Empty(t, body)
		assert.Equal(t, "Bearer", resp.Header.Get("WWW-Authenticate"))
	}
	resp, body := c.do(http.MethodGet, "/api/users/me", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, body)
}

func TestGetUserByID(t *testing.T) {
	c := newTestAPI(t, nil)
	s := c.register("jane@x.com")

	resp, body := c.do(http.MethodGet, "/api/users/"+s.User["id"].(string), "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, s.User, decodeMap(t, body))

	for _, id := range []string{ids.New(), "not-a-ulid"} {
		resp, body := c.do(http.MethodGet, "/api/users/"+id, "", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Empty(t, body)
	}
}

func TestPatchRejectsUnknownFieldWholesale(t *testing.T) {
	c := newTestAPI(t, nil)
	s := c.register("jane@x.com")

	for _, body := range []any{
		map[string]string{"firstName": "X", "notAField": "Y"},
		map[string]any{"firstName": 42},
		`["firstName"]`,
	} {
		resp, data := c.do(http.MethodPatch, "/api/users/me", s.Token, body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.NotEmpty(t, decodeMap(t, data)["error"])
	}
	_, data := c.do(http.MethodPatch, "/api/users/me", s.Token, map[string]string{"firstName": "X", "notAField": "Y"})
	assert.Equal(t, "invalid updates", decodeMap(t, data)["error"])

	_, body := c.do(http.MethodGet, "/api/users/me", s.Token, nil)
	assert.Equal(t, "jane", decodeMap(t, body)["firstName"])
}

func TestPatchUpdatesProfileAndPassword(t *testing.T) {
	c := newTestAPI(t, nil)
	s := c.register("jane@x.com")
	c.register("john@x.com")

	resp, body := c.do(http.MethodPatch, "/api/users/me", s.Token, map[string]string{"firstName": "Janet", "password": "newsecret1"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, "janet", decodeMap(t, body)["firstName"])

	resp, _ = c.do(http.MethodPost, "/api/users/login", "", map[string]string{"email": "jane@x.com", "password": "newsecret1"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = c.do(http.MethodPatch, "/api/users/me", s.Token, map[string]string{"email": "john@x.com"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.NotEmpty(t, decodeMap(t, body)["error"])

	resp, body = c.do(http.MethodPatch, "/api/users/me", s.Token, map[string]string{"password": "short"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	fields, _ := decodeMap(t, body)["fields"].(map[string]any)
	assert.Contains(t, fields, "password")
}

func TestDeleteMeRemovesContracts(t *testing.T) {
	store := memory.New()
	c := newTestAPI(t, store)
	s := c.register("jane@x.com")
	ctx := context.Background()
	id := s.User["id"].(string)
	for _, title := range []string{"lease", "nda"} {
		require.NoError(t, store.Contracts(ctx).Create(ctx, &contract.Contract{OwnerID: id, Title: title}))
	}

	resp, body := c.do(http.MethodDelete, "/api/users/me", s.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, id, decodeMap(t, body)["id"])

	owned, err := store.Contracts(ctx).ListByOwner(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, owned)

	resp, _ = c.do(http.MethodGet, "/api/users/me", s.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = c.do(http.MethodGet, "/api/users/"+id, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// brokenFinds fails every identity lookup by id.
type brokenFinds struct{ auth.Store }

func (s brokenFinds) Identities(ctx context.Context) auth.IdentityStore {
	return brokenFind{s.Store.Identities(ctx)}
}

type brokenFind struct{ auth.IdentityStore }

func (brokenFind) Find(context.Context, string) (*auth.Identity, error) {
	return nil, errors.New("connection refused")
}

func TestStorageFailuresAreEmpty500(t *testing.T) {
	c := newTestAPI(t, brokenFinds{memory.New()})
	s := c.register("jane@x.com")

	resp, body := c.do(http.MethodGet, "/api/users/"+s.User["id"].(string), "", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Empty(t, body)

	resp, body = c.do(http.MethodGet, "/api/users/me", s.Token, nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Empty(t, body)
}

func TestHealthAndUnknownRoutes(t *testing.T) {
	c := newTestAPI(t, nil)

	resp, body := c.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decodeMap(t, body)["status"])

	resp, _ = c.do(http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = c.do(http.MethodGet, "/api", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"message": "Hello"}, decodeMap(t, body))

	resp, body = c.do(http.MethodGet, "/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Empty(t, body)
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))
}
