package auth

import (
	"context"
	"errors"
	"strings"
)

const bearerScheme = "bearer "

// Authenticator resolves bearer tokens to identities.
type Authenticator struct {
	store  Store
	tokens *TokenSigner
}

// NewAuthenticator returns an Authenticator backed by store and signer.
func NewAuthenticator(store Store, signer *TokenSigner) *Authenticator {
	return &Authenticator{store: store, tokens: signer}
}

// Authenticate validates an Authorization header value. The token must carry a
// valid signature, name an existing identity, and still be present in that
// identity's token set; a correctly signed but revoked token is rejected.
func (a *Authenticator) Authenticate(ctx context.Context, header string) (Session, error) {
	token, err := ExtractBearer(header)
	if err != nil {
		return Session{}, err
	}
	claims, err := a.tokens.Verify(token)
	if err != nil {
		return Session{}, &RejectionError{Reason: ReasonInvalidSignature}
	}
	rec, err := a.store.Identities(ctx).Find(ctx, claims.Subject)
	switch {
	case errors.Is(err, ErrNotFound):
		return Session{}, &RejectionError{Reason: ReasonUnknownIdentity}
	case err != nil:
		return Session{}, storageFailure("find identity", err)
	}
	if !rec.HasToken(token) {
		return Session{}, &RejectionError{Reason: ReasonRevoked}
	}
	return Session{Identity: rec, Token: token}, nil
}

// ExtractBearer returns the token from a "Bearer <token>" header value.
func ExtractBearer(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" || strings.EqualFold(header, strings.TrimSpace(bearerScheme)) {
		return "", &RejectionError{Reason: ReasonMissingToken}
	}
	if len(header) < len(bearerScheme) || !strings.EqualFold(header[:len(bearerScheme)], bearerScheme) {
		return "", &RejectionError{Reason: ReasonBadScheme}
	}
	token := strings.TrimSpace(header[len(bearerScheme):])
	if token == "" {
		return "", &RejectionError{Reason: ReasonMissingToken}
	}
	return token, nil
}
