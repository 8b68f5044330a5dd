package auth

import (
	"context"

	"contractdesk.org/internal/contract"
)

// Store describes persistence operations required by the auth subsystem.
type Store interface {
	Identities(ctx context.Context) IdentityStore
	Contracts(ctx context.Context) contract.Repository
	// WithinTx runs fn against a transactional view of the store. A non-nil
	// error from fn rolls back every write made through tx.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

// IdentityStore manages identity records. Implementations return ErrNotFound for
// missing records and ErrConflict when an email is already taken.
type IdentityStore interface {
	Create(ctx context.Context, id *Identity) error
	Find(ctx context.Context, id string) (*Identity, error)
	FindByEmail(ctx context.Context, email string) (*Identity, error)
	// Save replaces the profile fields. The password hash is written only when
	// Identity.PasswordChanged reports true. Tokens are not touched.
	Save(ctx context.Context, id *Identity) error
	// AppendToken, RemoveToken and ClearTokens mutate the token set atomically
	// in storage rather than rewriting the whole record.
	AppendToken(ctx context.Context, id, token string) error
	RemoveToken(ctx context.Context, id, token string) error
	ClearTokens(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}
