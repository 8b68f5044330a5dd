package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"contractdesk.org/internal/ids"
)

// CredentialStore owns identity persistence, password hashing and session
// token issuance.
type CredentialStore struct {
	store  Store
	hasher PasswordHasher
	tokens *TokenSigner
	now    func() time.Time
}

// Option configures CredentialStore behavior.
type Option func(*CredentialStore) error

// WithHasher overrides the password hasher.
func WithHasher(h PasswordHasher) Option {
	return func(s *CredentialStore) error {
		if h == nil {
			return errors.New("auth: hasher is nil")
		}
		s.hasher = h
		return nil
	}
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *CredentialStore) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewCredentialStore constructs a CredentialStore over store, signing tokens with signer.
func NewCredentialStore(store Store, signer *TokenSigner, opts ...Option) (*CredentialStore, error) {
	if store == nil {
		return nil, errors.New("auth: store is nil")
	}
	if signer == nil {
		return nil, errors.New("auth: token signer is nil")
	}
	s := &CredentialStore{
		store:  store,
		hasher: NewBcryptHasher(DefaultBcryptCost),
		tokens: signer,
		now:    time.Now,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Register validates input, hashes the password and persists a new identity.
func (s *CredentialStore) Register(ctx context.Context, in RegisterInput) (*Identity, error) {
	rec := &Identity{
		FirstName: normalizeName(in.FirstName),
		LastName:  normalizeName(in.LastName),
		Email:     NormalizeEmail(in.Email),
		Tokens:    []string{},
	}
	verr := &ValidationError{}
	rec.collectProfileErrors(verr)
	collectPasswordErrors(verr, strings.TrimSpace(in.Password))
	if err := verr.orNil(); err != nil {
		return nil, err
	}
	if err := s.SetPassword(rec, in.Password); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	rec.ID = ids.New()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	if err := s.store.Identities(ctx).Create(ctx, rec); err != nil {
		return nil, storageFailure("create identity", err)
	}
	rec.passwordChanged = false
	return rec, nil
}

// SetPassword hashes plaintext and stages it on rec. The hash is computed here,
// once per call; saving rec later never hashes again. Passing the value rec
// already stores as its hash is a no-op.
func (s *CredentialStore) SetPassword(rec *Identity, plaintext string) error {
	if rec == nil {
		return errors.New("auth: identity is nil")
	}
	plain := strings.TrimSpace(plaintext)
	if rec.PasswordHash != "" && plain == rec.PasswordHash {
		return nil
	}
	if err := checkPassword(plain); err != nil {
		return err
	}
	hash, err := s.hasher.Hash(plain)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	rec.PasswordHash = hash
	rec.passwordChanged = true
	return nil
}

// Update applies patch to rec and persists it. Either every field of the patch
// is applied or none is; rec is only modified on success.
func (s *CredentialStore) Update(ctx context.Context, rec *Identity, patch Patch) (*Identity, error) {
	if rec == nil {
		return nil, errors.New("auth: identity is nil")
	}
	next := rec.Clone()
	next.passwordChanged = rec.passwordChanged
	if patch.FirstName != nil {
		next.FirstName = normalizeName(*patch.FirstName)
	}
	if patch.LastName != nil {
		next.LastName = normalizeName(*patch.LastName)
	}
	if patch.Email != nil {
		next.Email = NormalizeEmail(*patch.Email)
	}
	if err := next.validateProfile(); err != nil {
		return nil, err
	}
	if patch.Password != nil {
		if err := s.SetPassword(next, *patch.Password); err != nil {
			return nil, err
		}
	}
	if err := s.Save(ctx, next); err != nil {
		return nil, err
	}
	*rec = *next
	return rec, nil
}

// Save validates and persists rec's profile, writing the password hash only
// when SetPassword staged a new one.
func (s *CredentialStore) Save(ctx context.Context, rec *Identity) error {
	if err := rec.validateProfile(); err != nil {
		return err
	}
	rec.UpdatedAt = s.now().UTC()
	if err := s.store.Identities(ctx).Save(ctx, rec); err != nil {
		return storageFailure("save identity", err)
	}
	rec.passwordChanged = false
	return nil
}

// Find loads an identity by id.
func (s *CredentialStore) Find(ctx context.Context, id string) (*Identity, error) {
	id = strings.TrimSpace(id)
	if !ids.Valid(id) {
		return nil, ErrNotFound
	}
	rec, err := s.store.Identities(ctx).Find(ctx, id)
	if err != nil {
		return nil, storageFailure("find identity", err)
	}
	return rec, nil
}

// VerifyCredentials returns the identity matching email and password. Unknown
// email and wrong password both yield ErrInvalidCredentials.
func (s *CredentialStore) VerifyCredentials(ctx context.Context, email, password string) (*Identity, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	rec, err := s.store.Identities(ctx).FindByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrNotFound):
		_ = s.hasher.Compare("", password)
		return nil, ErrInvalidCredentials
	case err != nil:
		return nil, storageFailure("find identity by email", err)
	}
	if err := s.hasher.Compare(rec.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	return rec, nil
}

// IssueToken mints a session token for rec and adds it to rec's token set.
func (s *CredentialStore) IssueToken(ctx context.Context, rec *Identity) (string, error) {
	token, err := s.tokens.Sign(rec.ID)
	if err != nil {
		return "", err
	}
	if err := s.store.Identities(ctx).AppendToken(ctx, rec.ID, token); err != nil {
		return "", storageFailure("append token", err)
	}
	rec.Tokens = append(rec.Tokens, token)
	return token, nil
}

// RevokeToken removes one occurrence of token from rec's set. Absent tokens are ignored.
func (s *CredentialStore) RevokeToken(ctx context.Context, rec *Identity, token string) error {
	if err := s.store.Identities(ctx).RemoveToken(ctx, rec.ID, token); err != nil {
		return storageFailure("remove token", err)
	}
	if i := slices.Index(rec.Tokens, token); i >= 0 {
		rec.Tokens = slices.Delete(rec.Tokens, i, i+1)
	}
	return nil
}

// RevokeAllTokens empties rec's token set.
func (s *CredentialStore) RevokeAllTokens(ctx context.Context, rec *Identity) error {
	if err := s.store.Identities(ctx).ClearTokens(ctx, rec.ID); err != nil {
		return storageFailure("clear tokens", err)
	}
	rec.Tokens = []string{}
	return nil
}

// Serialize returns the client-facing view of rec.
func (s *CredentialStore) Serialize(rec *Identity) PublicIdentity {
	return rec.Public()
}

// Delete removes rec together with every contract it owns, in one transaction.
// On any failure nothing is removed.
func (s *CredentialStore) Delete(ctx context.Context, rec *Identity) error {
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		if _, err := tx.Contracts(ctx).DeleteByOwner(ctx, rec.ID); err != nil {
			return fmt.Errorf("delete owned contracts: %w", err)
		}
		if err := tx.Identities(ctx).Delete(ctx, rec.ID); err != nil {
			return fmt.Errorf("delete identity: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	rec.Tokens = []string{}
	return nil
}
