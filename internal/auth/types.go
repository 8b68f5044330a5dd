package auth

import (
	"encoding/json"
	"slices"
	"time"
)

// Identity is a persisted user account. PasswordHash and Tokens never leave the
// service: the JSON form of an Identity is its PublicIdentity.
type Identity struct {
	ID           string
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	// Tokens holds the currently valid session tokens, oldest first.
	Tokens    []string
	CreatedAt time.Time
	UpdatedAt time.Time

	passwordChanged bool
}

// PublicIdentity is the only representation of an Identity written to clients.
type PublicIdentity struct {
	ID        string    `json:"id"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Public strips credentials and session tokens.
func (i *Identity) Public() PublicIdentity {
	return PublicIdentity{
		ID:        i.ID,
		FirstName: i.FirstName,
		LastName:  i.LastName,
		Email:     i.Email,
		CreatedAt: i.CreatedAt,
		UpdatedAt: i.UpdatedAt,
	}
}

// MarshalJSON renders the public view.
func (i *Identity) MarshalJSON() ([]byte, error) {
	return json.Marshal(i.Public())
}

// HasToken reports whether token is one of the identity's live session tokens.
func (i *Identity) HasToken(token string) bool {
	return token != "" && slices.Contains(i.Tokens, token)
}

// PasswordChanged reports whether PasswordHash holds a new hash that has not
// been persisted yet. Stores write the hash column only when this is true.
func (i *Identity) PasswordChanged() bool {
	return i.passwordChanged
}

// Clone returns a deep copy. The copy carries no staged password change.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	out := *i
	out.passwordChanged = false
	out.Tokens = slices.Clone(i.Tokens)
	if out.Tokens == nil {
		out.Tokens = []string{}
	}
	return &out
}

// RegisterInput carries the fields accepted at registration.
type RegisterInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// Patch is a partial profile update. Nil fields are left unchanged.
type Patch struct {
	FirstName *string
	LastName  *string
	Email     *string
	Password  *string
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.FirstName == nil && p.LastName == nil && p.Email == nil && p.Password == nil
}

// Session is the outcome of a successful Authenticate: the resolved identity and
// the exact token string that authenticated it.
type Session struct {
	Identity *Identity
	Token    string
}
