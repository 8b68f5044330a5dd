// Package memory implements auth.Store in process memory. It backs development
// runs without a database and the service's tests.
package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"

	"contractdesk.org/internal/auth"
	"contractdesk.org/internal/contract"
	"contractdesk.org/internal/ids"
)

var _ auth.Store = (*Store)(nil)

// Store keeps identities and contracts in maps guarded by a mutex.
type Store struct {
	mu   sync.Mutex
	data *dataset
	// inTx marks a transactional view whose parent already holds the lock.
	inTx bool
}

type dataset struct {
	identities map[string]*auth.Identity
	byEmail    map[string]string
	contracts  map[string]*contract.Contract
}

// New creates an empty store.
func New() *Store {
	return &Store{data: &dataset{
		identities: make(map[string]*auth.Identity),
		byEmail:    make(map[string]string),
		contracts:  make(map[string]*contract.Contract),
	}}
}

func (d *dataset) clone() *dataset {
	out := &dataset{
		identities: make(map[string]*auth.Identity, len(d.identities)),
		byEmail:    make(map[string]string, len(d.byEmail)),
		contracts:  make(map[string]*contract.Contract, len(d.contracts)),
	}
	for k, v := range d.identities {
		out.identities[k] = v.Clone()
	}
	for k, v := range d.byEmail {
		out.byEmail[k] = v
	}
	for k, v := range d.contracts {
		c := *v
		out.contracts[k] = &c
	}
	return out
}

func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) Identities(context.Context) auth.IdentityStore { return identityStore{s} }

func (s *Store) Contracts(context.Context) contract.Repository { return contractStore{s} }

// WithinTx runs fn on a copy of the data and publishes the copy only if fn
// succeeds. Other callers block until the transaction finishes.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx auth.Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &Store{data: s.data.clone(), inTx: true}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.data = tx.data
	return nil
}

// Identity store -----------------------------------------------------------
type identityStore struct{ s *Store }

func (r identityStore) Create(_ context.Context, id *auth.Identity) error {
	defer r.s.lock()()
	d := r.s.data
	if _, taken := d.byEmail[id.Email]; taken {
		return auth.ErrConflict
	}
	if id.ID == "" {
		id.ID = ids.New()
	}
	d.identities[id.ID] = id.Clone()
	d.byEmail[id.Email] = id.ID
	return nil
}

func (r identityStore) Find(_ context.Context, id string) (*auth.Identity, error) {
	defer r.s.lock()()
	rec, ok := r.s.data.identities[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return rec.Clone(), nil
}

func (r identityStore) FindByEmail(_ context.Context, email string) (*auth.Identity, error) {
	defer r.s.lock()()
	id, ok := r.s.data.byEmail[email]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return r.s.data.identities[id].Clone(), nil
}

func (r identityStore) Save(_ context.Context, id *auth.Identity) error {
	defer r.s.lock()()
	d := r.s.data
	cur, ok := d.identities[id.ID]
	if !ok {
		return auth.ErrNotFound
	}
	if owner, taken := d.byEmail[id.Email]; taken && owner != id.ID {
		return auth.ErrConflict
	}
	if cur.Email != id.Email {
		delete(d.byEmail, cur.Email)
		d.byEmail[id.Email] = id.ID
	}
	cur.FirstName = id.FirstName
	cur.LastName = id.LastName
	cur.Email = id.Email
	cur.UpdatedAt = id.UpdatedAt
	if id.PasswordChanged() {
		cur.PasswordHash = id.PasswordHash
	}
	return nil
}

func (r identityStore) AppendToken(_ context.Context, id, token string) error {
	defer r.s.lock()()
	cur, ok := r.s.data.identities[id]
	if !ok {
		return auth.ErrNotFound
	}
	cur.Tokens = append(cur.Tokens, token)
	return nil
}

func (r identityStore) RemoveToken(_ context.Context, id, token string) error {
	defer r.s.lock()()
	cur, ok := r.s.data.identities[id]
	if !ok {
		return auth.ErrNotFound
	}
	if i := slices.Index(cur.Tokens, token); i >= 0 {
		cur.Tokens = slices.Delete(cur.Tokens, i, i+1)
	}
	return nil
}

func (r identityStore) ClearTokens(_ context.Context, id string) error {
	defer r.s.lock()()
	cur, ok := r.s.data.identities[id]
	if !ok {
		return auth.ErrNotFound
	}
	cur.Tokens = []string{}
	return nil
}

func (r identityStore) Delete(_ context.Context, id string) error {
	defer r.s.lock()()
	d := r.s.data
	cur, ok := d.identities[id]
	if !ok {
		return auth.ErrNotFound
	}
	for _, c := range d.contracts {
		if c.OwnerID == id {
			return contract.ErrStillOwned
		}
	}
	delete(d.byEmail, cur.Email)
	delete(d.identities, id)
	return nil
}

// Contract store -----------------------------------------------------------
type contractStore struct{ s *Store }

func (r contractStore) Create(_ context.Context, c *contract.Contract) error {
	if err := c.Validate(); err != nil {
		return err
	}
	defer r.s.lock()()
	d := r.s.data
	if _, ok := d.identities[c.OwnerID]; !ok {
		return contract.ErrOwnerNotFound
	}
	if c.ID == "" {
		c.ID = ids.New()
	}
	c.Title = strings.TrimSpace(c.Title)
	stored := *c
	d.contracts[c.ID] = &stored
	return nil
}

func (r contractStore) ListByOwner(_ context.Context, ownerID string) ([]*contract.Contract, error) {
	defer r.s.lock()()
	var res []*contract.Contract
	for _, c := range r.s.data.contracts {
		if c.OwnerID == ownerID {
			cp := *c
			res = append(res, &cp)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (r contractStore) DeleteByOwner(_ context.Context, ownerID string) (int64, error) {
	defer r.s.lock()()
	var n int64
	for id, c := range r.s.data.contracts {
		if c.OwnerID == ownerID {
			delete(r.s.data.contracts, id)
			n++
		}
	}
	return n, nil
}
