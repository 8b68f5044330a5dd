// Package pg implements auth.Store on PostgreSQL through database/sql and the
// pgx stdlib driver.
package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/samber/oops"

	"contractdesk.org/internal/auth"
	"contractdesk.org/internal/contract"
	"contractdesk.org/internal/ids"
)

var _ auth.Store = (*Store)(nil)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db *sql.DB
	q  querier
}

// Open connects using the pgx driver with pool defaults.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return New(db), nil
}

// New wraps an existing connection pool.
func New(db *sql.DB) *Store {
	return &Store{db: db, q: db}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Identities(context.Context) auth.IdentityStore { return &identityStore{q: s.q} }

func (s *Store) Contracts(context.Context) contract.Repository { return &contractStore{q: s.q} }

// WithinTx runs fn inside a database transaction. Nested calls reuse the
// outer transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx auth.Store) error) error {
	if _, nested := s.q.(*sql.Tx); nested {
		return fn(ctx, s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dbErr("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(ctx, &Store{db: s.db, q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return dbErr("commit tx", err)
	}
	return nil
}

func dbErr(op string, err error, kv ...any) error {
	return oops.In("pg").Code("DB_QUERY_FAILED").With("op", op).With(kv...).Wrap(err)
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// Identity store -----------------------------------------------------------
type identityStore struct{ q querier }

const identityColumns = `id, first_name, last_name, email, password_hash, tokens, created_at, updated_at`

func (s *identityStore) Create(ctx context.Context, id *auth.Identity) error {
	tokens := id.Tokens
	if tokens == nil {
		tokens = []string{}
	}
	raw, err := json.Marshal(tokens)
	if err != nil {
		return err
	}
	_, err = s.q.ExecContext(ctx,
		`insert into users(`+identityColumns+`) values($1,$2,$3,$4,$5,$6::jsonb,$7,$8)`,
		id.ID, id.FirstName, id.LastName, id.Email, id.PasswordHash, string(raw), id.CreatedAt, id.UpdatedAt,
	)
	if pgCode(err) == pgerrcode.UniqueViolation {
		return auth.ErrConflict
	}
	if err != nil {
		return dbErr("insert identity", err, "identity_id", id.ID)
	}
	return nil
}

func (s *identityStore) scan(row *sql.Row, op string, kv ...any) (*auth.Identity, error) {
	var (
		rec    auth.Identity
		tokens []byte
	)
	err := row.Scan(&rec.ID, &rec.FirstName, &rec.LastName, &rec.Email, &rec.PasswordHash, &tokens, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, dbErr(op, err, kv...)
	}
	rec.Tokens = []string{}
	if len(tokens) > 0 {
		if err := json.Unmarshal(tokens, &rec.Tokens); err != nil {
			return nil, dbErr(op, err, kv...)
		}
	}
	return &rec, nil
}

func (s *identityStore) Find(ctx context.Context, id string) (*auth.Identity, error) {
	row := s.q.QueryRowContext(ctx, `select `+identityColumns+` from users where id=$1`, id)
	return s.scan(row, "find identity", "identity_id", id)
}

func (s *identityStore) FindByEmail(ctx context.Context, email string) (*auth.Identity, error) {
	row := s.q.QueryRowContext(ctx, `select `+identityColumns+` from users where email=$1`, email)
	return s.scan(row, "find identity by email")
}

func (s *identityStore) Save(ctx context.Context, id *auth.Identity) error {
	var (
		res sql.Result
		err error
	)
	if id.PasswordChanged() {
		res, err = s.q.ExecContext(ctx,
			`update users set first_name=$2, last_name=$3, email=$4, updated_at=$5, password_hash=$6 where id=$1`,
			id.ID, id.FirstName, id.LastName, id.Email, id.UpdatedAt, id.PasswordHash)
	} else {
		res, err = s.q.ExecContext(ctx,
			`update users set first_name=$2, last_name=$3, email=$4, updated_at=$5 where id=$1`,
			id.ID, id.FirstName, id.LastName, id.Email, id.UpdatedAt)
	}
	if pgCode(err) == pgerrcode.UniqueViolation {
		return auth.ErrConflict
	}
	if err != nil {
		return dbErr("update identity", err, "identity_id", id.ID)
	}
	return requireRow(res, "update identity", id.ID)
}

func (s *identityStore) AppendToken(ctx context.Context, id, token string) error {
	res, err := s.q.ExecContext(ctx,
		`update users set tokens = tokens || jsonb_build_array($2::text) where id=$1`, id, token)
	if err != nil {
		return dbErr("append token", err, "identity_id", id)
	}
	return requireRow(res, "append token", id)
}

// RemoveToken deletes the first array element equal to token.
func (s *identityStore) RemoveToken(ctx context.Context, id, token string) error {
	res, err := s.q.ExecContext(ctx, `
		update users u set tokens = u.tokens - (
			select (t.ord - 1)::int
			from jsonb_array_elements_text(u.tokens) with ordinality as t(tok, ord)
			where t.tok = $2
			order by t.ord
			limit 1
		)
		where u.id=$1 and u.tokens ? $2`, id, token)
	if err != nil {
		return dbErr("remove token", err, "identity_id", id)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}
	var one int
	err = s.q.QueryRowContext(ctx, `select 1 from users where id=$1`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.ErrNotFound
	}
	if err != nil {
		return dbErr("remove token", err, "identity_id", id)
	}
	return nil
}

func (s *identityStore) ClearTokens(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `update users set tokens = '[]'::jsonb where id=$1`, id)
	if err != nil {
		return dbErr("clear tokens", err, "identity_id", id)
	}
	return requireRow(res, "clear tokens", id)
}

func (s *identityStore) Delete(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `delete from users where id=$1`, id)
	if pgCode(err) == pgerrcode.ForeignKeyViolation {
		return contract.ErrStillOwned
	}
	if err != nil {
		return dbErr("delete identity", err, "identity_id", id)
	}
	return requireRow(res, "delete identity", id)
}

func requireRow(res sql.Result, op, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return dbErr(op, err, "identity_id", id)
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

// Contract store -----------------------------------------------------------
type contractStore struct{ q querier }

func (s *contractStore) Create(ctx context.Context, c *contract.Contract) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.ID == "" {
		c.ID = ids.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := s.q.ExecContext(ctx,
		`insert into contracts(id, owner_id, title, created_at) values($1,$2,$3,$4)`,
		c.ID, c.OwnerID, c.Title, c.CreatedAt)
	if pgCode(err) == pgerrcode.ForeignKeyViolation {
		return contract.ErrOwnerNotFound
	}
	if err != nil {
		return dbErr("insert contract", err, "owner_id", c.OwnerID)
	}
	return nil
}

func (s *contractStore) ListByOwner(ctx context.Context, ownerID string) ([]*contract.Contract, error) {
	rows, err := s.q.QueryContext(ctx,
		`select id, owner_id, title, created_at from contracts where owner_id=$1 order by id`, ownerID)
	if err != nil {
		return nil, dbErr("list contracts", err, "owner_id", ownerID)
	}
	defer rows.Close()

	var res []*contract.Contract
	for rows.Next() {
		var c contract.Contract
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Title, &c.CreatedAt); err != nil {
			return nil, dbErr("list contracts", err, "owner_id", ownerID)
		}
		res = append(res, &c)
	}
	return res, rows.Err()
}

func (s *contractStore) DeleteByOwner(ctx context.Context, ownerID string) (int64, error) {
	res, err := s.q.ExecContext(ctx, `delete from contracts where owner_id=$1`, ownerID)
	if err != nil {
		return 0, dbErr("delete contracts", err, "owner_id", ownerID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, dbErr("delete contracts", err, "owner_id", ownerID)
	}
	return n, nil
}
