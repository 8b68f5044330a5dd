// Package contract defines records owned by an identity. A contract never
// outlives its owner: identity deletion removes every contract referencing it
// in the same transaction.
package contract

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrOwnerNotFound = errors.New("contract: owner not found")
	ErrInvalidInput  = errors.New("contract: invalid input")

	// ErrStillOwned is returned when an identity is deleted while contracts still reference it.
	ErrStillOwned = errors.New("contract: identity still owns contracts")
)

// Contract is a record referencing its owning identity.
type Contract struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

// Validate checks required fields.
func (c *Contract) Validate() error {
	if strings.TrimSpace(c.OwnerID) == "" || strings.TrimSpace(c.Title) == "" {
		return ErrInvalidInput
	}
	return nil
}

// Repository persists contracts.
type Repository interface {
	Create(ctx context.Context, c *Contract) error
	ListByOwner(ctx context.Context, ownerID string) ([]*Contract, error)
	// DeleteByOwner removes every contract owned by ownerID and reports how many.
	DeleteByOwner(ctx context.Context, ownerID string) (int64, error)
}
