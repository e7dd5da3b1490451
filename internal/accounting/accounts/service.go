package accounts

import (
	"context"
	"fmt"

	"github.com/meridian-erp/meridian-erp/internal/accounting/shared"
)

// Resolver maps a company and posting purpose to a canonical account
// reference. Pure lookup; it never mutates the chart of accounts.
type Resolver struct {
	repo Repository
}

func NewResolver(repo Repository) *Resolver {
	return &Resolver{repo: repo}
}

func (r *Resolver) List(ctx context.Context) ([]Account, error) {
	return r.repo.List(ctx)
}

// Lookup returns the account for an id. Callers check Postable themselves
// when they need a postability guarantee.
func (r *Resolver) Lookup(ctx context.Context, id int64) (Account, error) {
	return r.repo.Get(ctx, id)
}

// LookupMany loads a batch of accounts keyed by id. Missing ids are simply
// absent from the result.
func (r *Resolver) LookupMany(ctx context.Context, ids []int64) (map[int64]Account, error) {
	return r.repo.GetMany(ctx, ids)
}

// Resolve returns the postable account mapped to the purpose for the company,
// falling back to the global mapping. The mapped account must itself be
// usable for postings.
func (r *Resolver) Resolve(ctx context.Context, companyID int64, purpose Purpose) (AccountRef, error) {
	accountID, err := r.repo.ResolveMapping(ctx, companyID, purpose)
	if err != nil {
		return AccountRef{}, fmt.Errorf("resolve %s for company %d: %w", purpose, companyID, err)
	}
	account, err := r.repo.Get(ctx, accountID)
	if err != nil {
		return AccountRef{}, err
	}
	if !account.Postable() {
		return AccountRef{}, fmt.Errorf("account %s mapped to %s: %w", account.Code, purpose, shared.ErrInvalidAccount)
	}
	return AccountRef{ID: account.ID, Code: account.Code}, nil
}
