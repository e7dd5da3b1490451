package accounts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/accounting/shared"
)

type memoryAccountRepo struct {
	accounts map[int64]Account
	// mappings is keyed by company id, with 0 holding the global fallback.
	mappings map[int64]map[Purpose]int64
}

func (r *memoryAccountRepo) List(ctx context.Context) ([]Account, error) {
	out := make([]Account, 0, len(r.accounts))
	for _, a := range r.accounts {
		out = append(out, a)
	}
	return out, nil
}

func (r *memoryAccountRepo) Get(ctx context.Context, id int64) (Account, error) {
	a, ok := r.accounts[id]
	if !ok {
		return Account{}, shared.ErrInvalidAccount
	}
	return a, nil
}

func (r *memoryAccountRepo) GetMany(ctx context.Context, ids []int64) (map[int64]Account, error) {
	out := make(map[int64]Account)
	for _, id := range ids {
		if a, ok := r.accounts[id]; ok {
			out[id] = a
		}
	}
	return out, nil
}

func (r *memoryAccountRepo) ResolveMapping(ctx context.Context, companyID int64, purpose Purpose) (int64, error) {
	if m, ok := r.mappings[companyID]; ok {
		if id, ok := m[purpose]; ok {
			return id, nil
		}
	}
	if m, ok := r.mappings[0]; ok {
		if id, ok := m[purpose]; ok {
			return id, nil
		}
	}
	return 0, shared.ErrAccountNotConfigured
}

func testRepo() *memoryAccountRepo {
	return &memoryAccountRepo{
		accounts: map[int64]Account{
			1100: {ID: 1100, Code: "1100", RootType: RootTypeAsset, IsActive: true},
			1190: {ID: 1190, Code: "1190", RootType: RootTypeAsset, IsActive: true},
			1900: {ID: 1900, Code: "1900", RootType: RootTypeAsset, IsGroup: true, IsActive: true},
		},
		mappings: map[int64]map[Purpose]int64{
			0: {PurposeReceivable: 1100, PurposeBank: 1900},
			2: {PurposeReceivable: 1190},
		},
	}
}

func TestResolvePrefersCompanyMapping(t *testing.T) {
	resolver := NewResolver(testRepo())

	ref, err := resolver.Resolve(context.Background(), 2, PurposeReceivable)
	require.NoError(t, err)
	require.Equal(t, int64(1190), ref.ID)
	require.Equal(t, "1190", ref.Code)
}

func TestResolveFallsBackToGlobalMapping(t *testing.T) {
	resolver := NewResolver(testRepo())

	ref, err := resolver.Resolve(context.Background(), 9, PurposeReceivable)
	require.NoError(t, err)
	require.Equal(t, int64(1100), ref.ID)
}

func TestResolveUnmappedPurpose(t *testing.T) {
	resolver := NewResolver(testRepo())

	_, err := resolver.Resolve(context.Background(), 1, PurposeWriteOff)
	require.ErrorIs(t, err, shared.ErrAccountNotConfigured)
}

func TestResolveRejectsGroupAccount(t *testing.T) {
	resolver := NewResolver(testRepo())

	_, err := resolver.Resolve(context.Background(), 1, PurposeBank)
	require.ErrorIs(t, err, shared.ErrInvalidAccount)
}

func TestPostable(t *testing.T) {
	require.True(t, Account{ID: 1, IsActive: true}.Postable())
	require.False(t, Account{ID: 1, IsActive: false}.Postable())
	require.False(t, Account{ID: 1, IsActive: true, IsGroup: true}.Postable())
	require.False(t, Account{}.Postable())
}
