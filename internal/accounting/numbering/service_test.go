package numbering

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-erp/meridian-erp/internal/accounting/shared"
)

// memoryNumberingRepo serializes WithTx with a mutex, mirroring the row lock
// the SQL repository takes on the counter.
type memoryNumberingRepo struct {
	mu      sync.Mutex
	formats map[int64]*Format
}

func newMemoryNumberingRepo(formats ...Format) *memoryNumberingRepo {
	repo := &memoryNumberingRepo{formats: make(map[int64]*Format)}
	for i := range formats {
		f := formats[i]
		repo.formats[f.ID] = &f
	}
	return repo
}

func (r *memoryNumberingRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(ctx, &memoryNumberingTx{repo: r})
}

type memoryNumberingTx struct {
	repo *memoryNumberingRepo
}

func (t *memoryNumberingTx) GetFormatForUpdate(ctx context.Context, documentType string, companyID int64) (Format, error) {
	var global *Format
	for _, f := range t.repo.formats {
		if f.DocumentType != documentType {
			continue
		}
		if f.CompanyID != nil && *f.CompanyID == companyID {
			return *f, nil
		}
		if f.CompanyID == nil {
			global = f
		}
	}
	if global != nil {
		return *global, nil
	}
	return Format{}, shared.ErrFormatNotFound
}

func (t *memoryNumberingTx) UpdateCounter(ctx context.Context, id int64, current int64, lastResetKey string) error {
	f, ok := t.repo.formats[id]
	if !ok {
		return shared.ErrFormatNotFound
	}
	f.CurrentNumber = current
	f.LastResetKey = lastResetKey
	return nil
}

func invoiceFormat() Format {
	return Format{
		ID:             1,
		DocumentType:   "INVOICE",
		Prefix:         "INV",
		Pattern:        "{PREFIX}-{YYYY}{MM}-{####}",
		CurrentNumber:  0,
		StartingNumber: 1,
		MinDigits:      4,
		Reset:          ResetMonthly,
	}
}

func TestNextExpandsPattern(t *testing.T) {
	repo := newMemoryNumberingRepo(invoiceFormat())
	gen := NewGenerator(repo)

	march := time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC)
	number, err := gen.Next(context.Background(), NextInput{DocumentType: "INVOICE", CompanyID: 1, AsOf: march})
	require.NoError(t, err)
	require.Equal(t, "INV-202403-0001", number)

	number, err = gen.Next(context.Background(), NextInput{DocumentType: "INVOICE", CompanyID: 1, AsOf: march})
	require.NoError(t, err)
	require.Equal(t, "INV-202403-0002", number)
}

func TestNextResetsOnNewMonth(t *testing.T) {
	repo := newMemoryNumberingRepo(invoiceFormat())
	gen := NewGenerator(repo)

	march := time.Date(2024, time.March, 28, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := gen.Next(context.Background(), NextInput{DocumentType: "INVOICE", CompanyID: 1, AsOf: march})
		require.NoError(t, err)
	}

	april := time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC)
	number, err := gen.Next(context.Background(), NextInput{DocumentType: "INVOICE", CompanyID: 1, AsOf: april})
	require.NoError(t, err)
	require.Equal(t, "INV-202404-0001", number)
}

func TestNextNeverResetKeepsCounting(t *testing.T) {
	f := invoiceFormat()
	f.Pattern = "{PREFIX}-{######}"
	f.Reset = ResetNever
	f.CurrentNumber = 41
	repo := newMemoryNumberingRepo(f)
	gen := NewGenerator(repo)

	number, err := gen.Next(context.Background(), NextInput{DocumentType: "INVOICE", CompanyID: 1, AsOf: time.Now()})
	require.NoError(t, err)
	require.Equal(t, "INV-000042", number)
}

func TestNextFallsBackToGlobalFormat(t *testing.T) {
	companyTwo := int64(2)
	specific := invoiceFormat()
	specific.ID = 2
	specific.CompanyID = &companyTwo
	specific.Prefix = "INB"
	repo := newMemoryNumberingRepo(invoiceFormat(), specific)
	gen := NewGenerator(repo)

	march := time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC)

	number, err := gen.Next(context.Background(), NextInput{DocumentType: "INVOICE", CompanyID: 2, AsOf: march})
	require.NoError(t, err)
	require.Equal(t, "INB-202403-0001", number)

	// Company 9 has no dedicated row and lands on the global counter.
	number, err = gen.Next(context.Background(), NextInput{DocumentType: "INVOICE", CompanyID: 9, AsOf: march})
	require.NoError(t, err)
	require.Equal(t, "INV-202403-0001", number)
}

func TestNextUnknownDocumentType(t *testing.T) {
	repo := newMemoryNumberingRepo(invoiceFormat())
	gen := NewGenerator(repo)

	_, err := gen.Next(context.Background(), NextInput{DocumentType: "GOODS_RECEIPT", CompanyID: 1, AsOf: time.Now()})
	require.ErrorIs(t, err, shared.ErrFormatNotFound)
}

func TestNextSequenceExhausted(t *testing.T) {
	f := invoiceFormat()
	f.Pattern = "{PREFIX}-{##}"
	f.MinDigits = 2
	f.Reset = ResetNever
	f.CurrentNumber = 99
	repo := newMemoryNumberingRepo(f)
	gen := NewGenerator(repo)

	_, err := gen.Next(context.Background(), NextInput{DocumentType: "INVOICE", CompanyID: 1, AsOf: time.Now()})
	require.ErrorIs(t, err, shared.ErrSequenceExhausted)
}

func TestNextConcurrentCallersGetUniqueNumbers(t *testing.T) {
	repo := newMemoryNumberingRepo(invoiceFormat())
	gen := NewGenerator(repo)

	march := time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC)
	const callers = 100

	var mu sync.Mutex
	issued := make(map[string]bool, callers)

	var g errgroup.Group
	for i := 0; i < callers; i++ {
		g.Go(func() error {
			number, err := gen.Next(context.Background(), NextInput{DocumentType: "INVOICE", CompanyID: 1, AsOf: march})
			if err != nil {
				return err
			}
			mu.Lock()
			issued[number] = true
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())

	require.Len(t, issued, callers)
	require.True(t, issued["INV-202403-0001"])
	require.True(t, issued["INV-202403-0100"])
	require.EqualValues(t, callers, repo.formats[1].CurrentNumber)
}
