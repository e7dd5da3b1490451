package periods

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/accounting/controls"
	"github.com/meridian-erp/meridian-erp/internal/accounting/journals"
	"github.com/meridian-erp/meridian-erp/internal/accounting/shared"
	internalShared "github.com/meridian-erp/meridian-erp/internal/shared"
)

type memoryPeriodRepo struct {
	periods  map[int64]FiscalPeriod
	activity []AccountActivity
}

func newMemoryPeriodRepo(periods ...FiscalPeriod) *memoryPeriodRepo {
	repo := &memoryPeriodRepo{periods: make(map[int64]FiscalPeriod)}
	for _, p := range periods {
		repo.periods[p.ID] = p
	}
	return repo
}

func (r *memoryPeriodRepo) Get(ctx context.Context, periodID int64) (FiscalPeriod, error) {
	p, ok := r.periods[periodID]
	if !ok {
		return FiscalPeriod{}, shared.ErrPeriodNotFound
	}
	return p, nil
}

func (r *memoryPeriodRepo) FindByDate(ctx context.Context, companyID int64, date time.Time) (FiscalPeriod, error) {
	for _, p := range r.periods {
		if p.CompanyID == companyID && p.Covers(date) {
			return p, nil
		}
	}
	return FiscalPeriod{}, shared.ErrPeriodNotFound
}

func (r *memoryPeriodRepo) List(ctx context.Context, companyID int64) ([]FiscalPeriod, error) {
	var out []FiscalPeriod
	for _, p := range r.periods {
		if p.CompanyID == companyID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memoryPeriodRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryPeriodTx{repo: r})
}

type memoryPeriodTx struct {
	repo *memoryPeriodRepo
}

func (t *memoryPeriodTx) GetForUpdate(ctx context.Context, periodID int64) (FiscalPeriod, error) {
	return t.repo.Get(ctx, periodID)
}

func (t *memoryPeriodTx) UpdateStatus(ctx context.Context, periodID int64, status PeriodStatus, actorID int64, at time.Time) error {
	p, ok := t.repo.periods[periodID]
	if !ok {
		return shared.ErrPeriodNotFound
	}
	p.Status = status
	switch status {
	case PeriodStatusSoftClosed:
		p.SoftClosedBy, p.SoftClosedAt = &actorID, &at
	case PeriodStatusHardClosed:
		p.ClosedBy, p.ClosedAt = &actorID, &at
	}
	t.repo.periods[periodID] = p
	return nil
}

func (t *memoryPeriodTx) SetClosingEntry(ctx context.Context, periodID int64, entryID int64) error {
	p, ok := t.repo.periods[periodID]
	if !ok {
		return shared.ErrPeriodNotFound
	}
	if p.ClosingEntryID != nil {
		return shared.ErrAlreadyClosed
	}
	p.ClosingEntryID = &entryID
	t.repo.periods[periodID] = p
	return nil
}

func (t *memoryPeriodTx) ActivityByAccount(ctx context.Context, companyID int64, start, end time.Time, rootTypes []string) ([]AccountActivity, error) {
	return t.repo.activity, nil
}

// fakePoster mimics the ledger poster including its source-ref idempotency
// guard.
type fakePoster struct {
	posted map[uuid.UUID]int64
	inputs []journals.PostingInput
	nextID int64
}

func newFakePoster() *fakePoster {
	return &fakePoster{posted: make(map[uuid.UUID]int64)}
}

func (p *fakePoster) Post(ctx context.Context, in journals.PostingInput) (journals.JournalEntry, error) {
	if _, ok := p.posted[in.SourceRef]; ok {
		return journals.JournalEntry{}, shared.ErrAlreadyPosted
	}
	p.nextID++
	p.posted[in.SourceRef] = p.nextID
	p.inputs = append(p.inputs, in)
	debit, credit := in.Totals()
	return journals.JournalEntry{
		ID:          p.nextID,
		CompanyID:   in.CompanyID,
		PostingDate: in.PostingDate,
		VoucherType: in.VoucherType,
		TotalDebit:  debit,
		TotalCredit: credit,
		DocStatus:   journals.DocStatusPosted,
		SourceRef:   in.SourceRef,
	}, nil
}

func (p *fakePoster) GetBySourceRef(ctx context.Context, module string, ref uuid.UUID) (journals.JournalEntry, error) {
	entryID, ok := p.posted[ref]
	if !ok {
		return journals.JournalEntry{}, shared.ErrJournalNotFound
	}
	return journals.JournalEntry{ID: entryID, DocStatus: journals.DocStatusPosted, SourceRef: ref}, nil
}

type staticControls struct {
	controls controls.Controls
	err      error
}

func (c staticControls) Resolve(ctx context.Context, companyID int64) (controls.Controls, error) {
	if c.err != nil {
		return controls.Controls{}, c.err
	}
	return c.controls, nil
}

func marchPeriod() FiscalPeriod {
	return FiscalPeriod{
		ID:        3,
		CompanyID: 1,
		Name:      "2024-03",
		StartDate: time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC),
		Status:    PeriodStatusOpen,
	}
}

func newTestManager(repo *memoryPeriodRepo, poster PosterPort) *Manager {
	m := NewManager(repo, poster, staticControls{controls: controls.Controls{RetainedEarningsAccountID: 3900}}, nil)
	m.WithNow(func() time.Time { return time.Date(2024, time.April, 2, 9, 0, 0, 0, time.UTC) })
	return m
}

func TestCloseAndReopenLifecycle(t *testing.T) {
	repo := newMemoryPeriodRepo(marchPeriod())
	m := newTestManager(repo, newFakePoster())
	ctx := context.Background()

	period, err := m.Close(ctx, CloseInput{PeriodID: 3, ActorID: 7})
	require.NoError(t, err)
	require.Equal(t, PeriodStatusSoftClosed, period.Status)
	require.NotNil(t, repo.periods[3].SoftClosedBy)

	period, err = m.Reopen(ctx, 3, 7)
	require.NoError(t, err)
	require.Equal(t, PeriodStatusOpen, period.Status)

	period, err = m.Close(ctx, CloseInput{PeriodID: 3, Hard: true, ActorID: 7})
	require.NoError(t, err)
	require.Equal(t, PeriodStatusHardClosed, period.Status)
}

func TestHardClosedIsTerminal(t *testing.T) {
	hard := marchPeriod()
	hard.Status = PeriodStatusHardClosed
	repo := newMemoryPeriodRepo(hard)
	m := newTestManager(repo, newFakePoster())
	ctx := context.Background()

	_, err := m.Reopen(ctx, 3, 7)
	require.ErrorIs(t, err, shared.ErrPeriodClosed)

	_, err = m.Close(ctx, CloseInput{PeriodID: 3, ActorID: 7})
	require.ErrorIs(t, err, shared.ErrPeriodClosed)
}

func TestValidatePostingDate(t *testing.T) {
	soft := marchPeriod()
	soft.Status = PeriodStatusSoftClosed
	repo := newMemoryPeriodRepo(soft)
	m := newTestManager(repo, newFakePoster())
	ctx := context.Background()
	inMarch := time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC)

	_, err := m.ValidatePostingDate(ctx, 1, inMarch, false)
	require.ErrorIs(t, err, shared.ErrPeriodClosed)

	_, err = m.ValidatePostingDate(ctx, 1, inMarch, true)
	require.NoError(t, err)

	_, err = m.ValidatePostingDate(ctx, 1, time.Date(2030, time.January, 1, 0, 0, 0, 0, time.UTC), true)
	require.ErrorIs(t, err, shared.ErrPeriodNotFound)
}

func TestGenerateClosingEntries(t *testing.T) {
	repo := newMemoryPeriodRepo(marchPeriod())
	repo.activity = []AccountActivity{
		{AccountID: 4000, AccountCode: "4000", RootType: "INCOME", TotalDebit: 200, TotalCredit: 5200},
		{AccountID: 5000, AccountCode: "5000", RootType: "EXPENSE", TotalDebit: 3000, TotalCredit: 0},
	}
	poster := newFakePoster()
	m := newTestManager(repo, poster)

	entry, err := m.GenerateClosingEntries(context.Background(), GenerateClosingInput{PeriodID: 3, ActorID: 7})
	require.NoError(t, err)

	require.Len(t, poster.inputs, 1)
	in := poster.inputs[0]
	require.Equal(t, journals.VoucherTypePeriodClose, in.VoucherType)
	require.True(t, in.AllowSoftClosed)
	require.Equal(t, marchPeriod().EndDate, in.PostingDate)
	require.Len(t, in.Lines, 3)

	// Income zeroed with a debit, expense with a credit, the 2000 profit
	// lands in retained earnings.
	require.Equal(t, int64(4000), in.Lines[0].AccountID)
	require.InDelta(t, 5000, in.Lines[0].Debit, 0.001)
	require.Equal(t, int64(5000), in.Lines[1].AccountID)
	require.InDelta(t, 3000, in.Lines[1].Credit, 0.001)
	require.Equal(t, int64(3900), in.Lines[2].AccountID)
	require.InDelta(t, 2000, in.Lines[2].Credit, 0.001)

	debit, credit := in.Totals()
	require.InDelta(t, debit, credit, 0.001)

	require.NotNil(t, repo.periods[3].ClosingEntryID)
	require.Equal(t, entry.ID, *repo.periods[3].ClosingEntryID)
}

func TestGenerateClosingEntriesNetLoss(t *testing.T) {
	repo := newMemoryPeriodRepo(marchPeriod())
	repo.activity = []AccountActivity{
		{AccountID: 4000, RootType: "INCOME", TotalDebit: 0, TotalCredit: 1000},
		{AccountID: 5000, RootType: "EXPENSE", TotalDebit: 2500, TotalCredit: 0},
	}
	poster := newFakePoster()
	m := newTestManager(repo, poster)

	_, err := m.GenerateClosingEntries(context.Background(), GenerateClosingInput{PeriodID: 3, ActorID: 7})
	require.NoError(t, err)

	in := poster.inputs[0]
	last := in.Lines[len(in.Lines)-1]
	require.Equal(t, int64(3900), last.AccountID)
	require.InDelta(t, 1500, last.Debit, 0.001)
}

func TestGenerateClosingEntriesTwice(t *testing.T) {
	repo := newMemoryPeriodRepo(marchPeriod())
	repo.activity = []AccountActivity{
		{AccountID: 4000, RootType: "INCOME", TotalDebit: 0, TotalCredit: 100},
		{AccountID: 5000, RootType: "EXPENSE", TotalDebit: 60, TotalCredit: 0},
	}
	m := newTestManager(repo, newFakePoster())

	_, err := m.GenerateClosingEntries(context.Background(), GenerateClosingInput{PeriodID: 3, ActorID: 7})
	require.NoError(t, err)

	_, err = m.GenerateClosingEntries(context.Background(), GenerateClosingInput{PeriodID: 3, ActorID: 7})
	require.ErrorIs(t, err, shared.ErrAlreadyClosed)
}

func TestGenerateClosingEntriesRetryAfterCrashBackfillsLink(t *testing.T) {
	// A prior run posted the closing entry under the deterministic source
	// ref but crashed before setting closing_entry_id. The retry recovers
	// the entry and completes the link instead of failing.
	repo := newMemoryPeriodRepo(marchPeriod())
	repo.activity = []AccountActivity{
		{AccountID: 4000, RootType: "INCOME", TotalDebit: 0, TotalCredit: 100},
	}
	poster := newFakePoster()
	poster.posted[uuid.NewSHA1(closeNamespace, []byte("period-close-3"))] = 99
	m := newTestManager(repo, poster)

	entry, err := m.GenerateClosingEntries(context.Background(), GenerateClosingInput{PeriodID: 3, ActorID: 7})
	require.NoError(t, err)
	require.Equal(t, int64(99), entry.ID)
	require.NotNil(t, repo.periods[3].ClosingEntryID)
	require.Equal(t, int64(99), *repo.periods[3].ClosingEntryID)
}

func TestGenerateClosingEntriesNeedsRetainedEarnings(t *testing.T) {
	repo := newMemoryPeriodRepo(marchPeriod())
	m := NewManager(repo, newFakePoster(), staticControls{controls: controls.Controls{}}, nil)

	_, err := m.GenerateClosingEntries(context.Background(), GenerateClosingInput{PeriodID: 3, ActorID: 7})
	require.ErrorIs(t, err, shared.ErrAccountNotConfigured)
}

func TestTransitionValidation(t *testing.T) {
	require.NoError(t, internalShared.ValidatePeriodTransition("OPEN", "SOFT_CLOSED"))
	require.NoError(t, internalShared.ValidatePeriodTransition("SOFT_CLOSED", "OPEN"))
	require.NoError(t, internalShared.ValidatePeriodTransition("SOFT_CLOSED", "HARD_CLOSED"))
	require.ErrorIs(t, internalShared.ValidatePeriodTransition("HARD_CLOSED", "OPEN"), internalShared.ErrInvalidPeriodTransition)
}
