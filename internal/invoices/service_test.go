package invoices

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/storeline/storeline/internal/accounts"
)

const testBusinessID = int64(7)

type fakeLedger struct {
	nextTxID    int64
	outstanding map[int64]decimal.Decimal
	adjustments []decimal.Decimal
	activities  []accounts.CollectionActivity
	failCharge  bool
	failAct     bool
	terms       int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{outstanding: make(map[int64]decimal.Decimal), terms: 30}
}

func (f *fakeLedger) GetAccount(ctx context.Context, businessID, accountID int64) (*accounts.CustomerAccount, error) {
	if accountID != 1 {
		return nil, accounts.ErrNotFound
	}
	return &accounts.CustomerAccount{ID: accountID, BusinessID: businessID, PaymentTermsDays: f.terms}, nil
}

func (f *fakeLedger) CreateCharge(ctx context.Context, businessID, accountID int64, req accounts.ChargeRequest) (*accounts.AccountTransaction, error) {
	if f.failCharge {
		return nil, errors.New("ledger unavailable")
	}
	f.nextTxID++
	f.outstanding[f.nextTxID] = req.Amount
	due := time.Now().UTC().AddDate(0, 0, f.terms)
	return &accounts.AccountTransaction{
		ID:        f.nextTxID,
		AccountID: accountID,
		Type:      accounts.TransactionTypeCharge,
		Amount:    req.Amount,
		Reference: req.Reference,
		DueAt:     &due,
	}, nil
}

func (f *fakeLedger) CreateAdjustment(ctx context.Context, businessID, accountID int64, req accounts.AdjustmentRequest) (*accounts.AccountTransaction, error) {
	f.adjustments = append(f.adjustments, req.Amount)
	return &accounts.AccountTransaction{Amount: req.Amount}, nil
}

func (f *fakeLedger) ChargeOutstanding(ctx context.Context, businessID, accountID, transactionID int64) (decimal.Decimal, error) {
	out, ok := f.outstanding[transactionID]
	if !ok {
		return decimal.Zero, nil
	}
	return out, nil
}

func (f *fakeLedger) LogCollectionActivity(ctx context.Context, businessID, accountID int64, req accounts.CollectionActivityRequest) (*accounts.CollectionActivity, error) {
	if f.failAct {
		return nil, errors.New("ledger unavailable")
	}
	activity := accounts.CollectionActivity{AccountID: accountID, Kind: req.Kind, Note: req.Note}
	f.activities = append(f.activities, activity)
	return &activity, nil
}

type memoryInvoiceRepo struct {
	invoices map[int64]*Invoice
	nextID   int64
	failPost bool
}

func newMemoryInvoiceRepo() *memoryInvoiceRepo {
	return &memoryInvoiceRepo{invoices: make(map[int64]*Invoice)}
}

func (r *memoryInvoiceRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryInvoiceTx{repo: r})
}

func (r *memoryInvoiceRepo) Get(ctx context.Context, businessID, invoiceID int64) (*Invoice, error) {
	inv, ok := r.invoices[invoiceID]
	if !ok || inv.BusinessID != businessID {
		return nil, ErrNotFound
	}
	copied := *inv
	return &copied, nil
}

func (r *memoryInvoiceRepo) List(ctx context.Context, businessID int64, req ListInvoicesRequest) ([]Invoice, int, error) {
	var out []Invoice
	for _, inv := range r.invoices {
		if inv.BusinessID != businessID {
			continue
		}
		if req.Status != nil && inv.Status != *req.Status {
			continue
		}
		out = append(out, *inv)
	}
	return out, len(out), nil
}

func (r *memoryInvoiceRepo) ListOverdueCandidates(ctx context.Context, asOf time.Time) ([]Invoice, error) {
	var out []Invoice
	for _, inv := range r.invoices {
		if inv.Status == InvoiceStatusPosted && inv.DueAt != nil && inv.DueAt.Before(asOf) {
			out = append(out, *inv)
		}
	}
	return out, nil
}

type memoryInvoiceTx struct {
	repo *memoryInvoiceRepo
}

func (t *memoryInvoiceTx) InsertInvoice(ctx context.Context, invoice Invoice) (int64, error) {
	t.repo.nextID++
	invoice.ID = t.repo.nextID
	invoice.CreatedAt = time.Now().UTC()
	invoice.UpdatedAt = invoice.CreatedAt
	t.repo.invoices[invoice.ID] = &invoice
	return invoice.ID, nil
}

func (t *memoryInvoiceTx) GetInvoiceForUpdate(ctx context.Context, businessID, invoiceID int64) (*Invoice, error) {
	return t.repo.Get(ctx, businessID, invoiceID)
}

func (t *memoryInvoiceTx) TransitionStatus(ctx context.Context, invoiceID int64, from, to InvoiceStatus) error {
	inv, ok := t.repo.invoices[invoiceID]
	if !ok || inv.Status != from {
		return ErrInvalidTransition
	}
	inv.Status = to
	return nil
}

func (t *memoryInvoiceTx) MarkPosted(ctx context.Context, invoiceID, transactionID int64, dueAt *time.Time, issuedAt time.Time) error {
	if t.repo.failPost {
		return errors.New("write failed")
	}
	inv, ok := t.repo.invoices[invoiceID]
	if !ok || inv.Status != InvoiceStatusDraft {
		return ErrNotDraft
	}
	inv.Status = InvoiceStatusPosted
	inv.ChargeTransactionID = transactionID
	inv.DueAt = dueAt
	inv.IssuedAt = &issuedAt
	return nil
}

func money(v string) decimal.Decimal {
	d, _ := decimal.NewFromString(v)
	return d
}

func newTestInvoices(t *testing.T) (*Service, *memoryInvoiceRepo, *fakeLedger) {
	t.Helper()
	repo := newMemoryInvoiceRepo()
	ledger := newFakeLedger()
	return NewService(repo, ledger, nil, nil), repo, ledger
}

func createDraft(t *testing.T, svc *Service, total string) *Invoice {
	t.Helper()
	inv, err := svc.Create(context.Background(), testBusinessID, CreateInvoiceRequest{
		AccountID: 1,
		Total:     money(total),
	})
	require.NoError(t, err)
	require.Equal(t, InvoiceStatusDraft, inv.Status)
	return inv
}

func TestCreateDraftHasNoLedgerEffect(t *testing.T) {
	svc, _, ledger := newTestInvoices(t)
	inv := createDraft(t, svc, "250.00")
	require.Zero(t, inv.ChargeTransactionID)
	require.Nil(t, inv.DueAt)
	require.Empty(t, ledger.outstanding)

	_, err := svc.Create(context.Background(), testBusinessID, CreateInvoiceRequest{AccountID: 1, Total: money("-5")})
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.Create(context.Background(), testBusinessID, CreateInvoiceRequest{AccountID: 99, Total: money("5")})
	require.ErrorIs(t, err, accounts.ErrNotFound)
}

func TestPostWritesChargeAndDueDate(t *testing.T) {
	svc, _, ledger := newTestInvoices(t)
	inv := createDraft(t, svc, "250.00")

	posted, err := svc.Post(context.Background(), testBusinessID, inv.ID)
	require.NoError(t, err)
	require.Equal(t, InvoiceStatusPosted, posted.Status)
	require.NotZero(t, posted.ChargeTransactionID)
	require.NotNil(t, posted.IssuedAt)
	require.NotNil(t, posted.DueAt)
	require.WithinDuration(t, time.Now().UTC().AddDate(0, 0, 30), *posted.DueAt, time.Minute)
	require.True(t, ledger.outstanding[posted.ChargeTransactionID].Equal(money("250.00")))

	_, err = svc.Post(context.Background(), testBusinessID, inv.ID)
	require.ErrorIs(t, err, ErrNotDraft)
}

func TestPostCompensatesWhenStatusWriteFails(t *testing.T) {
	svc, repo, ledger := newTestInvoices(t)
	inv := createDraft(t, svc, "100.00")

	repo.failPost = true
	_, err := svc.Post(context.Background(), testBusinessID, inv.ID)
	require.Error(t, err)

	// The charge landed and must have been reversed.
	require.Len(t, ledger.adjustments, 1)
	require.True(t, ledger.adjustments[0].Equal(money("-100.00")))

	current, err := svc.Get(context.Background(), testBusinessID, inv.ID)
	require.NoError(t, err)
	require.Equal(t, InvoiceStatusDraft, current.Status)
}

func TestVoidDraft(t *testing.T) {
	svc, _, ledger := newTestInvoices(t)
	inv := createDraft(t, svc, "80.00")

	voided, err := svc.Void(context.Background(), testBusinessID, inv.ID)
	require.NoError(t, err)
	require.Equal(t, InvoiceStatusVoid, voided.Status)
	require.Empty(t, ledger.adjustments, "draft void never touches the ledger")

	_, err = svc.Void(context.Background(), testBusinessID, inv.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestVoidPostedReversesUnallocatedCharge(t *testing.T) {
	svc, _, ledger := newTestInvoices(t)
	inv := createDraft(t, svc, "80.00")
	posted, err := svc.Post(context.Background(), testBusinessID, inv.ID)
	require.NoError(t, err)

	voided, err := svc.Void(context.Background(), testBusinessID, posted.ID)
	require.NoError(t, err)
	require.Equal(t, InvoiceStatusVoid, voided.Status)
	require.Len(t, ledger.adjustments, 1)
	require.True(t, ledger.adjustments[0].Equal(money("-80.00")))
}

func TestVoidPostedRejectedOncePartiallyPaid(t *testing.T) {
	svc, _, ledger := newTestInvoices(t)
	inv := createDraft(t, svc, "80.00")
	posted, err := svc.Post(context.Background(), testBusinessID, inv.ID)
	require.NoError(t, err)

	// Simulate a partial allocation against the charge.
	ledger.outstanding[posted.ChargeTransactionID] = money("30.00")

	_, err = svc.Void(context.Background(), testBusinessID, posted.ID)
	require.ErrorIs(t, err, ErrChargeAllocated)
}

func TestMarkPaidRequiresFullAllocation(t *testing.T) {
	svc, _, ledger := newTestInvoices(t)
	inv := createDraft(t, svc, "120.00")
	posted, err := svc.Post(context.Background(), testBusinessID, inv.ID)
	require.NoError(t, err)

	_, err = svc.MarkPaid(context.Background(), testBusinessID, posted.ID)
	require.ErrorIs(t, err, ErrNotSettled)

	ledger.outstanding[posted.ChargeTransactionID] = decimal.Zero
	paid, err := svc.MarkPaid(context.Background(), testBusinessID, posted.ID)
	require.NoError(t, err)
	require.Equal(t, InvoiceStatusPaid, paid.Status)

	_, err = svc.MarkPaid(context.Background(), testBusinessID, posted.ID)
	require.ErrorIs(t, err, ErrNotPosted)
}

func TestOverdueScanFlagsAndLogsActivity(t *testing.T) {
	svc, repo, ledger := newTestInvoices(t)
	inv := createDraft(t, svc, "60.00")
	posted, err := svc.Post(context.Background(), testBusinessID, inv.ID)
	require.NoError(t, err)

	// Not yet due.
	flagged, err := svc.OverdueScan(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	require.Zero(t, flagged)

	past := time.Now().UTC().AddDate(0, 0, -1)
	repo.invoices[posted.ID].DueAt = &past

	flagged, err = svc.OverdueScan(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, 1, flagged)

	current, err := svc.Get(context.Background(), testBusinessID, posted.ID)
	require.NoError(t, err)
	require.Equal(t, InvoiceStatusOverdue, current.Status)
	require.Len(t, ledger.activities, 1)
	require.Equal(t, "overdue_notice", ledger.activities[0].Kind)

	// Idempotent: already-overdue invoices are not candidates.
	flagged, err = svc.OverdueScan(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	require.Zero(t, flagged)
}

func TestOverdueScanIsolatesItemFailures(t *testing.T) {
	svc, repo, ledger := newTestInvoices(t)
	past := time.Now().UTC().AddDate(0, 0, -1)

	first := createDraft(t, svc, "10.00")
	second := createDraft(t, svc, "20.00")
	for _, inv := range []*Invoice{first, second} {
		posted, err := svc.Post(context.Background(), testBusinessID, inv.ID)
		require.NoError(t, err)
		repo.invoices[posted.ID].DueAt = &past
	}

	// Collection activity failures are logged, not fatal; both invoices
	// still transition.
	ledger.failAct = true
	flagged, err := svc.OverdueScan(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, 2, flagged)
	require.Empty(t, ledger.activities)
}
