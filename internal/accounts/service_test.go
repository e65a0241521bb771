package accounts

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memoryLedgerRepo struct {
	accounts      map[int64]*CustomerAccount
	transactions  []AccountTransaction
	payments      map[int64]*AccountPayment
	allocations   []PaymentAllocation
	activities    []CollectionActivity
	openListCalls int

	nextAccountID int64
	nextTxnID     int64
	nextPaymentID int64
	nextAllocID   int64
}

func newMemoryLedgerRepo() *memoryLedgerRepo {
	return &memoryLedgerRepo{
		accounts: make(map[int64]*CustomerAccount),
		payments: make(map[int64]*AccountPayment),
	}
}

type memoryLedgerTx struct {
	repo *memoryLedgerRepo
}

// WithTx mimics transactional rollback by restoring a snapshot when fn fails.
func (r *memoryLedgerRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := r.clone()
	if err := fn(ctx, &memoryLedgerTx{repo: r}); err != nil {
		r.restore(snapshot)
		return err
	}
	return nil
}

func (r *memoryLedgerRepo) clone() *memoryLedgerRepo {
	c := newMemoryLedgerRepo()
	for id, a := range r.accounts {
		copied := *a
		c.accounts[id] = &copied
	}
	c.transactions = append([]AccountTransaction(nil), r.transactions...)
	for id, p := range r.payments {
		copied := *p
		copied.Allocations = append([]PaymentAllocation(nil), p.Allocations...)
		c.payments[id] = &copied
	}
	c.allocations = append([]PaymentAllocation(nil), r.allocations...)
	c.activities = append([]CollectionActivity(nil), r.activities...)
	c.nextAccountID, c.nextTxnID, c.nextPaymentID, c.nextAllocID = r.nextAccountID, r.nextTxnID, r.nextPaymentID, r.nextAllocID
	return c
}

func (r *memoryLedgerRepo) restore(s *memoryLedgerRepo) {
	r.accounts = s.accounts
	r.transactions = s.transactions
	r.payments = s.payments
	r.allocations = s.allocations
	r.activities = s.activities
	r.nextAccountID, r.nextTxnID, r.nextPaymentID, r.nextAllocID = s.nextAccountID, s.nextTxnID, s.nextPaymentID, s.nextAllocID
}

func (r *memoryLedgerRepo) allocatedFor(txnID int64) decimal.Decimal {
	total := decimal.Zero
	for _, a := range r.allocations {
		if a.TransactionID == txnID {
			total = total.Add(a.Amount)
		}
	}
	return total
}

func (r *memoryLedgerRepo) openCharges(accountID int64) []OpenCharge {
	var charges []OpenCharge
	for _, t := range r.transactions {
		if t.AccountID != accountID || t.Type != TransactionTypeCharge {
			continue
		}
		allocated := r.allocatedFor(t.ID)
		if t.Amount.GreaterThan(allocated) {
			charges = append(charges, OpenCharge{Transaction: t, Allocated: allocated})
		}
	}
	return charges
}

func (r *memoryLedgerRepo) GetAccount(ctx context.Context, businessID, accountID int64) (*CustomerAccount, error) {
	a, ok := r.accounts[accountID]
	if !ok || a.BusinessID != businessID {
		return nil, ErrNotFound
	}
	copied := *a
	return &copied, nil
}

func (r *memoryLedgerRepo) GetAccountByCustomer(ctx context.Context, businessID, customerID int64) (*CustomerAccount, error) {
	for _, a := range r.accounts {
		if a.BusinessID == businessID && a.CustomerID == customerID {
			copied := *a
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memoryLedgerRepo) ListAccounts(ctx context.Context, businessID int64, req ListAccountsRequest) ([]CustomerAccount, int, error) {
	var out []CustomerAccount
	for _, a := range r.accounts {
		if a.BusinessID != businessID {
			continue
		}
		if req.Status != nil && a.Status != *req.Status {
			continue
		}
		out = append(out, *a)
	}
	return out, len(out), nil
}

func (r *memoryLedgerRepo) ListTransactions(ctx context.Context, businessID, accountID int64, req ListTransactionsRequest) ([]AccountTransaction, int, error) {
	var out []AccountTransaction
	for _, t := range r.transactions {
		if t.AccountID != accountID {
			continue
		}
		if req.Type != nil && t.Type != *req.Type {
			continue
		}
		out = append(out, t)
	}
	return out, len(out), nil
}

func (r *memoryLedgerRepo) ListOpenCharges(ctx context.Context, businessID, accountID int64) ([]OpenCharge, error) {
	r.openListCalls++
	return r.openCharges(accountID), nil
}

func (r *memoryLedgerRepo) GetPayment(ctx context.Context, businessID, paymentID int64) (*AccountPayment, error) {
	p, ok := r.payments[paymentID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *p
	copied.Allocations = append([]PaymentAllocation(nil), p.Allocations...)
	return &copied, nil
}

func (r *memoryLedgerRepo) InsertCollectionActivity(ctx context.Context, businessID int64, activity CollectionActivity) (*CollectionActivity, error) {
	activity.ID = int64(len(r.activities) + 1)
	activity.CreatedAt = time.Now().UTC()
	r.activities = append(r.activities, activity)
	return &activity, nil
}

func (r *memoryLedgerRepo) ListCollectionActivities(ctx context.Context, businessID, accountID int64, limit, offset int) ([]CollectionActivity, error) {
	var out []CollectionActivity
	for _, a := range r.activities {
		if a.AccountID == accountID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (t *memoryLedgerTx) InsertAccount(ctx context.Context, account CustomerAccount) (int64, error) {
	for _, existing := range t.repo.accounts {
		if existing.BusinessID == account.BusinessID && existing.CustomerID == account.CustomerID {
			return 0, ErrAlreadyExists
		}
	}
	t.repo.nextAccountID++
	account.ID = t.repo.nextAccountID
	account.CreatedAt = time.Now().UTC()
	account.UpdatedAt = account.CreatedAt
	t.repo.accounts[account.ID] = &account
	return account.ID, nil
}

func (t *memoryLedgerTx) GetAccountForUpdate(ctx context.Context, businessID, accountID int64) (*CustomerAccount, error) {
	return t.repo.GetAccount(ctx, businessID, accountID)
}

func (t *memoryLedgerTx) UpdateAccount(ctx context.Context, account CustomerAccount) error {
	if _, ok := t.repo.accounts[account.ID]; !ok {
		return ErrNotFound
	}
	account.UpdatedAt = time.Now().UTC()
	t.repo.accounts[account.ID] = &account
	return nil
}

func (t *memoryLedgerTx) InsertTransaction(ctx context.Context, txn AccountTransaction) (int64, error) {
	t.repo.nextTxnID++
	txn.ID = t.repo.nextTxnID
	t.repo.transactions = append(t.repo.transactions, txn)
	return txn.ID, nil
}

func (t *memoryLedgerTx) InsertPayment(ctx context.Context, payment AccountPayment) (int64, error) {
	t.repo.nextPaymentID++
	payment.ID = t.repo.nextPaymentID
	t.repo.payments[payment.ID] = &payment
	return payment.ID, nil
}

func (t *memoryLedgerTx) InsertAllocation(ctx context.Context, alloc PaymentAllocation) (int64, error) {
	t.repo.nextAllocID++
	alloc.ID = t.repo.nextAllocID
	t.repo.allocations = append(t.repo.allocations, alloc)
	if p, ok := t.repo.payments[alloc.PaymentID]; ok {
		p.Allocations = append(p.Allocations, alloc)
	}
	return alloc.ID, nil
}

func (t *memoryLedgerTx) ListOpenChargesForUpdate(ctx context.Context, accountID int64) ([]OpenCharge, error) {
	return t.repo.openCharges(accountID), nil
}

func (t *memoryLedgerTx) GetTransactionsWithAllocated(ctx context.Context, txIDs []int64) (map[int64]OpenCharge, error) {
	byID := make(map[int64]OpenCharge, len(txIDs))
	for _, id := range txIDs {
		for _, txn := range t.repo.transactions {
			if txn.ID == id {
				byID[id] = OpenCharge{Transaction: txn, Allocated: t.repo.allocatedFor(id)}
			}
		}
	}
	return byID, nil
}

func (t *memoryLedgerTx) GetPaymentForUpdate(ctx context.Context, businessID, paymentID int64) (*AccountPayment, error) {
	return t.repo.GetPayment(ctx, businessID, paymentID)
}

const testBusinessID = int64(7)

func newTestLedger(t *testing.T) (*Service, *memoryLedgerRepo) {
	t.Helper()
	repo := newMemoryLedgerRepo()
	return NewService(repo, nil, nil), repo
}

func openTestAccount(t *testing.T, svc *Service, customerID int64) *CustomerAccount {
	t.Helper()
	account, err := svc.OpenAccount(context.Background(), testBusinessID, OpenAccountRequest{
		CustomerID:       customerID,
		CreditLimit:      decimal.NewFromInt(1000),
		PaymentTermsDays: 30,
	})
	require.NoError(t, err)
	return account
}

func TestCreateChargeAppendsLedgerLine(t *testing.T) {
	svc, _ := newTestLedger(t)
	ctx := context.Background()
	account := openTestAccount(t, svc, 1)

	_, err := svc.CreateCharge(ctx, testBusinessID, account.ID, ChargeRequest{Amount: decimal.NewFromFloat(100.00), Reference: "INV-001"})
	require.NoError(t, err)

	txn, err := svc.CreateCharge(ctx, testBusinessID, account.ID, ChargeRequest{Amount: decimal.NewFromFloat(200.00), Reference: "INV-002"})
	require.NoError(t, err)
	require.True(t, txn.BalanceAfter.Equal(decimal.NewFromFloat(300.00)), "balance_after = %s", txn.BalanceAfter)
	require.NotNil(t, txn.DueAt)
	require.WithinDuration(t, time.Now().UTC().AddDate(0, 0, 30), *txn.DueAt, time.Minute)

	account, err = svc.GetAccount(ctx, testBusinessID, account.ID)
	require.NoError(t, err)
	require.True(t, account.CurrentBalance.Equal(decimal.NewFromFloat(300.00)))
}

func TestChargeAmountMustBePositive(t *testing.T) {
	svc, _ := newTestLedger(t)
	account := openTestAccount(t, svc, 1)

	_, err := svc.CreateCharge(context.Background(), testBusinessID, account.ID, ChargeRequest{Amount: decimal.NewFromInt(-5)})
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.CreateCharge(context.Background(), testBusinessID, account.ID, ChargeRequest{Amount: decimal.Zero})
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestChargeRejectedOnSuspendedAccount(t *testing.T) {
	svc, _ := newTestLedger(t)
	ctx := context.Background()
	account := openTestAccount(t, svc, 1)

	_, err := svc.SetStatus(ctx, testBusinessID, account.ID, AccountStatusSuspended)
	require.NoError(t, err)

	_, err = svc.CreateCharge(ctx, testBusinessID, account.ID, ChargeRequest{Amount: decimal.NewFromInt(50)})
	require.ErrorIs(t, err, ErrAccountNotActive)

	// Payments are still accepted while suspended.
	_, err = svc.RecordPayment(ctx, testBusinessID, account.ID, RecordPaymentRequest{Amount: decimal.NewFromInt(10), Method: "CASH"})
	require.NoError(t, err)
}

func TestFIFOAllocationOldestFirst(t *testing.T) {
	svc, repo := newTestLedger(t)
	ctx := context.Background()
	account := openTestAccount(t, svc, 1)

	older, err := svc.CreateCharge(ctx, testBusinessID, account.ID, ChargeRequest{Amount: decimal.NewFromFloat(100.00)})
	require.NoError(t, err)
	newer, err := svc.CreateCharge(ctx, testBusinessID, account.ID, ChargeRequest{Amount: decimal.NewFromFloat(100.00)})
	require.NoError(t, err)

	result, err := svc.RecordPayment(ctx, testBusinessID, account.ID, RecordPaymentRequest{
		Amount: decimal.NewFromFloat(150.00),
		Method: "CASH",
	})
	require.NoError(t, err)
	require.Len(t, result.Payment.Allocations, 2)
	require.Equal(t, older.ID, result.Payment.Allocations[0].TransactionID)
	require.True(t, result.Payment.Allocations[0].Amount.Equal(decimal.NewFromFloat(100.00)))
	require.Equal(t, newer.ID, result.Payment.Allocations[1].TransactionID)
	require.True(t, result.Payment.Allocations[1].Amount.Equal(decimal.NewFromFloat(50.00)))
	require.True(t, result.Unallocated.IsZero())

	account, err = svc.GetAccount(ctx, testBusinessID, account.ID)
	require.NoError(t, err)
	require.True(t, account.CurrentBalance.Equal(decimal.NewFromFloat(50.00)))
	requireLedgerSum(t, repo, account)
}

func TestFIFORemainderStaysUnallocated(t *testing.T) {
	svc, _ := newTestLedger(t)
	ctx := context.Background()
	account := openTestAccount(t, svc, 1)

	_, err := svc.CreateCharge(ctx, testBusinessID, account.ID, ChargeRequest{Amount: decimal.NewFromInt(100)})
	require.NoError(t, err)

	result, err := svc.RecordPayment(ctx, testBusinessID, account.ID, RecordPaymentRequest{
		Amount: decimal.NewFromInt(150),
		Method: "TRANSFER",
	})
	require.NoError(t, err)
	require.True(t, result.Unallocated.Equal(decimal.NewFromInt(50)))

	payment, err := svc.GetPayment(ctx, testBusinessID, result.Payment.ID)
	require.NoError(t, err)
	require.True(t, payment.UnallocatedAmount().Equal(decimal.NewFromInt(50)))
}

func TestExplicitAllocationMismatchRejectedBeforeMutation(t *testing.T) {
	svc, repo := newTestLedger(t)
	ctx := context.Background()
	account := openTestAccount(t, svc, 1)

	charge, err := svc.CreateCharge(ctx, testBusinessID, account.ID, ChargeRequest{Amount: decimal.NewFromInt(100)})
	require.NoError(t, err)
	balanceBefore := charge.BalanceAfter
	txnsBefore := len(repo.transactions)

	_, err = svc.RecordPayment(ctx, testBusinessID, account.ID, RecordPaymentRequest{
		Amount: decimal.NewFromInt(100),
		Method: "CASH",
		Allocations: []AllocationPair{
			{TransactionID: charge.ID, Amount: decimal.NewFromInt(90)},
		},
	})
	require.ErrorIs(t, err, ErrAllocationMismatch)

	require.Len(t, repo.transactions, txnsBefore)
	require.Empty(t, repo.payments)
	got, err := svc.GetAccount(ctx, testBusinessID, account.ID)
	require.NoError(t, err)
	require.True(t, got.CurrentBalance.Equal(balanceBefore))
}

func TestExplicitOverAllocationRejected(t *testing.T) {
	svc, repo := newTestLedger(t)
	ctx := context.Background()
	account := openTestAccount(t, svc, 1)

	charge, err := svc.CreateCharge(ctx, testBusinessID, account.ID, ChargeRequest{Amount: decimal.NewFromInt(100)})
	require.NoError(t, err)

	_, err = svc.RecordPayment(ctx, testBusinessID, account.ID, RecordPaymentRequest{
		Amount: decimal.NewFromInt(150),
		Method: "CASH",
		Allocations: []AllocationPair{
			{TransactionID: charge.ID, Amount: decimal.NewFromInt(150)},
		},
	})
	require.ErrorIs(t, err, ErrOverAllocation)

	// The rejected payment left no ledger row behind.
	require.Empty(t, repo.payments)
	got, err := svc.GetAccount(ctx, testBusinessID, account.ID)
	require.NoError(t, err)
	require.True(t, got.CurrentBalance.Equal(decimal.NewFromInt(100)))
}

func TestAllocationToForeignAccountRejected(t *testing.T) {
	svc, _ := newTestLedger(t)
	ctx := context.Background()
	mine := openTestAccount(t, svc, 1)
	other := openTestAccount(t, svc, 2)

	foreignCharge, err := svc.CreateCharge(ctx, testBusinessID, other.ID, ChargeRequest{Amount: decimal.NewFromInt(100)})
	require.NoError(t, err)

	_, err = svc.RecordPayment(ctx, testBusinessID, mine.ID, RecordPaymentRequest{
		Amount: decimal.NewFromInt(100),
		Method: "CASH",
		Allocations: []AllocationPair{
			{TransactionID: foreignCharge.ID, Amount: decimal.NewFromInt(100)},
		},
	})
	require.ErrorIs(t, err, ErrWrongAccount)
}

func TestAllocationToNonChargeRejected(t *testing.T) {
	svc, _ := newTestLedger(t)
	ctx := context.Background()
	account := openTestAccount(t, svc, 1)

	_, err := svc.CreateCharge(ctx, testBusinessID, account.ID, ChargeRequest{Amount: decimal.NewFromInt(100)})
	require.NoError(t, err)
	paid, err := svc.RecordPayment(ctx, testBusinessID, account.ID, RecordPaymentRequest{Amount: decimal.NewFromInt(40), Method: "CASH"})
	require.NoError(t, err)

	_, err = svc.RecordPayment(ctx, testBusinessID, account.ID, RecordPaymentRequest{
		Amount: decimal.NewFromInt(10),
		Method: "CASH",
		Allocations: []AllocationPair{
			{TransactionID: paid.Transaction.ID, Amount: decimal.NewFromInt(10)},
		},
	})
	require.ErrorIs(t, err, ErrNotACharge)
}

func TestAdjustmentMustBeNonZero(t *testing.T) {
	svc, _ := newTestLedger(t)
	ctx := context.Background()
	account := openTestAccount(t, svc, 1)

	_, err := svc.CreateAdjustment(ctx, testBusinessID, account.ID, AdjustmentRequest{Amount: decimal.Zero, Reason: "noop"})
	require.ErrorIs(t, err, ErrZeroAdjustment)

	down, err := svc.CreateAdjustment(ctx, testBusinessID, account.ID, AdjustmentRequest{Amount: decimal.NewFromInt(-25), Reason: "goodwill"})
	require.NoError(t, err)
	require.True(t, down.BalanceAfter.Equal(decimal.NewFromInt(-25)))

	up, err := svc.CreateAdjustment(ctx, testBusinessID, account.ID, AdjustmentRequest{Amount: decimal.NewFromInt(25), Reason: "reversal"})
	require.NoError(t, err)
	require.True(t, up.BalanceAfter.IsZero())
}

func TestWriteOffRequiresPositiveAmountAndReason(t *testing.T) {
	svc, _ := newTestLedger(t)
	ctx := context.Background()
	account := openTestAccount(t, svc, 1)

	_, err := svc.CreateWriteOff(ctx, testBusinessID, account.ID, WriteOffRequest{Amount: decimal.NewFromInt(-10), Reason: "bad debt"})
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.CreateWriteOff(ctx, testBusinessID, account.ID, WriteOffRequest{Amount: decimal.NewFromInt(10), Reason: "  "})
	require.ErrorIs(t, err, ErrReasonRequired)

	_, err = svc.CreateCharge(ctx, testBusinessID, account.ID, ChargeRequest{Amount: decimal.NewFromInt(80)})
	require.NoError(t, err)
	txn, err := svc.CreateWriteOff(ctx, testBusinessID, account.ID, WriteOffRequest{Amount: decimal.NewFromInt(80), Reason: "bad debt"})
	require.NoError(t, err)
	require.True(t, txn.Amount.Equal(decimal.NewFromInt(-80)))
	require.True(t, txn.BalanceAfter.IsZero())
}

func TestCollectionActivityPromiseFields(t *testing.T) {
	svc, _ := newTestLedger(t)
	ctx := context.Background()
	account := openTestAccount(t, svc, 1)
	amount := decimal.NewFromInt(500)
	date := time.Now().AddDate(0, 0, 7)

	_, err := svc.LogCollectionActivity(ctx, testBusinessID, account.ID, CollectionActivityRequest{
		Kind:          "CALL",
		PromiseAmount: &amount,
	})
	require.ErrorIs(t, err, ErrPromiseDateRequired)

	_, err = svc.LogCollectionActivity(ctx, testBusinessID, account.ID, CollectionActivityRequest{
		Kind:        "CALL",
		PromiseDate: &date,
	})
	require.ErrorIs(t, err, ErrPromiseAmountRequired)

	activity, err := svc.LogCollectionActivity(ctx, testBusinessID, account.ID, CollectionActivityRequest{
		Kind:          "CALL",
		Note:          "spoke with owner",
		PromiseDate:   &date,
		PromiseAmount: &amount,
	})
	require.NoError(t, err)
	require.NotNil(t, activity.PromiseDate)
	require.NotNil(t, activity.PromiseAmount)
}

func TestStatusTransitions(t *testing.T) {
	svc, _ := newTestLedger(t)
	ctx := context.Background()
	account := openTestAccount(t, svc, 1)

	_, err := svc.CreateCharge(ctx, testBusinessID, account.ID, ChargeRequest{Amount: decimal.NewFromInt(100)})
	require.NoError(t, err)

	_, err = svc.SetStatus(ctx, testBusinessID, account.ID, AccountStatusClosed)
	require.ErrorIs(t, err, ErrBalanceOutstanding)

	_, err = svc.RecordPayment(ctx, testBusinessID, account.ID, RecordPaymentRequest{Amount: decimal.NewFromInt(100), Method: "CASH"})
	require.NoError(t, err)

	closed, err := svc.SetStatus(ctx, testBusinessID, account.ID, AccountStatusClosed)
	require.NoError(t, err)
	require.Equal(t, AccountStatusClosed, closed.Status)

	_, err = svc.SetStatus(ctx, testBusinessID, account.ID, AccountStatusActive)
	require.ErrorIs(t, err, ErrInvalidStatusChange)

	_, err = svc.CreateCharge(ctx, testBusinessID, account.ID, ChargeRequest{Amount: decimal.NewFromInt(10)})
	require.ErrorIs(t, err, ErrAccountClosed)
}

func TestAllocatePaymentRemainderLater(t *testing.T) {
	svc, _ := newTestLedger(t)
	ctx := context.Background()
	account := openTestAccount(t, svc, 1)

	_, err := svc.CreateCharge(ctx, testBusinessID, account.ID, ChargeRequest{Amount: decimal.NewFromInt(100)})
	require.NoError(t, err)
	result, err := svc.RecordPayment(ctx, testBusinessID, account.ID, RecordPaymentRequest{Amount: decimal.NewFromInt(150), Method: "CASH"})
	require.NoError(t, err)
	require.True(t, result.Unallocated.Equal(decimal.NewFromInt(50)))

	charge, err := svc.CreateCharge(ctx, testBusinessID, account.ID, ChargeRequest{Amount: decimal.NewFromInt(60)})
	require.NoError(t, err)

	_, err = svc.AllocatePayment(ctx, testBusinessID, result.Payment.ID, AllocatePaymentRequest{
		Allocations: []AllocationPair{{TransactionID: charge.ID, Amount: decimal.NewFromInt(60)}},
	})
	require.ErrorIs(t, err, ErrAllocationMismatch)

	payment, err := svc.AllocatePayment(ctx, testBusinessID, result.Payment.ID, AllocatePaymentRequest{
		Allocations: []AllocationPair{{TransactionID: charge.ID, Amount: decimal.NewFromInt(50)}},
	})
	require.NoError(t, err)
	require.True(t, payment.UnallocatedAmount().IsZero())
}

func TestAccountCreditDerivations(t *testing.T) {
	svc, _ := newTestLedger(t)
	ctx := context.Background()
	account := openTestAccount(t, svc, 1)

	_, err := svc.CreateCharge(ctx, testBusinessID, account.ID, ChargeRequest{Amount: decimal.NewFromInt(900)})
	require.NoError(t, err)
	account, err = svc.GetAccount(ctx, testBusinessID, account.ID)
	require.NoError(t, err)
	require.True(t, account.AvailableCredit().Equal(decimal.NewFromInt(100)))
	require.False(t, account.IsOverLimit())

	_, err = svc.CreateCharge(ctx, testBusinessID, account.ID, ChargeRequest{Amount: decimal.NewFromInt(200)})
	require.NoError(t, err)
	account, err = svc.GetAccount(ctx, testBusinessID, account.ID)
	require.NoError(t, err)
	require.True(t, account.IsOverLimit())
}

func TestOneAccountPerCustomer(t *testing.T) {
	svc, _ := newTestLedger(t)
	openTestAccount(t, svc, 1)

	_, err := svc.OpenAccount(context.Background(), testBusinessID, OpenAccountRequest{CustomerID: 1})
	require.ErrorIs(t, err, ErrAlreadyExists)
}

// requireLedgerSum asserts the core bookkeeping invariant: ordered
// transaction amounts sum to the account's current balance.
func requireLedgerSum(t *testing.T, repo *memoryLedgerRepo, account *CustomerAccount) {
	t.Helper()
	sum := decimal.Zero
	for _, txn := range repo.transactions {
		if txn.AccountID == account.ID {
			sum = sum.Add(txn.Amount)
		}
	}
	require.True(t, sum.Equal(account.CurrentBalance), "ledger sum %s != balance %s", sum, account.CurrentBalance)
}

func TestLedgerSumInvariantAcrossMixedOperations(t *testing.T) {
	svc, repo := newTestLedger(t)
	ctx := context.Background()
	account := openTestAccount(t, svc, 1)

	_, err := svc.CreateCharge(ctx, testBusinessID, account.ID, ChargeRequest{Amount: decimal.NewFromFloat(120.50)})
	require.NoError(t, err)
	_, err = svc.RecordPayment(ctx, testBusinessID, account.ID, RecordPaymentRequest{Amount: decimal.NewFromFloat(70.25), Method: "CARD"})
	require.NoError(t, err)
	_, err = svc.CreateAdjustment(ctx, testBusinessID, account.ID, AdjustmentRequest{Amount: decimal.NewFromFloat(-10.25), Reason: "price fix"})
	require.NoError(t, err)
	_, err = svc.CreateWriteOff(ctx, testBusinessID, account.ID, WriteOffRequest{Amount: decimal.NewFromInt(40), Reason: "uncollectable"})
	require.NoError(t, err)

	account, err = svc.GetAccount(ctx, testBusinessID, account.ID)
	require.NoError(t, err)
	requireLedgerSum(t, repo, account)
}
