package accounts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/storeline/storeline/internal/shared"
)

// RepositoryPort defines data access methods for the account ledger.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetAccount(ctx context.Context, businessID, accountID int64) (*CustomerAccount, error)
	GetAccountByCustomer(ctx context.Context, businessID, customerID int64) (*CustomerAccount, error)
	ListAccounts(ctx context.Context, businessID int64, req ListAccountsRequest) ([]CustomerAccount, int, error)
	ListTransactions(ctx context.Context, businessID, accountID int64, req ListTransactionsRequest) ([]AccountTransaction, int, error)
	ListOpenCharges(ctx context.Context, businessID, accountID int64) ([]OpenCharge, error)
	GetPayment(ctx context.Context, businessID, paymentID int64) (*AccountPayment, error)
	InsertCollectionActivity(ctx context.Context, businessID int64, activity CollectionActivity) (*CollectionActivity, error)
	ListCollectionActivities(ctx context.Context, businessID, accountID int64, limit, offset int) ([]CollectionActivity, error)
}

// TxRepository exposes the transactional operations used for ledger
// mutations. Every mutation appends its ledger row and updates the
// account balance within the same database transaction.
type TxRepository interface {
	InsertAccount(ctx context.Context, account CustomerAccount) (int64, error)
	GetAccountForUpdate(ctx context.Context, businessID, accountID int64) (*CustomerAccount, error)
	UpdateAccount(ctx context.Context, account CustomerAccount) error
	InsertTransaction(ctx context.Context, txn AccountTransaction) (int64, error)
	InsertPayment(ctx context.Context, payment AccountPayment) (int64, error)
	InsertAllocation(ctx context.Context, alloc PaymentAllocation) (int64, error)
	ListOpenChargesForUpdate(ctx context.Context, accountID int64) ([]OpenCharge, error)
	GetTransactionsWithAllocated(ctx context.Context, txIDs []int64) (map[int64]OpenCharge, error)
	GetPaymentForUpdate(ctx context.Context, businessID, paymentID int64) (*AccountPayment, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates customer account ledger operations.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	cache *Cache
}

// NewService builds a Service.
func NewService(repo RepositoryPort, audit AuditPort, cache *Cache) *Service {
	return &Service{repo: repo, audit: audit, cache: cache}
}

// OpenAccount creates a credit account for a customer. One account per
// customer per business, enforced by a unique constraint.
func (s *Service) OpenAccount(ctx context.Context, businessID int64, req OpenAccountRequest) (*CustomerAccount, error) {
	if businessID == 0 {
		return nil, shared.ErrTenantRequired
	}
	if req.CreditLimit.IsNegative() {
		return nil, fmt.Errorf("%w: credit limit cannot be negative", ErrInvalidAmount)
	}
	account := CustomerAccount{
		BusinessID:       businessID,
		CustomerID:       req.CustomerID,
		CreditLimit:      req.CreditLimit,
		CurrentBalance:   decimal.Zero,
		PaymentTermsDays: req.PaymentTermsDays,
		Status:           AccountStatusActive,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertAccount(ctx, account)
		if err != nil {
			return err
		}
		account.ID = id
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("open account: %w", err)
	}
	s.recordAudit(ctx, businessID, "account:open", account.ID, map[string]any{
		"customer_id":  req.CustomerID,
		"credit_limit": req.CreditLimit.String(),
	})
	return s.repo.GetAccount(ctx, businessID, account.ID)
}

// UpdateAccount changes credit limit and payment terms.
func (s *Service) UpdateAccount(ctx context.Context, businessID, accountID int64, req UpdateAccountRequest) (*CustomerAccount, error) {
	if req.CreditLimit != nil && req.CreditLimit.IsNegative() {
		return nil, fmt.Errorf("%w: credit limit cannot be negative", ErrInvalidAmount)
	}
	var updated *CustomerAccount
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		account, err := tx.GetAccountForUpdate(ctx, businessID, accountID)
		if err != nil {
			return err
		}
		if account.Status == AccountStatusClosed {
			return ErrAccountClosed
		}
		if req.CreditLimit != nil {
			account.CreditLimit = *req.CreditLimit
		}
		if req.PaymentTermsDays != nil {
			account.PaymentTermsDays = *req.PaymentTermsDays
		}
		if err := tx.UpdateAccount(ctx, *account); err != nil {
			return err
		}
		updated = account
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update account: %w", err)
	}
	return updated, nil
}

// SetStatus transitions the account status. Closing requires a zero
// balance; closed is terminal.
func (s *Service) SetStatus(ctx context.Context, businessID, accountID int64, target AccountStatus) (*CustomerAccount, error) {
	var updated *CustomerAccount
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		account, err := tx.GetAccountForUpdate(ctx, businessID, accountID)
		if err != nil {
			return err
		}
		if !account.Status.CanTransition(target) {
			return ErrInvalidStatusChange
		}
		if target == AccountStatusClosed && !account.CurrentBalance.IsZero() {
			return ErrBalanceOutstanding
		}
		account.Status = target
		if err := tx.UpdateAccount(ctx, *account); err != nil {
			return err
		}
		updated = account
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("set account status: %w", err)
	}
	s.recordAudit(ctx, businessID, "account:status", accountID, map[string]any{"status": string(target)})
	return updated, nil
}

// GetAccount fetches one account.
func (s *Service) GetAccount(ctx context.Context, businessID, accountID int64) (*CustomerAccount, error) {
	return s.repo.GetAccount(ctx, businessID, accountID)
}

// GetAccountByCustomer fetches a customer's account.
func (s *Service) GetAccountByCustomer(ctx context.Context, businessID, customerID int64) (*CustomerAccount, error) {
	return s.repo.GetAccountByCustomer(ctx, businessID, customerID)
}

// ListAccounts lists accounts for a business.
func (s *Service) ListAccounts(ctx context.Context, businessID int64, req ListAccountsRequest) ([]CustomerAccount, int, error) {
	return s.repo.ListAccounts(ctx, businessID, req)
}

// ListTransactions lists ledger lines for an account.
func (s *Service) ListTransactions(ctx context.Context, businessID, accountID int64, req ListTransactionsRequest) ([]AccountTransaction, int, error) {
	return s.repo.ListTransactions(ctx, businessID, accountID, req)
}

// GetPayment returns a payment with its allocations materialized.
func (s *Service) GetPayment(ctx context.Context, businessID, paymentID int64) (*AccountPayment, error) {
	return s.repo.GetPayment(ctx, businessID, paymentID)
}

// CreateCharge appends a charge to the ledger. The charge is due
// PaymentTermsDays after creation.
func (s *Service) CreateCharge(ctx context.Context, businessID, accountID int64, req ChargeRequest) (*AccountTransaction, error) {
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	txn, err := s.appendTransaction(ctx, businessID, accountID, ledgerEntry{
		Type:      TransactionTypeCharge,
		Amount:    req.Amount,
		Reference: req.Reference,
		Note:      req.Note,
		WithDue:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("create charge: %w", err)
	}
	s.recordAudit(ctx, businessID, "ledger:charge", accountID, map[string]any{
		"amount":    req.Amount.String(),
		"reference": req.Reference,
	})
	return txn, nil
}

// CreateAdjustment appends a signed, non-zero adjustment.
func (s *Service) CreateAdjustment(ctx context.Context, businessID, accountID int64, req AdjustmentRequest) (*AccountTransaction, error) {
	if req.Amount.IsZero() {
		return nil, ErrZeroAdjustment
	}
	txn, err := s.appendTransaction(ctx, businessID, accountID, ledgerEntry{
		Type:        TransactionTypeAdjustment,
		Amount:      req.Amount,
		Note:        req.Reason,
		AllowOnHold: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create adjustment: %w", err)
	}
	s.recordAudit(ctx, businessID, "ledger:adjustment", accountID, map[string]any{
		"amount": req.Amount.String(),
		"reason": req.Reason,
	})
	return txn, nil
}

// CreateWriteOff appends a write-off, recorded as a negative line.
func (s *Service) CreateWriteOff(ctx context.Context, businessID, accountID int64, req WriteOffRequest) (*AccountTransaction, error) {
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if strings.TrimSpace(req.Reason) == "" {
		return nil, ErrReasonRequired
	}
	txn, err := s.appendTransaction(ctx, businessID, accountID, ledgerEntry{
		Type:        TransactionTypeWriteOff,
		Amount:      req.Amount.Neg(),
		Note:        req.Reason,
		AllowOnHold: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create write-off: %w", err)
	}
	s.recordAudit(ctx, businessID, "ledger:write_off", accountID, map[string]any{
		"amount": req.Amount.String(),
		"reason": req.Reason,
	})
	return txn, nil
}

// RecordPayment appends a payment ledger line, creates the payment
// record and allocates it. Explicit allocations must sum to the
// payment amount; without them the payment is distributed FIFO across
// open charges and any remainder stays unallocated on the payment.
func (s *Service) RecordPayment(ctx context.Context, businessID, accountID int64, req RecordPaymentRequest) (*PaymentResult, error) {
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if err := req.ValidateAllocations(); err != nil {
		return nil, err
	}
	receivedAt := time.Now().UTC()
	if req.ReceivedAt != nil {
		receivedAt = *req.ReceivedAt
	}

	result := &PaymentResult{Unallocated: decimal.Zero}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		account, err := tx.GetAccountForUpdate(ctx, businessID, accountID)
		if err != nil {
			return err
		}
		if account.Status == AccountStatusClosed {
			return ErrAccountClosed
		}

		now := time.Now().UTC()
		ledgerRow := AccountTransaction{
			AccountID:    accountID,
			Type:         TransactionTypePayment,
			Amount:       req.Amount.Neg(),
			BalanceAfter: account.CurrentBalance.Sub(req.Amount),
			Reference:    req.Reference,
			CreatedBy:    shared.ActorFromContext(ctx),
			CreatedAt:    now,
		}
		txnID, err := tx.InsertTransaction(ctx, ledgerRow)
		if err != nil {
			return err
		}
		ledgerRow.ID = txnID

		account.CurrentBalance = ledgerRow.BalanceAfter
		if err := tx.UpdateAccount(ctx, *account); err != nil {
			return err
		}

		payment := AccountPayment{
			AccountID:  accountID,
			Number:     paymentNumber(),
			Amount:     req.Amount,
			Method:     req.Method,
			Reference:  req.Reference,
			ReceivedAt: receivedAt,
			CreatedAt:  now,
		}
		paymentID, err := tx.InsertPayment(ctx, payment)
		if err != nil {
			return err
		}
		payment.ID = paymentID

		var plans []allocationPlan
		remainder := decimal.Zero
		if len(req.Allocations) > 0 {
			targets, err := s.allocationTargets(ctx, tx, req.Allocations)
			if err != nil {
				return err
			}
			plans, err = planExplicit(accountID, req.Allocations, targets)
			if err != nil {
				return err
			}
		} else {
			charges, err := tx.ListOpenChargesForUpdate(ctx, accountID)
			if err != nil {
				return err
			}
			plans, remainder = allocateFIFO(req.Amount, charges)
		}
		for _, plan := range plans {
			alloc := PaymentAllocation{
				PaymentID:     paymentID,
				TransactionID: plan.TransactionID,
				Amount:        plan.Amount,
				CreatedAt:     now,
			}
			allocID, err := tx.InsertAllocation(ctx, alloc)
			if err != nil {
				return err
			}
			alloc.ID = allocID
			payment.Allocations = append(payment.Allocations, alloc)
		}

		result.Payment = &payment
		result.Transaction = &ledgerRow
		result.Unallocated = remainder
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("record payment: %w", err)
	}
	s.bumpCache(ctx)
	s.recordAudit(ctx, businessID, "ledger:payment", accountID, map[string]any{
		"amount": req.Amount.String(),
		"number": result.Payment.Number,
	})
	return result, nil
}

// AllocatePayment applies a payment's unallocated remainder to
// specific charges after the fact.
func (s *Service) AllocatePayment(ctx context.Context, businessID, paymentID int64, req AllocatePaymentRequest) (*AccountPayment, error) {
	var updated *AccountPayment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		payment, err := tx.GetPaymentForUpdate(ctx, businessID, paymentID)
		if err != nil {
			return err
		}
		sum := decimal.Zero
		for _, pair := range req.Allocations {
			if !pair.Amount.IsPositive() {
				return ErrAllocationNotPositive
			}
			sum = sum.Add(pair.Amount)
		}
		if sum.GreaterThan(payment.UnallocatedAmount()) {
			return fmt.Errorf("%w: exceeds unallocated remainder", ErrAllocationMismatch)
		}
		targets, err := s.allocationTargets(ctx, tx, req.Allocations)
		if err != nil {
			return err
		}
		plans, err := planExplicit(payment.AccountID, req.Allocations, targets)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		for _, plan := range plans {
			alloc := PaymentAllocation{
				PaymentID:     paymentID,
				TransactionID: plan.TransactionID,
				Amount:        plan.Amount,
				CreatedAt:     now,
			}
			allocID, err := tx.InsertAllocation(ctx, alloc)
			if err != nil {
				return err
			}
			alloc.ID = allocID
			payment.Allocations = append(payment.Allocations, alloc)
		}
		updated = payment
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("allocate payment: %w", err)
	}
	s.bumpCache(ctx)
	return updated, nil
}

// LogCollectionActivity records a collection attempt. Promise fields
// are both-or-neither.
func (s *Service) LogCollectionActivity(ctx context.Context, businessID, accountID int64, req CollectionActivityRequest) (*CollectionActivity, error) {
	if err := req.ValidatePromise(); err != nil {
		return nil, err
	}
	if req.PromiseAmount != nil && !req.PromiseAmount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if _, err := s.repo.GetAccount(ctx, businessID, accountID); err != nil {
		return nil, err
	}
	activity := CollectionActivity{
		AccountID:     accountID,
		Kind:          req.Kind,
		Note:          req.Note,
		PromiseDate:   req.PromiseDate,
		PromiseAmount: req.PromiseAmount,
		CreatedBy:     shared.ActorFromContext(ctx),
	}
	created, err := s.repo.InsertCollectionActivity(ctx, businessID, activity)
	if err != nil {
		return nil, fmt.Errorf("log collection activity: %w", err)
	}
	return created, nil
}

// ListCollectionActivities lists collection attempts for an account.
func (s *Service) ListCollectionActivities(ctx context.Context, businessID, accountID int64, limit, offset int) ([]CollectionActivity, error) {
	return s.repo.ListCollectionActivities(ctx, businessID, accountID, limit, offset)
}

// ChargeOutstanding reports the unallocated remainder of one charge.
// A charge absent from the open list is fully settled.
func (s *Service) ChargeOutstanding(ctx context.Context, businessID, accountID, transactionID int64) (decimal.Decimal, error) {
	charges, err := s.repo.ListOpenCharges(ctx, businessID, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	for _, charge := range charges {
		if charge.Transaction.ID == transactionID {
			return charge.Outstanding(), nil
		}
	}
	return decimal.Zero, nil
}

// AgingSummary buckets the account's outstanding charges by days
// overdue relative to asOf. Results are cached until the next ledger
// mutation bumps the cache version.
func (s *Service) AgingSummary(ctx context.Context, businessID, accountID int64, asOf time.Time) (AgingSummary, error) {
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}
	load := func(ctx context.Context) (any, error) {
		charges, err := s.repo.ListOpenCharges(ctx, businessID, accountID)
		if err != nil {
			return nil, err
		}
		return bucketCharges(accountID, asOf, charges), nil
	}
	var summary AgingSummary
	if s.cache == nil {
		value, err := load(ctx)
		if err != nil {
			return AgingSummary{}, err
		}
		return value.(AgingSummary), nil
	}
	key, err := s.cache.BuildKey(ctx, keyAging(businessID, accountID, asOf)...)
	if err != nil {
		return AgingSummary{}, err
	}
	if err := s.cache.FetchJSON(ctx, key, &summary, load); err != nil {
		return AgingSummary{}, err
	}
	return summary, nil
}

// bucketCharges ages outstanding charges into the four standard buckets.
func bucketCharges(accountID int64, asOf time.Time, charges []OpenCharge) AgingSummary {
	summary := AgingSummary{
		AccountID:  accountID,
		AsOf:       asOf,
		Current:    decimal.Zero,
		Days30:     decimal.Zero,
		Days60:     decimal.Zero,
		Days90Plus: decimal.Zero,
	}
	for _, charge := range charges {
		outstanding := charge.Outstanding()
		if !outstanding.IsPositive() {
			continue
		}
		due := charge.Transaction.CreatedAt
		if charge.Transaction.DueAt != nil {
			due = *charge.Transaction.DueAt
		}
		days := int(asOf.Sub(due).Hours() / 24)
		switch {
		case days <= 0:
			summary.Current = summary.Current.Add(outstanding)
		case days <= 30:
			summary.Days30 = summary.Days30.Add(outstanding)
		case days <= 60:
			summary.Days60 = summary.Days60.Add(outstanding)
		default:
			summary.Days90Plus = summary.Days90Plus.Add(outstanding)
		}
	}
	return summary
}

type ledgerEntry struct {
	Type        TransactionType
	Amount      decimal.Decimal
	Reference   string
	Note        string
	WithDue     bool
	AllowOnHold bool
}

// appendTransaction is the single write path for ledger lines: lock
// the account, compute balance_after, insert the row and update the
// balance in one transaction.
func (s *Service) appendTransaction(ctx context.Context, businessID, accountID int64, entry ledgerEntry) (*AccountTransaction, error) {
	if businessID == 0 {
		return nil, shared.ErrTenantRequired
	}
	var created *AccountTransaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		account, err := tx.GetAccountForUpdate(ctx, businessID, accountID)
		if err != nil {
			return err
		}
		switch account.Status {
		case AccountStatusActive:
		case AccountStatusSuspended:
			if !entry.AllowOnHold {
				return ErrAccountNotActive
			}
		default:
			return ErrAccountClosed
		}

		now := time.Now().UTC()
		txn := AccountTransaction{
			AccountID:    accountID,
			Type:         entry.Type,
			Amount:       entry.Amount,
			BalanceAfter: account.CurrentBalance.Add(entry.Amount),
			Reference:    entry.Reference,
			Note:         entry.Note,
			CreatedBy:    shared.ActorFromContext(ctx),
			CreatedAt:    now,
		}
		if entry.WithDue {
			due := now.AddDate(0, 0, account.PaymentTermsDays)
			txn.DueAt = &due
		}
		id, err := tx.InsertTransaction(ctx, txn)
		if err != nil {
			return err
		}
		txn.ID = id

		account.CurrentBalance = txn.BalanceAfter
		if err := tx.UpdateAccount(ctx, *account); err != nil {
			return err
		}
		created = &txn
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.bumpCache(ctx)
	return created, nil
}

// allocationTargets loads the distinct transactions referenced by the
// pairs, with their allocated sums. Lookup is by id alone so a pair
// pointing at another account's transaction surfaces as ErrWrongAccount
// rather than a generic not-found.
func (s *Service) allocationTargets(ctx context.Context, tx TxRepository, pairs []AllocationPair) (map[int64]OpenCharge, error) {
	seen := make(map[int64]struct{}, len(pairs))
	ids := make([]int64, 0, len(pairs))
	for _, pair := range pairs {
		if _, ok := seen[pair.TransactionID]; ok {
			continue
		}
		seen[pair.TransactionID] = struct{}{}
		ids = append(ids, pair.TransactionID)
	}
	return tx.GetTransactionsWithAllocated(ctx, ids)
}

func (s *Service) recordAudit(ctx context.Context, businessID int64, action string, accountID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		BusinessID: businessID,
		ActorID:    shared.ActorFromContext(ctx),
		Action:     action,
		Entity:     "customer_account",
		EntityID:   fmt.Sprintf("%d", accountID),
		Meta:       meta,
	})
}

func (s *Service) bumpCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Bump(ctx)
}

func paymentNumber() string {
	return "RCPT-" + strings.ToUpper(uuid.NewString()[:8])
}
