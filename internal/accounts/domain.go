package accounts

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// AccountStatus enumerates customer account statuses.
type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "ACTIVE"
	AccountStatusSuspended AccountStatus = "SUSPENDED"
	AccountStatusClosed    AccountStatus = "CLOSED"
)

// CanTransition reports whether a status change is allowed. Closed is
// terminal; active and suspended flip freely.
func (s AccountStatus) CanTransition(target AccountStatus) bool {
	if s == target {
		return true
	}
	switch s {
	case AccountStatusActive:
		return target == AccountStatusSuspended || target == AccountStatusClosed
	case AccountStatusSuspended:
		return target == AccountStatusActive || target == AccountStatusClosed
	}
	return false
}

// TransactionType enumerates ledger line types.
type TransactionType string

const (
	TransactionTypeCharge     TransactionType = "CHARGE"
	TransactionTypePayment    TransactionType = "PAYMENT"
	TransactionTypeAdjustment TransactionType = "ADJUSTMENT"
	TransactionTypeWriteOff   TransactionType = "WRITE_OFF"
)

// CustomerAccount models a customer's credit account, one per customer
// per business.
type CustomerAccount struct {
	ID               int64           `json:"id"`
	BusinessID       int64           `json:"business_id"`
	CustomerID       int64           `json:"customer_id"`
	CreditLimit      decimal.Decimal `json:"credit_limit"`
	CurrentBalance   decimal.Decimal `json:"current_balance"`
	PaymentTermsDays int             `json:"payment_terms_days"`
	Status           AccountStatus   `json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// AvailableCredit returns credit_limit - current_balance.
func (a *CustomerAccount) AvailableCredit() decimal.Decimal {
	return a.CreditLimit.Sub(a.CurrentBalance)
}

// IsOverLimit reports whether the balance exceeds the credit limit.
func (a *CustomerAccount) IsOverLimit() bool {
	return a.CurrentBalance.GreaterThan(a.CreditLimit)
}

// AccountTransaction is an immutable ledger line. Amount is signed:
// charges positive, payments and write-offs negative, adjustments
// either way. BalanceAfter is the running account balance after this
// line was applied.
type AccountTransaction struct {
	ID           int64           `json:"id"`
	AccountID    int64           `json:"account_id"`
	Type         TransactionType `json:"type"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	Reference    string          `json:"reference,omitempty"`
	Note         string          `json:"note,omitempty"`
	DueAt        *time.Time      `json:"due_at,omitempty"`
	CreatedBy    int64           `json:"created_by"`
	CreatedAt    time.Time       `json:"created_at"`
}

// OpenCharge pairs a charge transaction with the amount already
// allocated against it. Outstanding is Amount - Allocated.
type OpenCharge struct {
	Transaction AccountTransaction `json:"transaction"`
	Allocated   decimal.Decimal    `json:"allocated"`
}

// Outstanding returns the unallocated remainder of the charge.
func (c OpenCharge) Outstanding() decimal.Decimal {
	return c.Transaction.Amount.Sub(c.Allocated)
}

// AccountPayment is a receipt of funds owning zero or more allocations.
type AccountPayment struct {
	ID          int64               `json:"id"`
	AccountID   int64               `json:"account_id"`
	Number      string              `json:"number"`
	Amount      decimal.Decimal     `json:"amount"`
	Method      string              `json:"method"`
	Reference   string              `json:"reference,omitempty"`
	ReceivedAt  time.Time           `json:"received_at"`
	CreatedAt   time.Time           `json:"created_at"`
	Allocations []PaymentAllocation `json:"allocations"`
}

// AllocatedAmount sums the payment's allocations.
func (p *AccountPayment) AllocatedAmount() decimal.Decimal {
	total := decimal.Zero
	for _, a := range p.Allocations {
		total = total.Add(a.Amount)
	}
	return total
}

// UnallocatedAmount returns the remainder available for later allocation.
func (p *AccountPayment) UnallocatedAmount() decimal.Decimal {
	return p.Amount.Sub(p.AllocatedAmount())
}

// PaymentAllocation links a payment to one outstanding charge.
type PaymentAllocation struct {
	ID            int64           `json:"id"`
	PaymentID     int64           `json:"payment_id"`
	TransactionID int64           `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	CreatedAt     time.Time       `json:"created_at"`
}

// CollectionActivity logs a collection attempt against an account.
// PromiseDate and PromiseAmount are both-or-neither, backed by a check
// constraint on collection_activities.
type CollectionActivity struct {
	ID            int64            `json:"id"`
	AccountID     int64            `json:"account_id"`
	Kind          string           `json:"kind"`
	Note          string           `json:"note,omitempty"`
	PromiseDate   *time.Time       `json:"promise_date,omitempty"`
	PromiseAmount *decimal.Decimal `json:"promise_amount,omitempty"`
	CreatedBy     int64            `json:"created_by"`
	CreatedAt     time.Time        `json:"created_at"`
}

// AgingSummary buckets an account's outstanding charges by days overdue.
type AgingSummary struct {
	AccountID  int64           `json:"account_id"`
	AsOf       time.Time       `json:"as_of"`
	Current    decimal.Decimal `json:"current"`
	Days30     decimal.Decimal `json:"days_30"`
	Days60     decimal.Decimal `json:"days_60"`
	Days90Plus decimal.Decimal `json:"days_90_plus"`
}

// Total sums all aging buckets.
func (s AgingSummary) Total() decimal.Decimal {
	return s.Current.Add(s.Days30).Add(s.Days60).Add(s.Days90Plus)
}

var (
	// ErrNotFound indicates account, transaction or payment not found.
	ErrNotFound = errors.New("accounts: not found")
	// ErrAlreadyExists indicates the customer already has an account.
	ErrAlreadyExists = errors.New("accounts: account already exists for customer")
	// ErrInvalidAmount indicates an amount failing its sign constraint.
	ErrInvalidAmount = errors.New("accounts: amount must be positive")
	// ErrZeroAdjustment indicates an adjustment of zero.
	ErrZeroAdjustment = errors.New("accounts: adjustment cannot be zero")
	// ErrReasonRequired indicates a write-off without a reason.
	ErrReasonRequired = errors.New("accounts: reason required")
	// ErrAccountNotActive indicates a charge against a suspended or closed account.
	ErrAccountNotActive = errors.New("accounts: account not active")
	// ErrAccountClosed indicates a mutation against a closed account.
	ErrAccountClosed = errors.New("accounts: account closed")
	// ErrInvalidStatusChange indicates a forbidden status transition.
	ErrInvalidStatusChange = errors.New("accounts: invalid status transition")
	// ErrBalanceOutstanding indicates closing an account that still carries a balance.
	ErrBalanceOutstanding = errors.New("accounts: balance must be zero to close")
	// ErrAllocationMismatch indicates explicit allocations not summing to the payment amount.
	ErrAllocationMismatch = errors.New("accounts: allocations must sum to payment amount")
	// ErrAllocationNotPositive indicates a zero or negative allocation amount.
	ErrAllocationNotPositive = errors.New("accounts: allocation amount must be positive")
	// ErrOverAllocation indicates allocating beyond a charge's outstanding amount.
	ErrOverAllocation = errors.New("accounts: allocation exceeds outstanding amount")
	// ErrWrongAccount indicates allocating to a transaction of another account.
	ErrWrongAccount = errors.New("accounts: transaction belongs to another account")
	// ErrNotACharge indicates allocating to a non-charge transaction.
	ErrNotACharge = errors.New("accounts: allocations apply to charges only")
	// ErrPromiseDateRequired indicates promise_amount without promise_date.
	ErrPromiseDateRequired = errors.New("accounts: promise_date is required")
	// ErrPromiseAmountRequired indicates promise_date without promise_amount.
	ErrPromiseAmountRequired = errors.New("accounts: promise_amount is required")
)
