package accounts

import (
	"time"

	"github.com/shopspring/decimal"
)

type OpenAccountRequest struct {
	CustomerID       int64           `json:"customer_id" validate:"required,gt=0"`
	CreditLimit      decimal.Decimal `json:"credit_limit"`
	PaymentTermsDays int             `json:"payment_terms_days" validate:"gte=0,lte=365"`
}

type UpdateAccountRequest struct {
	CreditLimit      *decimal.Decimal `json:"credit_limit,omitempty"`
	PaymentTermsDays *int             `json:"payment_terms_days,omitempty" validate:"omitempty,gte=0,lte=365"`
}

type SetStatusRequest struct {
	Status AccountStatus `json:"status" validate:"required,oneof=ACTIVE SUSPENDED CLOSED"`
}

type ChargeRequest struct {
	Amount    decimal.Decimal `json:"amount" validate:"required"`
	Reference string          `json:"reference,omitempty" validate:"omitempty,max=100"`
	Note      string          `json:"note,omitempty" validate:"omitempty,max=500"`
}

type AdjustmentRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"required"`
	Reason string          `json:"reason" validate:"required,max=500"`
}

type WriteOffRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"required"`
	Reason string          `json:"reason" validate:"required,max=500"`
}

type AllocationPair struct {
	TransactionID int64           `json:"transaction_id" validate:"required,gt=0"`
	Amount        decimal.Decimal `json:"amount" validate:"required"`
}

type RecordPaymentRequest struct {
	Amount      decimal.Decimal  `json:"amount" validate:"required"`
	Method      string           `json:"method" validate:"required,max=50"`
	Reference   string           `json:"reference,omitempty" validate:"omitempty,max=100"`
	ReceivedAt  *time.Time       `json:"received_at,omitempty"`
	Allocations []AllocationPair `json:"allocations,omitempty" validate:"omitempty,dive"`
}

// ValidateAllocations enforces the schema-boundary rule for explicit
// allocations: each amount positive and the sum exactly equal to the
// payment amount. A mismatch is rejected before any ledger mutation.
func (r RecordPaymentRequest) ValidateAllocations() error {
	if len(r.Allocations) == 0 {
		return nil
	}
	sum := decimal.Zero
	for _, pair := range r.Allocations {
		if !pair.Amount.IsPositive() {
			return ErrAllocationNotPositive
		}
		sum = sum.Add(pair.Amount)
	}
	if !sum.Equal(r.Amount) {
		return ErrAllocationMismatch
	}
	return nil
}

type AllocatePaymentRequest struct {
	Allocations []AllocationPair `json:"allocations" validate:"required,min=1,dive"`
}

type CollectionActivityRequest struct {
	Kind          string           `json:"kind" validate:"required,max=50"`
	Note          string           `json:"note,omitempty" validate:"omitempty,max=1000"`
	PromiseDate   *time.Time       `json:"promise_date,omitempty"`
	PromiseAmount *decimal.Decimal `json:"promise_amount,omitempty"`
}

// ValidatePromise enforces the both-or-neither rule for promise fields.
func (r CollectionActivityRequest) ValidatePromise() error {
	if r.PromiseAmount != nil && r.PromiseDate == nil {
		return ErrPromiseDateRequired
	}
	if r.PromiseDate != nil && r.PromiseAmount == nil {
		return ErrPromiseAmountRequired
	}
	return nil
}

type ListAccountsRequest struct {
	Status *AccountStatus `json:"status,omitempty" validate:"omitempty,oneof=ACTIVE SUSPENDED CLOSED"`
	Limit  int            `json:"limit" validate:"gte=0,lte=1000"`
	Offset int            `json:"offset" validate:"gte=0"`
}

type ListTransactionsRequest struct {
	Type   *TransactionType `json:"type,omitempty" validate:"omitempty,oneof=CHARGE PAYMENT ADJUSTMENT WRITE_OFF"`
	Limit  int              `json:"limit" validate:"gte=0,lte=1000"`
	Offset int              `json:"offset" validate:"gte=0"`
}

// PaymentResult reports the outcome of recording a payment, including
// any remainder left unallocated after FIFO distribution.
type PaymentResult struct {
	Payment     *AccountPayment     `json:"payment"`
	Transaction *AccountTransaction `json:"transaction"`
	Unallocated decimal.Decimal     `json:"unallocated"`
}
