package statements

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// AccountStatement is an immutable snapshot of an account over a
// period. Closing balance always equals opening + charges − payments,
// and the four aging buckets always sum to the closing balance.
type AccountStatement struct {
	ID             int64           `json:"id"`
	BusinessID     int64           `json:"business_id"`
	AccountID      int64           `json:"account_id"`
	Number         string          `json:"number"`
	PeriodStart    time.Time       `json:"period_start"`
	PeriodEnd      time.Time       `json:"period_end"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	TotalCharges   decimal.Decimal `json:"total_charges"`
	TotalPayments  decimal.Decimal `json:"total_payments"`
	ClosingBalance decimal.Decimal `json:"closing_balance"`
	AgingCurrent   decimal.Decimal `json:"aging_current"`
	AgingDays30    decimal.Decimal `json:"aging_days_30"`
	AgingDays60    decimal.Decimal `json:"aging_days_60"`
	AgingDays90    decimal.Decimal `json:"aging_days_90_plus"`
	CreatedAt      time.Time       `json:"created_at"`
	SentAt         *time.Time      `json:"sent_at,omitempty"`
}

// AgingTotal sums the four buckets.
func (s AccountStatement) AgingTotal() decimal.Decimal {
	return s.AgingCurrent.Add(s.AgingDays30).Add(s.AgingDays60).Add(s.AgingDays90)
}

// OutstandingCharge is a charge with its allocated amount, read from
// the ledger for aging.
type OutstandingCharge struct {
	TransactionID int64
	Amount        decimal.Decimal
	Allocated     decimal.Decimal
	DueAt         *time.Time
	CreatedAt     time.Time
}

// Outstanding is the unallocated remainder.
func (c OutstandingCharge) Outstanding() decimal.Decimal {
	return c.Amount.Sub(c.Allocated)
}

// AccountRef identifies an account across businesses for batch runs.
type AccountRef struct {
	BusinessID int64
	AccountID  int64
}

var (
	ErrNotFound      = errors.New("statements: not found")
	ErrAlreadyExists = errors.New("statements: statement exists for period")
	ErrInvalidPeriod = errors.New("statements: period end must be after start")
	ErrAlreadySent   = errors.New("statements: statement already sent")
)
