package invoices

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus tracks an invoice through its lifecycle.
type InvoiceStatus string

const (
	InvoiceStatusDraft   InvoiceStatus = "DRAFT"
	InvoiceStatusPosted  InvoiceStatus = "POSTED"
	InvoiceStatusPaid    InvoiceStatus = "PAID"
	InvoiceStatusOverdue InvoiceStatus = "OVERDUE"
	InvoiceStatusVoid    InvoiceStatus = "VOID"
)

// Invoice is an on-account invoice. Posting it writes one charge to
// the customer's account ledger; the invoice then tracks that charge.
type Invoice struct {
	ID                  int64           `json:"id"`
	BusinessID          int64           `json:"business_id"`
	AccountID           int64           `json:"account_id"`
	Number              string          `json:"number"`
	Total               decimal.Decimal `json:"total"`
	Status              InvoiceStatus   `json:"status"`
	ChargeTransactionID int64           `json:"charge_transaction_id,omitempty"`
	DueAt               *time.Time      `json:"due_at,omitempty"`
	IssuedAt            *time.Time      `json:"issued_at,omitempty"`
	Note                string          `json:"note,omitempty"`
	CreatedBy           int64           `json:"created_by,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

var (
	ErrNotFound          = errors.New("invoice not found")
	ErrInvalidAmount     = errors.New("invoice total must be positive")
	ErrNotDraft          = errors.New("invoice is not a draft")
	ErrNotPosted         = errors.New("invoice is not posted")
	ErrChargeAllocated   = errors.New("invoice charge has allocations")
	ErrNotSettled        = errors.New("invoice charge is not fully allocated")
	ErrInvalidTransition = errors.New("invalid invoice status change")
)
