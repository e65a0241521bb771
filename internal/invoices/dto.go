package invoices

import (
	"github.com/shopspring/decimal"
)

type CreateInvoiceRequest struct {
	AccountID int64           `json:"account_id" validate:"required,gt=0"`
	Total     decimal.Decimal `json:"total" validate:"required"`
	Note      string          `json:"note,omitempty" validate:"omitempty,max=500"`
}

type ListInvoicesRequest struct {
	Status    *InvoiceStatus `json:"status,omitempty" validate:"omitempty,oneof=DRAFT POSTED PAID OVERDUE VOID"`
	AccountID int64          `json:"account_id,omitempty" validate:"omitempty,gt=0"`
	Limit     int            `json:"limit" validate:"gte=0,lte=1000"`
	Offset    int            `json:"offset" validate:"gte=0"`
}
