package layby

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// LaybyStatus enumerates layby lifecycle states.
type LaybyStatus string

const (
	LaybyStatusOpen      LaybyStatus = "OPEN"
	LaybyStatusCompleted LaybyStatus = "COMPLETED"
	LaybyStatusCancelled LaybyStatus = "CANCELLED"
)

// ReservationStatus enumerates stock reservation states. Released and
// collected are terminal.
type ReservationStatus string

const (
	ReservationStatusReserved  ReservationStatus = "RESERVED"
	ReservationStatusReleased  ReservationStatus = "RELEASED"
	ReservationStatusCollected ReservationStatus = "COLLECTED"
)

// Layby is goods held for a customer and paid off in installments.
// The total is posted to the customer's account as a single charge;
// ChargeTransactionID links back to that ledger line.
type Layby struct {
	ID                  int64           `json:"id"`
	BusinessID          int64           `json:"business_id"`
	CustomerID          int64           `json:"customer_id"`
	AccountID           int64           `json:"account_id"`
	Number              string          `json:"number"`
	Status              LaybyStatus     `json:"status"`
	Total               decimal.Decimal `json:"total"`
	ChargeTransactionID int64           `json:"charge_transaction_id"`
	Note                string          `json:"note,omitempty"`
	CreatedBy           int64           `json:"created_by"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
	Lines               []LaybyLine     `json:"lines,omitempty"`
	Reservations        []StockReservation `json:"reservations,omitempty"`
}

// LaybyLine is one product on the layby.
type LaybyLine struct {
	ID         int64           `json:"id"`
	LaybyID    int64           `json:"layby_id"`
	ProductID  int64           `json:"product_id"`
	LocationID int64           `json:"location_id"`
	Qty        decimal.Decimal `json:"qty"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
}

// LineTotal is qty times unit price.
func (l LaybyLine) LineTotal() decimal.Decimal {
	return l.Qty.Mul(l.UnitPrice)
}

// StockReservation holds stock against a layby. One row per
// (layby, product, location); duplicate lines accumulate quantity.
type StockReservation struct {
	ID         int64             `json:"id"`
	LaybyID    int64             `json:"layby_id"`
	ProductID  int64             `json:"product_id"`
	LocationID int64             `json:"location_id"`
	Qty        decimal.Decimal   `json:"qty"`
	Status     ReservationStatus `json:"status"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

var (
	ErrNotFound        = errors.New("layby: not found")
	ErrNoLines         = errors.New("layby: at least one line required")
	ErrInvalidLine     = errors.New("layby: line qty and unit price must be positive")
	ErrLaybyNotOpen    = errors.New("layby: layby is not open")
	ErrNotPaidOff      = errors.New("layby: charge not fully paid")
	ErrReservationFinal = errors.New("layby: reservation already in a terminal state")
)
