package inventory

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// MovementType enumerates stock movement kinds.
type MovementType string

const (
	// MovementTypeIn represents an inbound receipt.
	MovementTypeIn MovementType = "IN"
	// MovementTypeOut represents an outbound issue.
	MovementTypeOut MovementType = "OUT"
	// MovementTypeAdjust indicates a manual adjustment.
	MovementTypeAdjust MovementType = "ADJUST"
	// MovementTypeReserve holds stock against a layby.
	MovementTypeReserve MovementType = "RESERVE"
	// MovementTypeRelease returns held stock to available.
	MovementTypeRelease MovementType = "RELEASE"
	// MovementTypeCollect removes held stock on customer pickup.
	MovementTypeCollect MovementType = "COLLECT"
)

// StockBalance summarises stock per product and location.
// Available stock is what can still be sold or reserved.
type StockBalance struct {
	BusinessID int64           `json:"business_id"`
	LocationID int64           `json:"location_id"`
	ProductID  int64           `json:"product_id"`
	OnHand     decimal.Decimal `json:"on_hand"`
	Reserved   decimal.Decimal `json:"reserved"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Available is the sellable quantity: on hand minus reserved.
func (b StockBalance) Available() decimal.Decimal {
	return b.OnHand.Sub(b.Reserved)
}

// StockMovement is one ledger line. OnHandAfter and ReservedAfter
// snapshot the balance the movement produced.
type StockMovement struct {
	ID            int64           `json:"id"`
	BusinessID    int64           `json:"business_id"`
	LocationID    int64           `json:"location_id"`
	ProductID     int64           `json:"product_id"`
	Type          MovementType    `json:"type"`
	Quantity      decimal.Decimal `json:"quantity"`
	OnHandAfter   decimal.Decimal `json:"on_hand_after"`
	ReservedAfter decimal.Decimal `json:"reserved_after"`
	Reference     string          `json:"reference,omitempty"`
	Note          string          `json:"note,omitempty"`
	CreatedBy     int64           `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
}

// MovementFilter filters movement listings.
type MovementFilter struct {
	LocationID int64
	ProductID  int64
	Type       *MovementType
	From       time.Time
	To         time.Time
	Limit      int
	Offset     int
}

// ErrInsufficientStock triggered when a movement would drive available
// stock negative.
var ErrInsufficientStock = errors.New("inventory: insufficient available stock")

// ErrInvalidQuantity indicates a zero or wrongly signed quantity.
var ErrInvalidQuantity = errors.New("inventory: invalid quantity")

// ErrBalanceNotFound indicates a missing balance row.
var ErrBalanceNotFound = errors.New("inventory: balance not found")

// ErrReservedExceeded indicates a release or collect larger than the
// currently reserved quantity.
var ErrReservedExceeded = errors.New("inventory: quantity exceeds reserved stock")
