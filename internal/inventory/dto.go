package inventory

import "github.com/shopspring/decimal"

type MovementRequest struct {
	LocationID int64           `json:"location_id" validate:"gte=0"`
	ProductID  int64           `json:"product_id" validate:"required,gt=0"`
	Quantity   decimal.Decimal `json:"quantity" validate:"required"`
	Reference  string          `json:"reference,omitempty" validate:"omitempty,max=100"`
	Note       string          `json:"note,omitempty" validate:"omitempty,max=500"`
}

func (r MovementRequest) input() MovementInput {
	return MovementInput{
		LocationID: r.LocationID,
		ProductID:  r.ProductID,
		Quantity:   r.Quantity,
		Reference:  r.Reference,
		Note:       r.Note,
	}
}
