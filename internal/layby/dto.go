package layby

import "github.com/shopspring/decimal"

type LineInput struct {
	ProductID  int64           `json:"product_id" validate:"required,gt=0"`
	LocationID int64           `json:"location_id" validate:"gte=0"`
	Qty        decimal.Decimal `json:"qty" validate:"required"`
	UnitPrice  decimal.Decimal `json:"unit_price" validate:"required"`
}

type CreateLaybyRequest struct {
	CustomerID int64       `json:"customer_id" validate:"required,gt=0"`
	Note       string      `json:"note,omitempty" validate:"omitempty,max=500"`
	Lines      []LineInput `json:"lines" validate:"required,min=1,dive"`
}

type ListLaybysRequest struct {
	Status     *LaybyStatus `json:"status,omitempty" validate:"omitempty,oneof=OPEN COMPLETED CANCELLED"`
	CustomerID int64        `json:"customer_id,omitempty" validate:"gte=0"`
	Limit      int          `json:"limit" validate:"gte=0,lte=1000"`
	Offset     int          `json:"offset" validate:"gte=0"`
}
