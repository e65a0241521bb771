package statements

type GenerateStatementRequest struct {
	AccountID   int64  `json:"account_id" validate:"required,gt=0"`
	PeriodStart string `json:"period_start" validate:"required,datetime=2006-01-02"`
	PeriodEnd   string `json:"period_end" validate:"required,datetime=2006-01-02"`
}

type SendStatementRequest struct {
	Recipient string `json:"recipient" validate:"required,email"`
}
