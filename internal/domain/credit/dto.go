package credit

// ConsumeRequest is the body of POST /credits/consume
type ConsumeRequest struct {
	Amount      int    `json:"amount" validate:"required,min=1,max=10000"`
	Description string `json:"description" validate:"max=255"`
	ReferenceID string `json:"reference_id" validate:"max=128"`
}

// BalanceResponse is returned by GET /credits/balance
type BalanceResponse struct {
	Balance   int `json:"balance"`
	Available int `json:"available"`
}
