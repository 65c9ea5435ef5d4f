// internal/workers/origination/create-loan-record/models.go
package createloanrecord

type Input struct {
	ApplicationID   string  `json:"applicationId"`
	SessionID       string  `json:"sessionId"`
	FirstName       string  `json:"firstName"`
	LastName        string  `json:"lastName"`
	Email           string  `json:"email"`
	Phone           string  `json:"phone"`
	LoanTypeID      string  `json:"loanTypeId"`
	RequestedAmount float64 `json:"requestedAmount"`
	TenureMonths    int     `json:"tenureMonths"`
	InterestRate    float64 `json:"interestRate"`
	EMI             int64   `json:"emi"`
	Eligible        bool    `json:"eligible"`
}

type Output struct {
	RecordID  string `json:"recordId"`
	CreatedAt string `json:"createdAt"`
}
