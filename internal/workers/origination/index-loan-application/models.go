// internal/workers/origination/index-loan-application/models.go
package indexloanapplication

type Input struct {
	ApplicationID   string   `json:"applicationId"`
	RecordID        string   `json:"recordId"`
	FirstName       string   `json:"firstName"`
	LastName        string   `json:"lastName"`
	Email           string   `json:"email"`
	LoanTypeID      string   `json:"loanTypeId"`
	RequestedAmount float64  `json:"requestedAmount"`
	TenureMonths    int      `json:"tenureMonths"`
	EMI             int64    `json:"emi"`
	Eligible        bool     `json:"eligible"`
	Reasons         []string `json:"reasons"`
}

// summaryDocument is the shape written to the search index.
type summaryDocument struct {
	ApplicationID   string   `json:"applicationId"`
	RecordID        string   `json:"recordId"`
	ApplicantName   string   `json:"applicantName"`
	Email           string   `json:"email"`
	LoanTypeID      string   `json:"loanTypeId"`
	RequestedAmount float64  `json:"requestedAmount"`
	TenureMonths    int      `json:"tenureMonths"`
	EMI             int64    `json:"emi"`
	Eligible        bool     `json:"eligible"`
	Reasons         []string `json:"reasons"`
	IndexedAt       string   `json:"indexedAt"`
}

type Output struct {
	Indexed bool   `json:"indexed"`
	Index   string `json:"index"`
}
