// internal/workers/origination/evaluate-loan-eligibility/models.go
package evaluateloaneligibility

type Input struct {
	ApplicationID   string  `json:"applicationId"`
	MonthlyIncome   float64 `json:"monthlyIncome"`
	RequestedAmount float64 `json:"requestedAmount"`
	InterestRate    float64 `json:"interestRate"`
	TenureMonths    int     `json:"tenureMonths"`
}

type Output struct {
	Eligible          bool     `json:"eligible"`
	MaxEligibleAmount int64    `json:"maxEligibleAmount"`
	RecommendedAmount int64    `json:"recommendedAmount"`
	Reasons           []string `json:"reasons"`
	EMI               int64    `json:"emi"`
	TotalInterest     int64    `json:"totalInterest"`
	TotalPayment      int64    `json:"totalPayment"`
}
