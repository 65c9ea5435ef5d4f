// internal/workers/origination/validate-loan-application/models.go
package validateloanapplication

type Input struct {
	ApplicationID string                 `json:"applicationId"`
	Applicant     map[string]interface{} `json:"applicant"`
	Employment    map[string]interface{} `json:"employment"`
	Loan          map[string]interface{} `json:"loan"`
}

type Output struct {
	Valid         bool   `json:"valid"`
	ApplicationID string `json:"applicationId"`
	ValidatedAt   string `json:"validatedAt"`
}
