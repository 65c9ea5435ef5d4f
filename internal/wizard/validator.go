// internal/wizard/validator.go
package wizard

import "regexp"

// Step numbers the six wizard steps in order.
type Step int

const (
	StepVerification Step = iota + 1
	StepPersonal
	StepEmployment
	StepDocuments
	StepLoanTerms
	StepReview
)

const (
	FirstStep = StepVerification
	LastStep  = StepReview
)

func (s Step) String() string {
	switch s {
	case StepVerification:
		return "verification"
	case StepPersonal:
		return "personal_details"
	case StepEmployment:
		return "employment_details"
	case StepDocuments:
		return "documents"
	case StepLoanTerms:
		return "loan_terms"
	case StepReview:
		return "review"
	default:
		return "unknown"
	}
}

// Predefined patterns
var (
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	// E.164 format: optional +, must start with 1-9, then 6-14 more digits
	phoneRegex = regexp.MustCompile(`^[\+]?[1-9][\d]{6,14}$`)
)

// CanAdvance reports whether the draft satisfies the gate for leaving the
// given step, returning the first unmet field when it does not. Pure and
// idempotent: same draft, same answer.
func CanAdvance(step Step, d Draft) (bool, string) {
	switch step {
	case StepVerification:
		if d.Verification.Destination == "" {
			return false, "verification.destination"
		}
		if !d.Verification.Verified {
			return false, "verification.verified"
		}

	case StepPersonal:
		if d.Personal.FirstName == "" {
			return false, "personal.firstName"
		}
		if d.Personal.LastName == "" {
			return false, "personal.lastName"
		}
		if !emailRegex.MatchString(d.Personal.Email) {
			return false, "personal.email"
		}
		if !phoneRegex.MatchString(d.Personal.Phone) {
			return false, "personal.phone"
		}
		if d.Personal.Address.Line1 == "" {
			return false, "personal.address.line1"
		}
		if d.Personal.Address.City == "" {
			return false, "personal.address.city"
		}

	case StepEmployment:
		if d.Employment.CompanyName == "" {
			return false, "employment.companyName"
		}
		if d.Employment.Designation == "" {
			return false, "employment.designation"
		}
		if d.Employment.MonthlyIncome <= 0 {
			return false, "employment.monthlyIncome"
		}

	case StepDocuments:
		for _, kind := range RequiredDocuments {
			if _, ok := d.Documents[kind]; !ok {
				return false, "documents." + string(kind)
			}
		}

	case StepLoanTerms:
		if d.Loan.TypeID == "" {
			return false, "loan.typeId"
		}
		if d.Loan.Amount <= 0 {
			return false, "loan.amount"
		}
		if d.Loan.TenureMonths <= 0 {
			return false, "loan.tenureMonths"
		}

	case StepReview:
		if !d.TermsAccepted {
			return false, "termsAccepted"
		}

	default:
		return false, "step"
	}

	return true, ""
}
