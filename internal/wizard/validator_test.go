// internal/wizard/validator_test.go
package wizard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completeDraft(t *testing.T) Draft {
	t.Helper()
	d := NewDraft(ChannelMobile, "9876543210").WithVerified().
		WithPersonal(Personal{
			FirstName: "Asha",
			LastName:  "Rao",
			Email:     "asha@example.com",
			Phone:     "9876543210",
			Address:   Address{Line1: "12 MG Road", City: "Bengaluru"},
		}).
		WithEmployment(Employment{
			Type:          EmploymentSalaried,
			CompanyName:   "Acme Ltd",
			Designation:   "Engineer",
			MonthlyIncome: 85000,
		}).
		WithDocument(DocIdentityProof, "id.pdf", 100).
		WithDocument(DocAddressProof, "addr.pdf", 100).
		WithDocument(DocIncomeProof, "pay.pdf", 100)

	d, err := d.WithLoanTerms("personal", 500000, 36, "renovation", 12.5, 0.02)
	require.NoError(t, err)
	return d.WithTermsAccepted(true)
}

func TestCanAdvance_CompleteDraftPassesEveryStep(t *testing.T) {
	d := completeDraft(t)
	for step := StepVerification; step <= StepReview; step++ {
		ok, missing := CanAdvance(step, d)
		assert.True(t, ok, "step %s blocked on %s", step, missing)
		assert.Empty(t, missing)
	}
}

func TestCanAdvance_Idempotent(t *testing.T) {
	d := NewDraft(ChannelMobile, "9876543210")
	ok1, missing1 := CanAdvance(StepPersonal, d)
	ok2, missing2 := CanAdvance(StepPersonal, d)
	assert.Equal(t, ok1, ok2)
	assert.Equal(t, missing1, missing2)
}

func TestCanAdvance_ReportsFirstUnmetField(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(Draft) Draft
		step    Step
		missing string
	}{
		{"unverified channel", func(d Draft) Draft {
			d.Verification.Verified = false
			return d
		}, StepVerification, "verification.verified"},
		{"missing first name", func(d Draft) Draft {
			p := d.Personal
			p.FirstName = ""
			return d.WithPersonal(p)
		}, StepPersonal, "personal.firstName"},
		{"malformed email", func(d Draft) Draft {
			p := d.Personal
			p.Email = "not-an-email"
			return d.WithPersonal(p)
		}, StepPersonal, "personal.email"},
		{"short phone", func(d Draft) Draft {
			p := d.Personal
			p.Phone = "123"
			return d.WithPersonal(p)
		}, StepPersonal, "personal.phone"},
		{"missing income", func(d Draft) Draft {
			e := d.Employment
			e.MonthlyIncome = 0
			return d.WithEmployment(e)
		}, StepEmployment, "employment.monthlyIncome"},
		{"missing income proof", func(d Draft) Draft {
			return d.WithoutDocument(DocIncomeProof)
		}, StepDocuments, "documents.income_proof"},
		{"no loan type", func(d Draft) Draft {
			d.Loan.TypeID = ""
			return d
		}, StepLoanTerms, "loan.typeId"},
		{"terms not accepted", func(d Draft) Draft {
			return d.WithTermsAccepted(false)
		}, StepReview, "termsAccepted"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := tc.mutate(completeDraft(t))
			ok, missing := CanAdvance(tc.step, d)
			require.False(t, ok)
			assert.Equal(t, tc.missing, missing)
		})
	}
}

func TestCanAdvance_MissingIncomeBlocksRegardlessOfOtherFields(t *testing.T) {
	// A fully filled employment section with no income still gates step 3.
	d := completeDraft(t)
	e := d.Employment
	e.MonthlyIncome = 0
	e.YearsAtJob = 7
	d = d.WithEmployment(e)

	ok, missing := CanAdvance(StepEmployment, d)
	assert.False(t, ok)
	assert.Equal(t, "employment.monthlyIncome", missing)
}

func TestCanAdvance_AcceptsEveryEmploymentType(t *testing.T) {
	types := []EmploymentType{
		EmploymentSalaried,
		EmploymentSelfEmployed,
		EmploymentBusiness,
		EmploymentFreelancer,
	}
	for _, et := range types {
		d := completeDraft(t)
		e := d.Employment
		e.Type = et
		d = d.WithEmployment(e)

		ok, missing := CanAdvance(StepEmployment, d)
		assert.True(t, ok, "employment type %s blocked on %s", et, missing)
	}
}

func TestCanAdvance_OptionalDocumentsNotRequired(t *testing.T) {
	d := completeDraft(t)
	_, hasBank := d.Documents[DocBankStatement]
	require.False(t, hasBank)

	ok, _ := CanAdvance(StepDocuments, d)
	assert.True(t, ok, "bank statement and employment letter are optional")
}
