// internal/workers/origination/validate-loan-application/handler_test.go
package validateloanapplication

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "lendflow/internal/common/errors"
	"lendflow/internal/common/logger"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	h, err := NewHandler(LoadConfig(), logger.NewTestLogger(t))
	require.NoError(t, err)
	return h
}

func validInput() *Input {
	return &Input{
		ApplicationID: "APP-2024-001",
		Applicant: map[string]interface{}{
			"firstName": "Asha",
			"lastName":  "Rao",
			"email":     "asha@example.com",
			"phone":     "9876543210",
		},
		Employment: map[string]interface{}{
			"companyName":   "Acme Ltd",
			"monthlyIncome": 85000,
		},
		Loan: map[string]interface{}{
			"typeId":       "personal",
			"amount":       500000,
			"tenureMonths": 36,
		},
	}
}

func TestExecute_ValidPayload(t *testing.T) {
	h := newTestHandler(t)

	output, err := h.Execute(context.Background(), validInput())
	require.NoError(t, err)
	assert.True(t, output.Valid)
	assert.Equal(t, "APP-2024-001", output.ApplicationID)
	assert.NotEmpty(t, output.ValidatedAt)
}

func TestExecute_MissingApplicationID(t *testing.T) {
	h := newTestHandler(t)
	input := validInput()
	input.ApplicationID = ""

	_, err := h.Execute(context.Background(), input)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeLoanValidationFailed))
}

func TestExecute_MalformedEmail(t *testing.T) {
	h := newTestHandler(t)
	input := validInput()
	input.Applicant["email"] = "not-an-email"

	_, err := h.Execute(context.Background(), input)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeLoanValidationFailed))
}

func TestExecute_ZeroIncome(t *testing.T) {
	h := newTestHandler(t)
	input := validInput()
	input.Employment["monthlyIncome"] = 0

	_, err := h.Execute(context.Background(), input)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeLoanValidationFailed))
}

func TestExecute_NonIntegerTenure(t *testing.T) {
	h := newTestHandler(t)
	input := validInput()
	input.Loan["tenureMonths"] = 36.5

	_, err := h.Execute(context.Background(), input)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeLoanValidationFailed))
}

func TestExecute_ErrorIsNotRetryable(t *testing.T) {
	h := newTestHandler(t)
	input := validInput()
	input.Loan["amount"] = -1

	_, err := h.Execute(context.Background(), input)
	require.Error(t, err)
	assert.False(t, apperrors.IsRetryableErrorCode(apperrors.CodeOf(err)),
		"validation failures are business errors, never retried")
}
