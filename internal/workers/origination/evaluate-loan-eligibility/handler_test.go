// internal/workers/origination/evaluate-loan-eligibility/handler_test.go
package evaluateloaneligibility

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
	return NewHandler(LoadConfig(), logger.NewTestLogger(t))
}

func TestExecute_EligibleApplication(t *testing.T) {
	h := newTestHandler(t)

	output, err := h.Execute(context.Background(), &Input{
		ApplicationID:   "APP-1",
		MonthlyIncome:   85000,
		RequestedAmount: 500000,
		InterestRate:    12.5,
		TenureMonths:    36,
	})
	require.NoError(t, err)

	assert.True(t, output.Eligible)
	assert.Equal(t, int64(3400000), output.MaxEligibleAmount)
	assert.Equal(t, int64(500000), output.RecommendedAmount)
	assert.Equal(t, int64(16727), output.EMI)
	assert.Equal(t, int64(602172), output.TotalPayment)
	assert.NotEmpty(t, output.Reasons)
}

func TestExecute_IncomeBelowMinimum(t *testing.T) {
	h := newTestHandler(t)

	output, err := h.Execute(context.Background(), &Input{
		ApplicationID:   "APP-2",
		MonthlyIncome:   20000,
		RequestedAmount: 300000,
		InterestRate:    12.5,
		TenureMonths:    24,
	})
	require.NoError(t, err)

	assert.False(t, output.Eligible)
	assert.Contains(t, output.Reasons[0], "below the minimum")
}

func TestExecute_AmountOverCap(t *testing.T) {
	h := newTestHandler(t)

	output, err := h.Execute(context.Background(), &Input{
		ApplicationID:   "APP-3",
		MonthlyIncome:   30000,
		RequestedAmount: 1500000,
		InterestRate:    10,
		TenureMonths:    48,
	})
	require.NoError(t, err)

	assert.False(t, output.Eligible)
	assert.Equal(t, int64(1200000), output.MaxEligibleAmount)
	assert.Contains(t, output.Reasons[0], "exceeds the eligible maximum")
}

func TestExecute_BadFiguresAreRetryableCheckFailure(t *testing.T) {
	h := newTestHandler(t)

	_, err := h.Execute(context.Background(), &Input{
		ApplicationID:   "APP-4",
		MonthlyIncome:   85000,
		RequestedAmount: 500000,
		InterestRate:    12.5,
		TenureMonths:    0,
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeEligibilityCheckFailed))
}
