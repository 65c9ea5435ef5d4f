// internal/finance/calculator_test.go
package finance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "lendflow/internal/common/errors"
)

func TestCalculate_ZeroRateIsExactDivision(t *testing.T) {
	schedule, err := Calculate(120000, 0, 12)
	require.NoError(t, err)

	assert.Equal(t, int64(10000), schedule.EMI)
	assert.Equal(t, int64(0), schedule.TotalInterest)
	assert.Equal(t, int64(120000), schedule.TotalPayment)
}

func TestCalculate_ReferenceScenario(t *testing.T) {
	// 500000 at 12.5% over 36 months with the standard annuity formula.
	schedule, err := Calculate(500000, 12.5, 36)
	require.NoError(t, err)

	assert.Equal(t, int64(16727), schedule.EMI)
	assert.Equal(t, int64(602172), schedule.TotalPayment)
	assert.Equal(t, int64(102172), schedule.TotalInterest)
}

func TestCalculate_TotalsDerivedFromRoundedEMI(t *testing.T) {
	cases := []struct {
		principal float64
		rate      float64
		tenure    int
	}{
		{500000, 12.5, 36},
		{250000, 9.75, 24},
		{1000000, 8.5, 60},
		{75000, 14, 18},
	}

	for _, tc := range cases {
		schedule, err := Calculate(tc.principal, tc.rate, tc.tenure)
		require.NoError(t, err)

		assert.Equal(t, schedule.EMI*int64(tc.tenure), schedule.TotalPayment,
			"total payment must equal EMI x tenure")
		assert.Equal(t, schedule.TotalPayment-int64(tc.principal), schedule.TotalInterest,
			"total interest must equal total payment minus principal")
	}
}

func TestCalculate_EMIMonotonicInRate(t *testing.T) {
	low, err := Calculate(500000, 10, 36)
	require.NoError(t, err)
	high, err := Calculate(500000, 14, 36)
	require.NoError(t, err)

	assert.Greater(t, high.EMI, low.EMI, "higher rate must raise the EMI")
}

func TestCalculate_EMIDecreasesWithLongerTenure(t *testing.T) {
	short, err := Calculate(500000, 12.5, 24)
	require.NoError(t, err)
	long, err := Calculate(500000, 12.5, 60)
	require.NoError(t, err)

	assert.Less(t, long.EMI, short.EMI, "longer tenure must lower the EMI")
	assert.Greater(t, long.TotalInterest, short.TotalInterest,
		"longer tenure accrues more total interest")
}

func TestCalculate_InvalidInputs(t *testing.T) {
	cases := []struct {
		name      string
		principal float64
		rate      float64
		tenure    int
	}{
		{"zero principal", 0, 12.5, 36},
		{"negative principal", -1000, 12.5, 36},
		{"zero tenure", 500000, 12.5, 0},
		{"negative tenure", 500000, 12.5, -6},
		{"negative rate", 500000, -0.5, 36},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Calculate(tc.principal, tc.rate, tc.tenure)
			require.Error(t, err)
			assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInputInvalid))
		})
	}
}

func TestProcessingFee(t *testing.T) {
	fee, err := ProcessingFee(500000, DefaultFeeRate)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), fee)

	fee, err = ProcessingFee(333333, 0.015)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), fee)
}

func TestProcessingFee_InvalidInputs(t *testing.T) {
	_, err := ProcessingFee(0, DefaultFeeRate)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInputInvalid))

	_, err = ProcessingFee(500000, -0.01)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInputInvalid))
}
