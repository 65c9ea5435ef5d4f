// internal/finance/calculator.go
package finance

import (
	"math"

	apperrors "lendflow/internal/common/errors"
)

// DefaultFeeRate is the processing fee rate applied when the loan type
// does not override it.
const DefaultFeeRate = 0.02

// Schedule holds the derived repayment figures for a loan quote.
// All amounts are whole currency units; EMI is rounded first and the
// totals are derived from the rounded EMI so the three figures always
// reconcile.
type Schedule struct {
	EMI           int64 `json:"emi"`
	TotalInterest int64 `json:"totalInterest"`
	TotalPayment  int64 `json:"totalPayment"`
}

// Calculate computes the equated monthly installment and repayment totals
// for a fixed-rate loan.
//
// monthlyRate = annualRatePercent / 100 / 12. A zero rate short-circuits
// to principal / tenureMonths; otherwise the standard annuity formula
// applies. Inputs are validated strictly, never clamped.
func Calculate(principal, annualRatePercent float64, tenureMonths int) (Schedule, error) {
	if principal <= 0 {
		return Schedule{}, apperrors.NewInputError("principal", "principal must be greater than zero")
	}
	if tenureMonths <= 0 {
		return Schedule{}, apperrors.NewInputError("tenureMonths", "tenure must be at least one month")
	}
	if annualRatePercent < 0 {
		return Schedule{}, apperrors.NewInputError("annualRatePercent", "interest rate cannot be negative")
	}

	var emi float64
	if annualRatePercent == 0 {
		emi = principal / float64(tenureMonths)
	} else {
		monthlyRate := annualRatePercent / 100 / 12
		factor := math.Pow(1+monthlyRate, float64(tenureMonths))
		emi = principal * monthlyRate * factor / (factor - 1)
	}

	roundedEMI := int64(math.Round(emi))
	totalPayment := roundedEMI * int64(tenureMonths)
	totalInterest := totalPayment - int64(math.Round(principal))

	return Schedule{
		EMI:           roundedEMI,
		TotalInterest: totalInterest,
		TotalPayment:  totalPayment,
	}, nil
}

// ProcessingFee computes the upfront fee as round(principal * feeRate).
func ProcessingFee(principal, feeRate float64) (int64, error) {
	if principal <= 0 {
		return 0, apperrors.NewInputError("principal", "principal must be greater than zero")
	}
	if feeRate < 0 {
		return 0, apperrors.NewInputError("feeRate", "fee rate cannot be negative")
	}
	return int64(math.Round(principal * feeRate)), nil
}
