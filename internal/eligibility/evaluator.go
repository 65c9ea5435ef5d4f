// internal/eligibility/evaluator.go
package eligibility

import (
	"fmt"
	"math"

	apperrors "lendflow/internal/common/errors"
)

// RecommendedFactor is the default fraction of the eligibility cap
// suggested as a comfortable borrowing amount, used when the input does
// not carry a configured factor.
const RecommendedFactor = 0.8

// Input carries the figures an eligibility check runs on. MinimumIncome,
// IncomeMultiple and RecommendedFactor come from configuration, not from
// the applicant; a zero RecommendedFactor falls back to the default.
type Input struct {
	MonthlyIncome     float64
	RequestedAmount   float64
	MinimumIncome     float64
	IncomeMultiple    float64
	RecommendedFactor float64
}

// Verdict is the outcome of an eligibility evaluation. Reasons are ordered:
// income shortfall first, amount-over-cap second, then the positive
// assessment lines when the applicant qualifies.
type Verdict struct {
	Eligible          bool     `json:"eligible"`
	MaxEligibleAmount int64    `json:"maxEligibleAmount"`
	RecommendedAmount int64    `json:"recommendedAmount"`
	Reasons           []string `json:"reasons"`
}

// Narrator supplies the positive-assessment lines attached to an eligible
// verdict. Swappable so the copy is not baked into the rules.
type Narrator interface {
	PositiveReasons(in Input) []string
}

// StaticNarrator returns the fixed legacy assessment copy.
type StaticNarrator struct{}

func (StaticNarrator) PositiveReasons(Input) []string {
	return []string{
		"Stable financial profile",
		"Consistent employment history",
		"Income adequate for requested amount",
	}
}

// Evaluator applies the eligibility rules. Pure apart from the injected
// narrator.
type Evaluator struct {
	narrator Narrator
}

// NewEvaluator builds an evaluator; a nil narrator falls back to the
// static copy.
func NewEvaluator(narrator Narrator) *Evaluator {
	if narrator == nil {
		narrator = StaticNarrator{}
	}
	return &Evaluator{narrator: narrator}
}

// Evaluate computes the verdict for the given input.
//
// maxEligible = income * multiple. recommended = min(requested,
// factor * maxEligible). Eligible iff income meets the minimum and the
// requested amount fits under the cap.
func (e *Evaluator) Evaluate(in Input) (Verdict, error) {
	if in.MonthlyIncome < 0 {
		return Verdict{}, apperrors.NewInputError("monthlyIncome", "monthly income cannot be negative")
	}
	if in.RequestedAmount <= 0 {
		return Verdict{}, apperrors.NewInputError("requestedAmount", "requested amount must be greater than zero")
	}
	if in.IncomeMultiple <= 0 {
		return Verdict{}, apperrors.NewInputError("incomeMultiple", "income multiple must be greater than zero")
	}
	if in.RecommendedFactor < 0 || in.RecommendedFactor > 1 {
		return Verdict{}, apperrors.NewInputError("recommendedFactor", "recommended factor must be between 0 and 1")
	}

	factor := in.RecommendedFactor
	if factor == 0 {
		factor = RecommendedFactor
	}

	maxEligible := in.MonthlyIncome * in.IncomeMultiple
	recommended := math.Min(in.RequestedAmount, factor*maxEligible)

	verdict := Verdict{
		MaxEligibleAmount: int64(math.Round(maxEligible)),
		RecommendedAmount: int64(math.Round(recommended)),
	}

	if in.MonthlyIncome < in.MinimumIncome {
		verdict.Reasons = append(verdict.Reasons, fmt.Sprintf(
			"Monthly income below the minimum of %.0f", in.MinimumIncome))
	}
	if in.RequestedAmount > maxEligible {
		verdict.Reasons = append(verdict.Reasons, fmt.Sprintf(
			"Requested amount exceeds the eligible maximum of %.0f", maxEligible))
	}

	verdict.Eligible = len(verdict.Reasons) == 0
	if verdict.Eligible {
		verdict.Reasons = append(verdict.Reasons, e.narrator.PositiveReasons(in)...)
	}

	return verdict, nil
}
