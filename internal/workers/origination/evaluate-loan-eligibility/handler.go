// internal/workers/origination/evaluate-loan-eligibility/handler.go
package evaluateloaneligibility

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	apperrors "lendflow/internal/common/errors"
	"lendflow/internal/common/logger"
	"lendflow/internal/common/metrics"
	"lendflow/internal/eligibility"
	"lendflow/internal/finance"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "evaluate-loan-eligibility"
)

// Handler recomputes the eligibility verdict and the repayment schedule
// server-side. The wizard already showed the applicant these figures; the
// recomputation here is authoritative and the process routes on it.
type Handler struct {
	config       *Config
	evaluator    *eligibility.Evaluator
	errorHandler *apperrors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, log logger.Logger) *Handler {
	scopedLog := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		evaluator:    eligibility.NewEvaluator(nil),
		errorHandler: apperrors.NewErrorHandler(scopedLog),
		logger:       scopedLog,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	start := time.Now()
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.errorHandler.HandleJobError(context.Background(), client, job,
			apperrors.NewEligibilityCheckFailedError(fmt.Errorf("parse input: %w", err)))
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, "PARSE_ERROR").Inc()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.errorHandler.HandleJobError(ctx, client, job, err)
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(apperrors.CodeOf(err))).Inc()
		return
	}

	h.completeJob(client, job, output)
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
}

func (h *Handler) execute(_ context.Context, input *Input) (*Output, error) {
	verdict, err := h.evaluator.Evaluate(eligibility.Input{
		MonthlyIncome:     input.MonthlyIncome,
		RequestedAmount:   input.RequestedAmount,
		MinimumIncome:     h.config.MinimumIncome,
		IncomeMultiple:    h.config.IncomeMultiple,
		RecommendedFactor: h.config.RecommendedFactor,
	})
	if err != nil {
		return nil, apperrors.NewEligibilityCheckFailedError(err)
	}

	schedule, err := finance.Calculate(input.RequestedAmount, input.InterestRate, input.TenureMonths)
	if err != nil {
		return nil, apperrors.NewEligibilityCheckFailedError(err)
	}

	h.logger.Info("eligibility evaluated", map[string]interface{}{
		"applicationId": input.ApplicationID,
		"eligible":      verdict.Eligible,
		"emi":           schedule.EMI,
	})

	return &Output{
		Eligible:          verdict.Eligible,
		MaxEligibleAmount: verdict.MaxEligibleAmount,
		RecommendedAmount: verdict.RecommendedAmount,
		Reasons:           verdict.Reasons,
		EMI:               schedule.EMI,
		TotalInterest:     schedule.TotalInterest,
		TotalPayment:      schedule.TotalPayment,
	}, nil
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	if _, err = cmd.Send(context.Background()); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
