// internal/workers/origination/create-loan-record/handler.go
package createloanrecord

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"lendflow/internal/common/database"
	apperrors "lendflow/internal/common/errors"
	"lendflow/internal/common/logger"
	"lendflow/internal/common/metrics"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const (
	TaskType = "create-loan-record"

	uniqueViolation = "23505"
)

type Handler struct {
	config       *Config
	db           *database.PostgresClient
	errorHandler *apperrors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, db *database.PostgresClient, log logger.Logger) *Handler {
	scopedLog := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		db:           db,
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
			apperrors.NewDatabaseInsertFailedError(fmt.Errorf("parse input: %w", err)))
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

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input.ApplicationID == "" {
		return nil, apperrors.NewLoanValidationFailedError("applicationId is required")
	}

	recordID := uuid.New().String()
	createdAt := time.Now().UTC()

	_, err := h.db.Exec(ctx, `
		INSERT INTO loan_applications (
			id, application_ref, session_id,
			first_name, last_name, email, phone,
			loan_type_id, requested_amount, tenure_months, interest_rate, emi,
			eligible, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		recordID, input.ApplicationID, input.SessionID,
		input.FirstName, input.LastName, input.Email, input.Phone,
		input.LoanTypeID, input.RequestedAmount, input.TenureMonths, input.InterestRate, input.EMI,
		input.Eligible, "received", createdAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && string(pqErr.Code) == uniqueViolation {
			return nil, apperrors.NewDuplicateApplicationError(input.ApplicationID)
		}
		return nil, apperrors.NewDatabaseInsertFailedError(err)
	}

	h.logger.Info("loan application record created", map[string]interface{}{
		"applicationId": input.ApplicationID,
		"recordId":      recordID,
	})

	return &Output{
		RecordID:  recordID,
		CreatedAt: createdAt.Format(time.RFC3339),
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
