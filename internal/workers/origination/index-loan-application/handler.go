// internal/workers/origination/index-loan-application/handler.go
package indexloanapplication

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"lendflow/internal/common/database"
	apperrors "lendflow/internal/common/errors"
	"lendflow/internal/common/logger"
	"lendflow/internal/common/metrics"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "index-loan-application"
)

type Handler struct {
	config       *Config
	es           *database.ElasticsearchClient
	errorHandler *apperrors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, es *database.ElasticsearchClient, log logger.Logger) *Handler {
	scopedLog := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		es:           es,
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
			apperrors.NewSearchIndexFailedError(fmt.Errorf("parse input: %w", err)))
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

	doc := summaryDocument{
		ApplicationID:   input.ApplicationID,
		RecordID:        input.RecordID,
		ApplicantName:   strings.TrimSpace(input.FirstName + " " + input.LastName),
		Email:           input.Email,
		LoanTypeID:      input.LoanTypeID,
		RequestedAmount: input.RequestedAmount,
		TenureMonths:    input.TenureMonths,
		EMI:             input.EMI,
		Eligible:        input.Eligible,
		Reasons:         input.Reasons,
		IndexedAt:       time.Now().UTC().Format(time.RFC3339),
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return nil, apperrors.NewSearchIndexFailedError(fmt.Errorf("encode summary: %w", err))
	}

	if err := h.es.IndexDocument(ctx, h.config.Index, input.ApplicationID, body); err != nil {
		return nil, apperrors.NewSearchIndexFailedError(err)
	}

	h.logger.Info("application summary indexed", map[string]interface{}{
		"applicationId": input.ApplicationID,
		"index":         h.config.Index,
	})

	return &Output{Indexed: true, Index: h.config.Index}, nil
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
