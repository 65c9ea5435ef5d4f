// internal/workers/origination/validate-loan-application/handler.go
package validateloanapplication

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	apperrors "lendflow/internal/common/errors"
	"lendflow/internal/common/logger"
	"lendflow/internal/common/metrics"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/xeipuuv/gojsonschema"
)

const (
	TaskType = "validate-loan-application"
)

// payloadSchema mirrors the shape the wizard submits. Drafts arrive here
// only after a successful gateway submission, so a violation means the
// payload was corrupted in transit; the error is a non-retryable business
// error.
const payloadSchema = `{
	"type": "object",
	"required": ["applicationId", "applicant", "employment", "loan"],
	"properties": {
		"applicationId": {"type": "string", "minLength": 1},
		"applicant": {
			"type": "object",
			"required": ["firstName", "lastName", "email", "phone"],
			"properties": {
				"firstName": {"type": "string", "minLength": 1},
				"lastName": {"type": "string", "minLength": 1},
				"email": {"type": "string", "pattern": "^[^@\\s]+@[^@\\s]+\\.[^@\\s]+$"},
				"phone": {"type": "string", "pattern": "^[\\+]?[1-9][0-9]{6,14}$"}
			}
		},
		"employment": {
			"type": "object",
			"required": ["companyName", "monthlyIncome"],
			"properties": {
				"companyName": {"type": "string", "minLength": 1},
				"monthlyIncome": {"type": "number", "exclusiveMinimum": 0}
			}
		},
		"loan": {
			"type": "object",
			"required": ["typeId", "amount", "tenureMonths"],
			"properties": {
				"typeId": {"type": "string", "minLength": 1},
				"amount": {"type": "number", "exclusiveMinimum": 0},
				"tenureMonths": {"type": "integer", "minimum": 1}
			}
		}
	}
}`

type Handler struct {
	config       *Config
	schema       *gojsonschema.Schema
	errorHandler *apperrors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, log logger.Logger) (*Handler, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(payloadSchema))
	if err != nil {
		return nil, fmt.Errorf("compile payload schema: %w", err)
	}

	scopedLog := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		schema:       schema,
		errorHandler: apperrors.NewErrorHandler(scopedLog),
		logger:       scopedLog,
	}, nil
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
			apperrors.NewLoanValidationFailedError(fmt.Sprintf("parse input: %v", err)))
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
	raw, err := json.Marshal(input)
	if err != nil {
		return nil, apperrors.NewLoanValidationFailedError(fmt.Sprintf("encode payload: %v", err))
	}

	result, err := h.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, apperrors.NewLoanValidationFailedError(fmt.Sprintf("schema validation: %v", err))
	}

	if !result.Valid() {
		violations := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			violations = append(violations, desc.String())
		}
		h.logger.Warn("application payload rejected", map[string]interface{}{
			"applicationId": input.ApplicationID,
			"violations":    violations,
		})
		return nil, apperrors.NewLoanValidationFailedError(strings.Join(violations, "; "))
	}

	h.logger.Info("application payload validated", map[string]interface{}{
		"applicationId": input.ApplicationID,
	})

	return &Output{
		Valid:         true,
		ApplicationID: input.ApplicationID,
		ValidatedAt:   time.Now().UTC().Format(time.RFC3339),
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
