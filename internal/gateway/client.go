// internal/gateway/client.go
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	apperrors "lendflow/internal/common/errors"
	commonhttp "lendflow/internal/common/http"
	"lendflow/internal/common/logger"
	"lendflow/internal/common/metrics"
	"lendflow/internal/wizard"
)

// Client talks to the external submission gateway over REST/JSON and
// implements the wizard.Gateway port. Every response uses the common
// envelope; success:false maps to a gateway rejection with the message
// passed through verbatim, network or body-level failures map to a
// transport error, and a missing bearer token on an authenticated call
// fails fast with an auth-missing error before the wire is touched.
type Client struct {
	baseURL string
	http    *commonhttp.Client
	log     logger.Logger
}

// envelope is the gateway's uniform response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func NewClient(baseURL string, timeout time.Duration, log logger.Logger) *Client {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Client{
		baseURL: baseURL,
		http:    commonhttp.NewClient(timeout),
		log:     log,
	}
}

// postJSON posts the payload and decodes the envelope, applying the error
// taxonomy. The returned data is only valid when err is nil.
func (c *Client) postJSON(ctx context.Context, operation, path string, payload interface{}, token string) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.NewTransportError(fmt.Errorf("encode %s request: %w", operation, err))
	}

	start := time.Now()
	resp, err := c.http.PostJSON(ctx, c.baseURL+path, body, token)
	metrics.GatewayRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.GatewayRequestsTotal.WithLabelValues(operation, "transport_error").Inc()
		return nil, apperrors.NewTransportError(fmt.Errorf("%s request: %w", operation, err))
	}
	defer resp.Body.Close()

	return c.decodeEnvelope(operation, resp)
}

func (c *Client) decodeEnvelope(operation string, resp *http.Response) (json.RawMessage, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.GatewayRequestsTotal.WithLabelValues(operation, "transport_error").Inc()
		return nil, apperrors.NewTransportError(fmt.Errorf("%s response body: %w", operation, err))
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		metrics.GatewayRequestsTotal.WithLabelValues(operation, "transport_error").Inc()
		return nil, apperrors.NewTransportError(fmt.Errorf("%s response is not a valid envelope: %w", operation, err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !env.Success {
		metrics.GatewayRequestsTotal.WithLabelValues(operation, "rejected").Inc()
		message := env.Message
		if message == "" {
			message = fmt.Sprintf("gateway returned status %d", resp.StatusCode)
		}
		c.log.Warn("gateway rejected request", map[string]interface{}{
			"operation": operation,
			"status":    resp.StatusCode,
			"message":   message,
		})
		return nil, apperrors.NewGatewayRejection(message)
	}

	metrics.GatewayRequestsTotal.WithLabelValues(operation, "success").Inc()
	return env.Data, nil
}

func requireToken(token, action string) error {
	if token == "" {
		return apperrors.NewAuthMissingError(action)
	}
	return nil
}

// RequestOTP asks the gateway to deliver a one-time code.
func (c *Client) RequestOTP(ctx context.Context, channel wizard.Channel, destination string) error {
	payload := map[string]string{
		"channel":     string(channel),
		"destination": destination,
	}
	_, err := c.postJSON(ctx, "request_otp", "/auth/otp/request", payload, "")
	return err
}

// VerifyOTP exchanges the code for a bearer token.
func (c *Client) VerifyOTP(ctx context.Context, channel wizard.Channel, destination, code string) (string, error) {
	payload := map[string]string{
		"channel":     string(channel),
		"destination": destination,
		"code":        code,
	}
	data, err := c.postJSON(ctx, "verify_otp", "/auth/otp/verify", payload, "")
	if err != nil {
		return "", err
	}

	var result struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(data, &result); err != nil || result.Token == "" {
		return "", apperrors.NewTransportError(fmt.Errorf("verify_otp response missing token"))
	}
	return result.Token, nil
}

// SaveProfile persists the applicant profile and returns the gateway's
// user id.
func (c *Client) SaveProfile(ctx context.Context, token string, p wizard.Personal) (wizard.ProfileResult, error) {
	if err := requireToken(token, "save profile"); err != nil {
		return wizard.ProfileResult{}, err
	}

	data, err := c.postJSON(ctx, "save_profile", "/profile", p, token)
	if err != nil {
		return wizard.ProfileResult{}, err
	}

	var result struct {
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(data, &result); err != nil || result.UserID == "" {
		return wizard.ProfileResult{}, apperrors.NewTransportError(fmt.Errorf("save_profile response missing userId"))
	}
	return wizard.ProfileResult{UserID: result.UserID}, nil
}

// SaveEmployment persists the employment details for the given user.
func (c *Client) SaveEmployment(ctx context.Context, token, userID string, e wizard.Employment) error {
	if err := requireToken(token, "save employment"); err != nil {
		return err
	}

	payload := struct {
		UserID string `json:"userId"`
		wizard.Employment
	}{UserID: userID, Employment: e}

	_, err := c.postJSON(ctx, "save_employment", "/employment", payload, token)
	return err
}

// UploadDocuments sends all staged documents as one multipart request,
// one part per document kind, and returns the per-kind confirmation
// flags.
func (c *Client) UploadDocuments(ctx context.Context, token, userID string, docs map[wizard.DocumentKind]wizard.DocumentUpload) (wizard.UploadResult, error) {
	if err := requireToken(token, "upload documents"); err != nil {
		return wizard.UploadResult{}, err
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("userId", userID); err != nil {
		return wizard.UploadResult{}, apperrors.NewTransportError(fmt.Errorf("build upload request: %w", err))
	}
	for kind, doc := range docs {
		part, err := writer.CreateFormFile(string(kind), doc.FileName)
		if err != nil {
			return wizard.UploadResult{}, apperrors.NewTransportError(fmt.Errorf("build upload part %s: %w", kind, err))
		}
		if _, err := part.Write(doc.Content); err != nil {
			return wizard.UploadResult{}, apperrors.NewTransportError(fmt.Errorf("write upload part %s: %w", kind, err))
		}
	}
	if err := writer.Close(); err != nil {
		return wizard.UploadResult{}, apperrors.NewTransportError(fmt.Errorf("finalize upload request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/documents", &buf)
	if err != nil {
		return wizard.UploadResult{}, apperrors.NewTransportError(fmt.Errorf("build upload request: %w", err))
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.GatewayRequestDuration.WithLabelValues("upload_documents").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.GatewayRequestsTotal.WithLabelValues("upload_documents", "transport_error").Inc()
		return wizard.UploadResult{}, apperrors.NewTransportError(fmt.Errorf("upload_documents request: %w", err))
	}
	defer resp.Body.Close()

	data, err := c.decodeEnvelope("upload_documents", resp)
	if err != nil {
		return wizard.UploadResult{}, err
	}

	var flags map[string]bool
	if err := json.Unmarshal(data, &flags); err != nil {
		return wizard.UploadResult{}, apperrors.NewTransportError(fmt.Errorf("upload_documents response: %w", err))
	}

	confirmed := make(map[wizard.DocumentKind]bool, len(flags))
	for kind, ok := range flags {
		confirmed[wizard.DocumentKind(kind)] = ok
	}
	return wizard.UploadResult{Confirmed: confirmed}, nil
}

// SubmitLoan files the final application and returns the assigned id.
func (c *Client) SubmitLoan(ctx context.Context, token, userID string, d wizard.Draft) (wizard.SubmitResult, error) {
	if err := requireToken(token, "submit application"); err != nil {
		return wizard.SubmitResult{}, err
	}

	payload := struct {
		UserID string           `json:"userId"`
		Loan   wizard.LoanTerms `json:"loan"`
		Draft  wizard.Draft     `json:"application"`
	}{UserID: userID, Loan: d.Loan, Draft: d}

	data, err := c.postJSON(ctx, "submit_loan", "/loans/apply", payload, token)
	if err != nil {
		return wizard.SubmitResult{}, err
	}

	var result struct {
		ApplicationID string `json:"applicationId"`
	}
	if err := json.Unmarshal(data, &result); err != nil || result.ApplicationID == "" {
		return wizard.SubmitResult{}, apperrors.NewTransportError(fmt.Errorf("submit_loan response missing applicationId"))
	}
	return wizard.SubmitResult{ApplicationID: result.ApplicationID}, nil
}
