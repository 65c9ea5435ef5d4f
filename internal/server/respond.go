// internal/server/respond.go
package server

import (
	"encoding/json"
	"net/http"

	apperrors "lendflow/internal/common/errors"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

// writeError maps the error taxonomy onto HTTP statuses. Input and gating
// problems are the caller's fault; busy means try again; a gateway
// rejection is a semantically valid but declined request; transport
// failures surface as a bad gateway.
func writeError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)

	status := http.StatusInternalServerError
	switch code {
	case apperrors.ErrCodeInputInvalid, apperrors.ErrCodeStepIncomplete, apperrors.ErrCodeInvalidTransition:
		status = http.StatusBadRequest
	case apperrors.ErrCodeAuthMissing:
		status = http.StatusUnauthorized
	case "RESOURCE_NOT_FOUND":
		status = http.StatusNotFound
	case apperrors.ErrCodeWizardBusy:
		status = http.StatusConflict
	case apperrors.ErrCodeGatewayRejected:
		status = http.StatusUnprocessableEntity
	case apperrors.ErrCodeTransportFailed:
		status = http.StatusBadGateway
	}

	body := errorBody{
		Code:    string(code),
		Message: apperrors.MessageOf(err),
	}
	var stdErr *apperrors.StandardError
	if e, ok := err.(*apperrors.StandardError); ok {
		stdErr = e
	}
	if stdErr != nil {
		body.Field = stdErr.Field
	}

	writeJSON(w, status, map[string]interface{}{"error": body})
}
