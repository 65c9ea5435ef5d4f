// internal/workers/origination/create-loan-record/handler_test.go
package createloanrecord

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lendflow/internal/common/database"
	apperrors "lendflow/internal/common/errors"
	"lendflow/internal/common/logger"
)

func newTestHandler(t *testing.T) (*Handler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	h := NewHandler(LoadConfig(), &database.PostgresClient{DB: db}, logger.NewTestLogger(t))
	return h, mock
}

func validInput() *Input {
	return &Input{
		ApplicationID:   "APP-2024-001",
		SessionID:       "sess-1",
		FirstName:       "Asha",
		LastName:        "Rao",
		Email:           "asha@example.com",
		Phone:           "9876543210",
		LoanTypeID:      "personal",
		RequestedAmount: 500000,
		TenureMonths:    36,
		InterestRate:    12.5,
		EMI:             16727,
		Eligible:        true,
	}
}

func TestExecute_InsertsRecord(t *testing.T) {
	h, mock := newTestHandler(t)

	mock.ExpectExec("INSERT INTO loan_applications").
		WillReturnResult(sqlmock.NewResult(0, 1))

	output, err := h.Execute(context.Background(), validInput())
	require.NoError(t, err)
	assert.NotEmpty(t, output.RecordID)
	assert.NotEmpty(t, output.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecute_DuplicateApplication(t *testing.T) {
	h, mock := newTestHandler(t)

	mock.ExpectExec("INSERT INTO loan_applications").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "loan_applications_application_ref_key"})

	_, err := h.Execute(context.Background(), validInput())
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeDuplicateApplication))
	assert.False(t, apperrors.IsRetryableErrorCode(apperrors.CodeOf(err)),
		"a duplicate must not be retried")
}

func TestExecute_InsertFailureIsRetryable(t *testing.T) {
	h, mock := newTestHandler(t)

	mock.ExpectExec("INSERT INTO loan_applications").
		WillReturnError(errors.New("connection reset by peer"))

	_, err := h.Execute(context.Background(), validInput())
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeDatabaseInsertFailed))
	assert.True(t, apperrors.IsRetryableErrorCode(apperrors.CodeOf(err)))
}

func TestExecute_MissingApplicationID(t *testing.T) {
	h, _ := newTestHandler(t)

	input := validInput()
	input.ApplicationID = ""

	_, err := h.Execute(context.Background(), input)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeLoanValidationFailed))
}
