// internal/catalog/catalog.go
package catalog

import (
	"context"
	"database/sql"

	"lendflow/internal/common/database"
	apperrors "lendflow/internal/common/errors"
	"lendflow/internal/finance"
)

// LoanType is an immutable loan product definition: the rate, the caps and
// the fee rate the wizard derives its figures from.
type LoanType struct {
	ID                string  `json:"id"`
	DisplayName       string  `json:"displayName"`
	AnnualRatePercent float64 `json:"annualRatePercent"`
	MaxAmount         float64 `json:"maxAmount"`
	MaxTenureMonths   int     `json:"maxTenureMonths"`
	FeeRate           float64 `json:"feeRate"`
}

// Store provides read access to the loan-type catalog.
type Store interface {
	GetByID(ctx context.Context, id string) (LoanType, error)
	List(ctx context.Context) ([]LoanType, error)
}

// PostgresStore reads the catalog from the loan_types table.
type PostgresStore struct {
	db *database.PostgresClient
}

func NewPostgresStore(db *database.PostgresClient) *PostgresStore {
	return &PostgresStore{db: db}
}

const selectColumns = `id, display_name, annual_rate_percent, max_amount, max_tenure_months, fee_rate`

func (s *PostgresStore) GetByID(ctx context.Context, id string) (LoanType, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+selectColumns+` FROM loan_types WHERE id = $1 AND active = true`, id)

	lt, err := scanLoanType(row)
	if err == sql.ErrNoRows {
		return LoanType{}, apperrors.NewResourceNotFoundError("catalog", "loan type "+id+" not found")
	}
	if err != nil {
		return LoanType{}, apperrors.NewCatalogLookupError(id, err)
	}
	return lt, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]LoanType, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+selectColumns+` FROM loan_types WHERE active = true ORDER BY display_name`)
	if err != nil {
		return nil, apperrors.NewCatalogLookupError("*", err)
	}
	defer rows.Close()

	var types []LoanType
	for rows.Next() {
		lt, err := scanLoanType(rows)
		if err != nil {
			return nil, apperrors.NewCatalogLookupError("*", err)
		}
		types = append(types, lt)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewCatalogLookupError("*", err)
	}
	return types, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLoanType(row rowScanner) (LoanType, error) {
	var lt LoanType
	var feeRate sql.NullFloat64
	if err := row.Scan(&lt.ID, &lt.DisplayName, &lt.AnnualRatePercent, &lt.MaxAmount, &lt.MaxTenureMonths, &feeRate); err != nil {
		return LoanType{}, err
	}
	if feeRate.Valid {
		lt.FeeRate = feeRate.Float64
	} else {
		lt.FeeRate = finance.DefaultFeeRate
	}
	return lt, nil
}

// StaticStore serves a fixed catalog snapshot; used in development and as
// a fallback when no database is configured.
type StaticStore struct {
	types []LoanType
}

func NewStaticStore() *StaticStore {
	return &StaticStore{types: []LoanType{
		{ID: "personal", DisplayName: "Personal Loan", AnnualRatePercent: 12.5, MaxAmount: 2000000, MaxTenureMonths: 60, FeeRate: 0.02},
		{ID: "home", DisplayName: "Home Loan", AnnualRatePercent: 8.5, MaxAmount: 10000000, MaxTenureMonths: 240, FeeRate: 0.01},
		{ID: "vehicle", DisplayName: "Vehicle Loan", AnnualRatePercent: 9.75, MaxAmount: 1500000, MaxTenureMonths: 84, FeeRate: 0.02},
	}}
}

func (s *StaticStore) GetByID(_ context.Context, id string) (LoanType, error) {
	for _, lt := range s.types {
		if lt.ID == id {
			return lt, nil
		}
	}
	return LoanType{}, apperrors.NewResourceNotFoundError("catalog", "loan type "+id+" not found")
}

func (s *StaticStore) List(_ context.Context) ([]LoanType, error) {
	out := make([]LoanType, len(s.types))
	copy(out, s.types)
	return out, nil
}
