// internal/workers/origination/evaluate-loan-eligibility/config.go
package evaluateloaneligibility

import "time"

type Config struct {
	Timeout           time.Duration
	MinimumIncome     float64
	IncomeMultiple    float64
	RecommendedFactor float64
}

func LoadConfig() *Config {
	return &Config{
		Timeout:           10 * time.Second,
		MinimumIncome:     25000,
		IncomeMultiple:    40,
		RecommendedFactor: 0.8,
	}
}
