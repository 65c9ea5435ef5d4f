// internal/workers/origination/index-loan-application/config.go
package indexloanapplication

import "time"

type Config struct {
	Timeout time.Duration
	Index   string
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 15 * time.Second,
		Index:   "loan-applications",
	}
}
