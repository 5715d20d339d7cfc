package controller

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	OrderRetryAttempts   int           `envconfig:"DELTA_ORDER_RETRY_ATTEMPTS" default:"4"`
	OrderRetryDelay      time.Duration `envconfig:"DELTA_ORDER_RETRY_DELAY" default:"2s"`
	OrderTimeout         time.Duration `envconfig:"DELTA_ORDER_TIMEOUT" default:"30s"`
	PartialFillThreshold float64       `envconfig:"DELTA_PARTIAL_FILL_THRESHOLD" default:"0.10"`
	OrderPollInterval    time.Duration `envconfig:"DELTA_ORDER_POLL_INTERVAL" default:"1s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
