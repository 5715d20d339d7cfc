package executor

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// StatusPollSeconds is how often the command checks whether the session
	// finished on its own (scheduled exit, limit hit).
	StatusPollSeconds int `envconfig:"EXECUTOR_STATUS_POLL_SECONDS" default:"5"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}
