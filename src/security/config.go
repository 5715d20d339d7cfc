package security

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// TokenTTLHours is how long a login bearer token stays valid.
	TokenTTLHours int `envconfig:"AUTH_TOKEN_TTL_HOURS" default:"24"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
