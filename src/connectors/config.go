package connectors

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	DeltaBaseURL      string `envconfig:"DELTA_BASE_URL" default:"https://api.india.delta.exchange"`
	DeltaWebsocketURL string `envconfig:"DELTA_WEBSOCKET_URL" default:"wss://socket.india.delta.exchange"`
	DeltaAPIKey       string `envconfig:"DELTA_API_KEY" default:""`
	DeltaAPISecret    string `envconfig:"DELTA_API_SECRET" default:""`

	// StreamStalenessSeconds marks the quote cache stale when no ticker
	// frame arrived for this long; the engine then falls back to REST.
	StreamStalenessSeconds int `envconfig:"DELTA_STREAM_STALENESS_SECONDS" default:"60"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
