package executors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// LiveTrading places real orders. Off by default; every run without it
	// records simulated fills at the contract mid-price.
	LiveTrading bool `envconfig:"ENGINE_LIVE_TRADING" default:"false"`

	// MonitorInterval is the sleep between monitoring cycles while live.
	MonitorInterval time.Duration `envconfig:"ENGINE_MONITOR_INTERVAL" default:"30s"`

	// EntryPollInterval is the sleep while waiting for the entry window.
	EntryPollInterval time.Duration `envconfig:"ENGINE_ENTRY_POLL_INTERVAL" default:"5s"`

	// ExpiryBufferHours pushes the auto-resolved option expiry this far past
	// now, so legs are never sold into an expiry about to settle.
	ExpiryBufferHours int `envconfig:"ENGINE_EXPIRY_BUFFER_HOURS" default:"2"`

	// PnlHistoryLimit bounds the in-memory P&L history.
	PnlHistoryLimit int `envconfig:"ENGINE_PNL_HISTORY_LIMIT" default:"2880"`

	// QuoteStaleSeconds flags monitor quotes older than this in the cycle
	// metrics. Observability only; stale quotes are still used.
	QuoteStaleSeconds int `envconfig:"ENGINE_QUOTE_STALE_SECONDS" default:"45"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
