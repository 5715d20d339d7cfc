package executor

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"strangleexecutor/src/connectors"
	"strangleexecutor/src/controller"
	"strangleexecutor/src/database"
	"strangleexecutor/src/executors"
	"strangleexecutor/src/repository"
)

// Executor runs one strategy session headless: load the active
// configuration, start the engine, wait for the session to finish or for
// SIGINT/SIGTERM.
type Executor struct {
}

func (t *Executor) Start() error {
	config := GetConfig()
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)

	defer stop()

	// Initialize main (read/write) database
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to main database")
		return err
	}

	tradingConfig, err := repository.NewConfigurationRepository().FindActive(ctx)
	if err != nil {
		logrus.WithError(err).Error("Failed to load the active configuration")
		return err
	}
	if tradingConfig == nil {
		logrus.Error("No active trading configuration; activate one first")
		return errors.New("no active trading configuration")
	}

	cfg := connectors.GetConfig()
	client := connectors.NewDeltaClient(cfg)
	quotes := connectors.NewOptionQuoteStream(cfg)
	orders := controller.NewDeltaOrderController(client, quotes, nil)
	engine := executors.NewStrategyEngine(client, quotes, orders, logrus.WithField("cmd", "executor"))

	strategyID, err := engine.Start(ctx, tradingConfig)
	if err != nil {
		logrus.WithError(err).Error("Failed to start the strategy engine")
		return err
	}
	logrus.WithFields(logrus.Fields{
		"strategy_id":   strategyID,
		"configuration": tradingConfig.Name,
	}).Info("Strategy engine started")

	poll := time.Duration(config.StatusPollSeconds) * time.Second
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.Info("Shutting down strategy engine...")
			if err := engine.Stop(context.Background()); err != nil && !errors.Is(err, executors.ErrNotRunning) {
				logrus.WithError(err).Error("Failed to stop the strategy engine")
				return err
			}
			return nil
		case <-ticker.C:
			if !engine.Running() {
				logrus.WithField("strategy_id", strategyID).Info("Session finished; exiting")
				return nil
			}
		}
	}
}
