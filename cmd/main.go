package main

import (
	"fmt"
	"os"

	"strangleexecutor/cmd/executor"
	"strangleexecutor/cmd/ohlcvcrypto"
	"strangleexecutor/src/database"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

var Version string

func main() {
	app := cli.NewApp()
	app.Name = "Strangle CMD"
	app.Usage = "The strangle executor command line interface"

	app.Commands = []cli.Command{
		executorCMD,
		ohlcvCryptoCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	executorCMD = cli.Command{
		Name:        "executor",
		Usage:       "run one headless strategy session",
		Action:      executorAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the strangle engine with the active configuration until the session finishes`,
	}
	ohlcvCryptoCMD = cli.Command{
		Name:        "ohlcv_crypto",
		Usage:       "record underlying spot OHLCV candles",
		Action:      ohlcvCryptoAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run OHLCV crypto CMD`,
	}
)

func executorAction(_ *cli.Context) error {

	logrus.Info("Starting executor CMD")
	logrus.WithField("cmd", "executor")

	executorStrategy := &executor.Executor{}
	err := executorStrategy.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

// ohlcvCryptoAction fetches spot OHLCV candles for the configured underlying
// (BTC by default) so the analytics endpoints can chart them.
func ohlcvCryptoAction(_ *cli.Context) error {

	logrus.Info("Starting OHLCV crypto CMD")
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}
	_ohlcv := &ohlcvcrypto.OHLCVCrypto{
		Log: logrus.WithField("cmd", "ohlcv_crypto"),
		DB:  database.MainDB,
	}

	err := _ohlcv.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting OHLCV cmd")
		return err
	}

	return nil
}
