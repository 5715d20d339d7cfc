package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	logger "github.com/sirupsen/logrus"

	"strangleexecutor/src/connectors"
	"strangleexecutor/src/controller"
	"strangleexecutor/src/database"
	"strangleexecutor/src/executors"
	"strangleexecutor/src/server"
)

var (
	PORT     = os.Getenv("SERVER_PORT")
	APP_NAME = os.Getenv("APP_NAME")
)

func SetupLogger() {
	levelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))

	level, err := logger.ParseLevel(levelStr)
	if err != nil {
		level = logger.DebugLevel
	}

	logger.SetLevel(level)
	logger.SetFormatter(&logger.TextFormatter{
		FullTimestamp: true,
	})
}

func main() {
	SetupLogger()
	defer handlePanic()

	// Initialize main (read/write) database
	if err := database.InitMainDB(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	cfg := connectors.GetConfig()
	client := connectors.NewDeltaClient(cfg)
	quotes := connectors.NewOptionQuoteStream(cfg)
	orders := controller.NewDeltaOrderController(client, quotes, nil)
	engine := executors.NewStrategyEngine(client, quotes, orders, nil)

	port := PORT
	if port == "" {
		port = server.GetConfig().Port
	}
	server.StartServer(port, engine)
}

func handlePanic() {
	if r := recover(); r != nil {
		logger.WithError(fmt.Errorf("%+v", r)).Error(fmt.Sprintf("Application %s panic", APP_NAME))
	}
	//nolint
	time.Sleep(time.Second * 5)
}
