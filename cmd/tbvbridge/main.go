package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"tbvbridge/pkg/bridge"
	"tbvbridge/pkg/canbus"
	"tbvbridge/pkg/config"
)

func main() {
	log.SetLevel(log.InfoLevel)

	configPath := flag.String("c", "", "config file path (ini); defaults baked in if omitted")
	canInterface := flag.String("i", "can0", "socketcan interface e.g. can0, vcan0")
	standbyPin := flag.String("standby-pin", "", "optional GPIO line driving the CAN transceiver's standby pin")
	flag.Parse()

	logger := log.NewEntry(log.StandardLogger())

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.WithError(err).Fatal("tbvbridge: failed to load config")
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("tbvbridge: invalid config")
	}

	driver, err := canbus.NewSocketCANDriver(*canInterface, *standbyPin)
	if err != nil {
		logger.WithError(err).Fatal("tbvbridge: failed to open socketcan interface")
	}

	br, err := bridge.New(cfg, driver, logger)
	if err != nil {
		logger.WithError(err).Fatal("tbvbridge: failed to construct bridge")
	}

	br.Start()
	logger.Info("tbvbridge: running")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("tbvbridge: shutting down")
	br.Stop()
}
