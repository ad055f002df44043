package main

import (
	"log"
	"net"

	distmagic "example.org/distmagic"
	"example.org/distmagic/logging"
	"example.org/distmagic/recorder"
	"github.com/DistributedClocks/tracing"
	"github.com/p7r0x7/vainpath"
	"github.com/spf13/pflag"
)

func main() {
	configPath := pflag.StringP("config", "c", "config/coordinator_config.json", "coordinator config file (.json or .yaml)")
	logLevel := pflag.String("log-level", "", "log level: debug, info, warn or error")
	logJSON := pflag.Bool("log-json", false, "log as JSON")
	pflag.Parse()

	var config distmagic.CoordinatorConfig
	if err := distmagic.ReadConfig(*configPath, &config); err != nil {
		log.Fatal(err)
	}
	if *logLevel != "" {
		config.LogLevel = *logLevel
	}
	if err := distmagic.Validate(config); err != nil {
		log.Fatal(err)
	}
	level, err := logging.ParseLevel(config.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	logger, closeLog, err := logging.New(logging.Config{Level: level, JSON: *logJSON, Service: "coordinator"})
	if err != nil {
		log.Fatal(err)
	}
	defer closeLog()

	logger.Info("coordinator starting",
		"config", vainpath.Simplify(*configPath),
		"client_api", config.ClientAPIListenAddr,
		"worker_api", config.WorkerAPIListenAddr,
		"workers", len(config.Workers))

	tracer := recorder.New(tracing.TracerConfig{
		ServerAddress:  config.TracerServerAddr,
		TracerIdentity: "coordinator",
		Secret:         config.TracerSecret,
	}, logger)
	defer tracer.Close()

	coordinator := distmagic.NewCoordinator(config, tracer, logger)

	clientL, err := net.Listen("tcp", config.ClientAPIListenAddr)
	if err != nil {
		log.Fatal(err)
	}
	workerL, err := net.Listen("tcp", config.WorkerAPIListenAddr)
	if err != nil {
		log.Fatal(err)
	}

	errs := make(chan error, 2)
	go func() { errs <- distmagic.Serve(clientL, "Coordinator", coordinator, nil) }()
	go func() { errs <- distmagic.Serve(workerL, "Coordinator", coordinator, nil) }()
	logger.Error("coordinator stopped", "error", <-errs)
}
