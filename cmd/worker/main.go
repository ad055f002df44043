package main

import (
	"log"
	"net"

	distmagic "example.org/distmagic"
	"example.org/distmagic/logging"
	"example.org/distmagic/recorder"
	"example.org/distmagic/search"
	"github.com/DistributedClocks/tracing"
	"github.com/p7r0x7/vainpath"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
)

func main() {
	configPath := pflag.StringP("config", "c", "config/worker_config.json", "worker config file (.json or .yaml)")
	id := pflag.String("id", "", "worker ID, e.g. worker1")
	listen := pflag.String("listen", "", "listen address, e.g. 127.0.0.1:5000")
	logLevel := pflag.String("log-level", "", "log level: debug, info, warn or error")
	logJSON := pflag.Bool("log-json", false, "log as JSON")
	pflag.Parse()

	var config distmagic.WorkerConfig
	if err := distmagic.ReadConfig(*configPath, &config); err != nil {
		log.Fatal(err)
	}
	if *id != "" {
		config.WorkerID = *id
	}
	if *listen != "" {
		config.ListenAddr = *listen
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
	logger, closeLog, err := logging.New(logging.Config{Level: level, JSON: *logJSON, Service: "worker"})
	if err != nil {
		log.Fatal(err)
	}
	defer closeLog()

	logger.Info("worker starting",
		"config", vainpath.Simplify(*configPath),
		"worker_id", config.WorkerID,
		"listen", config.ListenAddr,
		"coordinator", config.CoordAddr)

	tracer := recorder.New(tracing.TracerConfig{
		ServerAddress:  config.TracerServerAddr,
		TracerIdentity: config.WorkerID,
		Secret:         config.TracerSecret,
	}, logger)
	defer tracer.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	worker := distmagic.NewWorker(config, tracer, logger, search.NewMetrics(registry))

	l, err := net.Listen("tcp", config.ListenAddr)
	if err != nil {
		log.Fatal(err)
	}
	logger.Error("worker stopped", "error", distmagic.Serve(l, "Worker", worker, registry))
}
