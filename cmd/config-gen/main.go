// A utility for giving the config files random local ports.
//
// Run from the repository root, it rewrites the addresses in config/*.json
// with addresses of the form :port, using pseudo-random ports above 1024.
// This avoids port collisions when several copies run on one host.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"

	distmagic "example.org/distmagic"
	"github.com/DistributedClocks/tracing"
	"github.com/spf13/pflag"
)

func genPort() int32 {
	return rand.Int31n(35535-1024) + 1024
}

func updateConfig(dir, fileName string, emptyConfig interface{}, updateFn func()) {
	path := filepath.Join(dir, fileName)
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatal(err)
	}
	if err := json.Unmarshal(data, emptyConfig); err != nil {
		log.Fatalf("%s: %v", path, err)
	}
	updateFn()
	out, err := json.MarshalIndent(emptyConfig, "", "\t")
	if err != nil {
		log.Fatal(err)
	}
	if err := os.WriteFile(path, append(out, '\n'), 0o644); err != nil {
		log.Fatal(err)
	}
}

func main() {
	dir := pflag.StringP("dir", "d", "config", "directory holding the config files")
	workers := pflag.IntP("workers", "w", 0, "resize the coordinator's worker list (0 keeps it)")
	pflag.Parse()

	traceServerAddr := fmt.Sprintf(":%v", genPort())
	coordinatorClientListenAddr := fmt.Sprintf(":%v", genPort())
	coordinatorWorkerListenAddr := fmt.Sprintf(":%v", genPort())

	traceServerConfig := &tracing.TracingServerConfig{}
	updateConfig(*dir, "tracing_server_config.json", traceServerConfig, func() {
		traceServerConfig.ServerBind = traceServerAddr
	})

	coordinatorConfig := &distmagic.CoordinatorConfig{}
	updateConfig(*dir, "coordinator_config.json", coordinatorConfig, func() {
		if *workers > 0 {
			coordinatorConfig.Workers = make([]distmagic.WorkerAddr, *workers)
		}
		for i := range coordinatorConfig.Workers {
			coordinatorConfig.Workers[i] = distmagic.WorkerAddr(fmt.Sprintf(":%v", genPort()))
		}
		coordinatorConfig.TracerServerAddr = traceServerAddr
		coordinatorConfig.ClientAPIListenAddr = coordinatorClientListenAddr
		coordinatorConfig.WorkerAPIListenAddr = coordinatorWorkerListenAddr
	})

	clientConfig := &distmagic.ClientConfig{}
	updateConfig(*dir, "client_config.json", clientConfig, func() {
		clientConfig.TracerServerAddr = traceServerAddr
		clientConfig.CoordAddr = coordinatorClientListenAddr
	})

	workerConfig := &distmagic.WorkerConfig{}
	updateConfig(*dir, "worker_config.json", workerConfig, func() {
		workerConfig.TracerServerAddr = traceServerAddr
		workerConfig.CoordAddr = coordinatorWorkerListenAddr
		workerConfig.ListenAddr = "PASS VIA COMMAND-LINE"
	})
}
