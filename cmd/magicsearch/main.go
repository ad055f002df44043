// Command magicsearch searches for a message whose SHA-1 digest is a PHP
// magic hash, without a coordinator. The worker identity comes from the MPI
// or Slurm launcher environment with --env, and otherwise the process runs
// --local-workers searchers of its own.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	distmagic "example.org/distmagic"
	"example.org/distmagic/logging"
	"example.org/distmagic/search"
	"example.org/distmagic/transport"
	"github.com/p7r0x7/vainpath"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "search options file (.json or .yaml)")
	alphabet := pflag.StringP("alphabet", "a", "mixed-digits-punct", "alphabet: digits, lower, upper, mixed, mixed-digits or mixed-digits-punct")
	prefix := pflag.StringP("prefix", "p", "", "fixed message prefix (default depends on the alphabet)")
	length := pflag.IntP("length", "l", 16, "message length")
	strategy := pflag.StringP("strategy", "s", "contiguous", "partition strategy: contiguous or interleaved")
	keepGoing := pflag.BoolP("continue", "k", false, "keep searching after a match")
	fromEnv := pflag.Bool("env", false, "take rank and size from the launcher environment")
	localWorkers := pflag.IntP("local-workers", "n", 1, "number of in-process workers")
	progress := pflag.Duration("progress", time.Minute, "interval between progress lines, 0 disables them")
	logLevel := pflag.String("log-level", "info", "log level: debug, info, warn or error")
	logJSON := pflag.Bool("log-json", false, "log as JSON")
	logFile := pflag.String("log-file", "", "also write logs to this file")
	pflag.CommandLine.SortFlags = false
	pflag.Parse()

	level, err := logging.ParseLevel(*logLevel)
	if err != nil {
		log.Fatal(err)
	}
	logger, closeLog, err := logging.New(logging.Config{Level: level, JSON: *logJSON, Service: "magicsearch", File: *logFile})
	if err != nil {
		log.Fatal(err)
	}
	defer closeLog()

	opts := search.DefaultOptions(*alphabet)
	if *configPath != "" {
		if err := distmagic.ReadConfig(*configPath, &opts); err != nil {
			log.Fatal(err)
		}
		logger.Info("loaded search options", "config", vainpath.Simplify(*configPath))
	}
	flags := pflag.CommandLine
	if flags.Changed("alphabet") {
		opts.Alphabet = *alphabet
		if !flags.Changed("prefix") && *configPath == "" {
			opts.Prefix = search.DefaultPrefix(*alphabet)
		}
	}
	if flags.Changed("prefix") {
		opts.Prefix = *prefix
	}
	if flags.Changed("length") {
		opts.MessageLen = *length
	}
	if flags.Changed("strategy") {
		opts.Strategy = *strategy
	}
	if flags.Changed("continue") {
		opts.ContinueAfterMatch = *keepGoing
	}

	cfg, err := search.NewConfig(opts)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	metrics := search.NewMetrics(prometheus.NewRegistry())
	common := []search.Option{
		search.WithLogger(logger),
		search.WithMetrics(metrics),
		search.WithProgressInterval(*progress),
		search.WithMatchHandler(func(res search.Result) { fmt.Println(res) }),
	}

	res, err := run(ctx, cfg, *fromEnv, *localWorkers, common)
	switch {
	case err == nil:
		logger.Info("search finished", "found", res.Found, "attempts", res.Attempts)
	case errors.Is(err, context.Canceled) && res.Found:
		logger.Info("search interrupted", "last_match", string(res.Message))
	default:
		logger.Error("search failed", "error", err)
		closeLog()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *search.Config, fromEnv bool, localWorkers int, opts []search.Option) (search.Result, error) {
	var provider transport.Provider = transport.Local{}
	if fromEnv {
		provider = transport.Env{}
	}
	id, err := provider.Identity(ctx)
	if err != nil {
		return search.Result{}, err
	}
	if fromEnv || localWorkers == 1 {
		s, err := search.New(cfg, id, append(opts, search.WithStopper(provider))...)
		if err != nil {
			return search.Result{}, err
		}
		return s.Run(ctx)
	}
	return search.RunLocal(ctx, cfg, localWorkers, id.Host, opts...)
}
