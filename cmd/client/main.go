package main

import (
	"log"

	distmagic "example.org/distmagic"
	"example.org/distmagic/logging"
	"example.org/distmagic/magiclib"
	"example.org/distmagic/search"
	"github.com/spf13/pflag"
)

func main() {
	configPath := pflag.StringP("config", "c", "config/client_config.json", "client config file (.json or .yaml)")
	id := pflag.String("id", "", "client ID, e.g. client1")
	alphabet := pflag.StringP("alphabet", "a", "mixed-digits-punct", "alphabet: digits, lower, upper, mixed, mixed-digits or mixed-digits-punct")
	prefix := pflag.StringP("prefix", "p", "", "fixed message prefix (default depends on the alphabet)")
	length := pflag.IntP("length", "l", 16, "message length")
	strategy := pflag.StringP("strategy", "s", "contiguous", "partition strategy: contiguous or interleaved")
	pflag.Parse()

	var config distmagic.ClientConfig
	if err := distmagic.ReadConfig(*configPath, &config); err != nil {
		log.Fatal(err)
	}
	if *id != "" {
		config.ClientID = *id
	}
	if err := distmagic.Validate(config); err != nil {
		log.Fatal(err)
	}
	level, err := logging.ParseLevel(config.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	logger, closeLog, err := logging.New(logging.Config{Level: level, Service: "client"})
	if err != nil {
		log.Fatal(err)
	}
	defer closeLog()

	opts := search.DefaultOptions(*alphabet)
	if pflag.CommandLine.Changed("prefix") {
		opts.Prefix = *prefix
	}
	opts.MessageLen = *length
	opts.Strategy = *strategy

	client := distmagic.NewClient(config, magiclib.NewMagicLib(), logger)
	if err := client.Initialize(); err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	if err := client.Search(opts); err != nil {
		logger.Error("search rejected", "error", err)
		return
	}
	res := <-client.NotifyChannel
	if res.Err != nil {
		logger.Error("search failed", "error", res.Err)
		return
	}
	logger.Info("search complete", "search_id", res.SearchID, "result", res.Result.String())
}
