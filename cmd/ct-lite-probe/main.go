package main

import (
	"flag"
	"log"
	"os"
	"path"

	"github.com/gin-gonic/gin"
	"github.com/jmhodges/clock"
	"github.com/letsencrypt/ct-lite/cmd"
	"github.com/letsencrypt/ct-lite/probe"
)

const (
	// default -config value
	configDefault = "test/config.json"
)

func main() {
	configFile := flag.String(
		"config",
		configDefault,
		"JSON ct-lite-probe configuration file path")
	flag.Parse()

	prefix := path.Base(os.Args[0]) + " "
	stdout := log.New(os.Stdout, prefix, log.LstdFlags)
	stderr := log.New(os.Stderr, prefix, log.LstdFlags)

	// Load and validate the configuration from the provided JSON
	var conf probe.Config
	err := conf.Load(*configFile)
	cmd.FailOnError(stderr, err, "Unable to load ct-lite-probe config")

	gin.SetMode(gin.ReleaseMode)
	p, err := probe.New(conf, stdout, stderr, clock.Default())
	cmd.FailOnError(stderr, err, "Unable to create ct-lite-probe")

	// Start the probes, each in their own goroutine
	p.Run()

	// Block the main goroutine waiting for signals while the probes run.
	// WaitForSignal is provided a callback to cleanly stop the probes and the
	// metrics server when a signal is caught.
	cmd.WaitForSignal(stdout, p.Stop)
}
