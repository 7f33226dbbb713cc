// Command ct-lite connects to a TLS server and succeeds only if the server
// presents at least one SCT through a CA-signed channel: embedded in the
// certificate or in a stapled OCSP response.
//
// SCT signatures are not validated.
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"log"
	"os"
	"path"
	"time"

	"github.com/letsencrypt/ct-lite/cmd"
	"github.com/letsencrypt/ct-lite/enforcer"
	"github.com/letsencrypt/ct-lite/pki"
	"github.com/letsencrypt/ct-lite/policy"
)

const (
	// default -timeout value
	timeoutDefault = 10 * time.Second
	// default -min-tls value
	minTLSDefault = "1.2"
)

var logger = log.New(
	os.Stderr,
	path.Base(os.Args[0])+" ",
	log.LstdFlags)

// parseMinVersion maps a -min-tls flag value to a crypto/tls version. Only
// versions the CT policy can be installed with are accepted.
func parseMinVersion(v string) (uint16, error) {
	switch v {
	case "1.2":
		return tls.VersionTLS12, nil
	case "1.3":
		return tls.VersionTLS13, nil
	}
	return 0, fmt.Errorf("unsupported minimum TLS version %q, must be 1.2 or 1.3", v)
}

// clientConfig returns a tls.Config trusting the roots in rootsFile, or the
// system roots if rootsFile is empty.
func clientConfig(rootsFile string, minVersion uint16) (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: minVersion}
	if rootsFile != "" {
		roots, err := pki.LoadCertPool(rootsFile)
		if err != nil {
			return nil, err
		}
		cfg.RootCAs = roots
	}
	return cfg, nil
}

// connect installs the CT policy into cfg, writing its diagnostics to diag,
// and completes a handshake with addr. Success is reported to diag as well.
func connect(addr string, cfg *tls.Config, timeout time.Duration, diag *log.Logger) error {
	e := enforcer.New(enforcer.Options{
		Sink:   policy.NewLogSink(diag),
		Logger: diag,
	})
	if err := e.Install(cfg); err != nil {
		return err
	}
	conn, err := enforcer.Dial(context.Background(), addr, cfg, timeout)
	if err != nil {
		return err
	}
	if err := conn.Close(); err != nil {
		return err
	}
	diag.Println("Successfully connected")
	return nil
}

func main() {
	rootsFile := flag.String(
		"roots",
		"",
		"PEM file of trusted root certificates (default: system roots)")
	timeout := flag.Duration(
		"timeout",
		timeoutDefault,
		"Timeout for connecting and completing the TLS handshake")
	minTLS := flag.String(
		"min-tls",
		minTLSDefault,
		"Minimum TLS version to negotiate (1.2 or 1.3)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <hostname:port>\n", path.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}
	addr := flag.Arg(0)

	minVersion, err := parseMinVersion(*minTLS)
	cmd.FailOnError(logger, err, "Invalid -min-tls")

	cfg, err := clientConfig(*rootsFile, minVersion)
	cmd.FailOnError(logger, err, "Unable to load -roots")

	err = connect(addr, cfg, *timeout, log.New(os.Stderr, "", 0))
	if enforcer.IsPolicyRejection(err) {
		cmd.FailOnError(logger, err, fmt.Sprintf("CT policy rejected %s", addr))
	}
	cmd.FailOnError(logger, err, fmt.Sprintf("Unable to connect to %s", addr))
}
