package probe

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"net"
	"time"
)

const (
	// default metrics listen host address
	metricsDefault = ":1972"
	// default per-probe handshake timeout
	timeoutDefault = "10s"
)

// Config is a struct holding the ct-lite-probe configuration data
type Config struct {
	// Interval is how long each target's probe sleeps between handshakes
	Interval string
	// Timeout bounds each dial and handshake. Defaults to 10s.
	Timeout     string
	MetricsAddr string
	// RootsFile is an optional PEM bundle of trusted roots. When empty the
	// system roots are used.
	RootsFile string
	// DBURI is an optional MySQL DSN without a password. If it is set
	// DBPasswordFile must be too.
	DBURI          string
	DBPasswordFile string
	// Verbose writes the per-SCT diagnostics of every probe to stdout
	Verbose bool
	Targets []TargetConfig
}

// TargetConfig describes an endpoint to be probed
type TargetConfig struct {
	// Addr is the "host:port" to connect to
	Addr string
	// ServerName overrides the name verified against the certificate. When
	// empty the host part of Addr is used.
	ServerName string
}

// Valid checks that a TargetConfig is valid. If the target has no Addr, or an
// Addr that is not of the form host:port, an error is returned.
func (tc TargetConfig) Valid() error {
	if tc.Addr == "" {
		return errors.New("target Addr must not be empty")
	}
	host, port, err := net.SplitHostPort(tc.Addr)
	if err != nil {
		return fmt.Errorf("target Addr %q is invalid: %s", tc.Addr, err.Error())
	}
	if host == "" || port == "" {
		return fmt.Errorf("target Addr %q is invalid: host and port must not be empty", tc.Addr)
	}
	return nil
}

// Valid checks that a config is valid. If the Interval or Timeout is invalid,
// or there are no targets configured, or a configured target is invalid, or a
// DBURI is given without a DBPasswordFile then an error is returned. If no
// MetricsAddr or Timeout is provided the defaults will be populated.
func (c *Config) Valid() error {
	if interval, err := time.ParseDuration(c.Interval); err != nil {
		return err
	} else if interval <= 0 {
		return errors.New("Interval must be > 0")
	}
	if c.Timeout == "" {
		c.Timeout = timeoutDefault
	}
	if timeout, err := time.ParseDuration(c.Timeout); err != nil {
		return err
	} else if timeout <= 0 {
		return errors.New("Timeout must be > 0")
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = metricsDefault
	}
	if c.DBURI != "" && c.DBPasswordFile == "" {
		return errors.New("DBPasswordFile must be set when DBURI is set")
	}
	if len(c.Targets) < 1 {
		return errors.New("At least one target must be configured")
	}
	for _, tc := range c.Targets {
		if err := tc.Valid(); err != nil {
			return err
		}
	}
	return nil
}

// Load unmarshals the JSON contents stored in the file path provided,
// populating the configuration object. An error is returned if the populated
// configuration is not valid.
func (c *Config) Load(file string) error {
	if file == "" {
		return errors.New("Config file path must not be empty")
	}

	configBytes, err := ioutil.ReadFile(file)
	if err != nil {
		return err
	}

	err = json.Unmarshal(configBytes, c)
	if err != nil {
		return err
	}

	return c.Valid()
}
