package probe

import (
	"errors"
	"reflect"
	"testing"

	"github.com/letsencrypt/ct-lite/test"
)

func TestTargetConfigValid(t *testing.T) {
	testCases := []struct {
		Name   string
		Config TargetConfig
		Valid  bool
	}{
		{
			Name:   "Empty target addr",
			Config: TargetConfig{},
		},
		{
			Name:   "Target addr without port",
			Config: TargetConfig{Addr: "example.com"},
		},
		{
			Name:   "Target addr without host",
			Config: TargetConfig{Addr: ":443"},
		},
		{
			Name:   "Target addr with empty port",
			Config: TargetConfig{Addr: "example.com:"},
		},
		{
			Name:   "Valid target config",
			Config: TargetConfig{Addr: "example.com:443"},
			Valid:  true,
		},
		{
			Name:   "Valid IPv6 target with server name",
			Config: TargetConfig{Addr: "[::1]:8443", ServerName: "example.com"},
			Valid:  true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			if err := tc.Config.Valid(); err != nil && tc.Valid {
				t.Errorf("Expected target config %#v to be valid, had error: %s",
					tc.Config, err)
			} else if err == nil && !tc.Valid {
				t.Errorf("Expected target config %#v to be invalid, had nil error",
					tc.Config)
			}
		})
	}
}

func TestConfigValid(t *testing.T) {
	validConfig := Config{
		Interval: "2s",
		Targets: []TargetConfig{
			{Addr: "localhost:443"},
		},
	}

	testCases := []struct {
		Name   string
		Config Config
		Valid  bool
	}{
		{
			Name: "Invalid interval",
			Config: Config{
				Interval: "every now and then",
			},
		},
		{
			Name: "Negative interval",
			Config: Config{
				Interval: "-2s",
				Targets:  validConfig.Targets,
			},
		},
		{
			Name: "Invalid timeout",
			Config: Config{
				Interval: "2s",
				Timeout:  "eventually",
				Targets:  validConfig.Targets,
			},
		},
		{
			Name: "Zero timeout",
			Config: Config{
				Interval: "2s",
				Timeout:  "0s",
				Targets:  validConfig.Targets,
			},
		},
		{
			Name: "No target configs",
			Config: Config{
				Interval: "2s",
			},
		},
		{
			Name: "Invalid target",
			Config: Config{
				Interval: "2s",
				Targets:  []TargetConfig{{}},
			},
		},
		{
			Name: "DB URI without password file",
			Config: Config{
				Interval: "2s",
				DBURI:    "prober@tcp(10.40.50.7:3306)/ctlitedb",
				Targets:  validConfig.Targets,
			},
		},
		{
			Name:   "Valid config",
			Config: validConfig,
			Valid:  true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			if err := tc.Config.Valid(); err != nil && tc.Valid {
				t.Errorf("Expected config %#v to be valid, had error: %s", tc.Config, err)
			} else if err == nil && !tc.Valid {
				t.Errorf("Expected config %#v to be invalid, had nil error",
					tc.Config)
			}
		})
	}

	// Also test that a Config without a metrics address or timeout gets the
	// defaults assigned in `Valid()`
	validConfig.MetricsAddr = ""
	validConfig.Timeout = ""
	if err := validConfig.Valid(); err != nil {
		t.Error("validConfig was considered invalid with an empty MetricsAddr and Timeout")
	}
	if validConfig.MetricsAddr != ":1972" {
		t.Errorf("validConfig has MetricsAddr %q after .Valid(), expected %q",
			validConfig.MetricsAddr, ":1972")
	}
	if validConfig.Timeout != "10s" {
		t.Errorf("validConfig has Timeout %q after .Valid(), expected %q",
			validConfig.Timeout, "10s")
	}
}

func TestConfigLoad(t *testing.T) {
	goodConfig := `
{
  "interval": "5m",
  "timeout": "20s",
  "metricsAddr": ":1972",
  "rootsFile": "/etc/ct-lite/roots.pem",
  "verbose": true,
  "targets": [
    {
      "addr": "letsencrypt.org:443"
    },
    {
      "addr": "10.0.0.1:8443",
      "serverName": "internal.example.com"
    }
  ]
}`
	goodConfigFile := test.WriteTemp(t, goodConfig, "good.config")

	badConfig := `{`
	badConfigFile := test.WriteTemp(t, badConfig, "bad.config")

	invalidConfig := `{"interval": "5m"}`
	invalidConfigFile := test.WriteTemp(t, invalidConfig, "invalid.config")

	testCases := []struct {
		Name           string
		Filepath       string
		ExpectedConfig *Config
		Error          error
	}{
		{
			Name:  "Empty filepath",
			Error: errors.New("Config file path must not be empty"),
		},
		{
			Name:     "Bad config filepath",
			Filepath: badConfigFile,
			Error:    errors.New("unexpected end of JSON input"),
		},
		{
			Name:     "Config without targets",
			Filepath: invalidConfigFile,
			Error:    errors.New("At least one target must be configured"),
		},
		{
			Name:     "Good config",
			Filepath: goodConfigFile,
			ExpectedConfig: &Config{
				Interval:    "5m",
				Timeout:     "20s",
				MetricsAddr: ":1972",
				RootsFile:   "/etc/ct-lite/roots.pem",
				Verbose:     true,
				Targets: []TargetConfig{
					{Addr: "letsencrypt.org:443"},
					{Addr: "10.0.0.1:8443", ServerName: "internal.example.com"},
				},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			conf := Config{}
			err := conf.Load(tc.Filepath)
			if err != nil {
				if tc.Error == nil {
					t.Errorf("Expected nil error, got %#v", err)
				} else if err.Error() != tc.Error.Error() {
					t.Errorf("Expected error %q, got %q", tc.Error.Error(), err.Error())
				}
			} else if tc.ExpectedConfig == nil {
				t.Errorf("Expected error %q, got nil", tc.Error)
			} else if equal := reflect.DeepEqual(conf, *tc.ExpectedConfig); !equal {
				t.Errorf("Expected config %#v, got %#v", *tc.ExpectedConfig, conf)
			}
		})
	}
}
