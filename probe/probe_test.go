package probe

import (
	"crypto/tls"
	"errors"
	"io/ioutil"
	"log"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jmhodges/clock"
	"github.com/letsencrypt/ct-lite/pki"
	"github.com/letsencrypt/ct-lite/storage"
	"github.com/letsencrypt/ct-lite/test"
	"github.com/prometheus/client_golang/prometheus"
)

// memStorage is an in-memory storage.Storage
type memStorage struct {
	mu      sync.Mutex
	results []*storage.ProbeResult
	err     error
}

func (s *memStorage) AddResult(r *storage.ProbeResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.results = append(s.results, r)
	return nil
}

func (s *memStorage) GetLatest(addr string) (*storage.ProbeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.results) - 1; i >= 0; i-- {
		if s.results[i].Addr == addr {
			return s.results[i], nil
		}
	}
	return nil, storage.ErrNoResults
}

func (s *memStorage) Close() error { return nil }

func TestMakeDB(t *testing.T) {
	dsn := "prober@tcp(10.40.50.7:3306)/ctlitedb"
	goodFile := test.WriteTemp(t, "sEkRiT\n", "db.password")
	openFile := test.WriteTemp(t, "sEkRiT", "db.password")
	if err := os.Chmod(openFile, 0644); err != nil {
		t.Fatalf("Unable to chmod %q: %s", openFile, err)
	}

	testCases := []struct {
		Name         string
		DSN          string
		PasswordFile string
		ErrorContain string
	}{
		{
			Name:         "Missing password file",
			DSN:          dsn,
			PasswordFile: "/does/not/exist/db.password",
			ErrorContain: "reading DB password file",
		},
		{
			Name:         "World readable password file",
			DSN:          dsn,
			PasswordFile: openFile,
			ErrorContain: "must not be group or world accessible",
		},
		{
			Name:         "Invalid DSN",
			DSN:          "not a dsn",
			PasswordFile: goodFile,
			ErrorContain: "parsing DBURI",
		},
		{
			Name:         "Valid DSN and password file",
			DSN:          dsn,
			PasswordFile: goodFile,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			db, err := makeDB(tc.DSN, tc.PasswordFile)
			if tc.ErrorContain == "" {
				if err != nil {
					t.Fatalf("Expected no error from makeDB, got %s", err)
				}
				_ = db.Close()
				return
			}
			if err == nil {
				t.Fatalf("Expected error containing %q, got nil", tc.ErrorContain)
			}
			if !strings.Contains(err.Error(), tc.ErrorContain) {
				t.Errorf("Expected error containing %q, got %q", tc.ErrorContain, err.Error())
			}
		})
	}
}

func TestNew(t *testing.T) {
	l := log.New(ioutil.Discard, "", 0)
	clk := clock.NewFake()
	f := test.NewFixture(t, test.Channels{})
	rootsFile := test.WriteTemp(t, string(pki.EncodeCertificates(f.Root)), "roots.pem")
	passwordFile := test.WriteTemp(t, "sEkRiT", "db.password")

	if _, err := New(Config{}, l, l, clk); err == nil {
		t.Error("Expected New with an invalid config to fail")
	}

	conf := Config{
		Interval:  "1m",
		RootsFile: "/does/not/exist/roots.pem",
		Targets:   []TargetConfig{{Addr: "localhost:443"}},
	}
	if _, err := New(conf, l, l, clk); err == nil {
		t.Error("Expected New with a missing RootsFile to fail")
	}

	conf.RootsFile = rootsFile
	conf.DBURI = "prober@tcp(10.40.50.7:3306)/ctlitedb"
	conf.DBPasswordFile = passwordFile
	conf.Targets = append(conf.Targets, TargetConfig{Addr: "127.0.0.1:8443", ServerName: test.ServerName})
	p, err := New(conf, l, l, clk)
	if err != nil {
		t.Fatalf("Expected no error calling New(), got %s", err)
	}
	if p.db == nil {
		t.Error("Expected prober db to be non-nil")
	}
	if len(p.targets) != 2 {
		t.Fatalf("Expected 2 targets, got %d", len(p.targets))
	}
	for _, target := range p.targets {
		if target.interval != time.Minute {
			t.Errorf("Expected interval %s, got %s", time.Minute, target.interval)
		}
		if target.timeout != 10*time.Second {
			t.Errorf("Expected default timeout %s, got %s", 10*time.Second, target.timeout)
		}
		if target.tlsConfig.RootCAs == nil {
			t.Errorf("Expected target RootCAs to be loaded from RootsFile")
		}
		if target.tlsConfig.VerifyConnection != nil {
			t.Errorf("Expected the base tls.Config to have no VerifyConnection")
		}
		if target.stats == nil {
			t.Errorf("Expected target stats to be non-nil")
		}
	}
	if p.targets[1].tlsConfig.ServerName != test.ServerName {
		t.Errorf("Expected ServerName %q, got %q", test.ServerName, p.targets[1].tlsConfig.ServerName)
	}
	if p.metricsServer.Addr != ":1972" {
		t.Errorf("Expected default metrics addr, got %q", p.metricsServer.Addr)
	}
	p.Stop()
}

func newTestTarget(addr string, cfg *tls.Config, db storage.Storage, clk clock.Clock, out *test.SafeBuffer, verbose bool) *targetProbe {
	l := log.New(out, "", 0)
	pc := probeCheck{
		addr:   addr,
		label:  "probe",
		clk:    clk,
		stdout: l,
		stderr: l,
	}
	return newTargetProbe(pc, cfg, time.Hour, 5*time.Second, verbose, db)
}

func TestProbe(t *testing.T) {
	fc := clock.NewFake()
	fc.Set(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	unrelated := test.NewFixture(t, test.Channels{})

	testCases := []struct {
		Name             string
		Channels         test.Channels
		UnrelatedRoots   bool
		ExpectedStatus   string
		ExpectedVerdict  string
		ExpectedTotal    int
		ExpectedAttested int
	}{
		{
			Name:            "No SCTs",
			ExpectedStatus:  statusRejected,
			ExpectedVerdict: "reject",
		},
		{
			Name:            "TLS extension SCTs only",
			Channels:        test.Channels{TLS: 2},
			ExpectedStatus:  statusRejected,
			ExpectedVerdict: "reject",
			ExpectedTotal:   2,
		},
		{
			Name:             "Embedded and TLS extension SCTs",
			Channels:         test.Channels{X509: 2, TLS: 1},
			ExpectedStatus:   statusOK,
			ExpectedVerdict:  "accept",
			ExpectedTotal:    3,
			ExpectedAttested: 2,
		},
		{
			Name:             "Stapled SCTs",
			Channels:         test.Channels{OCSP: 1},
			ExpectedStatus:   statusOK,
			ExpectedVerdict:  "accept",
			ExpectedTotal:    1,
			ExpectedAttested: 1,
		},
		{
			Name:           "Untrusted chain",
			Channels:       test.Channels{X509: 1},
			UnrelatedRoots: true,
			ExpectedStatus: statusError,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			f := test.NewFixture(t, tc.Channels)
			addr := f.Serve(t)
			cfg := f.ClientConfig()
			if tc.UnrelatedRoots {
				cfg.RootCAs = unrelated.Roots
			}
			db := &memStorage{}
			var out test.SafeBuffer
			target := newTestTarget(addr, cfg, db, fc, &out, false)

			result := target.probe()

			if result.Verdict != tc.ExpectedVerdict {
				t.Errorf("Expected verdict %q, got %q", tc.ExpectedVerdict, result.Verdict)
			}
			if result.Total != tc.ExpectedTotal || result.Attested != tc.ExpectedAttested {
				t.Errorf("Expected %d SCTs with %d attested, got %d with %d",
					tc.ExpectedTotal, tc.ExpectedAttested, result.Total, result.Attested)
			}
			if !result.Timestamp.Equal(fc.Now()) {
				t.Errorf("Expected result timestamp %s, got %s", fc.Now(), result.Timestamp)
			}
			if tc.ExpectedStatus == statusOK && result.Error != "" {
				t.Errorf("Expected no error, got %q", result.Error)
			} else if tc.ExpectedStatus != statusOK && result.Error == "" {
				t.Errorf("Expected result to carry an error")
			}

			for _, status := range []string{statusOK, statusRejected, statusError} {
				expected := 0
				if status == tc.ExpectedStatus {
					expected = 1
				}
				count := test.CountCounterVecWithLabels(stats.results,
					prometheus.Labels{"addr": addr, "status": status})
				if count != expected {
					t.Errorf("Expected %d %q results, got %d", expected, status, count)
				}
			}

			samples := test.CountHistogramSamplesWithLabels(stats.latency, prometheus.Labels{"addr": addr})
			if samples != 1 {
				t.Errorf("Expected 1 latency sample, got %d", samples)
			}

			lastAccept, err := test.GaugeValueWithLabels(stats.lastAccept, prometheus.Labels{"addr": addr})
			if err != nil {
				t.Fatalf("Unable to read probe_last_accept_timestamp: %s", err)
			}
			expectedAccept := 0
			if tc.ExpectedStatus == statusOK {
				expectedAccept = int(fc.Now().Unix())
			}
			if lastAccept != expectedAccept {
				t.Errorf("Expected probe_last_accept_timestamp %d, got %d", expectedAccept, lastAccept)
			}

			latest, err := db.GetLatest(addr)
			if err != nil {
				t.Fatalf("Expected result to be stored, got %s", err)
			}
			if latest != result {
				t.Errorf("Expected stored result %#v, got %#v", result, latest)
			}

			if tc.ExpectedStatus != statusOK && !strings.Contains(out.String(), "[ERROR]") {
				t.Errorf("Expected an [ERROR] line to be logged, got %q", out.String())
			}
		})
	}
}

func TestProbeVerbose(t *testing.T) {
	f := test.NewFixture(t, test.Channels{X509: 1, TLS: 1})
	addr := f.Serve(t)
	var out test.SafeBuffer
	target := newTestTarget(addr, f.ClientConfig(), nil, clock.NewFake(), &out, true)

	if result := target.probe(); result.Verdict != "accept" {
		t.Fatalf("Expected probe to be accepted, got %#v", result)
	}
	for _, line := range []string{
		"Got an SCT delivered via X509v3 extension (CA-signed)",
		"Got an SCT delivered via TLS extension (not CA-signed)",
		"Verdict: accept (2 SCTs, 1 CA-signed)",
	} {
		if !strings.Contains(out.String(), line) {
			t.Errorf("Expected verbose output to contain %q, got %q", line, out.String())
		}
	}
}

func TestProbeStorageFailure(t *testing.T) {
	f := test.NewFixture(t, test.Channels{X509: 1})
	addr := f.Serve(t)
	db := &memStorage{err: errors.New("database has gone away")}
	var out test.SafeBuffer
	target := newTestTarget(addr, f.ClientConfig(), db, clock.NewFake(), &out, false)

	target.probe()

	if count := test.CountCounterVecWithLabels(stats.storageFailures, prometheus.Labels{"addr": addr}); count != 1 {
		t.Errorf("Expected 1 storage failure, got %d", count)
	}
	if !strings.Contains(out.String(), "database has gone away") {
		t.Errorf("Expected the storage error to be logged, got %q", out.String())
	}
}

func TestRunStop(t *testing.T) {
	f := test.NewFixture(t, test.Channels{OCSP: 1})
	addr := f.Serve(t)
	rootsFile := test.WriteTemp(t, string(pki.EncodeCertificates(f.Root)), "roots.pem")

	var out test.SafeBuffer
	l := log.New(&out, "", 0)
	p, err := New(Config{
		Interval:    "1h",
		Timeout:     "5s",
		MetricsAddr: "127.0.0.1:0",
		RootsFile:   rootsFile,
		Targets:     []TargetConfig{{Addr: addr, ServerName: test.ServerName}},
	}, l, l, clock.NewFake())
	if err != nil {
		t.Fatalf("Expected no error calling New(), got %s", err)
	}

	p.Run()
	labels := prometheus.Labels{"addr": addr, "status": statusOK}
	deadline := time.Now().Add(10 * time.Second)
	for test.CountCounterVecWithLabels(stats.results, labels) < 1 {
		if time.Now().After(deadline) {
			p.Stop()
			t.Fatalf("Timed out waiting for a probe, output: %q", out.String())
		}
		time.Sleep(10 * time.Millisecond)
	}
	p.Stop()

	if !strings.Contains(out.String(), "Stopping") {
		t.Errorf("Expected targets to log that they were stopped, got %q", out.String())
	}
}
