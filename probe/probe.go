// Package probe periodically connects to configured TLS endpoints with the
// CT lite policy enforced and exports the outcomes as prometheus metrics,
// optionally recording each result in a MySQL database.
package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io/ioutil"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmhodges/clock"
	"github.com/letsencrypt/ct-lite/pki"
	"github.com/letsencrypt/ct-lite/storage"
)

// Prober is a struct collecting up the things required to probe targets and
// expose the metrics gathered.
type Prober struct {
	stdout        *log.Logger
	stderr        *log.Logger
	db            storage.Storage
	latest        *latestResults
	targets       []*targetProbe
	metricsServer *http.Server

	mu      sync.Mutex
	running bool
}

// makeDB reads the database password from passwordFile and returns a Storage
// for dbURI with that password. The password file must not be readable by
// group or world.
func makeDB(dbURI, passwordFile string) (storage.Storage, error) {
	info, err := os.Stat(passwordFile)
	if err != nil {
		return nil, fmt.Errorf("reading DB password file: %s", err)
	}
	if perm := info.Mode().Perm(); perm&0077 != 0 {
		return nil, fmt.Errorf("DB password file %q has permissions %s, must not be group or world accessible",
			passwordFile, perm)
	}
	password, err := ioutil.ReadFile(passwordFile)
	if err != nil {
		return nil, fmt.Errorf("reading DB password file: %s", err)
	}
	conf, err := mysql.ParseDSN(dbURI)
	if err != nil {
		return nil, fmt.Errorf("parsing DBURI: %s", err)
	}
	conf.Passwd = strings.TrimSpace(string(password))
	return storage.New(conf.FormatDSN())
}

// New creates a Prober from the provided configuration, loggers and clock. If
// the configuration is invalid or an error occurs initializing the prober it
// is returned. The returned Prober does not probe anything until Run is
// called.
func New(c Config, stdout, stderr *log.Logger, clk clock.Clock) (*Prober, error) {
	// Check the configuration is valid
	if err := c.Valid(); err != nil {
		return nil, err
	}

	interval, err := time.ParseDuration(c.Interval)
	if err != nil {
		return nil, err
	}
	timeout, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return nil, err
	}

	var roots *x509.CertPool
	if c.RootsFile != "" {
		roots, err = pki.LoadCertPool(c.RootsFile)
		if err != nil {
			return nil, fmt.Errorf("loading RootsFile: %s", err)
		}
	}

	var db storage.Storage
	if c.DBURI != "" {
		db, err = makeDB(c.DBURI, c.DBPasswordFile)
		if err != nil {
			return nil, err
		}
	}

	latest := newLatestResults()
	var targets []*targetProbe
	for _, tc := range c.Targets {
		pc := probeCheck{
			addr:   tc.Addr,
			label:  "probe",
			clk:    clk,
			stdout: stdout,
			stderr: stderr,
		}
		tlsConfig := &tls.Config{
			RootCAs:    roots,
			ServerName: tc.ServerName,
			MinVersion: tls.VersionTLS12,
		}
		t := newTargetProbe(pc, tlsConfig, interval, timeout, c.Verbose, db)
		t.latest = latest
		targets = append(targets, t)
	}

	return &Prober{
		stdout:        stdout,
		stderr:        stderr,
		db:            db,
		latest:        latest,
		targets:       targets,
		metricsServer: initMetrics(c.MetricsAddr, newRouter(latest, db)),
	}, nil
}

// initMetrics creates a HTTP server for the provided addr serving handler.
// The server is not started.
func initMetrics(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:    addr,
		Handler: handler,
	}
}

// Run starts the metrics server and the probe of each target
func (p *Prober) Run() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true

	// Run the metrics HTTP server in its own goroutine
	go func() {
		p.stdout.Printf("Handling /metrics on %s\n", p.metricsServer.Addr)
		err := p.metricsServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			p.stderr.Printf("[ERROR] stats-server : %s", err.Error())
		}
	}()

	for _, t := range p.targets {
		t.run()
	}
}

// Stop stops each target's probe, shuts down the metrics server and closes the
// database, if any.
func (p *Prober) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		for _, t := range p.targets {
			t.stop()
		}
		p.running = false
	}

	err := p.metricsServer.Shutdown(context.Background())
	if err != nil {
		p.stderr.Printf("Unable to shutdown statsServer cleanly: %s\n",
			err.Error())
	}
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			p.stderr.Printf("Unable to close database cleanly: %s\n", err.Error())
		}
	}
}
