package probe

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/letsencrypt/ct-lite/enforcer"
	"github.com/letsencrypt/ct-lite/policy"
	"github.com/letsencrypt/ct-lite/storage"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// probeStats is a type to hold the prometheus metrics used by a targetProbe
type probeStats struct {
	latency         *prometheus.HistogramVec
	results         *prometheus.CounterVec
	lastAccept      *prometheus.GaugeVec
	storageFailures *prometheus.CounterVec
}

var (
	// internetFacingBuckets are histogram buckets suitable for measuring
	// latencies that involve traversing the public internet.
	internetFacingBuckets = []float64{.1, .25, .5, 1, 2.5, 5, 7.5, 10, 15, 30, 45}

	stats = &probeStats{
		latency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "probe_latency",
			Help:    "Latency of dialing a target and completing a CT enforcing TLS handshake",
			Buckets: internetFacingBuckets,
		}, []string{"addr"}),
		results: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "probe_results",
			Help: "Count of probe results, sliced by status (ok, rejected or error)",
		}, []string{"addr", "status"}),
		lastAccept: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "probe_last_accept_timestamp",
			Help: "Unix timestamp of the last handshake the CT policy accepted",
		}, []string{"addr"}),
		storageFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "probe_storage_failures",
			Help: "Count of failures to store probe results",
		}, []string{"addr"}),
	}
)

const (
	statusOK       = "ok"
	statusRejected = "rejected"
	statusError    = "error"
)

// resultSink remembers the conclusion of the evaluation run during one
// handshake.
type resultSink struct {
	result    policy.Result
	concluded bool
}

func (r *resultSink) Observe(policy.Record) {}

func (r *resultSink) Conclude(res policy.Result) {
	r.result = res
	r.concluded = true
}

// targetProbe periodically handshakes with one target under the CT policy.
type targetProbe struct {
	probeCheck

	stats *probeStats
	db    storage.Storage
	// latest, if set, is updated with every result
	latest *latestResults

	// tlsConfig is cloned for every handshake and has the enforcer installed
	// on the clone.
	tlsConfig *tls.Config
	verbose   bool

	stopChannel chan bool

	// How long to sleep between probes
	interval time.Duration
	// Timeout for dialing and handshaking
	timeout time.Duration
}

func newTargetProbe(
	pc probeCheck,
	tlsConfig *tls.Config,
	interval, timeout time.Duration,
	verbose bool,
	db storage.Storage) *targetProbe {
	return &targetProbe{
		probeCheck:  pc,
		stats:       stats,
		db:          db,
		tlsConfig:   tlsConfig,
		verbose:     verbose,
		stopChannel: make(chan bool),
		interval:    interval,
		timeout:     timeout,
	}
}

// run starts a goroutine that calls probe, sleeps for interval and then
// repeats until stop is called.
func (p *targetProbe) run() {
	go func() {
		for {
			p.probe()
			p.logf("Sleeping for %s before next probe\n", p.interval)
			select {
			case <-p.stopChannel:
				return
			case <-time.After(p.interval):
			}
		}
	}()
}

func (p *targetProbe) stop() {
	p.log("Stopping")
	p.stopChannel <- true
}

// probe dials the target and completes a handshake with the CT policy
// enforced. The latency is published to `probe_latency` and the outcome to
// `probe_results`. An accepted handshake also updates
// `probe_last_accept_timestamp`. If a database is configured the result is
// stored.
func (p *targetProbe) probe() *storage.ProbeResult {
	labels := prometheus.Labels{"addr": p.addr}
	rec := &resultSink{}
	var sink policy.Sink = rec
	if p.verbose {
		sink = policy.MultiSink(rec, policy.NewLogSink(p.stdout))
	}

	result := &storage.ProbeResult{Addr: p.addr}
	status := statusOK

	cfg := p.tlsConfig.Clone()
	err := enforcer.New(enforcer.Options{Sink: sink, Logger: p.stdout}).Install(cfg)
	if err == nil {
		start := p.clk.Now()
		var conn *tls.Conn
		conn, err = enforcer.Dial(context.Background(), p.addr, cfg, p.timeout)
		elapsed := p.clk.Since(start)
		p.stats.latency.With(labels).Observe(elapsed.Seconds())
		if conn != nil {
			_ = conn.Close()
		}
	}
	result.Timestamp = p.clk.Now()

	if rec.concluded {
		result.Verdict = rec.result.Verdict.String()
		result.Total = rec.result.Total
		result.Attested = rec.result.Attested
	}

	switch {
	case err == nil:
		p.stats.lastAccept.With(labels).Set(float64(result.Timestamp.Unix()))
		p.logf("CT policy accepted connection: %d SCTs, %d CA-signed",
			result.Total, result.Attested)
	case enforcer.IsPolicyRejection(err):
		status = statusRejected
		result.Error = err.Error()
		p.logErrorf("%s", err)
	default:
		status = statusError
		result.Error = err.Error()
		p.logErrorf("Error probing : %s", err)
	}
	p.stats.results.With(prometheus.Labels{"addr": p.addr, "status": status}).Inc()

	p.store(result)
	if p.latest != nil {
		p.latest.set(result)
	}
	return result
}

func (p *targetProbe) store(result *storage.ProbeResult) {
	if p.db == nil {
		return
	}
	if err := p.db.AddResult(result); err != nil {
		p.logErrorf("Error storing probe result : %s", err)
		p.stats.storageFailures.With(prometheus.Labels{"addr": p.addr}).Inc()
	}
}
