// Package enforcer installs the CT lite admission policy into a crypto/tls
// client configuration. The policy runs from tls.Config.VerifyConnection,
// after crypto/tls has verified the certificate chain and hostname and before
// the handshake completes, so a rejection aborts the handshake with a
// bad_certificate alert.
package enforcer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"time"

	"github.com/letsencrypt/ct-lite/evidence"
	"github.com/letsencrypt/ct-lite/policy"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ErrConfiguration is wrapped by every error Install returns. It means the
	// policy could not be put in place and no connection should be attempted.
	ErrConfiguration = errors.New("CT policy configuration error")

	// ErrPolicyRejected is wrapped by the *PolicyError returned when a
	// handshake does not satisfy the policy.
	ErrPolicyRejected = errors.New("CT policy rejected connection")
)

// enforcerStats holds the prometheus metrics updated by every evaluation.
type enforcerStats struct {
	evaluations *prometheus.CounterVec
	scts        *prometheus.CounterVec
}

var stats = &enforcerStats{
	evaluations: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ct_policy_evaluations",
		Help: "Count of CT policy evaluations, sliced by verdict",
	}, []string{"verdict"}),
	scts: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ct_policy_scts",
		Help: "Count of SCTs evaluated by the CT policy, sliced by delivery channel and whether it was CA-attested",
	}, []string{"source", "attested"}),
}

// Observe implements policy.Sink.
func (s *enforcerStats) Observe(r policy.Record) {
	s.scts.With(prometheus.Labels{
		"source":   r.Source.Label(),
		"attested": strconv.FormatBool(r.Attested),
	}).Inc()
}

// Conclude implements policy.Sink.
func (s *enforcerStats) Conclude(r policy.Result) {
	s.evaluations.With(prometheus.Labels{"verdict": r.Verdict.String()}).Inc()
}

// PolicyError is returned from a handshake the policy rejected.
type PolicyError struct {
	// ServerName is the name the client was verifying, if known.
	ServerName string
	Result     policy.Result
}

func (e *PolicyError) Error() string {
	name := e.ServerName
	if name == "" {
		name = "server"
	}
	if e.Result.Total == 0 {
		return fmt.Sprintf("%s: %s presented no SCTs", ErrPolicyRejected, name)
	}
	return fmt.Sprintf("%s: %s presented %d SCTs, none via a CA-signed channel",
		ErrPolicyRejected, name, e.Result.Total)
}

// Unwrap allows errors.Is(err, ErrPolicyRejected).
func (e *PolicyError) Unwrap() error {
	return ErrPolicyRejected
}

// IsPolicyRejection reports whether err, or an error it wraps, is a CT policy
// rejection rather than some other connection failure.
func IsPolicyRejection(err error) bool {
	return errors.Is(err, ErrPolicyRejected)
}

// Options configures an Enforcer.
type Options struct {
	// Sink receives the per-SCT diagnostics of every evaluation. It may be
	// nil.
	Sink policy.Sink
	// Logger receives notes about evidence that was discarded while
	// collecting SCTs. It may be nil.
	Logger *log.Logger
}

// Enforcer applies the admission policy to TLS handshakes. It holds no state
// that changes between handshakes and may be shared by concurrent
// connections, provided the configured Sink and Logger are safe for
// concurrent use.
type Enforcer struct {
	sink   policy.Sink
	logger *log.Logger
	stats  *enforcerStats
}

// New returns an Enforcer configured with opts.
func New(opts Options) *Enforcer {
	return &Enforcer{
		sink:   opts.Sink,
		logger: opts.Logger,
		stats:  stats,
	}
}

// configErr returns an error wrapping ErrConfiguration.
func configErr(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// Install enables CT enforcement on cfg and registers the Enforcer as its
// VerifyConnection callback. Both happen together or not at all: if cfg
// cannot carry the policy an error wrapping ErrConfiguration is returned and
// cfg is left unmodified.
//
// The embedded and stapled SCTs only mean something if the chain they came
// with was verified, so a cfg with InsecureSkipVerify set is refused. A cfg
// that already has a VerifyConnection callback is refused rather than
// silently replaced. MinVersion must be at least TLS 1.2.
func (e *Enforcer) Install(cfg *tls.Config) error {
	if e == nil {
		return configErr("nil Enforcer")
	}
	if cfg == nil {
		return configErr("nil tls.Config")
	}
	if cfg.InsecureSkipVerify {
		return configErr("InsecureSkipVerify disables the certificate verification CT evidence depends on")
	}
	if cfg.VerifyConnection != nil {
		return configErr("tls.Config already has a VerifyConnection callback")
	}
	if cfg.MinVersion != 0 && cfg.MinVersion < tls.VersionTLS12 {
		return configErr("MinVersion 0x%04x is below TLS 1.2", cfg.MinVersion)
	}

	if cfg.MinVersion == 0 {
		cfg.MinVersion = tls.VersionTLS12
	}
	cfg.VerifyConnection = e.VerifyConnection
	return nil
}

// Evaluate collects the SCTs from state and runs the admission policy over
// them, reporting diagnostics to the configured sink and metrics.
func (e *Enforcer) Evaluate(state tls.ConnectionState) policy.Result {
	scts := evidence.Collect(state, e.logger)
	return policy.Evaluate(scts, policy.MultiSink(e.sink, e.stats))
}

// VerifyConnection is the tls.Config.VerifyConnection callback. It returns a
// *PolicyError if the handshake presented no SCTs through a CA-signed
// channel.
func (e *Enforcer) VerifyConnection(state tls.ConnectionState) error {
	res := e.Evaluate(state)
	if res.Verdict != policy.Accept {
		return &PolicyError{ServerName: state.ServerName, Result: res}
	}
	return nil
}

// Dial connects to addr ("host:port") and completes a TLS handshake using
// cfg, which should already have the Enforcer installed. If cfg has no
// ServerName the host part of addr is used. A timeout of zero means no
// timeout beyond ctx.
func Dial(ctx context.Context, addr string, cfg *tls.Config, timeout time.Duration) (*tls.Conn, error) {
	if cfg == nil {
		return nil, configErr("nil tls.Config")
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %s", addr, err)
	}
	if cfg.ServerName == "" {
		cfg = cfg.Clone()
		cfg.ServerName = host
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	dialer := &tls.Dialer{Config: cfg}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return conn.(*tls.Conn), nil
}
