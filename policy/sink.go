package policy

import (
	"log"
)

// Sink receives the diagnostics produced by Evaluate. Implementations must not
// retain the records beyond what they need, and cannot change the verdict.
type Sink interface {
	// Observe is called once per evaluated SCT, in collection order.
	Observe(Record)
	// Conclude is called once after all SCTs have been observed.
	Conclude(Result)
}

type nopSink struct{}

func (nopSink) Observe(Record)   {}
func (nopSink) Conclude(Result) {}

// Nop is a Sink that discards everything.
var Nop Sink = nopSink{}

type multiSink []Sink

func (m multiSink) Observe(r Record) {
	for _, s := range m {
		s.Observe(r)
	}
}

func (m multiSink) Conclude(r Result) {
	for _, s := range m {
		s.Conclude(r)
	}
}

// MultiSink returns a Sink that forwards to each of the non-nil sinks given.
func MultiSink(sinks ...Sink) Sink {
	var m multiSink
	for _, s := range sinks {
		if s != nil {
			m = append(m, s)
		}
	}
	return m
}

// logSink writes diagnostics to a *log.Logger.
type logSink struct {
	logger *log.Logger
}

// NewLogSink returns a Sink printing a dump of each SCT, how it was
// classified, and a summary line to logger. The summary always states that
// SCT signatures were not validated.
func NewLogSink(logger *log.Logger) Sink {
	return &logSink{logger: logger}
}

func (s *logSink) Observe(r Record) {
	if r.Index == 0 {
		s.logger.Print("SCTs:")
	}
	s.logger.Print(r.Dump)
	switch {
	case r.Attested:
		s.logger.Printf("    ==> Got an SCT delivered via %s (CA-signed)", r.Source)
	case r.Source == SourceTLSExtension:
		s.logger.Printf("    ==> Got an SCT delivered via %s (not CA-signed)", r.Source)
	default:
		s.logger.Printf("    ==> Got an SCT delivered via %s (assuming not CA-signed)", r.Source)
	}
}

func (s *logSink) Conclude(r Result) {
	switch {
	case r.Total == 0:
		s.logger.Print("No SCTs received, not considering this connection valid")
	case r.Verdict == Reject:
		s.logger.Printf("Got %d SCTs of which none were via CA-signed channels, "+
			"not considering this connection valid", r.Total)
	default:
		s.logger.Printf("Got %d SCTs of which %d were via CA-signed channels, "+
			"considering this connection valid", r.Total, r.Attested)
	}
	s.logger.Printf("Verdict: %s (%d SCTs, %d CA-signed)", r.Verdict, r.Total, r.Attested)
	s.logger.Print("SCT signatures have NOT been validated")
}
