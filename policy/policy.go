// Package policy implements the "CT lite" admission policy: a TLS connection
// is acceptable only if at least one Signed Certificate Timestamp (SCT) reached
// the client through a channel the issuing CA had to take part in. SCT
// signatures are never verified.
package policy

import (
	ct "github.com/google/certificate-transparency-go"
)

// Source identifies the channel an SCT was delivered through.
type Source int

const (
	// SourceUnknown is used for SCTs whose delivery channel is not known.
	SourceUnknown Source = iota
	// SourceX509Extension is an SCT embedded in the leaf certificate.
	SourceX509Extension
	// SourceOCSPStaple is an SCT carried in a stapled OCSP response.
	SourceOCSPStaple
	// SourceTLSExtension is an SCT sent by the server in the
	// signed_certificate_timestamp TLS extension.
	SourceTLSExtension
)

// String returns a human readable name for the source.
func (s Source) String() string {
	switch s {
	case SourceX509Extension:
		return "X509v3 extension"
	case SourceOCSPStaple:
		return "OCSP stapled response"
	case SourceTLSExtension:
		return "TLS extension"
	default:
		return "unknown source"
	}
}

// Label returns a short name for the source suitable for metric labels.
func (s Source) Label() string {
	switch s {
	case SourceX509Extension:
		return "x509"
	case SourceOCSPStaple:
		return "ocsp"
	case SourceTLSExtension:
		return "tls"
	default:
		return "unknown"
	}
}

// Attested reports whether an SCT delivered through src counts as evidence
// that the issuing CA submitted the certificate to a log. Only the X.509
// extension and the OCSP staple pass through the CA before reaching the
// client. A TLS extension SCT comes straight from the server process.
//
// Sources other than the known three, including SourceUnknown, are never
// considered attested. RFC 6962 does not require this; it is a policy choice
// that keeps new or unrecognised channels from ever satisfying the check.
func Attested(src Source) bool {
	switch src {
	case SourceX509Extension, SourceOCSPStaple:
		return true
	default:
		return false
	}
}

// SCT is a single Signed Certificate Timestamp as presented by a peer.
type SCT struct {
	Source Source
	// Raw is the TLS encoded SCT as it was received.
	Raw []byte
	// Parsed is the decoded SCT. It is only used for diagnostics and may be nil.
	Parsed *ct.SignedCertificateTimestamp
}

// Verdict is the outcome of evaluating an SCT collection.
type Verdict int

const (
	// Reject is the zero Verdict.
	Reject Verdict = iota
	Accept
)

func (v Verdict) String() string {
	if v == Accept {
		return "accept"
	}
	return "reject"
}

// Result summarises one evaluation.
type Result struct {
	// Total is the number of SCTs evaluated.
	Total int
	// Attested is the number of SCTs delivered through a CA-attested channel.
	Attested int
	Verdict  Verdict
}

// Record is the diagnostic emitted for each evaluated SCT.
type Record struct {
	Index    int
	Source   Source
	Attested bool
	// Dump is the output of Describe for the SCT.
	Dump string
}

// Evaluate decides whether a handshake that presented scts is acceptable. The
// collection is rejected when it is empty or when none of its SCTs arrived
// through an attested channel. The verdict depends only on the number and
// sources of the SCTs, so evaluating the same collection again, or a
// permutation of it, gives the same Result.
//
// A Record for every SCT and a final Result are passed to sink, which may be
// nil. The sink has no influence on the verdict.
func Evaluate(scts []SCT, sink Sink) Result {
	if sink == nil {
		sink = Nop
	}

	res := Result{Total: len(scts)}
	for i, sct := range scts {
		attested := Attested(sct.Source)
		if attested {
			res.Attested++
		}
		sink.Observe(Record{
			Index:    i,
			Source:   sct.Source,
			Attested: attested,
			Dump:     Describe(sct),
		})
	}

	if res.Total > 0 && res.Attested > 0 {
		res.Verdict = Accept
	}
	sink.Conclude(res)
	return res
}
