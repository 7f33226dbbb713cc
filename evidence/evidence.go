// Package evidence pools the Signed Certificate Timestamps a TLS server
// presented into the ordered collection evaluated by package policy, tagging
// each with the channel it arrived through.
//
// crypto/tls only exposes the TLS extension SCTs directly. The embedded SCTs
// are read from the leaf certificate and the OCSP SCTs from the stapled OCSP
// response. An SCT list that cannot be framed, or a staple that does not verify
// against the issuer from a verified chain, is left out and reported to the
// logger. An SCT whose payload does not decode still counts. Evidence problems
// are never errors.
package evidence

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log"

	"github.com/letsencrypt/ct-lite/pki"
	"github.com/letsencrypt/ct-lite/policy"

	ctx509 "github.com/google/certificate-transparency-go/x509"
	ctx509util "github.com/google/certificate-transparency-go/x509util"
	"golang.org/x/crypto/ocsp"
)

// collector carries the logger used to report discarded evidence.
type collector struct {
	logger *log.Logger
}

func (c collector) logf(format string, args ...interface{}) {
	if c.logger == nil {
		return
	}
	c.logger.Printf(format, args...)
}

// Collect returns the SCTs presented during the handshake described by state:
// first those embedded in the leaf certificate, then those in the stapled OCSP
// response, then those from the TLS extension. logger may be nil.
func Collect(state tls.ConnectionState, logger *log.Logger) []policy.SCT {
	c := collector{logger: logger}

	var scts []policy.SCT
	if len(state.PeerCertificates) == 0 {
		c.logf("no peer certificates, ignoring X509v3 and OCSP SCTs")
	} else {
		leaf := state.PeerCertificates[0]
		scts = append(scts, c.fromCertificate(leaf)...)
		scts = append(scts, c.fromStaple(state.OCSPResponse, leaf, issuerOf(state))...)
	}
	scts = append(scts, c.fromTLS(state.SignedCertificateTimestamps)...)
	return scts
}

// issuerOf returns the certificate that issued the leaf according to a
// verified chain, or nil if no verified chain has one. Certificates the server
// presented but nothing verified are never used.
func issuerOf(state tls.ConnectionState) *x509.Certificate {
	for _, chain := range state.VerifiedChains {
		if len(chain) > 1 {
			return chain[1]
		}
	}
	return nil
}

func (c collector) fromCertificate(leaf *x509.Certificate) []policy.SCT {
	for _, ext := range leaf.Extensions {
		if !ext.Id.Equal(pki.OIDExtensionSCTList) {
			continue
		}
		scts, undecoded, err := ParseSCTList(ext.Value, policy.SourceX509Extension)
		if err != nil {
			c.logf("ignoring X509v3 SCT list: %s", err)
			return nil
		}
		for _, err := range undecoded {
			c.logf("X509v3 %s", err)
		}
		return scts
	}
	return nil
}

func (c collector) fromStaple(staple []byte, leaf, issuer *x509.Certificate) []policy.SCT {
	if len(staple) == 0 {
		return nil
	}
	if issuer == nil {
		c.logf("ignoring OCSP staple: no verified chain names the issuer")
		return nil
	}
	resp, err := ocsp.ParseResponseForCert(staple, leaf, issuer)
	if err != nil {
		c.logf("ignoring OCSP staple: %s", err)
		return nil
	}
	for _, ext := range resp.Extensions {
		if !ext.Id.Equal(pki.OIDOCSPExtensionSCTList) {
			continue
		}
		scts, undecoded, err := ParseSCTList(ext.Value, policy.SourceOCSPStaple)
		if err != nil {
			c.logf("ignoring OCSP SCT list: %s", err)
			return nil
		}
		for _, err := range undecoded {
			c.logf("OCSP %s", err)
		}
		return scts
	}
	return nil
}

func (c collector) fromTLS(raw [][]byte) []policy.SCT {
	scts, errs := ParseTLSSCTs(raw)
	for _, err := range errs {
		c.logf("TLS extension %s", err)
	}
	return scts
}

// ParseSCTList splits the value of an X.509 or OCSP SCT list extension into
// its SCTs, tagging each with src. The list framing alone decides which SCTs
// there are: an SCT whose payload does not decode, such as one of a version
// other than v1, is kept with a nil Parsed and its error returned in undecoded.
// err is only set when the list itself is malformed, and then no SCTs are
// returned.
func ParseSCTList(value []byte, src policy.Source) (scts []policy.SCT, undecoded []error, err error) {
	list, err := pki.UnmarshalSCTList(value)
	if err != nil {
		return nil, nil, err
	}
	scts = make([]policy.SCT, 0, len(list))
	for i := range list {
		sct, err := decodeSCT(list[i].Val, src)
		if err != nil {
			undecoded = append(undecoded, fmt.Errorf("SCT %d kept undecoded: %s", i, err))
		}
		scts = append(scts, sct)
	}
	return scts, undecoded, nil
}

// ParseTLSSCTs decodes SCTs received in the TLS extension. crypto/tls has
// already split the list. An empty entry is dropped and an entry that fails to
// decode is kept with a nil Parsed. Either way its error is returned alongside
// the SCTs.
func ParseTLSSCTs(raw [][]byte) ([]policy.SCT, []error) {
	var (
		scts []policy.SCT
		errs []error
	)
	for i, b := range raw {
		if len(b) == 0 {
			errs = append(errs, fmt.Errorf("SCT %d ignored: empty", i))
			continue
		}
		sct, err := decodeSCT(b, policy.SourceTLSExtension)
		if err != nil {
			errs = append(errs, fmt.Errorf("SCT %d kept undecoded: %s", i, err))
		}
		scts = append(scts, sct)
	}
	return scts, errs
}

// decodeSCT returns raw as an SCT from src. If the payload does not decode
// the SCT is still returned, with a nil Parsed, along with the error.
func decodeSCT(raw []byte, src policy.Source) (policy.SCT, error) {
	sct := policy.SCT{Source: src, Raw: raw}
	parsed, err := ctx509util.ExtractSCT(&ctx509.SerializedSCT{Val: raw})
	if err != nil {
		return sct, err
	}
	sct.Parsed = parsed
	return sct, nil
}
