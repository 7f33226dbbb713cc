package test

import (
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/jmhodges/clock"
	"github.com/letsencrypt/ct-lite/pki"
	"golang.org/x/crypto/ocsp"
)

// ServerName is the DNS name fixture leaf certificates are issued for.
const ServerName = "ct-lite.test"

// Channels says how many SCTs a Fixture delivers through each channel.
type Channels struct {
	X509 int
	OCSP int
	TLS  int
}

// Fixture is a root CA and a leaf certificate chaining to it, along with the
// SCTs the leaf's server presents through each delivery channel.
type Fixture struct {
	Root    *x509.Certificate
	RootKey crypto.Signer
	Roots   *x509.CertPool
	Leaf    *x509.Certificate
	LeafKey crypto.Signer
	// OCSPStaple is nil if no OCSP SCTs were requested.
	OCSPStaple []byte
	// TLSSCTs holds the TLS encoded SCTs sent in the TLS extension.
	TLSSCTs [][]byte
}

// makeSCTs returns n TLS encoded SCTs from logs named after prefix.
func makeSCTs(t *testing.T, prefix string, n int, clk clock.Clock) [][]byte {
	var scts [][]byte
	for i := 0; i < n; i++ {
		sct := pki.NewSCT(fmt.Sprintf("%s log %d", prefix, i), clk.Now(), []byte{0x30, byte(i), 0x01})
		encoded, err := pki.MarshalSCTs(sct)
		if err != nil {
			t.Fatalf("Unable to marshal SCT: %s", err)
		}
		scts = append(scts, encoded...)
	}
	return scts
}

// NewFixture creates a root, and a leaf for ServerName issued by it, with SCTs
// attached as described by ch.
func NewFixture(t *testing.T, ch Channels) *Fixture {
	t.Helper()
	clk := clock.Default()

	root, rootKey, err := pki.NewRoot("ct-lite fixture root", 24*time.Hour, clk)
	if err != nil {
		t.Fatalf("Unable to create root: %s", err)
	}

	var extra []pkix.Extension
	if ch.X509 > 0 {
		ext, err := pki.SCTListExtension(pki.OIDExtensionSCTList, makeSCTs(t, "x509", ch.X509, clk))
		if err != nil {
			t.Fatalf("Unable to build SCT extension: %s", err)
		}
		extra = append(extra, ext)
	}

	template, err := pki.LeafTemplate([]string{ServerName}, clk, extra...)
	if err != nil {
		t.Fatalf("Unable to create leaf template: %s", err)
	}
	leafKey, err := pki.RandKey()
	if err != nil {
		t.Fatalf("Unable to create leaf key: %s", err)
	}
	leaf, err := pki.IssueCertificate(leafKey.Public(), rootKey, root, template)
	if err != nil {
		t.Fatalf("Unable to issue leaf: %s", err)
	}

	roots := x509.NewCertPool()
	roots.AddCert(root)

	f := &Fixture{
		Root:    root,
		RootKey: rootKey,
		Roots:   roots,
		Leaf:    leaf,
		LeafKey: leafKey,
		TLSSCTs: makeSCTs(t, "tls", ch.TLS, clk),
	}
	if ch.OCSP > 0 {
		f.OCSPStaple = Staple(t, root, rootKey, leaf, makeSCTs(t, "ocsp", ch.OCSP, clk))
	}
	return f
}

// Staple returns a good OCSP response for leaf signed by signer on behalf of
// issuer, carrying scts in the SCT list singleExtension.
func Staple(t *testing.T, issuer *x509.Certificate, signer crypto.Signer, leaf *x509.Certificate, scts [][]byte) []byte {
	t.Helper()
	var extra []pkix.Extension
	if len(scts) > 0 {
		ext, err := pki.SCTListExtension(pki.OIDOCSPExtensionSCTList, scts)
		if err != nil {
			t.Fatalf("Unable to build OCSP SCT extension: %s", err)
		}
		extra = append(extra, ext)
	}
	now := time.Now()
	resp, err := ocsp.CreateResponse(issuer, issuer, ocsp.Response{
		Status:          ocsp.Good,
		SerialNumber:    leaf.SerialNumber,
		ThisUpdate:      now.Add(-time.Hour),
		NextUpdate:      now.Add(time.Hour),
		ExtraExtensions: extra,
	}, signer)
	if err != nil {
		t.Fatalf("Unable to create OCSP response: %s", err)
	}
	return resp
}

// ConnectionState returns the tls.ConnectionState a client that verified the
// fixture's chain would see.
func (f *Fixture) ConnectionState() tls.ConnectionState {
	return tls.ConnectionState{
		Version:                     tls.VersionTLS13,
		HandshakeComplete:           true,
		ServerName:                  ServerName,
		PeerCertificates:            []*x509.Certificate{f.Leaf},
		VerifiedChains:              [][]*x509.Certificate{{f.Leaf, f.Root}},
		SignedCertificateTimestamps: f.TLSSCTs,
		OCSPResponse:                f.OCSPStaple,
	}
}

// ClientConfig returns a client tls.Config trusting only the fixture's root.
func (f *Fixture) ClientConfig() *tls.Config {
	return &tls.Config{
		RootCAs:    f.Roots,
		ServerName: ServerName,
		MinVersion: tls.VersionTLS12,
	}
}

// Serve starts a TLS server on a loopback port presenting the fixture's leaf,
// staple and TLS extension SCTs. Each accepted connection is handshaken and
// closed. The server stops when the test ends. The listening address is
// returned.
func (f *Fixture) Serve(t *testing.T) string {
	t.Helper()
	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{
		Certificates: []tls.Certificate{{
			Certificate:                 [][]byte{f.Leaf.Raw},
			PrivateKey:                  f.LeafKey,
			Leaf:                        f.Leaf,
			OCSPStaple:                  f.OCSPStaple,
			SignedCertificateTimestamps: f.TLSSCTs,
		}},
	})
	if err != nil {
		t.Fatalf("Unable to listen: %s", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				_ = c.SetDeadline(time.Now().Add(5 * time.Second))
				_ = c.(*tls.Conn).Handshake()
			}(conn)
		}
	}()
	return ln.Addr().String()
}
