package pki

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"math"
	"math/big"
	"time"

	"github.com/jmhodges/clock"
)

var (
	ErrNilSubjectKey = errors.New("cannot IssueCertificate with nil subjectKey")
	ErrNilIssuerKey  = errors.New("cannot IssueCertificate with nil issuerKey")
	ErrNilIssuerCert = errors.New("cannot IssueCertificate with nil issuerCert")
	ErrNilTemplate   = errors.New("cannot IssueCertificate with nil template")
)

// RandSerial generates a random *bigInt to use as a certificate serial or
// returns an error.
func RandSerial() (*big.Int, error) {
	serial, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	if err != nil {
		return nil, err
	}
	return serial, nil
}

// RandKey generates a random ECDSA private key or returns an error.
func RandKey() (*ecdsa.PrivateKey, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return key, nil
}

// IssueCertificate uses the provided issuerKey and issuerCert to issue a new
// X509 Certificate with the provided subjectKey based on the provided template.
func IssueCertificate(
	subjectKey crypto.PublicKey,
	issuerKey crypto.Signer,
	issuerCert, template *x509.Certificate) (*x509.Certificate, error) {
	if subjectKey == nil {
		return nil, ErrNilSubjectKey
	}
	if issuerKey == nil {
		return nil, ErrNilIssuerKey
	}
	if issuerCert == nil {
		return nil, ErrNilIssuerCert
	}
	if template == nil {
		return nil, ErrNilTemplate
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, issuerCert, subjectKey, issuerKey)
	if err != nil {
		return nil, err
	}

	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, err
	}
	return cert, nil
}

// NewRoot creates a self-signed root CA certificate valid from clk.Now() for
// the given duration.
func NewRoot(commonName string, validity time.Duration, clk clock.Clock) (*x509.Certificate, *ecdsa.PrivateKey, error) {
	key, err := RandKey()
	if err != nil {
		return nil, nil, err
	}
	serial, err := RandSerial()
	if err != nil {
		return nil, nil, err
	}
	template := &x509.Certificate{
		Subject:               pkix.Name{CommonName: commonName},
		SerialNumber:          serial,
		NotBefore:             clk.Now().Add(-time.Hour),
		NotAfter:              clk.Now().Add(validity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	cert, err := IssueCertificate(key.Public(), key, template, template)
	if err != nil {
		return nil, nil, err
	}
	return cert, key, nil
}

// LeafTemplate returns a template for a server certificate for the given DNS
// names, valid from clk.Now() for 90 days. Extra extensions (for example an
// embedded SCT list) are copied into the issued certificate.
func LeafTemplate(names []string, clk clock.Clock, extra ...pkix.Extension) (*x509.Certificate, error) {
	if len(names) == 0 {
		return nil, errors.New("at least one DNS name is required")
	}
	serial, err := RandSerial()
	if err != nil {
		return nil, err
	}
	return &x509.Certificate{
		Subject:               pkix.Name{CommonName: names[0]},
		DNSNames:              names,
		SerialNumber:          serial,
		NotBefore:             clk.Now().Add(-time.Hour),
		NotAfter:              clk.Now().AddDate(0, 0, 90),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  false,
		ExtraExtensions:       extra,
	}, nil
}
