package pki

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io/ioutil"
)

// LoadCertificate returns the *x509.Certificate loaded from the PEM encoded
// certificate in the provided file, or returns an error.
func LoadCertificate(file string) (*x509.Certificate, error) {
	if pemBytes, err := ioutil.ReadFile(file); err != nil {
		return nil, err
	} else if certBlock, rest := pem.Decode(pemBytes); len(rest) != 0 {
		return nil, fmt.Errorf("%q contained %d extra bytes after PEM decoding",
			file, len(rest))
	} else if certBlock == nil {
		return nil, fmt.Errorf("%q contained no PEM blocks", file)
	} else if certBlock.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("%q contained a PEM block with type %q, not CERTIFICATE", file, certBlock.Type)
	} else if cert, err := x509.ParseCertificate(certBlock.Bytes); err != nil {
		return nil, err
	} else {
		return cert, nil
	}
}

// LoadCertPool returns a *x509.CertPool holding every certificate in the PEM
// bundle stored in the provided file. Blocks that are not CERTIFICATEs, or
// that fail to parse, are an error, as is a bundle with no certificates.
func LoadCertPool(file string) (*x509.CertPool, error) {
	pemBytes, err := ioutil.ReadFile(file)
	if err != nil {
		return nil, err
	}

	pool := x509.NewCertPool()
	count := 0
	for {
		var block *pem.Block
		block, pemBytes = pem.Decode(pemBytes)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			return nil, fmt.Errorf("%q contained a PEM block with type %q, not CERTIFICATE", file, block.Type)
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%q certificate %d: %s", file, count, err)
		}
		pool.AddCert(cert)
		count++
	}
	if count == 0 {
		return nil, fmt.Errorf("%q contained no PEM certificates", file)
	}
	return pool, nil
}

// EncodeCertificates returns the PEM encoding of the given certificates.
func EncodeCertificates(certs ...*x509.Certificate) []byte {
	var out []byte
	for _, c := range certs {
		out = append(out, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: c.Raw})...)
	}
	return out
}
