package pki

import (
	"crypto/sha256"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"fmt"
	"time"

	ct "github.com/google/certificate-transparency-go"
	cttls "github.com/google/certificate-transparency-go/tls"
	ctx509 "github.com/google/certificate-transparency-go/x509"
)

var (
	// OIDExtensionSCTList is the X.509v3 certificate extension carrying an
	// embedded SCT list (RFC 6962 section 3.3).
	OIDExtensionSCTList = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 11129, 2, 4, 2}
	// OIDOCSPExtensionSCTList is the OCSP singleExtension carrying an SCT list
	// (RFC 6962 section 3.3).
	OIDOCSPExtensionSCTList = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 11129, 2, 4, 5}
)

// NewSCT returns a v1 SCT for a log identified by the SHA-256 hash of
// logName, timestamped at ts. The signature is random filler: nothing in this
// repository verifies it.
func NewSCT(logName string, ts time.Time, sig []byte) *ct.SignedCertificateTimestamp {
	return &ct.SignedCertificateTimestamp{
		SCTVersion: ct.V1,
		LogID:      ct.LogID{KeyID: sha256.Sum256([]byte(logName))},
		Timestamp:  uint64(ts.UnixNano() / int64(time.Millisecond)),
		Signature: ct.DigitallySigned{
			Algorithm: cttls.SignatureAndHashAlgorithm{
				Hash:      cttls.SHA256,
				Signature: cttls.ECDSA,
			},
			Signature: sig,
		},
	}
}

// MarshalSCTs TLS encodes each SCT.
func MarshalSCTs(scts ...*ct.SignedCertificateTimestamp) ([][]byte, error) {
	out := make([][]byte, 0, len(scts))
	for _, sct := range scts {
		b, err := cttls.Marshal(*sct)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// MarshalSCTList encodes TLS encoded SCTs as the DER OCTET STRING wrapped
// SignedCertificateTimestampList used as the value of both the X.509 and the
// OCSP SCT list extensions.
func MarshalSCTList(scts [][]byte) ([]byte, error) {
	var list ctx509.SignedCertificateTimestampList
	for _, sct := range scts {
		list.SCTList = append(list.SCTList, ctx509.SerializedSCT{Val: sct})
	}
	tlsBytes, err := cttls.Marshal(list)
	if err != nil {
		return nil, err
	}
	return asn1.Marshal(tlsBytes)
}

// SCTListExtension returns a non-critical extension with the given id holding
// the encoded SCT list.
func SCTListExtension(id asn1.ObjectIdentifier, scts [][]byte) (pkix.Extension, error) {
	value, err := MarshalSCTList(scts)
	if err != nil {
		return pkix.Extension{}, err
	}
	return pkix.Extension{Id: id, Value: value}, nil
}

// UnmarshalSCTList decodes the value of an SCT list extension into its
// individual TLS encoded SCTs.
func UnmarshalSCTList(value []byte) ([]ctx509.SerializedSCT, error) {
	var tlsBytes []byte
	rest, err := asn1.Unmarshal(value, &tlsBytes)
	if err != nil {
		return nil, fmt.Errorf("decoding SCT list OCTET STRING: %w", err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%d trailing bytes after SCT list OCTET STRING", len(rest))
	}

	var list ctx509.SignedCertificateTimestampList
	rest, err = cttls.Unmarshal(tlsBytes, &list)
	if err != nil {
		return nil, fmt.Errorf("decoding SCT list: %w", err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%d trailing bytes after SCT list", len(rest))
	}
	if len(list.SCTList) == 0 {
		return nil, errors.New("SCT list is empty")
	}
	return list.SCTList, nil
}
