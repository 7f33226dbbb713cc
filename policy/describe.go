package policy

import (
	"fmt"
	"strings"
	"time"

	ct "github.com/google/certificate-transparency-go"
)

// Describe returns a multi-line human readable dump of an SCT. If the SCT
// payload was not parsed only the raw bytes are shown.
func Describe(sct SCT) string {
	var b strings.Builder
	b.WriteString("Signed Certificate Timestamp:\n")
	fmt.Fprintf(&b, "    Source    : %s\n", sct.Source)

	s := sct.Parsed
	if s == nil {
		fmt.Fprintf(&b, "    Raw       : %s", hexBlock(sct.Raw))
		return b.String()
	}

	fmt.Fprintf(&b, "    Version   : %v (0x%x)\n", s.SCTVersion, int(s.SCTVersion))
	fmt.Fprintf(&b, "    Log ID    : %s\n", colonHex(s.LogID.KeyID[:]))
	fmt.Fprintf(&b, "    Timestamp : %s (%d)\n",
		ct.TimestampToTime(s.Timestamp).UTC().Format(time.RFC3339Nano), s.Timestamp)
	if len(s.Extensions) == 0 {
		b.WriteString("    Extensions: none\n")
	} else {
		fmt.Fprintf(&b, "    Extensions: %s\n", hexBlock(s.Extensions))
	}
	fmt.Fprintf(&b, "    Signature : %v-with-%v\n", s.Signature.Algorithm.Signature, s.Signature.Algorithm.Hash)
	fmt.Fprintf(&b, "                %s", hexBlock(s.Signature.Signature))
	return b.String()
}

// colonHex formats b as upper case hex bytes separated by colons.
func colonHex(b []byte) string {
	parts := make([]string, len(b))
	for i, c := range b {
		parts[i] = fmt.Sprintf("%02X", c)
	}
	return strings.Join(parts, ":")
}

// hexBlock formats b as colon separated hex, 16 bytes per line.
func hexBlock(b []byte) string {
	if len(b) == 0 {
		return "(empty)"
	}
	var lines []string
	for len(b) > 16 {
		lines = append(lines, colonHex(b[:16]))
		b = b[16:]
	}
	lines = append(lines, colonHex(b))
	return strings.Join(lines, "\n                ")
}
