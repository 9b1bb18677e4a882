// Package fingerprint shapes TLS ClientHellos to match a named browser
// build and computes the resulting JA3 fingerprint. Go's stock crypto/tls
// cannot order cipher suites or extensions, nor emit GREASE values, so this
// package drives the handshake through uTLS instead.
package fingerprint

import (
	utls "github.com/refraction-networking/utls"
)

// Profile is an immutable description of one browser's TLS+HTTP/2 shape.
// Every ordered field is copied at construction time and never exposed for
// in-place mutation; callers receive the same *Profile value back from the
// constructor functions below, which is safe because nothing in this
// package ever writes to a Profile after NewProfile returns.
type Profile struct {
	Name        string
	MinVersion  uint16
	MaxVersion  uint16

	// CipherSuites preserves the profile's verbatim cipher order, TLS 1.3
	// and TLS 1.2 suites intermixed exactly as the browser sends them.
	CipherSuites []uint16

	// Extensions is the ordered list of extension IDs this profile sends.
	// It holds no GREASE entries; BuildClientHelloSpec adds the leading and
	// trailing GREASE extensions when GREASE is set.
	Extensions []uint16

	// SupportedGroups is the ordered named-group (curve) list, including
	// the X25519MLKEM768 hybrid post-quantum group for modern Chrome.
	SupportedGroups []utls.CurveID

	SignatureAlgorithms []utls.SignatureScheme
	ALPN                []string

	GREASE       bool
	greaseValue  uint16 // fixed per profile so JA3 stays deterministic

	HTTP2Settings []HTTP2Setting

	// ja3 is computed once at construction and never recomputed, which is
	// what makes JA3(p) == JA3(p) trivially byte-for-byte.
	ja3 string
	ja4 string
}

// HTTP2Setting is a single ordered SETTINGS parameter a profile advertises.
type HTTP2Setting struct {
	ID    uint16
	Value uint32
}

// JA3 returns the profile's precomputed JA3 hex digest.
func (p *Profile) JA3() string { return p.ja3 }

// JA4 returns a best-effort JA4-style fingerprint for observability. It is
// never consulted for handshake shaping; JA3 is the contractual fingerprint.
func (p *Profile) JA4() string { return p.ja4 }

// newProfile builds a Profile, copying every slice argument so the caller's
// backing arrays can never alias (and therefore never mutate) the stored
// profile, then precomputes JA3/JA4.
func newProfile(name string, minV, maxV uint16, ciphers, exts []uint16, groups []utls.CurveID, sigAlgs []utls.SignatureScheme, alpn []string, grease bool, greaseValue uint16, h2settings []HTTP2Setting) *Profile {
	p := &Profile{
		Name:                name,
		MinVersion:          minV,
		MaxVersion:          maxV,
		CipherSuites:        append([]uint16(nil), ciphers...),
		Extensions:          append([]uint16(nil), exts...),
		SupportedGroups:     append([]utls.CurveID(nil), groups...),
		SignatureAlgorithms: append([]utls.SignatureScheme(nil), sigAlgs...),
		ALPN:                append([]string(nil), alpn...),
		GREASE:              grease,
		greaseValue:         greaseValue,
		HTTP2Settings:       append([]HTTP2Setting(nil), h2settings...),
	}
	p.ja3 = computeJA3(p)
	p.ja4 = computeJA4(p)
	return p
}
