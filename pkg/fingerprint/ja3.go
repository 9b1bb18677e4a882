package fingerprint

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// isGrease reports whether v is one of the sixteen reserved GREASE values
// (RFC 8701: 0x?a?a). Real browsers randomize which GREASE value they send
// on each connection, so every JA3 implementation strips them before
// hashing, or the fingerprint would never match twice. We do the
// same here even though our own profile carries a single fixed GREASE
// value for determinism.
func isGrease(v uint32) bool {
	return v&0x0f0f == 0x0a0a && (v>>8)&0xff == v&0xff
}

func joinDash(values []uint32) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		if isGrease(v) {
			continue
		}
		parts = append(parts, strconv.FormatUint(uint64(v), 10))
	}
	return strings.Join(parts, "-")
}

func u16s(values []uint16) []uint32 {
	out := make([]uint32, len(values))
	for i, v := range values {
		out[i] = uint32(v)
	}
	return out
}

// computeJA3 builds the five-field JA3 string from the profile's own
// ordered lists, never from a negotiated tls.ConnectionState, and
// returns the lowercase MD5 hex digest. Because every input is fixed at
// Profile construction, JA3(p) is byte-for-byte identical on every call.
func computeJA3(p *Profile) string {
	version := fmt.Sprintf("%d", p.MaxVersion)
	ciphers := joinDash(u16s(p.CipherSuites))
	extensions := joinDash(u16s(p.Extensions))

	groups := make([]uint32, len(p.SupportedGroups))
	for i, g := range p.SupportedGroups {
		groups[i] = uint32(g)
	}
	groupsStr := joinDash(groups)

	// ec_point_formats: uncompressed (0) is the only format every modelled
	// browser advertises.
	pointFormats := "0"

	fields := strings.Join([]string{version, ciphers, extensions, groupsStr, pointFormats}, ",")
	sum := md5.Sum([]byte(fields))
	return hex.EncodeToString(sum[:])
}

// computeJA4 produces a best-effort, observability-only JA4-style string.
// It is never used to shape a handshake; only JA3 is contractual.
func computeJA4(p *Profile) string {
	proto := "t" // TCP
	version := "13"
	if p.MaxVersion < 0x0304 {
		version = "12"
	}

	alpn := "00"
	if len(p.ALPN) > 0 {
		a := p.ALPN[0]
		if len(a) >= 2 {
			alpn = a[:2]
		} else {
			alpn = a
		}
	}

	nonGrease := func(values []uint32) int {
		n := 0
		for _, v := range values {
			if !isGrease(v) {
				n++
			}
		}
		return n
	}

	cipherCount := nonGrease(u16s(p.CipherSuites))
	extCount := nonGrease(u16s(p.Extensions))

	head := fmt.Sprintf("%s%s%s%02d%02d%s", proto, version, alpn, cipherCount, extCount, "00")

	cipherHash := sha256Hex12(joinDash(u16s(p.CipherSuites)))
	extHash := sha256Hex12(joinDash(u16s(p.Extensions)))

	return fmt.Sprintf("%s_%s_%s", head, cipherHash, extHash)
}
