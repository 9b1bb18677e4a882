package fingerprint

import (
	"fmt"
	"sync"

	utls "github.com/refraction-networking/utls"
)

// greaseCipher is the fixed GREASE value this package uses across every
// profile. Real browsers pick one of the sixteen 0x?a?a values at random
// per connection; a single fixed value is used here so JA3 stays
// deterministic per spec.md's testable property.
const greaseCipher = 0x0a0a

// chromiumExtensions is the extension order shared by every Chromium-based
// profile (Chrome, Edge), per spec.md §3's browser-profile field list.
var chromiumExtensions = []uint16{0, 5, 10, 11, 13, 16, 18, 21, 23, 27, 35, 43, 45, 51, 17513}

var chromiumGroups = []utls.CurveID{
	utls.CurveID(0x11ec), // X25519MLKEM768 hybrid post-quantum
	utls.X25519,
	utls.CurveP256,
	utls.CurveP384,
	utls.CurveP521,
}

var chromiumSigAlgs = []utls.SignatureScheme{
	utls.ECDSAWithP256AndSHA256,
	utls.PSSWithSHA256,
	utls.PKCS1WithSHA256,
	utls.ECDSAWithP384AndSHA384,
	utls.PSSWithSHA384,
	utls.PKCS1WithSHA384,
	utls.PSSWithSHA512,
	utls.PKCS1WithSHA512,
}

var chromiumCiphers = []uint16{
	4865, 4866, 4867, // TLS 1.3
	49195, 49199, 49196, 49200, 52393, 52392, // ECDHE
	49171, 49172, // ECDHE-RSA/ECDSA AES-CBC
	156, 157, 47, 53, // RSA fallback
}

var chromiumALPN = []string{"h2", "http/1.1"}

var chromiumHTTP2Settings = []HTTP2Setting{
	{ID: 1, Value: 65536},   // HEADER_TABLE_SIZE
	{ID: 2, Value: 0},       // ENABLE_PUSH
	{ID: 3, Value: 1000},    // MAX_CONCURRENT_STREAMS
	{ID: 4, Value: 6291456}, // INITIAL_WINDOW_SIZE
	{ID: 6, Value: 262144},  // MAX_HEADER_LIST_SIZE
}

// Chrome131 returns the browser profile for Chrome 131, the newest
// Chromium build in spec.md §6's minimum profile set; it carries the
// X25519MLKEM768 hybrid group via chromiumGroups.
func Chrome131() *Profile {
	return newProfile("chrome-131", utls.VersionTLS12, utls.VersionTLS13,
		chromiumCiphers, chromiumExtensions, chromiumGroups, chromiumSigAlgs,
		chromiumALPN, true, greaseCipher, chromiumHTTP2Settings)
}

// Chrome124 returns the browser profile for Chrome 124, predating the
// hybrid post-quantum key-share rollout.
func Chrome124() *Profile {
	groups := []utls.CurveID{utls.X25519, utls.CurveP256, utls.CurveP384, utls.CurveP521}
	return newProfile("chrome-124", utls.VersionTLS12, utls.VersionTLS13,
		chromiumCiphers, chromiumExtensions, groups, chromiumSigAlgs,
		chromiumALPN, true, greaseCipher, chromiumHTTP2Settings)
}

// Edge122 returns the browser profile for Edge 122 (Chromium-based; same
// TLS shape as Chrome, distinguished only by name/UA at the HTTP layer).
func Edge122() *Profile {
	return newProfile("edge-122", utls.VersionTLS12, utls.VersionTLS13,
		chromiumCiphers, chromiumExtensions, chromiumGroups, chromiumSigAlgs,
		chromiumALPN, true, greaseCipher, chromiumHTTP2Settings)
}

// Firefox122 returns the browser profile for Firefox 122. Firefox does not
// send GREASE values and orders its extensions and cipher suites
// differently from Chromium.
func Firefox122() *Profile {
	ciphers := []uint16{
		4865, 4866, 4867,
		49196, 49195, 49200, 49199, 52393, 52392,
		10,
	}
	extensions := []uint16{0, 23, 65281, 10, 11, 16, 5, 34, 51, 43, 13, 45, 28, 65037}
	groups := []utls.CurveID{utls.X25519, utls.CurveP256, utls.CurveP384, utls.CurveP521}
	sigAlgs := []utls.SignatureScheme{
		utls.ECDSAWithP256AndSHA256,
		utls.ECDSAWithP384AndSHA384,
		utls.ECDSAWithP521AndSHA512,
		utls.PSSWithSHA256,
		utls.PSSWithSHA384,
		utls.PSSWithSHA512,
		utls.PKCS1WithSHA256,
		utls.PKCS1WithSHA384,
		utls.PKCS1WithSHA512,
	}
	return newProfile("firefox-122", utls.VersionTLS12, utls.VersionTLS13,
		ciphers, extensions, groups, sigAlgs, []string{"h2", "http/1.1"},
		false, 0, nil)
}

// Safari17 returns the browser profile for Safari 17 (macOS/iOS). Safari's
// cipher list keeps RSA suites closer to the front than Chromium does.
func Safari17() *Profile {
	ciphers := []uint16{
		4865, 4866, 4867,
		49196, 49195, 52393, 49200, 49199, 52392,
		49162, 49161, 49172, 49171, 157, 156, 61, 60, 53, 47, 10,
	}
	extensions := []uint16{0, 23, 65281, 10, 11, 16, 5, 13, 18, 51, 45, 43, 27, 21}
	groups := []utls.CurveID{utls.X25519, utls.CurveP256, utls.CurveP384, utls.CurveP521}
	sigAlgs := []utls.SignatureScheme{
		utls.ECDSAWithP256AndSHA256,
		utls.PSSWithSHA256,
		utls.PKCS1WithSHA256,
		utls.ECDSAWithP384AndSHA384,
		utls.ECDSAWithP521AndSHA512,
		utls.PSSWithSHA384,
		utls.PKCS1WithSHA384,
		utls.PSSWithSHA512,
		utls.PKCS1WithSHA512,
	}
	return newProfile("safari-17", utls.VersionTLS12, utls.VersionTLS13,
		ciphers, extensions, groups, sigAlgs, []string{"h2", "http/1.1"},
		false, 0, nil)
}

var (
	registryOnce sync.Once
	registry     map[string]*Profile
)

func defaultRegistry() map[string]*Profile {
	registryOnce.Do(func() {
		registry = map[string]*Profile{
			"chrome-131":  Chrome131(),
			"chrome-124":  Chrome124(),
			"firefox-122": Firefox122(),
			"safari-17":   Safari17(),
			"edge-122":    Edge122(),
		}
	})
	return registry
}

// GetProfile looks up a built-in browser profile by name.
func GetProfile(name string) (*Profile, error) {
	p, ok := defaultRegistry()[name]
	if !ok {
		return nil, fmt.Errorf("fingerprint: unknown profile %q", name)
	}
	return p, nil
}

// ListProfiles returns the names of every built-in browser profile.
func ListProfiles() []string {
	reg := defaultRegistry()
	names := make([]string, 0, len(reg))
	for name := range reg {
		names = append(names, name)
	}
	return names
}
