package fingerprint

import (
	"fmt"

	utls "github.com/refraction-networking/utls"
)

// BuildClientHelloSpec translates a Profile into an ordered uTLS
// ClientHelloSpec. Extension order here is the ordering that actually
// reaches the wire; Profile.Extensions is the declarative list used for
// JA3, and the two are kept in lockstep by construction (see profiles.go).
func BuildClientHelloSpec(p *Profile) (*utls.ClientHelloSpec, error) {
	if p == nil {
		return nil, fmt.Errorf("fingerprint: nil profile")
	}

	extensions := make([]utls.TLSExtension, 0, len(p.Extensions)+2)

	greaseExtension := func() utls.TLSExtension { return &utls.UtlsGREASEExtension{} }
	greaseCipher := func() uint16 {
		if p.GREASE {
			return p.greaseValue
		}
		return 0
	}

	// Leading GREASE cipher/extension slots, mirroring modern Chrome's
	// placement of a GREASE cipher first in the suite list and a GREASE
	// extension first in the extension list.
	ciphers := make([]uint16, 0, len(p.CipherSuites)+1)
	if p.GREASE {
		ciphers = append(ciphers, greaseCipher())
	}
	ciphers = append(ciphers, p.CipherSuites...)

	if p.GREASE {
		extensions = append(extensions, greaseExtension())
	}

	for _, id := range p.Extensions {
		ext, err := buildExtension(id, p)
		if err != nil {
			return nil, fmt.Errorf("fingerprint: extension 0x%04x: %w", id, err)
		}
		if ext != nil {
			extensions = append(extensions, ext)
		}
	}

	if p.GREASE {
		// Chrome also appends a trailing GREASE extension after the last
		// profile extension.
		extensions = append(extensions, greaseExtension())
	}

	spec := &utls.ClientHelloSpec{
		CipherSuites:       ciphers,
		CompressionMethods: []byte{0x00},
		Extensions:         extensions,
		TLSVersMin:         p.MinVersion,
		TLSVersMax:         p.MaxVersion,
	}

	return spec, nil
}

// buildExtension constructs the uTLS extension object for one profile
// extension ID. Ordering of this switch mirrors the extension IDs named in
// spec.md's browser-profile field list and the pack's uTLS dialer examples
// (server_name, ec_point_formats, supported_groups, session_ticket, ALPN,
// encrypt_then_mac, extended_master_secret, signature_algorithms,
// certificate_compression, signed_certificate_timestamp,
// supported_versions, psk_key_exchange_modes, key_share, padding,
// application_settings).
func buildExtension(id uint16, p *Profile) (utls.TLSExtension, error) {
	switch id {
	case 0: // server_name (SNI); ServerName is filled in by UClient at dial time.
		return &utls.SNIExtension{}, nil
	case 5: // status_request (OCSP stapling)
		return &utls.StatusRequestExtension{}, nil
	case 10: // supported_groups
		return &utls.SupportedCurvesExtension{Curves: append([]utls.CurveID(nil), p.SupportedGroups...)}, nil
	case 11: // ec_point_formats
		return &utls.SupportedPointsExtension{SupportedPoints: []byte{0x00}}, nil
	case 13: // signature_algorithms
		return &utls.SignatureAlgorithmsExtension{SupportedSignatureAlgorithms: append([]utls.SignatureScheme(nil), p.SignatureAlgorithms...)}, nil
	case 16: // application_layer_protocol_negotiation
		return &utls.ALPNExtension{AlpnProtocols: append([]string(nil), p.ALPN...)}, nil
	case 18: // signed_certificate_timestamp
		return &utls.SCTExtension{}, nil
	case 21: // padding
		return &utls.UtlsPaddingExtension{GetPaddingLen: utls.BoringPaddingStyle}, nil
	case 22: // encrypt_then_mac; advertised only, no MAC renegotiation performed here
		return &utls.GenericExtension{Id: 22}, nil
	case 23: // extended_master_secret
		return &utls.ExtendedMasterSecretExtension{}, nil
	case 27: // compress_certificate; advertised only, no decompressor needed
		// since the stack never receives a compressed certificate it must
		// itself decode (verification still runs on the plain certificate
		// chain uTLS parses). Offering brotli and zlib matches §4.1's
		// "stub decompressor is acceptable since we only need to advertise".
		return &utls.FakeCertCompressionAlgsExtension{
			Methods: []utls.CertCompressionAlgo{utls.CertCompressionBrotli, utls.CertCompressionZlib},
		}, nil
	case 35: // session_ticket
		return &utls.SessionTicketExtension{}, nil
	case 43: // supported_versions
		return &utls.SupportedVersionsExtension{Versions: supportedVersionsList(p)}, nil
	case 45: // psk_key_exchange_modes
		return &utls.PSKKeyExchangeModesExtension{Modes: []uint8{utls.PskModeDHE}}, nil
	case 51: // key_share
		return &utls.KeyShareExtension{KeyShares: keyShareList(p)}, nil
	case 17513: // application_settings (ALPS); empty settings blob per profile ALPN entry
		return &utls.ApplicationSettingsExtension{SupportedProtocols: append([]string(nil), p.ALPN...)}, nil
	default:
		return &utls.GenericExtension{Id: id}, nil
	}
}

func supportedVersionsList(p *Profile) []uint16 {
	versions := make([]uint16, 0, 4)
	if p.GREASE {
		versions = append(versions, 0x0a0a)
	}
	for v := p.MaxVersion; v >= p.MinVersion; v-- {
		// Only emit real TLS version constants, not every integer between
		// min/max; real profiles only ever span TLS 1.2 and TLS 1.3.
		if v == utls.VersionTLS13 || v == utls.VersionTLS12 {
			versions = append(versions, v)
		}
	}
	return versions
}

func keyShareList(p *Profile) []utls.KeyShare {
	shares := make([]utls.KeyShare, 0, len(p.SupportedGroups))
	if p.GREASE {
		shares = append(shares, utls.KeyShare{Group: utls.CurveID(p.greaseValue), Data: []byte{0}})
	}
	// Only offer concrete key shares for the first two (most preferred)
	// groups; the rest are advertised in supported_groups only, matching the
	// "key share for top choice(s) only" shape modern Chrome sends.
	for i, g := range p.SupportedGroups {
		if i > 1 {
			break
		}
		shares = append(shares, utls.KeyShare{Group: g})
	}
	return shares
}
