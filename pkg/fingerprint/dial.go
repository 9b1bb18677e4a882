package fingerprint

import (
	"context"
	"net"

	"github.com/arman-bd/httpmorph/pkg/errors"

	utls "github.com/refraction-networking/utls"
)

// Dial wraps an already-established TCP (or proxy-tunnelled) connection in
// a uTLS client configured to send the profile's exact ClientHello, then
// runs the handshake to completion or ctx's deadline.
//
// When http2Enabled is false, "h2" is filtered out of the profile's ALPN
// list before the handshake; the caller has already decided this
// connection will speak HTTP/1.1 only.
func Dial(ctx context.Context, rawConn net.Conn, sni string, p *Profile, http2Enabled, verify bool) (*utls.UConn, error) {
	spec, err := BuildClientHelloSpec(p)
	if err != nil {
		return nil, errors.NewTLSError(sni, 0, err)
	}

	if !http2Enabled {
		filterALPN(spec, "h2")
	}

	cfg := &utls.Config{
		ServerName:         sni,
		InsecureSkipVerify: !verify,
		MinVersion:         p.MinVersion,
		MaxVersion:         p.MaxVersion,
		OmitEmptyPsk:       true,
	}

	conn := utls.UClient(rawConn, cfg, utls.HelloCustom)
	if err := conn.ApplyPreset(spec); err != nil {
		_ = conn.Close()
		return nil, errors.NewTLSError(sni, 0, err)
	}

	if err := conn.HandshakeContext(ctx); err != nil {
		_ = conn.Close()
		return nil, errors.NewTLSError(sni, 0, err)
	}

	return conn, nil
}

// filterALPN removes proto from the ALPN extension of an already-built
// ClientHelloSpec in place, used to force HTTP/1.1-only connections without
// rebuilding the whole spec.
func filterALPN(spec *utls.ClientHelloSpec, proto string) {
	for _, ext := range spec.Extensions {
		alpn, ok := ext.(*utls.ALPNExtension)
		if !ok {
			continue
		}
		kept := alpn.AlpnProtocols[:0]
		for _, p := range alpn.AlpnProtocols {
			if p != proto {
				kept = append(kept, p)
			}
		}
		alpn.AlpnProtocols = kept
	}
}
