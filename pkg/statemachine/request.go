package statemachine

import (
	"net"
	"time"

	"github.com/arman-bd/httpmorph/pkg/fingerprint"
	"github.com/arman-bd/httpmorph/pkg/timing"
)

// ProxyConfig describes an HTTP CONNECT proxy with optional Basic auth.
// Only HTTP CONNECT + Basic auth is modelled here, per spec.md §1's
// non-goal of "full proxy protocols other than HTTP CONNECT + Basic
// auth"; SOCKS4/5 tunneling remains the connection pool's concern
// (pkg/transport), not the state machine's.
type ProxyConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	TLS      bool // marks a proxy that requires TLS; Machine does not read it and always sends CONNECT in plaintext
}

// RequestSpec is the immutable input to a Machine: everything the state
// machine needs to drive one request from DNS through body receipt.
type RequestSpec struct {
	Method string
	Host   string
	Port   int
	Path   string // path+query; buildRequestBytes turns it into an absolute-form URI when routed via a plaintext proxy
	UseTLS bool

	Headers [][2]string
	Body    []byte

	Profile      *fingerprint.Profile
	HTTP2Enabled bool
	VerifySSL    bool

	Proxy *ProxyConfig

	Deadline time.Time

	// Conn, when non-nil, is an already-established (possibly pooled and
	// already-TLS-terminated) connection; supplying it skips DNS_LOOKUP,
	// CONNECTING, PROXY_CONNECT, and TLS_HANDSHAKE entirely and starts the
	// machine directly at SENDING, matching spec.md §2's "on hit, it
	// skips TCP+TLS" data-flow description.
	Conn net.Conn
}

// Result is the state machine's output, independent of pkg/client's
// Response type. pkg/client does not use this package, and nothing in the
// module converts a Result into a client.Response.
type Result struct {
	StatusCode  int
	StatusText  string
	HTTPVersion string
	Headers     [][2]string
	Body        []byte

	NegotiatedProtocol string // ALPN result: "h2" or "http/1.1" or ""
	WillClose          bool   // true if the connection must not be pooled

	Metrics timing.Metrics

	// Conn is handed back so the caller (pool-aware orchestrator) can
	// decide whether to return it to the pool or close it.
	Conn net.Conn
}
