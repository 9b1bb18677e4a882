// Package statemachine drives one HTTP request through DNS resolution,
// connect, optional proxy CONNECT, TLS handshake, send, and receive without
// blocking the caller's goroutine across a suspension point it cannot
// resume from; each Step call returns a Progress describing what to wait
// for next.
//
// Go's DialContext/HandshakeContext already multiplex blocking socket
// operations onto the runtime's netpoller rather than parking an OS
// thread, so CONNECTING, PROXY_CONNECT, and TLS_HANDSHAKE run to
// completion inside a single Step call here; they are still suspension
// points in the sense that ctx cancellation aborts them, just not ones
// this package re-enters across calls. SENDING and RECEIVING_* remain
// genuinely re-entrant: partial writes and partial reads return Pending
// and preserve their cursor for the next Step call, matching spec.md
// §4.3's three I/O-looping states.
package statemachine

import "fmt"

// State is one position in the request lifecycle.
type State int

const (
	StateInit State = iota
	StateDNSLookup
	StateConnecting
	StateProxyConnect
	StateTLSHandshake
	StateSending
	StateReceivingHeaders
	StateReceivingBody
	StateComplete
	StateError
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateDNSLookup:
		return "DNS_LOOKUP"
	case StateConnecting:
		return "CONNECTING"
	case StateProxyConnect:
		return "PROXY_CONNECT"
	case StateTLSHandshake:
		return "TLS_HANDSHAKE"
	case StateSending:
		return "SENDING"
	case StateReceivingHeaders:
		return "RECEIVING_HEADERS"
	case StateReceivingBody:
		return "RECEIVING_BODY"
	case StateComplete:
		return "COMPLETE"
	case StateError:
		return "ERROR"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ProgressKind discriminates which field of a Progress is populated.
type ProgressKind int

const (
	// ProgressPending means the machine needs the caller to wait for
	// readiness before calling Step again.
	ProgressPending ProgressKind = iota
	// ProgressDone means the request completed; Response is populated.
	ProgressDone
	// ProgressFailed means the request entered ERROR; Err is populated.
	ProgressFailed
)

// ReadinessSet tells the caller which direction(s) to wait for readiness
// on before the next Step call is worth making.
type ReadinessSet struct {
	Read  bool
	Write bool
}

// Progress is the Go realization of spec.md §9's prescribed
// "Pending(ReadySet) | Done(Response) | Failed(Error)" sum type. Only the
// field matching Kind is meaningful.
type Progress struct {
	Kind     ProgressKind
	Ready    ReadinessSet
	Response *Result
	Err      error
}
