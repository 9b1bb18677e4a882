package http2

import "testing"

func TestConnectionNotPoolableWithoutSessionManager(t *testing.T) {
	conn := &Connection{Ready: true}

	if conn.hasSessionManager() {
		t.Fatal("fresh connection should report no session manager")
	}
	if conn.poolable() {
		t.Fatal("a connection with no session manager must not be poolable")
	}
}

func TestConnectionPoolableOnceSessionManagerAttached(t *testing.T) {
	conn := &Connection{Ready: true}
	conn.concurrentManager = NewConcurrentStreamManager(10)

	if !conn.hasSessionManager() {
		t.Fatal("expected hasSessionManager to be true once concurrentManager is set")
	}
	if !conn.poolable() {
		t.Fatal("a ready, open connection with a session manager should be poolable")
	}
}

func TestConnectionNotPoolableWhenClosed(t *testing.T) {
	conn := &Connection{Ready: true, Closed: true}
	conn.concurrentManager = NewConcurrentStreamManager(10)

	if conn.poolable() {
		t.Fatal("a closed connection must not be poolable even with a session manager")
	}
}
