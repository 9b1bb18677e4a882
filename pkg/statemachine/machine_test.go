package statemachine

import (
	"bufio"
	"context"
	"net"
	"net/textproto"
	"testing"
	"time"

	"github.com/arman-bd/httpmorph/pkg/dnscache"
)

func runToCompletion(t *testing.T, m *Machine) Progress {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for i := 0; i < 10000; i++ {
		p := m.Step(ctx)
		switch p.Kind {
		case ProgressDone, ProgressFailed:
			return p
		case ProgressPending:
			time.Sleep(time.Millisecond)
		}
	}
	t.Fatal("machine did not reach completion within step budget")
	return Progress{}
}

func consumeRequestLine(t *testing.T, server net.Conn) {
	t.Helper()
	r := textproto.NewReader(bufio.NewReader(server))
	if _, err := r.ReadLine(); err != nil {
		t.Fatalf("reading request line: %v", err)
	}
	if _, err := r.ReadMIMEHeader(); err != nil {
		t.Fatalf("reading request headers: %v", err)
	}
}

func TestMachineFixedLengthBody(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		consumeRequestLine(t, server)
		server.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello"))
	}()

	spec := RequestSpec{
		Method: "GET",
		Host:   "example.test",
		Port:   80,
		Path:   "/",
		Conn:   client,
	}
	m := New(spec, dnscache.New(time.Minute, 16))

	p := runToCompletion(t, m)
	<-done

	if p.Kind != ProgressDone {
		t.Fatalf("expected ProgressDone, got kind=%v err=%v", p.Kind, p.Err)
	}
	if p.Response.StatusCode != 200 {
		t.Fatalf("expected status 200, got %d", p.Response.StatusCode)
	}
	if string(p.Response.Body) != "hello" {
		t.Fatalf("expected body %q, got %q", "hello", p.Response.Body)
	}
}

func TestMachineChunkedBody(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		consumeRequestLine(t, server)
		server.Write([]byte(
			"HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n" +
				"5\r\nhello\r\n" +
				"6\r\n world\r\n" +
				"0\r\n\r\n"))
	}()

	spec := RequestSpec{
		Method: "GET",
		Host:   "example.test",
		Port:   80,
		Path:   "/",
		Conn:   client,
	}
	m := New(spec, dnscache.New(time.Minute, 16))

	p := runToCompletion(t, m)
	<-done

	if p.Kind != ProgressDone {
		t.Fatalf("expected ProgressDone, got kind=%v err=%v", p.Kind, p.Err)
	}
	if string(p.Response.Body) != "hello world" {
		t.Fatalf("expected body %q, got %q", "hello world", p.Response.Body)
	}
}

func TestMachineConnectionCloseBody(t *testing.T) {
	server, client := net.Pipe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		consumeRequestLine(t, server)
		server.Write([]byte("HTTP/1.1 200 OK\r\nConnection: close\r\n\r\nno length here"))
		server.Close()
	}()

	spec := RequestSpec{
		Method: "GET",
		Host:   "example.test",
		Port:   80,
		Path:   "/",
		Conn:   client,
	}
	m := New(spec, dnscache.New(time.Minute, 16))

	p := runToCompletion(t, m)
	<-done

	if p.Kind != ProgressDone {
		t.Fatalf("expected ProgressDone, got kind=%v err=%v", p.Kind, p.Err)
	}
	if string(p.Response.Body) != "no length here" {
		t.Fatalf("expected body %q, got %q", "no length here", p.Response.Body)
	}
	if !p.Response.WillClose {
		t.Fatalf("expected WillClose to be true for a connection-close body")
	}
}

func TestMachineHeadRequestHasNoBody(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		consumeRequestLine(t, server)
		server.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 100\r\n\r\n"))
	}()

	spec := RequestSpec{
		Method: "HEAD",
		Host:   "example.test",
		Port:   80,
		Path:   "/",
		Conn:   client,
	}
	m := New(spec, dnscache.New(time.Minute, 16))

	p := runToCompletion(t, m)
	<-done

	if p.Kind != ProgressDone {
		t.Fatalf("expected ProgressDone, got kind=%v err=%v", p.Kind, p.Err)
	}
	if len(p.Response.Body) != 0 {
		t.Fatalf("expected empty body for HEAD, got %q", p.Response.Body)
	}
}
