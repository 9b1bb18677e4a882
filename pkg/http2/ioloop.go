package http2

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/arman-bd/httpmorph/pkg/errors"
	"github.com/arman-bd/httpmorph/pkg/readiness"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"
)

// pendingResponse accumulates one in-flight concurrent stream's response as
// ioLoop dispatches frames for it. The sequential path (readResponse) needs
// none of this bookkeeping since it only ever tracks a single stream.
type pendingResponse struct {
	stream   *Stream
	response *Response
}

// ioLoop is the concurrent I/O thread for a connection driven through
// SubmitStream/QueueFrames/WaitForStream: under the session mutex, drain and
// send any queued submissions; release the mutex; wait for the socket to
// become readable (<=10ms poll, via pkg/readiness); on readable, re-acquire
// the mutex and receive exactly one frame; on ctx cancellation, connection
// close, or a fatal read error, fail every stream still waiting and return.
// The session mutex is always released before a per-stream cond signal
// fires (in completeStream), matching the sequential path's own rule that a
// stream-level wait never happens while the session mutex is held.
func (conn *Connection) ioLoop(ctx context.Context, manager *StreamManager) {
	pending := make(map[uint32]*pendingResponse)

	for {
		conn.mu.RLock()
		closed := conn.Closed
		conn.mu.RUnlock()
		if closed {
			conn.failAllPending(pending, fmt.Errorf("connection closed"))
			return
		}

		select {
		case <-ctx.Done():
			conn.failAllPending(pending, ctx.Err())
			return
		default:
		}

		conn.drainSubmissions(manager, pending)

		if err := readiness.Default.WaitReadable(ctx, conn.Conn, conn.bufReader); err != nil {
			if ctx.Err() != nil {
				conn.failAllPending(pending, ctx.Err())
				return
			}
			// Transient: conn.Conn errored on the probe itself rather than
			// timing out. Back off briefly rather than busy-looping on it.
			time.Sleep(time.Millisecond)
			continue
		}

		conn.mu.Lock()
		rawFrame, err := conn.Framer.ReadFrame()
		conn.LastActivity = time.Now()
		conn.mu.Unlock()
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			conn.failAllPending(pending, err)
			return
		}

		conn.dispatchFrame(manager, pending, rawFrame)
	}
}

// drainSubmissions sends every request currently queued on manager.submitCh
// without blocking, so one slow write never stalls frames already queued
// for other streams behind it.
func (conn *Connection) drainSubmissions(manager *StreamManager, pending map[uint32]*pendingResponse) {
	for {
		var sub *pendingSubmit
		select {
		case sub = <-manager.submitCh:
		default:
			return
		}

		pending[sub.stream.ID] = &pendingResponse{
			stream: sub.stream,
			response: &Response{
				StreamID:    sub.stream.ID,
				Headers:     make(map[string][]string),
				Frames:      []Frame{},
				HTTPVersion: "HTTP/2",
			},
		}

		conn.mu.Lock()
		var sendErr error
		for _, frame := range sub.frames {
			if sendErr = conn.writeFrameLocked(frame); sendErr != nil {
				break
			}
		}
		conn.LastActivity = time.Now()
		conn.mu.Unlock()

		if sendErr != nil {
			delete(pending, sub.stream.ID)
			completeStream(sub.stream, nil, sendErr)
		}
	}
}

// writeFrameLocked encodes and writes frame to the wire. Callers must hold
// conn.mu; factored out of Client.sendFrame so the sequential and
// concurrent send paths share one frame-encoding implementation.
func (conn *Connection) writeFrameLocked(frame Frame) error {
	switch f := frame.(type) {
	case *HeadersFrame:
		if conn.Encoder == nil {
			return fmt.Errorf("connection encoder not initialized")
		}
		conn.EncoderBuf.Reset()

		pseudoOrder := []string{":method", ":path", ":scheme", ":authority", ":status"}
		for _, name := range pseudoOrder {
			if value, ok := f.Headers[name]; ok {
				if err := conn.Encoder.WriteField(hpack.HeaderField{Name: name, Value: value}); err != nil {
					return fmt.Errorf("failed to encode pseudo-header %s: %w", name, err)
				}
			}
		}
		for name, value := range f.Headers {
			if !strings.HasPrefix(name, ":") {
				if err := conn.Encoder.WriteField(hpack.HeaderField{Name: strings.ToLower(name), Value: value}); err != nil {
					return fmt.Errorf("failed to encode header %s: %w", name, err)
				}
			}
		}

		return conn.Framer.WriteHeaders(http2.HeadersFrameParam{
			StreamID:      f.StreamId,
			BlockFragment: conn.EncoderBuf.Bytes(),
			EndStream:     f.EndStream,
			EndHeaders:    f.EndHeaders,
			Priority:      convertPriority(f.Priority),
		})

	case *DataFrame:
		return conn.Framer.WriteData(f.StreamId, f.EndStream, f.Data)

	default:
		return fmt.Errorf("unsupported frame type: %T", frame)
	}
}

// dispatchFrame routes one received frame to its pending stream, if any,
// completing and removing it from pending once its response is done.
func (conn *Connection) dispatchFrame(manager *StreamManager, pending map[uint32]*pendingResponse, rawFrame http2.Frame) {
	switch f := rawFrame.(type) {
	case *http2.HeadersFrame:
		p, ok := pending[f.StreamID]
		if !ok {
			return
		}
		converter := &Converter{encoder: conn.Encoder, decoder: conn.Decoder}
		headers, err := converter.DecodeHeaders(f.HeaderBlockFragment())
		if err != nil {
			delete(pending, f.StreamID)
			completeStream(p.stream, nil, fmt.Errorf("decoding headers: %w", err))
			return
		}
		for name, value := range headers {
			if name == ":status" {
				p.response.Status, _ = strconv.Atoi(value)
			} else if !strings.HasPrefix(name, ":") {
				p.response.Headers[name] = append(p.response.Headers[name], value)
			}
		}
		p.response.Frames = append(p.response.Frames, &HeadersFrame{
			StreamId:   f.StreamID,
			Headers:    headers,
			EndStream:  f.StreamEnded(),
			EndHeaders: f.HeadersEnded(),
		})
		if f.StreamEnded() {
			delete(pending, f.StreamID)
			completeStream(p.stream, p.response, nil)
		}

	case *http2.DataFrame:
		p, ok := pending[f.StreamID]
		if !ok {
			return
		}
		data := f.Data()
		p.response.Body = append(p.response.Body, data...)
		if len(data) > 0 {
			conn.mu.Lock()
			_ = conn.Framer.WriteWindowUpdate(f.StreamID, uint32(len(data)))
			_ = conn.Framer.WriteWindowUpdate(0, uint32(len(data)))
			conn.mu.Unlock()
		}
		p.response.Frames = append(p.response.Frames, &DataFrame{
			StreamId:  f.StreamID,
			Data:      data,
			EndStream: f.StreamEnded(),
		})
		if f.StreamEnded() {
			delete(pending, f.StreamID)
			completeStream(p.stream, p.response, nil)
		}

	case *http2.SettingsFrame:
		if !f.IsAck() {
			conn.mu.Lock()
			_ = conn.Framer.WriteSettingsAck()
			conn.mu.Unlock()
		}

	case *http2.WindowUpdateFrame:
		manager.UpdateWindowSize(f.StreamID, int32(f.Increment))

	case *http2.PingFrame:
		if !f.IsAck() {
			conn.mu.Lock()
			_ = conn.Framer.WritePing(true, f.Data)
			conn.mu.Unlock()
		}

	case *http2.GoAwayFrame:
		conn.failAllPending(pending, fmt.Errorf("server sent GOAWAY: last stream %d, error %v", f.LastStreamID, f.ErrCode))

	case *http2.RSTStreamFrame:
		if p, ok := pending[f.StreamID]; ok {
			delete(pending, f.StreamID)
			completeStream(p.stream, nil, fmt.Errorf("stream reset: error code %v", f.ErrCode))
		}
	}
}

// failAllPending completes every still-waiting stream with err. Used when
// the loop itself is ending: ctx cancellation, connection close, a read
// error, or a GOAWAY from the peer.
func (conn *Connection) failAllPending(pending map[uint32]*pendingResponse, err error) {
	for id, p := range pending {
		delete(pending, id)
		completeStream(p.stream, nil, err)
	}
}

// ConcurrentHandle identifies one in-flight request submitted through
// Client.SubmitRequest; pass it to Client.WaitForResponse to collect the
// result once it's ready.
type ConcurrentHandle struct {
	manager  *StreamManager
	streamID uint32
}

// SubmitRequest queues rawRequest for sending on the connection's concurrent
// I/O loop and returns immediately with a handle to retrieve the eventual
// response, realizing spec.md §4.6's submit_stream end to end. Multiple
// requests can be in flight on the same connection at once; each gets its
// own ConcurrentHandle and they complete independently of submission order.
func (c *Client) SubmitRequest(ctx context.Context, rawRequest []byte, host string, port int, scheme string) (*ConcurrentHandle, error) {
	conn, err := c.transport.Connect(ctx, host, port, scheme, nil)
	if err != nil {
		return nil, errors.NewConnectionError(host, port, err)
	}

	request, err := c.converter.parseHTTP11Request(rawRequest)
	if err != nil {
		return nil, errors.NewProtocolError("parsing request", err)
	}
	if scheme != "" {
		request.Scheme = scheme
	}
	if host != "" {
		request.Authority = host
	}

	conn.mu.Lock()
	if conn.concurrentManager == nil {
		conn.concurrentManager = NewConcurrentStreamManager(c.options.MaxConcurrentStreams)
	}
	manager := conn.concurrentManager
	conn.mu.Unlock()

	stream, err := manager.SubmitStream(request)
	if err != nil {
		return nil, err
	}

	frames, err := c.converter.TextToFrames(rawRequest, stream.ID)
	if err != nil {
		return nil, errors.NewProtocolError("converting to frames", err)
	}
	if err := manager.QueueFrames(stream, frames); err != nil {
		return nil, err
	}

	conn.ioLoopOnce.Do(func() {
		go conn.ioLoop(context.Background(), manager)
	})

	return &ConcurrentHandle{manager: manager, streamID: stream.ID}, nil
}

// WaitForResponse blocks until h's request completes or ctx ends, realizing
// spec.md §4.6's wait_for_stream from the client's side.
func (c *Client) WaitForResponse(ctx context.Context, h *ConcurrentHandle) (*Response, error) {
	return h.manager.WaitForStream(ctx, h.streamID)
}
