package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Frame is a single websocket message.
type Frame struct {
	Type int
	Data []byte
}

// FrameWriter sends frames to the peer.
type FrameWriter interface {
	Write(frame Frame) error
	Close(code int) error
}

// Forwarder owns a websocket connection and pumps frames between the
// socket and in-process channels. Pings are answered by the websocket
// library; close frames and transport errors are surfaced through
// CloseErr once the inbound channel closes. When either direction fails
// the whole forwarder tears down.
type Forwarder struct {
	conn *websocket.Conn

	inbound  chan Frame
	outbound chan Frame

	done      chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	closeErr error

	// serializes writes to the socket
	wsMutex sync.Mutex

	log zerolog.Logger
}

// ConnectForwarder dials the gateway and starts both pumps.
func ConnectForwarder(ctx context.Context, url string, log zerolog.Logger) (*Forwarder, error) {
	header := http.Header{}
	header.Add("accept-encoding", "zlib")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnecting, err)
	}

	f := &Forwarder{
		conn:     conn,
		inbound:  make(chan Frame, BufferSize),
		outbound: make(chan Frame, BufferSize),
		done:     make(chan struct{}),
		log:      log,
	}

	conn.SetCloseHandler(func(code int, text string) error {
		f.setCloseErr(&CloseError{Code: code, Reason: text})
		return nil
	})

	go f.readPump()
	go f.writePump()

	return f, nil
}

// Inbound returns the channel of frames received from the peer. It closes
// when the connection ends; CloseErr then explains why.
func (f *Forwarder) Inbound() <-chan Frame {
	return f.inbound
}

// Write enqueues a frame for the peer.
func (f *Forwarder) Write(frame Frame) error {
	select {
	case f.outbound <- frame:
		return nil
	case <-f.done:
		return ErrSending
	}
}

// Close sends a close frame with the given code and tears the forwarder
// down.
func (f *Forwarder) Close(code int) error {
	f.wsMutex.Lock()
	err := f.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, ""))
	f.wsMutex.Unlock()

	f.teardown()

	return err
}

// CloseErr returns the close frame or transport error that ended the
// connection, if any.
func (f *Forwarder) CloseErr() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.closeErr
}

func (f *Forwarder) setCloseErr(err error) {
	f.mu.Lock()
	if f.closeErr == nil {
		f.closeErr = err
	}
	f.mu.Unlock()
}

func (f *Forwarder) teardown() {
	f.closeOnce.Do(func() {
		close(f.done)
		f.conn.Close()
	})
}

func (f *Forwarder) readPump() {
	defer close(f.inbound)

	for {
		messageType, message, err := f.conn.ReadMessage()
		if err != nil {
			if closeErr, ok := err.(*websocket.CloseError); ok {
				f.setCloseErr(&CloseError{Code: closeErr.Code, Reason: closeErr.Text})
			}

			f.teardown()

			return
		}

		select {
		case f.inbound <- Frame{Type: messageType, Data: message}:
		case <-f.done:
			return
		}
	}
}

func (f *Forwarder) writePump() {
	for {
		select {
		case frame := <-f.outbound:
			f.wsMutex.Lock()
			err := f.conn.WriteMessage(frame.Type, frame.Data)
			f.wsMutex.Unlock()

			if err != nil {
				f.log.Warn().Err(err).Msg("error writing to gateway websocket")
				f.teardown()

				return
			}
		case <-f.done:
			return
		}
	}
}
