package gateway

import (
	"errors"
	"fmt"

	"github.com/TheRockettek/Sandwich-Gateway/events"
)

// ErrGatewayNotFound is returned when no gateway url is specified and none
// could be fetched.
var ErrGatewayNotFound = errors.New("gateway: no gateway url was passed")

// ErrShardAlreadyOpen is returned when you attempt to open a shard that is
// already running.
var ErrShardAlreadyOpen = errors.New("gateway: shard already opened")

// ErrShardNonexistent is returned when a command targets a shard id the
// cluster does not manage.
var ErrShardNonexistent = errors.New("gateway: no such shard")

// ErrSerializing is returned when an outbound payload could not be
// marshalled. This is a programming error and is never retried.
var ErrSerializing = errors.New("gateway: serializing payload")

// ErrSending is returned when the outbound mailbox has closed beneath a
// send. The connection is gone and the shard will reconnect.
var ErrSending = errors.New("gateway: sending payload")

// ErrDecompressing is returned on malformed zlib input. The stream context
// is unusable afterwards so the shard reconnects with a fresh one.
var ErrDecompressing = errors.New("gateway: decompressing frame")

// ErrEventStreamEnded is returned when the socket dies without a close
// frame. The session may still be resumable.
var ErrEventStreamEnded = errors.New("gateway: event stream ended")

// ErrSequenceMissing is reported when a dispatch arrives without a sequence
// number. Non fatal, the frame is dropped.
var ErrSequenceMissing = errors.New("gateway: dispatch sequence missing")

// ErrConnecting wraps transport failures while establishing the websocket.
var ErrConnecting = errors.New("gateway: connecting")

// ErrParsingURL is returned for an unusable gateway url. Not recoverable
// by retrying.
var ErrParsingURL = errors.New("gateway: parsing gateway url")

// CloseError describes a close frame received from the gateway.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("gateway: closed with code %d: %s", e.Code, e.Reason)
}

// Fatal returns true when the close code cannot be recovered in band:
// invalid authentication or intents mean reconnecting would just fail the
// same way.
func (e *CloseError) Fatal() bool {
	return events.FatalCloseCode(e.Code)
}

// IDTooLargeError is returned when a shard range starts beyond its end or
// total.
type IDTooLargeError struct {
	Start int
	End   int
	Total int
}

func (e *IDTooLargeError) Error() string {
	return fmt.Sprintf("gateway: the shard range %d-%d/%d is larger than the total", e.Start, e.End, e.Total)
}

// isFatal reports whether err should terminate the shard outright.
func isFatal(err error) bool {
	var closeErr *CloseError
	if errors.As(err, &closeErr) {
		return closeErr.Fatal()
	}

	return errors.Is(err, ErrParsingURL) || errors.Is(err, ErrSerializing)
}

// isResumable reports whether the session may survive err, making a RESUME
// attempt worthwhile on the next connection.
func isResumable(err error) bool {
	if isFatal(err) {
		return false
	}

	var closeErr *CloseError
	if errors.As(err, &closeErr) {
		return true
	}

	return errors.Is(err, ErrEventStreamEnded) || errors.Is(err, errResume)
}

// errResume and errReconnect steer the connection loop from inside frame
// handling. errResume keeps the session snapshot, errReconnect discards it.
var errResume = errors.New("gateway: resume requested")
var errReconnect = errors.New("gateway: reconnect requested")
