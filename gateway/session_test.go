package gateway

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/TheRockettek/Sandwich-Gateway/events"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// frameRecorder is a FrameWriter capturing everything a session writes.
type frameRecorder struct {
	mu        sync.Mutex
	frames    []Frame
	closeCode int
	closed    bool
}

func (r *frameRecorder) Write(frame Frame) error {
	r.mu.Lock()
	r.frames = append(r.frames, frame)
	r.mu.Unlock()

	return nil
}

func (r *frameRecorder) Close(code int) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		r.closeCode = code
	}
	r.mu.Unlock()

	return nil
}

func (r *frameRecorder) sent() []Frame {
	r.mu.Lock()
	defer r.mu.Unlock()

	frames := make([]Frame, len(r.frames))
	copy(frames, r.frames)

	return frames
}

func (r *frameRecorder) closedWith() (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.closeCode, r.closed
}

// opOf decodes the op of a sent frame.
func opOf(t *testing.T, frame Frame) int {
	var payload struct {
		Op int `json:"op"`
	}

	require.NoError(t, json.Unmarshal(frame.Data, &payload))

	return payload.Op
}

// frameWithOp returns the first sent frame carrying op, failing the test
// when none was written.
func frameWithOp(t *testing.T, rec *frameRecorder, op int) Frame {
	for _, frame := range rec.sent() {
		if opOf(t, frame) == op {
			return frame
		}
	}

	t.Fatalf("no frame with op %d was sent", op)

	return Frame{}
}

func TestSessionSequenceMonotonic(t *testing.T) {
	sess := NewSession(0, 1, &frameRecorder{}, zerolog.Nop())

	sess.SetSequence(5)
	sess.SetSequence(3)
	assert.Equal(t, int64(5), sess.Sequence())

	sess.SetSequence(6)
	assert.Equal(t, int64(6), sess.Sequence())

	sess.ResetSequence()
	assert.Equal(t, int64(0), sess.Sequence())
}

func TestSessionStage(t *testing.T) {
	sess := NewSession(0, 1, &frameRecorder{}, zerolog.Nop())
	assert.Equal(t, StageDisconnected, sess.Stage())

	sess.SetStage(StageResuming)
	assert.Equal(t, StageResuming, sess.Stage())
	assert.Equal(t, "resuming", sess.Stage().String())
}

func TestSessionSend(t *testing.T) {
	rec := &frameRecorder{}
	sess := NewSession(0, 1, rec, zerolog.Nop())

	require.NoError(t, sess.Send(events.OpPresenceUpdate, events.UpdateStatusData{Status: "online"}))

	frames := rec.sent()
	require.Len(t, frames, 1)
	assert.Equal(t, websocket.TextMessage, frames[0].Type)
	assert.Equal(t, events.OpPresenceUpdate, opOf(t, frames[0]))
}

func TestSessionSendSerializeError(t *testing.T) {
	sess := NewSession(0, 1, &frameRecorder{}, zerolog.Nop())

	err := sess.Send(events.OpPresenceUpdate, make(chan int))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSerializing))
}

func TestSessionHeartbeatCarriesSequence(t *testing.T) {
	rec := &frameRecorder{}
	sess := NewSession(0, 1, rec, zerolog.Nop())
	sess.SetSequence(42)

	require.NoError(t, sess.Heartbeat())

	frame := frameWithOp(t, rec, events.OpHeartbeat)

	var payload struct {
		D int64 `json:"d"`
	}
	require.NoError(t, json.Unmarshal(frame.Data, &payload))
	assert.Equal(t, int64(42), payload.D)
}

func TestSessionZombieConnection(t *testing.T) {
	rec := &frameRecorder{}
	sess := NewSession(0, 1, rec, zerolog.Nop())

	// never acknowledged, so two missed intervals close the connection
	sess.StartHeartbeater(10 * time.Millisecond)
	defer sess.StopHeartbeater()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if code, closed := rec.closedWith(); closed {
			assert.Equal(t, events.CloseResumeShard, code)
			return
		}

		time.Sleep(5 * time.Millisecond)
	}

	t.Fatal("zombie connection was never closed")
}

func TestSessionHeartbeaterIdempotent(t *testing.T) {
	rec := &frameRecorder{}
	sess := NewSession(0, 1, rec, zerolog.Nop())

	sess.StartHeartbeater(time.Hour)
	sess.StartHeartbeater(time.Hour)
	sess.StopHeartbeater()
	sess.StopHeartbeater()
}

func TestSessionLatency(t *testing.T) {
	rec := &frameRecorder{}
	sess := NewSession(0, 1, rec, zerolog.Nop())

	require.NoError(t, sess.Heartbeat())
	time.Sleep(5 * time.Millisecond)
	sess.AckHeartbeat()

	assert.Greater(t, int64(sess.Latency()), int64(0))
}
