package gateway

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/TheRockettek/Sandwich-Gateway/events"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Stage of a shard session lifecycle.
type Stage int32

const (
	// StageDisconnected means no connection exists.
	StageDisconnected Stage = iota
	// StageConnecting means the socket is open but HELLO has not arrived.
	StageConnecting
	// StageIdentifying means IDENTIFY has been sent and READY is awaited.
	StageIdentifying
	// StageResuming means RESUME has been sent and RESUMED is awaited.
	StageResuming
	// StageConnected means the handshake completed.
	StageConnected
)

func (s Stage) String() string {
	switch s {
	case StageDisconnected:
		return "disconnected"
	case StageConnecting:
		return "connecting"
	case StageIdentifying:
		return "identifying"
	case StageResuming:
		return "resuming"
	case StageConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// ResumeSession is the snapshot needed to resume a session on a later
// connection, surfaced by a resumable shutdown and consumed when seeding a
// new cluster.
type ResumeSession struct {
	SessionID string `json:"session_id"`
	Sequence  int64  `json:"seq"`
}

// Session holds the mutable state of a single gateway connection. A new
// Session is constructed for every connection attempt; dependents observe
// the swap through the shard's session watch.
type Session struct {
	sync.RWMutex

	ShardID    int
	ShardCount int

	// sequence tracks the last seen dispatch sequence number
	sequence *int64

	stage     int32
	sessionID string

	heartbeatInterval time.Duration
	lastHeartbeatSent time.Time
	lastHeartbeatAck  time.Time

	writer FrameWriter

	// When nil, the heartbeater is not running.
	listening chan interface{}

	log zerolog.Logger
}

// NewSession creates a session bound to a frame writer.
func NewSession(shardID int, shardCount int, writer FrameWriter, log zerolog.Logger) *Session {
	return &Session{
		ShardID:          shardID,
		ShardCount:       shardCount,
		sequence:         new(int64),
		writer:           writer,
		lastHeartbeatAck: time.Now().UTC(),
		log:              log,
	}
}

// Sequence returns the last seen dispatch sequence.
func (s *Session) Sequence() int64 {
	return atomic.LoadInt64(s.sequence)
}

// SetSequence stores seq. Updates are monotonic; an older sequence never
// overwrites a newer one.
func (s *Session) SetSequence(seq int64) {
	for {
		current := atomic.LoadInt64(s.sequence)
		if seq <= current || atomic.CompareAndSwapInt64(s.sequence, current, seq) {
			return
		}
	}
}

// ResetSequence zeroes the sequence for a fresh identify.
func (s *Session) ResetSequence() {
	atomic.StoreInt64(s.sequence, 0)
}

// SessionID returns the session id received on READY, or empty.
func (s *Session) SessionID() string {
	s.RLock()
	defer s.RUnlock()

	return s.sessionID
}

// SetSessionID stores the session id.
func (s *Session) SetSessionID(id string) {
	s.Lock()
	s.sessionID = id
	s.Unlock()
}

// Stage returns the current lifecycle stage.
func (s *Session) Stage() Stage {
	return Stage(atomic.LoadInt32(&s.stage))
}

// SetStage stores the lifecycle stage.
func (s *Session) SetStage(stage Stage) {
	atomic.StoreInt32(&s.stage, int32(stage))
}

// Send serializes an op and payload and enqueues it on the outbound
// mailbox.
func (s *Session) Send(op int, data interface{}) error {
	return s.SendPayload(events.SentPayload{Op: op, Data: data})
}

// SendPayload serializes an already framed payload and enqueues it.
func (s *Session) SendPayload(payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerializing, err)
	}

	return s.writer.Write(Frame{Type: websocket.TextMessage, Data: raw})
}

// Heartbeat sends a heartbeat carrying the current sequence and records
// when it was sent.
func (s *Session) Heartbeat() error {
	sequence := s.Sequence()

	s.Lock()
	s.lastHeartbeatSent = time.Now().UTC()
	s.Unlock()

	s.log.Debug().Int("shard", s.ShardID).Int64("seq", sequence).Msg("sending gateway heartbeat")

	return s.Send(events.OpHeartbeat, sequence)
}

// AckHeartbeat records a heartbeat acknowledgement.
func (s *Session) AckHeartbeat() {
	s.Lock()
	s.lastHeartbeatAck = time.Now().UTC()
	s.Unlock()
}

// Latency returns the round trip time between the last heartbeat and its
// acknowledgement.
func (s *Session) Latency() time.Duration {
	s.RLock()
	defer s.RUnlock()

	return s.lastHeartbeatAck.Sub(s.lastHeartbeatSent)
}

// Close stops the heartbeater and sends a close frame with the given code.
func (s *Session) Close(code int) error {
	s.StopHeartbeater()

	return s.writer.Close(code)
}

// StartHeartbeater starts the background heartbeat loop. Idempotent.
func (s *Session) StartHeartbeater(interval time.Duration) {
	s.Lock()
	defer s.Unlock()

	if s.listening != nil {
		return
	}

	s.heartbeatInterval = interval
	s.lastHeartbeatAck = time.Now().UTC()
	s.listening = make(chan interface{})

	go s.heartbeater(s.listening, interval)
}

// StopHeartbeater stops the background heartbeat loop. Idempotent.
func (s *Session) StopHeartbeater() {
	s.Lock()
	defer s.Unlock()

	if s.listening != nil {
		close(s.listening)
		s.listening = nil
	}
}

// heartbeater sends heartbeats on the interval the gateway asked for. Two
// intervals without an acknowledgement means the connection is a zombie;
// it is closed with a resumable code so the processor reconnects.
func (s *Session) heartbeater(listening <-chan interface{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.RLock()
		last := s.lastHeartbeatAck
		s.RUnlock()

		if time.Now().UTC().Sub(last) > interval*2 {
			s.log.Warn().Int("shard", s.ShardID).Time("last_ack", last).Msg("no heartbeat ack in two intervals, closing zombie connection")
			s.Close(events.CloseResumeShard)

			return
		}

		if err := s.Heartbeat(); err != nil {
			s.log.Warn().Err(err).Int("shard", s.ShardID).Msg("error sending heartbeat")
			s.Close(events.CloseResumeShard)

			return
		}

		select {
		case <-ticker.C:
		case <-listening:
			return
		}
	}
}
