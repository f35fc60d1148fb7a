package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"runtime"
	"sync"
	"time"

	"github.com/TheRockettek/Sandwich-Gateway/events"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// MinReconnectWait is the initial reconnect backoff.
	MinReconnectWait = time.Second
	// MaxReconnectWait caps the reconnect backoff.
	MaxReconnectWait = 128 * time.Second
)

// Shard drives a single gateway connection: it owns the connect loop,
// feeds inbound frames through the inflater, parses them and applies the
// session state machine. Events are fanned out through the shared emitter.
type Shard struct {
	sync.RWMutex

	ShardID    int
	ShardCount int

	Token      string
	GatewayURL string

	// Identify options. Properties may be events.IdentifyProperties for a
	// bot connection or events.ClientProperties to masquerade as a
	// desktop client, in which case Capabilities and ClientState should
	// be set too.
	Intents        *int
	LargeThreshold int
	Presence       *events.UpdateStatusData
	Properties     interface{}
	Capabilities   int
	ClientState    *events.IdentifyClientState
	Compress       bool

	queue   Queue
	emitter *Emitter
	log     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	session   *Session
	forwarder *Forwarder
	watchers  []chan *Session

	inflater *Inflater

	resume *ResumeSession

	wait time.Duration
}

// NewShard creates a shard. resume may be nil; when set the first
// connection attempts to resume instead of identifying.
func NewShard(shardID int, shardCount int, token string, gatewayURL string, queue Queue, emitter *Emitter, resume *ResumeSession, log zerolog.Logger) *Shard {
	return &Shard{
		ShardID:    shardID,
		ShardCount: shardCount,
		Token:      token,
		GatewayURL: gatewayURL,
		Compress:   true,
		queue:      queue,
		emitter:    emitter,
		inflater:   NewInflater(),
		resume:     resume,
		wait:       MinReconnectWait,
		log:        log,
	}
}

// Open starts the shard's connect loop. It returns immediately; progress
// is observable through the emitter and the session watch.
func (sh *Shard) Open(ctx context.Context) error {
	sh.Lock()
	if sh.cancel != nil {
		sh.Unlock()
		return ErrShardAlreadyOpen
	}
	sh.ctx, sh.cancel = context.WithCancel(ctx)
	sh.Unlock()

	go sh.run()

	return nil
}

// Session returns a snapshot of the current session, or nil before the
// first connection.
func (sh *Shard) Session() *Session {
	sh.RLock()
	defer sh.RUnlock()

	return sh.session
}

// SessionUpdates returns a channel receiving each new session the shard
// constructs. Slow readers only ever miss intermediate sessions, never the
// latest one.
func (sh *Shard) SessionUpdates() <-chan *Session {
	ch := make(chan *Session, 1)

	sh.Lock()
	sh.watchers = append(sh.watchers, ch)
	if sh.session != nil {
		ch <- sh.session
	}
	sh.Unlock()

	return ch
}

// Send sends an op and payload on the current session.
func (sh *Shard) Send(op int, data interface{}) error {
	sess := sh.Session()
	if sess == nil {
		return ErrSending
	}

	return sess.Send(op, data)
}

// RequestGuildMembers requests guild members from the gateway. The gateway
// responds with GUILD_MEMBERS_CHUNK events.
func (sh *Shard) RequestGuildMembers(guildID string, query string, limit int) error {
	return sh.Send(events.OpRequestGuildMembers, events.RequestGuildMembersData{
		GuildID: guildID,
		Query:   query,
		Limit:   limit,
	})
}

// UpdateStatus updates the shard's presence.
func (sh *Shard) UpdateStatus(data events.UpdateStatusData) error {
	return sh.Send(events.OpPresenceUpdate, data)
}

// Latency returns the current session's heartbeat round trip time.
func (sh *Shard) Latency() time.Duration {
	sess := sh.Session()
	if sess == nil {
		return 0
	}

	return sess.Latency()
}

// Close shuts the shard down without keeping the session resumable.
func (sh *Shard) Close() {
	sh.Lock()
	cancel := sh.cancel
	sh.cancel = nil
	forwarder := sh.forwarder
	sh.Unlock()

	if cancel != nil {
		cancel()
	}
	if forwarder != nil {
		forwarder.Close(websocket.CloseNormalClosure)
	}
}

// CloseResumable stops heartbeating, closes with a code that keeps the
// session valid server side and returns the snapshot needed to resume it.
// Returns nil when there is no session to resume.
func (sh *Shard) CloseResumable() *ResumeSession {
	sh.Lock()
	cancel := sh.cancel
	sh.cancel = nil
	sess := sh.session
	forwarder := sh.forwarder
	sh.Unlock()

	var snapshot *ResumeSession

	if sess != nil {
		sess.StopHeartbeater()

		if id := sess.SessionID(); id != "" {
			snapshot = &ResumeSession{SessionID: id, Sequence: sess.Sequence()}
		}
	}

	if cancel != nil {
		cancel()
	}
	if forwarder != nil {
		forwarder.Close(events.CloseResumeShard)
	}

	return snapshot
}

// run is the shard's outer loop: connect, classify the failure, back off,
// repeat. Fatal errors end the shard.
func (sh *Shard) run() {
	for {
		err := sh.connect()

		if sh.ctx.Err() != nil || err == nil {
			return
		}

		if isFatal(err) {
			sh.log.Error().Err(err).Int("shard", sh.ShardID).Msg("shard hit a fatal error and will not reconnect")
			return
		}

		if !isResumable(err) {
			sh.clearResume()
		}

		wait := sh.backoffWait()
		sh.emitter.Emit(events.ShardReconnecting{ShardID: sh.ShardID, Wait: wait})
		sh.log.Info().Err(err).Int("shard", sh.ShardID).Dur("wait", wait).Msg("reconnecting to gateway")

		select {
		case <-time.After(wait):
		case <-sh.ctx.Done():
			return
		}
	}
}

// connect runs one connection from dial to teardown and returns the error
// that ended it.
func (sh *Shard) connect() error {
	gatewayURL, err := sh.gatewayURL()
	if err != nil {
		return err
	}

	// A resumable session was already admitted once, so the identify
	// queue is skipped entirely on the resume path.
	if sh.resumeSnapshot() == nil {
		if err := sh.queue.Request(sh.ctx, sh.ShardID); err != nil {
			return fmt.Errorf("%w: %v", ErrConnecting, err)
		}
	}

	sh.emitter.Emit(events.ShardConnecting{ShardID: sh.ShardID, Gateway: gatewayURL})
	sh.log.Info().Int("shard", sh.ShardID).Str("gateway", gatewayURL).Msg("connecting to gateway")

	forwarder, err := ConnectForwarder(sh.ctx, gatewayURL, sh.log)
	if err != nil {
		return err
	}

	sess := NewSession(sh.ShardID, sh.ShardCount, forwarder, sh.log)
	sess.SetStage(StageConnecting)

	if resume := sh.resumeSnapshot(); resume != nil {
		sess.SetSessionID(resume.SessionID)
		sess.SetSequence(resume.Sequence)
	}

	sh.inflater.Reset()
	sh.publishSession(sess, forwarder)

	err = sh.readLoop(sess, forwarder)

	sess.StopHeartbeater()
	sess.SetStage(StageDisconnected)

	if err != nil && isResumable(err) {
		sh.storeResume(sess)
	}

	return err
}

// readLoop consumes inbound frames until the connection ends or a handler
// asks for a transition.
func (sh *Shard) readLoop(sess *Session, forwarder *Forwarder) error {
	for {
		select {
		case frame, ok := <-forwarder.Inbound():
			if !ok {
				return sh.closedConnection(forwarder)
			}

			msg, err := sh.message(frame)
			if err != nil {
				return err
			}
			if msg == nil {
				continue
			}

			if err := sh.process(sess, msg); err != nil {
				return err
			}
		case <-sh.ctx.Done():
			forwarder.Close(websocket.CloseNormalClosure)
			return nil
		}
	}
}

// closedConnection applies the close policy once the inbound stream ends.
func (sh *Shard) closedConnection(forwarder *Forwarder) error {
	closeErr := forwarder.CloseErr()

	var frameErr *CloseError
	if errors.As(closeErr, &frameErr) {
		sh.emitter.Emit(events.ShardDisconnected{ShardID: sh.ShardID, Code: frameErr.Code, Reason: frameErr.Reason})
		sh.log.Warn().Int("shard", sh.ShardID).Int("code", frameErr.Code).Str("reason", frameErr.Reason).Msg("gateway closed the connection")

		return frameErr
	}

	sh.emitter.Emit(events.ShardDisconnected{ShardID: sh.ShardID})

	return ErrEventStreamEnded
}

// message turns a frame into a complete gateway message, or nil when more
// frames are needed.
func (sh *Shard) message(frame Frame) ([]byte, error) {
	if frame.Type == websocket.BinaryMessage {
		sh.inflater.Extend(frame.Data)
		return sh.inflater.Msg()
	}

	return frame.Data, nil
}

// process applies one gateway message to the session state machine.
func (sh *Shard) process(sess *Session, msg []byte) error {
	payload, err := events.Deserialize(msg)
	if err != nil {
		sh.log.Warn().Err(err).Int("shard", sh.ShardID).Msg("received undecodable gateway payload")
		return nil
	}

	switch payload.Op {
	case events.OpHeartbeat:
		if err := sess.Heartbeat(); err != nil {
			return err
		}

		// The gateway expecting a sequence ahead of ours means we missed
		// events; resume to replay them.
		if payload.HasSequence && payload.Sequence > sess.Sequence()+1 {
			sh.log.Info().Int("shard", sh.ShardID).Int64("theirs", payload.Sequence).Int64("ours", sess.Sequence()).Msg("gateway is ahead of us, resuming")
			sess.Close(events.CloseResumeShard)

			return errResume
		}

		return nil

	case events.OpReconnect:
		sh.log.Info().Int("shard", sh.ShardID).Msg("gateway requested a reconnect")
		sess.Close(events.CloseResumeShard)

		return errResume

	case events.OpInvalidSession:
		var resumable bool
		_ = json.Unmarshal(payload.Data, &resumable)

		if resumable {
			sh.log.Info().Int("shard", sh.ShardID).Msg("session invalidated but resumable")
			sess.Close(events.CloseResumeShard)

			return errResume
		}

		sh.log.Info().Int("shard", sh.ShardID).Msg("session invalidated, identifying again")
		sess.SetSessionID("")
		sess.ResetSequence()
		sh.clearResume()
		sess.Close(websocket.CloseNormalClosure)

		return errReconnect

	case events.OpHello:
		var hello events.Hello
		if err := json.Unmarshal(payload.Data, &hello); err != nil || hello.HeartbeatInterval <= 0 {
			sh.log.Warn().Err(err).Int("shard", sh.ShardID).Msg("received unusable HELLO")
			sess.Close(websocket.CloseProtocolError)

			return errReconnect
		}

		sess.StartHeartbeater(hello.HeartbeatInterval * time.Millisecond)

		if sess.SessionID() != "" && sess.Sequence() > 0 {
			sess.SetStage(StageResuming)
			sh.emitter.Emit(events.ShardResuming{ShardID: sh.ShardID, Sequence: sess.Sequence()})
			sh.log.Info().Int("shard", sh.ShardID).Int64("seq", sess.Sequence()).Msg("resuming session")

			return sess.SendPayload(events.Resume{
				Op: events.OpResume,
				Data: events.ResumeData{
					Token:     sh.Token,
					SessionID: sess.SessionID(),
					Sequence:  sess.Sequence(),
				},
			})
		}

		sess.SetStage(StageIdentifying)
		sh.emitter.Emit(events.ShardIdentifying{ShardID: sh.ShardID})

		return sh.identify(sess)

	case events.OpHeartbeatACK:
		sess.AckHeartbeat()
		return nil

	case events.OpDispatch:
		return sh.dispatch(sess, payload, msg)

	default:
		sh.log.Warn().Int("op", payload.Op).Int("shard", sh.ShardID).Msg("received unknown gateway op")
		return nil
	}
}

// dispatch handles an op 0 frame: sequence bookkeeping, the READY and
// RESUMED transitions, then fan-out.
func (sh *Shard) dispatch(sess *Session, payload *events.GatewayEventDeserializer, msg []byte) error {
	if !payload.HasSequence {
		sh.log.Warn().Err(ErrSequenceMissing).Str("type", payload.EventType).Int("shard", sh.ShardID).Msg("dropping dispatch")
		return nil
	}

	switch payload.EventType {
	case "READY":
		var ready events.Ready
		if err := json.Unmarshal(payload.Data, &ready); err != nil || ready.SessionID == "" {
			sh.log.Warn().Err(err).Int("shard", sh.ShardID).Msg("received unusable READY")
			sess.Close(websocket.CloseProtocolError)

			return errReconnect
		}

		sess.SetSequence(payload.Sequence)
		sess.SetSessionID(ready.SessionID)
		sess.SetStage(StageConnected)
		sh.resetBackoff()
		sh.clearResume()

		sh.log.Info().Int("shard", sh.ShardID).Str("session", ready.SessionID).Msg("shard is ready")
		sh.emitter.Emit(events.ShardConnected{ShardID: sh.ShardID})

	case "RESUMED":
		sess.SetSequence(payload.Sequence)
		sess.SetStage(StageConnected)
		sess.AckHeartbeat()
		sh.resetBackoff()
		sh.clearResume()

		sh.log.Info().Int("shard", sh.ShardID).Int64("seq", payload.Sequence).Msg("shard resumed")
		sh.emitter.Emit(events.ShardConnected{ShardID: sh.ShardID})

	default:
		sess.SetSequence(payload.Sequence)
	}

	sh.emitter.EmitBytes(sh.ShardID, msg)

	event, err := events.ParseDispatch(sh.ShardID, payload.EventType, payload.Sequence, payload.Data)
	if err != nil {
		sh.log.Warn().Err(err).Int("shard", sh.ShardID).Msg("unknown dispatch event")
		return nil
	}

	sh.emitter.Emit(event)

	return nil
}

// identify sends the IDENTIFY packet for this shard.
func (sh *Shard) identify(sess *Session) error {
	properties := sh.Properties
	if properties == nil {
		properties = events.IdentifyProperties{
			OS:      runtime.GOOS,
			Browser: "Sandwich v" + events.VERSION,
			Device:  "Sandwich v" + events.VERSION,
		}
	}

	data := events.IdentifyData{
		Token:          sh.Token,
		Properties:     properties,
		Compress:       false,
		LargeThreshold: sh.LargeThreshold,
		Presence:       sh.Presence,
		Intents:        sh.Intents,
		Capabilities:   sh.Capabilities,
		ClientState:    sh.ClientState,
	}

	if sh.ShardCount > 1 {
		data.Shard = &[2]int{sh.ShardID, sh.ShardCount}
	}

	return sess.SendPayload(events.Identify{Op: events.OpIdentify, Data: data})
}

func (sh *Shard) gatewayURL() (string, error) {
	if sh.GatewayURL == "" {
		return "", ErrGatewayNotFound
	}

	u, err := url.Parse(sh.GatewayURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrParsingURL, err)
	}

	query := u.Query()
	query.Set("v", events.GatewayVersion)
	query.Set("encoding", "json")
	if sh.Compress {
		query.Set("compress", "zlib-stream")
	}
	u.RawQuery = query.Encode()

	return u.String(), nil
}

func (sh *Shard) publishSession(sess *Session, forwarder *Forwarder) {
	sh.Lock()
	sh.session = sess
	sh.forwarder = forwarder

	for _, watcher := range sh.watchers {
		// drop the stale session so the newest is always receivable
		select {
		case <-watcher:
		default:
		}
		select {
		case watcher <- sess:
		default:
		}
	}
	sh.Unlock()
}

func (sh *Shard) resumeSnapshot() *ResumeSession {
	sh.RLock()
	defer sh.RUnlock()

	if sh.resume == nil {
		return nil
	}

	snapshot := *sh.resume

	return &snapshot
}

func (sh *Shard) storeResume(sess *Session) {
	sh.Lock()
	defer sh.Unlock()

	if id := sess.SessionID(); id != "" {
		sh.resume = &ResumeSession{SessionID: id, Sequence: sess.Sequence()}
	} else {
		sh.resume = nil
	}
}

func (sh *Shard) clearResume() {
	sh.Lock()
	sh.resume = nil
	sh.Unlock()
}

func (sh *Shard) backoffWait() time.Duration {
	sh.Lock()
	defer sh.Unlock()

	wait := sh.wait
	sh.wait *= 2
	if sh.wait > MaxReconnectWait {
		sh.wait = MaxReconnectWait
	}

	return wait
}

func (sh *Shard) resetBackoff() {
	sh.Lock()
	sh.wait = MinReconnectWait
	sh.Unlock()
}
