package gateway

import (
	"github.com/TheRockettek/Sandwich-Gateway/events"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/stan.go"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack"
)

// Producer relays dispatch events from an emitter onto a NATS Streaming
// channel so external consumers can process them without speaking the
// gateway protocol themselves.
type Producer struct {
	natsClient *nats.Conn
	stanClient stan.Conn

	channel  string
	listener *Listener
	emitter  *Emitter

	log zerolog.Logger
}

// NewProducer connects to NATS and the streaming cluster.
func NewProducer(address string, clusterID string, clientID string, channel string, log zerolog.Logger) (*Producer, error) {
	natsClient, err := nats.Connect(address)
	if err != nil {
		return nil, err
	}

	stanClient, err := stan.Connect(clusterID, clientID, stan.NatsConn(natsClient))
	if err != nil {
		natsClient.Close()
		return nil, err
	}

	return &Producer{
		natsClient: natsClient,
		stanClient: stanClient,
		channel:    channel,
		log:        log,
	}, nil
}

// Attach subscribes to the emitter with the given mask and starts
// relaying. Call Close to detach.
func (p *Producer) Attach(emitter *Emitter, mask events.EventTypeFlags) {
	p.emitter = emitter
	p.listener = emitter.Add(mask, BufferSize)

	go p.relay()
}

func (p *Producer) relay() {
	for event := range p.listener.Events {
		if err := p.publish(event); err != nil {
			p.log.Warn().Err(err).Msg("failed to publish stream event")
		}
	}
}

func (p *Producer) publish(event events.Event) error {
	streamEvent := events.StreamEvent{Data: event}

	if dispatch, ok := event.(*events.Dispatch); ok {
		streamEvent.Type = dispatch.Type
		streamEvent.Data = []byte(dispatch.Data)
	}

	payload, err := msgpack.Marshal(streamEvent)
	if err != nil {
		return err
	}

	return p.stanClient.Publish(p.channel, payload)
}

// Close detaches from the emitter and closes both connections.
func (p *Producer) Close() {
	if p.emitter != nil && p.listener != nil {
		p.emitter.Remove(p.listener.ID)
	}

	if p.stanClient != nil {
		p.stanClient.Close()
	}
	if p.natsClient != nil {
		p.natsClient.Close()
	}
}
