package gateway

import (
	"context"
	"strings"
	"sync"

	"github.com/TheRockettek/Sandwich-Gateway/client"
	"github.com/TheRockettek/Sandwich-Gateway/events"
	"github.com/rs/zerolog"
)

// ClusterConfiguration represents all configurable elements of a cluster.
type ClusterConfiguration struct {
	Token string

	// Scheme defaults to auto sharding via the gateway/bot endpoint.
	Scheme ShardScheme

	// GatewayURL defaults to the url the gateway/bot endpoint returns.
	GatewayURL string

	// Queue defaults to a process local identify queue.
	Queue Queue

	// ResumeSessions seeds shards with sessions captured by a previous
	// resumable shutdown.
	ResumeSessions map[int]ResumeSession

	// Shard level identify options, applied to every shard.
	Intents        *int
	LargeThreshold int
	Presence       *events.UpdateStatusData
	Properties     interface{}
	Capabilities   int
	ClientState    *events.IdentifyClientState
	Compress       bool
}

// Cluster manages a set of shards sharing one token, identify queue and
// event emitter.
type Cluster struct {
	sync.RWMutex

	Configuration ClusterConfiguration

	// HTTP is shared by the cluster and anything else needing REST
	// access with the same token.
	HTTP *client.Client

	// Emitter fans events from every shard out to listeners.
	Emitter *Emitter

	queue  Queue
	shards map[int]*Shard

	ctx    context.Context
	cancel context.CancelFunc

	log zerolog.Logger
}

// NewCluster creates a cluster. The token is normalized with the Bot
// prefix unless the configuration carries client properties, in which case
// it is used verbatim.
func NewCluster(configuration ClusterConfiguration, log zerolog.Logger) *Cluster {
	if configuration.Properties == nil || isBotProperties(configuration.Properties) {
		if !strings.HasPrefix(configuration.Token, "Bot ") {
			configuration.Token = "Bot " + configuration.Token
		}
	}

	queue := configuration.Queue
	if queue == nil {
		queue = NewLocalQueue(IdentifyInterval)
	}

	return &Cluster{
		Configuration: configuration,
		HTTP:          client.NewClient(configuration.Token, log),
		Emitter:       NewEmitter(log),
		queue:         queue,
		shards:        make(map[int]*Shard),
		log:           log,
	}
}

func isBotProperties(properties interface{}) bool {
	switch properties.(type) {
	case events.IdentifyProperties, *events.IdentifyProperties:
		return true
	}

	return false
}

// Open resolves the shard scheme, constructs the shards and starts them
// concurrently. Identify pacing is enforced by the queue, not here.
func (c *Cluster) Open(ctx context.Context) error {
	c.Lock()
	defer c.Unlock()

	if c.cancel != nil {
		return ErrShardAlreadyOpen
	}

	scheme := c.Configuration.Scheme
	gatewayURL := c.Configuration.GatewayURL

	if scheme.Auto || scheme == (ShardScheme{}) || gatewayURL == "" {
		gatewayBot, err := c.HTTP.GatewayBot(ctx)
		if err != nil {
			return err
		}

		c.log.Info().Str("gateway", gatewayBot.URL).Int("shards", gatewayBot.Shards).Int("remaining", gatewayBot.SessionLimit.Remaining).Msg("retrieved gateway information")

		if gatewayURL == "" {
			gatewayURL = gatewayBot.URL
		}

		if scheme.Auto || scheme == (ShardScheme{}) {
			scheme = ShardScheme{From: 0, To: gatewayBot.Shards - 1, Total: gatewayBot.Shards}
		}
	}

	if gatewayURL == "" {
		return ErrGatewayNotFound
	}

	c.ctx, c.cancel = context.WithCancel(ctx)

	c.log.Info().Int("from", scheme.From).Int("to", scheme.To).Int("total", scheme.Total).Msg("creating shards")

	for _, shardID := range scheme.ShardIDs() {
		var resume *ResumeSession
		if session, ok := c.Configuration.ResumeSessions[shardID]; ok {
			snapshot := session
			resume = &snapshot
		}

		shard := NewShard(shardID, scheme.Total, c.Configuration.Token, gatewayURL, c.queue, c.Emitter, resume, c.log)
		shard.Intents = c.Configuration.Intents
		shard.LargeThreshold = c.Configuration.LargeThreshold
		shard.Presence = c.Configuration.Presence
		shard.Properties = c.Configuration.Properties
		shard.Capabilities = c.Configuration.Capabilities
		shard.ClientState = c.Configuration.ClientState
		shard.Compress = c.Configuration.Compress

		c.shards[shardID] = shard
	}

	for shardID, shard := range c.shards {
		c.log.Info().Int("shard", shardID).Msg("starting shard")

		if err := shard.Open(c.ctx); err != nil {
			return err
		}
	}

	return nil
}

// Shard returns the managed shard with the given id, or nil.
func (c *Cluster) Shard(shardID int) *Shard {
	c.RLock()
	defer c.RUnlock()

	return c.shards[shardID]
}

// Shards returns all managed shards keyed by id.
func (c *Cluster) Shards() map[int]*Shard {
	c.RLock()
	defer c.RUnlock()

	shards := make(map[int]*Shard, len(c.shards))
	for id, shard := range c.shards {
		shards[id] = shard
	}

	return shards
}

// Command sends a payload on the chosen shard's current session.
func (c *Cluster) Command(shardID int, op int, data interface{}) error {
	shard := c.Shard(shardID)
	if shard == nil {
		return ErrShardNonexistent
	}

	return shard.Send(op, data)
}

// CommandAll sends a payload on every shard, returning the first error.
func (c *Cluster) CommandAll(op int, data interface{}) error {
	var firstErr error

	for _, shard := range c.Shards() {
		if err := shard.Send(op, data); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// Down closes every shard without keeping sessions resumable. Terminal.
func (c *Cluster) Down() {
	c.log.Info().Msg("closing shards")

	for _, shard := range c.Shards() {
		shard.Close()
	}

	c.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.Unlock()
}

// DownResumable closes every shard with a resumable code and returns the
// session snapshots, keyed by shard id, for seeding a future cluster.
func (c *Cluster) DownResumable() map[int]ResumeSession {
	c.log.Info().Msg("closing shards resumable")

	sessions := make(map[int]ResumeSession)

	for shardID, shard := range c.Shards() {
		if snapshot := shard.CloseResumable(); snapshot != nil {
			sessions[shardID] = *snapshot
		}
	}

	c.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.Unlock()

	return sessions
}
