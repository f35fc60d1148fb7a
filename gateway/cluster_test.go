package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/TheRockettek/Sandwich-Gateway/events"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGatewayBotServer(t *testing.T, shards int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/gateway/bot", r.URL.Path)
		fmt.Fprintf(w, `{"url":"ws://127.0.0.1:1","shards":%d,"session_start_limit":{"total":1000,"remaining":999,"reset_after":0}}`, shards)
	}))
}

func TestClusterAutoshard(t *testing.T) {
	server := newGatewayBotServer(t, 4)
	defer server.Close()

	cluster := NewCluster(ClusterConfiguration{
		Token: "token",
		Queue: NewLocalQueue(time.Millisecond),
	}, zerolog.Nop())
	cluster.HTTP.APIBase = server.URL + "/"

	require.NoError(t, cluster.Open(context.Background()))
	defer cluster.Down()

	assert.Len(t, cluster.Shards(), 4)
	require.NotNil(t, cluster.Shard(3))
	assert.Equal(t, 4, cluster.Shard(3).ShardCount)
	assert.Nil(t, cluster.Shard(4))

	assert.Equal(t, ErrShardAlreadyOpen, cluster.Open(context.Background()))
}

func TestClusterRangeScheme(t *testing.T) {
	scheme, err := RangeScheme(2, 3, 8)
	require.NoError(t, err)

	cluster := NewCluster(ClusterConfiguration{
		Token:      "token",
		Scheme:     scheme,
		GatewayURL: "ws://127.0.0.1:1",
		Queue:      NewLocalQueue(time.Millisecond),
	}, zerolog.Nop())

	require.NoError(t, cluster.Open(context.Background()))
	defer cluster.Down()

	shards := cluster.Shards()
	assert.Len(t, shards, 2)
	require.NotNil(t, shards[2])
	assert.Equal(t, 8, shards[2].ShardCount)
	assert.Nil(t, cluster.Shard(0))
}

func TestClusterTokenNormalization(t *testing.T) {
	cluster := NewCluster(ClusterConfiguration{Token: "abc"}, zerolog.Nop())
	assert.Equal(t, "Bot abc", cluster.Configuration.Token)
	assert.Equal(t, "Bot abc", cluster.HTTP.Token)

	cluster = NewCluster(ClusterConfiguration{Token: "Bot abc"}, zerolog.Nop())
	assert.Equal(t, "Bot abc", cluster.Configuration.Token)

	cluster = NewCluster(ClusterConfiguration{
		Token:      "abc",
		Properties: events.IdentifyProperties{OS: "linux"},
	}, zerolog.Nop())
	assert.Equal(t, "Bot abc", cluster.Configuration.Token)

	cluster = NewCluster(ClusterConfiguration{
		Token:      "abc",
		Properties: &events.IdentifyProperties{OS: "linux"},
	}, zerolog.Nop())
	assert.Equal(t, "Bot abc", cluster.Configuration.Token)

	// masquerading as a desktop client keeps the token verbatim
	cluster = NewCluster(ClusterConfiguration{
		Token:      "abc",
		Properties: events.DefaultClientProperties(),
	}, zerolog.Nop())
	assert.Equal(t, "abc", cluster.Configuration.Token)
}

func TestClusterCommandNonexistentShard(t *testing.T) {
	cluster := NewCluster(ClusterConfiguration{Token: "token"}, zerolog.Nop())

	err := cluster.Command(99, events.OpPresenceUpdate, nil)
	assert.Equal(t, ErrShardNonexistent, err)
}

func TestClusterDownResumable(t *testing.T) {
	cluster := NewCluster(ClusterConfiguration{Token: "token"}, zerolog.Nop())

	shard := NewShard(0, 1, "Bot token", "ws://127.0.0.1:1", NewLocalQueue(time.Millisecond), cluster.Emitter, nil, zerolog.Nop())
	sess := NewSession(0, 1, &frameRecorder{}, zerolog.Nop())
	sess.SetSessionID("abc")
	sess.SetSequence(42)
	shard.publishSession(sess, nil)

	bare := NewShard(1, 2, "Bot token", "ws://127.0.0.1:1", NewLocalQueue(time.Millisecond), cluster.Emitter, nil, zerolog.Nop())

	cluster.shards[0] = shard
	cluster.shards[1] = bare

	sessions := cluster.DownResumable()
	require.Len(t, sessions, 1)
	assert.Equal(t, ResumeSession{SessionID: "abc", Sequence: 42}, sessions[0])
}

func TestClusterResumeSeedsShards(t *testing.T) {
	// a gateway that accepts and stays silent keeps the shards idle
	url, server := newWSServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	cluster := NewCluster(ClusterConfiguration{
		Token:      "token",
		GatewayURL: url,
		Queue:      NewLocalQueue(time.Millisecond),
		ResumeSessions: map[int]ResumeSession{
			1: {SessionID: "abc", Sequence: 42},
		},
	}, zerolog.Nop())

	scheme, err := RangeScheme(0, 1, 2)
	require.NoError(t, err)
	cluster.Configuration.Scheme = scheme

	require.NoError(t, cluster.Open(context.Background()))
	defer cluster.Down()

	assert.Nil(t, cluster.Shard(0).resumeSnapshot())

	snapshot := cluster.Shard(1).resumeSnapshot()
	require.NotNil(t, snapshot)
	assert.Equal(t, "abc", snapshot.SessionID)
	assert.Equal(t, int64(42), snapshot.Sequence)
}
