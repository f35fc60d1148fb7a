package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShardForGuild(t *testing.T) {
	assert.Equal(t, 0, ShardForGuild(0, 16))

	// (id >> 22) % count
	assert.Equal(t, 5, ShardForGuild(5<<22, 16))
	assert.Equal(t, 1, ShardForGuild(17<<22, 16))
}

func TestShardForGuildID(t *testing.T) {
	shard, err := ShardForGuildID("20971520", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, shard)

	_, err = ShardForGuildID("not a snowflake", 2)
	assert.Error(t, err)
}

func TestSnowflakeTimestamp(t *testing.T) {
	// snowflake 0 is the discord epoch
	ts, err := SnowflakeTimestamp("0")
	require.NoError(t, err)
	assert.Equal(t, int64(1420070400000), ts.UnixNano()/int64(time.Millisecond))

	_, err = SnowflakeTimestamp("abc")
	assert.Error(t, err)
}
