package gateway

import (
	"strconv"
	"time"
)

// ShardForGuild returns the shard id responsible for a guild.
func ShardForGuild(guildID int64, shardCount int) int {
	return int((guildID >> 22) % int64(shardCount))
}

// ShardForGuildID is ShardForGuild for string snowflakes as they appear on
// the wire.
func ShardForGuildID(guildID string, shardCount int) (int, error) {
	id, err := strconv.ParseInt(guildID, 10, 64)
	if err != nil {
		return 0, err
	}

	return ShardForGuild(id, shardCount), nil
}

// SnowflakeTimestamp returns the creation time of a snowflake id.
func SnowflakeTimestamp(id string) (time.Time, error) {
	snowflake, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return time.Time{}, err
	}

	timestamp := (snowflake >> 22) + 1420070400000

	return time.Unix(0, timestamp*int64(time.Millisecond)), nil
}
