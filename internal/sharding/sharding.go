package sharding

import (
	"fmt"
	"hash/crc32"
)

// ShardCount is the fixed number of notification partitions.
const ShardCount = 256

// GetShardID calculates the deterministic shard ID for a given entity ID.
func GetShardID(entityID string) int {
	checksum := crc32.ChecksumIEEE([]byte(entityID))
	return int(checksum % ShardCount)
}

// NotifySubject returns the NATS subject a user's notifications are
// published on. Format: notify.{type}.{shard_id}.user.{user_id}
func NotifySubject(notificationType, userID string) string {
	return fmt.Sprintf("notify.%s.%d.user.%s", notificationType, GetShardID(userID), userID)
}
