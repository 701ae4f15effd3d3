package redis

import "strings"

const (
	// KeyPrefixStats is the prefix for cached aggregate statistics
	KeyPrefixStats = "breachwatch:stats:"
)

// StatsKey returns the Redis key for one cached aggregate, ex:
// breachwatch:stats:dashboard:techcorp.com
func StatsKey(parts ...string) string {
	return KeyPrefixStats + strings.Join(parts, ":")
}
