package observability

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint returns a short stable hash of an identity for logs and span
// attributes. The raw identity never leaves the process.
func Fingerprint(identity string) string {
	if identity == "" {
		return ""
	}
	return strconv.FormatUint(xxhash.Sum64String(identity), 16)
}

// Shard maps an identity onto one of n partitions.
func Shard(identity string, n uint64) uint64 {
	if n == 0 {
		return 0
	}
	return xxhash.Sum64String(identity) % n
}
