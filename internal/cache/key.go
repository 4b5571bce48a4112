package cache

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
)

// Key derives a cache key from a prefix and the full option set of a query.
// Parts are serialized in sorted key order, so two logically identical
// queries always produce the same key and two different queries never
// collide (up to hash collision).
func Key(prefix string, parts map[string]string) string {
	keys := make([]string, 0, len(parts))
	for k := range parts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(parts[k])
		b.WriteByte('|')
	}

	sum := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%s:%x", prefix, sum[:16])
}
