// Package cachekey derives version-sensitive cache keys for transcoded
// artifacts. The key binds an artifact to the exact source file state, so a
// replaced or re-tagged file orphans old cache entries instead of serving
// them stale. Key equality is the only invalidation mechanism.
package cachekey

import (
	"fmt"
	"strings"
	"time"
)

// Derive computes the cache key for a track's current identity. Any change
// to mtime or size yields a different key. The result is filesystem-safe
// and doubles as the artifact directory name under the cache root.
func Derive(trackID int64, mtime time.Time, sizeBytes int64, ext string) string {
	raw := fmt.Sprintf("%d_%d_%d%s", trackID, mtime.Unix(), sizeBytes, ext)
	return Sanitize(raw)
}

// Sanitize replaces every character outside [A-Za-z0-9._-] with an
// underscore. Keys never contain path separators, so a key can be joined
// under the cache root without escaping it.
func Sanitize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
