package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
	"strings"
)

// PhotoID derives a stable identifier from a storage key. Re-ingesting the
// same key always yields the same ID, which is what makes photo upserts
// idempotent. The slug keeps IDs human-readable in logs and URLs; the hash
// suffix keeps distinct keys with identical basenames apart.
func PhotoID(storageKey string) string {
	sum := sha256.Sum256([]byte(storageKey))
	suffix := hex.EncodeToString(sum[:])[:8]

	base := path.Base(storageKey)
	if ext := path.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	slug := slugify(base)
	if slug == "" {
		return suffix
	}
	return slug + "-" + suffix
}

func slugify(s string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
