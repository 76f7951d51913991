package logging

import (
	"encoding/hex"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
)

// RedactedValue is the canonical placeholder used for sensitive fields in logs.
const RedactedValue = "[REDACTED]"

var redactionAllowlist = map[string]struct{}{
	"service":   {},
	"env":       {},
	"message":   {},
	"severity":  {},
	"timestamp": {},
	"error":     {},
	"reason":    {},
	"component": {},
	"op":        {},
	"kind":      {},
	"escrow":    {},
	"state":     {},
	"status":    {},
	"method":    {},
	"route":     {},
}

// debugEnabled is set by Configure; party identifiers are only logged in full
// at debug level.
var debugEnabled atomic.Bool

// IsAllowlisted reports whether the provided key is exempt from automatic redaction.
func IsAllowlisted(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	_, ok := redactionAllowlist[normalized]
	return ok
}

// RedactionAllowlist returns a sorted copy of the log keys that are allowed to be emitted
// without redaction. Tests use this to ensure sensitive keys remain masked.
func RedactionAllowlist() []string {
	keys := make([]string, 0, len(redactionAllowlist))
	for key := range redactionAllowlist {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// MaskField returns a slog.Attr that redacts the supplied value unless the key is
// explicitly allowlisted. The original key casing is preserved for readability.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

// MaskIdentity renders a party identifier for logs. Outside debug level only
// the first and last two bytes are kept.
func MaskIdentity(identity [20]byte) string {
	encoded := hex.EncodeToString(identity[:])
	if debugEnabled.Load() {
		return "0x" + encoded
	}
	return "0x" + encoded[:4] + "…" + encoded[len(encoded)-4:]
}
