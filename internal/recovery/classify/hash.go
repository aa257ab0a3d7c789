package classify

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// GroupID derives the deterministic group id for a classification. The id is
// a pure function of the classifier name and the classification value, stable
// across processes, and restricted to letters, digits, dot, and underscore so
// it is safe as a routing key.
func GroupID(classifierName, value string) string {
	sum := sha256.Sum256([]byte(classifierName + "\x00" + value))
	return SanitizeID(classifierName) + "." + hex.EncodeToString(sum[:])[:24]
}

// SanitizeID replaces every character outside [A-Za-z0-9._] with an
// underscore.
func SanitizeID(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9',
			r == '.', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
