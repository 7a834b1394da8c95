package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	NamespaceIntent = "intent"
	NamespaceSQL    = "sql"
	NamespaceExec   = "exec"
)

// Key fingerprints a tagged request. The namespace prefix is kept in clear
// so that metrics can label lookups; the tagged text is hashed.
func Key(namespace, text string) string {
	sum := sha256.Sum256([]byte(namespace + ":" + text))
	return namespace + ":" + hex.EncodeToString(sum[:])
}

// NormalizeText lower-cases text and collapses whitespace runs.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

func namespaceOf(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return "unknown"
}
