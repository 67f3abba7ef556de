package utils

import (
	"crypto/sha1"
	"encoding/hex"
)

func Hash(b []byte) string {
	sum := sha1.Sum(b)
	return hex.EncodeToString(sum[:])
}

// ETag returns a strong entity tag for a response body.
func ETag(body []byte) string {
	return `"` + Hash(body) + `"`
}
