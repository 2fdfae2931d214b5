package util

import (
	"crypto/rand"

	"github.com/mr-tron/base58"
)

// ShortCode returns a human-friendly display code with the given prefix,
// e.g. "REQ-4fQz8p". Base58 avoids visually ambiguous characters (0/O,
// I/l), which matters because the codes are read aloud and retyped.
func ShortCode(prefix string) string {
	buf := make([]byte, 5)
	// rand.Read never fails on supported platforms
	_, _ = rand.Read(buf)
	return prefix + "-" + base58.Encode(buf)
}
