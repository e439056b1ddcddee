package stats

import (
	"encoding/hex"

	"lukechampine.com/blake3"
)

// Digest returns the hex-encoded 32-byte BLAKE3 digest of data, used to tag
// ledger events for later integrity spot-checks.
func Digest(data []byte) string {
	h := blake3.New(32, nil)
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
