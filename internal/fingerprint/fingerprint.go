// Package fingerprint computes the content identity of a source document.
//
// Fingerprints key the ingested_documents table when dedup is enabled, so a
// document that is imported twice (batch rerun, duplicate watch event,
// second ingester process) is stored once.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
)

// Domain separates document fingerprints from any other SHA-256 use.
// The version suffix allows changing the algorithm later.
const Domain = "bankdrop/document/v1"

// Of returns the hex fingerprint of a document body.
// Format: SHA256(Domain + 0x00 + data).
func Of(data []byte) string {
	h := sha256.New()
	h.Write([]byte(Domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
