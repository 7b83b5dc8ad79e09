// Package fingerprint derives deterministic identifiers from message text.
//
// Fingerprints are the dedup key for the monitoring pipeline: a message
// whose text has been seen before in the same page lifetime is never
// routed twice. The digest covers the full text (FNV-1a, 64 bit), so two
// distinct long messages that share a prefix still get distinct
// fingerprints. Collisions require two different texts hashing to the
// same 64-bit value, which at conversation scale is negligible.
package fingerprint

import (
	"hash/fnv"
	"strconv"
)

// Fingerprint is a stable identifier for a message's exact text.
type Fingerprint string

// Text fingerprints the full content of s.
func Text(s string) Fingerprint {
	h := fnv.New64a()
	h.Write([]byte(s))
	return Fingerprint("msg_" + strconv.FormatUint(h.Sum64(), 36))
}
