package arangocdc

import "strconv"

// Tick is an opaque, server-assigned position in the replication log.
// The client only ever compares ticks for equality and substitutes them
// into a URL; it never needs to parse one to drive control flow.
type Tick = string

// idleTick is the sentinel the server uses to mean "no progress" —
// either because X-Arango-Replication-Lastincluded was absent or
// because it was explicitly "0".
const idleTick Tick = "0"

// tickLess reports whether a orders strictly before b under the
// server's tick order. Ticks are documented as unsigned decimal
// strings, so numeric comparison is used whenever both values parse
// cleanly; otherwise comparison falls back to length-then-lexicographic,
// which is still correct for same-length unsigned decimal strings and
// only degrades gracefully for malformed input. Plain lexicographic
// comparison is unsafe here once ticks exceed each other's decimal length.
//
// Nothing in the package calls tickLess at present; the follow loop
// itself never needs ordering, only equality.
func tickLess(a, b Tick) bool {
	an, aerr := strconv.ParseUint(a, 10, 64)
	bn, berr := strconv.ParseUint(b, 10, 64)
	if aerr == nil && berr == nil {
		return an < bn
	}
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

// tickLessOrEqual reports whether a orders before or equal to b.
func tickLessOrEqual(a, b Tick) bool {
	return a == b || tickLess(a, b)
}
