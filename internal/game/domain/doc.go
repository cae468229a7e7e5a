// Package domain holds the mutable state of one running game: the session
// record, its participants, and the identity rules that survive role swaps
// and forfeits. Rule-specific payloads are opaque to this package; they are
// owned by the rule set selected through the session's game type.
package domain
