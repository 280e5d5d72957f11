// Package twotier implements the two-tier progressive searcher: a fast,
// always-in-process embedding pass followed by an optional quality-tier
// refinement pass through the warm daemon, streamed to the caller as a lazy
// sequence of phases over a shared candidate set.
package twotier

import "strconv"

// DocKind discriminates the three document ID shapes a two-tier row can
// carry: a whole session, a single turn within a session, or a code block
// nested inside a turn.
type DocKind uint8

const (
	KindSession DocKind = iota
	KindTurn
	KindCodeBlock
)

// DocID identifies one row in a two-tier index. Fields beyond Kind are
// populated according to which Kind is set:
//   - KindSession:   SessionID
//   - KindTurn:      SessionID, TurnIdx
//   - KindCodeBlock: SessionID, TurnIdx, BlockIdx
type DocID struct {
	Kind      DocKind
	SessionID string
	TurnIdx   int
	BlockIdx  int
}

// Session builds a session-level document ID.
func Session(sessionID string) DocID {
	return DocID{Kind: KindSession, SessionID: sessionID}
}

// Turn builds a turn-level document ID.
func Turn(sessionID string, turnIdx int) DocID {
	return DocID{Kind: KindTurn, SessionID: sessionID, TurnIdx: turnIdx}
}

// CodeBlock builds a code-block-level document ID.
func CodeBlock(sessionID string, turnIdx, blockIdx int) DocID {
	return DocID{Kind: KindCodeBlock, SessionID: sessionID, TurnIdx: turnIdx, BlockIdx: blockIdx}
}

// key renders a DocID to a string suitable for map keys, distinct across
// all three kinds even when a session ID happens to look numeric.
func (d DocID) key() string {
	switch d.Kind {
	case KindSession:
		return "s:" + d.SessionID
	case KindTurn:
		return "t:" + d.SessionID + ":" + strconv.Itoa(d.TurnIdx)
	case KindCodeBlock:
		return "c:" + d.SessionID + ":" + strconv.Itoa(d.TurnIdx) + ":" + strconv.Itoa(d.BlockIdx)
	default:
		return "?"
	}
}

// String renders a human-readable form, used in logs and test failures.
func (d DocID) String() string {
	return d.key()
}
