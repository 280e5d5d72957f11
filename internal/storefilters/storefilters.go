// Package storefilters defines the contracts the query planner uses to
// translate human-readable filter tokens (agent slugs, workspace paths,
// source names) into the numeric IDs CVVI rows and lexical documents are
// keyed by, and to hydrate message rows back out of message_ids after a
// search. A read-only lookup contract a concrete SQLite- or in-memory-backed
// store can implement, keyed the same way a string ID <-> uint64 map would
// be for an on-disk vector index.
package storefilters

import "context"

// SemanticFilterMaps resolves human-readable filter tokens to the numeric
// IDs the vector and lexical indices store. A miss is reported as ok=false
// rather than an error; the query planner turns an unresolvable token into
// an invalid-input error for the whole search.
type SemanticFilterMaps interface {
	AgentID(ctx context.Context, slug string) (id uint32, ok bool)
	WorkspaceID(ctx context.Context, path string) (id uint32, ok bool)
	SourceID(ctx context.Context, name string) (id uint32, ok bool)
}

// Row is one hydrated message row returned alongside a search result.
type Row struct {
	MessageID   uint64
	AgentSlug   string
	Workspace   string
	Source      string
	Role        string
	CreatedAtMs int64
	Content     string
}

// RowHydrator resolves message_ids back into full rows for presentation.
// Hydration is order-preserving and gap-tolerant: a message_id with no
// backing row (deleted between index build and query) is simply omitted
// rather than causing the whole hydration call to fail.
type RowHydrator interface {
	Hydrate(ctx context.Context, messageIDs []uint64) ([]Row, error)
}
