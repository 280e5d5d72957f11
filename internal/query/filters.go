// Package query implements the query planner and cache: filter-token
// parsing, an LRU result cache invalidated by CVVI reload, and hybrid
// min-max-normalized blending of lexical and vector search legs, with
// parallel fan-out and graceful single-leg degradation.
package query

import (
	"strconv"
	"strings"
	"time"
)

// Filters is the parsed, still-human-readable form of a query's structured
// tokens, before translation to numeric IDs via storefilters.
type Filters struct {
	Agent     string
	Workspace string
	Source    string
	Role      string
	Since     *time.Time
	Before    *time.Time
	Text      string
}

// knownPrefixes maps a filter token prefix to the Filters field it sets.
var knownPrefixes = []string{"agent:", "workspace:", "source:", "role:", "since:", "before:"}

// ParseQuery splits raw into its free-text portion and structured
// `key:value` filter tokens (e.g. "agent:claude since:2026-01-01 how do
// retries work"). Unrecognized `key:value`-shaped tokens are left in the
// free text untouched, since they might just be a colon the user typed.
func ParseQuery(raw string) Filters {
	var f Filters
	var textParts []string

	for _, tok := range strings.Fields(raw) {
		matched := false
		for _, prefix := range knownPrefixes {
			if strings.HasPrefix(strings.ToLower(tok), prefix) {
				value := tok[len(prefix):]
				applyToken(&f, prefix, value)
				matched = true
				break
			}
		}
		if !matched {
			textParts = append(textParts, tok)
		}
	}

	f.Text = strings.Join(textParts, " ")
	return f
}

func applyToken(f *Filters, prefix, value string) {
	switch prefix {
	case "agent:":
		f.Agent = value
	case "workspace:":
		f.Workspace = value
	case "source:":
		f.Source = value
	case "role:":
		f.Role = value
	case "since:":
		if t, ok := parseFlexibleTime(value); ok {
			f.Since = &t
		}
	case "before:":
		if t, ok := parseFlexibleTime(value); ok {
			f.Before = &t
		}
	}
}

// parseFlexibleTime accepts an RFC3339 timestamp, a bare date
// (2026-01-01), or a relative "Nd"/"Nh" offset from now.
func parseFlexibleTime(value string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, true
	}
	if len(value) >= 2 {
		unit := value[len(value)-1]
		if unit == 'd' || unit == 'h' {
			if n, err := strconv.Atoi(value[:len(value)-1]); err == nil {
				d := time.Duration(n) * time.Hour
				if unit == 'd' {
					d *= 24
				}
				return time.Now().Add(-d), true
			}
		}
	}
	return time.Time{}, false
}

// CanonicalKey renders filters into a stable string for cache keying:
// field order is fixed regardless of parse order.
func (f Filters) CanonicalKey() string {
	var b strings.Builder
	b.WriteString("a=")
	b.WriteString(f.Agent)
	b.WriteString("|w=")
	b.WriteString(f.Workspace)
	b.WriteString("|s=")
	b.WriteString(f.Source)
	b.WriteString("|r=")
	b.WriteString(f.Role)
	if f.Since != nil {
		b.WriteString("|since=")
		b.WriteString(f.Since.UTC().Format(time.RFC3339))
	}
	if f.Before != nil {
		b.WriteString("|before=")
		b.WriteString(f.Before.UTC().Format(time.RFC3339))
	}
	return b.String()
}
