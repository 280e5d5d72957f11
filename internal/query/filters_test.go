package query

import (
	"testing"
	"time"
)

func TestParseQueryExtractsKnownPrefixes(t *testing.T) {
	f := ParseQuery("agent:claude workspace:/repo since:2026-01-01 how do retries work")
	if f.Agent != "claude" {
		t.Fatalf("agent = %q, want claude", f.Agent)
	}
	if f.Workspace != "/repo" {
		t.Fatalf("workspace = %q, want /repo", f.Workspace)
	}
	if f.Since == nil || f.Since.Format("2006-01-02") != "2026-01-01" {
		t.Fatalf("since = %v, want 2026-01-01", f.Since)
	}
	if f.Text != "how do retries work" {
		t.Fatalf("text = %q, want free text with filter tokens removed", f.Text)
	}
}

func TestParseQueryLeavesUnknownColonTokensInText(t *testing.T) {
	f := ParseQuery("foo:bar what time is it")
	if f.Text != "foo:bar what time is it" {
		t.Fatalf("text = %q, want unknown-prefix token preserved", f.Text)
	}
}

func TestParseQueryRelativeTimeOffsets(t *testing.T) {
	before := time.Now()
	f := ParseQuery("since:7d errors")
	if f.Since == nil {
		t.Fatal("expected since to be set")
	}
	want := before.Add(-7 * 24 * time.Hour)
	if f.Since.Sub(want) > time.Minute || want.Sub(*f.Since) > time.Minute {
		t.Fatalf("since = %v, want approximately %v", f.Since, want)
	}
}

func TestCanonicalKeyStableAcrossParseOrder(t *testing.T) {
	a := ParseQuery("agent:claude workspace:/repo text here")
	b := ParseQuery("workspace:/repo agent:claude text here")
	if a.CanonicalKey() != b.CanonicalKey() {
		t.Fatalf("canonical keys differ despite same filters: %q vs %q", a.CanonicalKey(), b.CanonicalKey())
	}
}

func TestCanonicalKeyDiffersOnDifferentFilters(t *testing.T) {
	a := ParseQuery("agent:claude text")
	b := ParseQuery("agent:gpt text")
	if a.CanonicalKey() == b.CanonicalKey() {
		t.Fatal("expected different canonical keys for different agent filters")
	}
}
