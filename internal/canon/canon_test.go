package canon

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIdempotence(t *testing.T) {
	inputs := []string{
		"**Hello** world",
		"# Title\n\nsome body [link](http://x.com)",
		"plain text, nothing special",
		"",
	}
	for _, in := range inputs {
		once := Canonicalize(in)
		twice := Canonicalize(once)
		require.Equal(t, once, twice, "canonicalize should be idempotent for %q", in)
	}
}

func TestNFCStability(t *testing.T) {
	a := "café"
	b := "café"
	require.Equal(t, ContentHash(Canonicalize(a)), ContentHash(Canonicalize(b)))
}

func TestOrderedListVsDecimal(t *testing.T) {
	out := Canonicalize("1. First\n3.14 is pi")
	require.Contains(t, out, "First")
	require.Contains(t, out, "3.14 is pi")
}

func TestCodeFenceFoldingShort(t *testing.T) {
	in := "```go\nfunc main() {}\n```"
	out := Canonicalize(in)
	require.Contains(t, out, "[code: go]")
	require.Contains(t, out, "func main() {}")
}

func TestCodeFenceFoldingLong(t *testing.T) {
	var lines []string
	for i := 0; i < 50; i++ {
		lines = append(lines, "line")
	}
	in := "```python\n" + strings.Join(lines, "\n") + "\n```"
	out := Canonicalize(in)
	require.Contains(t, out, "[code: python]")
	require.Contains(t, out, "[... 20 lines omitted ...]")
}

func TestCodeFenceUnlabeledDetectsGo(t *testing.T) {
	in := "```\nfunc main() {\n\tfmt.Println(\"hi\")\n}\n```"
	out := Canonicalize(in)
	require.Contains(t, out, "[code: go]")
}

func TestCodeFenceUnlabeledGibberishStaysUnlabeled(t *testing.T) {
	in := "```\n&*( not real code at all ^%$\n```"
	out := Canonicalize(in)
	require.Contains(t, out, "[code: ]")
}

func TestLinkFolding(t *testing.T) {
	out := Canonicalize("see [docs](https://example.com/a(b)c) for more")
	require.Contains(t, out, "see docs for more")
	require.NotContains(t, out, "http")
}

func TestLowSignalFilter(t *testing.T) {
	for _, in := range []string{"ok", "Done.", "thanks", "Understood"} {
		require.Equal(t, "", Canonicalize(in), "input %q should be filtered", in)
	}
}

func TestTruncation(t *testing.T) {
	long := strings.Repeat("a", 5000)
	out := Canonicalize(long)
	require.LessOrEqual(t, len([]rune(out)), 2000)
}

func TestBoldAndInlineCode(t *testing.T) {
	out := Canonicalize("**Hello** and `code` and _em_")
	require.Equal(t, "Hello and code and em", out)
}
