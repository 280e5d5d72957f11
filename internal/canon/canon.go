// Package canon implements the canonicalizer: deterministic text ->
// embedding input, and the SHA-256 content hash used as the sole identity
// for embedding cache reuse.
//
// Pipeline, in this exact order: NFC normalize, markdown strip (including
// fenced code-block folding), link fold, whitespace collapse, low-signal
// filter, truncate to 2000 Unicode scalar values. Unlabeled fences get a
// best-effort tree-sitter language guess (langdetect.go).
package canon

import (
	"crypto/sha256"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const maxRunes = 2000

var (
	fenceOpenPattern = regexp.MustCompile("(?m)^```([a-zA-Z0-9_+-]*)\\s*$")
	fenceClosePattern = regexp.MustCompile("(?m)^```\\s*$")

	headerPattern     = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	blockquotePattern = regexp.MustCompile(`(?m)^>\s?`)
	orderedListPattern   = regexp.MustCompile(`(?m)^(\d+)\.\s+`)
	unorderedListPattern = regexp.MustCompile(`(?m)^[-+]\s+`)

	boldPattern       = regexp.MustCompile(`\*\*([^*]+)\*\*|__([^_]+)__`)
	italicPattern     = regexp.MustCompile(`\*([^*]+)\*|_([^_]+)_`)
	inlineCodePattern = regexp.MustCompile("`([^`]+)`")

	linkPattern = regexp.MustCompile(`\[([^\]]*)\]\(([^()]*(?:\([^()]*\)[^()]*)*)\)`)

	whitespaceRunPattern = regexp.MustCompile(`\s+`)
)

var lowSignalSet = buildLowSignalSet()

func buildLowSignalSet() map[string]struct{} {
	base := []string{
		"ok", "done", "got it", "understood", "sure", "yes", "no",
		"thanks", "thank you",
	}
	set := make(map[string]struct{}, len(base)*2)
	for _, s := range base {
		set[s] = struct{}{}
		set[s+"."] = struct{}{}
	}
	return set
}

// Canonicalize runs the full deterministic pipeline on text and returns the
// canonical form. It never errors: malformed markdown degrades gracefully by
// passing the offending span through unchanged.
func Canonicalize(text string) string {
	s := norm.NFC.String(text)
	s = stripMarkdown(s)
	s = foldLinks(s)
	s = collapseWhitespace(s)
	if isLowSignal(s) {
		return ""
	}
	return truncateRunes(s, maxRunes)
}

// ContentHash returns the SHA-256 of the UTF-8 bytes of canonical text; it is
// the only identity used for embedding cache reuse.
func ContentHash(canonicalText string) [32]byte {
	return sha256.Sum256([]byte(canonicalText))
}

// stripMarkdown folds fenced code blocks, rewrites inline emphasis/inline-code
// to plain text, and drops header/blockquote/list-marker punctuation. Ordered
// list markers are recognized only as "^\d+\. " — "3.14 is pi" must survive
// untouched since it is not followed by a space-terminated list marker there.
func stripMarkdown(s string) string {
	s = foldCodeFences(s)

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		line = headerPattern.ReplaceAllString(line, "")
		line = blockquotePattern.ReplaceAllString(line, "")
		line = orderedListPattern.ReplaceAllString(line, "")
		line = unorderedListPattern.ReplaceAllString(line, "")
		lines[i] = line
	}
	s = strings.Join(lines, "\n")

	s = boldPattern.ReplaceAllString(s, "$1$2")
	s = italicPattern.ReplaceAllString(s, "$1$2")
	s = inlineCodePattern.ReplaceAllString(s, "$1")

	return s
}

// foldCodeFences replaces each fenced code block with its folded form:
// verbatim with a "[code: LANG]" prefix if <= 30 lines, else first 20 + last
// 10 lines separated by an elision marker.
func foldCodeFences(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	i := 0
	for i < len(lines) {
		m := fenceOpenPattern.FindStringSubmatch(lines[i])
		if m == nil {
			out = append(out, lines[i])
			i++
			continue
		}
		lang := m[1]
		start := i + 1
		end := -1
		for j := start; j < len(lines); j++ {
			if fenceClosePattern.MatchString(lines[j]) {
				end = j
				break
			}
		}
		if end == -1 {
			// Unterminated fence: pass the rest through unchanged.
			out = append(out, lines[i:]...)
			break
		}
		body := lines[start:end]
		if lang == "" {
			lang = detectFenceLanguage([]byte(strings.Join(body, "\n")))
		}
		out = append(out, foldCodeBody(lang, body)...)
		i = end + 1
	}
	return strings.Join(out, "\n")
}

func foldCodeBody(lang string, body []string) []string {
	header := "[code: " + lang + "]"
	if len(body) <= 30 {
		return append([]string{header}, body...)
	}
	head := body[:20]
	tail := body[len(body)-10:]
	omitted := len(body) - 30
	marker := "[... " + itoa(omitted) + " lines omitted ...]"
	out := make([]string, 0, 1+len(head)+1+len(tail))
	out = append(out, header)
	out = append(out, head...)
	out = append(out, marker)
	out = append(out, tail...)
	return out
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// foldLinks rewrites "[text](url)" -> "text", tolerating one level of
// balanced parentheses inside the URL.
func foldLinks(s string) string {
	return linkPattern.ReplaceAllString(s, "$1")
}

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRunPattern.ReplaceAllString(s, " "))
}

func isLowSignal(s string) bool {
	_, ok := lowSignalSet[strings.ToLower(s)]
	return ok
}

// truncateRunes truncates to at most n Unicode scalar values, on a rune
// boundary (never splitting a multi-byte rune).
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
