package canon

import (
	"context"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
)

// candidateLanguages holds the small set of tree-sitter grammars used to
// refine an unlabeled fence; tsx and typescript parse close enough to
// javascript that a wrong guess there costs nothing since the label is
// cosmetic, not load-bearing.
var candidateLanguages = []struct {
	label string
	lang  *sitter.Language
}{
	{"go", golang.GetLanguage()},
	{"python", python.GetLanguage()},
	{"javascript", javascript.GetLanguage()},
}

// detectFenceLanguage best-effort refines an unlabeled code fence's language
// by parsing body with each candidate grammar and keeping the one with the
// fewest ERROR nodes, below a tolerance threshold. It returns "" when no
// candidate parses cleanly enough to guess confidently -- the canonicalizer
// never blocks on this and folds the fence unlabeled rather than guessing
// wrong.
func detectFenceLanguage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	parser := sitter.NewParser()
	defer parser.Close()

	best := ""
	bestErrors := -1
	for _, cand := range candidateLanguages {
		parser.SetLanguage(cand.lang)
		tree, err := parser.ParseCtx(context.Background(), nil, body)
		if err != nil || tree == nil {
			continue
		}
		errCount := countErrors(tree.RootNode())
		if bestErrors == -1 || errCount < bestErrors {
			best = cand.label
			bestErrors = errCount
		}
	}
	// More than one error node per ~40 bytes of source reads as noise, not
	// a real parse of this language.
	if bestErrors < 0 || bestErrors*40 > len(body) {
		return ""
	}
	return best
}

// countErrors walks the tree counting nodes tree-sitter marked as ERROR
// (the grammar-agnostic convention every tree-sitter grammar follows for a
// parse failure), using Type()/ChildCount()/Child() rather than any
// grammar-specific helper.
func countErrors(n *sitter.Node) int {
	if n == nil {
		return 0
	}
	count := 0
	if n.Type() == "ERROR" {
		count++
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		count += countErrors(n.Child(i))
	}
	return count
}
