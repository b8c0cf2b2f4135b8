// Package outline parses and renders the binder file: a nested Markdown
// list in which indentation encodes tree depth and each line is a link
// whose target names a node document (and therefore its id) and whose label
// is the node's title. The node document stays authoritative for the title;
// the label is kept in sync but never trusted.
package outline

import (
	"fmt"
	"strings"

	"github.com/eykd/prosemark/internal/fsname"
	"github.com/eykd/prosemark/internal/id"
)

// indentStep is the number of spaces per nesting level.
const indentStep = 2

// Item is one entry of the decoded forest.
type Item struct {
	ID       id.NodeID
	Title    string // link label as written in the outline
	Target   string // link target: the node document's relative path
	Children []*Item
}

// DiagKind classifies one decoding problem.
type DiagKind int

const (
	DiagMalformedLine DiagKind = iota + 1
	DiagBadIndent
	DiagDuplicateTarget
)

func (k DiagKind) String() string {
	switch k {
	case DiagMalformedLine:
		return "malformed line"
	case DiagBadIndent:
		return "bad indentation"
	case DiagDuplicateTarget:
		return "duplicate target"
	default:
		return "unknown"
	}
}

// Diagnostic is one structured decoding problem. Decode collects every
// problem in a single pass instead of stopping at the first.
type Diagnostic struct {
	Line   int // 1-based line number
	Kind   DiagKind
	Target string
	Detail string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("line %d: %s: %s", d.Line, d.Kind, d.Detail)
}

// Lookup resolves an identifier to its current title and document path
// during encoding.
type Lookup func(id.NodeID) (title, target string, ok bool)

// Decode parses outline text into an ordered forest. All problems found are
// returned as diagnostics; when any are present the forest must not be
// trusted (lines with problems are skipped, so the shape is partial).
func Decode(text string) ([]*Item, []Diagnostic) {
	var (
		roots []*Item
		diags []Diagnostic
		seen  = map[string]int{} // target -> first line
		stack []*Item            // stack[d] = last item at depth d
	)

	for i, line := range strings.Split(text, "\n") {
		lineno := i + 1
		if strings.TrimSpace(line) == "" {
			continue
		}

		indent := len(line) - len(strings.TrimLeft(line, " "))
		body := line[indent:]
		if strings.HasPrefix(body, "\t") {
			diags = append(diags, Diagnostic{lineno, DiagBadIndent, "", "tab indentation"})
			continue
		}

		title, target, ok := parseLink(body)
		if !ok {
			diags = append(diags, Diagnostic{lineno, DiagMalformedLine, "", fmt.Sprintf("expected %q form, got %q", "- [Title](file)", body)})
			continue
		}

		if indent%indentStep != 0 {
			diags = append(diags, Diagnostic{lineno, DiagBadIndent, target, fmt.Sprintf("indent of %d spaces is not a multiple of %d", indent, indentStep)})
			continue
		}
		depth := indent / indentStep
		if depth > len(stack) {
			diags = append(diags, Diagnostic{lineno, DiagBadIndent, target, fmt.Sprintf("level %d under a level-%d parent", depth, len(stack)-1)})
			continue
		}

		nid, ok := fsname.ImpliedID(target)
		if !ok {
			diags = append(diags, Diagnostic{lineno, DiagMalformedLine, target, "target does not name a node document"})
			continue
		}
		if first, dup := seen[target]; dup {
			diags = append(diags, Diagnostic{lineno, DiagDuplicateTarget, target, fmt.Sprintf("already listed on line %d", first)})
			continue
		}
		seen[target] = lineno

		item := &Item{ID: nid, Title: title, Target: target}
		if depth == 0 {
			roots = append(roots, item)
		} else {
			parent := stack[depth-1]
			parent.Children = append(parent.Children, item)
		}
		stack = append(stack[:depth], item)
	}

	return roots, diags
}

// Encode renders a forest of identifiers back to outline text. It is a pure
// function of the forest and the lookup: encoding twice with no intervening
// change yields byte-identical text. Identifiers the lookup cannot resolve
// are an error (the caller's forest is out of sync with its node set).
func Encode(forest []*Item, lookup Lookup) (string, error) {
	var b strings.Builder
	for _, item := range forest {
		if err := encodeItem(&b, item, 0, lookup); err != nil {
			return "", err
		}
	}
	return b.String(), nil
}

func encodeItem(b *strings.Builder, item *Item, depth int, lookup Lookup) error {
	title, target, ok := lookup(item.ID)
	if !ok {
		return fmt.Errorf("outline: encode: unknown node %s", item.ID)
	}
	b.WriteString(strings.Repeat(" ", depth*indentStep))
	b.WriteString("- [")
	b.WriteString(escapeLabel(title))
	b.WriteString("](")
	b.WriteString(target)
	b.WriteString(")\n")
	for _, child := range item.Children {
		if err := encodeItem(b, child, depth+1, lookup); err != nil {
			return err
		}
	}
	return nil
}

// parseLink matches `- [Title](target)`. The target may contain spaces and
// parentheses are matched greedily so only the final ")" terminates it.
func parseLink(body string) (title, target string, ok bool) {
	rest, ok := strings.CutPrefix(body, "- [")
	if !ok {
		return "", "", false
	}
	// The separator is the first "](" whose "]" is not escaped; escaped
	// brackets belong to the label.
	sep := -1
	for i := 0; i+1 < len(rest); i++ {
		if rest[i] == ']' && rest[i+1] == '(' && (i == 0 || rest[i-1] != '\\') {
			sep = i
			break
		}
	}
	if sep < 0 {
		return "", "", false
	}
	title = unescapeLabel(rest[:sep])
	rest = rest[sep+2:]
	if !strings.HasSuffix(rest, ")") {
		return "", "", false
	}
	target = rest[:len(rest)-1]
	if target == "" {
		return "", "", false
	}
	return title, target, true
}

// Square brackets in titles would break the link syntax, so they are
// backslash-escaped in labels.
func escapeLabel(s string) string {
	s = strings.ReplaceAll(s, `[`, `\[`)
	return strings.ReplaceAll(s, `]`, `\]`)
}

func unescapeLabel(s string) string {
	s = strings.ReplaceAll(s, `\[`, `[`)
	return strings.ReplaceAll(s, `\]`, `]`)
}
