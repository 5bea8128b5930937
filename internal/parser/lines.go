package parser

import (
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// lineIndex answers "where does this node end" questions. yaml.v3 only records
// where a node starts, so the end of a candidate is derived from the start of
// whatever node follows it, minus trailing blank and comment lines.
type lineIndex struct {
	lines  []string
	starts []int // sorted start lines of every node in the stream
}

func newLineIndex(data []byte, docs []*yaml.Node) *lineIndex {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	lines := strings.Split(text, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}

	seen := make(map[int]struct{})
	var walk func(n *yaml.Node)
	walk = func(n *yaml.Node) {
		if n == nil {
			return
		}
		if n.Line > 0 && n.Kind != yaml.DocumentNode {
			seen[n.Line] = struct{}{}
		}
		if n.Kind == yaml.AliasNode {
			return
		}
		for _, child := range n.Content {
			walk(child)
		}
	}
	for _, doc := range docs {
		walk(doc)
	}

	starts := make([]int, 0, len(seen))
	for line := range seen {
		starts = append(starts, line)
	}
	sort.Ints(starts)
	return &lineIndex{lines: lines, starts: starts}
}

// span returns the 1-indexed first and last line of n, or nil bounds when the
// node carries no position.
func (ix *lineIndex) span(n *yaml.Node) (*int, *int) {
	if n == nil || n.Line <= 0 {
		return nil, nil
	}
	start := n.Line
	last := lastContentLine(n)

	end := len(ix.lines)
	if next := ix.nextStartAfter(last); next > 0 {
		end = next - 1
	}
	for end > last && isFiller(ix.line(end)) {
		end--
	}
	if end < last {
		end = last
	}
	if end < start {
		end = start
	}
	return &start, &end
}

func (ix *lineIndex) nextStartAfter(line int) int {
	i := sort.SearchInts(ix.starts, line+1)
	if i < len(ix.starts) {
		return ix.starts[i]
	}
	return 0
}

func (ix *lineIndex) line(n int) string {
	if n < 1 || n > len(ix.lines) {
		return ""
	}
	return ix.lines[n-1]
}

// isFiller reports lines that carry no automation content.
func isFiller(line string) bool {
	t := strings.TrimSpace(line)
	switch {
	case t == "", t == "-", t == "---", t == "...":
		return true
	case strings.HasPrefix(t, "#"):
		return true
	}
	return false
}

// lastContentLine is the deepest line known from the node tree alone. Literal
// block scalars extend past their indicator line by their content; folded ones
// are covered by the next-node boundary in span.
func lastContentLine(n *yaml.Node) int {
	end := n.Line
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Style&yaml.LiteralStyle != 0 && n.Value != "" {
			end += strings.Count(strings.TrimRight(n.Value, "\n"), "\n") + 1
		}
	case yaml.MappingNode, yaml.SequenceNode, yaml.DocumentNode:
		for _, child := range n.Content {
			if l := lastContentLine(child); l > end {
				end = l
			}
		}
	}
	return end
}
