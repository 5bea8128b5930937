package parser

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// maxNodes bounds alias expansion so a hostile file cannot blow up memory.
const maxNodes = 1 << 20

var errTooManyNodes = errors.New("yaml alias expansion exceeds node limit")

// converter turns a yaml.Node subtree into plain Go values: maps, slices and
// scalars. Merge keys are applied and aliases expanded.
type converter struct {
	active  map[*yaml.Node]bool
	visited int
}

func newConverter() *converter {
	return &converter{active: make(map[*yaml.Node]bool)}
}

func (c *converter) value(n *yaml.Node) interface{} {
	if n == nil {
		return nil
	}
	c.visited++
	if c.visited > maxNodes {
		panic(errTooManyNodes)
	}

	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil
		}
		return c.value(n.Content[0])
	case yaml.AliasNode:
		if n.Alias == nil || c.active[n.Alias] {
			return nil
		}
		c.active[n.Alias] = true
		defer delete(c.active, n.Alias)
		return c.value(n.Alias)
	case yaml.SequenceNode:
		out := make([]interface{}, 0, len(n.Content))
		for _, item := range n.Content {
			out = append(out, c.value(item))
		}
		return out
	case yaml.MappingNode:
		return c.mapping(n)
	case yaml.ScalarNode:
		return scalarValue(n)
	}
	return nil
}

func (c *converter) mapping(n *yaml.Node) map[string]interface{} {
	out := make(map[string]interface{}, len(n.Content)/2)
	var merges []*yaml.Node
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i], n.Content[i+1]
		if key.Kind == yaml.ScalarNode && key.ShortTag() == "!!merge" {
			merges = append(merges, val)
			continue
		}
		out[c.keyString(key)] = c.value(val)
	}

	// Explicit keys win over merged ones; earlier merge sources win over later.
	for _, m := range merges {
		switch merged := c.value(m).(type) {
		case map[string]interface{}:
			fillMissing(out, merged)
		case []interface{}:
			for _, item := range merged {
				if mm, ok := item.(map[string]interface{}); ok {
					fillMissing(out, mm)
				}
			}
		}
	}
	return out
}

func fillMissing(dst, src map[string]interface{}) {
	for k, v := range src {
		if _, exists := dst[k]; !exists {
			dst[k] = v
		}
	}
}

func (c *converter) keyString(key *yaml.Node) string {
	if key.Kind == yaml.ScalarNode {
		return key.Value
	}
	return fmt.Sprint(c.value(key))
}

// scalarValue resolves standard tags and keeps the raw text for local tags
// such as !secret or !include.
func scalarValue(n *yaml.Node) interface{} {
	if !strings.HasPrefix(n.ShortTag(), "!!") {
		return n.Value
	}
	var v interface{}
	if err := n.Decode(&v); err != nil {
		return n.Value
	}
	return v
}

func deref(n *yaml.Node) *yaml.Node {
	for hops := 0; n != nil && n.Kind == yaml.AliasNode; hops++ {
		if hops > 64 {
			return nil
		}
		n = n.Alias
	}
	return n
}

// mappingValue returns the value node for a literal key of a mapping node.
func mappingValue(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if k := m.Content[i]; k.Kind == yaml.ScalarNode && k.Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}
