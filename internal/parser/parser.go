// Package parser extracts Home Assistant automation records, with their source
// line spans, from automation YAML files.
package parser

import (
	"bytes"
	"errors"
	"io"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// AutomationRecord is the normalized metadata of one automation.
type AutomationRecord struct {
	Alias          *string
	Description    string
	TriggerTypes   []string
	BlueprintPath  *string
	BlueprintInput map[string]interface{}
	ActionCalls    []string
	StartLine      *int
	EndLine        *int
}

// Parser is stateless and safe for concurrent use.
type Parser struct {
	logger *logrus.Logger
}

func New(logger *logrus.Logger) *Parser {
	if logger == nil {
		logger = logrus.New()
	}
	return &Parser{logger: logger}
}

// Parse returns the automations found in content. Malformed input yields an
// empty slice; it never returns an error.
func (p *Parser) Parse(content string) []AutomationRecord {
	return p.ParseBytes([]byte(content))
}

func (p *Parser) ParseBytes(data []byte) []AutomationRecord {
	records := []AutomationRecord{}

	docs, err := decodeDocuments(data)
	if err != nil {
		p.logger.Warnf("YAML parsing error: %v", err)
		return records
	}

	index := newLineIndex(data, docs)
	for _, doc := range docs {
		candidates, ok := candidateNodes(doc)
		if !ok {
			p.logger.Debugf("No automations in YAML document at line %d", doc.Line)
			continue
		}
		for i, node := range candidates {
			if rec, ok := p.parseCandidate(i, node, index); ok {
				records = append(records, rec)
			}
		}
	}

	p.logger.Debugf("Parsed %d automations from YAML", len(records))
	return records
}

func decodeDocuments(data []byte) ([]*yaml.Node, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	var docs []*yaml.Node
	for {
		var doc yaml.Node
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			return docs, nil
		}
		if err != nil {
			return nil, err
		}
		docs = append(docs, &doc)
	}
}

// candidateNodes normalizes the supported top-level shapes: a list of
// automations, a mapping with an "automation" key, or a single automation.
func candidateNodes(doc *yaml.Node) ([]*yaml.Node, bool) {
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, false
	}
	root := deref(doc.Content[0])
	if root == nil {
		return nil, false
	}
	switch root.Kind {
	case yaml.SequenceNode:
		return root.Content, true
	case yaml.MappingNode:
		if wrapped := mappingValue(root, "automation"); wrapped != nil {
			wrapped = deref(wrapped)
			if wrapped != nil && wrapped.Kind == yaml.SequenceNode {
				return wrapped.Content, true
			}
			return []*yaml.Node{wrapped}, true
		}
		return []*yaml.Node{root}, true
	}
	return nil, false
}

func (p *Parser) parseCandidate(i int, node *yaml.Node, index *lineIndex) (rec AutomationRecord, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warnf("Error parsing automation at index %d: %v", i, r)
			ok = false
		}
	}()

	target := deref(node)
	if target == nil || target.Kind != yaml.MappingNode {
		p.logger.Debugf("Skipping non-mapping automation at index %d", i)
		return AutomationRecord{}, false
	}

	values, _ := newConverter().value(target).(map[string]interface{})
	rec = extract(values)
	// Spans follow the node as written, so an alias item points at its own line.
	rec.StartLine, rec.EndLine = index.span(node)
	return rec, true
}
