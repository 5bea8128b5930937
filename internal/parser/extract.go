package parser

import "fmt"

// nestedActionKeys hold action lists inside an action node. choose and
// repeat are handled separately because their sequences sit one level deeper.
var nestedActionKeys = []string{"then", "else", "sequence", "default", "parallel"}

func extract(m map[string]interface{}) AutomationRecord {
	rec := AutomationRecord{
		Alias:        aliasOf(m),
		TriggerTypes: triggerTypes(resolve(m, "triggers", "trigger")),
		ActionCalls:  actionCalls(resolve(m, "actions", "action")),
	}
	if d, ok := scalarString(m["description"]); ok {
		rec.Description = d
	}
	if bp, ok := m["use_blueprint"].(map[string]interface{}); ok && len(bp) > 0 {
		path := ""
		if p, ok := scalarString(bp["path"]); ok {
			path = p
		}
		input, ok := bp["input"].(map[string]interface{})
		if !ok {
			input = map[string]interface{}{}
		}
		rec.BlueprintPath = &path
		rec.BlueprintInput = input
	}
	return rec
}

// resolve reads the current key name and falls back to the legacy one when
// the current key is absent or empty.
func resolve(m map[string]interface{}, current, legacy string) interface{} {
	if v, ok := m[current]; ok && truthy(v) {
		return v
	}
	return m[legacy]
}

func aliasOf(m map[string]interface{}) *string {
	for _, key := range []string{"alias", "name", "id"} {
		v := m[key]
		if !truthy(v) {
			continue
		}
		if s, ok := scalarString(v); ok {
			return &s
		}
	}
	return nil
}

func triggerTypes(raw interface{}) []string {
	types := newOrderedSet()
	for _, entry := range asList(raw) {
		t, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		if name, ok := scalarString(resolve(t, "trigger", "platform")); ok {
			types.add(name)
		}
	}
	return types.items
}

func actionCalls(raw interface{}) []string {
	calls := newOrderedSet()
	var walk func(node interface{})
	walkAll := func(v interface{}) {
		for _, item := range asList(v) {
			walk(item)
		}
	}
	walk = func(node interface{}) {
		m, ok := node.(map[string]interface{})
		if !ok {
			return
		}
		if call, ok := scalarString(resolve(m, "action", "service")); ok {
			calls.add(call)
		}
		for _, option := range asList(m["choose"]) {
			if opt, ok := option.(map[string]interface{}); ok {
				walkAll(opt["sequence"])
			}
		}
		for _, key := range nestedActionKeys {
			walkAll(m[key])
		}
		if repeat, ok := m["repeat"].(map[string]interface{}); ok {
			walkAll(repeat["sequence"])
		}
	}
	walkAll(raw)
	return calls.items
}

// asList treats a single mapping as a one-element list.
func asList(v interface{}) []interface{} {
	switch t := v.(type) {
	case []interface{}:
		return t
	case map[string]interface{}:
		return []interface{}{t}
	}
	return nil
}

// scalarString stringifies scalars; collections and nil are rejected.
func scalarString(v interface{}) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case []interface{}, map[string]interface{}:
		return "", false
	}
	return fmt.Sprint(v), true
}

func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case int:
		return t != 0
	case int64:
		return t != 0
	case uint64:
		return t != 0
	case float64:
		return t != 0
	case []interface{}:
		return len(t) > 0
	case map[string]interface{}:
		return len(t) > 0
	}
	return true
}

type orderedSet struct {
	seen  map[string]struct{}
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]struct{}), items: []string{}}
}

func (s *orderedSet) add(v string) {
	if v == "" {
		return
	}
	if _, ok := s.seen[v]; ok {
		return
	}
	s.seen[v] = struct{}{}
	s.items = append(s.items, v)
}
