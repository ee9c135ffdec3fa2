package rules

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// The exchange format tags every variant with its name:
//
//	{"Int": 5}, "Null"
//	{"Equals": {"field": "currency", "value": {"String": "USD"}}}
//	{"And": [...]}, {"Not": {...}}
//	{"UpdateField": {"field": "flag", "value": {"Bool": true}}}
//	{"Composite": [...]}

func tagged(tag string, body any) ([]byte, error) {
	return json.Marshal(map[string]any{tag: body})
}

// splitTagged returns the single tag of an object and its body.
func splitTagged(data []byte) (string, json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", nil, fmt.Errorf("expected tagged object: %w", err)
	}
	if len(obj) != 1 {
		return "", nil, fmt.Errorf("expected exactly one variant tag, got %d", len(obj))
	}
	for tag, body := range obj {
		return tag, body, nil
	}
	return "", nil, nil
}

// requireFields fails when a key is absent from the object or null.
func requireFields(body []byte, names ...string) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return err
	}
	for _, name := range names {
		raw, ok := obj[name]
		if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return fmt.Errorf("missing field %q", name)
		}
	}
	return nil
}

type fieldValueJSON struct {
	Field string          `json:"field"`
	Value json.RawMessage `json:"value"`
}

type logJSON struct {
	Message string `json:"message"`
}

type callJSON struct {
	Endpoint string                     `json:"endpoint"`
	Payload  map[string]json.RawMessage `json:"payload"`
}

type eventJSON struct {
	EventType string                     `json:"event_type"`
	Data      map[string]json.RawMessage `json:"data"`
}

type ruleJSON struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description *string           `json:"description"`
	Priority    uint32            `json:"priority"`
	Condition   json.RawMessage   `json:"condition"`
	Actions     []json.RawMessage `json:"actions"`
	Enabled     bool              `json:"enabled"`
}

// MarshalCondition encodes a condition tree.
func MarshalCondition(c Condition) ([]byte, error) {
	switch cond := c.(type) {
	case Equals:
		return marshalLeaf(TagEquals, cond.Field, cond.Value)
	case GreaterThan:
		return marshalLeaf(TagGreaterThan, cond.Field, cond.Value)
	case LessThan:
		return marshalLeaf(TagLessThan, cond.Field, cond.Value)
	case Contains:
		return marshalLeaf(TagContains, cond.Field, cond.Value)
	case And:
		return marshalConditionList(TagAnd, cond)
	case Or:
		return marshalConditionList(TagOr, cond)
	case Not:
		inner, err := MarshalCondition(cond.Condition)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", TagNot, err)
		}
		return tagged(TagNot, json.RawMessage(inner))
	default:
		return nil, fmt.Errorf("unknown condition type %T", c)
	}
}

func marshalLeaf(tag, field string, v Value) ([]byte, error) {
	value, err := MarshalValue(v)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", tag, field, err)
	}
	return tagged(tag, fieldValueJSON{Field: field, Value: value})
}

func marshalConditionList(tag string, conds []Condition) ([]byte, error) {
	items := make([]json.RawMessage, len(conds))
	for i, sub := range conds {
		b, err := MarshalCondition(sub)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", tag, i, err)
		}
		items[i] = b
	}
	return tagged(tag, items)
}

// UnmarshalCondition decodes a condition tree.
func UnmarshalCondition(data []byte) (Condition, error) {
	tag, body, err := splitTagged(data)
	if err != nil {
		return nil, fmt.Errorf("condition: %w", err)
	}

	switch tag {
	case TagEquals, TagGreaterThan, TagLessThan, TagContains:
		if err := requireFields(body, "field", "value"); err != nil {
			return nil, fmt.Errorf("%s: %w", tag, err)
		}
		var leaf fieldValueJSON
		if err := json.Unmarshal(body, &leaf); err != nil {
			return nil, fmt.Errorf("%s: %w", tag, err)
		}
		v, err := UnmarshalValue(leaf.Value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", tag, err)
		}
		switch tag {
		case TagEquals:
			return Equals{Field: leaf.Field, Value: v}, nil
		case TagGreaterThan:
			return GreaterThan{Field: leaf.Field, Value: v}, nil
		case TagLessThan:
			return LessThan{Field: leaf.Field, Value: v}, nil
		default:
			return Contains{Field: leaf.Field, Value: v}, nil
		}
	case TagAnd, TagOr:
		var raw []json.RawMessage
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, fmt.Errorf("%s: %w", tag, err)
		}
		subs := make([]Condition, len(raw))
		for i, item := range raw {
			sub, err := UnmarshalCondition(item)
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", tag, i, err)
			}
			subs[i] = sub
		}
		if tag == TagAnd {
			return And(subs), nil
		}
		return Or(subs), nil
	case TagNot:
		inner, err := UnmarshalCondition(body)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", TagNot, err)
		}
		return Not{Condition: inner}, nil
	default:
		return nil, fmt.Errorf("unknown condition variant %q", tag)
	}
}

// MarshalAction encodes an action tree.
func MarshalAction(a Action) ([]byte, error) {
	switch act := a.(type) {
	case Log:
		return tagged(TagLog, logJSON{Message: act.Message})
	case UpdateField:
		value, err := MarshalValue(act.Value)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", TagUpdateField, act.Field, err)
		}
		return tagged(TagUpdateField, fieldValueJSON{Field: act.Field, Value: value})
	case CallExternalService:
		payload, err := marshalValueMap(act.Payload)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", TagCallExternalService, err)
		}
		return tagged(TagCallExternalService, callJSON{Endpoint: act.Endpoint, Payload: payload})
	case SendEvent:
		data, err := marshalValueMap(act.Data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", TagSendEvent, err)
		}
		return tagged(TagSendEvent, eventJSON{EventType: act.EventType, Data: data})
	case Composite:
		items := make([]json.RawMessage, len(act))
		for i, child := range act {
			b, err := MarshalAction(child)
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", TagComposite, i, err)
			}
			items[i] = b
		}
		return tagged(TagComposite, items)
	default:
		return nil, fmt.Errorf("unknown action type %T", a)
	}
}

// UnmarshalAction decodes an action tree.
func UnmarshalAction(data []byte) (Action, error) {
	tag, body, err := splitTagged(data)
	if err != nil {
		return nil, fmt.Errorf("action: %w", err)
	}

	switch tag {
	case TagLog:
		if err := requireFields(body, "message"); err != nil {
			return nil, fmt.Errorf("%s: %w", tag, err)
		}
		var l logJSON
		if err := json.Unmarshal(body, &l); err != nil {
			return nil, fmt.Errorf("%s: %w", tag, err)
		}
		return Log{Message: l.Message}, nil
	case TagUpdateField:
		if err := requireFields(body, "field", "value"); err != nil {
			return nil, fmt.Errorf("%s: %w", tag, err)
		}
		var u fieldValueJSON
		if err := json.Unmarshal(body, &u); err != nil {
			return nil, fmt.Errorf("%s: %w", tag, err)
		}
		v, err := UnmarshalValue(u.Value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", tag, err)
		}
		return UpdateField{Field: u.Field, Value: v}, nil
	case TagCallExternalService:
		if err := requireFields(body, "endpoint", "payload"); err != nil {
			return nil, fmt.Errorf("%s: %w", tag, err)
		}
		var c callJSON
		if err := json.Unmarshal(body, &c); err != nil {
			return nil, fmt.Errorf("%s: %w", tag, err)
		}
		payload, err := decodeRawValues(c.Payload)
		if err != nil {
			return nil, fmt.Errorf("%s payload: %w", tag, err)
		}
		return CallExternalService{Endpoint: c.Endpoint, Payload: payload}, nil
	case TagSendEvent:
		if err := requireFields(body, "event_type", "data"); err != nil {
			return nil, fmt.Errorf("%s: %w", tag, err)
		}
		var e eventJSON
		if err := json.Unmarshal(body, &e); err != nil {
			return nil, fmt.Errorf("%s: %w", tag, err)
		}
		data, err := decodeRawValues(e.Data)
		if err != nil {
			return nil, fmt.Errorf("%s data: %w", tag, err)
		}
		return SendEvent{EventType: e.EventType, Data: data}, nil
	case TagComposite:
		var raw []json.RawMessage
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, fmt.Errorf("%s: %w", tag, err)
		}
		children := make(Composite, len(raw))
		for i, item := range raw {
			child, err := UnmarshalAction(item)
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", tag, i, err)
			}
			children[i] = child
		}
		return children, nil
	default:
		return nil, fmt.Errorf("unknown action variant %q", tag)
	}
}

func decodeRawValues(raw map[string]json.RawMessage) (map[string]Value, error) {
	out := make(map[string]Value, len(raw))
	for k, item := range raw {
		v, err := UnmarshalValue(item)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

// MarshalJSON encodes the rule in the exchange format.
func (r Rule) MarshalJSON() ([]byte, error) {
	cond, err := MarshalCondition(r.Condition)
	if err != nil {
		return nil, fmt.Errorf("rule %s condition: %w", r.ID, err)
	}
	actions := make([]json.RawMessage, len(r.Actions))
	for i, a := range r.Actions {
		b, err := MarshalAction(a)
		if err != nil {
			return nil, fmt.Errorf("rule %s action %d: %w", r.ID, i, err)
		}
		actions[i] = b
	}

	out := ruleJSON{
		ID:        r.ID,
		Name:      r.Name,
		Priority:  r.Priority,
		Condition: cond,
		Actions:   actions,
		Enabled:   r.Enabled,
	}
	if r.Description != "" {
		out.Description = &r.Description
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a rule. Failures are ParseErrors.
func (r *Rule) UnmarshalJSON(data []byte) error {
	var in ruleJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return parseError(err, "malformed rule")
	}
	// description is the only optional field.
	if err := requireFields(data, "id", "name", "priority", "condition", "actions", "enabled"); err != nil {
		return parseError(err, "rule %q", in.ID)
	}

	cond, err := UnmarshalCondition(in.Condition)
	if err != nil {
		return parseError(err, "rule %q condition", in.ID)
	}
	actions := make([]Action, len(in.Actions))
	for i, item := range in.Actions {
		a, err := UnmarshalAction(item)
		if err != nil {
			return parseError(err, "rule %q action %d", in.ID, i)
		}
		actions[i] = a
	}

	*r = Rule{
		ID:        in.ID,
		Name:      in.Name,
		Priority:  in.Priority,
		Condition: cond,
		Actions:   actions,
		Enabled:   in.Enabled,
	}
	if in.Description != nil {
		r.Description = *in.Description
	}
	return nil
}

// ParseRules decodes a JSON array of rules.
func ParseRules(data []byte) ([]Rule, error) {
	var out []Rule
	if err := json.Unmarshal(data, &out); err != nil {
		var e *Error
		if errors.As(err, &e) {
			return nil, e
		}
		return nil, parseError(err, "malformed rule set")
	}
	return out, nil
}

// ParseRule decodes a single JSON rule.
func ParseRule(data []byte) (Rule, error) {
	var r Rule
	if err := json.Unmarshal(data, &r); err != nil {
		var e *Error
		if errors.As(err, &e) {
			return Rule{}, e
		}
		return Rule{}, parseError(err, "malformed rule")
	}
	return r, nil
}
