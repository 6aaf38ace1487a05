package block

import (
	"encoding/json"
	"fmt"
)

// envelope models the V1 wire format's `{ "version": N, "t": ... }`
// wrapper that appears around nearly every sub-record (§9 design notes:
// "versioned sum types with nested wrappers"). flattenEnvelope unwraps it
// repeatedly until it reaches a value that isn't itself an envelope, so
// every downstream accessor works with the same shape regardless of how
// many wrapper layers the source JSON happened to nest.
type envelope struct {
	Version int             `json:"version"`
	T       json.RawMessage `json:"t"`
}

// flattenEnvelope returns raw unchanged if it is not a `{version, t}`
// object; otherwise it recurses into T. A raw value that merely happens to
// be a JSON object without a "t" key is left untouched — only the exact
// envelope shape is unwrapped.
func flattenEnvelope(raw json.RawMessage) (json.RawMessage, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		// Not an object at all (array, string, number, null): nothing to
		// flatten.
		return raw, nil
	}
	if _, hasVersion := probe["version"]; !hasVersion {
		return raw, nil
	}
	if _, hasT := probe["t"]; !hasT {
		return raw, nil
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	return flattenEnvelope(env.T)
}

// taggedSum splits a `[tag_string, payload]` or `[tag_string, [sub_tag,
// payload]]` JSON array into its tag and raw payload (§4.A, §9 "command
// tagging"). The payload is returned unflattened; callers decide whether
// to recurse into a nested tagged sum.
func taggedSum(raw json.RawMessage) (tag string, payload json.RawMessage, err error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return "", nil, fmt.Errorf("%w: tagged sum is not a json array: %v", ErrMalformedJSON, err)
	}
	if len(parts) == 0 {
		return "", nil, fmt.Errorf("%w: empty tagged sum array", ErrMalformedJSON)
	}
	if err := json.Unmarshal(parts[0], &tag); err != nil {
		return "", nil, fmt.Errorf("%w: tagged sum tag is not a string: %v", ErrMalformedJSON, err)
	}
	if len(parts) > 1 {
		payload = parts[1]
	} else {
		payload = json.RawMessage("null")
	}
	return tag, payload, nil
}

// field extracts and flattens a named field from a JSON object, returning
// ErrMissingField if absent.
func field(obj map[string]json.RawMessage, name string) (json.RawMessage, error) {
	raw, ok := obj[name]
	if !ok {
		return nil, missingField(name)
	}
	return flattenEnvelope(raw)
}

func asObject(raw json.RawMessage) (map[string]json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	return obj, nil
}
