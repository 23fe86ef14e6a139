// Package stablejson canonicalizes arbitrary JSON-able values into a
// deterministic byte representation: object keys are sorted recursively so
// that two semantically equal values always serialize to the same bytes,
// independent of map iteration order or field insertion order.
//
// The action adapter layer (runtime/adapter) uses this to compute
// idempotency keys over tool arguments: the same logical call must hash to
// the same key no matter how its arguments map was constructed.
package stablejson

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Marshal returns the canonical JSON encoding of v: object keys at every
// nesting level are sorted lexicographically and encoded without insignificant
// whitespace. Marshal is a fixed point — re-marshaling its own output returns
// the same bytes.
func Marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("stablejson: marshal: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("stablejson: decode for canonicalization: %w", err)
	}
	var buf bytes.Buffer
	if err := encode(&buf, generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MustMarshal is like Marshal but panics on error. Callers that have already
// validated v as JSON-serializable (e.g. contract-validated tool args) may
// prefer this to avoid threading an error return through hot paths.
func MustMarshal(v any) []byte {
	b, err := Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func encode(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case map[string]any:
		return encodeObject(buf, val)
	case []any:
		return encodeArray(buf, val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Errorf("stablejson: encode scalar: %w", err)
		}
		buf.Write(b)
		return nil
	}
}

func encodeObject(buf *bytes.Buffer, m map[string]any) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return fmt.Errorf("stablejson: encode key %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		if err := encode(buf, m[k]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func encodeArray(buf *bytes.Buffer, a []any) error {
	buf.WriteByte('[')
	for i, elem := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encode(buf, elem); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}
