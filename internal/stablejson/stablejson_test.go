package stablejson_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/durableplanner/plannerd/internal/stablejson"
)

func TestMarshalSortsObjectKeysRecursively(t *testing.T) {
	a := map[string]any{
		"b": 1,
		"a": map[string]any{"z": 1, "y": 2},
		"c": []any{map[string]any{"q": 1, "p": 2}, 3},
	}
	b := map[string]any{
		"c": []any{map[string]any{"p": 2, "q": 1}, 3},
		"a": map[string]any{"y": 2, "z": 1},
		"b": 1,
	}

	ab, err := stablejson.Marshal(a)
	require.NoError(t, err)
	bb, err := stablejson.Marshal(b)
	require.NoError(t, err)
	require.Equal(t, string(ab), string(bb))
}

func TestMarshalIsFixedPoint(t *testing.T) {
	v := map[string]any{"x": []any{1, 2, map[string]any{"k": "v"}}}
	first, err := stablejson.Marshal(v)
	require.NoError(t, err)

	var roundTripped any
	require.NoError(t, json.Unmarshal(first, &roundTripped))
	second, err := stablejson.Marshal(roundTripped)
	require.NoError(t, err)

	require.Equal(t, string(first), string(second))
}

func TestMarshalDistinguishesDifferentValues(t *testing.T) {
	a, err := stablejson.Marshal(map[string]any{"x": 1})
	require.NoError(t, err)
	b, err := stablejson.Marshal(map[string]any{"x": 2})
	require.NoError(t, err)
	require.NotEqual(t, string(a), string(b))
}
