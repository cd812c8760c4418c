package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePreservesKeyOrder(t *testing.T) {
	t.Parallel()

	in := `{"zeta":1,"alpha":{"b":true,"a":null},"mid":[1.50,"x",{}]}`
	v, err := Parse([]byte(in))
	require.NoError(t, err)

	assert.Equal(t, KindObject, v.Kind())
	keys := make([]string, 0, v.Len())
	for _, f := range v.Fields() {
		keys = append(keys, f.Key)
	}
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, keys)

	// Number text survives the round trip ("1.50" is not rewritten to "1.5").
	assert.Equal(t, in, v.String())
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte(`{"a":1} {"b":2}`))
	assert.ErrorIs(t, err, ErrTrailingData)
}

func TestParseRejectsMalformed(t *testing.T) {
	t.Parallel()

	for _, in := range []string{``, `{`, `{"a":}`, `[1,`, `nul`} {
		_, err := Parse([]byte(in))
		assert.Error(t, err, "input %q", in)
	}
}

func TestObjectDuplicateKeyKeepsFirstPosition(t *testing.T) {
	t.Parallel()

	v := Object(
		Field{Key: "a", Value: Int(1)},
		Field{Key: "b", Value: Int(2)},
		Field{Key: "a", Value: Int(3)},
	)
	assert.Equal(t, `{"a":3,"b":2}`, v.String())
}

func TestAccessors(t *testing.T) {
	t.Parallel()

	v := Object(
		Field{Key: "name", Value: String("orders")},
		Field{Key: "count", Value: Int(42)},
		Field{Key: "ratio", Value: Number(0.25)},
		Field{Key: "ok", Value: Bool(true)},
		Field{Key: "tags", Value: Array(String("a"), String("b"))},
	)

	name, ok := v.Get("name")
	require.True(t, ok)
	s, ok := name.AsString()
	assert.True(t, ok)
	assert.Equal(t, "orders", s)
	assert.Equal(t, "orders", name.Text())

	count, _ := v.Get("count")
	f, ok := count.AsFloat()
	assert.True(t, ok)
	assert.Equal(t, 42.0, f)

	okv, _ := v.Get("ok")
	b, isBool := okv.AsBool()
	assert.True(t, isBool)
	assert.True(t, b)

	tags, _ := v.Get("tags")
	assert.Len(t, tags.Items(), 2)

	_, missing := v.Get("nope")
	assert.False(t, missing)
	assert.Nil(t, String("x").Fields())
}

func TestNumberNonFiniteIsNull(t *testing.T) {
	t.Parallel()

	var zero float64
	assert.True(t, Number(zero/zero).IsNull())
}

func TestAnyAndMap(t *testing.T) {
	t.Parallel()

	v, err := Parse([]byte(`{"type":"object","properties":{"a":{"type":"number"}},"required":["a"]}`))
	require.NoError(t, err)

	m := v.Map()
	require.NotNil(t, m)
	assert.Equal(t, "object", m["type"])
	assert.Equal(t, []any{"a"}, m["required"])
	assert.Nil(t, Array().Map())
}

func TestFromAny(t *testing.T) {
	t.Parallel()

	v, err := FromAny(map[string]any{"b": 2, "a": "x"})
	require.NoError(t, err)
	// encoding/json sorts map keys, so conversion is deterministic.
	assert.Equal(t, `{"a":"x","b":2}`, v.String())

	raw, err := FromAny(json.RawMessage(`{"z":1,"y":2}`))
	require.NoError(t, err)
	assert.Equal(t, `{"z":1,"y":2}`, raw.String())

	null, err := FromAny(nil)
	require.NoError(t, err)
	assert.True(t, null.IsNull())
}

func TestValueInsideStruct(t *testing.T) {
	t.Parallel()

	type envelope struct {
		Args Value `json:"args"`
	}
	var e envelope
	require.NoError(t, json.Unmarshal([]byte(`{"args":{"q":"x","n":1}}`), &e))
	out, err := json.Marshal(e)
	require.NoError(t, err)
	assert.Equal(t, `{"args":{"q":"x","n":1}}`, string(out))
}
