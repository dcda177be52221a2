package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseObject(t *testing.T) {
	obj, err := ParseObject([]byte(`{"name":"x","n":9007199254740993,"tags":["a"],"ok":true}`))
	require.NoError(t, err)

	name, ok := obj.GetString("name")
	assert.True(t, ok)
	assert.Equal(t, "x", name)

	n, ok := obj.GetInt("n")
	assert.True(t, ok)
	assert.Equal(t, int64(9007199254740993), n, "large ints must not lose precision")

	tags, ok := obj.GetArray("tags")
	assert.True(t, ok)
	assert.Equal(t, Array{String("a")}, tags)
}

func TestParseObjectRejectsFloatsAndNull(t *testing.T) {
	_, err := ParseObject([]byte(`{"x":1.5}`))
	assert.Error(t, err)

	_, err = ParseObject([]byte(`{"x":null}`))
	assert.Error(t, err)

	_, err = ParseObject([]byte(`[1]`))
	assert.Error(t, err)
}

func TestObjectJSONRoundTrip(t *testing.T) {
	in := Object{"b": Int(2), "a": Array{Bool(false), Null{}}}

	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Equal(t, `{"a":[false,null],"b":2}`, string(data))

	var out Object
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestObjectCloneIsDeep(t *testing.T) {
	in := Object{"items": Array{String("a")}, "nested": Object{"k": Int(1)}}
	out := in.Clone()

	out["items"] = append(out["items"].(Array), String("b"))
	out["nested"].(Object)["k"] = Int(2)

	assert.Equal(t, Array{String("a")}, in["items"])
	assert.Equal(t, Int(1), in["nested"].(Object)["k"])
}

func TestToGoFromGo(t *testing.T) {
	in := Object{"a": Array{Int(1), String("x")}, "b": Bool(true)}
	back, err := FromGo(ToGo(in))
	require.NoError(t, err)
	assert.Equal(t, in, back)
}
