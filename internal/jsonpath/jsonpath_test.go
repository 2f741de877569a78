package jsonpath

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	doc, err := Decode([]byte(`{"standings":{"has_next":true,"results":[{"id":1},{"id":2}]},"n":9007199254740993}`))
	require.NoError(t, err)

	v, ok := Lookup(doc, "$.standings.results[*]")
	require.True(t, ok)
	assert.Len(t, v, 2)

	v, ok = Lookup(doc, "standings.results.1.id")
	require.True(t, ok)
	assert.Equal(t, json.Number("2"), v)

	v, ok = Lookup(doc, "n")
	require.True(t, ok)
	assert.Equal(t, json.Number("9007199254740993"), v)

	_, ok = Lookup(doc, "standings.missing")
	assert.False(t, ok)
	_, ok = Lookup(doc, "standings.results.7")
	assert.False(t, ok)

	v, ok = Lookup(doc, "$")
	require.True(t, ok)
	assert.Equal(t, doc, v)
}

func TestEmptyAndTruthy(t *testing.T) {
	assert.True(t, IsEmpty(nil))
	assert.True(t, IsEmpty([]any{}))
	assert.True(t, IsEmpty(map[string]any{}))
	assert.False(t, IsEmpty([]any{1}))

	assert.False(t, Truthy(false))
	assert.False(t, Truthy(json.Number("0")))
	assert.False(t, Truthy(""))
	assert.True(t, Truthy("/api/items?page=3"))
	assert.True(t, Truthy(json.Number("3")))
}
