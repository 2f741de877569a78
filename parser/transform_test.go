package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/harvest/record"
	"github.com/ceyewan/harvest/xerrors"
)

func TestTransformerPipeline(t *testing.T) {
	tr, err := NewTransformer([]Step{
		{Operation: OpFlatten},
		{Operation: OpRename, Mapping: map[string]string{"entry_name": "team"}},
		{Operation: OpAddField, Field: "url", Value: "https://example.com/entry/{id}"},
		{Operation: OpAddField, Field: "season", Value: 2024},
		{Operation: OpDrop, Fields: []string{"stats_hidden"}},
	})
	require.NoError(t, err)

	in := []record.Record{{
		"id":         int64(7),
		"entry_name": "Arsenal",
		"stats":      map[string]any{"points": 10, "hidden": true, "form": map[string]any{"last": "W"}},
	}}
	out := tr.Apply(in)

	assert.Equal(t, record.Record{
		"id":              int64(7),
		"team":            "Arsenal",
		"stats_points":    10,
		"stats_form_last": "W",
		"url":             "https://example.com/entry/7",
		"season":          2024,
	}, out[0])
	assert.Contains(t, in[0], "entry_name", "input is not modified")
}

func TestTransformerSelect(t *testing.T) {
	tr, err := NewTransformer([]Step{{Operation: OpSelect, Fields: []string{"id", "missing"}}})
	require.NoError(t, err)
	out := tr.Apply([]record.Record{{"id": 1, "x": 2}})
	assert.Equal(t, record.Record{"id": 1}, out[0])
}

func TestFlattenSeparator(t *testing.T) {
	tr, err := NewTransformer([]Step{{Operation: OpFlatten, Separator: "."}})
	require.NoError(t, err)
	out := tr.Apply([]record.Record{{"a": map[string]any{"b": 1}}})
	assert.Equal(t, record.Record{"a.b": 1}, out[0])
}

func TestNewTransformerValidates(t *testing.T) {
	cases := [][]Step{
		{{Operation: "compute"}},
		{{Operation: OpRename}},
		{{Operation: OpAddField}},
		{{Operation: OpDrop}},
		{{Operation: OpSelect}},
	}
	for _, steps := range cases {
		_, err := NewTransformer(steps)
		assert.ErrorIs(t, err, xerrors.ErrInvalidInput, steps[0].Operation)
	}
}
