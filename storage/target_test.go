package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ceyewan/harvest/xerrors"
)

func TestTargetValidate(t *testing.T) {
	tests := []struct {
		name    string
		target  Target
		wantErr bool
	}{
		{"relational upsert", Target{Type: KindRelational, TableOrPath: "standings", UniqueColumns: []string{"id"}}, false},
		{"relational append without keys", Target{Type: KindRelational, TableOrPath: "events"}, false},
		{"file defaults", Target{Type: KindFile, TableOrPath: "exports/standings.jsonl"}, false},
		{"missing table", Target{Type: KindRelational}, true},
		{"missing path", Target{Type: KindFile}, true},
		{"missing type", Target{TableOrPath: "x"}, true},
		{"unknown type", Target{Type: "s3", TableOrPath: "x"}, true},
		{"bad table name", Target{Type: KindRelational, TableOrPath: "drop table;"}, true},
		{"upsert without keys", Target{Type: KindRelational, TableOrPath: "x", Mode: ModeUpsert}, true},
		{"unknown mode", Target{Type: KindRelational, TableOrPath: "x", Mode: "merge"}, true},
		{"format on relational", Target{Type: KindRelational, TableOrPath: "x", Format: FormatCSV}, true},
		{"unknown format", Target{Type: KindFile, TableOrPath: "x", Format: "xml"}, true},
		{"duplicate key", Target{Type: KindRelational, TableOrPath: "x", UniqueColumns: []string{"id", "id"}}, true},
		{"quoted key", Target{Type: KindRelational, TableOrPath: "x", UniqueColumns: []string{`i"d`}}, true},
		{"unknown column type", Target{Type: KindRelational, TableOrPath: "x", ColumnTypes: map[string]string{"a": "blob"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.target.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
			assert.Equal(t, xerrors.CodeConfigInvalid, xerrors.GetCode(err))
		})
	}
}

func TestTargetDefaults(t *testing.T) {
	rel := Target{Type: KindRelational, TableOrPath: "t", UniqueColumns: []string{"id"}}
	assert.Equal(t, ModeUpsert, rel.EffectiveMode())
	assert.Equal(t, ModeAppend, (&Target{Type: KindRelational, TableOrPath: "t"}).EffectiveMode())

	file := Target{Type: KindFile, TableOrPath: "out/teams.jsonl"}
	assert.Equal(t, ModeOverwrite, file.EffectiveMode())
	assert.Equal(t, FormatJSONL, file.EffectiveFormat())
	assert.Equal(t, FormatCSV, (&Target{Type: KindFile, TableOrPath: "teams"}).EffectiveFormat())
	assert.Equal(t, "file:out/teams.jsonl", file.Identity())
}
