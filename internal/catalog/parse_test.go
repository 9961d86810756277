package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEntities(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		want    []Entity
		wantErr string
	}{
		{
			name: "bare array",
			body: `[{"identifier":"f1","title":"React 16","properties":{"state":"EOL"}}]`,
			want: []Entity{{
				Identifier: "f1",
				Title:      "React 16",
				Properties: map[string]any{"state": "EOL"},
			}},
		},
		{
			name: "entities envelope",
			body: `{"ok":true,"entities":[{"identifier":"s1","relations":{"used_frameworks":["f1","f2"]}}]}`,
			want: []Entity{{
				Identifier: "s1",
				Relations:  map[string][]string{"used_frameworks": {"f1", "f2"}},
			}},
		},
		{
			name: "relation normalization",
			body: `[{"identifier":"s1","relations":{"single":"f1","unset":null,"mixed":["f1",7,"f2"]}}]`,
			want: []Entity{{
				Identifier: "s1",
				Relations: map[string][]string{
					"single": {"f1"},
					"unset":  nil,
					"mixed":  {"f1", "f2"},
				},
			}},
		},
		{
			name: "empty list",
			body: `{"entities":[]}`,
			want: []Entity{},
		},
		{
			name:    "invalid json",
			body:    `[{"identifier":`,
			wantErr: "not valid JSON",
		},
		{
			name:    "object without entities",
			body:    `{"ok":true}`,
			wantErr: "does not contain an entity list",
		},
		{
			name:    "missing identifier",
			body:    `[{"identifier":"f1"},{"title":"no id"}]`,
			wantErr: "entity at index 1: missing identifier",
		},
		{
			name:    "non-object entity",
			body:    `["f1"]`,
			wantErr: "entity at index 0: not an object",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := parseEntities([]byte(tt.body))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
