package suggest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefinition(t *testing.T) {
	tests := []struct {
		name    string
		model   string
		wantErr error
	}{
		{
			name:    "empty buffer",
			model:   "",
			wantErr: ErrNoModel,
		},
		{
			name:    "not yaml",
			model:   "{{{{",
			wantErr: ErrBadModel,
		},
		{
			name:    "missing preconditions",
			model:   `locales: "en"`,
			wantErr: ErrNoPreconditions,
		},
		{
			name: "minimal valid",
			model: `
locales: "en"
preconditions: {}
`,
		},
		{
			name: "bad locale list",
			model: `
locales: "not a locale!!"
preconditions: {}
`,
			wantErr: ErrBadModel,
		},
		{
			name: "rule without pattern",
			model: `
locales: "en"
preconditions: {}
rules:
  - name: "empty"
`,
			wantErr: ErrBadModel,
		},
		{
			name: "rule with both pattern forms",
			model: `
locales: "en"
preconditions: {}
rules:
  - name: "both"
    pattern: "a"
    compressed_pattern: "eJw="
`,
			wantErr: ErrBadModel,
		},
		{
			name: "action without type",
			model: `
locales: "en"
preconditions: {}
rules:
  - name: "typeless"
    pattern: "a"
    actions:
      - score: 0.5
`,
			wantErr: ErrBadModel,
		},
		{
			name: "entity data without schema",
			model: `
locales: "en"
preconditions: {}
rules:
  - name: "entity"
    pattern: "(a)"
    actions:
      - type: "open_url"
        capturing_groups:
          - group: 1
            field: "url"
`,
			wantErr: ErrBadModel,
		},
		{
			name: "entity data not base64",
			model: `
locales: "en"
preconditions: {}
entity_schema:
  root: "t"
  types:
    - name: "t"
      fields:
        - {name: "f", id: 0, kind: "string"}
rules:
  - name: "entity"
    pattern: "a"
    actions:
      - type: "open_url"
        entity_data: "%%%not base64%%%"
`,
			wantErr: ErrBadModel,
		},
		{
			name: "schema with dangling table ref",
			model: `
locales: "en"
preconditions: {}
entity_schema:
  root: "t"
  types:
    - name: "t"
      fields:
        - {name: "f", id: 0, kind: "table", table: "missing"}
`,
			wantErr: ErrBadModel,
		},
		{
			name: "annotation mapping without collection",
			model: `
locales: "en"
preconditions: {}
annotation_actions:
  mappings:
    - action_type: "call_phone"
`,
			wantErr: ErrBadModel,
		},
		{
			name: "dictionary entry without phrase",
			model: `
locales: "en"
preconditions: {}
dictionary:
  - collection: "date"
`,
			wantErr: ErrBadModel,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadDefinition([]byte(tt.model))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestLoadDefinitionDefaults(t *testing.T) {
	def, err := LoadDefinition([]byte(`
locales: "en"
preconditions: {}
`))
	require.NoError(t, err)
	assert.Equal(t, 3, def.NumSmartReplies)
	assert.Equal(t, -1, def.MaxConversationHistoryLength)
	assert.Equal(t, 0, def.Preconditions.MinInputLength)
}

func TestLoadDefinitionReaderSizeCap(t *testing.T) {
	oversized := "locales: \"en\"\npreconditions: {}\n# " +
		strings.Repeat("x", maxModelSize)
	_, err := LoadDefinitionReader(strings.NewReader(oversized))
	require.ErrorIs(t, err, ErrBadModel)
}

func TestLoadDefinitionFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.yaml")
	require.NoError(t, os.WriteFile(path, []byte("locales: \"en\"\npreconditions: {}\n"), 0o600))

	def, err := LoadDefinitionFile(path)
	require.NoError(t, err)
	assert.Equal(t, "en", def.Locales)

	_, err = LoadDefinitionFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
