package migrations

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var tree map[string]any
	require.NoError(t, json.Unmarshal(data, &tree))
	return tree
}

func TestCheck(t *testing.T) {
	m := Default()
	tests := []struct {
		version string
		needed  bool
		err     error
	}{
		{"1.0.0", false, nil},
		{"0.9.0", true, nil},
		{"0.5.0", true, nil},
		{"0.4.0", false, ErrUnsupportedVersion},
		{"0.7.0", false, ErrUnsupportedVersion},
		{"0.9.5", false, ErrUnsupportedVersion},
		{"2.0.0", false, ErrUnsupportedVersion},
		{"banana", false, ErrUnsupportedVersion},
		{"", false, ErrMissingVersion},
	}
	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			needed, err := m.Check(tt.version)
			if tt.err != nil {
				assert.True(t, errors.Is(err, tt.err), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.needed, needed)
		})
	}
}

func TestApplyLessonsFromOldest(t *testing.T) {
	in := []byte(`{
		"version": "0.5.0",
		"lastUpdated": "2025-01-01T00:00:00Z",
		"lessons": [
			{"id": "L001", "title": "Wait for grid", "trigger_text": "ag-grid loading", "metrics": {"occurrences": 3}}
		]
	}`)

	out, applied, err := Default().Apply(Lessons, in)
	require.NoError(t, err)
	assert.Len(t, applied, 2)

	tree := decode(t, out)
	assert.Equal(t, "1.0.0", tree["version"])
	lesson := tree["lessons"].([]any)[0].(map[string]any)
	assert.Equal(t, "ag-grid loading", lesson["trigger"])
	assert.NotContains(t, lesson, "trigger_text")
	assert.Equal(t, []any{}, lesson["metrics"].(map[string]any)["confidenceHistory"])
	assert.Equal(t, map[string]any{"humanReviewed": false}, lesson["validation"])
	assert.Equal(t, false, lesson["archived"])
	assert.Equal(t, "app-specific", lesson["scope"])
	assert.Equal(t, []any{}, lesson["tags"])
}

func TestApplyComponentsBackfillsExtractedAt(t *testing.T) {
	in := []byte(`{
		"version": "0.9.0",
		"lastUpdated": "2025-03-04T05:06:07Z",
		"components": [
			{"id": "C001", "name": "login", "scope": "universal", "source": {"originalCode": "x"}},
			{"id": "C002", "name": "nav"}
		]
	}`)

	out, applied, err := Default().Apply(Components, in)
	require.NoError(t, err)
	assert.Len(t, applied, 1)

	comps := decode(t, out)["components"].([]any)
	first := comps[0].(map[string]any)
	assert.Equal(t, "universal", first["scope"])
	assert.Equal(t, "2025-03-04T05:06:07Z", first["source"].(map[string]any)["extractedAt"])
	assert.Equal(t, "x", first["source"].(map[string]any)["originalCode"])
	second := comps[1].(map[string]any)
	assert.Equal(t, "app-specific", second["scope"])
	assert.Equal(t, false, second["archived"])
}

func TestApplyCurrentIsUnchanged(t *testing.T) {
	in := []byte(`{"version":"1.0.0","lessons":[]}`)
	out, applied, err := Default().Apply(Lessons, in)
	require.NoError(t, err)
	assert.Empty(t, applied)
	assert.Equal(t, in, out)
}

func TestApplyRejectsMalformedList(t *testing.T) {
	_, _, err := Default().Apply(Lessons, []byte(`{"version":"0.9.0","lessons":{"L1":{}}}`))
	assert.Error(t, err)

	_, _, err = Default().Apply(Lessons, []byte(`{"version":"0.9.0","lessons":["nope"]}`))
	assert.Error(t, err)
}

func TestApplyBrokenChain(t *testing.T) {
	m := NewManager("1.0.0", "0.5.0")
	m.Register(Migration{From: "0.5.0", To: "0.9.0", Up: func(Document, map[string]any) error { return nil }})
	_, _, err := m.Apply(Analytics, []byte(`{"version":"0.5.0"}`))
	assert.ErrorContains(t, err, "no migration path")
}

func TestApplyRejectsVersionBetweenSteps(t *testing.T) {
	for _, doc := range []Document{Lessons, Components, Patterns} {
		t.Run(string(doc), func(t *testing.T) {
			_, applied, err := Default().Apply(doc, []byte(`{"version":"0.7.0"}`))
			assert.ErrorIs(t, err, ErrUnsupportedVersion)
			assert.Empty(t, applied)
		})
	}
}

func TestMigrationsRunInOrder(t *testing.T) {
	m := NewManager("3.0.0", "1.0.0")
	var order []string
	step := func(name string) func(Document, map[string]any) error {
		return func(Document, map[string]any) error {
			order = append(order, name)
			return nil
		}
	}
	m.Register(Migration{From: "2.0.0", To: "3.0.0", Up: step("second")})
	m.Register(Migration{From: "1.0.0", To: "2.0.0", Up: step("first")})

	_, applied, err := m.Apply(Profile, []byte(`{"version":"1.0.0"}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, order)
	assert.Len(t, applied, 2)
}
