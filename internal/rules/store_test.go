package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/catalog-classifier/internal/domain"
)

const validRules = `
rules:
  - name: serums
    category: Beauty > Serums
    keywords: [serum, "vitamin c"]
    confidence: 0.9
  - name: mugs
    category: Kitchen > Mugs
    pattern: '\bmugs?\b'
`

func writeRules(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadValidFile(t *testing.T) {
	store := NewStore(writeRules(t, validRules), nil)
	require.NoError(t, store.Load())

	list := store.List()
	require.Len(t, list, 2)
	assert.Equal(t, "serums", list[0].Name)
	assert.Equal(t, "mugs", list[1].Name)

	compiled := store.Compiled()
	assert.Nil(t, compiled[0].Regexp)
	require.NotNil(t, compiled[1].Regexp)
	assert.True(t, compiled[1].Regexp.MatchString("Ceramic MUG"), "patterns are case-insensitive")
}

func TestLoadMissingFile(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "absent.yml"), nil)
	assert.Error(t, store.Load())
}

func TestLoadRejectsInvalidRules(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"missing name", "rules:\n  - category: X\n    keywords: [a]\n"},
		{"missing category", "rules:\n  - name: x\n    keywords: [a]\n"},
		{"both keyword and pattern", "rules:\n  - name: x\n    category: X\n    keywords: [a]\n    pattern: 'a'\n"},
		{"neither keyword nor pattern", "rules:\n  - name: x\n    category: X\n"},
		{"bad regex", "rules:\n  - name: x\n    category: X\n    pattern: '('\n"},
		{"confidence out of range", "rules:\n  - name: x\n    category: X\n    keywords: [a]\n    confidence: 1.5\n"},
		{"duplicate names", "rules:\n  - name: x\n    category: X\n    keywords: [a]\n  - name: x\n    category: Y\n    keywords: [b]\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := NewStore(writeRules(t, tc.content), nil)
			assert.Error(t, store.Load())
		})
	}
}

func TestReloadKeepsPreviousRulesOnFailure(t *testing.T) {
	path := writeRules(t, validRules)
	store := NewStore(path, nil)
	require.NoError(t, store.Load())
	gen := store.Generation()

	require.NoError(t, os.WriteFile(path, []byte("rules:\n  - name: broken\n"), 0o644))
	require.Error(t, store.Reload())

	assert.Len(t, store.List(), 2, "failed reload must keep the previous rule set")
	assert.Equal(t, gen, store.Generation())
}

func TestAddPersistsAndBumpsGeneration(t *testing.T) {
	path := writeRules(t, validRules)
	store := NewStore(path, nil)
	require.NoError(t, store.Load())
	gen := store.Generation()

	require.NoError(t, store.Add(domain.Rule{
		Name:     "candles",
		Category: "Decor > Candles",
		Keywords: []string{"candle"},
	}))
	assert.Greater(t, store.Generation(), gen)
	assert.Len(t, store.List(), 3)

	// A fresh store sees the persisted rule.
	fresh := NewStore(path, nil)
	require.NoError(t, fresh.Load())
	assert.Len(t, fresh.List(), 3)
}

func TestAddRejectsDuplicate(t *testing.T) {
	store := NewStore(writeRules(t, validRules), nil)
	require.NoError(t, store.Load())

	err := store.Add(domain.Rule{Name: "serums", Category: "X", Keywords: []string{"a"}})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestAddRejectsInvalidRule(t *testing.T) {
	store := NewStore(writeRules(t, validRules), nil)
	require.NoError(t, store.Load())

	err := store.Add(domain.Rule{Name: "bad", Category: "X", Pattern: "("})
	assert.Error(t, err)
	assert.Len(t, store.List(), 2)
}

func TestRemove(t *testing.T) {
	path := writeRules(t, validRules)
	store := NewStore(path, nil)
	require.NoError(t, store.Load())

	require.NoError(t, store.Remove("serums"))
	assert.Len(t, store.List(), 1)

	fresh := NewStore(path, nil)
	require.NoError(t, fresh.Load())
	assert.Len(t, fresh.List(), 1)

	assert.ErrorIs(t, store.Remove("serums"), ErrRuleNotFound)
}

func TestOrderPreserved(t *testing.T) {
	store := NewStore(writeRules(t, validRules), nil)
	require.NoError(t, store.Load())

	require.NoError(t, store.Add(domain.Rule{Name: "zzz", Category: "Z", Keywords: []string{"z"}}))
	list := store.List()
	assert.Equal(t, []string{"serums", "mugs", "zzz"}, []string{list[0].Name, list[1].Name, list[2].Name})
}
