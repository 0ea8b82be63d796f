package knowledge

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticRetrieverRanksAndLimits(t *testing.T) {
	r := NewStaticRetriever([]Fact{
		{Category: "price", Content: "third", Rank: 0.5},
		{Category: "price", Content: "first", Rank: 2.0},
		{Category: "price", Content: "second", Rank: 1.0},
		{Category: "product", Content: "other", Rank: 1.0},
	})

	facts, err := r.Retrieve(context.Background(), "price", 2)
	require.NoError(t, err)
	require.Len(t, facts, 2)
	assert.Equal(t, "first", facts[0].Content)
	assert.Equal(t, "second", facts[1].Content)

	// Zero or oversized limits return everything.
	all, err := r.Retrieve(context.Background(), "price", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	all, err = r.Retrieve(context.Background(), "price", 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestStaticRetrieverUnknownCategory(t *testing.T) {
	r := NewStaticRetriever(nil)
	facts, err := r.Retrieve(context.Background(), "missing", 3)
	require.NoError(t, err)
	assert.Empty(t, facts)
}

func TestLoadStaticRetriever(t *testing.T) {
	path := filepath.Join(t.TempDir(), "facts.yaml")
	raw := []byte(`
facts:
  - category: price_question
    content: "Plans start at 29 per month."
    rank: 2.0
  - category: price_question
    content: "Annual billing saves 20 percent."
    rank: 1.0
`)
	require.NoError(t, os.WriteFile(path, raw, 0644))

	r, err := LoadStaticRetriever(path)
	require.NoError(t, err)

	facts, err := r.Retrieve(context.Background(), "price_question", 2)
	require.NoError(t, err)
	require.Len(t, facts, 2)
	assert.Equal(t, "Plans start at 29 per month.", facts[0].Content)
}

func TestLoadStaticRetrieverErrors(t *testing.T) {
	_, err := LoadStaticRetriever(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("facts: {not a list"), 0644))
	_, err = LoadStaticRetriever(path)
	assert.Error(t, err)
}

func TestNullRetriever(t *testing.T) {
	facts, err := NullRetriever{}.Retrieve(context.Background(), "anything", 5)
	assert.NoError(t, err)
	assert.Nil(t, facts)
}
