package education

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const sampleCatalog = `
articles:
  - id: sorting-101
    title: Memilah Sampah di Rumah
    category: recycling
    difficulty: beginner
    readTimeMin: 5
    author: Dinas Lingkungan Hidup
    date: "2026-01-10"
  - id: compost-basics
    title: Kompos dari Sampah Organik
    category: composting
    difficulty: beginner
    readTimeMin: 8
    author: Komunitas Hijau
    date: "2026-01-18"
  - id: hazardous-handling
    title: Menangani Limbah B3
    category: hazardous
    difficulty: advanced
    readTimeMin: 12
    author: Dinas Lingkungan Hidup
    date: "2026-02-02"
`

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "education.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAndFilter(t *testing.T) {
	catalog, err := Load(writeCatalog(t, sampleCatalog), zap.NewNop())
	require.NoError(t, err)

	assert.Len(t, catalog.Entries(), 3)

	byCategory := catalog.Filter("composting", "", "")
	require.Len(t, byCategory, 1)
	assert.Equal(t, "compost-basics", byCategory[0].ID)

	byDifficulty := catalog.Filter("", "beginner", "")
	assert.Len(t, byDifficulty, 2)

	byQuery := catalog.Filter("", "", "dinas")
	assert.Len(t, byQuery, 2)

	combined := catalog.Filter("hazardous", "advanced", "limbah")
	require.Len(t, combined, 1)
	assert.Equal(t, "hazardous-handling", combined[0].ID)
}

func TestGet(t *testing.T) {
	catalog, err := Load(writeCatalog(t, sampleCatalog), zap.NewNop())
	require.NoError(t, err)

	entry, ok := catalog.Get("sorting-101")
	require.True(t, ok)
	assert.Equal(t, "Memilah Sampah di Rumah", entry.Title)

	_, ok = catalog.Get("missing")
	assert.False(t, ok)
}

func TestBookmarksPerUser(t *testing.T) {
	bookmarks := NewBookmarks()
	bookmarks.Add("user-1", "sorting-101")
	bookmarks.Add("user-1", "compost-basics")
	bookmarks.Add("user-2", "sorting-101")

	assert.Equal(t, []string{"compost-basics", "sorting-101"}, bookmarks.List("user-1"))
	assert.Equal(t, []string{"sorting-101"}, bookmarks.List("user-2"))

	bookmarks.Remove("user-1", "sorting-101")
	assert.Equal(t, []string{"compost-basics"}, bookmarks.List("user-1"))

	bookmarks.Clear("user-1")
	assert.Empty(t, bookmarks.List("user-1"))
	assert.Equal(t, []string{"sorting-101"}, bookmarks.List("user-2"))
}
