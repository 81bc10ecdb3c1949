package corpus_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"bunko/internal/corpus"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "cards", "000879", "files", "127_15260.txt"), "羅生門")
	writeFile(t, filepath.Join(root, "cards", "000879", "files", "92_ruby_164.zip"), "PK")
	writeFile(t, filepath.Join(root, "cards", "000035", "files", "1567_txt_14913.zip"), "PK")
	writeFile(t, filepath.Join(root, "cards", "000035", "files", "1567_14913.html"), "<html>")
	writeFile(t, filepath.Join(root, "cards", "000035", "files", "README.txt"), "skip")
	writeFile(t, filepath.Join(root, "cards", "000035", "files", "index_pages.txt"), "skip")
	writeFile(t, filepath.Join(root, "cards", "000035", "card1567.html"), "skip")

	docs, err := corpus.Discover(root)
	require.NoError(t, err)
	require.Len(t, docs, 3)

	assert.Equal(t, "000035", docs[0].AuthorID)
	assert.True(t, strings.HasSuffix(docs[0].Path, "1567_txt_14913.zip"))
	assert.True(t, strings.HasSuffix(docs[1].Path, "127_15260.txt"))
	assert.True(t, strings.HasSuffix(docs[2].Path, "92_ruby_164.zip"))
}

func TestDiscover_MissingCards(t *testing.T) {
	_, err := corpus.Discover(t.TempDir())
	assert.ErrorIs(t, err, corpus.ErrCardsDirNotFound)
}

func TestExtractWorkInfo(t *testing.T) {
	root := "/repo"
	path := "/repo/cards/000879/files/127_15260.txt"

	info, err := corpus.ExtractWorkInfo(root, path, "\n羅生門\n\n芥川龍之介\n\n本文")
	require.NoError(t, err)
	assert.Equal(t, corpus.WorkInfo{
		WorkID:     "127",
		Title:      "羅生門",
		Author:     "芥川龍之介",
		AuthorID:   "000879",
		SourcePath: "cards/000879/files/127_15260.txt",
	}, info)
}

func TestExtractWorkInfo_FallbacksAndCaps(t *testing.T) {
	info, err := corpus.ExtractWorkInfo("/repo", "/repo/cards/000001/files/42_ruby.txt", "")
	require.NoError(t, err)
	assert.Equal(t, "Work 42", info.Title)
	assert.Equal(t, "Author 000001", info.Author)

	long := strings.Repeat("長", 150)
	info, err = corpus.ExtractWorkInfo("/repo", "/repo/cards/000001/files/42_ruby.txt", long+"\n"+long)
	require.NoError(t, err)
	assert.Equal(t, 100, len([]rune(info.Title)))
	assert.Equal(t, 50, len([]rune(info.Author)))
}

func TestExtractWorkInfo_Malformed(t *testing.T) {
	for _, p := range []string{
		"/repo/cards/000001/files/readme_ruby.txt",
		"/repo/elsewhere/000001/files/42.txt",
		"42.txt",
	} {
		_, err := corpus.ExtractWorkInfo("/repo", p, "title")
		assert.ErrorIs(t, err, corpus.ErrMalformedPath, p)
	}
}

func TestChunkIDRoundTrip(t *testing.T) {
	id := corpus.ChunkID("127", 3, 1024)
	assert.Equal(t, "127:3:1024", id)

	work, idx, off, err := corpus.ParseChunkID(id)
	require.NoError(t, err)
	assert.Equal(t, "127", work)
	assert.Equal(t, 3, idx)
	assert.Equal(t, 1024, off)

	_, _, _, err = corpus.ParseChunkID("127:x:1")
	assert.ErrorIs(t, err, corpus.ErrMalformedChunkID)
}

func TestBuildChunks(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 60; i++ {
		b.WriteString(strings.Repeat("あ", 59) + "。")
	}
	cleaned := b.String()
	work := corpus.WorkInfo{WorkID: "127", Title: "羅生門", Author: "芥川龍之介", SourcePath: "cards/000879/files/127_15260.txt"}

	chunks := corpus.BuildChunks(cleaned, work, corpus.DefaultParams())
	require.Greater(t, len(chunks), 1)

	seen := map[string]bool{}
	for i, c := range chunks {
		m := c.Metadata
		assert.Equal(t, i, m.ChunkIndex)
		assert.Equal(t, corpus.ChunkID("127", i, m.OffsetStart), m.ChunkID)
		assert.False(t, seen[m.ChunkID])
		seen[m.ChunkID] = true
		assert.Equal(t, "羅生門", m.Title)
		assert.Contains(t, m.ContextText, c.Text)
		assert.GreaterOrEqual(t, len([]rune(m.ContextText)), len([]rune(c.Text)))
	}
}

func TestBuildChunks_StableAcrossRuns(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString(strings.Repeat("い", 40+(i*13)%60) + "。\n")
	}
	cleaned := b.String()
	work := corpus.WorkInfo{WorkID: "127", Title: "羅生門", Author: "芥川龍之介"}

	first := corpus.BuildChunks(cleaned, work, corpus.DefaultParams())
	second := corpus.BuildChunks(cleaned, work, corpus.DefaultParams())
	require.NotEmpty(t, first)
	assert.Equal(t, first, second)

	var ids []string
	for i, c := range first {
		ids = append(ids, c.Metadata.ChunkID)
		if i > 0 {
			assert.LessOrEqual(t, c.Metadata.OffsetStart, first[i-1].Metadata.OffsetEnd)
		}
	}
	assert.Equal(t, "127:0:0", ids[0])
}
