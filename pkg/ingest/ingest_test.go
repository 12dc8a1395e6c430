package ingest

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temnoon/humanizer-gm-sub013/internal/store"
	"github.com/temnoon/humanizer-gm-sub013/pkg/sparse"
)

func paragraphs(count, wordsEach int) string {
	var ps []string
	for i := 0; i < count; i++ {
		words := make([]string, wordsEach)
		for j := range words {
			words[j] = fmt.Sprintf("p%dw%d", i, j)
		}
		ps = append(ps, strings.Join(words, " "))
	}
	return strings.Join(ps, "\n\n")
}

func TestIngestBuildsHierarchy(t *testing.T) {
	s := store.NewMemStore()
	lexical := sparse.New()
	g := New(s, lexical, WithSectionWords(50), WithChunkWords(20), WithOverlapWords(5))

	res, err := g.Ingest(context.Background(), Document{
		URI:   "file://notes/harbor.txt",
		Title: "Harbor",
		Text:  paragraphs(4, 40),
	})
	require.NoError(t, err)
	require.False(t, res.Skipped)

	// 4 paragraphs of 40 words with a 50-word target: one per section.
	assert.Len(t, res.SectionIDs, 4)
	assert.NotEmpty(t, res.ChunkIDs)

	doc, err := s.GetNode(res.Document.ID)
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "Harbor", doc.Title)
	assert.Equal(t, "document", doc.Meta["level"])
	assert.Equal(t, 160, doc.WordCount)

	// Sections hang off the document with both link directions.
	children, err := s.LinksFrom(doc.ID, store.LinkChild)
	require.NoError(t, err)
	assert.Len(t, children, 4)

	sect, err := s.GetNode(res.SectionIDs[0])
	require.NoError(t, err)
	assert.Equal(t, doc.ID, sect.ParentID)
	assert.Equal(t, "Harbor §1", sect.Title)

	up, err := s.LinksFrom(sect.ID, store.LinkParent)
	require.NoError(t, err)
	require.Len(t, up, 1)
	assert.Equal(t, doc.ID, up[0].TargetID)

	// Chunks hang off sections.
	chunk, err := s.GetNode(res.ChunkIDs[0])
	require.NoError(t, err)
	assert.Equal(t, "chunk", chunk.Meta["level"])
	assert.Contains(t, res.SectionIDs, chunk.ParentID)
}

func TestIngestIndexesLexically(t *testing.T) {
	s := store.NewMemStore()
	lexical := sparse.New()
	g := New(s, lexical)

	res, err := g.Ingest(context.Background(), Document{
		URI:  "file://a.txt",
		Text: "The cargo vessel arrived at dawn.\n\nDockside cranes unloaded containers.",
	})
	require.NoError(t, err)

	hits := lexical.Search("cargo", 10)
	require.NotEmpty(t, hits)

	ids := map[string]bool{}
	for _, h := range hits {
		ids[h.ID] = true
	}
	assert.True(t, ids[res.Document.ID])
}

func TestIngestDeduplicatesByHashAndURI(t *testing.T) {
	s := store.NewMemStore()
	g := New(s, nil)
	doc := Document{URI: "file://a.txt", Text: paragraphs(2, 30)}

	first, err := g.Ingest(context.Background(), doc)
	require.NoError(t, err)

	second, err := g.Ingest(context.Background(), doc)
	require.NoError(t, err)
	assert.True(t, second.Skipped)
	assert.Equal(t, first.Document.ID, second.Document.ID)

	// Same text at a different URI is a distinct entity.
	doc.URI = "file://b.txt"
	third, err := g.Ingest(context.Background(), doc)
	require.NoError(t, err)
	assert.False(t, third.Skipped)
	assert.NotEqual(t, first.Document.ID, third.Document.ID)
}

func TestIngestEmptyDocument(t *testing.T) {
	g := New(store.NewMemStore(), nil)
	_, err := g.Ingest(context.Background(), Document{URI: "file://x", Text: "   \n "})
	assert.Error(t, err)
}

func TestSplitSections(t *testing.T) {
	text := paragraphs(3, 30)

	// Target 70: first two paragraphs fit, third flushes into its own.
	sections := splitSections(text, 70)
	require.Len(t, sections, 2)
	assert.Equal(t, 60, store.CountWords(sections[0]))
	assert.Equal(t, 30, store.CountWords(sections[1]))

	// Oversized single paragraph still becomes one section.
	sections = splitSections(paragraphs(1, 100), 10)
	assert.Len(t, sections, 1)
}

func TestSplitChunksOverlap(t *testing.T) {
	words := make([]string, 50)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	text := strings.Join(words, " ")

	chunks := splitChunks(text, 20, 5)
	require.Len(t, chunks, 3)

	// Step is 15: chunk 2 starts at w15, repeating 5 words of chunk 1.
	assert.True(t, strings.HasPrefix(chunks[1], "w15 "))
	assert.True(t, strings.HasSuffix(chunks[0], " w19"))

	// Short text stays whole.
	assert.Equal(t, []string{"a b c"}, splitChunks("a b c", 20, 5))
	assert.Nil(t, splitChunks("", 20, 5))
}
