package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wwwzy/PaperAgent/internal/logging"
	"github.com/wwwzy/PaperAgent/internal/storage"
	"github.com/wwwzy/PaperAgent/internal/vectorstore"
)

func TestSplitSentences(t *testing.T) {
	got := SplitSentences("First sentence. Second one!\nThird? trailing")
	assert.Equal(t, []string{"First sentence.", "Second one!", "Third?", "trailing"}, got)
	assert.Empty(t, SplitSentences("   "))
}

func sentence(words int) string {
	return strings.TrimSpace(strings.Repeat("word ", words-1)) + " end."
}

func TestChunkerWindowAndOverlap(t *testing.T) {
	c := NewChunker(10, 4)
	// 三个 4 词句子：前两个装得下，第三个触发切分并带上最后一个句子作为重叠
	text := strings.Join([]string{sentence(4), sentence(4), sentence(4)}, " ")
	chunks := c.Chunk(text)
	require.Len(t, chunks, 2)
	assert.Equal(t, 8, len(strings.Fields(chunks[0])))
	assert.Equal(t, 8, len(strings.Fields(chunks[1])))
}

func TestChunkerOversizedSentence(t *testing.T) {
	c := NewChunker(5, 2)
	chunks := c.Chunk(sentence(12))
	require.Len(t, chunks, 1)
	assert.Equal(t, 12, len(strings.Fields(chunks[0])))
}

func TestNewChunkerDefaults(t *testing.T) {
	c := NewChunker(0, -1)
	assert.Equal(t, DefaultChunkSize, c.Size)
	assert.Equal(t, DefaultChunkOverlap, c.Overlap)
}

func TestSectionDetector(t *testing.T) {
	d := NewSectionDetector()
	assert.Equal(t, SectionAbstract, d.Detect("A Great Paper\nAbstract\nWe study things.\n1 Introduction\nText", 0))
	assert.Equal(t, SectionMethods, d.Detect("some text\n3.1 Methods\nmore text", 2))
	// 无标题页沿用上一章节
	assert.Equal(t, SectionMethods, d.Detect("continuation of the model description", 3))
	assert.Equal(t, SectionResults, d.Detect("IV. RESULTS\nnumbers", 4))
	assert.Equal(t, SectionReferences, d.Detect("References\n[1] Someone", 9))

	fresh := NewSectionDetector()
	assert.Equal(t, SectionBody, fresh.Detect("nothing recognisable here", 5))
	assert.Equal(t, SectionDiscussion, fresh.Detect("in this discussion we note", 6))
}

func TestNormalizeSection(t *testing.T) {
	assert.Equal(t, SectionMethods, NormalizeSection("methodology"))
	assert.Equal(t, SectionAbstract, NormalizeSection(" abstract "))
	assert.Equal(t, "", NormalizeSection("appendix"))
}

func TestTokenCounterFallback(t *testing.T) {
	var c *TokenCounter
	assert.Equal(t, 4, c.Count("one two three"))
	assert.Greater(t, NewTokenCounter("gpt-4o-mini").Count("hello world"), 0)
}

func newTestService(t *testing.T, pages []Page, extractErr error) (*Service, *storage.Storage, *vectorstore.Store) {
	t.Helper()
	ctx := context.Background()
	st, err := storage.Open(ctx, storage.Config{Path: filepath.Join(t.TempDir(), "ingest.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	vs, err := vectorstore.New(vectorstore.Config{}, vectorstore.NewHashEmbedding(64))
	require.NoError(t, err)

	svc, err := NewService(Config{UploadDir: filepath.Join(t.TempDir(), "uploads"), ChunkSize: 20, ChunkOverlap: 5}, st, vs, logging.Discard())
	require.NoError(t, err)
	svc.WithExtractor(func(string) ([]Page, error) {
		return pages, extractErr
	})
	return svc, st, vs
}

func TestServiceIngestListDelete(t *testing.T) {
	pages := []Page{
		{Number: 1, Section: SectionAbstract, Text: "Deep Retrieval for Papers\nWe present a retrieval agent. It grades documents."},
		{Number: 2, Section: SectionResults, Text: "Table 2 shows accuracy of 0.91. The baseline reaches 0.85."},
		{Number: 3, Section: SectionReferences, Text: "[1] A. Author. Some venue."},
	}
	svc, _, vs := newTestService(t, pages, nil)
	ctx := context.Background()

	paper, err := svc.Ingest(ctx, "paper.pdf", strings.NewReader("%PDF-1.4 fake"))
	require.NoError(t, err)
	assert.Equal(t, storage.PaperStatusReady, paper.Status)
	assert.Equal(t, "Deep Retrieval for Papers", paper.Title)
	assert.Equal(t, 3, paper.Pages)
	assert.Equal(t, 2, vs.Count(), "references must not be indexed")
	assert.Greater(t, paper.Tokens, 0)
	_, err = os.Stat(paper.Path)
	require.NoError(t, err)

	chunks, err := svc.Chunks(ctx, paper.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 2, chunks[1].Page)
	assert.Equal(t, SectionResults, chunks[1].Section)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, svc.Delete(ctx, paper.ID))
	assert.Equal(t, 0, vs.Count())
	_, err = os.Stat(paper.Path)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	_, err = svc.Get(ctx, paper.ID)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestServiceRejectsNonPDF(t *testing.T) {
	svc, _, _ := newTestService(t, nil, nil)
	_, err := svc.Ingest(context.Background(), "notes.txt", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrUnsupportedFile)
}

func TestServiceRollsBackOnFailure(t *testing.T) {
	svc, st, vs := newTestService(t, nil, errors.New("broken pdf"))
	ctx := context.Background()

	_, err := svc.Ingest(ctx, "broken.pdf", strings.NewReader("x"))
	require.Error(t, err)
	assert.Equal(t, 0, vs.Count())

	papers, err := st.ListPapers(ctx, storage.PaperStatusFailed, 10)
	require.NoError(t, err)
	require.Len(t, papers, 1)
	assert.Contains(t, papers[0].ErrorMessage, "broken pdf")
	_, statErr := os.Stat(papers[0].Path)
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}
