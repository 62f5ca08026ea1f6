package chunker

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docvector/internal/core/domain"
)

// wordTokenizer counts whitespace-separated words as tokens. It keeps
// the tests deterministic without loading a real encoding.
type wordTokenizer struct{}

func (wordTokenizer) Count(text string) int {
	return len(strings.Fields(text))
}

func (wordTokenizer) Tail(text string, n int) string {
	fields := strings.Fields(text)
	if len(fields) <= n {
		return text
	}
	return strings.Join(fields[len(fields)-n:], " ")
}

func words(n int, prefix string) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = prefix
	}
	return strings.Join(parts, " ")
}

func TestProcessor_Process_EmptyDocument(t *testing.T) {
	p := New(wordTokenizer{})

	doc := &domain.Document{ID: "doc-1", Content: "   \n\t  "}
	chunks, err := p.Process(context.Background(), doc, nil)

	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestProcessor_Process_SingleSmallDocument(t *testing.T) {
	p := New(wordTokenizer{}, WithTargetTokens(100), WithOverlapTokens(0), WithMinTokens(0))

	doc := &domain.Document{ID: "doc-1", Content: "a short paragraph"}
	chunks, err := p.Process(context.Background(), doc, nil)

	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "a short paragraph", chunks[0].Content)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, "doc-1", chunks[0].DocumentID)
	assert.Equal(t, 3, chunks[0].TokenCount)
	assert.NotEmpty(t, chunks[0].ID)
	assert.NotNil(t, chunks[0].Metadata)
}

func TestProcessor_Process_SplitsAtBudget(t *testing.T) {
	p := New(wordTokenizer{}, WithTargetTokens(10), WithOverlapTokens(0), WithMinTokens(0))

	// Two 6-word paragraphs: together they exceed the 10-token budget.
	content := words(6, "alpha") + "\n\n" + words(6, "beta")
	doc := &domain.Document{ID: "doc-1", Content: content}

	chunks, err := p.Process(context.Background(), doc, nil)

	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, words(6, "alpha"), chunks[0].Content)
	assert.Equal(t, words(6, "beta"), chunks[1].Content)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, 1, chunks[1].Index)
}

func TestProcessor_Process_PacksUnitsUpToBudget(t *testing.T) {
	p := New(wordTokenizer{}, WithTargetTokens(10), WithOverlapTokens(0), WithMinTokens(0))

	// 4 + 4 fits the budget; the third paragraph starts a new chunk.
	content := words(4, "a") + "\n\n" + words(4, "b") + "\n\n" + words(4, "c")
	doc := &domain.Document{ID: "doc-1", Content: content}

	chunks, err := p.Process(context.Background(), doc, nil)

	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, words(4, "a")+"\n\n"+words(4, "b"), chunks[0].Content)
	assert.Equal(t, words(4, "c"), chunks[1].Content)
}

func TestProcessor_Process_OverlapPrependsPreviousTail(t *testing.T) {
	p := New(wordTokenizer{}, WithTargetTokens(10), WithOverlapTokens(3), WithMinTokens(0))

	content := words(6, "alpha") + "\n\n" + words(6, "beta")
	doc := &domain.Document{ID: "doc-1", Content: content}

	chunks, err := p.Process(context.Background(), doc, nil)

	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, words(6, "alpha"), chunks[0].Content)
	assert.Equal(t, words(3, "alpha")+"\n"+words(6, "beta"), chunks[1].Content)
	assert.Equal(t, 9, chunks[1].TokenCount)
}

func TestProcessor_Process_CodeBlockIsAtomic(t *testing.T) {
	p := New(wordTokenizer{}, WithTargetTokens(10), WithOverlapTokens(0), WithMinTokens(0))

	fence := "```go\n" + words(30, "code") + "\n```"
	content := words(3, "intro") + "\n\n" + fence + "\n\n" + words(3, "outro")
	doc := &domain.Document{ID: "doc-1", Content: content}

	chunks, err := p.Process(context.Background(), doc, nil)

	require.NoError(t, err)
	require.Len(t, chunks, 3)
	// The fence exceeds the budget but is emitted whole, never split.
	assert.Contains(t, chunks[1].Content, "```go")
	assert.Contains(t, chunks[1].Content, words(30, "code"))
	assert.True(t, strings.HasSuffix(chunks[1].Content, "```"))
}

func TestProcessor_Process_ForceSplitsOversizedParagraph(t *testing.T) {
	p := New(wordTokenizer{}, WithTargetTokens(20), WithOverlapTokens(2), WithMinTokens(0))

	// One 45-word paragraph with no structural breaks must still be
	// split into budget-sized chunks with the overlap chain intact.
	doc := &domain.Document{ID: "doc-1", Content: words(45, "w")}

	chunks, err := p.Process(context.Background(), doc, nil)

	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, 20, chunks[0].TokenCount)
	assert.Equal(t, 22, chunks[1].TokenCount, "20-token piece plus 2-token overlap")
	assert.Equal(t, 7, chunks[2].TokenCount)
	assert.True(t, strings.HasPrefix(chunks[1].Content, words(2, "w")+"\n"))
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Index)
	}
}

func TestProcessor_Process_ForceSplitPrefersSentenceBoundaries(t *testing.T) {
	p := New(wordTokenizer{}, WithTargetTokens(6), WithOverlapTokens(0), WithMinTokens(0))

	content := "aa bb cc. dd ee ff. gg hh ii. jj kk ll."
	doc := &domain.Document{ID: "doc-1", Content: content}

	chunks, err := p.Process(context.Background(), doc, nil)

	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "aa bb cc. dd ee ff.", chunks[0].Content)
	assert.Equal(t, "gg hh ii. jj kk ll.", chunks[1].Content)
}

func TestProcessor_Process_HeadingStartsNewUnit(t *testing.T) {
	p := New(wordTokenizer{}, WithTargetTokens(4), WithOverlapTokens(0), WithMinTokens(0))

	content := "# Title\nintro text here\n## Section\nmore body text"
	doc := &domain.Document{ID: "doc-1", Content: content}

	chunks, err := p.Process(context.Background(), doc, nil)

	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.True(t, strings.HasPrefix(chunks[0].Content, "# Title"))
	assert.True(t, strings.HasPrefix(chunks[1].Content, "## Section"))
}

func TestProcessor_Process_MinTokensAbsorbsSmallUnits(t *testing.T) {
	p := New(wordTokenizer{}, WithTargetTokens(4), WithOverlapTokens(0), WithMinTokens(5))

	// Each paragraph is 2 tokens; the floor keeps absorbing past the
	// 4-token budget until at least 5 tokens are gathered.
	content := words(2, "a") + "\n\n" + words(2, "b") + "\n\n" + words(2, "c") + "\n\n" + words(2, "d")
	doc := &domain.Document{ID: "doc-1", Content: content}

	chunks, err := p.Process(context.Background(), doc, nil)

	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 6, chunks[0].TokenCount)
	assert.Equal(t, 2, chunks[1].TokenCount)
}

func TestProcessor_Process_ContiguousIndices(t *testing.T) {
	p := New(wordTokenizer{}, WithTargetTokens(5), WithOverlapTokens(0), WithMinTokens(0))

	var paragraphs []string
	for i := 0; i < 8; i++ {
		paragraphs = append(paragraphs, words(4, "p"))
	}
	doc := &domain.Document{ID: "doc-1", Content: strings.Join(paragraphs, "\n\n")}

	chunks, err := p.Process(context.Background(), doc, nil)

	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Index)
		assert.Equal(t, "doc-1", chunk.DocumentID)
	}
}

func TestNew_OverlapClampedToQuarterBudget(t *testing.T) {
	p := New(wordTokenizer{}, WithTargetTokens(20), WithOverlapTokens(50))

	assert.Equal(t, 5, p.overlapTokens)
}

func TestProcessor_Name(t *testing.T) {
	assert.Equal(t, "chunker", New(wordTokenizer{}).Name())
}
