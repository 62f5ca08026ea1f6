package postprocessors

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docvector/internal/core/domain"
)

// mockProcessor is a test processor that returns predefined chunks.
type mockProcessor struct {
	name   string
	chunks []domain.Chunk
	err    error
}

func (m *mockProcessor) Name() string {
	return m.name
}

func (m *mockProcessor) Process(_ context.Context, _ *domain.Document, chunks []domain.Chunk) ([]domain.Chunk, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.chunks != nil {
		return m.chunks, nil
	}
	return chunks, nil
}

func TestNewPipeline(t *testing.T) {
	p := NewPipeline()

	require.NotNil(t, p)
	assert.Equal(t, 0, p.Len())
}

func TestPipeline_Add(t *testing.T) {
	p := NewPipeline()

	p.Add(&mockProcessor{name: "test"})

	assert.Equal(t, 1, p.Len())
}

func TestPipeline_Process_NilDocument(t *testing.T) {
	p := NewPipeline()

	_, err := p.Process(context.Background(), nil)

	require.Error(t, err)
}

func TestPipeline_Process_EmptyPipeline(t *testing.T) {
	p := NewPipeline()
	doc := &domain.Document{ID: "doc-1", Content: "body"}

	chunks, err := p.Process(context.Background(), doc)

	require.NoError(t, err)
	assert.Nil(t, chunks)
}

func TestPipeline_Process_RunsProcessorsInOrder(t *testing.T) {
	firstChunks := []domain.Chunk{
		{ID: "chunk-1", Content: "first"},
	}
	secondChunks := []domain.Chunk{
		{ID: "chunk-1", Content: "modified"},
		{ID: "chunk-2", Content: "added"},
	}

	p := NewPipeline(
		&mockProcessor{name: "first", chunks: firstChunks},
		&mockProcessor{name: "second", chunks: secondChunks},
	)
	doc := &domain.Document{ID: "doc-1", Content: "body"}

	chunks, err := p.Process(context.Background(), doc)

	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "modified", chunks[0].Content)
	assert.Equal(t, "added", chunks[1].Content)
}

func TestPipeline_Process_PassthroughProcessor(t *testing.T) {
	initial := []domain.Chunk{
		{ID: "chunk-1", Content: "kept"},
	}

	p := NewPipeline(
		&mockProcessor{name: "chunker", chunks: initial},
		&mockProcessor{name: "passthrough"},
	)
	doc := &domain.Document{ID: "doc-1", Content: "body"}

	chunks, err := p.Process(context.Background(), doc)

	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "kept", chunks[0].Content)
}

func TestPipeline_Process_ProcessorError(t *testing.T) {
	failure := errors.New("processor failed")

	p := NewPipeline(
		&mockProcessor{name: "chunker", chunks: []domain.Chunk{{ID: "chunk-1"}}},
		&mockProcessor{name: "failing", err: failure},
	)
	doc := &domain.Document{ID: "doc-1", Content: "body"}

	_, err := p.Process(context.Background(), doc)

	require.Error(t, err)
	assert.ErrorIs(t, err, failure)
	assert.Contains(t, err.Error(), "failing")
}
