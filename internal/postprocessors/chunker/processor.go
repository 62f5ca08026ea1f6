// Package chunker provides a token-bounded, structure-aware chunking
// processor for markdown content.
//
// Content is partitioned at structural boundaries first: headings start
// a new unit, blank lines separate paragraphs, and fenced code blocks
// are atomic and never split even when they exceed the token budget.
// Consecutive units are packed greedily into chunks up to the target
// token size; plain-text units larger than the budget are themselves
// split at sentence boundaries. A configurable number of trailing
// tokens from the previous chunk is prepended to each following chunk
// for continuity.
package chunker

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/custodia-labs/docvector/internal/core/domain"
	"github.com/custodia-labs/docvector/internal/core/ports/driven"
)

// DefaultTargetTokens is the default token budget per chunk.
const DefaultTargetTokens = 400

// DefaultOverlapTokens is the default number of overlapping tokens.
const DefaultOverlapTokens = 40

// DefaultMinTokens is the floor below which a chunk keeps absorbing
// units instead of being emitted.
const DefaultMinTokens = 20

// Processor splits document content into token-bounded chunks.
// It implements the PostProcessor interface.
type Processor struct {
	tok           driven.Tokenizer
	targetTokens  int
	overlapTokens int
	minTokens     int
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithTargetTokens sets the chunk budget in tokens.
func WithTargetTokens(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.targetTokens = n
		}
	}
}

// WithOverlapTokens sets the overlap between chunks in tokens.
func WithOverlapTokens(n int) Option {
	return func(p *Processor) {
		if n >= 0 {
			p.overlapTokens = n
		}
	}
}

// WithMinTokens sets the minimum chunk size in tokens.
func WithMinTokens(n int) Option {
	return func(p *Processor) {
		if n >= 0 {
			p.minTokens = n
		}
	}
}

// New creates a new chunker processor with the given options.
func New(tok driven.Tokenizer, opts ...Option) *Processor {
	p := &Processor{
		tok:           tok,
		targetTokens:  DefaultTargetTokens,
		overlapTokens: DefaultOverlapTokens,
		minTokens:     DefaultMinTokens,
	}

	for _, opt := range opts {
		opt(p)
	}

	// Ensure overlap doesn't exceed the budget
	if p.overlapTokens >= p.targetTokens {
		p.overlapTokens = p.targetTokens / 4
	}

	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// Process splits the document content into chunks.
// Input chunks are ignored; this processor creates new chunks from
// document content. Empty or whitespace-only content yields no chunks.
func (p *Processor) Process(_ context.Context, doc *domain.Document, _ []domain.Chunk) ([]domain.Chunk, error) {
	if strings.TrimSpace(doc.Content) == "" {
		return nil, nil
	}

	units := splitUnits(doc.Content)
	bases := p.pack(units)

	chunks := make([]domain.Chunk, 0, len(bases))
	for i, base := range bases {
		text := base
		if i > 0 && p.overlapTokens > 0 {
			tail := p.tok.Tail(bases[i-1], p.overlapTokens)
			text = tail + "\n" + base
		}

		chunks = append(chunks, domain.Chunk{
			ID:         uuid.New().String(),
			DocumentID: doc.ID,
			Content:    text,
			Index:      i,
			TokenCount: p.tok.Count(text),
			Metadata:   make(map[string]any),
		})
	}

	return chunks, nil
}

// pack greedily combines consecutive structural units into chunk bases.
// A plain-text unit that alone exceeds the budget is first force-split
// at sentence boundaries; only fenced code blocks stay whole past the
// budget. A chunk below the minimum keeps absorbing units even past the
// budget.
func (p *Processor) pack(units []string) []string {
	var bases []string
	var cur []string
	curTokens := 0

	flush := func() {
		if len(cur) > 0 {
			bases = append(bases, strings.Join(cur, "\n\n"))
			cur = nil
			curTokens = 0
		}
	}

	add := func(u string) {
		ut := p.tok.Count(u)
		switch {
		case curTokens == 0:
			cur = append(cur, u)
			curTokens = ut
		case curTokens+ut <= p.targetTokens || curTokens < p.minTokens:
			cur = append(cur, u)
			curTokens += ut
		default:
			flush()
			cur = append(cur, u)
			curTokens = ut
		}
	}

	for _, u := range units {
		if p.tok.Count(u) > p.targetTokens && !isFence(u) {
			for _, piece := range p.splitOversized(u) {
				add(piece)
			}
			continue
		}
		add(u)
	}
	flush()

	return bases
}

// splitOversized breaks a unit exceeding the token budget into pieces
// that fit. Sentence and line boundaries are preferred; a single
// sentence larger than the budget falls back to word boundaries.
func (p *Processor) splitOversized(unit string) []string {
	var frags []string
	for _, frag := range splitSentences(unit) {
		if p.tok.Count(frag) <= p.targetTokens {
			frags = append(frags, frag)
			continue
		}
		frags = append(frags, strings.Fields(frag)...)
	}

	var pieces []string
	var cur []string
	curTokens := 0

	for _, frag := range frags {
		ft := p.tok.Count(frag)
		if curTokens > 0 && curTokens+ft > p.targetTokens {
			pieces = append(pieces, strings.Join(cur, " "))
			cur = nil
			curTokens = 0
		}
		cur = append(cur, frag)
		curTokens += ft
	}
	if len(cur) > 0 {
		pieces = append(pieces, strings.Join(cur, " "))
	}

	return pieces
}

// splitSentences splits text at line breaks and after sentence-ending
// punctuation followed by a space.
func splitSentences(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		start := 0
		for i := 0; i < len(line); i++ {
			switch line[i] {
			case '.', '!', '?':
				if i+1 < len(line) && line[i+1] == ' ' {
					out = append(out, strings.TrimSpace(line[start:i+1]))
					start = i + 1
				}
			}
		}
		if rest := strings.TrimSpace(line[start:]); rest != "" {
			out = append(out, rest)
		}
	}
	return out
}

// isFence reports whether the unit is a fenced code block.
func isFence(unit string) bool {
	trimmed := strings.TrimSpace(unit)
	return strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~")
}

// splitUnits partitions markdown into structural units: fenced code
// blocks (atomic), headings (each starting a new unit), and blank-line
// separated paragraphs.
func splitUnits(content string) []string {
	var units []string
	var cur []string

	flush := func() {
		if len(cur) > 0 {
			units = append(units, strings.Join(cur, "\n"))
			cur = nil
		}
	}

	lines := strings.Split(content, "\n")
	inFence := false
	fenceMarker := ""

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if inFence {
			cur = append(cur, line)
			if strings.HasPrefix(trimmed, fenceMarker) {
				inFence = false
				flush()
			}
			continue
		}

		switch {
		case strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~"):
			flush()
			inFence = true
			fenceMarker = trimmed[:3]
			cur = append(cur, line)

		case isHeading(trimmed):
			flush()
			cur = append(cur, line)

		case trimmed == "":
			flush()

		default:
			cur = append(cur, line)
		}
	}
	flush()

	return units
}

// isHeading reports whether the line is a markdown ATX heading.
func isHeading(trimmed string) bool {
	if !strings.HasPrefix(trimmed, "#") {
		return false
	}
	rest := strings.TrimLeft(trimmed, "#")
	return strings.HasPrefix(rest, " ") || rest == ""
}
