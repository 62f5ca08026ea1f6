// Package tokenizer provides token counting and slicing backed by
// tiktoken's cl100k_base encoding, the encoding used by the OpenAI
// embedding models and a reasonable approximation for others.
package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/custodia-labs/docvector/internal/core/ports/driven"
)

// Ensure Tiktoken implements the interface.
var _ driven.Tokenizer = (*Tiktoken)(nil)

// EncodingName is the BPE encoding used for all token accounting.
const EncodingName = "cl100k_base"

// Tiktoken counts tokens with a tiktoken encoding.
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

// New creates a tokenizer with the cl100k_base encoding.
func New() (*Tiktoken, error) {
	enc, err := tiktoken.GetEncoding(EncodingName)
	if err != nil {
		return nil, fmt.Errorf("load encoding %s: %w", EncodingName, err)
	}
	return &Tiktoken{enc: enc}, nil
}

// Count returns the number of tokens in text.
func (t *Tiktoken) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(t.enc.Encode(text, nil, nil))
}

// Tail returns the trailing n tokens of text, decoded back to a string.
func (t *Tiktoken) Tail(text string, n int) string {
	if n <= 0 {
		return ""
	}
	ids := t.enc.Encode(text, nil, nil)
	if len(ids) <= n {
		return text
	}
	return t.enc.Decode(ids[len(ids)-n:])
}
