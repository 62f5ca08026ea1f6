package driven

// Tokenizer counts and slices text in model token units.
// Chunk budgets and overlaps are expressed in tokens, not characters.
type Tokenizer interface {
	// Count returns the number of tokens in text.
	Count(text string) int

	// Tail returns the trailing n tokens of text, decoded back to a
	// string. Returns text unchanged when it has n tokens or fewer.
	Tail(text string, n int) string
}
