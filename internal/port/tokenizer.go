package port

// Tokenizer splits text into content words and estimates LLM token counts
// for prompt budgeting.
type Tokenizer interface {
	Tokenize(text string) []string
	CountTokens(text string) int
}
