package port

import "context"

// Generation is the oracle's answer to a natural-language question.
// SQL is untrusted text with no assumed structure beyond "purports to be SQL".
type Generation struct {
	SQL string

	// CanAnswer is false when the oracle reports the schema cannot answer
	// the question at all.
	CanAnswer bool
}

// Generator converts a natural-language question into SQL text, given a
// schema description to ground the generation.
type Generator interface {
	Generate(ctx context.Context, question, schemaContext string) (Generation, error)
}
