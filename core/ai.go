package core

import "context"

// TextGenerator produces a completion for prompt, steered by the system instruction.
type TextGenerator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// TextGeneratorProvider resolves the TextGenerator to use for the current request.
// Credentials are looked up on every call so that rotated keys apply immediately.
type TextGeneratorProvider interface {
	TextGenerator(ctx context.Context) (TextGenerator, error)
}
