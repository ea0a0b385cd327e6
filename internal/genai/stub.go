package genai

import "context"

// GenerateFunc adapts a function to the Generator interface.
type GenerateFunc func(ctx context.Context, req Request) (*Result, error)

// Generate implements Generator.
func (f GenerateFunc) Generate(ctx context.Context, req Request) (*Result, error) {
	return f(ctx, req)
}

// NewStub returns a Generator that replies with fixed text. Useful in tests
// and offline runs.
func NewStub(text string) Generator {
	return GenerateFunc(func(ctx context.Context, req Request) (*Result, error) {
		return &Result{Text: text}, nil
	})
}
