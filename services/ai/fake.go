package aisvc

import (
	"context"
	"strings"
	"sync"

	"github.com/classnote/classnote/core"
)

// Fake is a TextGenerator and TextGeneratorProvider for tests: it answers with Reply(prompt),
// or "AI: <first line of the prompt>" when Reply is nil, and records the prompts it receives.
type Fake struct {
	Reply func(system, prompt string) (string, error)
	Err   error // returned by TextGenerator

	mu      sync.Mutex
	Prompts []string
}

var (
	_ core.TextGenerator         = (*Fake)(nil)
	_ core.TextGeneratorProvider = (*Fake)(nil)
)

func (f *Fake) TextGenerator(context.Context) (core.TextGenerator, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f, nil
}

func (f *Fake) Generate(_ context.Context, system, prompt string) (string, error) {
	f.mu.Lock()
	f.Prompts = append(f.Prompts, prompt)
	f.mu.Unlock()

	if f.Reply != nil {
		return f.Reply(system, prompt)
	}
	return "AI: " + strings.SplitN(prompt, "\n", 2)[0], nil
}

func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Prompts)
}
