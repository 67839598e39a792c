package core

import "context"

// AgentFn is a single-turn agent function: one input in, one output out.
// Implementations typically wrap an LLM call plus whatever tool loop the
// host runs. The memory package decorates AgentFn values without caring
// what happens inside them.
type AgentFn func(ctx context.Context, input *Input) (*Output, error)

// Input represents the input to a single agent turn.
type Input struct {
	// UserMessage is the user's message to process.
	UserMessage string

	// SystemPrompt is the system prompt for this turn. Decorators may
	// append to it but must never replace existing instructions.
	SystemPrompt string

	// Metadata carries auxiliary per-turn values. Decorators that inject
	// context out-of-band (rather than into the prompt) write here.
	Metadata map[string]any
}

// Output represents the result of a single agent turn.
type Output struct {
	// Text is the agent's text response.
	Text string

	// Metadata carries auxiliary result values set by the agent.
	Metadata map[string]any
}
