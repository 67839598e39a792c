package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/becomeliminal/memcore/core"
)

// InjectMode selects how recalled memories reach the wrapped agent.
type InjectMode string

const (
	// InjectSystemPreamble appends a formatted memory block to the turn's
	// existing system prompt. Default.
	InjectSystemPreamble InjectMode = "systemPreamble"

	// InjectMetadata attaches the recall results to Input.Metadata under
	// MetadataKey instead of touching the prompt.
	InjectMetadata InjectMode = "metadata"
)

// MetadataKey is where InjectMetadata places the []RecallResult.
const MetadataKey = "memories"

// preambleHeader introduces the injected memory block.
const preambleHeader = "Relevant memories:"

// duplicateThreshold is the fused-score cutoff above which a candidate
// fact is considered already covered by an existing memory.
const duplicateThreshold = 0.9

// PreRecall configures the pre-turn retrieval.
type PreRecall struct {
	// Limit defaults to 5 (clamped to 10 like any recall).
	Limit int

	// Types defaults to semantic + episodic.
	Types []Type
}

// AttachConfig configures the memory decorator. The zero value gives the
// standard behavior: recall 5 semantic/episodic memories, inject them as a
// system preamble, log an episodic record, and extract facts post-turn.
type AttachConfig struct {
	PreRecall  PreRecall
	InjectMode InjectMode

	// DisableEpisodicLog turns off the post-turn episodic record.
	DisableEpisodicLog bool

	// DisableFactExtraction turns off post-turn fact extraction.
	DisableFactExtraction bool
}

// Attach wraps a single-turn agent with memory augmentation. The decorator
// is a pure function of its arguments; the only shared state is the
// client's own per-scope buffer.
//
// Pre-turn recall failure fails the turn before the agent runs: the agent's
// contract assumes requested context was gathered. Post-turn persistence is
// best-effort within the same call — failures are logged, never propagated,
// and the agent's successful result always takes precedence.
func Attach(agent core.AgentFn, cfg AttachConfig, client *Client) core.AgentFn {
	return func(ctx context.Context, input *core.Input) (*core.Output, error) {
		recalled, err := client.Recall(ctx, RecallOptions{
			Query: input.UserMessage,
			Types: preRecallTypes(cfg.PreRecall),
			Limit: cfg.PreRecall.Limit,
		})
		if err != nil {
			return nil, err
		}

		enhanced := injectMemories(input, recalled, cfg.InjectMode)

		output, err := agent(ctx, enhanced)
		if err != nil {
			return nil, err
		}

		if !cfg.DisableEpisodicLog {
			logEpisode(ctx, client, input.UserMessage, output.Text)
		}
		if !cfg.DisableFactExtraction {
			extractAndStore(ctx, client, input.UserMessage, output.Text)
		}
		return output, nil
	}
}

func preRecallTypes(pre PreRecall) []Type {
	if len(pre.Types) > 0 {
		return pre.Types
	}
	return []Type{TypeSemantic, TypeEpisodic}
}

// injectMemories returns a shallow copy of the input with the recalled
// memories attached. The original input is never mutated and existing
// system instructions are preserved.
func injectMemories(input *core.Input, recalled []RecallResult, mode InjectMode) *core.Input {
	enhanced := *input
	if len(recalled) == 0 {
		return &enhanced
	}

	if mode == InjectMetadata {
		metadata := make(map[string]any, len(input.Metadata)+1)
		for k, v := range input.Metadata {
			metadata[k] = v
		}
		metadata[MetadataKey] = recalled
		enhanced.Metadata = metadata
		return &enhanced
	}

	var b strings.Builder
	b.WriteString(preambleHeader)
	for _, r := range recalled {
		b.WriteString(fmt.Sprintf("\n- %s  [type: %s, seen: %s]",
			r.Item.Text, r.Item.Type, r.Item.CreatedAt.Format("2006-01-02")))
	}
	if enhanced.SystemPrompt != "" {
		enhanced.SystemPrompt = enhanced.SystemPrompt + "\n\n" + b.String()
	} else {
		enhanced.SystemPrompt = b.String()
	}
	return &enhanced
}

// logEpisode persists a truncated record of the exchange.
func logEpisode(ctx context.Context, client *Client, userMessage, response string) {
	text := fmt.Sprintf("User: %s | Agent: %s",
		truncateText(userMessage, 100), truncateText(response, 100))
	if _, err := client.Remember(ctx, RememberInput{
		Text:   text,
		Type:   TypeEpisodic,
		Source: "agent",
	}); err != nil {
		client.log.Warn().Err(err).Msg("episodic log failed")
	}
}

// extractAndStore runs the fact extractor and persists each candidate that
// is not already covered by an existing semantic memory.
func extractAndStore(ctx context.Context, client *Client, userMessage, response string) {
	facts, err := client.extractor.ExtractFacts(ctx, userMessage, response)
	if err != nil {
		client.log.Warn().Err(err).Msg("fact extraction failed")
		return
	}

	for _, fact := range facts {
		duplicates, err := client.Recall(ctx, RecallOptions{
			Query: fact.Text,
			Types: []Type{TypeSemantic},
			Limit: 3,
		})
		if err != nil {
			client.log.Warn().Err(err).Str("fact", fact.Text).Msg("duplicate check failed")
			continue
		}
		if hasDuplicate(duplicates) {
			client.log.Debug().Str("fact", fact.Text).Msg("fact skipped as duplicate")
			continue
		}

		if _, err := client.Remember(ctx, RememberInput{
			Text:       fact.Text,
			Type:       TypeSemantic,
			Tags:       fact.Tags,
			Importance: fact.Importance,
			Source:     "chat",
		}); err != nil {
			client.log.Warn().Err(err).Str("fact", fact.Text).Msg("fact store failed")
		}
	}
}

func hasDuplicate(results []RecallResult) bool {
	for _, r := range results {
		if r.Score > duplicateThreshold {
			return true
		}
	}
	return false
}

func truncateText(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen < 3 {
		return "..."
	}
	return s[:maxLen-3] + "..."
}
