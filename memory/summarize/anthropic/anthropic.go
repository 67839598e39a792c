// Package anthropic provides LLM-backed Summarizer and FactExtractor
// strategies on the Anthropic Messages API. They are drop-in replacements
// for the engine's heuristic defaults: pass them to the client with
// memory.WithSummarizer / memory.WithExtractor.
package anthropic

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/m-mizutani/goerr/v2"

	"github.com/becomeliminal/memcore/memory"
)

const defaultModel = anthropic.ModelClaude3_5HaikuLatest

// Config configures the strategies.
type Config struct {
	// Model defaults to a small fast model; summarization and fact
	// extraction do not need a frontier one.
	Model anthropic.Model

	// MaxTokens bounds each completion. Default: 512.
	MaxTokens int64
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 512
	}
	return c
}

// Summarizer condenses evicted conversation text with a model call.
type Summarizer struct {
	client *anthropic.Client
	cfg    Config
}

// NewSummarizer creates an LLM summarizer.
func NewSummarizer(client *anthropic.Client, cfg Config) *Summarizer {
	return &Summarizer{client: client, cfg: cfg.withDefaults()}
}

const summarizeSystem = `You condense conversation excerpts into durable memory.
Keep only stable, reusable information: decisions, preferences, important facts.
Write two or three short sentences in third person. Do not mention that you are summarizing.`

// Summarize sends the text to the model and returns its condensation.
func (s *Summarizer) Summarize(ctx context.Context, text string) (string, error) {
	out, err := complete(ctx, s.client, s.cfg, summarizeSystem, text)
	if err != nil {
		return "", goerr.Wrap(err, "llm summarize")
	}
	return out, nil
}

// Extractor derives candidate facts with a model call.
type Extractor struct {
	client *anthropic.Client
	cfg    Config
}

// NewExtractor creates an LLM fact extractor.
func NewExtractor(client *anthropic.Client, cfg Config) *Extractor {
	return &Extractor{client: client, cfg: cfg.withDefaults()}
}

const extractSystem = `You extract durable facts from one agent interaction.
Return a JSON array, possibly empty, of objects with keys "text",
"importance" (low|medium|high) and "tags" (array of strings, e.g.
"preference", "relationship"). Only include stable facts worth remembering;
skip chit-chat and one-off details. Return JSON only, no prose.`

// ExtractFacts sends the input/output pair to the model and parses the
// returned JSON candidates. Candidates of ten characters or fewer are
// discarded, matching the heuristic extractor's noise filter.
func (e *Extractor) ExtractFacts(ctx context.Context, input, output any) ([]memory.Fact, error) {
	prompt := "Input:\n" + stringify(input) + "\n\nOutput:\n" + stringify(output)
	raw, err := complete(ctx, e.client, e.cfg, extractSystem, prompt)
	if err != nil {
		return nil, goerr.Wrap(err, "llm fact extraction")
	}

	var parsed []struct {
		Text       string   `json:"text"`
		Importance string   `json:"importance"`
		Tags       []string `json:"tags"`
	}
	if err := json.Unmarshal([]byte(extractJSON(raw)), &parsed); err != nil {
		return nil, goerr.Wrap(err, "parse extracted facts", goerr.V("raw", raw))
	}

	facts := make([]memory.Fact, 0, len(parsed))
	for _, p := range parsed {
		if len(p.Text) <= 10 {
			continue
		}
		importance := memory.Importance(p.Importance)
		switch importance {
		case memory.ImportanceLow, memory.ImportanceMedium, memory.ImportanceHigh:
		default:
			importance = memory.ImportanceMedium
		}
		facts = append(facts, memory.Fact{Text: p.Text, Importance: importance, Tags: p.Tags})
	}
	return facts, nil
}

func complete(ctx context.Context, client *anthropic.Client, cfg Config, system, user string) (string, error) {
	resp, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     cfg.Model,
		MaxTokens: cfg.MaxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", goerr.New("empty model response")
	}
	return text, nil
}

// extractJSON strips any accidental fencing around the model's JSON.
func extractJSON(raw string) string {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
