package usecase

import (
	"fmt"
	"strings"
	"time"

	"charrag/internal/domain"
	"charrag/internal/port"
)

const (
	defaultMaxTokens   = 500
	defaultTokenBudget = 1500

	placeholderInfo    = "{character_info}"
	placeholderHistory = "{conversation_history}"
)

// StopSequences keep the model from stepping out of the role.
var StopSequences = []string{
	"As an AI",
	"As an AI language model",
	"I am an AI",
	"As a language model",
}

var sectionTitles = map[domain.MemoryKind]string{
	domain.KindFacts:          "FACTS ABOUT YOU:",
	domain.KindTraits:         "YOUR CHARACTER TRAITS:",
	domain.KindSpeechPatterns: "YOUR TYPICAL EXPRESSIONS AND MANNER OF SPEECH:",
	domain.KindLore:           "BACKGROUND:",
	domain.KindEpisodic:       "IMPORTANT MEMORIES:",
}

// styleProfile is everything a style level changes.
type styleProfile struct {
	examples    int
	temperature float64
	instruction string
}

var styleProfiles = map[domain.StyleLevel]styleProfile{
	domain.StyleLow: {
		examples:    1,
		temperature: 0.5,
		instruction: "Answer briefly and to the point while keeping your core character traits.",
	},
	domain.StyleMedium: {
		examples:    2,
		temperature: 0.7,
		instruction: "Balance being informative with staying in the character's style.",
	},
	domain.StyleHigh: {
		examples:    3,
		temperature: 0.85,
		instruction: "Immerse yourself fully in the role, using all of the character's turns of phrase and manner of speech.",
	},
}

// PromptOptions controls assembly.
type PromptOptions struct {
	Style       domain.StyleLevel
	TokenBudget int // upper bound for the memory section
	MaxTokens   int // completion length passed to the model
	MaxHistory  int // most recent history messages kept, 0 keeps all
}

// PromptAssembler turns retrieved memories into a system prompt in the
// character's voice.
type PromptAssembler struct {
	tokenizer port.Tokenizer
	now       func() time.Time
}

func NewPromptAssembler(tokenizer port.Tokenizer) *PromptAssembler {
	return &PromptAssembler{tokenizer: tokenizer, now: time.Now}
}

// Assemble builds the prompt. An empty result produces a prompt without a
// memory section, i.e. a reply conditioned only on the persona.
func (a *PromptAssembler) Assemble(c *domain.Character, result domain.RetrievalResult, history []port.Message, userMessage string, opts PromptOptions) port.Prompt {
	style := opts.Style
	profile, ok := styleProfiles[style]
	if !ok {
		style = domain.StyleHigh
		profile = styleProfiles[style]
	}
	budget := opts.TokenBudget
	if budget <= 0 {
		budget = defaultTokenBudget
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	info := a.characterInfo(result, style, budget)
	conv := formatHistory(c.Name, RecentHistory(history, opts.MaxHistory))

	tmpl := c.SystemTemplate
	if strings.TrimSpace(tmpl) == "" {
		tmpl = defaultTemplate(c)
	}
	system := strings.NewReplacer(placeholderInfo, info, placeholderHistory, conv).Replace(tmpl)
	if !strings.Contains(tmpl, placeholderInfo) && info != "" {
		system += "\n\n" + info
	}

	if ex := formatExamples(c, profile.examples); ex != "" {
		system += "\n\nExamples of answers in your style:\n\n" + ex
	}
	system += "\n\nStyle level: " + profile.instruction

	return port.Prompt{
		System:      strings.TrimSpace(system),
		Messages:    []port.Message{{Role: "user", Content: userMessage}},
		Temperature: profile.temperature,
		MaxTokens:   maxTokens,
		Stop:        StopSequences,
	}
}

// characterInfo renders memories grouped by kind. Memories are admitted in
// descending relevance until the token budget is spent, so the least
// relevant ones are dropped first.
func (a *PromptAssembler) characterInfo(result domain.RetrievalResult, style domain.StyleLevel, budget int) string {
	lines := make(map[domain.MemoryKind][]string)
	used := 0
	for _, sr := range result {
		line := a.formatMemory(sr, style)
		cost := a.tokenizer.CountTokens(line)
		if used+cost > budget {
			continue
		}
		used += cost
		kind := sr.Record.Kind()
		lines[kind] = append(lines[kind], line)
	}

	var b strings.Builder
	for _, kind := range domain.AllMemoryKinds {
		if len(lines[kind]) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(sectionTitles[kind])
		for _, l := range lines[kind] {
			b.WriteString("\n")
			b.WriteString(l)
		}
	}
	return b.String()
}

func (a *PromptAssembler) formatMemory(sr domain.ScoredRecord, style domain.StyleLevel) string {
	line := "- " + sr.Record.Text
	episodic := sr.Record.Kind() == domain.KindEpisodic
	if style == domain.StyleHigh || episodic {
		if stars := Stars(sr.Relevance); stars != "" {
			line += " " + stars
		}
	}
	if !episodic || style != domain.StyleHigh {
		return line
	}

	meta := sr.Record.Metadata
	if at, err := time.Parse(time.RFC3339, meta[MetaCreatedAt]); err == nil {
		line += " (happened " + describeAge(a.now().Sub(at)) + ")"
	}
	if c := meta[MetaCategory]; c != "" {
		line += ", category: " + c
	}
	if e := meta[MetaEmotion]; e != "" {
		line += ", emotion: " + e
	}
	return line
}

// Stars renders relevance as zero to five stars.
func Stars(relevance float64) string {
	n := int(relevance * 5)
	n = max(0, min(n, 5))
	return strings.Repeat("★", n)
}

func describeAge(d time.Duration) string {
	days := d.Hours() / 24
	switch {
	case days < 1:
		return "today"
	case days < 2:
		return "yesterday"
	case days < 7:
		return fmt.Sprintf("%d days ago", int(days))
	case days < 30:
		return fmt.Sprintf("%d weeks ago", int(days/7))
	default:
		return fmt.Sprintf("%d months ago", int(days/30))
	}
}

// formatExamples takes the first n style examples so prompts are
// reproducible.
func formatExamples(c *domain.Character, n int) string {
	n = min(n, len(c.StyleExamples))
	parts := make([]string, 0, n)
	for _, ex := range c.StyleExamples[:n] {
		parts = append(parts, fmt.Sprintf("User: %s\nYou (%s): %s", ex.User, c.Name, ex.Character))
	}
	return strings.Join(parts, "\n\n")
}

// RecentHistory returns the last limit messages of history. A limit of
// zero or less keeps all of them.
func RecentHistory(history []port.Message, limit int) []port.Message {
	if limit <= 0 || len(history) <= limit {
		return history
	}
	return history[len(history)-limit:]
}

func formatHistory(name string, history []port.Message) string {
	var b strings.Builder
	for _, m := range history {
		speaker := "User"
		if m.Role == "assistant" {
			speaker = name
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s: %s", speaker, m.Content)
	}
	return b.String()
}

func defaultTemplate(c *domain.Character) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s.", c.Name)
	if c.Description != "" {
		b.WriteString(" " + c.Description)
	}
	if c.Era != "" {
		fmt.Fprintf(&b, "\nYou live in %s and know nothing beyond it.", c.Era)
	}
	b.WriteString("\nStay in character at all times and never mention being an AI.")
	b.WriteString("\n\n" + placeholderInfo)
	b.WriteString("\n\nConversation so far:\n" + placeholderHistory)
	return b.String()
}
