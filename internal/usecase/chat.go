package usecase

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"charrag/internal/adapter/retriever"
	"charrag/internal/domain"
	"charrag/internal/metrics"
	"charrag/internal/port"
)

// ChatRequest is one user turn addressed to a character.
type ChatRequest struct {
	Character string
	Message   string
	History   []port.Message
	Query     domain.Query // Text is taken from Message
	Prompt    PromptOptions
	NoMemory  bool // skip retrieval and answer from the persona alone
}

// ChatResponse carries the reply and what conditioned it.
type ChatResponse struct {
	Reply    string                 `json:"reply"`
	Memories domain.RetrievalResult `json:"memories"`
	Provider string                 `json:"provider"`
	Model    string                 `json:"model"`

	// Unconditioned is set when no memory was used, either because none
	// cleared the cutoff or because retrieval was skipped.
	Unconditioned bool `json:"unconditioned"`

	Prompt port.Prompt `json:"-"`
}

// Responder runs retrieval, prompt assembly and generation.
type Responder struct {
	catalog   *CharacterCatalog
	retriever *Retriever
	assembler *PromptAssembler
	llm       port.LLM
	dedup     *retriever.Deduper
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

func NewResponder(catalog *CharacterCatalog, retriever *Retriever, assembler *PromptAssembler, llm port.LLM, m *metrics.Metrics, logger *zap.Logger) *Responder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Responder{
		catalog:   catalog,
		retriever: retriever,
		assembler: assembler,
		llm:       llm,
		metrics:   m,
		logger:    logger,
	}
}

// WithDeduper drops near-duplicate memories before prompt assembly.
func (r *Responder) WithDeduper(d *retriever.Deduper) *Responder {
	r.dedup = d
	return r
}

// Respond answers req in character. Retrieval errors are returned as is;
// an empty retrieval result falls back to an unconditioned reply.
func (r *Responder) Respond(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	c, err := r.catalog.Get(req.Character)
	if err != nil {
		return nil, err
	}

	var memories domain.RetrievalResult
	if !req.NoMemory {
		q := req.Query
		q.Text = req.Message
		memories, err = r.retriever.Retrieve(ctx, c.Name, q)
		if err != nil {
			return nil, err
		}
		memories = r.dedup.Dedup(memories)
		if len(memories) == 0 {
			r.logger.Debug("no memory cleared the cutoff, answering unconditioned",
				zap.String("character", c.Name))
		}
	}

	prompt := r.assembler.Assemble(c, memories, req.History, req.Message, req.Prompt)

	start := time.Now()
	reply, err := r.llm.Generate(ctx, prompt)
	r.metrics.ObserveLLM(r.llm.ProviderName(), r.llm.ModelName(), start, err)
	if err != nil {
		return nil, err
	}

	return &ChatResponse{
		Reply:         CleanReply(reply, c.Name),
		Memories:      memories,
		Provider:      r.llm.ProviderName(),
		Model:         r.llm.ModelName(),
		Unconditioned: len(memories) == 0,
		Prompt:        prompt,
	}, nil
}

// CleanReply strips boilerplate openings that break the role.
func CleanReply(reply, name string) string {
	reply = strings.TrimSpace(reply)
	prefixes := []string{
		"I must note",
		"I would like to note",
		"As " + name,
		"Being " + name,
		"In the role of " + name,
	}
	for _, p := range prefixes {
		if strings.HasPrefix(reply, p) {
			reply = strings.TrimLeft(reply[len(p):], ",.! ")
		}
	}
	return reply
}
