package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"charrag/internal/domain"
	"charrag/internal/port"
	"charrag/internal/usecase"
)

// queryParams are the optional retrieval overrides shared by retrieve and chat.
type queryParams struct {
	TopK            *int     `json:"top_k,omitempty"`
	MinRelevance    *float64 `json:"min_relevance,omitempty"`
	RelevanceMethod string   `json:"relevance_method,omitempty"`
	Metric          string   `json:"metric,omitempty"`
	Kinds           []string `json:"kinds,omitempty"`
}

type retrieveRequest struct {
	Query string `json:"query"`
	queryParams
}

type retrieveResponse struct {
	Character string                 `json:"character"`
	Results   domain.RetrievalResult `json:"results"`
}

type chatRequest struct {
	Message  string         `json:"message"`
	History  []port.Message `json:"history,omitempty"`
	Style    string         `json:"style,omitempty"`
	NoMemory bool           `json:"no_memory,omitempty"`
	queryParams
}

type rememberRequest struct {
	Text       string  `json:"text"`
	Category   string  `json:"category,omitempty"`
	Emotion    string  `json:"emotion,omitempty"`
	Importance float64 `json:"importance,omitempty"`
}

type characterSummary struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Era         string             `json:"era,omitempty"`
	Index       *domain.IndexStats `json:"index,omitempty"`
}

func (s *Server) handleListCharacters(w http.ResponseWriter, r *http.Request) {
	chars := s.catalog.List()
	out := make([]characterSummary, 0, len(chars))
	for _, c := range chars {
		sum := characterSummary{Name: c.Name, Description: c.Description, Era: c.Era}
		if h, err := s.registry.Handle(r.Context(), c.Name); err == nil {
			st := h.Stats()
			sum.Index = &st
		}
		out = append(out, sum)
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"characters": out})
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	c, err := s.catalog.Get(name)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	q, err := s.buildQuery(req.queryParams)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	q.Text = req.Query

	s.logger.Debug("retrieve request", zap.String("character", c.Name), zap.Int("top_k", q.TopK))
	res, err := s.retriever.Retrieve(r.Context(), c.Name, q)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, retrieveResponse{Character: c.Name, Results: res})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		s.respondError(w, http.StatusBadRequest, "message is required")
		return
	}
	q, err := s.buildQuery(req.queryParams)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	opts := s.defaults.Prompt
	if req.Style != "" {
		style, err := domain.ParseStyleLevel(req.Style)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		opts.Style = style
	}

	resp, err := s.responder.Respond(r.Context(), usecase.ChatRequest{
		Character: name,
		Message:   req.Message,
		History:   usecase.RecentHistory(req.History, opts.MaxHistory),
		Query:     q,
		Prompt:    opts,
		NoMemory:  req.NoMemory,
	})
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.catalog.Reload(); err != nil {
		s.logger.Warn("reload characters failed, rebuilding from the loaded definition", zap.Error(err))
	}
	c, err := s.catalog.Get(name)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	s.logger.Debug("rebuild request", zap.String("character", c.Name))
	st, err := s.registry.Build(r.Context(), c)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleRemember(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req rememberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		s.respondError(w, http.StatusBadRequest, "text is required")
		return
	}
	if req.Importance < 0 || req.Importance > 1 {
		s.respondError(w, http.StatusBadRequest, "importance must be in [0,1]")
		return
	}
	c, err := s.catalog.Get(name)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	st, err := s.registry.Remember(r.Context(), c.Name, usecase.Episode{
		Text:       req.Text,
		Category:   req.Category,
		Emotion:    req.Emotion,
		Importance: req.Importance,
		At:         time.Now(),
	})
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, st)
}

func (s *Server) handleIndexStatus(w http.ResponseWriter, r *http.Request) {
	c, err := s.catalog.Get(chi.URLParam(r, "name"))
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	h, err := s.registry.Handle(r.Context(), c.Name)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, h.Stats())
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	c, err := s.catalog.Get(chi.URLParam(r, "name"))
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	s.logger.Debug("reset request", zap.String("character", c.Name))
	if err := s.registry.Reset(c.Name); err != nil {
		s.respondDomainError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"character": c.Name, "status": "reset"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// buildQuery applies request overrides on top of the configured defaults.
func (s *Server) buildQuery(p queryParams) (domain.Query, error) {
	q := s.defaults.Query
	if p.TopK != nil {
		q.TopK = *p.TopK
	}
	if p.MinRelevance != nil {
		q.MinRelevance = *p.MinRelevance
	}
	if q.TopK <= 0 {
		return q, errors.New("top_k must be positive")
	}
	if q.MinRelevance < 0 || q.MinRelevance > 1 {
		return q, errors.New("min_relevance must be in [0,1]")
	}
	if p.RelevanceMethod != "" {
		m, err := domain.ParseRelevanceMethod(p.RelevanceMethod)
		if err != nil {
			return q, err
		}
		q.RelevanceMethod = m
	}
	if p.Metric != "" {
		m, err := domain.ParseMetricKind(p.Metric)
		if err != nil {
			return q, err
		}
		q.Metric = m
	}
	q.Kinds = nil
	for _, k := range p.Kinds {
		kind, err := domain.ParseMemoryKind(k)
		if err != nil {
			return q, err
		}
		q.Kinds = append(q.Kinds, kind)
	}
	return q, nil
}

// respondDomainError maps core errors onto HTTP statuses.
func (s *Server) respondDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrCharacterNotFound), errors.Is(err, domain.ErrIndexNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrIndexConfigMismatch):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrEmbeddingUnavailable):
		status = http.StatusBadGateway
	case errors.Is(err, domain.ErrDegenerateVector), errors.Is(err, domain.ErrCorpusDimensionMismatch):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
