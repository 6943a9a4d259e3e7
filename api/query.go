package api

import (
	"log/slog"
	"net/http"

	"github.com/Pydart-Intelli-Corp/ai-assist/internal/query"
	"github.com/Pydart-Intelli-Corp/ai-assist/internal/tier"
)

type queryHandler struct {
	pipeline *query.Pipeline
	logger   *slog.Logger
}

type queryRequest struct {
	Query string `json:"query"`
	Role  string `json:"user_role"`
	Tier  *int   `json:"tier,omitempty"`
	TopK  int    `json:"top_k,omitempty"`
}

type queryResponse struct {
	QueryID           int64          `json:"query_id"`
	Response          string         `json:"response"`
	Confidence        float64        `json:"confidence"`
	Sources           []query.Source `json:"sources"`
	Suggestions       []string       `json:"suggestions"`
	KnowledgeBaseTier int            `json:"knowledge_base_tier"`
	ModelUsed         string         `json:"model_used,omitempty"`
	ProcessingSeconds float64        `json:"processing_time_seconds"`
}

// ask answers one question. The effective tier comes from the caller's
// role; an explicit tier in the request can only narrow it.
func (h *queryHandler) ask(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	t := tier.ForRole(req.Role)
	if req.Tier != nil {
		requested := tier.Tier(*req.Tier)
		if !requested.Valid() {
			writeError(w, http.StatusBadRequest, "validation_error", tier.ErrInvalidTier.Error())
			return
		}
		if requested < t {
			t = requested
		}
	}

	result, err := h.pipeline.Ask(r.Context(), query.Request{
		Query: req.Query,
		Role:  req.Role,
		Tier:  t,
		TopK:  req.TopK,
	})
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	sources := result.Sources
	if sources == nil {
		sources = []query.Source{}
	}
	suggestions := result.Suggestions
	if suggestions == nil {
		suggestions = []string{}
	}
	writeJSON(w, http.StatusOK, queryResponse{
		QueryID:           result.QueryID,
		Response:          result.Response,
		Confidence:        result.Confidence,
		Sources:           sources,
		Suggestions:       suggestions,
		KnowledgeBaseTier: int(result.Tier),
		ModelUsed:         result.ModelUsed,
		ProcessingSeconds: result.ProcessingSeconds(),
	})
}
