package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/Pydart-Intelli-Corp/ai-assist/internal/feedback"
)

type feedbackHandler struct {
	collector *feedback.Collector
	logger    *slog.Logger
}

type feedbackRequest struct {
	QueryID int64  `json:"query_id"`
	Type    string `json:"feedback_type"`
	Rating  *int   `json:"rating,omitempty"`
	Text    string `json:"feedback_text,omitempty"`
}

type feedbackResponse struct {
	ID        int64  `json:"id"`
	QueryID   int64  `json:"query_id"`
	Type      string `json:"feedback_type"`
	Rating    *int   `json:"rating,omitempty"`
	Sentiment string `json:"sentiment"`
	CreatedAt string `json:"created_at"`
}

func (h *feedbackHandler) submit(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	entry, err := h.collector.Collect(r.Context(), feedback.Entry{
		QueryID: req.QueryID,
		Type:    req.Type,
		Rating:  req.Rating,
		Text:    req.Text,
	})
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusCreated, feedbackResponse{
		ID:        entry.ID,
		QueryID:   entry.QueryID,
		Type:      entry.Type,
		Rating:    entry.Rating,
		Sentiment: string(entry.Sentiment),
		CreatedAt: entry.CreatedAt.Format(time.RFC3339),
	})
}
