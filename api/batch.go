package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/Pydart-Intelli-Corp/ai-assist/internal/batch"
	"github.com/Pydart-Intelli-Corp/ai-assist/internal/tier"
)

type batchHandler struct {
	processor *batch.Processor
	logger    *slog.Logger
}

type submitBatchRequest struct {
	DocumentIDs []int64 `json:"document_ids"`
	Type        string  `json:"processing_type"`
	Tier        int     `json:"knowledge_base_tier"`
	BatchSize   int     `json:"batch_size,omitempty"`
}

type batchRunResponse struct {
	BatchID             string   `json:"batch_id"`
	Type                string   `json:"processing_type"`
	Tier                int      `json:"knowledge_base_tier"`
	Status              string   `json:"status"`
	Total               int      `json:"total_documents"`
	Processed           int      `json:"processed"`
	Failed              int      `json:"failed"`
	Progress            float64  `json:"progress_percentage"`
	Errors              []string `json:"errors,omitempty"`
	StartedAt           string   `json:"started_at"`
	EstimatedCompletion string   `json:"estimated_completion"`
	CompletedAt         *string  `json:"completed_at,omitempty"`
}

func toBatchRunResponse(run batch.Run) batchRunResponse {
	return batchRunResponse{
		BatchID:             run.ID,
		Type:                string(run.Type),
		Tier:                int(run.Tier),
		Status:              string(run.Status),
		Total:               run.Total,
		Processed:           run.Processed,
		Failed:              run.Failed,
		Progress:            run.Progress,
		Errors:              run.Errors,
		StartedAt:           run.StartedAt.Format(time.RFC3339),
		EstimatedCompletion: run.EstimatedCompletion.Format(time.RFC3339),
		CompletedAt:         formatTimePtr(run.CompletedAt),
	}
}

// submit starts a batch run and returns 202 with the run id for polling.
func (h *batchHandler) submit(w http.ResponseWriter, r *http.Request) {
	var req submitBatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	run, err := h.processor.Submit(r.Context(), batch.Request{
		DocumentIDs: req.DocumentIDs,
		Type:        batch.Type(req.Type),
		Tier:        tier.Tier(req.Tier),
		BatchSize:   req.BatchSize,
	})
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusAccepted, toBatchRunResponse(run))
}

func (h *batchHandler) status(w http.ResponseWriter, r *http.Request) {
	run, ok := h.processor.Status(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "batch run not found")
		return
	}
	writeJSON(w, http.StatusOK, toBatchRunResponse(run))
}

func (h *batchHandler) list(w http.ResponseWriter, _ *http.Request) {
	runs := h.processor.List()
	out := make([]batchRunResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, toBatchRunResponse(run))
	}
	writeJSON(w, http.StatusOK, map[string]any{"batches": out, "total": len(out)})
}

func (h *batchHandler) cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.processor.Cancel(r.PathValue("id")); err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	run, _ := h.processor.Status(r.PathValue("id"))
	writeJSON(w, http.StatusOK, toBatchRunResponse(run))
}
