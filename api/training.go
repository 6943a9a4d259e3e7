package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Pydart-Intelli-Corp/ai-assist/internal/tier"
	"github.com/Pydart-Intelli-Corp/ai-assist/internal/training"
)

type trainingHandler struct {
	orchestrator *training.Orchestrator
	logger       *slog.Logger
}

type createJobRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Type        string  `json:"training_type"`
	ModelType   string  `json:"model_type"`
	Tier        int     `json:"tier"`
	DocumentIDs []int64 `json:"document_ids"`
	CreatedBy   string  `json:"created_by,omitempty"`
}

type jobResponse struct {
	ID               int64    `json:"id"`
	Name             string   `json:"name"`
	Description      string   `json:"description,omitempty"`
	Type             string   `json:"training_type"`
	ModelType        string   `json:"model_type"`
	Tier             int      `json:"tier"`
	Status           string   `json:"status"`
	Progress         float64  `json:"progress_percentage"`
	CurrentStep      string   `json:"current_step,omitempty"`
	TotalSteps       int      `json:"total_steps"`
	FinalScore       *float64 `json:"final_score,omitempty"`
	ErrorMessage     string   `json:"error_message,omitempty"`
	EstimatedMinutes int      `json:"estimated_duration_minutes"`
	ActualMinutes    *int     `json:"actual_duration_minutes,omitempty"`
	DocumentIDs      []int64  `json:"document_ids,omitempty"`
	CreatedBy        string   `json:"created_by,omitempty"`
	CreatedAt        string   `json:"created_at"`
	StartedAt        *string  `json:"started_at,omitempty"`
	CompletedAt      *string  `json:"completed_at,omitempty"`
}

func toJobResponse(j training.Job) jobResponse {
	return jobResponse{
		ID:               j.ID,
		Name:             j.Name,
		Description:      j.Description,
		Type:             string(j.Type),
		ModelType:        string(j.ModelType),
		Tier:             int(j.Tier),
		Status:           string(j.Status),
		Progress:         j.Progress,
		CurrentStep:      j.CurrentStep,
		TotalSteps:       j.TotalSteps,
		FinalScore:       j.FinalScore,
		ErrorMessage:     j.ErrorMessage,
		EstimatedMinutes: j.EstimatedMinutes,
		ActualMinutes:    j.ActualMinutes,
		DocumentIDs:      j.DocumentIDs,
		CreatedBy:        j.CreatedBy,
		CreatedAt:        j.CreatedAt.Format(time.RFC3339),
		StartedAt:        formatTimePtr(j.StartedAt),
		CompletedAt:      formatTimePtr(j.CompletedAt),
	}
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

func (h *trainingHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	job, err := h.orchestrator.Create(r.Context(), training.Spec{
		Name:        req.Name,
		Description: req.Description,
		Type:        training.Type(req.Type),
		ModelType:   training.ModelType(req.ModelType),
		Tier:        tier.Tier(req.Tier),
		DocumentIDs: req.DocumentIDs,
		CreatedBy:   req.CreatedBy,
	})
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusCreated, toJobResponse(job))
}

func (h *trainingHandler) start(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid job id")
		return
	}
	job, err := h.orchestrator.Start(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(job))
}

func (h *trainingHandler) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid job id")
		return
	}
	job, err := h.orchestrator.Cancel(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(job))
}

func (h *trainingHandler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid job id")
		return
	}
	job, err := h.orchestrator.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(job))
}

func (h *trainingHandler) list(w http.ResponseWriter, r *http.Request) {
	f := training.Filter{}
	q := r.URL.Query()
	if s := q.Get("status"); s != "" {
		status := training.Status(s)
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, "validation_error", "unknown status "+strconv.Quote(s))
			return
		}
		f.Status = status
	}
	if s := q.Get("tier"); s != "" {
		t, err := strconv.Atoi(s)
		if err != nil || !tier.Tier(t).Valid() {
			writeError(w, http.StatusBadRequest, "validation_error", tier.ErrInvalidTier.Error())
			return
		}
		f.Tier = t
	}
	if s := q.Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "validation_error", "invalid limit")
			return
		}
		f.Limit = limit
	}

	jobs, err := h.orchestrator.List(r.Context(), f)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	out := make([]jobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, toJobResponse(j))
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": out, "total": len(out)})
}

type modelVersionResponse struct {
	ID        string  `json:"id"`
	JobID     int64   `json:"training_job_id"`
	Version   string  `json:"version_number"`
	Name      string  `json:"version_name,omitempty"`
	Tier      int     `json:"tier"`
	SizeMB    float64 `json:"model_size_mb"`
	Accuracy  float64 `json:"accuracy_score"`
	Precision float64 `json:"precision_score"`
	Recall    float64 `json:"recall_score"`
	F1        float64 `json:"f1_score"`
	Deployed  bool    `json:"is_deployed"`
	CreatedAt string  `json:"created_at"`
}

func (h *trainingHandler) models(w http.ResponseWriter, r *http.Request) {
	var f training.VersionFilter
	if s := r.URL.Query().Get("tier"); s != "" {
		t, err := strconv.Atoi(s)
		if err != nil || !tier.Tier(t).Valid() {
			writeError(w, http.StatusBadRequest, "validation_error", tier.ErrInvalidTier.Error())
			return
		}
		f.Tier = t
	}
	f.DeployedOnly = r.URL.Query().Get("deployed_only") == "true"

	versions, err := h.orchestrator.ModelVersions(r.Context(), f)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	out := make([]modelVersionResponse, 0, len(versions))
	for _, mv := range versions {
		out = append(out, modelVersionResponse{
			ID:        mv.ID,
			JobID:     mv.JobID,
			Version:   mv.Version,
			Name:      mv.Name,
			Tier:      int(mv.Tier),
			SizeMB:    mv.SizeMB,
			Accuracy:  mv.Accuracy,
			Precision: mv.Precision,
			Recall:    mv.Recall,
			F1:        mv.F1,
			Deployed:  mv.Deployed,
			CreatedAt: mv.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"model_versions": out, "total": len(out)})
}

func (h *trainingHandler) metrics(w http.ResponseWriter, r *http.Request) {
	m, err := h.orchestrator.Metrics(r.Context())
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_jobs":             m.TotalJobs,
		"active_jobs":            m.ActiveJobs,
		"completed_jobs":         m.CompletedJobs,
		"failed_jobs":            m.FailedJobs,
		"cancelled_jobs":         m.CancelledJobs,
		"avg_completion_minutes": m.AvgCompletionMinutes,
		"success_rate":           m.SuccessRate,
		"latest_model_version":   m.LatestModelVersion,
	})
}

// pathID parses the {id} path value as an int64.
func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}
