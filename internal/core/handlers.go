package core

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"hazardwatch/internal/types"
)

// defaultAlertLookback is the window for GET /v1/alerts without ?since.
const defaultAlertLookback = 24 * time.Hour

// RunJobRequest is the body of POST /v1/jobs/run.
type RunJobRequest struct {
	Job string `json:"job" validate:"required"`
}

// alertListQuery holds the parsed query of GET /v1/alerts.
type alertListQuery struct {
	Region string        `json:"region" validate:"omitempty,max=100"`
	Since  time.Duration `json:"since" validate:"gte=0,lte=720h"`
}

func (s *Server) handleRunNow(w http.ResponseWriter, r *http.Request) {
	report, err := s.Jobs.RunNow(r.Context())
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, r, http.StatusOK, APIResponse{Data: report})
}

func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	var req RunJobRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, r, err)
		return
	}
	if err := s.Validator.ValidateStruct(req); err != nil {
		Error(w, r, err)
		return
	}
	s.runJob(w, r, req.Job)
}

func (s *Server) handleRunNamedJob(w http.ResponseWriter, r *http.Request) {
	s.runJob(w, r, chi.URLParam(r, "job"))
}

func (s *Server) runJob(w http.ResponseWriter, r *http.Request, job string) {
	ctx := types.WithJobName(r.Context(), job)
	report, err := s.Jobs.RunJob(ctx, job)
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, r, http.StatusOK, APIResponse{Data: report})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	JSON(w, r, http.StatusOK, APIResponse{Data: map[string]any{
		"running": s.Jobs.Running(),
		"stats":   s.Jobs.Stats(),
	}})
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	q := alertListQuery{
		Region: r.URL.Query().Get("region"),
		Since:  defaultAlertLookback,
	}
	if raw := r.URL.Query().Get("since"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeValidationMissingField,
				"since must be a duration such as 24h", err, map[string]any{"since": raw}))
			return
		}
		q.Since = d
	}
	if err := s.Validator.ValidateStruct(q); err != nil {
		Error(w, r, err)
		return
	}

	alerts, err := s.Alerts.ListActive(r.Context(), q.Region, s.Clock.Now().Add(-q.Since))
	if err != nil {
		s.Logger.ErrorContext(r.Context(), "failed to list alerts", "region", q.Region, "error", err)
		Error(w, r, err)
		return
	}
	if alerts == nil {
		alerts = []types.Alert{}
	}
	JSON(w, r, http.StatusOK, APIResponse{Data: alerts, Meta: &ResponseMeta{Count: len(alerts)}})
}

func (s *Server) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := s.Alerts.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, r, http.StatusOK, APIResponse{Data: alert})
}

// handleCancelAlert stops an active alert from being retried or included in
// digests. Deliveries already made are not recalled.
func (s *Server) handleCancelAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Alerts.Cancel(r.Context(), id); err != nil {
		Error(w, r, err)
		return
	}
	s.Logger.InfoContext(r.Context(), "alert cancelled", "alert_id", id)

	alert, err := s.Alerts.GetByID(r.Context(), id)
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, r, http.StatusOK, APIResponse{Data: alert})
}
