package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/riskdoc/internal/billing"
	"github.com/sells-group/riskdoc/internal/docextract"
	"github.com/sells-group/riskdoc/internal/model"
	"github.com/sells-group/riskdoc/internal/monitoring"
	"github.com/sells-group/riskdoc/internal/store"
)

// server exposes the extraction, margin, alert and usage APIs.
type server struct {
	env         *appEnv
	maxUpload   int64
	allowOrigin []string
}

func newServer(env *appEnv, maxUploadMB int, origins []string) *server {
	if maxUploadMB <= 0 {
		maxUploadMB = 50
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &server{env: env, maxUpload: int64(maxUploadMB) << 20, allowOrigin: origins}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.allowOrigin,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/extract", s.handleExtract)
		r.Get("/tenants/{tenantID}/margin", s.handleMargin)
		r.Get("/alerts", s.handleAlerts)
		r.Get("/usage", s.handleListUsage)
		r.Patch("/usage/{id}", s.handleReviewUsage)
	})

	return r
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]any{"status": "ok"}
	if err := s.env.Store.Ping(r.Context()); err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
		body["store"] = err.Error()
	}
	body["breakers"] = s.env.Orchestrator.Breakers().States()
	writeJSON(w, status, body)
}

// handleExtract accepts a multipart upload with a "file" part and form
// fields tier, format, tenant_id, user_id and company_id.
func (s *server) handleExtract(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	tier, err := model.ParseTier(formValue(r, "tier", string(model.TierBasic)))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tenantID := r.FormValue("tenant_id")
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close() //nolint:errcheck

	format, err := model.ParseFormat(formValue(r, "format", filepath.Ext(header.Filename)))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read upload")
		return
	}

	doc := model.RawDocument{
		Content:   data,
		Format:    format,
		Filename:  header.Filename,
		TenantID:  tenantID,
		UserID:    r.FormValue("user_id"),
		CompanyID: r.FormValue("company_id"),
	}

	out, err := s.env.Orchestrator.Extract(r.Context(), doc, tier)
	switch {
	case errors.Is(err, docextract.ErrUnreadableDocument):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		// The client went away; nothing useful to send.
		zap.L().Info("extract request abandoned", zap.String("tenant_id", tenantID), zap.Error(err))
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleMargin(w http.ResponseWriter, r *http.Request) {
	period, err := billing.ParsePeriod(r.URL.Query().Get("period"), time.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := s.env.Margins.MarginForTenant(r.Context(), chi.URLParam(r, "tenantID"), period)
	switch {
	case errors.Is(err, billing.ErrTenantNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		zap.L().Error("margin query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "margin query failed")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	alerts := s.env.Evaluator.AllAlerts(r.Context())
	if alerts == nil {
		alerts = []monitoring.Alert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (s *server) handleListUsage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.UsageFilter{TenantID: q.Get("tenant")}
	if v := q.Get("status"); v != "" {
		st, err := model.ParseUsageStatus(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Status = st
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		if v := q.Get(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, "invalid "+name)
				return
			}
			*dst = n
		}
	}

	events, err := s.env.Store.ListUsage(r.Context(), filter)
	if err != nil {
		zap.L().Error("list usage failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list usage failed")
		return
	}
	if events == nil {
		events = []model.UsageEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *server) handleReviewUsage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	status, err := model.ParseUsageStatus(req.Status)
	if err != nil || status == model.UsageStatusPending {
		writeError(w, http.StatusBadRequest, "status must be validated or rejected")
		return
	}

	id := chi.URLParam(r, "id")
	err = s.env.Store.UpdateUsageStatus(r.Context(), id, status)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "usage event not found")
		return
	case err != nil:
		zap.L().Error("review usage failed", zap.String("usage_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "review usage failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func formValue(r *http.Request, key, def string) string {
	if v := r.FormValue(key); v != "" {
		return v
	}
	return def
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
