package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/devghori1264/vinreport/internal/models"
	"github.com/devghori1264/vinreport/internal/pipeline"
	"github.com/devghori1264/vinreport/internal/server"
	"github.com/devghori1264/vinreport/internal/storage"
	"go.uber.org/zap"
)

type Handler struct {
	srv        *server.Server
	reportsDir string
	urlPath    string
	log        *zap.Logger
}

// NewHTTPHandler serves the report API and the stored reports. Files under
// reportsDir are exposed at urlPath (for example "/reports").
func NewHTTPHandler(srv *server.Server, reportsDir, urlPath string, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Handler{
		srv:        srv,
		reportsDir: reportsDir,
		urlPath:    "/" + strings.Trim(urlPath, "/"),
		log:        log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ping", h.handlePing)
	mux.HandleFunc("GET /api/vin/{vin}", h.handleGenerate)
	mux.HandleFunc("GET /api/reports", h.handleList)
	mux.HandleFunc("GET /api/reports/{vin}", h.handleLookup)
	mux.Handle("GET "+h.urlPath+"/", http.StripPrefix(h.urlPath+"/", noListing(http.FileServer(http.Dir(reportsDir)))))

	return withCORS(h.withAccessLog(mux))
}

func (h *Handler) handlePing(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"msg": "pong"})
}

// handleGenerate runs the pipeline for the path VIN. The optional email
// query parameter requests delivery.
func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	vin := strings.TrimSpace(r.PathValue("vin"))
	if vin == "" {
		h.writeError(w, http.StatusBadRequest, "vin required")
		return
	}

	out := h.srv.Generate(r.Context(), vin, r.URL.Query().Get("email"))
	writeJSON(w, statusFor(out), out)
}

func (h *Handler) handleLookup(w http.ResponseWriter, r *http.Request) {
	a, err := h.srv.Lookup(r.Context(), r.PathValue("vin"))
	switch {
	case errors.Is(err, server.ErrVINRequired):
		h.writeError(w, http.StatusBadRequest, "vin required")
		return
	case errors.Is(err, storage.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "report not found")
		return
	case err != nil:
		h.writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, artifactBody(a))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	artifacts, err := h.srv.List(r.Context())
	if err != nil {
		h.log.Error("artifact list failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	out := make([]artifactResponse, 0, len(artifacts))
	for _, a := range artifacts {
		out = append(out, artifactBody(a))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reports": out})
}

type artifactResponse struct {
	VIN         string `json:"vin"`
	Download    string `json:"download"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Digest      string `json:"digest"`
	CreatedAt   string `json:"created_at"`
}

func artifactBody(a models.ReportArtifact) artifactResponse {
	return artifactResponse{
		VIN:         a.VIN,
		Download:    a.Location,
		ContentType: a.ContentType,
		Size:        a.Size,
		Digest:      a.Digest,
		CreatedAt:   a.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// statusFor maps a terminal state to an HTTP status. Decode failures are
// upstream failures; render and store failures are ours.
func statusFor(out models.PipelineOutcome) int {
	switch pipeline.State(out.State) {
	case pipeline.StateFailedDecode:
		return http.StatusBadGateway
	case pipeline.StateFailedRender, pipeline.StateFailedStore:
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}

// noListing hides directory indexes under the reports path.
func noListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *Handler) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{"success": false, "message": msg})
	h.log.Info("http error", zap.Int("status", status), zap.String("message", msg))
}
