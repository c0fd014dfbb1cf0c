package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/marcoavk/urban-plan-assistant/internal/config"
	"github.com/marcoavk/urban-plan-assistant/internal/core/domain"
	"github.com/marcoavk/urban-plan-assistant/internal/core/ports"
)

type Router struct {
	cfg      config.Config
	answerer ports.QueryAnswerer
	datasets ports.DatasetReader
}

func NewRouter(cfg config.Config, answerer ports.QueryAnswerer, datasets ports.DatasetReader) *Router {
	return &Router{
		cfg:      cfg,
		answerer: answerer,
		datasets: datasets,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/query", rt.answerQuery)
	mux.HandleFunc("/v1/datasets", rt.listDatasets)
	mux.HandleFunc("/v1/datasets/", rt.getDatasetByID)

	var handler http.Handler = mux
	if rt.cfg.APIMaxInFlight > 0 {
		wait := time.Duration(rt.cfg.APIBackpressureWaitMS) * time.Millisecond
		handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, wait)
	}
	if rt.cfg.APIRateLimitRPS > 0 {
		handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) answerQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		QueryText   string `json:"queryText"`
		UserRole    string `json:"userRole"`
		SessionID   string `json:"sessionId"`
		BypassCache bool   `json:"bypassCache"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	result, err := rt.answerer.Answer(r.Context(), domain.Query{
		Text:        req.QueryText,
		SessionID:   req.SessionID,
		Role:        req.UserRole,
		BypassCache: req.BypassCache,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) listDatasets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	datasets, err := rt.datasets.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"datasets": datasets})
}

func (rt *Router) getDatasetByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/datasets/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "dataset id is required"})
		return
	}

	dataset, err := rt.datasets.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dataset)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
