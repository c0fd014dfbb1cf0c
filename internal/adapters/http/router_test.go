package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/marcoavk/urban-plan-assistant/internal/config"
	"github.com/marcoavk/urban-plan-assistant/internal/core/domain"
)

type answererFake struct {
	result *domain.SynthesisResult
	err    error
	got    domain.Query
}

func (f *answererFake) Answer(_ context.Context, query domain.Query) (*domain.SynthesisResult, error) {
	f.got = query
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type datasetsFake struct {
	datasets []domain.Dataset
	err      error
}

func (f datasetsFake) List(context.Context) ([]domain.Dataset, error) {
	return f.datasets, f.err
}

func (f datasetsFake) GetByID(_ context.Context, id string) (*domain.Dataset, error) {
	if f.err != nil {
		return nil, f.err
	}
	for i := range f.datasets {
		if f.datasets[i].ID == id {
			return &f.datasets[i], nil
		}
	}
	return nil, domain.WrapError(domain.ErrNotFound, "get dataset", errors.New("id="+id))
}

func newTestHandler(cfg config.Config) http.Handler {
	answerer := &answererFake{result: &domain.SynthesisResult{
		Answer:     "Regime urbanístico para PETRÓPOLIS",
		Confidence: 0.9,
		QueryType:  domain.QueryNeighborhoodSpecific,
	}}
	return NewRouter(cfg, answerer, datasetsFake{}).Handler()
}

func postQuery(t *testing.T, handler http.Handler, payload map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/query", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestAnswerQueryPassesRequestFieldsThrough(t *testing.T) {
	answerer := &answererFake{result: &domain.SynthesisResult{Answer: "ok", Confidence: 0.8}}
	handler := NewRouter(config.Config{}, answerer, datasetsFake{}).Handler()

	res := postQuery(t, handler, map[string]any{
		"queryText":   "altura máxima em Petrópolis",
		"userRole":    "citizen",
		"sessionId":   "s-9",
		"bypassCache": true,
	})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}

	if answerer.got.Text != "altura máxima em Petrópolis" ||
		answerer.got.Role != "citizen" ||
		answerer.got.SessionID != "s-9" ||
		!answerer.got.BypassCache {
		t.Fatalf("query fields not passed through: %+v", answerer.got)
	}

	var resp map[string]any
	if err := json.Unmarshal(res.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["response"] != "ok" {
		t.Fatalf("unexpected response body: %v", resp)
	}
	if res.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}
}

func TestAnswerQueryMapsMalformedInputTo400(t *testing.T) {
	answerer := &answererFake{err: domain.WrapError(domain.ErrMalformedInput, "validate query", errors.New("empty query text"))}
	handler := NewRouter(config.Config{}, answerer, datasetsFake{}).Handler()

	res := postQuery(t, handler, map[string]any{"queryText": "   "})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestAnswerQueryMapsTemporaryTo503(t *testing.T) {
	answerer := &answererFake{err: domain.WrapError(domain.ErrTemporary, "cache get", errors.New("redis down"))}
	handler := NewRouter(config.Config{}, answerer, datasetsFake{}).Handler()

	res := postQuery(t, handler, map[string]any{"queryText": "pergunta"})
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
}

func TestAnswerQueryRejectsInvalidJSON(t *testing.T) {
	handler := newTestHandler(config.Config{})

	req := httptest.NewRequest(http.MethodPost, "/v1/query", bytes.NewReader([]byte(`{`)))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid json, got %d", res.Code)
	}
}

func TestAnswerQueryRejectsNonPOST(t *testing.T) {
	handler := newTestHandler(config.Config{})

	req := httptest.NewRequest(http.MethodGet, "/v1/query", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}

func TestGetDatasetByIDReturns404ForNotFound(t *testing.T) {
	handler := NewRouter(config.Config{}, &answererFake{}, datasetsFake{}).Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/datasets/missing", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestListDatasetsReturnsMetadata(t *testing.T) {
	handler := NewRouter(config.Config{}, &answererFake{}, datasetsFake{
		datasets: []domain.Dataset{{ID: domain.DatasetRegime, Title: "Regime Urbanístico", RowCount: 387}},
	}).Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/datasets", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}

	var resp struct {
		Datasets []domain.Dataset `json:"datasets"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Datasets) != 1 || resp.Datasets[0].RowCount != 387 {
		t.Fatalf("unexpected datasets payload: %+v", resp.Datasets)
	}
}
