package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/WessleyAI/carsearch/engine/domain"
	"github.com/WessleyAI/carsearch/engine/search"
	"github.com/WessleyAI/carsearch/engine/store"
)

type searcher interface {
	Search(ctx context.Context, q string) (domain.Results, error)
	SearchEach(ctx context.Context, q string) search.Outcome
}

type catalog interface {
	RandomSample(ctx context.Context, n int) ([]domain.CarAd, error)
	Get(ctx context.Context, id string) (domain.CarAd, error)
}

type server struct {
	search      searcher
	cars        catalog
	randomLimit int
	partial     bool
	log         *slog.Logger
}

const maxBody = 1 << 20

// SearchRequest is the JSON body for POST /api/search.
type SearchRequest struct {
	Query string `json:"query"`
}

// SearchResponse is the JSON response for POST /api/search. The error fields
// are only set when partial results are enabled.
type SearchResponse struct {
	Semantic      []domain.CarSummary `json:"semanticResults"`
	Keyword       []domain.CarSummary `json:"keywordResults"`
	SemanticError string              `json:"semanticError,omitempty"`
	KeywordError  string              `json:"keywordError,omitempty"`
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleRandom(w http.ResponseWriter, r *http.Request) {
	n := s.randomLimit
	if n <= 0 {
		n = store.DefaultRandomLimit
	}
	cars, err := s.cars.RandomSample(r.Context(), n)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": cars})
}

func (s *server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := domain.ValidateAdID(id); err != nil {
		s.fail(w, r, err)
		return
	}
	car, err := s.cars.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, car)
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := domain.ValidateQuery(req.Query); err != nil {
		s.fail(w, r, err)
		return
	}

	if !s.partial {
		res, err := s.search.Search(r.Context(), req.Query)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, SearchResponse{Semantic: nonNil(res.Semantic), Keyword: nonNil(res.Keyword)})
		return
	}

	out := s.search.SearchEach(r.Context(), req.Query)
	_, semErr := out.Semantic.Unwrap()
	_, kwErr := out.Keyword.Unwrap()
	if semErr != nil && kwErr != nil {
		s.fail(w, r, semErr)
		return
	}
	resp := SearchResponse{
		Semantic: nonNil(out.Semantic.UnwrapOr(nil)),
		Keyword:  nonNil(out.Keyword.UnwrapOr(nil)),
	}
	if semErr != nil {
		s.log.Warn("semantic branch failed", "error", semErr)
		resp.SemanticError = semErr.Error()
	}
	if kwErr != nil {
		s.log.Warn("keyword branch failed", "error", kwErr)
		resp.KeywordError = kwErr.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// statusFor maps a failure to the response status. A rejected store query
// is reported to the client with its message. Embedding failures and
// anything unclassified are 500s.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidQuery), errors.Is(err, domain.ErrInvalidAdID):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrEmbeddingService):
		return http.StatusInternalServerError
	case errors.Is(err, domain.ErrStoreQuery):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	switch code {
	case http.StatusNotFound:
		writeError(w, code, "not found")
	case http.StatusInternalServerError:
		s.log.Error("request failed", "path", r.URL.Path, "error", err)
		writeError(w, code, "internal server error")
	default:
		s.log.Warn("request rejected", "path", r.URL.Path, "error", err)
		writeError(w, code, err.Error())
	}
}

func nonNil(c []domain.CarSummary) []domain.CarSummary {
	if c == nil {
		return []domain.CarSummary{}
	}
	return c
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
