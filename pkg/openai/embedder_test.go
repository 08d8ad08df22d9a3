package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/WessleyAI/carsearch/engine/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeAPI(t *testing.T, status int, vec []float32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/embeddings") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{"message": "slow down", "type": "rate_limit"},
			})
			return
		}
		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		assert.Equal(t, DefaultModel, req.Model)

		data := []map[string]any{}
		if vec != nil {
			data = append(data, map[string]any{"object": "embedding", "index": 0, "embedding": vec})
		}
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  req.Model,
			"data":   data,
			"usage":  map[string]int{"prompt_tokens": 3, "total_tokens": 3},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEmbed(t *testing.T) {
	srv := fakeAPI(t, http.StatusOK, []float32{0.1, 0.2, 0.3})
	e, err := New(Config{BaseURL: srv.URL, Token: "test"})
	require.NoError(t, err)

	vec, err := e.Embed(context.Background(), "Title: Volvo\nYear: 2012")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestEmbedStatusError(t *testing.T) {
	srv := fakeAPI(t, http.StatusTooManyRequests, nil)
	e, err := New(Config{BaseURL: srv.URL, Token: "test"})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "x")
	require.Error(t, err)
	var se *StatusError
	if errors.As(err, &se) {
		assert.Equal(t, http.StatusTooManyRequests, se.HTTPStatus())
	}
}

func TestEmbedUndecodableBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":"x"}`))
	}))
	t.Cleanup(srv.Close)
	e, err := New(Config{BaseURL: srv.URL, Token: "test"})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "x")
	assert.ErrorIs(t, err, domain.ErrBadEmbedding)
}

func TestEmbedUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	e, err := New(Config{BaseURL: url, Token: "test"})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "x")
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.True(t, te.Temporary())
}

func TestEmbedCancelled(t *testing.T) {
	srv := fakeAPI(t, http.StatusOK, []float32{1})
	e, err := New(Config{BaseURL: srv.URL, Token: "test"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Embed(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}
