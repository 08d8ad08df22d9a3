// Package openai embeds text through an OpenAI-compatible embeddings API.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/WessleyAI/carsearch/engine/domain"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// DefaultModel produces 1536-dimensional vectors.
const DefaultModel = "text-embedding-3-small"

// Config selects the endpoint and model.
type Config struct {
	BaseURL string // empty uses the public OpenAI API
	Token   string
	Model   string
	Timeout time.Duration
}

// StatusError carries the HTTP status parsed from an upstream failure.
type StatusError struct {
	Code int
	Err  error
}

func (e *StatusError) Error() string   { return e.Err.Error() }
func (e *StatusError) Unwrap() error   { return e.Err }
func (e *StatusError) HTTPStatus() int { return e.Code }

var statusRe = regexp.MustCompile(`status code: (\d{3})`)

// Embedder is a single-text embedder backed by langchaingo.
type Embedder struct {
	embedder embeddings.Embedder
	model    string
	logger   *slog.Logger
}

// New builds an embedder for cfg.
func New(cfg Config) (*Embedder, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	opts := []openai.Option{
		openai.WithToken(cfg.Token),
		openai.WithEmbeddingModel(cfg.Model),
		openai.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("openai: client: %w", err)
	}
	// The composed ad text is line oriented, keep the newlines.
	emb, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(false))
	if err != nil {
		return nil, fmt.Errorf("openai: embedder: %w", err)
	}
	return &Embedder{
		embedder: emb,
		model:    cfg.Model,
		logger:   slog.Default().With("component", "openai-embedder"),
	}, nil
}

// TransportError is a request that never got a usable HTTP answer. The
// client library reports these as plain messages.
type TransportError struct{ Err error }

func (e *TransportError) Error() string   { return e.Err.Error() }
func (e *TransportError) Unwrap() error   { return e.Err }
func (e *TransportError) Temporary() bool { return true }

var transportRe = regexp.MustCompile(`^(request timeout|network error)`)

// Embed returns the vector for text. An empty upstream answer yields an empty
// vector and no error so the caller can reject it as input specific. A 2xx
// answer that does not decode unwraps to domain.ErrBadEmbedding.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.logger.Debug("embedding text", "model", e.model, "length", len(text))

	vec, err := e.embedder.EmbedQuery(ctx, text)
	if errors.Is(err, openai.ErrEmptyResponse) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(ctx, err)
	}
	return vec, nil
}

func classify(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("openai: embed: %w: %w", ctxErr, err)
	}
	if m := statusRe.FindStringSubmatch(err.Error()); m != nil {
		code, _ := strconv.Atoi(m[1])
		return &StatusError{Code: code, Err: err}
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) ||
		errors.Is(err, io.ErrUnexpectedEOF) || strings.Contains(err.Error(), "decode response") {
		return fmt.Errorf("openai: embed: %w: %w", domain.ErrBadEmbedding, err)
	}
	if transportRe.MatchString(err.Error()) {
		return &TransportError{Err: fmt.Errorf("openai: embed: %w", err)}
	}
	return fmt.Errorf("openai: embed: %w", err)
}
