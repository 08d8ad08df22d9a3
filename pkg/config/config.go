// Package config holds the settings shared by the carsearch binaries. Every
// setting is a CLI flag that can also be set through the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"

	BackendPostgres = "postgres"
	BackendQdrant   = "qdrant"
)

// Config is the resolved shared configuration.
type Config struct {
	DatabaseURL      string
	OpenAIKey        string
	EmbedProvider    string
	EmbedModel       string
	EmbedURL         string
	EmbedDims        int
	VectorBackend    string
	QdrantAddr       string
	QdrantCollection string
	Neo4jURL         string
	Neo4jUser        string
	Neo4jPass        string
	NATSURL          string
	LogLevel         string
}

// Flags returns the shared flags. Binaries append their own.
func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "Postgres connection string",
			EnvVars: []string{"DATABASE_URL"},
			Value:   "postgres://localhost:5432/carsearch?sslmode=disable",
		},
		&cli.StringFlag{
			Name:    "openai-api-key",
			Usage:   "API key for the OpenAI embedding provider",
			EnvVars: []string{"OPENAI_API_KEY"},
		},
		&cli.StringFlag{
			Name:    "embed-provider",
			Usage:   "Embedding provider (openai, ollama)",
			EnvVars: []string{"EMBED_PROVIDER"},
			Value:   ProviderOpenAI,
		},
		&cli.StringFlag{
			Name:    "embed-model",
			Usage:   "Embedding model name; empty uses the provider default",
			EnvVars: []string{"EMBED_MODEL"},
		},
		&cli.StringFlag{
			Name:    "embed-url",
			Usage:   "Embedding provider base URL; empty uses the provider default",
			EnvVars: []string{"EMBED_URL"},
		},
		&cli.IntFlag{
			Name:    "embed-dims",
			Usage:   "Embedding dimension; fixes the vector column size",
			EnvVars: []string{"EMBED_DIMS"},
			Value:   1536,
		},
		&cli.StringFlag{
			Name:    "vector-backend",
			Usage:   "Where semantic search runs (postgres, qdrant)",
			EnvVars: []string{"VECTOR_BACKEND"},
			Value:   BackendPostgres,
		},
		&cli.StringFlag{
			Name:    "qdrant-addr",
			Usage:   "Qdrant gRPC address",
			EnvVars: []string{"QDRANT_ADDR"},
			Value:   "localhost:6334",
		},
		&cli.StringFlag{
			Name:    "qdrant-collection",
			Usage:   "Qdrant collection holding ad vectors",
			EnvVars: []string{"QDRANT_COLLECTION"},
			Value:   "car_ads",
		},
		&cli.StringFlag{
			Name:    "neo4j-url",
			Usage:   "Neo4j URL for the vehicle catalog; empty disables it",
			EnvVars: []string{"NEO4J_URL"},
		},
		&cli.StringFlag{
			Name:    "neo4j-user",
			EnvVars: []string{"NEO4J_USER"},
			Value:   "neo4j",
		},
		&cli.StringFlag{
			Name:    "neo4j-pass",
			EnvVars: []string{"NEO4J_PASS"},
		},
		&cli.StringFlag{
			Name:    "nats-url",
			Usage:   "NATS server URL",
			EnvVars: []string{"NATS_URL"},
			Value:   "nats://127.0.0.1:4222",
		},
		&cli.StringFlag{
			Name:    "log-level",
			Aliases: []string{"l"},
			Usage:   "Set logging level (debug, info, warn, error)",
			EnvVars: []string{"LOG_LEVEL"},
			Value:   "info",
		},
	}
}

// FromContext reads the shared flags.
func FromContext(c *cli.Context) Config {
	return Config{
		DatabaseURL:      c.String("database-url"),
		OpenAIKey:        c.String("openai-api-key"),
		EmbedProvider:    strings.ToLower(c.String("embed-provider")),
		EmbedModel:       c.String("embed-model"),
		EmbedURL:         c.String("embed-url"),
		EmbedDims:        c.Int("embed-dims"),
		VectorBackend:    strings.ToLower(c.String("vector-backend")),
		QdrantAddr:       c.String("qdrant-addr"),
		QdrantCollection: c.String("qdrant-collection"),
		Neo4jURL:         c.String("neo4j-url"),
		Neo4jUser:        c.String("neo4j-user"),
		Neo4jPass:        c.String("neo4j-pass"),
		NATSURL:          c.String("nats-url"),
		LogLevel:         c.String("log-level"),
	}
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("database-url is required"))
	}
	switch c.EmbedProvider {
	case ProviderOpenAI:
		if c.OpenAIKey == "" {
			errs = append(errs, errors.New("openai-api-key is required for the openai provider"))
		}
	case ProviderOllama:
	default:
		errs = append(errs, fmt.Errorf("unknown embed-provider %q", c.EmbedProvider))
	}
	if c.EmbedDims <= 0 {
		errs = append(errs, fmt.Errorf("embed-dims must be positive, got %d", c.EmbedDims))
	}
	switch c.VectorBackend {
	case BackendPostgres:
	case BackendQdrant:
		if c.QdrantAddr == "" || c.QdrantCollection == "" {
			errs = append(errs, errors.New("qdrant-addr and qdrant-collection are required for the qdrant backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown vector-backend %q", c.VectorBackend))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", s)
}

// SetupLogger is a cli Before hook installing a JSON logger on stdout.
func SetupLogger(c *cli.Context) error {
	level, err := ParseLevel(c.String("log-level"))
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
	return nil
}
