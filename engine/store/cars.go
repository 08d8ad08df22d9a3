package store

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/WessleyAI/carsearch/engine/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

// DefaultRandomLimit is the size of the random sample.
const DefaultRandomLimit = 12

const (
	summaryCols = `id, title, price, mileage, year, COALESCE(image_url, '')`
	adCols      = `id, title, year, price, mileage, COALESCE(image_url, ''), COALESCE(description, ''), created_at`

	keywordSQL = `SELECT ` + summaryCols + ` FROM car_ads WHERE title ILIKE $1 ORDER BY id`
	vectorSQL  = `SELECT ` + summaryCols + `, embedding <=> $1 AS distance FROM car_ads ORDER BY embedding <=> $1 LIMIT $2`
	randomSQL  = `SELECT ` + adCols + ` FROM car_ads ORDER BY random() LIMIT $1`
	getSQL     = `SELECT ` + adCols + ` FROM car_ads WHERE id = $1`
	existsSQL  = `SELECT EXISTS (SELECT 1 FROM car_ads WHERE id = $1)`
	insertSQL  = `INSERT INTO car_ads (id, title, year, price, mileage, image_url, description, embedding)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
)

// CarStore is the Postgres implementation of the ad store.
type CarStore struct {
	db   DB
	dims int
}

// New returns a store on db. dims > 0 rejects query and insert vectors of
// another length before they reach Postgres.
func New(db DB, dims int) *CarStore {
	return &CarStore{db: db, dims: dims}
}

// KeywordSearch returns every ad whose title contains q, ignoring case, in
// primary key order. Ids are text, so the order is lexical ("10" sorts before
// "9"). LIKE wildcards in q match literally.
func (s *CarStore) KeywordSearch(ctx context.Context, q string) ([]domain.CarSummary, error) {
	rows, err := s.db.Query(ctx, keywordSQL, "%"+escapeLike(q)+"%")
	if err != nil {
		return nil, queryErr("store.keyword", err)
	}
	out, err := collectSummaries(rows, false)
	if err != nil {
		return nil, queryErr("store.keyword", err)
	}
	return out, nil
}

// VectorSearch returns up to n ads nearest to vec by cosine distance, closest first.
func (s *CarStore) VectorSearch(ctx context.Context, vec []float32, n int) ([]domain.CarSummary, error) {
	if n <= 0 {
		n = domain.DefaultSemanticLimit
	}
	if s.dims > 0 && len(vec) != s.dims {
		return nil, domain.NewOpError(domain.ErrStoreQuery, "store.vector",
			fmt.Errorf("%w: got %d, want %d", domain.ErrDimensionMismatch, len(vec), s.dims))
	}
	rows, err := s.db.Query(ctx, vectorSQL, pgvector.NewVector(vec), n)
	if err != nil {
		return nil, queryErr("store.vector", err)
	}
	out, err := collectSummaries(rows, true)
	if err != nil {
		return nil, queryErr("store.vector", err)
	}
	return out, nil
}

// RandomSample returns n ads in random order.
func (s *CarStore) RandomSample(ctx context.Context, n int) ([]domain.CarAd, error) {
	if n <= 0 {
		n = DefaultRandomLimit
	}
	rows, err := s.db.Query(ctx, randomSQL, n)
	if err != nil {
		return nil, queryErr("store.random", err)
	}
	defer rows.Close()

	out := []domain.CarAd{}
	for rows.Next() {
		ad, err := scanAd(rows)
		if err != nil {
			return nil, queryErr("store.random", err)
		}
		out = append(out, ad)
	}
	if err := rows.Err(); err != nil {
		return nil, queryErr("store.random", err)
	}
	return out, nil
}

// Get returns the ad with id. A missing ad unwraps to domain.ErrNotFound.
func (s *CarStore) Get(ctx context.Context, id string) (domain.CarAd, error) {
	ad, err := scanAd(s.db.QueryRow(ctx, getSQL, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.CarAd{}, domain.NewOpError(domain.ErrStoreQuery, "store.get", domain.ErrNotFound)
	}
	if err != nil {
		return domain.CarAd{}, queryErr("store.get", err)
	}
	return ad, nil
}

// Exists reports whether an ad with id is already stored.
func (s *CarStore) Exists(ctx context.Context, id string) (bool, error) {
	var ok bool
	if err := s.db.QueryRow(ctx, existsSQL, id).Scan(&ok); err != nil {
		return false, queryErr("store.exists", err)
	}
	return ok, nil
}

// Insert writes a new ad. A duplicate id unwraps to domain.ErrConflict.
func (s *CarStore) Insert(ctx context.Context, ad domain.CarAd) error {
	if s.dims > 0 && len(ad.Embedding) != s.dims {
		return domain.NewOpError(domain.ErrStoreWrite, "store.insert",
			fmt.Errorf("%w: got %d, want %d", domain.ErrDimensionMismatch, len(ad.Embedding), s.dims))
	}
	_, err := s.db.Exec(ctx, insertSQL,
		ad.ID, ad.Title, ad.Year, ad.Price, ad.Mileage,
		nullString(ad.ImageURL), nullString(ad.Description),
		pgvector.NewVector(ad.Embedding),
	)
	if err != nil {
		return writeErr("store.insert", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAd(row rowScanner) (domain.CarAd, error) {
	var ad domain.CarAd
	err := row.Scan(&ad.ID, &ad.Title, &ad.Year, &ad.Price, &ad.Mileage, &ad.ImageURL, &ad.Description, &ad.CreatedAt)
	return ad, err
}

func collectSummaries(rows pgx.Rows, withDistance bool) ([]domain.CarSummary, error) {
	defer rows.Close()
	out := []domain.CarSummary{}
	for rows.Next() {
		var c domain.CarSummary
		dest := []any{&c.ID, &c.Title, &c.Price, &c.Mileage, &c.Year, &c.ImageURL}
		var dist float64
		if withDistance {
			dest = append(dest, &dist)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		if withDistance {
			c.Distance = &dist
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike quotes LIKE metacharacters using the default backslash escape.
func escapeLike(q string) string { return likeEscaper.Replace(q) }

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func queryErr(op string, err error) error {
	e := domain.NewOpError(domain.ErrStoreQuery, op, err)
	if transientPg(err) {
		e.Transient()
	}
	return e
}

func writeErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return domain.NewOpError(domain.ErrStoreWrite, op, fmt.Errorf("%w: %s", domain.ErrConflict, pgErr.Detail))
	}
	e := domain.NewOpError(domain.ErrStoreWrite, op, err)
	if transientPg(err) {
		e.Transient()
	}
	return e
}

// transientPg reports connection, resource and serialization failures.
// Client side errors such as scan or encode failures are deterministic and
// never transient.
func transientPg(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		var netErr net.Error
		return pgconn.SafeToRetry(err) || pgconn.Timeout(err) || errors.As(err, &netErr)
	}
	if len(pgErr.Code) < 2 {
		return false
	}
	switch pgErr.Code[:2] {
	case "08", "40", "53", "57":
		return true
	}
	return false
}
