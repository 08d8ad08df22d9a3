// Package graph keeps a vehicle catalog in Neo4j: makes, their models, model
// years, and the listings that belong to each model year.
package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// CypherRunner runs a single statement.
type CypherRunner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (neo4j.ResultWithContext, error)
}

// CypherSession is the subset of a Neo4j session the store uses.
type CypherSession interface {
	CypherRunner
	ExecuteWrite(ctx context.Context, work func(tx CypherRunner) (any, error)) (any, error)
	Close(ctx context.Context) error
}

// SessionOpener hands out sessions. Tests swap in fakes here.
type SessionOpener interface {
	OpenSession(ctx context.Context) CypherSession
}

// GraphStore writes the catalog.
type GraphStore struct {
	opener SessionOpener
	close  func(context.Context) error
}

// New creates a GraphStore on a driver.
func New(driver neo4j.DriverWithContext) *GraphStore {
	return &GraphStore{opener: driverOpener{driver}, close: driver.Close}
}

// NewWithOpener creates a GraphStore on any SessionOpener.
func NewWithOpener(o SessionOpener) *GraphStore {
	return &GraphStore{opener: o}
}

// Connect dials Neo4j with basic auth and checks connectivity.
func Connect(ctx context.Context, url, user, pass string) (*GraphStore, error) {
	driver, err := neo4j.NewDriverWithContext(url, neo4j.BasicAuth(user, pass, ""))
	if err != nil {
		return nil, fmt.Errorf("graph: driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("graph: connect %s: %w", url, err)
	}
	return New(driver), nil
}

func (g *GraphStore) Close(ctx context.Context) error {
	if g.close == nil {
		return nil
	}
	return g.close(ctx)
}

type driverOpener struct {
	driver neo4j.DriverWithContext
}

func (o driverOpener) OpenSession(ctx context.Context) CypherSession {
	return driverSession{o.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})}
}

type driverSession struct {
	s neo4j.SessionWithContext
}

func (d driverSession) Run(ctx context.Context, cypher string, params map[string]any) (neo4j.ResultWithContext, error) {
	return d.s.Run(ctx, cypher, params)
}

func (d driverSession) ExecuteWrite(ctx context.Context, work func(tx CypherRunner) (any, error)) (any, error) {
	return d.s.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return work(tx)
	})
}

func (d driverSession) Close(ctx context.Context) error { return d.s.Close(ctx) }
