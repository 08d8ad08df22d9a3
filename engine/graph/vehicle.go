package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrIncomplete is returned for listings without a make or model.
var ErrIncomplete = errors.New("graph: make and model are required")

// VehicleInfo places a listing in the catalog. Year 0 means unknown.
type VehicleInfo struct {
	Make    string
	Model   string
	Variant string
	Year    int
}

// Listing is the ad node hung under a model year.
type Listing struct {
	ID    string
	Title string
	Price *int
}

func slug(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), "-"))
}

// MakeID, ModelID and ModelYearID are the node keys for vi.
func MakeID(vi VehicleInfo) string  { return slug(vi.Make) }
func ModelID(vi VehicleInfo) string { return MakeID(vi) + "-" + slug(vi.Model) }
func ModelYearID(vi VehicleInfo) string {
	if vi.Year == 0 {
		return ModelID(vi) + "-unknown"
	}
	return fmt.Sprintf("%s-%d", ModelID(vi), vi.Year)
}

var constraints = []string{
	`CREATE CONSTRAINT make_id IF NOT EXISTS FOR (n:Make) REQUIRE n.id IS UNIQUE`,
	`CREATE CONSTRAINT vehicle_model_id IF NOT EXISTS FOR (n:VehicleModel) REQUIRE n.id IS UNIQUE`,
	`CREATE CONSTRAINT model_year_id IF NOT EXISTS FOR (n:ModelYear) REQUIRE n.id IS UNIQUE`,
	`CREATE CONSTRAINT listing_id IF NOT EXISTS FOR (n:Listing) REQUIRE n.id IS UNIQUE`,
}

// EnsureConstraints creates the uniqueness constraints MERGE relies on.
func (g *GraphStore) EnsureConstraints(ctx context.Context) error {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	for _, c := range constraints {
		if _, err := sess.Run(ctx, c, nil); err != nil {
			return fmt.Errorf("graph: constraints: %w", err)
		}
	}
	return nil
}

// EnsureListing creates Make→VehicleModel→ModelYear→Listing in one transaction.
// Re-running it for the same listing only refreshes properties.
func (g *GraphStore) EnsureListing(ctx context.Context, vi VehicleInfo, l Listing) error {
	if strings.TrimSpace(vi.Make) == "" || strings.TrimSpace(vi.Model) == "" {
		return ErrIncomplete
	}
	makeID, modelID, myID := MakeID(vi), ModelID(vi), ModelYearID(vi)

	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	_, err := sess.ExecuteWrite(ctx, func(tx CypherRunner) (any, error) {
		steps := []struct {
			cypher string
			params map[string]any
		}{
			{`MERGE (mk:Make {id: $id}) SET mk.name = $name`,
				map[string]any{"id": makeID, "name": vi.Make}},
			{`MERGE (m:VehicleModel {id: $id}) SET m.name = $name, m.make_id = $makeID
			  WITH m
			  MATCH (mk:Make {id: $makeID})
			  MERGE (mk)-[:HAS_MODEL]->(m)`,
				map[string]any{"id": modelID, "name": vi.Model, "makeID": makeID}},
			{`MERGE (my:ModelYear {id: $id}) SET my.year = $year, my.make = $make, my.model = $model
			  WITH my
			  MATCH (m:VehicleModel {id: $modelID})
			  MERGE (my)-[:OF_MODEL]->(m)`,
				map[string]any{"id": myID, "year": vi.Year, "make": vi.Make, "model": vi.Model, "modelID": modelID}},
			{`MERGE (l:Listing {id: $id}) SET l.title = $title, l.price = $price, l.variant = $variant
			  WITH l
			  MATCH (my:ModelYear {id: $myID})
			  MERGE (l)-[:LISTED_AS]->(my)`,
				map[string]any{"id": l.ID, "title": l.Title, "price": intOrNil(l.Price), "variant": vi.Variant, "myID": myID}},
		}
		for _, s := range steps {
			if _, err := tx.Run(ctx, s.cypher, s.params); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("graph: listing %s: %w", l.ID, err)
	}
	return nil
}

func intOrNil(p *int) any {
	if p == nil {
		return nil
	}
	return int64(*p)
}
