// Package domain holds the car ad types shared by search and ingestion.
package domain

import "time"

// DefaultSemanticLimit is the number of nearest neighbours a semantic search returns.
const DefaultSemanticLimit = 8

// CarAd is a persisted advertisement. Numeric fields are nil when the source
// value could not be parsed.
type CarAd struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Year        *int      `json:"year"`
	Price       *int      `json:"price"`
	Mileage     *int      `json:"mileage"`
	ImageURL    string    `json:"image_url"`
	Description string    `json:"description"`
	Embedding   []float32 `json:"-"`
	CreatedAt   time.Time `json:"created_at,omitzero"`
}

// Summary projects the ad onto the fields shown in result lists.
func (a CarAd) Summary() CarSummary {
	return CarSummary{
		ID:       a.ID,
		Title:    a.Title,
		Price:    a.Price,
		Mileage:  a.Mileage,
		Year:     a.Year,
		ImageURL: a.ImageURL,
	}
}

// CarSummary is the row returned by both search paths. Distance is only set
// on semantic results.
type CarSummary struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Price    *int     `json:"price"`
	Mileage  *int     `json:"mileage"`
	Year     *int     `json:"year"`
	ImageURL string   `json:"image_url"`
	Distance *float64 `json:"distance,omitempty"`
}

// Results is the pair returned by a hybrid search. The two lists are
// independent and may overlap.
type Results struct {
	Semantic []CarSummary `json:"semanticResults"`
	Keyword  []CarSummary `json:"keywordResults"`
}

// Int returns a pointer to v.
func Int(v int) *int { return &v }
