package ingest

import (
	"math"
	"strings"
	"unicode"

	"github.com/WessleyAI/carsearch/engine/adview"
	"github.com/WessleyAI/carsearch/engine/domain"
)

// Listing is an adview ad flattened to the fields the pipeline uses. Missing
// fields are empty strings, never absent.
type Listing struct {
	ID                  string
	Title               string
	ImageURL            string
	Description         string
	Price               string
	Year                string
	Mileage             string
	FuelType            string
	EngineEffect        string
	EngineVolume        string
	Transmission        string
	WheelDrive          string
	BodyType            string
	ExteriorColor       string
	ExteriorColorDesc   string
	InteriorColor       string
	City                string
	Country             string
	Make                string
	Model               string
	Variant             string
	HasKnownDamages     bool
	ServicePlanFollowed bool
}

// Normalize maps an adview ad onto a Listing. It does no I/O.
func Normalize(id string, ad *adview.Ad) Listing {
	l := Listing{ID: id}
	if ad == nil {
		return l
	}
	l.Title = string(ad.Title)
	if len(ad.Images) > 0 {
		l.ImageURL = string(ad.Images[0].URI)
	}
	l.Description = string(ad.DescriptionUnsafe)
	l.Price = ad.Price.Main.String()
	l.Year = ad.Year.String()
	l.Mileage = ad.Mileage.String()
	l.FuelType = string(ad.Engine.Fuel.Value)
	l.EngineEffect = ad.Engine.Effect.String()
	l.EngineVolume = ad.Engine.Volume.String()
	l.Transmission = string(ad.Transmission.Value)
	l.WheelDrive = string(ad.WheelDrive.Value)
	l.BodyType = string(ad.BodyType.Value)
	l.ExteriorColor = string(ad.ExteriorColor.Value)
	l.ExteriorColorDesc = string(ad.ExteriorColorDescription)
	l.InteriorColor = string(ad.InteriorColor)
	l.City = string(ad.Location.PostalPlace)
	l.Country = string(ad.Location.CountryName)
	l.Make = string(ad.ModelAndMake.Parent.Value)
	l.Model = string(ad.ModelAndMake.Value)
	l.Variant = string(ad.ModelSpec)
	l.HasKnownDamages = ad.Damages.HasKnownDamages.True()
	l.ServicePlanFollowed = ad.ServicePlanFollowed.True()
	return l
}

// CarAd builds the stored record. Year, price and mileage that do not parse
// to a positive integer are stored as NULL; the description is kept raw.
func (l Listing) CarAd(embedding []float32) domain.CarAd {
	return domain.CarAd{
		ID:          l.ID,
		Title:       l.Title,
		Year:        parseInt(l.Year),
		Price:       parseInt(l.Price),
		Mileage:     parseInt(l.Mileage),
		ImageURL:    l.ImageURL,
		Description: l.Description,
		Embedding:   embedding,
	}
}

// parseInt reads the leading integer of s after dropping whitespace used as a
// thousands separator, so "12 500 km" is 12500 and "1.6" is 1. No digits, or
// a zero result, gives nil.
func parseInt(s string) *int {
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)

	neg := false
	if strings.HasPrefix(s, "-") {
		neg, s = true, s[1:]
	} else {
		s = strings.TrimPrefix(s, "+")
	}

	n, digits := 0, 0
	for _, r := range s {
		if r < '0' || r > '9' {
			break
		}
		n = n*10 + int(r-'0')
		if n > math.MaxInt32 {
			return nil
		}
		digits++
	}
	if digits == 0 || n == 0 {
		return nil
	}
	if neg {
		n = -n
	}
	return &n
}
