package ingest

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// PlainText strips markup from an ad description and collapses whitespace.
func PlainText(s string) string {
	return strings.Join(strings.Fields(html.UnescapeString(strict.Sanitize(s))), " ")
}

// Compose renders the text block that is embedded for l. The age clause is
// left out when the year does not parse.
func Compose(l Listing, now time.Time) string {
	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}

	line("Title: %s", l.Title)
	line("Description: %s", PlainText(l.Description))
	if y := parseInt(l.Year); y != nil {
		line("Year: %s (The car was manufactured in %s, making it a %d-year-old car.)", l.Year, l.Year, now.Year()-*y)
	} else {
		line("Year: %s", l.Year)
	}
	line("Price (NOK): %s (The car is priced at %s NOK.)", l.Price, l.Price)
	line("Mileage: %s (The car has been driven for %s kilometers.)", l.Mileage, l.Mileage)
	line("Fuel Type: %s", l.FuelType)
	line("Engine: %s HP, %sL", l.EngineEffect, l.EngineVolume)
	line("Transmission: %s", l.Transmission)
	line("Wheel Drive: %s (the car is %s wheel drive.)", l.WheelDrive, l.WheelDrive)
	line("Body Type: %s", l.BodyType)
	line("Exterior Color: %s (%s) (The exterior of the car is painted in %s color.)", l.ExteriorColor, l.ExteriorColorDesc, l.ExteriorColor)
	line("Interior Color: %s (The interior of the car is %s in color.)", l.InteriorColor, l.InteriorColor)
	line("Location: %s, %s (The car is located in %s, %s.)", l.City, l.Country, l.City, l.Country)
	line("Make & Model: %s %s %s", l.Make, l.Model, l.Variant)
	if l.HasKnownDamages {
		line("Damages: Has known damages")
	} else {
		line("Damages: No known damages")
	}
	if l.ServicePlanFollowed {
		line("Service History Followed: Yes")
	} else {
		line("Service History Followed: No")
	}
	return strings.TrimSpace(b.String())
}
