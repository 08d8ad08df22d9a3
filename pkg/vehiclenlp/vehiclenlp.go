// Package vehiclenlp guesses make, model and model year from free text such
// as an ad title. It only knows the makes sold on the Norwegian market.
package vehiclenlp

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Match is a vehicle mention. Year is 0 when the text has none.
type Match struct {
	Make  string
	Model string
	Year  int
}

// makeAliases maps lower-cased spellings, including two-word ones, to the
// canonical make.
var makeAliases = map[string]string{
	"alfa romeo":    "Alfa Romeo",
	"aston martin":  "Aston Martin",
	"audi":          "Audi",
	"bmw":           "BMW",
	"byd":           "BYD",
	"chevrolet":     "Chevrolet",
	"chevy":         "Chevrolet",
	"citroen":       "Citroën",
	"citroën":       "Citroën",
	"cupra":         "Cupra",
	"dacia":         "Dacia",
	"fiat":          "Fiat",
	"ford":          "Ford",
	"honda":         "Honda",
	"hyundai":       "Hyundai",
	"jaguar":        "Jaguar",
	"jeep":          "Jeep",
	"kia":           "Kia",
	"land rover":    "Land Rover",
	"lexus":         "Lexus",
	"mazda":         "Mazda",
	"benz":          "Mercedes-Benz",
	"mercedes":      "Mercedes-Benz",
	"mercedes benz": "Mercedes-Benz",
	"mercedes-benz": "Mercedes-Benz",
	"mg":            "MG",
	"mini":          "Mini",
	"mitsubishi":    "Mitsubishi",
	"nissan":        "Nissan",
	"opel":          "Opel",
	"peugeot":       "Peugeot",
	"polestar":      "Polestar",
	"porsche":       "Porsche",
	"renault":       "Renault",
	"seat":          "Seat",
	"skoda":         "Skoda",
	"škoda":         "Skoda",
	"subaru":        "Subaru",
	"suzuki":        "Suzuki",
	"tesla":         "Tesla",
	"toyota":        "Toyota",
	"volkswagen":    "Volkswagen",
	"vw":            "Volkswagen",
	"volvo":         "Volvo",
	"xpeng":         "XPeng",
}

// multiWordModels keeps model names that are meaningless without their
// second word together.
var multiWordModels = map[string]bool{
	"model": true,
	"grand": true,
	"range": true,
	"land":  true,
}

var yearRe = regexp.MustCompile(`\b(19[5-9]\d|20[0-4]\d)\b`)

// FromTitle returns the first known make in text and the word after it as
// the model. ok is false when no make is found.
func FromTitle(text string) (m Match, ok bool) {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || r == ',' || r == '/' || r == '(' || r == ')' || r == ':'
	})
	for i := 0; i < len(words); i++ {
		make_, n := lookupMake(words, i)
		if make_ == "" {
			continue
		}
		m.Make = make_
		m.Model = model(words[i+n:])
		m.Year = year(text)
		return m, true
	}
	return Match{}, false
}

func lookupMake(words []string, i int) (string, int) {
	if i+1 < len(words) {
		if mk, ok := makeAliases[strings.ToLower(words[i]+" "+words[i+1])]; ok {
			return mk, 2
		}
	}
	if mk, ok := makeAliases[strings.ToLower(words[i])]; ok {
		return mk, 1
	}
	return "", 0
}

// model skips year tokens and joins a second word for names like "Model 3".
func model(rest []string) string {
	for len(rest) > 0 && yearRe.MatchString(rest[0]) && len(rest[0]) == 4 {
		rest = rest[1:]
	}
	if len(rest) == 0 {
		return ""
	}
	if multiWordModels[strings.ToLower(rest[0])] && len(rest) > 1 {
		return rest[0] + " " + rest[1]
	}
	return rest[0]
}

func year(text string) int {
	s := yearRe.FindString(text)
	if s == "" {
		return 0
	}
	y, _ := strconv.Atoi(s)
	return y
}
