package adview

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Scalar holds a JSON string, number or boolean as text. The provider is not
// consistent about which one it sends for numeric fields. Objects and arrays
// decode to the zero Scalar, which reads as absent.
type Scalar struct {
	text  string
	truth bool
}

// S builds a Scalar from text. Non-empty text is truthy.
func S(text string) Scalar { return Scalar{text: text, truth: text != ""} }

func (s *Scalar) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*s = Scalar{}
	case b[0] == '"':
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = S(v)
	case bytes.Equal(b, []byte("true")):
		*s = Scalar{text: "true", truth: true}
	case bytes.Equal(b, []byte("false")):
		*s = Scalar{text: "false"}
	case b[0] == '-' || (b[0] >= '0' && b[0] <= '9'):
		n := json.Number(b)
		f, err := n.Float64()
		if err != nil {
			*s = Scalar{}
			return nil
		}
		*s = Scalar{text: n.String(), truth: f != 0}
	default:
		*s = Scalar{}
	}
	return nil
}

func (s Scalar) MarshalJSON() ([]byte, error) {
	if s.text == "" {
		return []byte("null"), nil
	}
	if _, err := strconv.ParseFloat(s.text, 64); err == nil {
		return []byte(s.text), nil
	}
	return json.Marshal(s.text)
}

// String returns the value as the provider rendered it, "" when absent.
func (s Scalar) String() string { return s.text }

// True follows JSON truthiness: false, 0, "" and null are false.
func (s Scalar) True() bool { return s.truth }

// Text is a free-text field. Strings decode as-is, numbers and booleans as
// their literal, and a labelled object as its "value". Any other shape
// decodes to "" so one odd field does not reject the whole ad.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	var sc Scalar
	switch {
	case len(b) == 0:
		*t = ""
	case b[0] == '{':
		var v struct {
			Value Text `json:"value"`
		}
		if json.Unmarshal(b, &v) != nil {
			v.Value = ""
		}
		*t = v.Value
	case sc.UnmarshalJSON(b) == nil:
		*t = Text(sc.String())
	default:
		*t = ""
	}
	return nil
}

// Response is the adview document. Ad is nil when the provider returned no ad.
type Response struct {
	Ad *Ad `json:"ad"`
}

// Ad lists the fields of the adview payload the ingest pipeline reads.
type Ad struct {
	Title                    Text         `json:"title"`
	Images                   Images       `json:"images"`
	DescriptionUnsafe        Text         `json:"description_unsafe"`
	Price                    Price        `json:"price"`
	Year                     Scalar       `json:"year"`
	Mileage                  Scalar       `json:"mileage"`
	Engine                   Engine       `json:"engine"`
	Transmission             Valued       `json:"transmission"`
	WheelDrive               Valued       `json:"wheel_drive"`
	BodyType                 Valued       `json:"body_type"`
	ExteriorColor            Valued       `json:"exterior_color"`
	ExteriorColorDescription Text         `json:"exterior_color_description"`
	InteriorColor            Text         `json:"interior_color"`
	Location                 Location     `json:"location"`
	ModelAndMake             ModelAndMake `json:"model_and_make"`
	ModelSpec                Text         `json:"model_spec"`
	Damages                  Damages      `json:"damages"`
	ServicePlanFollowed      Scalar       `json:"service_plan_followed"`
}

// lenient decodes b into v when b starts with open. Any other shape, or a
// value that fails to decode, leaves v at its zero value.
func lenient[T any](b []byte, open byte, v *T) {
	var zero T
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != open || json.Unmarshal(b, v) != nil {
		*v = zero
	}
}

type Image struct {
	URI Text `json:"uri"`
}

func (i *Image) UnmarshalJSON(b []byte) error {
	type plain Image
	lenient(b, '{', (*plain)(i))
	return nil
}

// Images is the ad's gallery. Anything but an array decodes as empty.
type Images []Image

func (im *Images) UnmarshalJSON(b []byte) error {
	var v []Image
	lenient(b, '[', &v)
	*im = v
	return nil
}

type Price struct {
	Main Scalar `json:"main"`
}

func (p *Price) UnmarshalJSON(b []byte) error {
	type plain Price
	lenient(b, '{', (*plain)(p))
	return nil
}

type Engine struct {
	Fuel   Valued `json:"fuel"`
	Effect Scalar `json:"effect"`
	Volume Scalar `json:"volume"`
}

func (e *Engine) UnmarshalJSON(b []byte) error {
	type plain Engine
	lenient(b, '{', (*plain)(e))
	return nil
}

// Valued is the provider's labelled enum: {"value": "..."}.
type Valued struct {
	Value Text `json:"value"`
}

func (v *Valued) UnmarshalJSON(b []byte) error {
	type plain Valued
	lenient(b, '{', (*plain)(v))
	return nil
}

type Location struct {
	PostalPlace Text `json:"postalPlace"`
	CountryName Text `json:"countryName"`
}

func (l *Location) UnmarshalJSON(b []byte) error {
	type plain Location
	lenient(b, '{', (*plain)(l))
	return nil
}

type ModelAndMake struct {
	Value  Text   `json:"value"`
	Parent Valued `json:"parent"`
}

func (m *ModelAndMake) UnmarshalJSON(b []byte) error {
	type plain ModelAndMake
	lenient(b, '{', (*plain)(m))
	return nil
}

type Damages struct {
	HasKnownDamages Scalar `json:"has_known_damages"`
}

func (d *Damages) UnmarshalJSON(b []byte) error {
	type plain Damages
	lenient(b, '{', (*plain)(d))
	return nil
}
