package adview

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/WessleyAI/carsearch/engine/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePayload = `{
  "ad": {
    "title": "Tesla Model 3 Long Range",
    "images": [{"uri": "https://images.finncdn.no/1.jpg"}, {"uri": "https://images.finncdn.no/2.jpg"}],
    "description_unsafe": "<p>Godt <b>vedlikeholdt</b></p>",
    "price": {"main": 289900},
    "year": "2021",
    "mileage": 41000,
    "engine": {"fuel": {"value": "Electric"}, "effect": 440, "volume": null},
    "transmission": {"value": "Automatic"},
    "wheel_drive": {"value": "All"},
    "body_type": {"value": "Sedan"},
    "exterior_color": {"value": "White"},
    "exterior_color_description": "Pearl white",
    "interior_color": "Black",
    "location": {"postalPlace": "Oslo", "countryName": "Norway"},
    "model_and_make": {"value": "Model 3", "parent": {"value": "Tesla"}},
    "model_spec": "Long Range AWD",
    "damages": {"has_known_damages": false},
    "service_plan_followed": true
  }
}`

func serve(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL)
}

func TestFetch(t *testing.T) {
	var path string
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(samplePayload))
	})

	ad, err := c.Fetch(context.Background(), "390304879")
	require.NoError(t, err)
	assert.Equal(t, "/adview/390304879", path)
	assert.Equal(t, Text("Tesla Model 3 Long Range"), ad.Title)
	assert.Equal(t, Text("https://images.finncdn.no/1.jpg"), ad.Images[0].URI)
	assert.Equal(t, "289900", ad.Price.Main.String())
	assert.Equal(t, "2021", ad.Year.String())
	assert.Equal(t, "41000", ad.Mileage.String())
	assert.Equal(t, "", ad.Engine.Volume.String())
	assert.Equal(t, Text("Tesla"), ad.ModelAndMake.Parent.Value)
	assert.Equal(t, Text("Black"), ad.InteriorColor)
	assert.False(t, ad.Damages.HasKnownDamages.True())
	assert.True(t, ad.ServicePlanFollowed.True())
}

func TestFetchOddTextFields(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ad": {
			"title": "Volvo XC60",
			"interior_color": {"value": "Svart"},
			"exterior_color_description": ["grå", "metallic"],
			"model_spec": 60,
			"location": {"postalPlace": {"nested": true}, "countryName": null}
		}}`))
	})

	ad, err := c.Fetch(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, Text("Volvo XC60"), ad.Title)
	assert.Equal(t, Text("Svart"), ad.InteriorColor)
	assert.Empty(t, ad.ExteriorColorDescription)
	assert.Equal(t, Text("60"), ad.ModelSpec)
	assert.Empty(t, ad.Location.PostalPlace)
	assert.Empty(t, ad.Location.CountryName)
}

func TestFetchOddStructuredFields(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ad": {
			"title": "Audi A6",
			"year": ["2018"],
			"mileage": {"value": "12 000"},
			"price": 250000,
			"engine": "2.0 TDI",
			"images": {"uri": "https://images.finncdn.no/1.jpg"},
			"transmission": "Automat",
			"model_and_make": [],
			"damages": null
		}}`))
	})

	ad, err := c.Fetch(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, Text("Audi A6"), ad.Title)
	assert.Empty(t, ad.Year.String())
	assert.Empty(t, ad.Mileage.String())
	assert.Empty(t, ad.Price.Main.String())
	assert.Empty(t, ad.Engine.Effect.String())
	assert.Empty(t, ad.Images)
	assert.Empty(t, ad.Transmission.Value)
	assert.Empty(t, ad.ModelAndMake.Parent.Value)
	assert.False(t, ad.Damages.HasKnownDamages.True())
}

func TestImagesSkipOddEntries(t *testing.T) {
	var im Images
	require.NoError(t, json.Unmarshal([]byte(`[{"uri": "a.jpg"}, "b.jpg", {"uri": 7}]`), &im))
	require.Len(t, im, 3)
	assert.Equal(t, Text("a.jpg"), im[0].URI)
	assert.Empty(t, im[1].URI)
	assert.Equal(t, Text("7"), im[2].URI)
}

func TestTextUnmarshal(t *testing.T) {
	tests := []struct {
		in   string
		want Text
	}{
		{`"Svart"`, "Svart"},
		{`null`, ""},
		{`12.5`, "12.5"},
		{`true`, "true"},
		{`{"value": "Svart"}`, "Svart"},
		{`{"value": {"value": "Svart"}}`, "Svart"},
		{`{"label": "Svart"}`, ""},
		{`["Svart"]`, ""},
	}
	for _, tt := range tests {
		var got Text
		require.NoError(t, json.Unmarshal([]byte(tt.in), &got), tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestFetchStatusErrors(t *testing.T) {
	tests := []struct {
		name      string
		code      int
		retryable bool
	}{
		{"not found", http.StatusNotFound, false},
		{"rate limited", http.StatusTooManyRequests, true},
		{"server error", http.StatusBadGateway, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := serve(t, func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "nope", tt.code)
			})
			_, err := c.Fetch(context.Background(), "1")
			require.ErrorIs(t, err, domain.ErrFetch)
			assert.Equal(t, tt.retryable, domain.IsRetryable(err))

			var op *domain.OpError
			require.ErrorAs(t, err, &op)
			assert.Equal(t, tt.code, op.Status)
		})
	}
}

func TestFetchTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := New(srv.URL).Fetch(context.Background(), "1")
	require.ErrorIs(t, err, domain.ErrFetch)
	assert.True(t, domain.IsRetryable(err))
}

func TestFetchMalformed(t *testing.T) {
	bodies := map[string]string{
		"no ad":       `{"meta": {}}`,
		"null ad":     `{"ad": null}`,
		"not json":    `<html>oops</html>`,
		"ad is text":  `{"ad": "sold"}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			c := serve(t, func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(body))
			})
			_, err := c.Fetch(context.Background(), "1")
			require.ErrorIs(t, err, domain.ErrMalformedPayload)
			assert.False(t, domain.IsRetryable(err))
		})
	}
}

func TestFetchCancelled(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(samplePayload))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Fetch(ctx, "1")
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, domain.IsRetryable(err))
}

func TestScalar(t *testing.T) {
	var v struct {
		A, B, C, D, E, F Scalar
	}
	require.NoError(t, json.Unmarshal([]byte(`{"A": 12, "B": "12 000", "C": null, "D": true, "E": 0, "F": ""}`), &v))
	assert.Equal(t, "12", v.A.String())
	assert.True(t, v.A.True())
	assert.Equal(t, "12 000", v.B.String())
	assert.Equal(t, "", v.C.String())
	assert.False(t, v.C.True())
	assert.True(t, v.D.True())
	assert.False(t, v.E.True())
	assert.False(t, v.F.True())

	var odd struct{ Obj, Arr Scalar }
	require.NoError(t, json.Unmarshal([]byte(`{"Obj": {"value": "12 000"}, "Arr": [1]}`), &odd))
	assert.Empty(t, odd.Obj.String())
	assert.False(t, odd.Obj.True())
	assert.Empty(t, odd.Arr.String())

	out, err := json.Marshal(v.A)
	require.NoError(t, err)
	assert.JSONEq(t, `12`, string(out))
	out, err = json.Marshal(v.B)
	require.NoError(t, err)
	assert.JSONEq(t, `"12 000"`, string(out))
}
