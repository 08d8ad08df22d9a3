package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
)

func TestValidateQuery(t *testing.T) {
	valid := []string{"volvo", "  Tesla model 3 ", "a", "100% electric_"}
	for _, q := range valid {
		if err := ValidateQuery(q); err != nil {
			t.Errorf("expected valid for %q, got %v", q, err)
		}
	}

	invalid := []string{"", "   ", "\t\n", "\xff\xfe"}
	for _, q := range invalid {
		err := ValidateQuery(q)
		if !errors.Is(err, ErrInvalidQuery) {
			t.Errorf("expected ErrInvalidQuery for %q, got %v", q, err)
		}
	}
}

func TestValidateAdID(t *testing.T) {
	if err := ValidateAdID("390304879"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, id := range []string{"", "../etc", "a b", "1/2"} {
		if err := ValidateAdID(id); !errors.Is(err, ErrInvalidAdID) {
			t.Errorf("expected ErrInvalidAdID for %q, got %v", id, err)
		}
	}
}

func TestValidationError_Message(t *testing.T) {
	err := NewValidationError("query", " ", ErrInvalidQuery)
	want := `validation: invalid query: query (value=" ")`
	if err.Error() != want {
		t.Fatalf("got %q, want %q", err.Error(), want)
	}
}

func TestOpError_UnwrapsKindAndCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("search: %w", NewOpError(ErrStoreQuery, "store.keyword", cause))

	if !errors.Is(err, ErrStoreQuery) {
		t.Error("expected kind to match")
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to match")
	}
	var op *OpError
	if !errors.As(err, &op) || op.Op != "store.keyword" {
		t.Fatalf("expected OpError, got %v", err)
	}
}

func TestOpError_Message(t *testing.T) {
	err := NewOpError(ErrFetch, "adview.fetch", errors.New("boom")).WithStatus(503)
	want := "adview.fetch: fetch error (status 503): boom"
	if err.Error() != want {
		t.Fatalf("got %q, want %q", err.Error(), want)
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"net error", fmt.Errorf("dial: %w", timeoutErr{}), true},
		{"5xx", NewOpError(ErrFetch, "fetch", nil).WithStatus(502), true},
		{"429", NewOpError(ErrEmbeddingService, "embed", nil).WithStatus(429), true},
		{"404", NewOpError(ErrFetch, "fetch", nil).WithStatus(404), false},
		{"transient", NewOpError(ErrStoreWrite, "insert", errors.New("conn lost")).Transient(), true},
		{"malformed", NewOpError(ErrMalformedPayload, "decode", nil), false},
		{"empty embedding", NewOpError(ErrEmbeddingService, "embed", ErrEmptyEmbedding).Transient(), false},
		{"conflict", NewOpError(ErrStoreWrite, "insert", ErrConflict), false},
		{"plain", errors.New("something"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestCarAdSummary(t *testing.T) {
	ad := CarAd{ID: "1", Title: "Volvo V70", Year: Int(2012), Price: Int(99000), ImageURL: "http://img"}
	s := ad.Summary()
	if s.ID != "1" || s.Title != "Volvo V70" || *s.Year != 2012 || *s.Price != 99000 || s.Mileage != nil {
		t.Fatalf("unexpected summary: %+v", s)
	}
	if s.Distance != nil {
		t.Fatal("summary should not carry a distance")
	}
}
