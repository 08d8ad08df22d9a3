// Package adview fetches car ads from the FINN adview provider.
package adview

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/WessleyAI/carsearch/engine/domain"
)

// DefaultBaseURL is the production adview provider.
const DefaultBaseURL = "https://adview-provider.svc.prod.finn.no"

const maxBody = 8 << 20

// Client calls GET {base}/adview/{id}.
type Client struct {
	base   string
	client *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// New creates a client for the provider at base. An empty base uses DefaultBaseURL.
func New(base string, opts ...Option) *Client {
	if base == "" {
		base = DefaultBaseURL
	}
	c := &Client{base: base, client: &http.Client{Timeout: 30 * time.Second}}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Fetch returns the ad with id. Transport failures and non-2xx answers unwrap
// to domain.ErrFetch; an undecodable body or a document without an ad unwraps
// to domain.ErrMalformedPayload.
func (c *Client) Fetch(ctx context.Context, id string) (*Ad, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/adview/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, domain.NewOpError(domain.ErrFetch, "adview.fetch", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		e := domain.NewOpError(domain.ErrFetch, "adview.fetch", err)
		if errors.Is(err, context.Canceled) {
			return nil, e
		}
		return nil, e.Transient()
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, domain.NewOpError(domain.ErrFetch, "adview.fetch",
			fmt.Errorf("ad %s: %s", id, bytes.TrimSpace(msg))).WithStatus(resp.StatusCode)
	}

	var doc Response
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(&doc); err != nil {
		return nil, domain.NewOpError(domain.ErrMalformedPayload, "adview.decode", fmt.Errorf("ad %s: %w", id, err))
	}
	if doc.Ad == nil {
		return nil, domain.NewOpError(domain.ErrMalformedPayload, "adview.decode", fmt.Errorf("ad %s: no ad object", id))
	}
	return doc.Ad, nil
}
