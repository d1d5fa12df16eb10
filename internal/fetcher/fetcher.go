// Package fetcher downloads breed pages from the Cat API.
package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"cats_bot/internal/model"
)

// DefaultBaseURL is the public Cat API endpoint.
const DefaultBaseURL = "https://api.thecatapi.com/v1"

const (
	apiKeyHeader = "x-api-key"
	userAgent    = "CatsBot/1.0"
	maxBodySize  = 5 * 1024 * 1024
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithBaseURL overrides DefaultBaseURL.
func WithBaseURL(baseURL string) Option {
	return func(f *Fetcher) {
		f.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithAPIKey sets the key sent in the x-api-key header.
func WithAPIKey(key string) Option {
	return func(f *Fetcher) {
		f.apiKey = key
	}
}

// WithRateLimit caps outgoing API calls to perMinute requests per minute.
// Zero or negative disables the limit.
func WithRateLimit(perMinute int) Option {
	return func(f *Fetcher) {
		if perMinute <= 0 {
			f.limiter = nil
			return
		}
		f.limiter = rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), max(perMinute/10, 1))
	}
}

// WithTimeout bounds a single API round trip.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithSimulatedOffline makes every fetch fail as if the device were offline.
// Debug use only.
func WithSimulatedOffline(on bool) Option {
	return func(f *Fetcher) {
		f.simulateOffline = on
	}
}

// Fetcher downloads breed pages from the Cat API.
type Fetcher struct {
	client          HTTPClient
	baseURL         string
	apiKey          string
	timeout         time.Duration
	limiter         *rate.Limiter
	simulateOffline bool

	inflight singleflight.Group
}

// New creates a Fetcher with the given HTTP client.
func New(client HTTPClient, opts ...Option) *Fetcher {
	f := &Fetcher{
		client:  client,
		baseURL: DefaultBaseURL,
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchBreeds returns one page of breeds. page is 1-indexed; a non-blank
// query uses the search endpoint. Concurrent identical requests share one
// round trip. Every failure is a *NetworkError.
func (f *Fetcher) FetchBreeds(ctx context.Context, query string, page, pageSize int) ([]model.BreedDTO, error) {
	if f.simulateOffline {
		return nil, &NetworkError{Kind: KindNetwork, Err: ErrSimulatedOffline}
	}

	reqURL, err := f.breedsURL(strings.TrimSpace(query), page, pageSize)
	if err != nil {
		return nil, &NetworkError{Kind: KindNetwork, Err: err}
	}

	ch := f.inflight.DoChan(reqURL, func() (any, error) {
		// Detached so one caller giving up does not fail the others.
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout)
		defer cancel()
		return f.get(callCtx, reqURL)
	})

	select {
	case <-ctx.Done():
		return nil, &NetworkError{Kind: KindNetwork, Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return slices.Clone(res.Val.([]model.BreedDTO)), nil
	}
}

func (f *Fetcher) breedsURL(query string, page, pageSize int) (string, error) {
	u, err := url.Parse(f.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}

	params := url.Values{}
	params.Set("limit", strconv.Itoa(pageSize))
	// The API pages from 0.
	params.Set("page", strconv.Itoa(max(page-1, 0)))

	if query != "" {
		u = u.JoinPath("breeds", "search")
		params.Set("q", query)
	} else {
		u = u.JoinPath("breeds")
	}
	u.RawQuery = params.Encode()
	return u.String(), nil
}

func (f *Fetcher) get(ctx context.Context, reqURL string) ([]model.BreedDTO, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, &NetworkError{Kind: KindThrottled, Err: fmt.Errorf("%w: %w", ErrThrottled, err)}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &NetworkError{Kind: KindNetwork, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if f.apiKey != "" {
		req.Header.Set(apiKeyHeader, f.apiKey)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &NetworkError{Kind: KindNetwork, Err: fmt.Errorf("http get: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &NetworkError{
			Kind:       KindServer,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &NetworkError{Kind: KindNetwork, Err: fmt.Errorf("read body: %w", err)}
	}

	var dtos []model.BreedDTO
	if err := json.Unmarshal(body, &dtos); err != nil {
		return nil, &NetworkError{Kind: KindDecoding, Err: fmt.Errorf("decode breeds: %w", err)}
	}
	return dtos, nil
}
