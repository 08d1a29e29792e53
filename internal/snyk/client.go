// Package snyk is a minimal client for the two Snyk API surfaces this
// service touches: the REST projects listing and the v1 project tag
// endpoint, plus the import-job status URLs carried in queue messages.
package snyk

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/doyensec/safeurl"
	"golang.org/x/time/rate"
)

// Options configures a Client.
type Options struct {
	Token          string
	RestAPIURL     string // e.g. https://api.snyk.io/rest/
	RestAPIVersion string // e.g. 2024-10-15
	V1APIURL       string // e.g. https://api.snyk.io/v1/
	// RequestsPerSecond caps outbound API calls client-side; zero or
	// negative disables the limiter.
	RequestsPerSecond float64
}

// Client issues authenticated Snyk API requests. It is safe for concurrent
// use; the rate limiter is shared across all callers.
type Client struct {
	http        *http.Client
	token       string
	restURL     *url.URL
	restVersion string
	v1URL       *url.URL
	limiter     *rate.Limiter
	log         *slog.Logger
}

// New creates a Client. client should be the production safeurl-wrapped
// client from BuildSafeClient; tests inject a plain http.Client.
func New(client *http.Client, opts Options) (*Client, error) {
	if client == nil {
		client = http.DefaultClient
	}
	restURL, err := url.Parse(opts.RestAPIURL)
	if err != nil {
		return nil, fmt.Errorf("parse rest api url: %w", err)
	}
	v1URL, err := url.Parse(opts.V1APIURL)
	if err != nil {
		return nil, fmt.Errorf("parse v1 api url: %w", err)
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	return &Client{
		http:        client,
		token:       opts.Token,
		restURL:     restURL,
		restVersion: opts.RestAPIVersion,
		v1URL:       v1URL,
		limiter:     limiter,
		log:         slog.Default(),
	}, nil
}

// do waits for a rate-limit slot, attaches the API token, and sends req.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	req.Header.Set("Authorization", "token "+c.token)
	return c.http.Do(req)
}

// BuildSafeClient returns an SSRF-safe *http.Client for Snyk API calls.
// Import-job status URLs arrive inside queue messages, so outbound requests
// carrying the API token must not be steerable at private addresses.
// Redirect following is disabled; timeout is 30 seconds.
func BuildSafeClient() (*http.Client, error) {
	cfg := safeurl.GetConfigBuilder().
		SetTimeout(30 * time.Second).
		SetCheckRedirect(func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}).
		Build()
	return safeurl.Client(cfg).Client, nil
}
