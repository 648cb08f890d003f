// SPDX-License-Identifier: MPL-2.0

package updatecheck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxJSONResponseBytes is the upper bound on JSON API response size (10 MB).
// Prevents unbounded memory consumption from malicious or malformed responses.
const maxJSONResponseBytes = 10 << 20

// FailureKind classifies a release fetch failure.
type FailureKind string

const (
	// KindTransport covers network errors and timeouts before any HTTP
	// status was received.
	KindTransport FailureKind = "transport"

	// KindHTTPStatus covers non-200 responses; FetchError.StatusCode holds
	// the status and Detail the per-status annotation.
	KindHTTPStatus FailureKind = "http-status"

	// KindEmptyBody covers 200 responses with an empty body.
	KindEmptyBody FailureKind = "empty-body"

	// KindMalformedJSON covers 200 responses whose body is not valid JSON.
	KindMalformedJSON FailureKind = "malformed-json"
)

type (
	// RawRelease is the normalized form of the remote provider's latest
	// release: the tag, when it was published, and its downloadable assets.
	// It is ephemeral state, cached under "release:{slug}".
	RawRelease struct {
		TagName     string    `json:"tag_name"`
		PublishedAt time.Time `json:"published_at"`
		Assets      []Asset   `json:"assets"`
	}

	// Asset is one downloadable file attached to a release.
	Asset struct {
		Name        string `json:"name"`
		DownloadURL string `json:"download_url"`
		Size        int64  `json:"size"`
	}

	// githubRelease is the JSON wire format of the GitHub Releases API.
	githubRelease struct {
		TagName     string        `json:"tag_name"`
		PublishedAt string        `json:"published_at"`
		Assets      []githubAsset `json:"assets"`
	}

	// githubAsset is the JSON wire format of a GitHub release asset.
	githubAsset struct {
		Name               string `json:"name"`
		BrowserDownloadURL string `json:"browser_download_url"`
		Size               int64  `json:"size"`
	}

	// FetchError describes why a release fetch failed. It carries the
	// failure classification plus enough context for structured logging;
	// the resolver converts it to an absence signal, never surfacing it
	// to the host.
	FetchError struct {
		Kind       FailureKind
		StatusCode int    // set for KindHTTPStatus
		Detail     string // per-status annotation or cause description
		Cause      error
	}

	// Client queries the GitHub Releases API. A single attempt is made per
	// call; retry policy belongs to the host's polling schedule.
	Client struct {
		httpClient *http.Client
		baseURL    string // API base URL, overridable for tests
		token      string
		userAgent  string
	}

	// ClientOption configures a Client during construction.
	ClientOption func(*Client)
)

// Error implements the error interface with the kind, status, and detail.
func (e *FetchError) Error() string {
	var b strings.Builder
	b.WriteString("release fetch failed (")
	b.WriteString(string(e.Kind))
	b.WriteString(")")
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause, if any.
func (e *FetchError) Unwrap() error { return e.Cause }

// WithHTTPClient sets a custom HTTP client, useful for tests or proxies.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(g *Client) {
		g.httpClient = c
	}
}

// WithBaseURL overrides the GitHub API base URL, primarily for test servers.
func WithBaseURL(base string) ClientOption {
	return func(g *Client) {
		g.baseURL = strings.TrimRight(base, "/")
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) ClientOption {
	return func(g *Client) {
		g.userAgent = ua
	}
}

// NewClient creates a Client with production defaults.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: http.DefaultClient,
		baseURL:    "https://api.github.com",
		userAgent:  "updrift/dev",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LatestRelease fetches the repository's latest published release. Any
// outcome other than a 200 response with a well-formed, non-empty JSON
// body is a *FetchError. No caching happens at this level; the Resolver
// owns the cache discipline.
func (c *Client) LatestRelease(ctx context.Context, repoSlug, token string) (*RawRelease, error) {
	reqURL := fmt.Sprintf("%s/repos/%s/releases/latest", c.baseURL, repoSlug)

	resp, err := c.doRequest(ctx, reqURL, token, "application/vnd.github+json")
	if err != nil {
		return nil, &FetchError{Kind: KindTransport, Cause: err}
	}
	defer func() { _ = resp.Body.Close() }() // read-only response body

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{
			Kind:       KindHTTPStatus,
			StatusCode: resp.StatusCode,
			Detail:     annotateStatus(resp),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJSONResponseBytes))
	if err != nil {
		return nil, &FetchError{Kind: KindTransport, Cause: err}
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, &FetchError{Kind: KindEmptyBody, Detail: "latest release response had an empty body"}
	}

	var gr githubRelease
	if err := json.Unmarshal(body, &gr); err != nil {
		return nil, &FetchError{Kind: KindMalformedJSON, Cause: err}
	}

	return toRawRelease(gr), nil
}

// FetchAssetJSON downloads a small JSON asset (such as plugin.json) and
// returns its raw bytes. The same success criteria as LatestRelease apply:
// 200 status and a non-empty body.
func (c *Client) FetchAssetJSON(ctx context.Context, assetURL, token string) ([]byte, error) {
	resp, err := c.doRequest(ctx, assetURL, token, "application/octet-stream")
	if err != nil {
		return nil, &FetchError{Kind: KindTransport, Cause: err}
	}
	defer func() { _ = resp.Body.Close() }() // read-only response body

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{
			Kind:       KindHTTPStatus,
			StatusCode: resp.StatusCode,
			Detail:     annotateStatus(resp),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJSONResponseBytes))
	if err != nil {
		return nil, &FetchError{Kind: KindTransport, Cause: err}
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, &FetchError{Kind: KindEmptyBody, Detail: "asset response had an empty body"}
	}
	return body, nil
}

// DownloadAsset streams the asset at assetURL. The caller owns the returned
// ReadCloser.
func (c *Client) DownloadAsset(ctx context.Context, assetURL, token string) (io.ReadCloser, error) {
	resp, err := c.doRequest(ctx, assetURL, token, "application/octet-stream")
	if err != nil {
		return nil, &FetchError{Kind: KindTransport, Cause: err}
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, &FetchError{
			Kind:       KindHTTPStatus,
			StatusCode: resp.StatusCode,
			Detail:     annotateStatus(resp),
		}
	}

	return resp.Body, nil
}

// doRequest executes a GET with the common headers. The token is only
// attached for requests targeting the configured API host or github.com,
// so it cannot leak to a third-party CDN through a redirecting asset URL.
func (c *Client) doRequest(ctx context.Context, reqURL, token, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", accept)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("User-Agent", c.userAgent)

	if token != "" && c.isTrustedHost(req.URL) {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	return resp, nil
}

// isTrustedHost reports whether reqURL targets the configured API host or,
// when that host is api.github.com, github.com itself (asset downloads).
func (c *Client) isTrustedHost(reqURL *url.URL) bool {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return false
	}
	if strings.EqualFold(reqURL.Host, base.Host) {
		return true
	}
	if strings.EqualFold(base.Host, "api.github.com") &&
		(strings.EqualFold(reqURL.Host, "github.com") || strings.EqualFold(reqURL.Host, "objects.githubusercontent.com")) {
		return true
	}
	return false
}

// annotateStatus maps a non-200 response to the human-readable detail that
// ends up in structured logs. 403 includes the remaining rate-limit quota
// when the provider reports it.
func annotateStatus(resp *http.Response) string {
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return "authentication failed"
	case resp.StatusCode == http.StatusForbidden:
		if remaining := resp.Header.Get("X-RateLimit-Remaining"); remaining != "" {
			return fmt.Sprintf("forbidden (rate limit remaining: %s)", remaining)
		}
		return "forbidden"
	case resp.StatusCode == http.StatusNotFound:
		return "repository not found or private"
	case resp.StatusCode >= 500:
		return "upstream server error (transient)"
	default:
		return http.StatusText(resp.StatusCode)
	}
}

// toRawRelease converts the wire format to the normalized RawRelease.
// An unparsable publish timestamp degrades to the zero time rather than
// failing the fetch; it only feeds the cosmetic LastUpdated field.
func toRawRelease(gr githubRelease) *RawRelease {
	publishedAt, err := time.Parse(time.RFC3339, gr.PublishedAt)
	if err != nil {
		publishedAt = time.Time{}
	}

	assets := make([]Asset, 0, len(gr.Assets))
	for _, ga := range gr.Assets {
		assets = append(assets, Asset{
			Name:        ga.Name,
			DownloadURL: ga.BrowserDownloadURL,
			Size:        ga.Size,
		})
	}

	return &RawRelease{
		TagName:     gr.TagName,
		PublishedAt: publishedAt,
		Assets:      assets,
	}
}

// IsFetchFailure reports whether err is a *FetchError of the given kind.
func IsFetchFailure(err error, kind FailureKind) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind == kind
	}
	return false
}
