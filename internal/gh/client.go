// Package gh provides the GitHub repository search backends.
// Both the REST and the GraphQL client expose the same FetchPage method and
// return normalized domain types, hiding payload shapes, pagination style,
// retries and client-side rate limiting.
package gh

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/neekit95/gh-search/internal/domain"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	DefaultAPIURL     = "https://api.github.com"
	DefaultGraphQLURL = "https://api.github.com/graphql"
	DefaultTimeout    = 15 * time.Second
	DefaultRetryMax   = 3

	// GitHub allows 10 search requests per minute unauthenticated and 30
	// with a token.
	AnonymousRequestsPerMinute     = 10
	AuthenticatedRequestsPerMinute = 30

	userAgent  = "gh-search"
	apiVersion = "2022-11-28"
)

// Options configures a search client.
type Options struct {
	BaseURL    string // REST API root (default DefaultAPIURL)
	GraphQLURL string // GraphQL endpoint (default DefaultGraphQLURL)
	Token      string // Optional for REST, required for GraphQL
	Timeout    time.Duration
	RetryMax   int
	// RequestsPerMinute throttles outgoing requests. Zero picks the GitHub
	// search quota for the token state; negative disables throttling.
	RequestsPerMinute int
	Logger            zerolog.Logger

	// HTTPClient replaces the underlying transport client (tests).
	HTTPClient *http.Client
}

func (o Options) withDefaults() Options {
	if o.BaseURL == "" {
		o.BaseURL = DefaultAPIURL
	}
	if o.GraphQLURL == "" {
		o.GraphQLURL = DefaultGraphQLURL
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.RetryMax < 0 {
		o.RetryMax = 0
	}
	if o.RequestsPerMinute == 0 {
		o.RequestsPerMinute = AnonymousRequestsPerMinute
		if o.Token != "" {
			o.RequestsPerMinute = AuthenticatedRequestsPerMinute
		}
	}
	return o
}

// Client searches repositories through the REST endpoint GET /search/repositories.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
	limiter *rate.Limiter
	log     zerolog.Logger
}

// New creates a REST search client. A token is optional; without one the
// anonymous search quota applies.
func New(opts Options) *Client {
	opts = opts.withDefaults()
	return &Client{
		http:    newHTTPClient(opts),
		baseURL: strings.TrimSuffix(opts.BaseURL, "/"),
		token:   opts.Token,
		limiter: newLimiter(opts.RequestsPerMinute),
		log:     opts.Logger,
	}
}

// FetchPage returns one page of search results. page is 1-based and pageSize
// is capped at domain.MaxRemotePageSize.
func (c *Client) FetchPage(ctx context.Context, query string, pageSize, page int) (domain.SearchPage, error) {
	pageSize = min(max(pageSize, 1), domain.MaxRemotePageSize)

	params := url.Values{}
	params.Set("q", query)
	params.Set("per_page", strconv.Itoa(pageSize))
	params.Set("page", strconv.Itoa(page))

	var resp searchResponse
	if err := c.makeRequest(ctx, "/search/repositories?"+params.Encode(), &resp); err != nil {
		return domain.SearchPage{}, err
	}
	if resp.IncompleteResults {
		c.log.Warn().Str("query", query).Int("page", page).Msg("search returned incomplete results")
	}

	items := make([]domain.Repository, 0, len(resp.Items))
	for _, item := range resp.Items {
		items = append(items, item.toDomain())
	}
	return domain.SearchPage{
		Items:      items,
		TotalCount: resp.TotalCount,
		Incomplete: resp.IncompleteResults,
	}, nil
}

// makeRequest executes an authenticated GET against the REST API and decodes
// the JSON body into out.
func (c *Client) makeRequest(ctx context.Context, path string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	req.Header.Set("User-Agent", userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	c.log.Debug().
		Str("path", path).
		Int("status", resp.StatusCode).
		Str("remaining", resp.Header.Get("X-RateLimit-Remaining")).
		Dur("elapsed", time.Since(start)).
		Msg("github request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := newAPIError(resp)
		if apiErr.RateLimited {
			c.log.Warn().Time("reset_at", apiErr.ResetAt).Msg("github rate limit hit")
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode search response: %w", err)
	}
	return nil
}

type searchResponse struct {
	TotalCount        int              `json:"total_count"`
	IncompleteResults bool             `json:"incomplete_results"`
	Items             []restRepository `json:"items"`
}

type restRepository struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	Owner    struct {
		Login string `json:"login"`
	} `json:"owner"`
	HTMLURL     string    `json:"html_url"`
	Language    string    `json:"language"`
	Forks       int       `json:"forks_count"`
	Stars       int       `json:"stargazers_count"`
	UpdatedAt   time.Time `json:"updated_at"`
	Description string    `json:"description"`
	License     *struct {
		Key    string `json:"key"`
		Name   string `json:"name"`
		SPDXID string `json:"spdx_id"`
	} `json:"license"`
}

func (r restRepository) toDomain() domain.Repository {
	repo := domain.Repository{
		ID:          r.ID,
		Name:        r.Name,
		FullName:    r.FullName,
		Owner:       r.Owner.Login,
		URL:         r.HTMLURL,
		Language:    r.Language,
		Forks:       r.Forks,
		Stars:       r.Stars,
		UpdatedAt:   r.UpdatedAt,
		Description: r.Description,
	}
	if r.License != nil {
		repo.License = &domain.License{Key: r.License.Key, Name: r.License.Name, SPDXID: r.License.SPDXID}
	}
	return repo
}

// newHTTPClient wraps the transport with retries on connection errors and
// 5xx responses. Rate-limit responses are returned immediately: waiting out
// a search quota reset is the user's call.
func newHTTPClient(opts Options) *http.Client {
	retryClient := retryablehttp.NewClient()
	if opts.HTTPClient != nil {
		retryClient.HTTPClient = opts.HTTPClient
	}
	retryClient.HTTPClient.Timeout = opts.Timeout
	retryClient.RetryMax = opts.RetryMax
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = &retryLogger{log: opts.Logger}
	retryClient.CheckRetry = checkRetry
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return retryClient.StandardClient()
}

func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if resp != nil && (resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests) {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

func newLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
}

// retryLogger implements the retryablehttp.LeveledLogger interface.
type retryLogger struct {
	log zerolog.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Error().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {
	// Per-attempt request lines are too chatty even for debug
}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warn().Fields(keysAndValues).Msg(msg)
}
