package gh

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/machinebox/graphql"
	"github.com/neekit95/gh-search/internal/domain"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// maxCursorQueries bounds how many distinct queries keep their page cursors.
const maxCursorQueries = 32

const searchQuery = `
	query($q: String!, $first: Int!, $after: String) {
		search(query: $q, type: REPOSITORY, first: $first, after: $after) {
			repositoryCount
			pageInfo {
				hasNextPage
				endCursor
			}
			nodes {
				... on Repository {
					databaseId
					name
					nameWithOwner
					owner {
						login
					}
					url
					primaryLanguage {
						name
					}
					forkCount
					stargazerCount
					updatedAt
					description
					licenseInfo {
						key
						name
						spdxId
					}
				}
			}
		}
	}
`

type cursorKey struct {
	query string
	first int
}

// GraphQLClient searches repositories through the GraphQL API.
// GraphQL paginates by cursor, so the client remembers the end cursor of
// every page it served and translates page numbers into cursors. Pages must
// therefore be requested in order, starting at 1.
type GraphQLClient struct {
	gql     *graphql.Client
	token   string
	limiter *rate.Limiter
	log     zerolog.Logger

	mu      sync.Mutex
	cursors map[cursorKey]map[int]string // page -> endCursor; "" marks the last page
}

// NewGraphQL creates a GraphQL search client. GitHub's GraphQL API does not
// accept anonymous requests, so a token is required.
func NewGraphQL(opts Options) (*GraphQLClient, error) {
	if opts.Token == "" {
		return nil, fmt.Errorf("graphql backend: %w", ErrTokenRequired)
	}
	opts = opts.withDefaults()

	httpClient := newHTTPClient(opts)
	httpClient.Transport = &statusTransport{next: httpClient.Transport}

	client := graphql.NewClient(opts.GraphQLURL, graphql.WithHTTPClient(httpClient))
	log := opts.Logger
	client.Log = func(s string) {
		log.Trace().Msg(s)
	}

	return &GraphQLClient{
		gql:     client,
		token:   opts.Token,
		limiter: newLimiter(opts.RequestsPerMinute),
		log:     opts.Logger,
		cursors: make(map[cursorKey]map[int]string),
	}, nil
}

// FetchPage returns one page of search results. Page n > 1 is only available
// after page n-1 was fetched with the same query and page size.
func (c *GraphQLClient) FetchPage(ctx context.Context, query string, pageSize, page int) (domain.SearchPage, error) {
	if page < 1 {
		return domain.SearchPage{}, fmt.Errorf("%w: page %d", ErrCursorUnknown, page)
	}
	key := cursorKey{query: query, first: min(max(pageSize, 1), domain.MaxRemotePageSize)}

	req := graphql.NewRequest(searchQuery)
	req.Var("q", query)
	req.Var("first", key.first)
	if page > 1 {
		after, ok := c.cursor(key, page-1)
		if !ok {
			return domain.SearchPage{}, fmt.Errorf("%w: page %d of %q", ErrCursorUnknown, page, query)
		}
		if after == "" {
			// Previous page was the last one
			return domain.SearchPage{}, nil
		}
		req.Var("after", after)
	}

	var resp struct {
		Search struct {
			RepositoryCount int `json:"repositoryCount"`
			PageInfo        struct {
				HasNextPage bool   `json:"hasNextPage"`
				EndCursor   string `json:"endCursor"`
			} `json:"pageInfo"`
			Nodes []graphqlRepository `json:"nodes"`
		} `json:"search"`
	}

	if err := c.makeRequest(ctx, req, &resp); err != nil {
		return domain.SearchPage{}, err
	}

	end := ""
	if resp.Search.PageInfo.HasNextPage {
		end = resp.Search.PageInfo.EndCursor
	}
	c.remember(key, page, end)

	items := make([]domain.Repository, 0, len(resp.Search.Nodes))
	for _, node := range resp.Search.Nodes {
		if node.DatabaseID == 0 {
			continue
		}
		items = append(items, node.toDomain())
	}

	c.log.Debug().
		Str("query", query).
		Int("page", page).
		Int("received", len(resp.Search.Nodes)).
		Int("usable", len(items)).
		Bool("has_next", resp.Search.PageInfo.HasNextPage).
		Msg("graphql search page")

	return domain.SearchPage{
		Items:      items,
		TotalCount: resp.Search.RepositoryCount,
		RawCount:   len(resp.Search.Nodes),
	}, nil
}

// makeRequest executes a GraphQL request with authentication.
// This is a helper method to avoid repeating the authorization header setup.
func (c *GraphQLClient) makeRequest(ctx context.Context, req *graphql.Request, resp any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("User-Agent", userAgent)

	err := c.gql.Run(ctx, req, resp)
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	// GitHub reports primary rate limiting as a GraphQL error with status 200
	if strings.Contains(strings.ToLower(err.Error()), "rate limit") {
		return &APIError{StatusCode: http.StatusOK, Message: err.Error(), RateLimited: true}
	}
	return fmt.Errorf("graphql search: %w", err)
}

func (c *GraphQLClient) cursor(key cursorKey, page int) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cursor, ok := c.cursors[key][page]
	return cursor, ok
}

func (c *GraphQLClient) remember(key cursorKey, page int, cursor string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pages, ok := c.cursors[key]
	if !ok {
		if len(c.cursors) >= maxCursorQueries {
			clear(c.cursors)
		}
		pages = make(map[int]string)
		c.cursors[key] = pages
	}
	pages[page] = cursor
}

type graphqlRepository struct {
	DatabaseID    int64  `json:"databaseId"`
	Name          string `json:"name"`
	NameWithOwner string `json:"nameWithOwner"`
	Owner         struct {
		Login string `json:"login"`
	} `json:"owner"`
	URL             string `json:"url"`
	PrimaryLanguage *struct {
		Name string `json:"name"`
	} `json:"primaryLanguage"`
	ForkCount      int       `json:"forkCount"`
	StargazerCount int       `json:"stargazerCount"`
	UpdatedAt      time.Time `json:"updatedAt"`
	Description    string    `json:"description"`
	LicenseInfo    *struct {
		Key    string `json:"key"`
		Name   string `json:"name"`
		SPDXID string `json:"spdxId"`
	} `json:"licenseInfo"`
}

func (r graphqlRepository) toDomain() domain.Repository {
	repo := domain.Repository{
		ID:          r.DatabaseID,
		Name:        r.Name,
		FullName:    r.NameWithOwner,
		Owner:       r.Owner.Login,
		URL:         r.URL,
		Forks:       r.ForkCount,
		Stars:       r.StargazerCount,
		UpdatedAt:   r.UpdatedAt,
		Description: r.Description,
	}
	if r.PrimaryLanguage != nil {
		repo.Language = r.PrimaryLanguage.Name
	}
	if r.LicenseInfo != nil {
		repo.License = &domain.License{Key: r.LicenseInfo.Key, Name: r.LicenseInfo.Name, SPDXID: r.LicenseInfo.SPDXID}
	}
	return repo
}

// statusTransport turns non-2xx responses into *APIError. The GraphQL client
// otherwise tries to decode error bodies as query results.
type statusTransport struct {
	next http.RoundTripper
}

func (t *statusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return resp, nil
	}
	defer resp.Body.Close()
	return nil, newAPIError(resp)
}
