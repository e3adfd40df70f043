package gh

import (
	"context"
	"fmt"

	"github.com/neekit95/gh-search/internal/domain"
)

// Backend names accepted by Open.
const (
	BackendREST    = "rest"
	BackendGraphQL = "graphql"
)

// Searcher fetches one remote page of repository search results.
type Searcher interface {
	FetchPage(ctx context.Context, query string, pageSize, page int) (domain.SearchPage, error)
}

// Open returns the search client for backend.
func Open(backend string, opts Options) (Searcher, error) {
	switch backend {
	case "", BackendREST:
		return New(opts), nil
	case BackendGraphQL:
		client, err := NewGraphQL(opts)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	return nil, fmt.Errorf("unknown backend %q (want %s or %s)", backend, BackendREST, BackendGraphQL)
}
