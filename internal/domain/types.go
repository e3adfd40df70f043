// Package domain defines the normalized domain types for GitHub repository search.
// These types represent the core concepts independent of the REST or GraphQL payload shapes.
package domain

import "time"

// Repository represents one repository returned by the search endpoint.
type Repository struct {
	ID          int64     // GitHub numeric repository ID (stable across pages)
	Name        string    // Short repository name (e.g., "bubbletea")
	FullName    string    // nameWithOwner (e.g., "charmbracelet/bubbletea")
	Owner       string    // Owner login
	URL         string    // HTML URL of the repository
	Language    string    // Primary language, empty if GitHub could not detect one
	Forks       int       // Fork count
	Stars       int       // Stargazer count
	UpdatedAt   time.Time // Last update timestamp
	Description string    // Free-text description, may be empty
	License     *License  // License reference, nil if the repository has none
}

// License represents the license reference attached to a repository.
type License struct {
	Key    string // GitHub license key (e.g., "mit")
	Name   string // Display name (e.g., "MIT License")
	SPDXID string // SPDX identifier (e.g., "MIT")
}

// LicenseName returns the SPDX identifier when available, falling back to the display name.
func (r Repository) LicenseName() string {
	if r.License == nil {
		return ""
	}
	if r.License.SPDXID != "" && r.License.SPDXID != "NOASSERTION" {
		return r.License.SPDXID
	}
	return r.License.Name
}

// SearchPage is one remote page of search results.
type SearchPage struct {
	Items      []Repository // Items in remote order
	TotalCount int          // Total-count hint reported by the endpoint
	Incomplete bool         // True when the endpoint timed out and returned partial results
	// RawCount is the number of results the endpoint returned before unusable
	// ones were dropped. Zero means len(Items).
	RawCount int
}

// Count returns the number of results the endpoint returned for this page.
// Short-page detection must use it rather than len(Items).
func (p SearchPage) Count() int {
	return max(p.RawCount, len(p.Items))
}

// MaxSearchResults is the number of results GitHub search exposes for a single query.
// Pages beyond this offset are rejected by the API.
const MaxSearchResults = 1000

// MaxRemotePageSize is the largest per_page value accepted by the search endpoint.
const MaxRemotePageSize = 100
