// Package auth provides GitHub authentication token discovery.
// Several providers are tried in order; the first one that yields a
// non-empty token wins. Search works anonymously, so callers decide whether
// ErrNoToken is fatal.
package auth

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// ErrNoToken is returned when no provider could supply a token.
var ErrNoToken = errors.New("no GitHub token found")

// TokenProvider defines the interface for obtaining a GitHub authentication token.
// Implementations may use different sources (config, environment, CLI tools).
type TokenProvider interface {
	Name() string
	GetToken() (string, error)
}

// StaticProvider returns a token set explicitly, e.g. from the config file
// or the --token flag.
type StaticProvider struct {
	Token string
}

func (s *StaticProvider) Name() string { return "config" }

func (s *StaticProvider) GetToken() (string, error) {
	token := strings.TrimSpace(s.Token)
	if token == "" {
		return "", errors.New("no token configured")
	}
	return token, nil
}

// EnvProvider obtains tokens from the GH_TOKEN or GITHUB_TOKEN environment
// variables, in that order, matching the gh CLI.
type EnvProvider struct{}

func (e *EnvProvider) Name() string { return "environment" }

// GetToken reads GH_TOKEN, then GITHUB_TOKEN.
func (e *EnvProvider) GetToken() (string, error) {
	for _, key := range []string{"GH_TOKEN", "GITHUB_TOKEN"} {
		if token := strings.TrimSpace(os.Getenv(key)); token != "" {
			return token, nil
		}
	}
	return "", errors.New("GH_TOKEN and GITHUB_TOKEN environment variables not set or empty")
}

// GhCliProvider obtains tokens by shelling out to the GitHub CLI (`gh auth token`).
// This respects the user's gh CLI authentication state.
type GhCliProvider struct {
	// Command is the gh executable (default "gh").
	Command string
}

func (g *GhCliProvider) Name() string { return "gh CLI" }

// GetToken shells out to `gh auth token` to retrieve the current token.
// Returns an error if gh CLI is not installed, not authenticated, or the command fails.
func (g *GhCliProvider) GetToken() (string, error) {
	command := g.Command
	if command == "" {
		command = "gh"
	}
	cmd := exec.Command(command, "auth", "token", "--hostname", "github.com")
	output, err := cmd.Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", errors.New("gh CLI not found in PATH")
		}
		return "", fmt.Errorf("gh auth token failed: %w", err)
	}

	token := strings.TrimSpace(string(output))
	if token == "" {
		return "", errors.New("gh auth token returned empty token")
	}

	return token, nil
}

// DefaultProviders returns the lookup chain: an explicitly configured token,
// then the environment, then the gh CLI.
func DefaultProviders(configured string) []TokenProvider {
	return []TokenProvider{
		&StaticProvider{Token: configured},
		&EnvProvider{},
		&GhCliProvider{},
	}
}

// Resolve tries each provider in order and returns the first token along
// with the provider's name. When all fail the error wraps ErrNoToken and
// lists every provider's reason.
func Resolve(providers ...TokenProvider) (token, source string, err error) {
	reasons := make([]string, 0, len(providers))
	for _, p := range providers {
		token, err := p.GetToken()
		if err == nil {
			return token, p.Name(), nil
		}
		reasons = append(reasons, fmt.Sprintf("%s: %v", p.Name(), err))
	}
	return "", "", fmt.Errorf("%w (%s)", ErrNoToken, strings.Join(reasons, "; "))
}

// GetToken resolves a token through DefaultProviders and returns an
// actionable error when none is available.
func GetToken(configured string) (string, error) {
	token, _, err := Resolve(DefaultProviders(configured)...)
	if err == nil {
		return token, nil
	}
	return "", fmt.Errorf(
		"%w.\n"+
			"Please either:\n"+
			"  1. Run 'gh auth login' to authenticate with GitHub CLI,\n"+
			"  2. Set the GH_TOKEN or GITHUB_TOKEN environment variable, or\n"+
			"  3. Set token in the ghsearch config file",
		err,
	)
}
