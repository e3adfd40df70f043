package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/neekit95/gh-search/internal/auth"
	"github.com/neekit95/gh-search/internal/config"
	"github.com/neekit95/gh-search/internal/gh"
	"github.com/neekit95/gh-search/internal/logging"
	"github.com/neekit95/gh-search/internal/search"
	"github.com/neekit95/gh-search/internal/tui"
)

// configErr holds a config file read failure; commands report it once they run.
var configErr error

var rootCmd = &cobra.Command{
	Use:   "ghsearch [query]",
	Short: "Incremental GitHub repository search in the terminal",
	Long: `ghsearch searches GitHub repositories as you type.

Results are fetched in large batches and paged, sorted and selected locally,
so moving through pages rarely costs a request.

Authentication (optional for the REST backend, required for graphql):
  1. token in the config file
  2. GH_TOKEN or GITHUB_TOKEN environment variable
  3. GitHub CLI: run 'gh auth login'

Settings come from the config file, GHSEARCH_* environment variables and flags.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runTUI,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default $XDG_CONFIG_HOME/ghsearch/config.toml)")
	flags.String("backend", "", "search backend: rest or graphql")
	flags.String("log-level", "", "log level: trace, debug, info, warn or error")
	flags.String("log-file", "", "append JSON logs to this file")
	bindFlags()
}

// bindFlags lets the root flags override config file and environment values.
func bindFlags() {
	flags := rootCmd.PersistentFlags()
	_ = viper.BindPFlag("backend", flags.Lookup("backend"))
	_ = viper.BindPFlag("log_level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("log_file", flags.Lookup("log-file"))
}

func initConfig() {
	configErr = nil
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	explicit := cfgFile != ""
	if !explicit {
		path, err := config.DefaultPath()
		if err == nil {
			cfgFile = path
		}
	}
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	viper.SetEnvPrefix(config.EnvPrefix)
	viper.AutomaticEnv()

	// A missing default file is fine; defaults apply.
	if err := viper.ReadInConfig(); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			configErr = fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	}
}

// setup loads the configuration and builds the logger. console receives
// human-readable logs when no log file is configured; pass nil to discard them.
func setup(console io.Writer) (config.Config, zerolog.Logger, func() error, error) {
	if configErr != nil {
		return config.Config{}, zerolog.Nop(), nil, configErr
	}
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, zerolog.Nop(), nil, err
	}
	log, closeLog, err := logging.New(logging.Options{
		Level:   cfg.LogLevel,
		File:    cfg.LogFile,
		Console: console,
	})
	if err != nil {
		return config.Config{}, zerolog.Nop(), nil, err
	}
	return cfg, log, closeLog, nil
}

// openSearcher resolves a token and opens the configured backend. Without a
// token the REST backend searches anonymously at the lower rate limit.
func openSearcher(cfg config.Config, log zerolog.Logger) (gh.Searcher, error) {
	token, err := auth.GetToken(cfg.Token)
	if err != nil {
		if cfg.Backend == gh.BackendGraphQL {
			return nil, fmt.Errorf("graphql backend: %w", err)
		}
		log.Warn().Err(err).Msg("no GitHub token found, searching anonymously")
	}

	searcher, err := gh.Open(cfg.Backend, gh.Options{
		BaseURL:           cfg.APIURL,
		GraphQLURL:        cfg.GraphQLURL,
		Token:             token,
		Timeout:           cfg.Timeout,
		RetryMax:          cfg.RetryMax,
		RequestsPerMinute: cfg.RequestsPerMinute,
		Logger:            log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub client: %w", err)
	}
	log.Debug().
		Str("backend", cfg.Backend).
		Bool("authenticated", token != "").
		Msg("search client ready")
	return searcher, nil
}

func engineOptions(cfg config.Config, log zerolog.Logger) search.Options {
	return search.Options{
		RemotePageSize: cfg.RemotePageSize,
		MaxResults:     cfg.MaxResults,
		PageSize:       cfg.PageSize,
		Logger:         log,
	}
}

// runTUI starts the interactive search screen, optionally running the query
// given on the command line.
func runTUI(cmd *cobra.Command, args []string) error {
	// The alternate screen owns the terminal, so logs only go to a file.
	cfg, log, closeLog, err := setup(nil)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	searcher, err := openSearcher(cfg, log)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session := search.NewSession(ctx, search.NewEngine(engineOptions(cfg, log)), searcher,
		search.WithQuietWindow(cfg.Debounce),
		search.WithLogger(log),
	)
	defer session.Close()

	app := tui.NewAppModel(session, strings.Join(args, " "))

	p := tea.NewProgram(app, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("program error: %w", err)
	}
	return nil
}
