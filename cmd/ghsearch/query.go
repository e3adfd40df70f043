package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/muesli/reflow/truncate"
	"github.com/spf13/cobra"

	"github.com/neekit95/gh-search/internal/search"
)

const queryNameWidth = 48

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Run one search and print a page of results",
	Long: `Run one search without the interactive screen and print the requested
page as a table, followed by the result range.

Sorting applies to the repositories fetched so far, the same way it does in
the interactive screen.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().Int("page", 1, "page to print (1-based)")
	queryCmd.Flags().Int("page-size", 0, "rows per page: 10, 20 or 30 (default from config)")
	queryCmd.Flags().String("sort", string(search.SortBestMatch), "sort column: best-match, name, language, forks, stars or updated")
	queryCmd.Flags().String("order", string(search.Descending), "sort order: asc or desc")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	text, err := search.ValidateQuery(strings.Join(args, " "))
	if err != nil {
		return err
	}
	sortFlag, _ := cmd.Flags().GetString("sort")
	key, err := search.ParseSortKey(sortFlag)
	if err != nil {
		return err
	}
	orderFlag, _ := cmd.Flags().GetString("order")
	dir, err := search.ParseSortDirection(orderFlag)
	if err != nil {
		return err
	}
	page, _ := cmd.Flags().GetInt("page")
	pageSize, _ := cmd.Flags().GetInt("page-size")

	cfg, log, closeLog, err := setup(os.Stderr)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	searcher, err := openSearcher(cfg, log)
	if err != nil {
		return err
	}

	engine := search.NewEngine(engineOptions(cfg, log))
	if pageSize != 0 {
		if _, err := engine.SetPageSize(pageSize); err != nil {
			return err
		}
	}
	if err := engine.SetSort(key, dir); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := search.Drain(ctx, engine, searcher, engine.Run(text)); err != nil {
		return err
	}
	if page > 1 {
		req, err := engine.SetPage(page)
		if err != nil {
			return err
		}
		if err := search.Drain(ctx, engine, searcher, req); err != nil {
			return err
		}
	}
	if err := engine.Err(); err != nil {
		return fmt.Errorf("search %q: %w", text, err)
	}

	printResults(cmd.OutOrStdout(), engine.Snapshot())
	return nil
}

// printResults writes the snapshot's rows as a table followed by the range
// and page position.
func printResults(w io.Writer, snap search.Snapshot) {
	if snap.Phase == search.PhaseEmpty || len(snap.Rows) == 0 {
		fmt.Fprintln(w, "Nothing found.")
		return
	}

	rows := make([][]string, 0, len(snap.Rows))
	for _, row := range snap.Rows {
		repo := row.Repository
		language := repo.Language
		if language == "" {
			language = "-"
		}
		rows = append(rows, []string{
			truncate.StringWithTail(repo.FullName, queryNameWidth, "…"),
			language,
			strconv.Itoa(repo.Stars),
			strconv.Itoa(repo.Forks),
			repo.UpdatedAt.Format("2006-01-02"),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderColumn(false).
		Headers("Repository", "Language", "Stars", "Forks", "Updated").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			style := lipgloss.NewStyle().Padding(0, 1)
			if row == table.HeaderRow {
				return style.Bold(true)
			}
			return style
		})
	fmt.Fprintln(w, t.Render())

	total := max(snap.TotalHint, snap.TotalKnown)
	pages := strconv.Itoa(snap.PageCount)
	if snap.HasNext && snap.Page >= snap.PageCount {
		pages += "+"
	}
	fmt.Fprintf(w, "%d - %d of %d | page %d/%s | sort: %s %s\n",
		snap.RangeStart, snap.RangeEnd, total, snap.Page, pages, snap.SortKey, snap.Direction)
}
