package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"

	"github.com/neekit95/gh-search/internal/domain"
	"github.com/neekit95/gh-search/internal/search"
)

// Layout constants
const (
	detailWidth     = 38 // Outer width of the detail pane
	minSideBySide   = 100
	nameColumnWidth = 36
	langColumnWidth = 12
	dateLayout      = "2006-01-02"
	selectedMarker  = "●"
	cursorMarker    = "›"
)

const (
	idleMessage  = "Type to search GitHub repositories."
	emptyMessage = "Nothing found. Try another search."
	detailHint   = "Select a repository (space) to see its details."
)

// renderBody renders the results area: a status message, or the table with
// the detail pane beside it (or below it on narrow terminals).
func (m AppModel) renderBody(width, height int) string {
	snap := m.snap

	switch {
	case snap.Phase == search.PhaseIdle:
		return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, DimStyle.Render(idleMessage))
	case len(snap.Rows) == 0 && (snap.Phase == search.PhaseLoading || snap.FetchingMore):
		return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, m.spinner.View()+" Searching...")
	case snap.Phase == search.PhaseEmpty:
		return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, emptyMessage)
	case snap.Phase == search.PhaseFailed && len(snap.Rows) == 0:
		msg := ErrorStyle.Render("Search failed: "+snap.ErrorMessage) + "\n\n" + DimStyle.Render("Press r to retry.")
		return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, msg)
	}

	if width < minSideBySide {
		tableView := m.renderTable(width)
		detail := m.renderDetail(width)
		return lipgloss.JoinVertical(lipgloss.Left, tableView, detail)
	}
	tableView := m.renderTable(width - detailWidth - 1)
	return lipgloss.JoinHorizontal(lipgloss.Top, tableView, " ", m.renderDetail(detailWidth))
}

// renderTable renders the current page as a table.
func (m AppModel) renderTable(width int) string {
	nameWidth := max(min(nameColumnWidth, width-48), 12)

	rows := make([][]string, 0, len(m.snap.Rows))
	for i, row := range m.snap.Rows {
		marker := " "
		switch {
		case row.Selected:
			marker = selectedMarker
		case i == m.cursor && m.focus == FocusResults:
			marker = cursorMarker
		}
		repo := row.Repository
		rows = append(rows, []string{
			marker,
			truncate.StringWithTail(repo.FullName, uint(nameWidth), "…"),
			truncate.StringWithTail(orDash(repo.Language), langColumnWidth, "…"),
			strconv.Itoa(repo.Stars),
			strconv.Itoa(repo.Forks),
			repo.UpdatedAt.Format(dateLayout),
		})
	}

	cursor := m.cursor
	focused := m.focus == FocusResults
	pageRows := m.snap.Rows
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(DimStyle).
		BorderColumn(false).
		Headers("", m.header("Repository", search.SortName), m.header("Language", search.SortLanguage),
			m.header("Stars", search.SortStars), m.header("Forks", search.SortForks), m.header("Updated", search.SortUpdated)).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return HeaderCellStyle
			case row < len(pageRows) && pageRows[row].Selected:
				return SelectedItemStyle.Padding(0, 1)
			case row == cursor && focused:
				return CursorStyle.Padding(0, 1)
			}
			return NormalItemStyle.Padding(0, 1)
		})
	return t.Render()
}

// header labels a column, marking it when it is the active sort key.
func (m AppModel) header(label string, key search.SortKey) string {
	if m.snap.SortKey != key {
		return label
	}
	if m.snap.Direction == search.Ascending {
		return label + " ▲"
	}
	return label + " ▼"
}

// renderDetail renders the selected repository, or a hint when nothing is selected.
func (m AppModel) renderDetail(width int) string {
	inner := max(width-4, 10) // Border and padding
	repo := m.snap.SelectedItem
	if repo == nil {
		return DetailStyle.Width(inner).Render(DimStyle.Render(wordwrap.String(detailHint, inner)))
	}
	return DetailStyle.Width(inner).Render(formatDetail(*repo, inner))
}

// formatDetail lays out every field of repo for the detail pane.
func formatDetail(repo domain.Repository, width int) string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render(truncate.StringWithTail(repo.FullName, uint(width), "…")))
	b.WriteString("\n\n")

	description := repo.Description
	if description == "" {
		description = "No description."
	}
	b.WriteString(wordwrap.String(description, width))
	b.WriteString("\n\n")

	fields := []struct{ label, value string }{
		{"Language", orDash(repo.Language)},
		{"Stars", strconv.Itoa(repo.Stars)},
		{"Forks", strconv.Itoa(repo.Forks)},
		{"License", orDash(repo.LicenseName())},
		{"Updated", repo.UpdatedAt.Format(dateLayout)},
	}
	for _, f := range fields {
		b.WriteString(LabelStyle.Render(f.label))
		b.WriteString(truncate.StringWithTail(f.value, uint(max(width-9, 1)), "…"))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(DimStyle.Render(truncate.StringWithTail(repo.URL, uint(width), "…")))
	return b.String()
}

// renderFooter renders the range label and paging state on the left and the
// sort, page size and toast on the right.
func (m AppModel) renderFooter(width int) string {
	snap := m.snap

	var left []string
	if label := rangeLabel(snap); label != "" {
		left = append(left, label)
	}
	if snap.Phase != search.PhaseIdle {
		left = append(left, pageLabel(snap))
	}

	right := fmt.Sprintf("sort: %s %s | %d per page", snap.SortKey, snap.Direction, snap.PageSize)
	if m.errorToast != "" {
		right = ErrorStyle.Render(m.errorToast)
	} else if snap.Phase == search.PhaseFailed && len(snap.Rows) > 0 {
		right = ErrorStyle.Render("Load failed: "+snap.ErrorMessage) + DimStyle.Render(" (r to retry)")
	}

	leftText := DimStyle.Render(strings.Join(left, " | "))
	padding := max(width-lipgloss.Width(leftText)-lipgloss.Width(right)-1, 1)
	return leftText + strings.Repeat(" ", padding) + right
}

// rangeLabel formats "start - end of total" for the visible window. The total
// is the remote's hint when known, otherwise the number of buffered results.
func rangeLabel(snap search.Snapshot) string {
	if len(snap.Rows) == 0 {
		return ""
	}
	total := snap.TotalKnown
	if snap.TotalHint > total {
		total = snap.TotalHint
	}
	return fmt.Sprintf("%d - %d of %d", snap.RangeStart, snap.RangeEnd, total)
}

// pageLabel formats the page position with arrows for the available directions.
func pageLabel(snap search.Snapshot) string {
	prev, next := " ", " "
	if snap.HasPrev {
		prev = "‹"
	}
	if snap.HasNext {
		next = "›"
	}
	pages := strconv.Itoa(snap.PageCount)
	if snap.HasNext && snap.Page >= snap.PageCount {
		pages += "+"
	}
	return fmt.Sprintf("%s page %d/%s %s", prev, snap.Page, pages, next)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
