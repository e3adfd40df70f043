package tui

import (
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/neekit95/gh-search/internal/search"
)

var sortDescriptions = map[search.SortKey]string{
	search.SortBestMatch: "Order returned by GitHub",
	search.SortName:      "Repository name",
	search.SortLanguage:  "Primary language",
	search.SortForks:     "Fork count",
	search.SortStars:     "Stargazer count",
	search.SortUpdated:   "Last update",
}

// sortItem wraps a search.SortKey for use in bubbles/list.
type sortItem struct {
	key     search.SortKey
	current bool
}

func (i sortItem) FilterValue() string { return string(i.key) }
func (i sortItem) Title() string       { return string(i.key) }
func (i sortItem) Description() string { return sortDescriptions[i.key] }

// sortDelegate renders sort items on two lines.
type sortDelegate struct{}

func (d sortDelegate) Height() int                             { return 2 }
func (d sortDelegate) Spacing() int                            { return 0 }
func (d sortDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }
func (d sortDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	i, ok := item.(sortItem)
	if !ok {
		return
	}

	str := i.Title()
	if i.current {
		str += " " + selectedMarker
	}

	if index == m.Index() {
		fmt.Fprint(w, CursorStyle.Render("> "+str))
	} else {
		fmt.Fprint(w, NormalItemStyle.Render("  "+str))
	}
	fmt.Fprint(w, "\n    "+DimStyle.Render(i.Description()))
}

// sortChosenMsg is emitted when a sort column is picked.
type sortChosenMsg struct {
	Key search.SortKey
}

// sortPickerClosedMsg is emitted when the picker is dismissed without a choice.
type sortPickerClosedMsg struct{}

// SortPickerModel lists the sort columns, starting on the current one.
type SortPickerModel struct {
	list list.Model
}

// NewSortPickerModel creates a picker sized to width x height.
func NewSortPickerModel(current search.SortKey, width, height int) SortPickerModel {
	items := make([]list.Item, len(search.SortKeys))
	start := 0
	for i, k := range search.SortKeys {
		items[i] = sortItem{key: k, current: k == current}
		if k == current {
			start = i
		}
	}

	l := list.New(items, sortDelegate{}, width, height)
	l.Title = "Sort by"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)
	l.Styles.Title = TitleStyle
	l.Select(start)

	return SortPickerModel{list: l}
}

// Update handles a key while the picker is open.
func (m SortPickerModel) Update(msg tea.KeyMsg) (SortPickerModel, tea.Cmd) {
	switch msg.String() {
	case "q", "esc", "s":
		return m, func() tea.Msg {
			return sortPickerClosedMsg{}
		}
	case "enter", " ":
		if item, ok := m.list.SelectedItem().(sortItem); ok {
			return m, func() tea.Msg {
				return sortChosenMsg{Key: item.key}
			}
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the picker.
func (m SortPickerModel) View() string {
	return m.list.View()
}
