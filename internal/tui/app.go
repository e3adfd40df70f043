package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/browser"

	"github.com/neekit95/gh-search/internal/search"
)

// Session is the part of *search.Session the TUI drives.
type Session interface {
	Submit(text string)
	Flush()
	Retry() error
	SetPageSize(n int) error
	NextPage() error
	PrevPage() error
	SetSort(key search.SortKey, dir search.SortDirection) error
	ToggleSelect(id int64) error
	Snapshot() search.Snapshot
	Updates() <-chan search.Snapshot
}

// Focus is the component receiving key input.
type Focus int

const (
	FocusInput Focus = iota
	FocusResults
)

// AppModel is the root Bubble Tea model: a query input above a results
// table, a detail pane for the selected repository, and a status footer.
// All search state lives in the session; the model only keeps the latest
// snapshot and a cursor into its rows.
type AppModel struct {
	// Dependencies
	session Session
	openURL func(string) error

	// UI components
	keymap  KeyMap
	help    HelpModel
	spinner spinner.Model
	input   textinput.Model
	picker  *SortPickerModel // Non-nil while the sort picker is open

	// View state
	snap       search.Snapshot
	focus      Focus
	cursor     int // Row index within snap.Rows
	width      int
	height     int
	showHelp   bool
	errorToast string
	initial    string
}

// NewAppModel creates the search screen. A non-empty initialQuery is run
// immediately.
func NewAppModel(session Session, initialQuery string) AppModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	ti := textinput.New()
	ti.Placeholder = "Search GitHub repositories..."
	ti.Prompt = PromptStyle.Render("> ")
	ti.CharLimit = 256
	ti.SetValue(initialQuery)
	ti.Focus()

	return AppModel{
		session: session,
		openURL: browser.OpenURL,
		keymap:  DefaultKeyMap(),
		help:    NewHelpModel(DefaultKeyMap()),
		spinner: sp,
		input:   ti,
		snap:    session.Snapshot(),
		initial: strings.TrimSpace(initialQuery),
	}
}

// Init starts listening for session updates and runs the initial query.
func (m AppModel) Init() tea.Cmd {
	if m.initial != "" {
		m.session.Submit(m.initial)
		m.session.Flush()
	}
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		waitForSnapshot(m.session.Updates()),
	)
}

// Update handles messages
func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = max(msg.Width-4, 10)
		return m, nil

	case snapshotMsg:
		(&m).applySnapshot(msg.snap)
		return m, waitForSnapshot(m.session.Updates())

	case sessionClosedMsg:
		return m, tea.Quit

	case ErrorMsg:
		m.errorToast = msg.Err.Error()
		return m, nil

	case sortChosenMsg:
		m.picker = nil
		cmd := (&m).act(m.session.SetSort(msg.Key, m.snap.Direction))
		return m, cmd

	case sortPickerClosedMsg:
		m.picker = nil
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKeyPress(msg)
	}

	if m.focus == FocusInput {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

// handleKeyPress processes keyboard input
func (m AppModel) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keymap.ForceQuit) {
		return m, tea.Quit
	}

	// Help overlay
	if m.showHelp {
		if msg.String() == "?" || msg.String() == "q" || msg.String() == "esc" {
			m.showHelp = false
		}
		return m, nil
	}

	if m.picker != nil {
		picker, cmd := m.picker.Update(msg)
		m.picker = &picker
		return m, cmd
	}

	if m.focus == FocusInput {
		return m.handleInputKey(msg)
	}
	return m.handleResultsKey(msg)
}

// handleInputKey feeds the query input. Every edit goes through the
// session's debounce gate; enter skips the quiet window.
func (m AppModel) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.session.Submit(m.input.Value())
		m.session.Flush()
		(&m).setFocus(FocusResults)
		return m, nil
	case "tab", "esc":
		(&m).setFocus(FocusResults)
		return m, nil
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if value := m.input.Value(); value != before {
		m.errorToast = ""
		m.session.Submit(value)
	}
	return m, cmd
}

// handleResultsKey handles navigation and actions over the results table.
func (m AppModel) handleResultsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.errorToast = ""

	var cmd tea.Cmd
	switch {
	case key.Matches(msg, m.keymap.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keymap.Help):
		m.showHelp = true
	case key.Matches(msg, m.keymap.Focus):
		(&m).setFocus(FocusInput)
		cmd = textinput.Blink
	case key.Matches(msg, m.keymap.Up):
		(&m).moveCursor(-1)
	case key.Matches(msg, m.keymap.Down):
		(&m).moveCursor(1)
	case key.Matches(msg, m.keymap.PrevPage):
		cmd = (&m).act(m.session.PrevPage())
	case key.Matches(msg, m.keymap.NextPage):
		cmd = (&m).act(m.session.NextPage())
	case key.Matches(msg, m.keymap.Select):
		if row, ok := m.cursorRow(); ok {
			cmd = (&m).act(m.session.ToggleSelect(row.Repository.ID))
		}
	case key.Matches(msg, m.keymap.Sort):
		(&m).openSortPicker()
	case key.Matches(msg, m.keymap.Direction):
		cmd = (&m).act(m.session.SetSort(m.snap.SortKey, flipDirection(m.snap.Direction)))
	case key.Matches(msg, m.keymap.PageSize):
		size := search.PageSizes[int(msg.Runes[0]-'1')]
		cmd = (&m).act(m.session.SetPageSize(size))
	case key.Matches(msg, m.keymap.Retry):
		cmd = (&m).act(m.session.Retry())
	case key.Matches(msg, m.keymap.Open):
		cmd = m.openRepository()
	}
	return m, cmd
}

// act refreshes the snapshot after a synchronous session operation and
// turns a failure into a toast.
func (m *AppModel) act(err error) tea.Cmd {
	m.applySnapshot(m.session.Snapshot())
	if err != nil {
		return func() tea.Msg { return ErrorMsg{Err: err} }
	}
	return nil
}

// openRepository opens the selected repository, or the one under the cursor.
func (m AppModel) openRepository() tea.Cmd {
	url := ""
	if m.snap.SelectedItem != nil {
		url = m.snap.SelectedItem.URL
	} else if row, ok := m.cursorRow(); ok {
		url = row.Repository.URL
	}
	if url == "" {
		return nil
	}
	open := m.openURL
	return func() tea.Msg {
		if err := open(url); err != nil {
			return ErrorMsg{Err: fmt.Errorf("open %s: %w", url, err)}
		}
		return nil
	}
}

func (m *AppModel) applySnapshot(snap search.Snapshot) {
	pageChanged := snap.Query != m.snap.Query || snap.Page != m.snap.Page
	m.snap = snap
	if pageChanged {
		m.cursor = 0
	}
	m.cursor = max(0, min(m.cursor, len(snap.Rows)-1))
}

func (m *AppModel) setFocus(f Focus) {
	m.focus = f
	if f == FocusInput {
		m.input.Focus()
	} else {
		m.input.Blur()
	}
}

func (m *AppModel) moveCursor(delta int) {
	if len(m.snap.Rows) == 0 {
		return
	}
	m.cursor = max(0, min(m.cursor+delta, len(m.snap.Rows)-1))
}

func (m AppModel) cursorRow() (search.Row, bool) {
	if m.cursor < 0 || m.cursor >= len(m.snap.Rows) {
		return search.Row{}, false
	}
	return m.snap.Rows[m.cursor], true
}

func (m *AppModel) openSortPicker() {
	width, height := m.screenSize()
	picker := NewSortPickerModel(m.snap.SortKey, width, bodyHeight(height))
	m.picker = &picker
}

func flipDirection(dir search.SortDirection) search.SortDirection {
	if dir == search.Ascending {
		return search.Descending
	}
	return search.Ascending
}

// screenSize returns the terminal size, with a fallback before the first
// WindowSizeMsg arrives.
func (m AppModel) screenSize() (int, int) {
	width, height := m.width, m.height
	if width == 0 {
		width = 100
	}
	if height == 0 {
		height = 30
	}
	return width, height
}

// bodyHeight leaves room for the header, input, footer and hint lines.
func bodyHeight(height int) int {
	return max(height-5, 5)
}

// View renders the whole screen.
func (m AppModel) View() string {
	width, height := m.screenSize()

	sections := []string{
		m.renderHeader(width),
		m.input.View(),
	}

	switch {
	case m.showHelp:
		sections = append(sections, m.help.View(width))
	case m.picker != nil:
		sections = append(sections, m.picker.View())
	default:
		sections = append(sections, m.renderBody(width, bodyHeight(height)))
	}

	sections = append(sections, m.renderFooter(width), DimStyle.Render(m.help.ShortView(width)))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// renderHeader renders the title on the left and the session status on the right.
func (m AppModel) renderHeader(width int) string {
	title := TitleStyle.Render("gh-search")

	var status string
	switch {
	case m.snap.Phase == search.PhaseLoading:
		status = m.spinner.View() + " searching"
	case m.snap.FetchingMore:
		status = m.spinner.View() + " loading more"
	case m.snap.Phase == search.PhaseSucceeded && m.snap.TotalHint > 0:
		status = fmt.Sprintf("%d repositories", m.snap.TotalHint)
	}

	padding := max(width-lipgloss.Width(title)-lipgloss.Width(status)-1, 1)
	return title + strings.Repeat(" ", padding) + DimStyle.Render(status)
}
