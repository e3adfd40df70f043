// Package tui provides the Bubble Tea model for the interactive search screen.
package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/neekit95/gh-search/internal/search"
)

// snapshotMsg carries a state update published by the search session.
type snapshotMsg struct {
	snap search.Snapshot
}

// sessionClosedMsg is emitted when the session's update channel closes.
type sessionClosedMsg struct{}

// ErrorMsg is emitted when an action fails; it is shown as a toast.
type ErrorMsg struct {
	Err error
}

// waitForSnapshot blocks on the next session update.
func waitForSnapshot(updates <-chan search.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-updates
		if !ok {
			return sessionClosedMsg{}
		}
		return snapshotMsg{snap: snap}
	}
}
