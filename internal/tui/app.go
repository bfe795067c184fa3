// Package tui implements the interactive browser behind `rve inspect
// --interactive`: a Bubbletea program that walks the hydrated VFS tree and
// shows ELF program-header summaries for files that parse as RISC-V images.
package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/friscy/rve/internal/tui/screens"
	"github.com/friscy/rve/internal/vfs"
)

// App is the top-level Bubbletea model holding a screen stack.
type App struct {
	stack  []tea.Model
	width  int
	height int
}

// NewApp opens an interactive browser rooted at vfs.RootID.
func NewApp(fs *vfs.FS) App {
	return App{
		stack: []tea.Model{screens.NewBrowserScreen(fs, vfs.RootID, "/")},
	}
}

func (a App) Init() tea.Cmd {
	if len(a.stack) > 0 {
		return a.stack[len(a.stack)-1].Init()
	}
	return nil
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		for i, s := range a.stack {
			updated, _ := s.Update(msg)
			a.stack[i] = updated
		}
		return a, nil

	case screens.PushScreenMsg:
		a.stack = append(a.stack, msg.Screen)
		sized, cmd := msg.Screen.Update(tea.WindowSizeMsg{Width: a.width, Height: a.height})
		a.stack[len(a.stack)-1] = sized
		initCmd := a.stack[len(a.stack)-1].Init()
		return a, tea.Batch(cmd, initCmd)

	case screens.PopScreenMsg:
		if len(a.stack) <= 1 {
			return a, tea.Quit
		}
		a.stack = a.stack[:len(a.stack)-1]
		return a, nil

	case tea.KeyMsg:
		if len(a.stack) == 1 {
			switch msg.String() {
			case "ctrl+c":
				return a, tea.Quit
			}
		}
	}

	if len(a.stack) > 0 {
		active := a.stack[len(a.stack)-1]
		updated, cmd := active.Update(msg)
		a.stack[len(a.stack)-1] = updated
		return a, cmd
	}

	return a, nil
}

func (a App) View() string {
	if len(a.stack) > 0 {
		return a.stack[len(a.stack)-1].View()
	}
	return ""
}

// StackLen returns the number of screens on the stack (for testing).
func (a App) StackLen() int {
	return len(a.stack)
}
