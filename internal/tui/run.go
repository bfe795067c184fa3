package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/friscy/rve/internal/vfs"
)

// RunBrowser launches the interactive VFS/ELF browser against fs and blocks
// until the user quits.
func RunBrowser(fs *vfs.FS) error {
	p := tea.NewProgram(NewApp(fs), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
