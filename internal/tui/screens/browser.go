package screens

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/friscy/rve/internal/elfload"
	"github.com/friscy/rve/internal/vfs"
)

type browserKeyMap struct {
	Up   key.Binding
	Down key.Binding
	Open key.Binding
	Back key.Binding
	Help key.Binding
	Quit key.Binding
}

func (k browserKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Open, k.Back, k.Help}
}

func (k browserKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down},
		{k.Open, k.Back},
		{k.Help, k.Quit},
	}
}

// BrowserScreen walks the hydrated VFS tree starting at dirID, descending
// into subdirectories and showing an ELF header summary for regular files
// that parse as RISC-V images.
type BrowserScreen struct {
	fs     *vfs.FS
	dirID  vfs.EntryID
	path   string
	names  []string
	ids    []vfs.EntryID
	cursor int
	detail string // non-empty when showing a file's ELF summary instead of listing
	keys   browserKeyMap
	help   help.Model
	width  int
}

// NewBrowserScreen opens fs at dirID (typically vfs.RootID) with path as the
// display label for that directory.
func NewBrowserScreen(fs *vfs.FS, dirID vfs.EntryID, path string) BrowserScreen {
	m := BrowserScreen{
		fs:    fs,
		dirID: dirID,
		path:  path,
		keys: browserKeyMap{
			Up:   key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
			Down: key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
			Open: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open")),
			Back: key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
			Help: key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "more")),
			Quit: key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		},
		help: help.New(),
	}
	m.reload()
	return m
}

func (m *BrowserScreen) reload() {
	entry := m.fs.Get(m.dirID)
	m.names = m.names[:0]
	m.ids = m.ids[:0]
	for name := range entry.Children {
		m.names = append(m.names, name)
	}
	sort.Strings(m.names)
	for _, name := range m.names {
		m.ids = append(m.ids, entry.Children[name])
	}
}

func (m BrowserScreen) Init() tea.Cmd { return nil }

func (m BrowserScreen) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		if m.detail != "" {
			switch {
			case key.Matches(msg, m.keys.Back):
				m.detail = ""
			case key.Matches(msg, m.keys.Quit):
				return m, tea.Quit
			}
			return m, nil
		}

		switch {
		case key.Matches(msg, m.keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, m.keys.Down):
			if m.cursor < len(m.names)-1 {
				m.cursor++
			}
		case key.Matches(msg, m.keys.Open):
			if len(m.names) == 0 {
				return m, nil
			}
			id := m.ids[m.cursor]
			entry := m.fs.Get(id)
			childPath := m.path
			if !strings.HasSuffix(childPath, "/") {
				childPath += "/"
			}
			childPath += m.names[m.cursor]
			if entry.Type == vfs.TypeDir {
				return m, pushScreen(NewBrowserScreen(m.fs, id, childPath))
			}
			m.detail = describeFile(m.fs, id, childPath)
		case key.Matches(msg, m.keys.Back):
			return m, popScreen()
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		}
	}
	return m, nil
}

func describeFile(fs *vfs.FS, id vfs.EntryID, path string) string {
	raw, errno := fs.ReadAll(id)
	if errno != 0 {
		return fmt.Sprintf("%s\n\ncould not read: errno %d", path, errno)
	}
	img, err := elfload.Parse(raw)
	if err != nil {
		return fmt.Sprintf("%s\n\n%d bytes, not a RISC-V ELF (%s)", path, len(raw), err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", path)
	fmt.Fprintf(&b, "entry      %#x\n", img.Entry)
	fmt.Fprintf(&b, "dynamic    %v\n", img.Dynamic)
	if img.Interp != "" {
		fmt.Fprintf(&b, "interp     %s\n", img.Interp)
	}
	fmt.Fprintf(&b, "\nPT_LOAD segments:\n")
	for _, seg := range img.Segments() {
		fmt.Fprintf(&b, "  vaddr=%#010x memsz=%#x flags=%s\n", seg.Vaddr, seg.Memsz, flagString(seg.Flags))
	}
	return b.String()
}

func flagString(flags uint32) string {
	s := []byte("---")
	if flags&4 != 0 {
		s[0] = 'r'
	}
	if flags&2 != 0 {
		s[1] = 'w'
	}
	if flags&1 != 0 {
		s[2] = 'x'
	}
	return string(s)
}

func (m BrowserScreen) View() string {
	var b strings.Builder

	if m.detail != "" {
		b.WriteString(m.detail)
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Foreground(colorDim).Render("  esc back  •  q quit"))
		return b.String()
	}

	fmt.Fprintf(&b, "  %s\n\n", m.path)

	if len(m.names) == 0 {
		b.WriteString(lipgloss.NewStyle().Foreground(colorDim).Render("  (empty)"))
		b.WriteString("\n")
	}
	for i, name := range m.names {
		entry := m.fs.Get(m.ids[i])
		label := name
		if entry.Type == vfs.TypeDir {
			label += "/"
		}
		if i == m.cursor {
			b.WriteString(lipgloss.NewStyle().Foreground(colorPrimary).Bold(true).Render("  > " + label))
		} else {
			b.WriteString("    " + label)
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}
