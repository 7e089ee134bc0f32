// Package console implements the optional interactive GDB console
// (spec.md §4.8 "openGdbConsole"): a scrollback of raw MI/CLI traffic
// plus a prompt for typing commands straight through to GDB, bypassing
// the request translator entirely.
//
// Grounded in shape on the teacher's internal/ui package: the same
// lipgloss color theme and style vocabulary (styles.go), rebuilt here
// as a bubbletea Model (Init/Update/View) rather than a bare readline
// loop, since a live two-way console needs to redraw as asynchronous
// GDB output arrives. The bubbletea wiring idiom itself (tea.NewProgram
// with tea.WithAltScreen) is grounded on cmd/cliche/chat.go's
// runInteractive, the teacher's only call site that actually launches a
// bubbletea program.
package console

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Theme mirrors the teacher's ui.Theme palette.
type Theme struct {
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Muted     lipgloss.Color
	Success   lipgloss.Color
	Error     lipgloss.Color
	Text      lipgloss.Color
}

// DefaultTheme returns the console's default color theme.
func DefaultTheme() Theme {
	return Theme{
		Primary:   lipgloss.Color("#7C3AED"),
		Secondary: lipgloss.Color("#06B6D4"),
		Muted:     lipgloss.Color("#6B7280"),
		Success:   lipgloss.Color("#10B981"),
		Error:     lipgloss.Color("#EF4444"),
		Text:      lipgloss.Color("#F9FAFB"),
	}
}

// Styles holds the styled components the console renders with.
type Styles struct {
	Title   lipgloss.Style
	Prompt  lipgloss.Style
	Console lipgloss.Style
	Status  lipgloss.Style
	Target  lipgloss.Style
	Log     lipgloss.Style
}

// NewStyles builds Styles from a Theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Title:   lipgloss.NewStyle().Foreground(t.Primary).Bold(true),
		Prompt:  lipgloss.NewStyle().Foreground(t.Secondary).Bold(true),
		Console: lipgloss.NewStyle().Foreground(t.Text),
		Status:  lipgloss.NewStyle().Foreground(t.Muted).Italic(true),
		Target:  lipgloss.NewStyle().Foreground(t.Success),
		Log:     lipgloss.NewStyle().Foreground(t.Muted),
	}
}

// GDB is the narrow surface the console needs from the live session:
// send a raw line to GDB. What GDB prints back is not read through this
// interface; it arrives as LineMsg values the caller sends to the program.
type GDB interface {
	SendCommand(line string) error
}

// Line is one piece of console scrollback, tagged by its MI stream
// channel so the console can color it distinctly.
type Line struct {
	Channel string // "console", "target", "log", "mi", "input"
	Text    string
}

// LineMsg delivers one Line to the running bubbletea program. The
// caller pumps GDB's record stream into the program via p.Send(LineMsg{...}).
type LineMsg Line

// Model is the bubbletea model backing the console screen.
type Model struct {
	gdb    GDB
	styles Styles

	viewport viewport.Model
	input    textinput.Model
	lines    []Line

	width, height int
	ready         bool
}

// New constructs a console Model bound to gdb for command submission.
func New(gdb GDB) Model {
	ti := textinput.New()
	ti.Placeholder = "(gdb) "
	ti.Prompt = "> "
	ti.Focus()

	return Model{
		gdb:    gdb,
		styles: NewStyles(DefaultTheme()),
		input:  ti,
	}
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		headerHeight := 2
		footerHeight := 2
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-headerHeight-footerHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - headerHeight - footerHeight
		}
		m.input.Width = msg.Width - 4
		m.width, m.height = msg.Width, msg.Height
		m.viewport.SetContent(m.render())

	case LineMsg:
		m.lines = append(m.lines, Line(msg))
		m.viewport.SetContent(m.render())
		m.viewport.GotoBottom()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			text := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if text != "" {
				m.lines = append(m.lines, Line{Channel: "input", Text: text})
				if m.gdb != nil {
					m.gdb.SendCommand(text)
				}
				m.viewport.SetContent(m.render())
				m.viewport.GotoBottom()
			}
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m Model) View() string {
	if !m.ready {
		return "\n  initializing console..."
	}
	title := m.styles.Title.Render("GDB Console")
	status := m.styles.Status.Render("type a command and press enter; esc to detach")
	return strings.Join([]string{
		title,
		m.viewport.View(),
		status,
		m.styles.Prompt.Render(m.input.View()),
	}, "\n")
}

func (m Model) render() string {
	var b strings.Builder
	for _, l := range m.lines {
		style := m.styles.Console
		prefix := "~"
		switch l.Channel {
		case "target":
			style, prefix = m.styles.Target, "@"
		case "log":
			style, prefix = m.styles.Log, "&"
		case "input":
			style, prefix = m.styles.Prompt, ">"
		}
		b.WriteString(style.Render(prefix + " " + l.Text))
		b.WriteString("\n")
	}
	return b.String()
}
