// Package tui holds the interactive terminal prompts.
package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/buemura/jarhunter/internal/tui/styles"
	"github.com/buemura/jarhunter/pkg/types"
)

type confirmKeys struct {
	Submit key.Binding
	Cancel key.Binding
}

var keys = confirmKeys{
	Submit: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "answer")),
	Cancel: key.NewBinding(key.WithKeys("ctrl+c", "esc"), key.WithHelp("esc", "abort")),
}

// FixCandidate is one file listed in the fix prompt.
type FixCandidate struct {
	Path   string
	Status types.Status
}

// ConfirmModel asks a y/N question. Only "y" or "Y" confirms.
type ConfirmModel struct {
	question   string
	candidates []FixCandidate
	input      textinput.Model
	done       bool
	confirmed  bool
}

// NewConfirmModel creates a prompt for question listing the candidates.
func NewConfirmModel(question string, candidates []FixCandidate) ConfirmModel {
	ti := textinput.New()
	ti.Prompt = ""
	ti.Placeholder = "N"
	ti.CharLimit = 8
	ti.Width = 8
	ti.PromptStyle = styles.CursorStyle
	ti.TextStyle = styles.SelectedStyle
	ti.Focus()

	return ConfirmModel{question: question, candidates: candidates, input: ti}
}

// Confirmed reports the answer once the prompt is done.
func (m ConfirmModel) Confirmed() bool { return m.done && m.confirmed }

// Done reports whether an answer was given or the prompt was aborted.
func (m ConfirmModel) Done() bool { return m.done }

func (m ConfirmModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m ConfirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(keyMsg, keys.Cancel):
			m.done = true
			m.confirmed = false
			return m, tea.Quit
		case key.Matches(keyMsg, keys.Submit):
			m.done = true
			m.confirmed = strings.EqualFold(strings.TrimSpace(m.input.Value()), "y")
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m ConfirmModel) View() string {
	var b strings.Builder

	if len(m.candidates) > 0 {
		b.WriteString(styles.HeaderStyle.Render(fmt.Sprintf("%d files will be patched", len(m.candidates))))
		b.WriteString("\n")
		for _, c := range m.candidates {
			b.WriteString("  ")
			b.WriteString(styles.StatusStyle(c.Status).Render(c.Status.String()))
			b.WriteString(" ")
			b.WriteString(c.Path)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString(m.question)
	b.WriteString(" [y/N]? ")
	if m.done {
		if m.confirmed {
			b.WriteString("y\n")
		} else {
			b.WriteString("N\n")
		}
		return b.String()
	}
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(styles.HelpStyle.Render(keys.Submit.Help().Key + " " + keys.Submit.Help().Desc + " • " + keys.Cancel.Help().Key + " " + keys.Cancel.Help().Desc))
	b.WriteString("\n")
	return b.String()
}

// Confirm runs the prompt on the given terminal streams and returns the
// answer.
func Confirm(in io.Reader, out io.Writer, question string, candidates []FixCandidate) (bool, error) {
	p := tea.NewProgram(NewConfirmModel(question, candidates), tea.WithInput(in), tea.WithOutput(out))
	final, err := p.Run()
	if err != nil {
		return false, fmt.Errorf("TUI error: %w", err)
	}
	return final.(ConfirmModel).Confirmed(), nil
}
