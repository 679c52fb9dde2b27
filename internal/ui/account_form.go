package ui

import (
	"errors"
	"strings"

	"auto-claimer/internal/model"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	fieldEmail = iota
	fieldPassword
)

// AccountForm prompts for one account's credentials.
type AccountForm struct {
	inputs    []textinput.Model
	index     int
	err       string
	submitted bool
	cancelled bool
	width     int
}

func NewAccountForm() AccountForm {
	email := textinput.New()
	email.Placeholder = "name@example.com"
	email.Prompt = "> "
	email.CharLimit = 254
	email.Focus()

	password := textinput.New()
	password.Prompt = "> "
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '*'

	return AccountForm{inputs: []textinput.Model{email, password}}
}

func (f AccountForm) Init() tea.Cmd {
	return textinput.Blink
}

func (f AccountForm) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		f.width = msg.Width
		for i := range f.inputs {
			f.inputs[i].Width = clampInt(msg.Width-8, 20, 80)
		}
		return f, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			f.cancelled = true
			return f, tea.Quit
		case "tab", "down", "shift+tab", "up":
			return f.focus(1 - f.index), nil
		case "enter":
			if f.index == fieldEmail {
				return f.focus(fieldPassword), nil
			}
			if _, err := f.Account(); err != nil {
				f.err = err.Error()
				return f, nil
			}
			f.submitted = true
			return f, tea.Quit
		}
	}

	var cmd tea.Cmd
	f.inputs[f.index], cmd = f.inputs[f.index].Update(msg)
	f.err = ""
	return f, cmd
}

func (f AccountForm) focus(i int) AccountForm {
	f.inputs[f.index].Blur()
	f.index = i
	f.inputs[f.index].Focus()
	return f
}

// Account validates and returns the entered credentials.
func (f AccountForm) Account() (model.Account, error) {
	email := strings.TrimSpace(f.inputs[fieldEmail].Value())
	password := f.inputs[fieldPassword].Value()
	if email == "" {
		return model.Account{}, errors.New("email is required")
	}
	if !strings.Contains(email, "@") {
		return model.Account{}, errors.New("email must contain @")
	}
	if password == "" {
		return model.Account{}, errors.New("password is required")
	}
	return model.Account{Email: email, Password: password}, nil
}

func (f AccountForm) Submitted() bool { return f.submitted && !f.cancelled }

func (f AccountForm) View() string {
	header := titleStyle.Render("add account") + "\n" +
		mutedStyle.Render("tab: switch field | enter: next/save | esc: cancel")
	body := "Email\n" + f.inputs[fieldEmail].View() + "\n\nPassword\n" + f.inputs[fieldPassword].View()
	if f.err != "" {
		body += "\n\n" + errorStyle.Render(f.err)
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, panelStyle.Width(max(f.width-2, 40)).Render(body))
}
