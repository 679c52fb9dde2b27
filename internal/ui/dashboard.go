package ui

import (
	"fmt"
	"strings"

	"auto-claimer/internal/model"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// StateMsg carries one published snapshot into the dashboard.
type StateMsg struct {
	State model.JobState
}

// FinishedMsg tells the dashboard that the batch is over.
type FinishedMsg struct{}

// Dashboard shows the live state of one batch. Quitting it only detaches
// the view; the batch keeps running.
type Dashboard struct {
	emails   []string
	state    model.JobState
	seen     bool
	bar      progress.Model
	width    int
	height   int
	finished bool
	detached bool
}

func NewDashboard(accounts []model.Account) Dashboard {
	emails := make([]string, len(accounts))
	for i, a := range accounts {
		emails[i] = a.Email
	}
	return Dashboard{
		emails: emails,
		bar:    progress.New(progress.WithDefaultGradient()),
	}
}

func (d Dashboard) Init() tea.Cmd {
	return nil
}

func (d Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		d.width = msg.Width
		d.height = msg.Height
		d.bar.Width = clampInt(msg.Width-24, 10, 80)
		return d, nil
	case StateMsg:
		d.state = msg.State
		d.seen = true
		return d, nil
	case FinishedMsg:
		d.finished = true
		d.state.Running = false
		return d, tea.Quit
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			d.detached = true
			return d, tea.Quit
		}
	}
	return d, nil
}

// Detached reports whether the user left the view before the batch ended.
func (d Dashboard) Detached() bool {
	return d.detached && !d.finished
}

func (d Dashboard) State() model.JobState {
	return d.state
}

func (d Dashboard) View() string {
	width := d.width
	if width <= 0 {
		width = 100
	}
	height := d.height
	if height <= 0 {
		height = 30
	}

	header := titleStyle.Render("auto-claimer claim") + "\n" +
		mutedStyle.Render("q: leave view (batch keeps running)")
	if !d.seen {
		return lipgloss.JoinVertical(lipgloss.Left, header, mutedStyle.Render("starting..."))
	}

	done := d.state.Total - d.state.Remaining
	percent := 0.0
	if d.state.Total > 0 {
		percent = float64(done) / float64(d.state.Total)
	}
	tally := d.state.Tally()

	lines := []string{
		fmt.Sprintf("%s %d/%d", d.bar.ViewAs(percent), done, d.state.Total),
		fmt.Sprintf("%s | %s | %s | %s | workers %d | eta %s",
			busyStyle.Render(fmt.Sprintf("running %d", tally.Running)),
			okStyle.Render(fmt.Sprintf("claimed %d", tally.Succeeded)),
			errorStyle.Render(fmt.Sprintf("failed %d", tally.Failed)),
			mutedStyle.Render(fmt.Sprintf("pending %d", tally.Pending)),
			d.state.Concurrency, FormatETA(d.state.ETASeconds)),
		"",
	}

	maxRows := clampInt(height-10, 3, 40)
	start, end := listWindow(len(d.state.Statuses), d.focusRow(), maxRows)
	if start > 0 {
		lines = append(lines, mutedStyle.Render("..."))
	}
	for i := start; i < end; i++ {
		st := d.state.Statuses[i]
		badge := statusStyle(st).Render(fmt.Sprintf("%-9s", st))
		lines = append(lines, badge+" "+truncateRunes(d.email(i), max(width-16, 10)))
	}
	if end < len(d.state.Statuses) {
		lines = append(lines, mutedStyle.Render("..."))
	}

	if !d.state.Running {
		lines = append(lines, "", okStyle.Render("batch finished"))
	}
	panel := panelStyle.Width(max(width-2, 40)).Render(strings.Join(lines, "\n"))
	return lipgloss.JoinVertical(lipgloss.Left, header, panel)
}

// focusRow keeps the first unfinished account in view.
func (d Dashboard) focusRow() int {
	for i, st := range d.state.Statuses {
		if !st.Terminal() {
			return i
		}
	}
	return max(len(d.state.Statuses)-1, 0)
}

func (d Dashboard) email(i int) string {
	if i < len(d.emails) {
		return d.emails[i]
	}
	return fmt.Sprintf("account #%d", i+1)
}
