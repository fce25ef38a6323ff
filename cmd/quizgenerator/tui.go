package main

import (
	"fmt"
	"strconv"
	"strings"

	"pdfquiz"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")).MarginBottom(1)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("63")).Bold(true)
	clockStyle    = lipgloss.NewStyle().Bold(true).Padding(0, 3).Border(lipgloss.RoundedBorder())
)

type keyMap struct {
	Quit     key.Binding
	QuitKey  key.Binding
	Confirm  key.Binding
	Preset   key.Binding
	Dismiss  key.Binding
	Pause    key.Binding
	Restart  key.Binding
	Cancel   key.Binding
	Option   key.Binding
	Next     key.Binding
	Previous key.Binding
	Skip     key.Binding
	Finish   key.Binding
	NewSet   key.Binding
	NewDoc   key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Quit:     key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
		QuitKey:  key.NewBinding(key.WithKeys("q"), key.WithHelp("q", "quit")),
		Confirm:  key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "confirm")),
		Preset:   key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "presets")),
		Dismiss:  key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "dismiss error")),
		Pause:    key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "pause/resume")),
		Restart:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "restart")),
		Cancel:   key.NewBinding(key.WithKeys("esc", "c"), key.WithHelp("c", "cancel")),
		Option:   key.NewBinding(key.WithKeys("a", "b", "c", "d", "1", "2", "3", "4"), key.WithHelp("a-d", "answer")),
		Next:     key.NewBinding(key.WithKeys("right", "n", "enter"), key.WithHelp("→/n", "next")),
		Previous: key.NewBinding(key.WithKeys("left", "p"), key.WithHelp("←/p", "previous")),
		Skip:     key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "skip")),
		Finish:   key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "finish")),
		NewSet:   key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "new questions")),
		NewDoc:   key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "new PDF")),
	}
}

// viewMsg carries a controller snapshot into the update loop
type viewMsg pdfquiz.View

// closedMsg reports that the controller ended the subscription
type closedMsg struct{}

// model renders a Controller in the terminal and turns key presses into workflow events.
type model struct {
	ctrl      *pdfquiz.Controller
	views     <-chan pdfquiz.View
	stop      func()
	view      pdfquiz.View
	maxUpload int64

	input  textinput.Model
	bar    progress.Model
	review table.Model
	keys   keyMap
	help   help.Model

	flash  string
	preset int
	loaded bool
}

func newModel(ctrl *pdfquiz.Controller, maxUpload int64) model {
	views, stop := ctrl.Subscribe()

	input := textinput.New()
	input.CharLimit = 512
	input.Width = 50
	input.Focus()

	m := model{
		ctrl:      ctrl,
		views:     views,
		stop:      stop,
		maxUpload: maxUpload,
		input:     input,
		bar:       progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		keys:      newKeyMap(),
		help:      help.New(),
		preset:    -1,
	}
	m.setView(ctrl.View())
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForView(m.views))
}

// waitForView blocks until the controller publishes a new snapshot.
func waitForView(views <-chan pdfquiz.View) tea.Cmd {
	return func() tea.Msg {
		v, ok := <-views
		if !ok {
			return closedMsg{}
		}
		return viewMsg(v)
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.bar.Width = max(min(msg.Width-4, 60), 10)
		m.help.Width = msg.Width
		return m, nil
	case viewMsg:
		m.setView(pdfquiz.View(msg))
		return m, waitForView(m.views)
	case closedMsg:
		return m, tea.Quit
	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) || (!m.typing() && key.Matches(msg, m.keys.QuitKey)) {
			m.stop()
			return m, tea.Quit
		}
		return m.handleKey(msg)
	}
	return m, nil
}

// typing reports whether keys go to the text input
func (m model) typing() bool {
	return m.view.Phase == pdfquiz.PhaseIntake || m.view.Phase == pdfquiz.PhaseTiming
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.view.Phase {
	case pdfquiz.PhaseIntake:
		if key.Matches(msg, m.keys.Confirm) {
			m.apply(m.openDocument(strings.TrimSpace(m.input.Value())))
			return m, nil
		}
	case pdfquiz.PhaseTiming:
		switch {
		case key.Matches(msg, m.keys.Confirm):
			minutes, err := strconv.Atoi(strings.TrimSpace(m.input.Value()))
			if err != nil {
				m.apply(pdfquiz.InvalidInput("please enter a valid time between %d and %d minutes", pdfquiz.MinTimeLimit, pdfquiz.MaxTimeLimit))
				return m, nil
			}
			m.apply(m.ctrl.ConfirmTimeLimit(minutes))
			return m, nil
		case key.Matches(msg, m.keys.Preset):
			m.preset = (m.preset + 1) % len(m.view.Presets)
			m.input.SetValue(strconv.Itoa(m.view.Presets[m.preset]))
			m.input.CursorEnd()
			return m, nil
		case key.Matches(msg, m.keys.Dismiss):
			m.ctrl.ClearError()
			m.apply(nil)
			return m, nil
		}
	case pdfquiz.PhasePending:
		switch {
		case key.Matches(msg, m.keys.Pause):
			if m.view.Clock != nil && m.view.Clock.Paused {
				m.apply(m.ctrl.ResumeClock())
			} else {
				m.apply(m.ctrl.PauseClock())
			}
		case key.Matches(msg, m.keys.Restart):
			m.apply(m.ctrl.RestartClock())
		case key.Matches(msg, m.keys.Cancel):
			m.apply(m.ctrl.Cancel())
		}
		return m, nil
	case pdfquiz.PhaseAnswering:
		switch {
		case key.Matches(msg, m.keys.Option):
			if i, ok := optionIndex(msg.String()); ok {
				m.apply(m.ctrl.SelectOption(i))
			}
		case key.Matches(msg, m.keys.Next):
			m.apply(m.ctrl.Next())
		case key.Matches(msg, m.keys.Previous):
			m.apply(m.ctrl.Previous())
		case key.Matches(msg, m.keys.Skip):
			m.apply(m.ctrl.Skip())
		case key.Matches(msg, m.keys.Finish):
			m.apply(m.ctrl.Finish())
		}
		return m, nil
	case pdfquiz.PhaseScoring:
		switch {
		case key.Matches(msg, m.keys.NewSet):
			m.apply(m.ctrl.NewQuestionSet())
		case key.Matches(msg, m.keys.NewDoc):
			m.apply(m.ctrl.NewDocument())
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *model) openDocument(path string) error {
	if path == "" {
		return pdfquiz.InvalidInput("please select a valid PDF file")
	}
	doc, err := readDocument(path, m.maxUpload)
	if err != nil {
		return err
	}
	return m.ctrl.SelectDocument(doc)
}

// apply shows err, or clears the flash, and refreshes from the controller.
func (m *model) apply(err error) {
	if err != nil {
		m.flash = pdfquiz.Message(err)
	} else {
		m.flash = ""
	}
	m.setView(m.ctrl.View())
}

// setView stores a snapshot and resets the input when the phase changes.
func (m *model) setView(v pdfquiz.View) {
	changed := !m.loaded || v.Phase != m.view.Phase
	m.view = v
	m.loaded = true
	if !changed {
		return
	}

	switch v.Phase {
	case pdfquiz.PhaseIntake:
		m.input.Placeholder = "path/to/notes.pdf"
		m.input.SetValue("")
	case pdfquiz.PhaseTiming:
		m.input.Placeholder = "minutes"
		m.input.SetValue(strconv.Itoa(v.TimeLimit))
		m.input.CursorEnd()
		m.preset = -1
	case pdfquiz.PhaseScoring:
		m.review = reviewTable(v.Review)
	}
}

func reviewTable(review []pdfquiz.QuestionReview) table.Model {
	rows := make([]table.Row, 0, len(review))
	for _, r := range review {
		answer := "-"
		if r.Answer.Answered() && int(r.Answer) < len(r.Question.Options) {
			answer = r.Question.Options[r.Answer]
		}
		result := "✗"
		if r.Correct {
			result = "✓"
		}
		rows = append(rows, table.Row{strconv.Itoa(r.Number), r.Question.Text, answer, r.Question.Options[r.Question.CorrectAnswer], result})
	}
	return table.New(
		table.WithColumns([]table.Column{
			{Title: "#", Width: 3},
			{Title: "Question", Width: 40},
			{Title: "Your answer", Width: 18},
			{Title: "Correct answer", Width: 18},
			{Title: "", Width: 2},
		}),
		table.WithRows(rows),
		table.WithFocused(false),
		table.WithHeight(min(len(rows), 10)+1),
	)
}

// optionIndex maps a-d and 1-4 to option indexes
func optionIndex(k string) (int, bool) {
	if len(k) != 1 {
		return 0, false
	}
	switch c := k[0]; {
	case c >= 'a' && c < 'a'+pdfquiz.OptionsPerQuestion:
		return int(c - 'a'), true
	case c >= '1' && c < '1'+pdfquiz.OptionsPerQuestion:
		return int(c - '1'), true
	}
	return 0, false
}

func (m model) View() string {
	var body string
	switch m.view.Phase {
	case pdfquiz.PhaseIntake:
		body = m.intakeView()
	case pdfquiz.PhaseTiming:
		body = m.timingView()
	case pdfquiz.PhasePending:
		body = m.pendingView()
	case pdfquiz.PhaseAnswering:
		body = m.answeringView()
	case pdfquiz.PhaseScoring:
		body = m.scoringView()
	}

	sections := []string{titleStyle.Render("PDF Quiz Generator"), body}
	if m.flash != "" {
		sections = append(sections, "", errorStyle.Render(m.flash))
	}
	sections = append(sections, "", m.help.ShortHelpView(m.bindings()))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m model) bindings() []key.Binding {
	switch m.view.Phase {
	case pdfquiz.PhaseIntake:
		return []key.Binding{m.keys.Confirm, m.keys.Quit}
	case pdfquiz.PhaseTiming:
		keys := []key.Binding{m.keys.Confirm, m.keys.Preset}
		if m.view.Error != nil {
			keys = append(keys, m.keys.Dismiss)
		}
		return append(keys, m.keys.Quit)
	case pdfquiz.PhasePending:
		return []key.Binding{m.keys.Pause, m.keys.Restart, m.keys.Cancel, m.keys.QuitKey}
	case pdfquiz.PhaseAnswering:
		return []key.Binding{m.keys.Option, m.keys.Next, m.keys.Previous, m.keys.Skip, m.keys.Finish, m.keys.QuitKey}
	default:
		return []key.Binding{m.keys.NewSet, m.keys.NewDoc, m.keys.QuitKey}
	}
}

func (m model) intakeView() string {
	return lipgloss.JoinVertical(lipgloss.Left,
		"Which PDF should the quiz be about?",
		m.input.View(),
	)
}

func (m model) timingView() string {
	lines := []string{}
	if m.view.Error != nil {
		lines = append(lines, errorStyle.Render("Generation failed: "+m.view.Error.Message), "")
	}
	presets := make([]string, len(m.view.Presets))
	for i, p := range m.view.Presets {
		presets[i] = fmt.Sprintf("%d", p)
	}
	lines = append(lines,
		"Document: "+m.view.DocumentName,
		"How many minutes do you want to study before the questions appear?",
		mutedStyle.Render("Presets: "+strings.Join(presets, ", ")),
		m.input.View(),
	)
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m model) pendingView() string {
	clock := m.view.Clock
	if clock == nil {
		return ""
	}
	status := "Generating questions from your document..."
	if m.view.Ready {
		status = "Your questions are ready and will appear when the time is up."
	}
	display := clock.Display
	if clock.Paused {
		display += " (paused)"
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		"Studying "+m.view.DocumentName,
		clockStyle.Render(display),
		m.bar.ViewAs(clock.Progress),
		mutedStyle.Render(status),
	)
}

func (m model) answeringView() string {
	q := m.view.Question
	if q == nil {
		return ""
	}
	lines := []string{
		mutedStyle.Render(fmt.Sprintf("Question %d of %d · %d answered", m.view.Current+1, m.view.Total, m.view.AnsweredCount)),
		"",
		q.Text,
		"",
	}
	for i, opt := range q.Options {
		line := fmt.Sprintf("  %c. %s", 'A'+i, opt)
		if m.view.Selected.Answered() && int(m.view.Selected) == i {
			line = selectedStyle.Render(fmt.Sprintf("> %c. %s", 'A'+i, opt))
		}
		lines = append(lines, line)
	}
	if m.view.IsLast {
		lines = append(lines, "", mutedStyle.Render("Last question: next submits the quiz."))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m model) scoringView() string {
	score := m.view.Score
	if score == nil {
		return ""
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		selectedStyle.Render(fmt.Sprintf("Score: %d%% · %s", score.Percentage, m.view.Grade)),
		fmt.Sprintf("%d correct out of %d questions (%d attempted)", score.Correct, score.Total, score.Attempted),
		"",
		m.review.View(),
	)
}
