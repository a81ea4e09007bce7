package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/orchestrator"
)

// answerer is the chat-facing subset of the RAG client.
type answerer interface {
	Answer(ctx context.Context, question, sessionID string) (*orchestrator.Result, error)
}

type turn struct {
	question string
	answer   string
	detail   string
	failed   bool
}

type answerMsg struct {
	res *orchestrator.Result
	err error
}

type chatModel struct {
	ctx       context.Context
	svc       answerer
	sessionID string
	input     textinput.Model
	viewport  viewport.Model
	spinner   spinner.Model
	turns     []turn
	pending   string
	status    string
	ready     bool
}

func newChatModel(ctx context.Context, svc answerer, sessionID string) chatModel {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return chatModel{
		ctx:       ctx,
		svc:       svc,
		sessionID: sessionID,
		input:     ti,
		viewport:  viewport.New(0, 0),
		spinner:   sp,
		status:    "Ctrl+C to quit.",
	}
}

func (m chatModel) Init() tea.Cmd { return textinput.Blink }

func (m chatModel) ask(question string) tea.Cmd {
	return func() tea.Msg {
		res, err := m.svc.Answer(m.ctx, question, m.sessionID)
		return answerMsg{res: res, err: err}
	}
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, vh := transcriptStyle.GetFrameSize()
		_, ih := inputStyle.GetFrameSize()
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-vh-ih-3)
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		if msg.Type == tea.KeyEnter && m.pending == "" {
			q := strings.TrimSpace(m.input.Value())
			if q == "" {
				return m, nil
			}
			m.pending = q
			m.input.Reset()
			m.status = "Thinking..."
			m.refresh()
			return m, tea.Batch(m.ask(q), m.spinner.Tick)
		}
	case answerMsg:
		t := turn{question: m.pending}
		m.pending = ""
		if msg.err != nil {
			t.answer = "Error: " + msg.err.Error()
			t.failed = true
			m.status = "Request failed."
		} else {
			m.sessionID = msg.res.SessionID
			t.answer = msg.res.Answer
			t.detail = describe(msg.res)
			m.status = "session " + m.sessionID
		}
		m.turns = append(m.turns, t)
		m.refresh()
		return m, nil
	case spinner.TickMsg:
		if m.pending == "" {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refresh()
		return m, cmd
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m chatModel) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := titleStyle.Render("ragchat")
	status := statusStyle.Render(m.status)
	return header + "\n" + transcriptStyle.Render(m.viewport.View()) + "\n" + inputStyle.Render(m.input.View()) + "\n" + status
}

// refresh re-renders the transcript and scrolls to the newest turn.
func (m *chatModel) refresh() {
	var b strings.Builder
	for _, t := range m.turns {
		b.WriteString(userStyle.Render("you: ") + t.question + "\n")
		if t.failed {
			b.WriteString(errorStyle.Render(t.answer) + "\n")
		} else {
			b.WriteString(botStyle.Render("bot: ") + t.answer + "\n")
		}
		if t.detail != "" {
			b.WriteString(detailStyle.Render(t.detail) + "\n")
		}
		b.WriteString("\n")
	}
	if m.pending != "" {
		b.WriteString(userStyle.Render("you: ") + m.pending + "\n")
		b.WriteString(m.spinner.View() + " thinking\n")
	}
	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

// describe summarises how each sub-query was handled.
func describe(res *orchestrator.Result) string {
	parts := make([]string, 0, len(res.SubQueries))
	for _, rec := range res.SubQueries {
		p := fmt.Sprintf("[%s] %s", rec.Classification, rec.Text)
		if rec.RelevantCount > 0 {
			p += fmt.Sprintf(" (%d relevant)", rec.RelevantCount)
		}
		if rec.ReformulatedText != "" {
			p += " reformulated"
		}
		if rec.WebSearched {
			p += " +web"
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, "\n")
}

var (
	titleStyle      = lipgloss.NewStyle().Bold(true)
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	userStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	botStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	detailStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
)
