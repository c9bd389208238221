package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ragchat/internal/domain"
)

// ChatPort is the TUI-facing subset of the assistant.
type ChatPort interface {
	Ask(ctx context.Context, query, conversationID string, topK int) domain.Answer
	History(ctx context.Context, conversationID string, limit int) ([]domain.ChatMessage, error)
}

// Model is the Bubble Tea model for the chat client.
type Model struct {
	service        ChatPort
	input          textinput.Model
	viewport       viewport.Model
	messages       []domain.ChatMessage
	conversationID string
	topK           int
	status         string
	ready          bool
}

// New creates a chat model. A non-empty conversationID resumes that
// conversation; its history is loaded on the first render.
func New(service ChatPort, conversationID string, topK int) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	m := Model{
		service:        service,
		input:          ti,
		viewport:       vp,
		conversationID: conversationID,
		topK:           topK,
		status:         "Ready.",
	}
	if conversationID != "" {
		if history, err := service.History(context.Background(), conversationID, 200); err == nil {
			m.messages = history
		}
	}
	return m
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 1 + 1 + qh + 1 // header, status, query box, spacer
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-th)
		m.viewport.SetContent(m.renderTranscript())
		m.viewport.GotoBottom()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q != "" {
				answer := m.service.Ask(context.Background(), q, m.conversationID, m.topK)
				m.conversationID = answer.ConversationID
				m.messages = append(m.messages, domain.ChatMessage{
					ConversationID: answer.ConversationID,
					Query:          q,
					Response:       answer.Answer,
				})
				m.status = fmt.Sprintf("Answered with %d retrieved chunks.", answer.RetrievedCount)
				m.input.SetValue("")
				m.viewport.SetContent(m.renderTranscript())
				m.viewport.GotoBottom()
				return m, nil
			}
		case "up":
			m.viewport.LineUp(1)
			return m, nil
		case "down":
			m.viewport.LineDown(1)
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the chat layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	title := "New conversation"
	if m.conversationID != "" {
		title = "Conversation " + m.conversationID
	}
	header := lipgloss.NewStyle().Bold(true).Render(title)
	transcript := transcriptBoxStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	return header + "\n" + transcript + "\n" + input + "\n" + status
}

func (m Model) renderTranscript() string {
	if len(m.messages) == 0 {
		return "No messages yet. Ask something."
	}
	var b strings.Builder
	for i, msg := range m.messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(youStyle.Render("You: "))
		b.WriteString(msg.Query)
		b.WriteString("\n")
		b.WriteString(botStyle.Render("Assistant: "))
		b.WriteString(msg.Response)
	}
	return b.String()
}

var (
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	youStyle           = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	botStyle           = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
)

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
