package client

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

type uiState int

const (
	stateReady uiState = iota
	stateStreaming
)

var (
	userStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	statusStyle = lipgloss.NewStyle().Faint(true)
)

type chatEntry struct {
	role    string
	content string
}

type (
	streamEvMsg     StreamEvent
	streamClosedMsg struct{}
	typeTickMsg     struct{}
	historyMsg      []HistoryEntry
	uiErrMsg        struct{ err error }
)

// Model is the Bubble Tea model for the chat view.
type Model struct {
	api      *Client
	userName string

	state    uiState
	entries  []chatEntry
	renderer *Renderer
	events   <-chan StreamEvent
	chClosed bool

	viewport viewport.Model
	input    textinput.Model
	spin     spinner.Model
	markdown *glamour.TermRenderer

	width  int
	height int
	status string
	ready  bool
}

// NewModel builds the chat UI for an already logged-in client.
func NewModel(api *Client, userName string) Model {
	ti := textinput.New()
	ti.Placeholder = "Ask anything..."
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		api:      api,
		userName: userName,
		input:    ti,
		spin:     sp,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.loadHistory())
}

func (m Model) loadHistory() tea.Cmd {
	return func() tea.Msg {
		hist, err := m.api.History(context.Background())
		if err != nil {
			return uiErrMsg{err}
		}
		return historyMsg(hist)
	}
}

func waitEvent(ch <-chan StreamEvent) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return streamEvMsg(ev)
	}
}

func typeTick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return typeTickMsg{} })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}
		m.markdown, _ = glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(min(msg.Width-2, 100)),
		)
		m.refreshViewport()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case historyMsg:
		for _, h := range msg {
			m.entries = append(m.entries, chatEntry{role: h.Role, content: h.Content})
		}
		m.refreshViewport()
		return m, nil

	case streamEvMsg:
		ev := StreamEvent(msg)
		switch {
		case ev.Text != "":
			m.renderer.Append(ev.Text)
		case ev.Err != "":
			m.status = errorStyle.Render("[Error]: " + ev.Err)
			m.renderer.Finish()
		case ev.Cancelled:
			m.status = statusStyle.Render("response stopped")
			m.renderer.Finish()
		case ev.Done:
			m.renderer.Finish()
		}
		return m, waitEvent(m.events)

	case streamClosedMsg:
		m.chClosed = true
		m.renderer.Finish()
		return m, nil

	case typeTickMsg:
		if m.state != stateStreaming {
			return m, nil
		}
		_, delay, cont := m.renderer.Step()
		m.refreshViewport()
		if cont || !m.chClosed {
			if delay <= 0 {
				delay = maxTypeDelay
			}
			return m, typeTick(delay)
		}
		// Stream finished and the animation caught up.
		if text := m.renderer.Full(); strings.TrimSpace(text) != "" {
			m.entries = append(m.entries, chatEntry{role: "assistant", content: text})
		}
		m.state = stateReady
		m.renderer = nil
		m.input.Focus()
		m.refreshViewport()
		return m, nil

	case uiErrMsg:
		m.status = errorStyle.Render("[Error]: " + msg.err.Error())
		m.state = stateReady
		m.input.Focus()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// handleKey processes key presses. Edit operations are gated while a
// response is streaming; only stop and quit remain live.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit

	case "ctrl+s":
		if m.state == stateStreaming {
			api := m.api
			return m, func() tea.Msg {
				if err := api.StopResponse(context.Background()); err != nil {
					return uiErrMsg{err}
				}
				return nil
			}
		}
		return m, nil

	case "enter":
		if m.state == stateStreaming {
			return m, nil
		}
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}
		m.input.Reset()
		m.entries = append(m.entries, chatEntry{role: "user", content: text})
		return m.startStream(func(ctx context.Context) (<-chan StreamEvent, error) {
			return m.api.Send(ctx, text)
		})

	case "ctrl+r":
		if m.state == stateStreaming {
			return m, nil
		}
		replay := m.lastUserContent()
		m.dropLastExchangeLocally()
		if replay != "" {
			m.entries = append(m.entries, chatEntry{role: "user", content: replay})
		}
		return m.startStream(func(ctx context.Context) (<-chan StreamEvent, error) {
			return m.api.TryAgain(ctx)
		})

	case "ctrl+e":
		if m.state == stateStreaming {
			return m, nil
		}
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			m.status = statusStyle.Render("type the replacement message, then press ctrl+e")
			return m, nil
		}
		m.input.Reset()
		m.dropLastExchangeLocally()
		m.entries = append(m.entries, chatEntry{role: "user", content: text})
		return m.startStream(func(ctx context.Context) (<-chan StreamEvent, error) {
			return m.api.EditMessage(ctx, text)
		})

	case "ctrl+d":
		if m.state == stateStreaming {
			return m, nil
		}
		api := m.api
		m.dropLastExchangeLocally()
		m.refreshViewport()
		return m, func() tea.Msg {
			if err := api.DeleteMessage(context.Background()); err != nil {
				return uiErrMsg{err}
			}
			return nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) startStream(open func(context.Context) (<-chan StreamEvent, error)) (tea.Model, tea.Cmd) {
	events, err := open(context.Background())
	if err != nil {
		m.status = errorStyle.Render("[Error]: " + err.Error())
		m.refreshViewport()
		return m, nil
	}
	m.state = stateStreaming
	m.renderer = &Renderer{}
	m.events = events
	m.chClosed = false
	m.status = ""
	m.input.Blur()
	m.refreshViewport()
	return m, tea.Batch(waitEvent(events), typeTick(maxTypeDelay), m.spin.Tick)
}

// dropLastExchangeLocally mirrors the server-side exchange delete in the
// local transcript.
func (m *Model) dropLastExchangeLocally() {
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].role == "user" {
			rest := m.entries[i+1:]
			keep := m.entries[:i]
			// drop the assistant reply right after the user message too
			if len(rest) > 0 && rest[0].role == "assistant" {
				rest = rest[1:]
			}
			m.entries = append(keep, rest...)
			return
		}
	}
}

func (m *Model) lastUserContent() string {
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].role == "user" {
			return m.entries[i].content
		}
	}
	return ""
}

func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}
	var b strings.Builder
	for _, e := range m.entries {
		if e.role == "user" {
			b.WriteString(userStyle.Render(m.userName+":") + " " + e.content + "\n")
			continue
		}
		b.WriteString(m.renderMarkdown(e.content))
		b.WriteString("\n")
	}
	if m.state == stateStreaming && m.renderer != nil {
		if visible := m.renderer.Displayed(); visible != "" {
			b.WriteString(m.renderMarkdown(visible))
		} else {
			b.WriteString(m.spin.View() + " thinking...\n")
		}
	}
	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

func (m *Model) renderMarkdown(text string) string {
	if m.markdown == nil {
		return text + "\n"
	}
	out, err := m.markdown.Render(text)
	if err != nil {
		return text + "\n"
	}
	return out
}

func (m Model) View() string {
	if !m.ready {
		return "loading..."
	}
	help := statusStyle.Render("enter send · ctrl+r retry · ctrl+e edit · ctrl+d delete · ctrl+s stop · ctrl+c quit")
	line := m.status
	if line == "" {
		line = help
	}
	return fmt.Sprintf("%s\n%s\n%s", m.viewport.View(), m.input.View(), line)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
