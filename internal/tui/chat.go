// Package tui renders live Glasser views with Bubble Tea.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/glasserstudy/glasser/internal/feed"
	"github.com/glasserstudy/glasser/internal/model"
)

// Options configures the chat view.
type Options struct {
	Context context.Context
	Title   string
	// Feed must already be bound to the chat.
	Feed *feed.Feed[model.Message]
	// Send posts a message to the bound chat.
	Send func(ctx context.Context, content string) error
	// Leave runs after the feed is unbound on esc.
	Leave func()
}

type styles struct {
	title  lipgloss.Style
	self   lipgloss.Style
	sender lipgloss.Style
	muted  lipgloss.Style
	danger lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		title:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#bd93f9")),
		self:   lipgloss.NewStyle().Foreground(lipgloss.Color("#50fa7b")),
		sender: lipgloss.NewStyle().Foreground(lipgloss.Color("#8be9fd")),
		muted:  lipgloss.NewStyle().Foreground(lipgloss.Color("#6272a4")),
		danger: lipgloss.NewStyle().Foreground(lipgloss.Color("#ff5555")),
	}
}

// feedMsg signals the feed changed.
type feedMsg struct{}

// sentMsg reports the outcome of a send.
type sentMsg struct{ err error }

// Chat is the live chat model.
type Chat struct {
	ctx   context.Context
	opts  Options
	style styles

	width, height int
	ready         bool

	messages []model.Message
	loading  bool
	status   string
	sending  bool
	left     bool

	viewport viewport.Model
	input    textinput.Model
}

// NewChat creates the chat model.
func NewChat(opts Options) Chat {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	in := textinput.New()
	in.Placeholder = "Message"
	in.CharLimit = 2000
	in.Focus()

	c := Chat{ctx: ctx, opts: opts, style: defaultStyles(), input: in}
	c.sync()
	return c
}

// Init implements tea.Model.
func (c Chat) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitFeed(c.opts.Feed))
}

// Update implements tea.Model.
func (c Chat) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyEsc, tea.KeyCtrlC:
			c.opts.Feed.Unbind()
			c.left = true
			if c.opts.Leave != nil {
				c.opts.Leave()
			}
			return c, tea.Quit
		case tea.KeyEnter:
			content := strings.TrimSpace(c.input.Value())
			if content == "" || c.sending || c.opts.Send == nil {
				return c, nil
			}
			c.sending = true
			c.status = ""
			c.input.SetValue("")
			return c, sendCmd(c.ctx, c.opts.Send, content)
		}

	case tea.WindowSizeMsg:
		c.width, c.height = msg.Width, msg.Height
		vh := msg.Height - 4
		if vh < 1 {
			vh = 1
		}
		if !c.ready {
			c.viewport = viewport.New(msg.Width, vh)
			c.ready = true
		} else {
			c.viewport.Width, c.viewport.Height = msg.Width, vh
		}
		c.input.Width = msg.Width - 4
		c.render()
		return c, nil

	case feedMsg:
		c.sync()
		return c, waitFeed(c.opts.Feed)

	case sentMsg:
		c.sending = false
		if msg.err != nil {
			c.status = msg.err.Error()
		}
		c.sync()
		return c, nil
	}

	var cmd tea.Cmd
	c.input, cmd = c.input.Update(msg)
	return c, cmd
}

// View implements tea.Model.
func (c Chat) View() string {
	var b strings.Builder
	b.WriteString(c.style.title.Render(c.opts.Title))
	b.WriteString("\n")
	if c.ready {
		b.WriteString(c.viewport.View())
	} else {
		b.WriteString(c.transcript())
	}
	b.WriteString("\n")
	b.WriteString(c.input.View())
	b.WriteString("\n")
	switch {
	case c.status != "":
		b.WriteString(c.style.danger.Render(c.status))
	case c.loading:
		b.WriteString(c.style.muted.Render("loading..."))
	default:
		b.WriteString(c.style.muted.Render("enter send · esc leave"))
	}
	return b.String()
}

// Messages returns the rendered message list.
func (c Chat) Messages() []model.Message { return c.messages }

// Left reports whether the user left the chat.
func (c Chat) Left() bool { return c.left }

func (c *Chat) sync() {
	if c.opts.Feed == nil {
		return
	}
	st, ok := c.opts.Feed.Snapshot()
	if !ok {
		c.messages, c.loading = nil, false
	} else {
		c.messages, c.loading = st.Data, st.Loading && !st.HasData
		if st.Err != nil && c.status == "" {
			c.status = st.Err.Error()
		}
	}
	c.render()
}

func (c *Chat) render() {
	if !c.ready {
		return
	}
	c.viewport.SetContent(c.transcript())
	c.viewport.GotoBottom()
}

func (c Chat) transcript() string {
	if len(c.messages) == 0 {
		return c.style.muted.Render("No messages yet.")
	}
	lines := make([]string, 0, len(c.messages))
	for _, m := range c.messages {
		name := m.Sender.Name
		style := c.style.sender
		if m.IsCurrentUser {
			name, style = "you", c.style.self
		}
		ts := ""
		if !m.CreatedAt.IsZero() {
			ts = c.style.muted.Render(m.CreatedAt.Local().Format("15:04")) + " "
		}
		lines = append(lines, fmt.Sprintf("%s%s %s", ts, style.Render(name+":"), m.Content))
	}
	return strings.Join(lines, "\n")
}

func waitFeed(f *feed.Feed[model.Message]) tea.Cmd {
	if f == nil {
		return nil
	}
	return func() tea.Msg {
		<-f.Updates()
		return feedMsg{}
	}
}

func sendCmd(ctx context.Context, send func(context.Context, string) error, content string) tea.Cmd {
	return func() tea.Msg {
		return sentMsg{err: send(ctx, content)}
	}
}

// Run starts the chat program and blocks until the user leaves.
func Run(opts Options) error {
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	p := tea.NewProgram(NewChat(opts), tea.WithAltScreen(), tea.WithContext(opts.Context))
	_, err := p.Run()
	return err
}
