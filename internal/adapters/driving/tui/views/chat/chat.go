// Package chat provides the conversation view for the TUI.
//
// A turn is sent through driving.ChatService.SendMessage and its events are
// read one at a time by a command that re-arms itself until the channel
// closes, so the transcript updates as the answer streams in.
package chat

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/custodia-labs/townhall/internal/adapters/driving/tui/components/input"
	"github.com/custodia-labs/townhall/internal/adapters/driving/tui/components/status"
	"github.com/custodia-labs/townhall/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/townhall/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/townhall/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/townhall/internal/core/domain"
	"github.com/custodia-labs/townhall/internal/core/ports/driving"
)

const (
	maxMessageLength = 2000

	commandFeedback = "/feedback"
	commandEnd      = "/end"
)

// ErrNoChatService indicates that no chat service was provided.
var ErrNoChatService = errors.New("chat service not available")

// Turn is one entry of the transcript.
type Turn struct {
	Role      domain.Role
	Content   string
	Citations *domain.CitationSet
	MessageID string
	Failed    bool
}

// View is the conversation view.
type View struct {
	styles    *styles.Styles
	keymap    *keymap.KeyMap
	input     *input.Field
	statusbar *status.Bar

	chat driving.ChatService
	ctx  context.Context

	guestID      string
	resumeID     string
	conversation *domain.Conversation
	turns        []Turn
	events       <-chan domain.Event
	streaming    bool
	showSources  bool
	notice       string
	err          error

	// scrollOffset counts transcript lines hidden below the viewport.
	scrollOffset int
	width        int
	height       int
	ready        bool
}

// NewView creates a chat view acting as guestID. An empty guestID lets the
// service mint one on the first conversation.
func NewView(s *styles.Styles, km *keymap.KeyMap, chat driving.ChatService, guestID string) *View {
	if s == nil {
		s = styles.DefaultStyles()
	}
	if km == nil {
		km = keymap.DefaultKeyMap()
	}

	bar := status.NewBar(s, km)
	bar.SetState(status.StateChat)

	return &View{
		styles:    s,
		keymap:    km,
		input:     input.NewField(s, "You:", "Ask about the municipality...", maxMessageLength),
		statusbar: bar,
		chat:      chat,
		ctx:       context.Background(),
		guestID:   guestID,
		width:     80,
		height:    24,
	}
}

// WithContext sets the context for service calls.
func (v *View) WithContext(ctx context.Context) *View {
	v.ctx = ctx
	return v
}

// Resume makes Init load an existing conversation instead of starting one.
func (v *View) Resume(conversationID string) *View {
	v.resumeID = conversationID
	return v
}

// Init opens the conversation on first entry.
func (v *View) Init() tea.Cmd {
	if v.conversation != nil {
		return v.input.Focus()
	}
	if v.resumeID != "" {
		return tea.Batch(v.input.Init(), v.load(v.resumeID))
	}
	return tea.Batch(v.input.Init(), v.start(false))
}

func (v *View) start(endCurrent bool) tea.Cmd {
	svc, ctx, guestID := v.chat, v.ctx, v.guestID
	var current string
	if endCurrent && v.conversation != nil && v.conversation.IsActive() {
		current = v.conversation.ID
	}
	return func() tea.Msg {
		if svc == nil {
			return messages.ConversationStarted{Err: ErrNoChatService}
		}
		if current != "" {
			if err := svc.EndConversation(ctx, current, guestID); err != nil && !errors.Is(err, domain.ErrNotFound) {
				return messages.ConversationStarted{Err: err}
			}
		}
		conv, err := svc.StartConversation(ctx, guestID, "")
		return messages.ConversationStarted{Conversation: conv, Err: err}
	}
}

func (v *View) load(id string) tea.Cmd {
	svc, ctx, guestID := v.chat, v.ctx, v.guestID
	return func() tea.Msg {
		if svc == nil {
			return messages.ConversationLoaded{Err: ErrNoChatService}
		}
		detail, err := svc.GetConversation(ctx, id, guestID)
		return messages.ConversationLoaded{Detail: detail, Err: err}
	}
}

func (v *View) end() tea.Cmd {
	svc, ctx, guestID, id := v.chat, v.ctx, v.guestID, v.conversation.ID
	return func() tea.Msg {
		return messages.ConversationEnded{ConversationID: id, Err: svc.EndConversation(ctx, id, guestID)}
	}
}

func (v *View) send(text string) tea.Cmd {
	svc, ctx := v.chat, v.ctx
	req := domain.SendRequest{ConversationID: v.conversation.ID, GuestID: v.guestID, Message: text}
	return func() tea.Msg {
		events, err := svc.SendMessage(ctx, req)
		return messages.StreamOpened{Events: events, Err: err}
	}
}

func (v *View) feedback(messageID, content string) tea.Cmd {
	svc, ctx, guestID := v.chat, v.ctx, v.guestID
	return func() tea.Msg {
		fb, err := svc.SubmitFeedback(ctx, guestID, messageID, content)
		return messages.FeedbackSubmitted{Feedback: fb, Err: err}
	}
}

// waitForEvent reads the next event of a turn.
func waitForEvent(events <-chan domain.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return messages.StreamClosed{}
		}
		return messages.StreamEvent{Event: ev}
	}
}

// Update handles messages for the chat view.
func (v *View) Update(msg tea.Msg) (*View, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.SetDimensions(msg.Width, msg.Height)
		return v, nil

	case tea.KeyMsg:
		return v.handleKeyMsg(msg)

	case messages.ConversationStarted:
		if msg.Err != nil {
			v.setError(msg.Err)
			return v, nil
		}
		v.conversation = msg.Conversation
		v.guestID = msg.Conversation.GuestID
		v.turns = nil
		v.scrollOffset = 0
		v.err = nil
		v.notice = ""
		v.statusbar.SetState(status.StateChat)
		v.statusbar.SetMessage("New conversation")
		v.input.Focus()
		return v, nil

	case messages.ConversationLoaded:
		v.resumeID = ""
		if msg.Err != nil {
			v.setError(msg.Err)
			return v, nil
		}
		conv := msg.Detail.Conversation
		v.conversation = &conv
		v.turns = turnsFrom(msg.Detail.Messages)
		v.scrollOffset = 0
		v.err = nil
		if !conv.IsActive() {
			v.notice = "This conversation has ended. Press ctrl+n to start a new one."
		}
		v.input.Focus()
		return v, nil

	case messages.ConversationEnded:
		if msg.Err != nil {
			v.setError(msg.Err)
			return v, nil
		}
		if v.conversation != nil && v.conversation.ID == msg.ConversationID {
			now := time.Now().UTC()
			v.conversation.EndedAt = &now
		}
		v.notice = "Conversation ended. Press ctrl+n to start a new one."
		return v, nil

	case messages.StreamOpened:
		if msg.Err != nil {
			v.streaming = false
			v.dropPendingAnswer()
			v.notice = describeRefusal(msg.Err)
			v.statusbar.SetState(status.StateChat)
			v.statusbar.SetMessage("")
			return v, nil
		}
		v.events = msg.Events
		return v, waitForEvent(msg.Events)

	case messages.StreamEvent:
		v.apply(msg.Event)
		if v.events == nil {
			return v, nil
		}
		return v, waitForEvent(v.events)

	case messages.StreamClosed:
		v.streaming = false
		v.events = nil
		v.statusbar.SetState(status.StateChat)
		return v, nil

	case messages.FeedbackSubmitted:
		if msg.Err != nil {
			v.notice = describeRefusal(msg.Err)
			return v, nil
		}
		v.notice = "Thank you for the feedback."
		return v, nil

	case messages.ErrorOccurred:
		v.setError(msg.Err)
		return v, nil
	}

	var cmd tea.Cmd
	v.input, cmd = v.input.Update(msg)
	return v, cmd
}

func (v *View) handleKeyMsg(msg tea.KeyMsg) (*View, tea.Cmd) {
	k := msg.String()
	switch {
	case keymap.Matches(k, v.keymap.Back):
		v.input.Blur()
		return v, func() tea.Msg {
			return messages.ViewChanged{View: messages.ViewMenu}
		}

	case keymap.Matches(k, v.keymap.NewConversation):
		if v.streaming {
			return v, nil
		}
		v.statusbar.SetMessage("Starting...")
		return v, v.start(true)

	case keymap.Matches(k, v.keymap.ToggleSources):
		v.showSources = !v.showSources
		return v, nil

	case keymap.Matches(k, v.keymap.ScrollUp):
		v.scrollOffset = min(v.scrollOffset+v.transcriptHeight()/2, v.maxScroll())
		return v, nil

	case keymap.Matches(k, v.keymap.ScrollDown):
		v.scrollOffset = max(v.scrollOffset-v.transcriptHeight()/2, 0)
		return v, nil

	case keymap.Matches(k, v.keymap.Send):
		return v.submit()
	}

	var cmd tea.Cmd
	v.input, cmd = v.input.Update(msg)
	return v, cmd
}

func (v *View) submit() (*View, tea.Cmd) {
	text := strings.TrimSpace(v.input.Value())
	if text == "" || v.streaming {
		return v, nil
	}
	if v.conversation == nil || v.chat == nil {
		v.setError(ErrNoChatService)
		return v, nil
	}
	v.input.Reset()
	v.notice = ""

	switch {
	case text == commandEnd:
		return v, v.end()
	case text == commandFeedback || strings.HasPrefix(text, commandFeedback+" "):
		content := strings.TrimSpace(strings.TrimPrefix(text, commandFeedback))
		if content == "" {
			v.notice = "Usage: /feedback <text>"
			return v, nil
		}
		id := v.lastAnswerID()
		if id == "" {
			v.notice = "There is no saved answer to give feedback on yet."
			return v, nil
		}
		return v, v.feedback(id, content)
	}

	v.turns = append(v.turns,
		Turn{Role: domain.RoleUser, Content: text},
		Turn{Role: domain.RoleAssistant},
	)
	v.streaming = true
	v.scrollOffset = 0
	v.statusbar.SetState(status.StateStreaming)
	return v, v.send(text)
}

// apply folds one stream event into the pending answer.
func (v *View) apply(ev domain.Event) {
	answer := v.pendingAnswer()

	switch data := ev.Data.(type) {
	case domain.CitationSet:
		if answer != nil {
			answer.Citations = &data
		}
	case domain.MessageDelta:
		switch {
		case answer == nil:
		case data.Replace:
			answer.Content = data.Content
		default:
			answer.Content += data.Content
		}
	case domain.TitleUpdate:
		if v.conversation != nil {
			v.conversation.Title = data.Title
		}
	case domain.MessageSaved:
		if answer != nil {
			answer.MessageID = data.MessageID
		}
	case domain.Done:
		if answer != nil && data.SourcesHidden {
			answer.Citations = nil
		}
		v.statusbar.SetMessage("")
	case domain.StreamError:
		if answer != nil {
			answer.Failed = true
			if answer.Content != "" {
				answer.Content += "\n\n"
			}
			answer.Content += data.Message
		}
	}
}

// pendingAnswer returns the assistant turn being streamed.
func (v *View) pendingAnswer() *Turn {
	if !v.streaming || len(v.turns) == 0 {
		return nil
	}
	last := &v.turns[len(v.turns)-1]
	if last.Role != domain.RoleAssistant {
		return nil
	}
	return last
}

// dropPendingAnswer removes the placeholder of a refused turn and the
// question that caused it.
func (v *View) dropPendingAnswer() {
	n := len(v.turns)
	if n >= 2 && v.turns[n-1].Role == domain.RoleAssistant && v.turns[n-1].Content == "" {
		v.turns = v.turns[:n-2]
	}
}

func (v *View) lastAnswerID() string {
	for i := len(v.turns) - 1; i >= 0; i-- {
		if v.turns[i].Role == domain.RoleAssistant && v.turns[i].MessageID != "" {
			return v.turns[i].MessageID
		}
	}
	return ""
}

func (v *View) setError(err error) {
	v.err = err
	v.statusbar.SetState(status.StateError)
	v.statusbar.SetMessage(err.Error())
}

// describeRefusal turns a synchronous refusal into the line shown to the user.
func describeRefusal(err error) string {
	var policy *domain.PolicyError
	if errors.As(err, &policy) && policy.Message != "" {
		return policy.Message
	}
	var limited *domain.RateLimitError
	if errors.As(err, &limited) {
		seconds := int(math.Ceil(limited.RetryAfter.Seconds()))
		return fmt.Sprintf("Too many requests. Try again in %d s.", max(seconds, 1))
	}
	switch {
	case errors.Is(err, domain.ErrConversationEnded):
		return "This conversation has ended. Press ctrl+n to start a new one."
	case errors.Is(err, domain.ErrInvalidInput):
		return fmt.Sprintf("The message must be between 1 and %d characters.", maxMessageLength)
	}
	return "Error: " + err.Error()
}

func turnsFrom(history []domain.Message) []Turn {
	turns := make([]Turn, 0, len(history))
	for _, m := range history {
		if !m.Role.IsValid() {
			continue
		}
		t := Turn{Role: m.Role, Content: m.Content, Citations: m.Citations}
		if m.Role == domain.RoleAssistant {
			t.MessageID = m.ID
		}
		turns = append(turns, t)
	}
	return turns
}

// View renders the chat view.
func (v *View) View() string {
	if !v.ready {
		return "Initialising..."
	}

	sections := make([]string, 0, 8)
	sections = append(sections, v.renderHeader(), "")

	lines := v.transcriptLines()
	height := v.transcriptHeight()
	end := max(len(lines)-v.scrollOffset, 0)
	start := max(end-height, 0)
	body := strings.Join(lines[start:end], "\n")
	if len(lines) == 0 {
		body = v.styles.Muted.Render("Ask anything about the municipality: office hours, waste collection, events...")
	}
	sections = append(sections, lipgloss.NewStyle().Height(height).Render(body), "")

	if v.notice != "" {
		sections = append(sections, v.styles.Warning.Render(v.notice))
	}
	sections = append(sections, v.input.View(), v.statusbar.View())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (v *View) renderHeader() string {
	title := "New conversation"
	if v.conversation != nil && v.conversation.Title != "" {
		title = v.conversation.Title
	}
	header := v.styles.Title.Render("Townhall") + "  " + v.styles.Subtitle.Render(title)
	if v.conversation != nil && !v.conversation.IsActive() {
		header += "  " + v.styles.Muted.Render("(ended)")
	}
	return header
}

func (v *View) transcriptLines() []string {
	width := max(v.width-4, 20)
	wrap := lipgloss.NewStyle().Width(width)
	var lines []string

	for i := range v.turns {
		t := &v.turns[i]
		if t.Role == domain.RoleUser {
			lines = append(lines, v.styles.Subtitle.Render("You"))
			lines = append(lines, strings.Split(v.styles.GuestMessage.Render(wrap.Render(t.Content)), "\n")...)
			lines = append(lines, "")
			continue
		}

		lines = append(lines, v.styles.Title.Render("Assistant"))
		content := t.Content
		if content == "" && v.streaming && i == len(v.turns)-1 {
			content = "..."
		}
		style := v.styles.AssistantMessage
		if t.Failed {
			style = v.styles.Error.PaddingLeft(2)
		}
		lines = append(lines, strings.Split(style.Render(wrap.Render(content)), "\n")...)
		lines = append(lines, v.citationLines(t.Citations)...)
		lines = append(lines, "")
	}
	return lines
}

func (v *View) citationLines(set *domain.CitationSet) []string {
	if set == nil || len(set.Initial)+len(set.Expanded) == 0 {
		return nil
	}
	shown := set.Initial
	if v.showSources {
		shown = set.All()
	}
	lines := make([]string, 0, len(shown)+1)
	for _, c := range shown {
		title := c.Title
		if title == "" {
			title = c.URL
		}
		lines = append(lines, v.styles.Citation.Render(fmt.Sprintf("[%d] %s (%s) %s", c.Index, title, c.Type, c.URL)))
	}
	if !v.showSources && set.HasMore {
		lines = append(lines, v.styles.Muted.PaddingLeft(4).Render(
			fmt.Sprintf("+%d more sources (ctrl+s)", len(set.Expanded))))
	}
	return lines
}

func (v *View) transcriptHeight() int {
	return max(v.height-10, 3)
}

func (v *View) maxScroll() int {
	return max(len(v.transcriptLines())-v.transcriptHeight(), 0)
}

// SetDimensions sets the view dimensions.
func (v *View) SetDimensions(width, height int) {
	v.width = width
	v.height = height
	v.ready = true
	v.input.SetWidth(width)
	v.statusbar.SetWidth(width)
}

// Conversation returns the open conversation, if any.
func (v *View) Conversation() *domain.Conversation {
	return v.conversation
}

// GuestID returns the guest identity, which the service may have minted.
func (v *View) GuestID() string {
	return v.guestID
}

// Transcript returns the turns shown so far.
func (v *View) Transcript() []Turn {
	return v.turns
}

// Streaming reports whether an answer is being received.
func (v *View) Streaming() bool {
	return v.streaming
}

// Notice returns the last informational or refusal line.
func (v *View) Notice() string {
	return v.notice
}

// SourcesExpanded reports whether all citations are shown.
func (v *View) SourcesExpanded() bool {
	return v.showSources
}

// SetInput replaces the text in the input field.
func (v *View) SetInput(text string) {
	v.input.SetValue(text)
}

// Err returns the last error.
func (v *View) Err() error {
	return v.err
}
