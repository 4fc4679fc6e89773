package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/townhall/internal/core/domain"
	"github.com/custodia-labs/townhall/internal/core/ports/driven"
	"github.com/custodia-labs/townhall/internal/core/ports/driving"
	"github.com/custodia-labs/townhall/internal/logger"
)

// Ensure ChatService implements the interface.
var _ driving.ChatService = (*ChatService)(nil)

const (
	// MaxMessageLength caps a question in characters.
	MaxMessageLength = 2000

	// answerTokens caps the length of a generated answer.
	answerTokens = 1024

	genericErrorMessage = "Omlouvám se, něco se pokazilo. Zkuste to prosím za chvíli znovu."
	flaggedMessage      = "Vaše zpráva porušuje pravidla používání asistenta a nemohu na ni odpovědět."
	cooldownMessage     = "Zkuste to prosím znovu za chvíli."
)

// ChatDeps are the collaborators of the chat service.
type ChatDeps struct {
	Conversations *ConversationService
	Feedback      *FeedbackService
	Search        driving.SearchService
	Assembler     *ContextAssembler
	Citations     *CitationFormatter
	Moderation    *ModerationGate
	Offtopic      *OfftopicGate
	Limiter       *RateLimiter
	Generator     driven.Generator

	// Prompts is optional; nil uses the built-in prompts.
	Prompts driven.PromptStore
}

// ChatService runs conversation turns: moderate, retrieve, assemble context,
// stream the answer, persist it and report progress as events.
type ChatService struct {
	ChatDeps
	cfg            domain.ChatSettings
	retrievalLimit int
	genOpts        driven.GenerateOptions
}

// NewChatService creates a new chat service.
func NewChatService(deps ChatDeps, settings domain.AppSettings) *ChatService {
	return &ChatService{
		ChatDeps:       deps,
		cfg:            settings.Chat,
		retrievalLimit: settings.Retrieval.Limit,
		genOpts: driven.GenerateOptions{
			MaxTokens:   answerTokens,
			Temperature: settings.LLM.Temperature,
		},
	}
}

// StartConversation creates a conversation, minting a guest identity when
// guestID is empty. The start counts against the guest's hourly allowance
// either way.
func (s *ChatService) StartConversation(ctx context.Context, guestID, ip string) (*domain.Conversation, error) {
	minted := guestID == ""
	if !minted {
		if err := ValidateGuestID(guestID); err != nil {
			return nil, err
		}
		if err := s.Limiter.Allow(ctx, guestID, domain.RateConversationStart); err != nil {
			return nil, err
		}
	}
	conv, err := s.Conversations.Start(ctx, guestID, ip)
	if err != nil {
		return nil, err
	}
	if minted {
		// A fresh guest has no history, so this only records the start.
		if err := s.Limiter.Allow(ctx, conv.GuestID, domain.RateConversationStart); err != nil {
			return nil, err
		}
	}
	logger.Debug("Conversation %s started for guest %s", conv.ID, conv.GuestID)
	return conv, nil
}

// GetConversation returns a guest's conversation with its messages.
func (s *ChatService) GetConversation(ctx context.Context, id, guestID string) (*domain.ConversationDetail, error) {
	return s.Conversations.Detail(ctx, id, guestID)
}

// ListConversations returns a guest's conversations, most recent first.
func (s *ChatService) ListConversations(ctx context.Context, guestID string) ([]domain.Conversation, error) {
	return s.Conversations.List(ctx, guestID)
}

// EndConversation marks a conversation ended.
func (s *ChatService) EndConversation(ctx context.Context, id, guestID string) error {
	return s.Conversations.End(ctx, id, guestID)
}

// SubmitFeedback attaches feedback to an assistant message the guest owns.
func (s *ChatService) SubmitFeedback(
	ctx context.Context, guestID, messageID, content string,
) (*domain.Feedback, error) {
	return s.Feedback.Submit(ctx, guestID, messageID, content)
}

// turn carries the state of one SendMessage call into the streaming goroutine.
type turn struct {
	conv      *domain.Conversation
	question  string
	history   []domain.ChatMessage
	firstTurn bool
	events    chan domain.Event
}

// SendMessage validates and gates the message, stores it and starts the
// turn. Everything that can be rejected is rejected here, before any event
// is produced. Cancelling ctx stops generation and nothing further is stored.
func (s *ChatService) SendMessage(ctx context.Context, req domain.SendRequest) (<-chan domain.Event, error) {
	question := strings.TrimSpace(req.Message)
	if question == "" {
		return nil, fmt.Errorf("%w: empty message", domain.ErrInvalidInput)
	}
	if utf8.RuneCountInString(question) > MaxMessageLength {
		return nil, fmt.Errorf("%w: message longer than %d characters", domain.ErrInvalidInput, MaxMessageLength)
	}
	if err := ValidateGuestID(req.GuestID); err != nil {
		return nil, err
	}

	conv, err := s.Conversations.Get(ctx, req.ConversationID, req.GuestID)
	if err != nil {
		return nil, err
	}
	if !conv.IsActive() {
		return nil, domain.ErrConversationEnded
	}

	if err := s.checkPolicy(ctx, req.GuestID); err != nil {
		return nil, err
	}
	if err := s.Limiter.Allow(ctx, req.GuestID, domain.RateMessageMinute, domain.RateMessageDay); err != nil {
		return nil, err
	}

	flagged, err := s.Moderation.ShouldBlock(ctx, question)
	if err != nil {
		return nil, err
	}
	if flagged {
		if err := s.Limiter.Allow(ctx, req.GuestID, domain.RateModeration); err != nil {
			logger.Debug("Cooldown already running for %s: %v", req.GuestID, err)
		}
		return nil, &domain.PolicyError{Err: domain.ErrMessageFlagged, Message: flaggedMessage}
	}

	history, err := s.Conversations.History(ctx, conv, s.cfg.HistoryMessages)
	if err != nil {
		return nil, err
	}
	if _, err := s.Conversations.AddMessage(ctx, conv, domain.RoleUser, question, nil); err != nil {
		return nil, err
	}

	t := &turn{
		conv:      conv,
		question:  question,
		history:   history,
		firstTurn: conv.Title == "" && len(history) == 0,
		events:    make(chan domain.Event, 16),
	}
	go s.run(ctx, t)

	return t.events, nil
}

// checkPolicy refuses blocked guests and guests in moderation cooldown.
func (s *ChatService) checkPolicy(ctx context.Context, guestID string) error {
	blocked, err := s.Offtopic.IsBlocked(ctx, guestID)
	if err != nil {
		return err
	}
	if blocked {
		return &domain.PolicyError{Err: domain.ErrGuestBlocked, Message: s.Offtopic.BlockedMessage()}
	}

	err = s.Limiter.Check(ctx, guestID, domain.RateModeration)
	var rle *domain.RateLimitError
	if errors.As(err, &rle) {
		return &domain.PolicyError{Err: domain.ErrModerationCooldown, Message: cooldownMessage}
	}
	return err
}

// run drives one turn and closes the event channel when it ends.
func (s *ChatService) run(ctx context.Context, t *turn) {
	defer close(t.events)

	emit := func(typ domain.EventType, data any) bool {
		select {
		case t.events <- domain.Event{Type: typ, Data: data}:
			return true
		case <-ctx.Done():
			return false
		}
	}
	fail := func(err error, stage string) {
		if ctx.Err() != nil {
			logger.Debug("Turn in %s abandoned by client", t.conv.ID)
			return
		}
		logger.Error(err, "chat turn %s failed at %s", t.conv.ID, stage)
		emit(domain.EventError, domain.StreamError{Message: genericErrorMessage})
	}

	results, err := s.Search.Search(ctx, t.question, domain.SearchOptions{Limit: s.retrievalLimit})
	if err != nil {
		fail(err, "retrieval")
		return
	}
	assembled := s.Assembler.BuildContext(results, s.cfg.MaxContextTokens)
	logger.Debug("Context: %d tokens from %d sources", assembled.TokenCount, len(assembled.Sources))

	rules := loadPrompt(s.Prompts, domain.PromptChatRules)
	prompt := buildPrompt(systemPrompt(rules, s.cfg, s.Offtopic.Marker(), assembled.Text), t.history, t.question)
	stream, err := s.Generator.Stream(ctx, prompt, s.genOpts)
	if err != nil {
		fail(fmt.Errorf("%w: %w", domain.ErrGenerationFailed, err), "generation")
		return
	}
	defer stream.Close()

	citations := domain.CitationSet{Initial: []domain.Citation{}, Expanded: []domain.Citation{}}
	if !assembled.IsEmpty() {
		citations = s.Citations.FormatForAPI(assembled.Sources)
	}
	if !emit(domain.EventSources, citations) {
		return
	}

	answer, streamed, offtopic, ok := s.relay(ctx, stream, emit)
	if !ok {
		return
	}
	if !offtopic {
		if err := stream.Err(); err != nil {
			fail(fmt.Errorf("%w: %w", domain.ErrGenerationFailed, err), "streaming")
			return
		}
	}
	if ctx.Err() != nil {
		return
	}

	if offtopic {
		s.finishOfftopic(ctx, t, streamed, emit, fail)
		return
	}

	if strings.TrimSpace(answer) == "" {
		fail(fmt.Errorf("%w: empty answer", domain.ErrGenerationFailed), "streaming")
		return
	}

	show := s.Citations.ShouldShowSources(answer, assembled) && !citations.IsEmpty()
	var stored *domain.CitationSet
	if show {
		stored = &citations
	}
	s.finish(ctx, t, answer, stored, emit, fail)
}

// relay forwards deltas as message events. Text that might be the start of
// the off-topic marker is held back until it is clear that it is not, so the
// marker itself never reaches the client. streamed reports whether any text
// was emitted; ok is false when the client left.
func (s *ChatService) relay(
	ctx context.Context, stream driven.TokenStream, emit func(domain.EventType, any) bool,
) (answer string, streamed, offtopic, ok bool) {
	var full strings.Builder
	sent := 0

	for stream.Next() {
		full.WriteString(stream.Delta())
		text := full.String()

		if s.Offtopic.IsOfftopicResponse(text) {
			return text, sent > 0, true, true
		}

		safe := len(text) - s.Offtopic.PendingMarker(text)
		if safe > sent {
			if !emit(domain.EventMessage, domain.MessageDelta{Content: text[sent:safe]}) {
				return "", false, false, false
			}
			sent = safe
		}
	}
	if ctx.Err() != nil {
		return "", false, false, false
	}

	text := full.String()
	if stream.Err() == nil && sent < len(text) {
		if !emit(domain.EventMessage, domain.MessageDelta{Content: text[sent:]}) {
			return "", false, false, false
		}
		sent = len(text)
	}
	return text, sent > 0, false, true
}

// finishOfftopic records the violation and answers with a canned refusal.
// Text already streamed before the marker is replaced by the refusal.
func (s *ChatService) finishOfftopic(
	ctx context.Context, t *turn, streamed bool, emit func(domain.EventType, any) bool, fail func(error, string),
) {
	if err := s.Offtopic.RecordViolation(ctx, t.conv.GuestID, t.question); err != nil {
		logger.Error(err, "record off-topic violation")
	}

	reply := s.Offtopic.DeclineMessage()
	if blocked, err := s.Offtopic.IsBlocked(ctx, t.conv.GuestID); err == nil && blocked {
		reply = s.Offtopic.BlockedMessage()
	}
	logger.Info("Off-topic question in %s", t.conv.ID)

	if !emit(domain.EventMessage, domain.MessageDelta{Content: reply, Replace: streamed}) {
		return
	}
	s.finish(ctx, t, reply, nil, emit, fail)
}

// finish stores the completed answer and emits the closing events.
func (s *ChatService) finish(
	ctx context.Context,
	t *turn,
	answer string,
	citations *domain.CitationSet,
	emit func(domain.EventType, any) bool,
	fail func(error, string),
) {
	if t.firstTurn {
		title := s.generateTitle(ctx, t.question)
		if err := s.Conversations.SetTitle(ctx, t.conv, title); err != nil {
			logger.Error(err, "set title for %s", t.conv.ID)
		} else if !emit(domain.EventTitleUpdate, domain.TitleUpdate{Title: t.conv.Title}) {
			return
		}
	}

	msg, err := s.Conversations.AddMessage(ctx, t.conv, domain.RoleAssistant, answer, citations)
	if err != nil {
		fail(err, "persisting")
		return
	}
	if !emit(domain.EventMessageSaved, domain.MessageSaved{MessageID: msg.ID}) {
		return
	}
	emit(domain.EventDone, domain.Done{ConversationID: t.conv.ID, SourcesHidden: citations == nil})
}

// generateTitle asks the model for a short title and falls back to the
// beginning of the question.
func (s *ChatService) generateTitle(ctx context.Context, question string) string {
	fallback := truncateRunes(question, maxTitleRunes)
	out, err := s.Generator.Complete(ctx,
		titlePrompt(loadPrompt(s.Prompts, domain.PromptTitle), question),
		driven.GenerateOptions{MaxTokens: 32, Temperature: 0.2})
	if err != nil {
		logger.Warn("Title generation failed: %v", err)
		return fallback
	}
	if title := cleanTitle(out); title != "" && !s.Offtopic.IsOfftopicResponse(title) {
		return title
	}
	return fallback
}
