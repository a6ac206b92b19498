package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"portfolio-chat/internal/conversation"
	"portfolio-chat/internal/domain"
	"portfolio-chat/internal/intent"
	"portfolio-chat/internal/knowledge"
	"portfolio-chat/internal/redact"
	"portfolio-chat/internal/responder"
)

const (
	defaultMaxMessageLength = 300
	defaultGeneratorTimeout = 10 * time.Second
	minGeneratedLength      = 2

	actionRestart = "restart"
	actionRetry   = "retry"
)

type KnowledgeLoader interface {
	Load(ctx context.Context) (*knowledge.Base, error)
}

type SessionStore interface {
	Load(ctx context.Context, sessionID string) (domain.Session, bool, error)
	Save(ctx context.Context, s domain.Session) error
	Delete(ctx context.Context, sessionID string) error
}

// Generator is an external text-generation service.
type Generator interface {
	Chat(ctx context.Context, model string, messages []domain.ChatMessage) (string, error)
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// Options tunes a ChatService. Zero values select defaults; a nil Generator
// keeps every session on the rule-based path.
type Options struct {
	Generator        Generator
	Model            string
	GeneratorTimeout time.Duration
	ClassifierKind   intent.Kind
	MaxMessageLength int
	IdleTimeout      time.Duration
	StoreBackend     string
	Clock            func() time.Time
	Logger           *slog.Logger
}

// ChatService runs chat turns: classify, update the session context, select
// a reply and optionally let the generator rewrite it.
type ChatService struct {
	loader           KnowledgeLoader
	store            SessionStore
	generator        Generator
	model            string
	generatorTimeout time.Duration
	classifierKind   intent.Kind
	maxMessageLength int
	idleTimeout      time.Duration
	storeBackend     string
	now              func() time.Time
	logger           *slog.Logger

	engineMu sync.RWMutex
	engine   *engine
}

// engine is everything derived from the knowledge base.
type engine struct {
	kb         *knowledge.Base
	classifier intent.Classifier
	selector   *responder.Selector
}

type ChatInput struct {
	SessionID string
	Message   string
}

type SuggestionInput struct {
	SessionID string
	Action    string
	Text      string
}

// Status carries the session lifecycle flags shown by the widget.
type Status struct {
	Initialized   bool
	UsingFallback bool
	Error         bool
}

type ChatOutput struct {
	SessionID string
	Reply     domain.Reply
	Status    Status
}

type HealthInfo struct {
	Classifier       string
	GeneratorEnabled bool
	StoreBackend     string
	Ready            bool
}

func NewChatService(loader KnowledgeLoader, store SessionStore, opts Options) (*ChatService, error) {
	if loader == nil {
		return nil, errors.New("usecase: knowledge loader must not be nil")
	}
	if store == nil {
		return nil, errors.New("usecase: session store must not be nil")
	}
	if opts.Generator != nil && strings.TrimSpace(opts.Model) == "" {
		return nil, errors.New("usecase: generator model must not be empty")
	}
	kind, err := intent.ParseKind(string(opts.ClassifierKind))
	if err != nil {
		return nil, fmt.Errorf("usecase: %w", err)
	}
	if opts.GeneratorTimeout <= 0 {
		opts.GeneratorTimeout = defaultGeneratorTimeout
	}
	if opts.MaxMessageLength <= 0 {
		opts.MaxMessageLength = defaultMaxMessageLength
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = conversation.DefaultIdleTimeout
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &ChatService{
		loader:           loader,
		store:            store,
		generator:        opts.Generator,
		model:            strings.TrimSpace(opts.Model),
		generatorTimeout: opts.GeneratorTimeout,
		classifierKind:   kind,
		maxMessageLength: opts.MaxMessageLength,
		idleTimeout:      opts.IdleTimeout,
		storeBackend:     opts.StoreBackend,
		now:              opts.Clock,
		logger:           opts.Logger,
	}, nil
}

// Chat processes one visitor message. Only request validation produces an
// error; failures inside the turn become the error reply.
func (s *ChatService) Chat(ctx context.Context, in ChatInput) (out ChatOutput, err error) {
	sessionID, err := resolveSessionID(in.SessionID)
	if err != nil {
		return ChatOutput{}, err
	}
	message := s.boundMessage(in.Message)

	failed := responder.ErrorReply(message)
	defer s.recoverTurn(ctx, sessionID, failed, &out)
	return s.withSession(ctx, sessionID, failed, func(eng *engine, sess *domain.Session, mgr *conversation.Manager) domain.Reply {
		return s.respond(ctx, eng, sess, mgr, message)
	}), nil
}

// SelectSuggestion handles a suggestion chip click. The action is recorded
// as a preference; routed actions return a navigation reply and the rest are
// processed as if the chip text had been typed. A retry replays the text of
// the failed turn without recording a preference.
func (s *ChatService) SelectSuggestion(ctx context.Context, in SuggestionInput) (out ChatOutput, err error) {
	action := strings.TrimSpace(in.Action)
	if action == "" {
		return ChatOutput{}, newError(ErrorInvalidInput, "empty_action", nil)
	}
	sessionID, err := resolveSessionID(in.SessionID)
	if err != nil {
		return ChatOutput{}, err
	}
	if action == actionRestart {
		return s.Reset(ctx, sessionID)
	}
	text := s.boundMessage(in.Text)
	if action == actionRetry && text == "" {
		return ChatOutput{}, newError(ErrorInvalidInput, "empty_retry_text", nil)
	}

	failed := responder.ErrorReply(text)
	defer s.recoverTurn(ctx, sessionID, failed, &out)
	return s.withSession(ctx, sessionID, failed, func(eng *engine, sess *domain.Session, mgr *conversation.Manager) domain.Reply {
		if action == actionRetry {
			return s.respond(ctx, eng, sess, mgr, text)
		}
		if mgr.Expired() {
			mgr.Reset()
			sess.Transcript = nil
		}
		mgr.AddUserPreference(action)
		if nav, ok := eng.selector.NavigationFor(action); ok {
			return nav
		}
		return s.respond(ctx, eng, sess, mgr, text)
	}), nil
}

// Reset discards the session state, including basic mode, and returns the
// greeting.
func (s *ChatService) Reset(ctx context.Context, sessionID string) (out ChatOutput, err error) {
	sessionID, err = resolveSessionID(sessionID)
	if err != nil {
		return ChatOutput{}, err
	}

	failed := responder.RestartErrorReply()
	defer s.recoverTurn(ctx, sessionID, failed, &out)
	eng, err := s.ensureEngine(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "knowledge base unavailable", "session_id", sessionID, "err", err)
		return errorOutput(sessionID, false, failed), nil
	}
	if err := s.store.Delete(ctx, sessionID); err != nil {
		s.logger.ErrorContext(ctx, "session delete failed", "session_id", sessionID, "err", err)
		return errorOutput(sessionID, true, failed), nil
	}

	mgr := conversation.NewManager(s.managerOptions()...)
	greeting := eng.selector.Select(domain.Classification{Intent: domain.IntentGreeting, Confidence: 1}, mgr.Context(), "")
	return ChatOutput{
		SessionID: sessionID,
		Reply:     greeting,
		Status:    s.status(domain.Session{ID: sessionID}),
	}, nil
}

func (s *ChatService) Health() HealthInfo {
	s.engineMu.RLock()
	ready := s.engine != nil
	s.engineMu.RUnlock()
	return HealthInfo{
		Classifier:       string(s.classifierKind),
		GeneratorEnabled: s.generator != nil,
		StoreBackend:     s.storeBackend,
		Ready:            ready,
	}
}

// withSession loads the session, applies fn and persists the result. Nothing
// is stored when a step fails, so failed is answered and the turn can be
// replayed as is.
func (s *ChatService) withSession(ctx context.Context, sessionID string, failed domain.Reply, fn func(*engine, *domain.Session, *conversation.Manager) domain.Reply) ChatOutput {
	eng, err := s.ensureEngine(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "knowledge base unavailable", "session_id", sessionID, "err", err)
		return errorOutput(sessionID, false, failed)
	}

	sess, err := s.loadSession(ctx, sessionID)
	if err != nil {
		s.logger.ErrorContext(ctx, "session load failed", "session_id", sessionID, "err", err)
		return errorOutput(sessionID, true, failed)
	}

	mgr := conversation.Restore(sess.Context, s.managerOptions()...)
	reply := fn(eng, &sess, mgr)
	sess.Context = mgr.Context()
	sess.UpdatedAt = s.now()

	if err := s.store.Save(ctx, sess); err != nil {
		s.logger.ErrorContext(ctx, "session save failed", "session_id", sessionID, "err", err)
		return errorOutput(sessionID, true, failed)
	}
	return ChatOutput{SessionID: sessionID, Reply: reply, Status: s.status(sess)}
}

// respond runs one turn against the session.
func (s *ChatService) respond(ctx context.Context, eng *engine, sess *domain.Session, mgr *conversation.Manager, message string) domain.Reply {
	if mgr.Expired() {
		sess.Transcript = nil
	}

	sess.Turns++
	cls := eng.classifier.Classify(message)
	s.logger.DebugContext(ctx, "classified", "session_id", sess.ID, "turn", sess.Turns, "intent", cls.Intent, "confidence", cls.Confidence)

	detected := domain.IntentNone
	if !intent.ShouldHandoff(cls) {
		detected = cls.Intent
	}
	mgr.UpdateContext(message, detected)
	reply := eng.selector.Select(cls, mgr.Context(), message)

	if s.generator == nil || sess.FallbackMode || message == "" {
		return reply
	}
	text, err := s.generate(ctx, eng.kb, sess.Transcript, message)
	if err != nil {
		attrs := []any{"session_id", sess.ID, "turn", sess.Turns, "err", err}
		if status, ok := upstreamStatusCode(err); ok {
			attrs = append(attrs, "status", status)
		}
		s.logger.WarnContext(ctx, "generator failed, using basic mode", attrs...)
		sess.FallbackMode = true
		return reply
	}
	reply.Message = text
	reply.Fallback = false
	sess.Transcript = appendTranscript(sess.Transcript, redact.String(message), text)
	return reply
}

type generation struct {
	text string
	err  error
}

// generate races the generator against the configured timeout. On timeout the
// call is abandoned; its goroutine exits once the generator returns.
func (s *ChatService) generate(ctx context.Context, kb *knowledge.Base, transcript []domain.ChatMessage, message string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.generatorTimeout)
	defer cancel()

	messages := buildPromptMessages(kb, transcript, message)
	done := make(chan generation, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- generation{err: fmt.Errorf("usecase: generator panic: %v", r)}
			}
		}()
		text, err := s.generator.Chat(ctx, s.model, messages)
		done <- generation{text: text, err: err}
	}()

	select {
	case g := <-done:
		if g.err != nil {
			return "", g.err
		}
		text := strings.TrimSpace(g.text)
		if utf8.RuneCountInString(text) < minGeneratedLength {
			return "", errors.New("usecase: generator returned an empty reply")
		}
		return text, nil
	case <-ctx.Done():
		return "", fmt.Errorf("usecase: generator: %w", ctx.Err())
	}
}

func (s *ChatService) ensureEngine(ctx context.Context) (*engine, error) {
	s.engineMu.RLock()
	if s.engine != nil {
		eng := s.engine
		s.engineMu.RUnlock()
		return eng, nil
	}
	s.engineMu.RUnlock()

	s.engineMu.Lock()
	defer s.engineMu.Unlock()
	if s.engine != nil {
		return s.engine, nil
	}

	kb, err := s.loader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("usecase: load knowledge base: %w", err)
	}
	classifier, err := intent.New(s.classifierKind, kb.Patterns())
	if err != nil {
		return nil, fmt.Errorf("usecase: build classifier: %w", err)
	}
	selector, err := responder.NewSelector(kb)
	if err != nil {
		return nil, fmt.Errorf("usecase: build selector: %w", err)
	}
	s.engine = &engine{kb: kb, classifier: classifier, selector: selector}
	return s.engine, nil
}

func (s *ChatService) loadSession(ctx context.Context, sessionID string) (domain.Session, error) {
	sess, found, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if !found {
		mgr := conversation.NewManager(s.managerOptions()...)
		return domain.Session{ID: sessionID, Context: mgr.Context()}, nil
	}
	sess.ID = sessionID
	return sess, nil
}

func (s *ChatService) managerOptions() []conversation.Option {
	return []conversation.Option{
		conversation.WithClock(s.now),
		conversation.WithIdleTimeout(s.idleTimeout),
	}
}

func (s *ChatService) status(sess domain.Session) Status {
	return Status{
		Initialized:   true,
		UsingFallback: s.generator == nil || sess.FallbackMode,
	}
}

func errorOutput(sessionID string, initialized bool, reply domain.Reply) ChatOutput {
	return ChatOutput{
		SessionID: sessionID,
		Reply:     reply,
		Status:    Status{Initialized: initialized, UsingFallback: true, Error: true},
	}
}

// recoverTurn turns a panic inside a turn into the error reply.
func (s *ChatService) recoverTurn(ctx context.Context, sessionID string, failed domain.Reply, out *ChatOutput) {
	if r := recover(); r != nil {
		s.logger.ErrorContext(ctx, "turn panicked", "session_id", sessionID, "err", fmt.Sprint(r))
		*out = errorOutput(sessionID, true, failed)
	}
}

// boundMessage trims the input and truncates it to maxMessageLength runes.
func (s *ChatService) boundMessage(message string) string {
	message = strings.TrimSpace(strings.ToValidUTF8(message, ""))
	if utf8.RuneCountInString(message) > s.maxMessageLength {
		message = strings.TrimSpace(string([]rune(message)[:s.maxMessageLength]))
	}
	return message
}

func resolveSessionID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return newUUID(), nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", newError(ErrorInvalidInput, "invalid_session_id", err)
	}
	return id.String(), nil
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}

var newUUID = func() string {
	return uuid.NewString()
}
