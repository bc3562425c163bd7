// ABOUTME: Session lifecycle orchestration between the store and the AI platform
// ABOUTME: Owns the CREATED -> ACTIVE -> ENDED state machine per conversation

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/raonhq/interview-gateway/internal/perso"
	"github.com/raonhq/interview-gateway/internal/store"
)

// continuationMessages bounds the context summary carried into a
// continuation session.
const continuationMessages = 10

// RemoteGateway defines what the orchestrator needs from the platform adapter
type RemoteGateway interface {
	CreateSession(ctx context.Context, cfg perso.SessionConfig) (string, error)
	SendEvent(ctx context.Context, sessionID, event, detail string) error
}

// Store defines what the orchestrator needs from persistence
type Store interface {
	CreateConversation(ctx context.Context, conv *store.Conversation) error
	GetConversation(ctx context.Context, id string) (*store.Conversation, error)
	GetConversationByRemoteSession(ctx context.Context, remoteSessionID string) (*store.Conversation, error)
	BindRemoteSession(ctx context.Context, conversationID, remoteSessionID string) error
	UpdateConversationStatus(ctx context.Context, id string, status store.ConversationStatus) error
	BuildContextSummary(ctx context.Context, conversationID string, maxMessages int) (string, error)
	GetUser(ctx context.Context, id string) (*store.User, error)
	GetBot(ctx context.Context, id string) (*store.Bot, error)
}

// Overrides are caller-supplied session settings. Non-empty fields win over
// the bot's stored defaults; fields empty in both are omitted from the
// remote request entirely.
type Overrides struct {
	LLMType    string
	TTSType    string
	STTType    string
	ModelStyle string
	PromptID   string
	DocumentID string
}

// CreateRequest carries everything needed to create a session.
type CreateRequest struct {
	UserID    string
	BotID     string
	Overrides Overrides

	// PreviousConversationID, when set, continues an earlier conversation:
	// its recent transcript is attached as context and the existing
	// conversation record is rebound to the new remote session.
	PreviousConversationID string
}

// CreateResult describes a newly created session.
type CreateResult struct {
	SessionID      string
	ConversationID string
	CreatedAt      time.Time
	Status         store.ConversationStatus
	Config         perso.SessionConfig
}

// Orchestrator owns the session lifecycle state machine. A conversation has
// at most one live remote session at a time.
type Orchestrator struct {
	store   Store
	gateway RemoteGateway
	logger  *slog.Logger
}

// New creates an orchestrator. Pass nil logger for default.
func New(st Store, gateway RemoteGateway, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:   st,
		gateway: gateway,
		logger:  logger.With("component", "session"),
	}
}

// CreateSession validates the user and bot, builds the remote request by
// overlaying overrides on the bot's defaults, creates the remote session,
// and binds it to a conversation in state CREATED.
func (o *Orchestrator) CreateSession(ctx context.Context, req *CreateRequest) (*CreateResult, error) {
	user, err := o.store.GetUser(ctx, req.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NewError(KindNotFound, fmt.Sprintf("user %s not found", req.UserID), err)
	}
	if err != nil {
		return nil, NewError(KindPersistence, "loading user", err)
	}

	bot, err := o.store.GetBot(ctx, req.BotID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NewError(KindNotFound, fmt.Sprintf("bot %s not found", req.BotID), err)
	}
	if err != nil {
		return nil, NewError(KindPersistence, "loading bot", err)
	}

	cfg := overlayConfig(bot, req.Overrides)

	// Continuation: seed the new session with the prior transcript
	if req.PreviousConversationID != "" {
		summary, err := o.store.BuildContextSummary(ctx, req.PreviousConversationID, continuationMessages)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, NewError(KindPersistence, "building continuation context", err)
		}
		if summary != "" {
			if cfg.ExtraData == nil {
				cfg.ExtraData = make(map[string]string)
			}
			cfg.ExtraData["previous_context"] = summary
			o.logger.Info("continuation context attached",
				"previous_conversation_id", req.PreviousConversationID)
		}
	}

	sessionID, err := o.gateway.CreateSession(ctx, cfg)
	if err != nil {
		if isDecodeError(err) {
			return nil, NewError(KindParse, "remote session response unreadable", err)
		}
		return nil, NewError(KindSessionCreation, "remote session create failed", err)
	}

	conversationID, err := o.bindConversation(ctx, req, user.ID, bot.ID, sessionID)
	if err != nil {
		return nil, err
	}

	o.logger.Info("session created",
		"session_id", sessionID,
		"conversation_id", conversationID,
		"user_id", user.ID,
		"bot_id", bot.ID)

	return &CreateResult{
		SessionID:      sessionID,
		ConversationID: conversationID,
		CreatedAt:      time.Now(),
		Status:         store.StatusCreated,
		Config:         cfg,
	}, nil
}

// bindConversation creates a new conversation for the session, or rebinds the
// previous one when continuing.
func (o *Orchestrator) bindConversation(ctx context.Context, req *CreateRequest, userID, botID, sessionID string) (string, error) {
	if req.PreviousConversationID != "" {
		prev, err := o.store.GetConversation(ctx, req.PreviousConversationID)
		if err == nil && prev.UserID == userID {
			if err := o.store.BindRemoteSession(ctx, prev.ID, sessionID); err != nil {
				return "", NewError(KindPersistence, "rebinding conversation", err)
			}
			if err := o.store.UpdateConversationStatus(ctx, prev.ID, store.StatusCreated); err != nil {
				return "", NewError(KindPersistence, "resetting conversation status", err)
			}
			return prev.ID, nil
		}
		// Previous conversation gone or not owned by the caller: fall
		// through and start a fresh record.
	}

	conv := &store.Conversation{
		ID:              uuid.New().String(),
		UserID:          userID,
		BotID:           botID,
		RemoteSessionID: sessionID,
		Status:          store.StatusCreated,
		CreatedAt:       time.Now(),
	}
	if err := o.store.CreateConversation(ctx, conv); err != nil {
		return "", NewError(KindPersistence, "creating conversation", err)
	}
	return conv.ID, nil
}

// StartSession sends SESSION_START and advances CREATED -> ACTIVE.
// The conversation state is not advanced when the remote call fails.
func (o *Orchestrator) StartSession(ctx context.Context, conversationID string) error {
	conv, err := o.store.GetConversation(ctx, conversationID)
	if errors.Is(err, store.ErrNotFound) {
		return NewError(KindNotFound, fmt.Sprintf("conversation %s not found", conversationID), err)
	}
	if err != nil {
		return NewError(KindPersistence, "loading conversation", err)
	}

	if conv.Status != store.StatusCreated {
		return NewError(KindSessionCreation,
			fmt.Sprintf("cannot start session in state %s", conv.Status), nil)
	}

	if err := o.gateway.SendEvent(ctx, conv.RemoteSessionID, perso.EventSessionStart, ""); err != nil {
		return NewError(KindSessionCreation, "remote session start failed", err)
	}

	if err := o.store.UpdateConversationStatus(ctx, conversationID, store.StatusActive); err != nil {
		return NewError(KindPersistence, "marking conversation active", err)
	}

	o.logger.Info("session started", "conversation_id", conversationID)
	return nil
}

// EndSession sends SESSION_END and advances ACTIVE -> ENDED. Calling it on an
// already ENDED conversation is a no-op: network partitions make end retries
// routine, so ending twice must succeed.
func (o *Orchestrator) EndSession(ctx context.Context, conversationID string) error {
	conv, err := o.store.GetConversation(ctx, conversationID)
	if errors.Is(err, store.ErrNotFound) {
		return NewError(KindNotFound, fmt.Sprintf("conversation %s not found", conversationID), err)
	}
	if err != nil {
		return NewError(KindPersistence, "loading conversation", err)
	}

	if conv.Status == store.StatusEnded {
		o.logger.Debug("session already ended", "conversation_id", conversationID)
		return nil
	}
	if conv.Status != store.StatusActive {
		return NewError(KindSessionCreation,
			fmt.Sprintf("cannot end session in state %s", conv.Status), nil)
	}

	if err := o.gateway.SendEvent(ctx, conv.RemoteSessionID, perso.EventSessionEnd, "session ended"); err != nil {
		return NewError(KindSessionCreation, "remote session end failed", err)
	}

	if err := o.store.UpdateConversationStatus(ctx, conversationID, store.StatusEnded); err != nil {
		return NewError(KindPersistence, "marking conversation ended", err)
	}

	o.logger.Info("session ended", "conversation_id", conversationID)
	return nil
}

// EndSessionByRemoteID resolves the conversation for a remote session id and
// ends it. Convenience for callers that only hold the platform identifier.
func (o *Orchestrator) EndSessionByRemoteID(ctx context.Context, remoteSessionID string) error {
	conv, err := o.ResolveActiveSession(ctx, remoteSessionID)
	if err != nil {
		return err
	}
	return o.EndSession(ctx, conv.ID)
}

// ResolveActiveSession is the reverse lookup from a remote session id to its
// conversation. Unknown remote sessions fail with NotFound: a remote callback
// referencing a session this system never created must not fabricate state.
func (o *Orchestrator) ResolveActiveSession(ctx context.Context, remoteSessionID string) (*store.Conversation, error) {
	conv, err := o.store.GetConversationByRemoteSession(ctx, remoteSessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NewError(KindNotFound,
			fmt.Sprintf("no conversation for remote session %s", remoteSessionID), err)
	}
	if err != nil {
		return nil, NewError(KindPersistence, "resolving remote session", err)
	}
	return conv, nil
}

// isDecodeError reports whether err stems from undecodable remote JSON,
// as opposed to a transport or status failure.
func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}

// overlayConfig merges caller overrides onto the bot's stored defaults.
// A non-empty override wins; fields empty in both stay empty and are omitted
// from the remote request by the adapter.
func overlayConfig(bot *store.Bot, ov Overrides) perso.SessionConfig {
	pick := func(override, fallback string) string {
		if override != "" {
			return override
		}
		return fallback
	}
	return perso.SessionConfig{
		LLMType:    pick(ov.LLMType, bot.LLMType),
		TTSType:    pick(ov.TTSType, bot.TTSType),
		STTType:    pick(ov.STTType, bot.STTType),
		ModelStyle: pick(ov.ModelStyle, bot.ModelStyle),
		PromptID:   pick(ov.PromptID, bot.PromptID),
		DocumentID: pick(ov.DocumentID, bot.DocumentID),
	}
}
