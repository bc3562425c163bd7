// ABOUTME: Chat turn pipeline - persistence-first streaming between store and platform
// ABOUTME: History is the source of truth; every turn replays it to the remote session

package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/raonhq/interview-gateway/internal/perso"
	"github.com/raonhq/interview-gateway/internal/session"
	"github.com/raonhq/interview-gateway/internal/store"
)

const (
	// titleMaxRunes bounds the conversation title derived from the first
	// user utterance.
	titleMaxRunes = 30

	// eventBufferSize matches the platform stream buffer.
	eventBufferSize = 16

	// persistTimeout bounds detached writes that must survive request
	// cancellation.
	persistTimeout = 5 * time.Second
)

// EventType identifies a chat stream event.
type EventType string

const (
	EventText  EventType = "text"
	EventError EventType = "error"
	EventDone  EventType = "done"
)

// Event is one unit of a streamed chat turn. Text events carry a fragment,
// Done carries the full assistant reply and its message id, Error carries
// the failure that terminated the stream.
type Event struct {
	Type      EventType
	Text      string
	MessageID string
	Err       error
}

// ChatStore defines what the pipeline needs from persistence
type ChatStore interface {
	GetConversation(ctx context.Context, id string) (*store.Conversation, error)
	SaveMessage(ctx context.Context, msg *store.Message) error
	ListMessages(ctx context.Context, conversationID string, limit int) ([]*store.Message, error)
	UpdateConversationTitle(ctx context.Context, id, title string) error
	TouchLastMessage(ctx context.Context, id string, at time.Time) error
}

// Streamer defines what the pipeline needs from the platform adapter
type Streamer interface {
	ChatStream(ctx context.Context, sessionID string, history []perso.ChatTurn) (<-chan *perso.StreamEvent, error)
}

// Pipeline runs chat turns. Turns on the same conversation are serialized:
// the conversation lock is held from user-message persistence through the
// final assistant commit.
type Pipeline struct {
	store    ChatStore
	streamer Streamer
	logger   *slog.Logger
	locks    *lockArena
}

// New creates a chat pipeline. Pass nil logger for default.
func New(st ChatStore, streamer Streamer, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:    st,
		streamer: streamer,
		logger:   logger.With("component", "chat"),
		locks:    newLockArena(),
	}
}

// TurnRequest is one user utterance aimed at a conversation.
type TurnRequest struct {
	ConversationID string
	Content        string
}

// TurnResult is the handle for a streaming turn.
type TurnResult struct {
	ConversationID string
	UserMessageID  string
	Stream         <-chan *Event
}

// StreamTurn records the user message, replays the full history to the
// remote session, and returns a channel of assistant fragments.
//
// Record first, then act: the user message is persisted before the remote
// call, so a record exists even when the platform fails. The assistant reply
// is accumulated and committed exactly once when the stream completes. A
// mid-stream failure discards the accumulator; a caller disconnect stops
// forwarding but commits the partial reply.
func (p *Pipeline) StreamTurn(ctx context.Context, req *TurnRequest) (*TurnResult, error) {
	if req.Content == "" {
		return nil, fmt.Errorf("content is required")
	}

	p.locks.acquire(req.ConversationID)
	held := true
	defer func() {
		if held {
			p.locks.release(req.ConversationID)
		}
	}()

	conv, err := p.store.GetConversation(ctx, req.ConversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, session.NewError(session.KindNotFound,
				fmt.Sprintf("conversation %s not found", req.ConversationID), err)
		}
		return nil, session.NewError(session.KindPersistence, "loading conversation", err)
	}
	if conv.Status != store.StatusActive {
		return nil, session.NewError(session.KindSessionCreation,
			fmt.Sprintf("conversation is %s, not ACTIVE", conv.Status), nil)
	}

	now := time.Now()
	userMsg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Role:           store.RoleUser,
		Content:        req.Content,
		CreatedAt:      now,
	}
	if err := p.store.SaveMessage(ctx, userMsg); err != nil {
		return nil, session.NewError(session.KindPersistence, "recording user message", err)
	}
	p.logger.Debug("user message recorded",
		"conversation_id", conv.ID,
		"message_id", userMsg.ID)

	if conv.Title == "" {
		title := deriveTitle(req.Content)
		if err := p.store.UpdateConversationTitle(ctx, conv.ID, title); err != nil {
			p.logger.Error("failed to set conversation title",
				"error", err,
				"conversation_id", conv.ID)
		}
	}

	history, err := p.loadHistory(ctx, conv.ID)
	if err != nil {
		return nil, session.NewError(session.KindPersistence, "loading history", err)
	}

	upstream, err := p.streamer.ChatStream(ctx, conv.RemoteSessionID, history)
	if err != nil {
		// User message stays recorded even though the platform refused
		return nil, session.NewError(session.KindUpstream, "chat stream failed to open", err)
	}

	out := make(chan *Event, eventBufferSize)
	held = false
	go p.pump(ctx, conv.ID, upstream, out)

	return &TurnResult{
		ConversationID: conv.ID,
		UserMessageID:  userMsg.ID,
		Stream:         out,
	}, nil
}

// pump forwards fragments, accumulates the reply, and commits it on
// completion. Runs with the conversation lock held; releases it on exit.
func (p *Pipeline) pump(ctx context.Context, conversationID string, in <-chan *perso.StreamEvent, out chan<- *Event) {
	defer p.locks.release(conversationID)
	defer close(out)

	var acc strings.Builder

	for ev := range in {
		switch ev.Type {
		case perso.StreamError:
			// Discard the accumulator: a broken reply must not enter
			// the history as if the assistant said it
			p.logger.Warn("chat stream failed",
				"conversation_id", conversationID,
				"error", ev.Err,
				"discarded_bytes", acc.Len())
			p.send(ctx, out, &Event{Type: EventError, Err: ev.Err})
			return

		case perso.StreamText:
			acc.WriteString(ev.Text)
			if !p.send(ctx, out, &Event{Type: EventText, Text: ev.Text}) {
				// Caller is gone. Keep what the assistant already said,
				// drain the remainder without forwarding.
				for range in {
				}
				p.commitReply(conversationID, acc.String())
				return
			}
		}
	}

	msgID := p.commitReply(conversationID, acc.String())
	p.send(ctx, out, &Event{Type: EventDone, Text: acc.String(), MessageID: msgID})
}

// send forwards one event, returning false when the caller disconnected.
func (p *Pipeline) send(ctx context.Context, out chan<- *Event, ev *Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// commitReply saves the accumulated assistant reply with a detached timeout
// context so persistence survives request cancellation. Empty replies are
// not recorded. Returns the saved message id, or "" when nothing was saved.
func (p *Pipeline) commitReply(conversationID, content string) string {
	if content == "" {
		return ""
	}

	saveCtx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	now := time.Now()
	msg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Role:           store.RoleAssistant,
		Content:        content,
		CreatedAt:      now,
	}
	if err := p.store.SaveMessage(saveCtx, msg); err != nil {
		p.logger.Error("failed to save assistant reply",
			"error", err,
			"conversation_id", conversationID,
			"message_id", msg.ID)
		return ""
	}
	if err := p.store.TouchLastMessage(saveCtx, conversationID, now); err != nil {
		p.logger.Error("failed to touch conversation",
			"error", err,
			"conversation_id", conversationID)
	}
	p.logger.Debug("assistant reply saved",
		"conversation_id", conversationID,
		"message_id", msg.ID,
		"length", len(content))
	return msg.ID
}

// loadHistory converts the stored transcript, including the message just
// recorded, into the wire shape the platform expects.
func (p *Pipeline) loadHistory(ctx context.Context, conversationID string) ([]perso.ChatTurn, error) {
	msgs, err := p.store.ListMessages(ctx, conversationID, 0)
	if err != nil {
		return nil, err
	}
	history := make([]perso.ChatTurn, 0, len(msgs))
	for _, m := range msgs {
		history = append(history, perso.ChatTurn{Role: m.Role, Content: m.Content})
	}
	return history, nil
}

// CompleteTurn runs a turn to completion and returns the full assistant
// reply. Non-streaming callers use this instead of StreamTurn.
func (p *Pipeline) CompleteTurn(ctx context.Context, req *TurnRequest) (*store.Message, error) {
	res, err := p.StreamTurn(ctx, req)
	if err != nil {
		return nil, err
	}

	var reply *store.Message
	for ev := range res.Stream {
		switch ev.Type {
		case EventError:
			return nil, session.NewError(session.KindUpstream, "chat turn failed", ev.Err)
		case EventDone:
			reply = &store.Message{
				ID:             ev.MessageID,
				ConversationID: res.ConversationID,
				Role:           store.RoleAssistant,
				Content:        ev.Text,
				CreatedAt:      time.Now(),
			}
		}
	}
	if reply == nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, session.NewError(session.KindUpstream, "stream ended without a reply", nil)
	}
	return reply, nil
}

// deriveTitle builds a conversation title from the first user utterance,
// truncated to titleMaxRunes with an ellipsis.
func deriveTitle(content string) string {
	title := strings.Join(strings.Fields(content), " ")
	runes := []rune(title)
	if len(runes) <= titleMaxRunes {
		return title
	}
	return string(runes[:titleMaxRunes]) + "..."
}
