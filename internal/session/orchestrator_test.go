// ABOUTME: Tests for the session orchestrator lifecycle state machine
// ABOUTME: Uses a real SQLite store and a scripted remote gateway

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raonhq/interview-gateway/internal/perso"
	"github.com/raonhq/interview-gateway/internal/store"
)

type fakeGateway struct {
	createErr   error
	eventErr    error
	sessionIDs  []string
	created     []perso.SessionConfig
	events      []string
	eventTarget []string
}

func (f *fakeGateway) CreateSession(ctx context.Context, cfg perso.SessionConfig) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, cfg)
	id := fmt.Sprintf("remote-%d", len(f.created))
	if len(f.sessionIDs) >= len(f.created) {
		id = f.sessionIDs[len(f.created)-1]
	}
	return id, nil
}

func (f *fakeGateway) SendEvent(ctx context.Context, sessionID, event, detail string) error {
	if f.eventErr != nil {
		return f.eventErr
	}
	f.events = append(f.events, event)
	f.eventTarget = append(f.eventTarget, sessionID)
	return nil
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func seedUserAndBot(t *testing.T, st *store.SQLiteStore) (userID, botID string) {
	t.Helper()
	ctx := context.Background()
	user := &store.User{
		ID:           "user-1",
		Email:        "alex@example.com",
		DisplayName:  "Alex",
		PasswordHash: "x",
		CreatedAt:    time.Now(),
	}
	require.NoError(t, st.CreateUser(ctx, user))
	bot := &store.Bot{
		ID:         "bot-1",
		Name:       "Interviewer",
		LLMType:    "gpt-4o",
		TTSType:    "neural",
		ModelStyle: "professional",
		PromptID:   "prompt-default",
		Active:     true,
		CreatedAt:  time.Now(),
	}
	require.NoError(t, st.CreateBot(ctx, bot))
	return user.ID, bot.ID
}

func TestCreateSession(t *testing.T) {
	st := newTestStore(t)
	userID, botID := seedUserAndBot(t, st)
	gw := &fakeGateway{}
	orch := New(st, gw, nil)

	res, err := orch.CreateSession(context.Background(), &CreateRequest{
		UserID: userID,
		BotID:  botID,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.SessionID)
	assert.NotEmpty(t, res.ConversationID)
	assert.Equal(t, store.StatusCreated, res.Status)

	conv, err := st.GetConversation(context.Background(), res.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, res.SessionID, conv.RemoteSessionID)
	assert.Equal(t, store.StatusCreated, conv.Status)
}

func TestCreateSessionUnknownUser(t *testing.T) {
	st := newTestStore(t)
	_, botID := seedUserAndBot(t, st)
	orch := New(st, &fakeGateway{}, nil)

	_, err := orch.CreateSession(context.Background(), &CreateRequest{
		UserID: "nobody",
		BotID:  botID,
	})
	require.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestCreateSessionUnknownBot(t *testing.T) {
	st := newTestStore(t)
	userID, _ := seedUserAndBot(t, st)
	orch := New(st, &fakeGateway{}, nil)

	_, err := orch.CreateSession(context.Background(), &CreateRequest{
		UserID: userID,
		BotID:  "no-such-bot",
	})
	require.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestCreateSessionRemoteFailure(t *testing.T) {
	st := newTestStore(t)
	userID, botID := seedUserAndBot(t, st)
	gw := &fakeGateway{createErr: errors.New("platform down")}
	orch := New(st, gw, nil)

	_, err := orch.CreateSession(context.Background(), &CreateRequest{
		UserID: userID,
		BotID:  botID,
	})
	require.Error(t, err)
	assert.Equal(t, KindSessionCreation, KindOf(err))

	// No conversation record should exist after a failed create
	convs, err := st.ListConversationsByUser(context.Background(), userID)
	require.NoError(t, err)
	assert.Empty(t, convs)
}

func TestCreateSessionUnreadableResponse(t *testing.T) {
	st := newTestStore(t)
	userID, botID := seedUserAndBot(t, st)
	gw := &fakeGateway{
		createErr: fmt.Errorf("decoding session response: %w", &json.SyntaxError{}),
	}
	orch := New(st, gw, nil)

	_, err := orch.CreateSession(context.Background(), &CreateRequest{
		UserID: userID,
		BotID:  botID,
	})
	require.Error(t, err)
	assert.Equal(t, KindParse, KindOf(err))
}

func TestCreateSessionOverridesOverlay(t *testing.T) {
	st := newTestStore(t)
	userID, botID := seedUserAndBot(t, st)
	gw := &fakeGateway{}
	orch := New(st, gw, nil)

	_, err := orch.CreateSession(context.Background(), &CreateRequest{
		UserID: userID,
		BotID:  botID,
		Overrides: Overrides{
			LLMType:  "claude-sonnet",
			PromptID: "prompt-custom",
		},
	})
	require.NoError(t, err)
	require.Len(t, gw.created, 1)
	cfg := gw.created[0]
	assert.Equal(t, "claude-sonnet", cfg.LLMType, "override wins")
	assert.Equal(t, "prompt-custom", cfg.PromptID, "override wins")
	assert.Equal(t, "neural", cfg.TTSType, "bot default survives")
	assert.Equal(t, "professional", cfg.ModelStyle, "bot default survives")
	assert.Empty(t, cfg.STTType, "empty in both stays empty")
	assert.Empty(t, cfg.DocumentID, "empty in both stays empty")
}

func TestCreateSessionContinuation(t *testing.T) {
	st := newTestStore(t)
	userID, botID := seedUserAndBot(t, st)
	gw := &fakeGateway{}
	orch := New(st, gw, nil)
	ctx := context.Background()

	first, err := orch.CreateSession(ctx, &CreateRequest{UserID: userID, BotID: botID})
	require.NoError(t, err)
	require.NoError(t, orch.StartSession(ctx, first.ConversationID))

	require.NoError(t, st.SaveMessage(ctx, &store.Message{
		ID:             "m1",
		ConversationID: first.ConversationID,
		Role:           store.RoleUser,
		Content:        "Tell me about Go channels",
		CreatedAt:      time.Now(),
	}))
	require.NoError(t, st.SaveMessage(ctx, &store.Message{
		ID:             "m2",
		ConversationID: first.ConversationID,
		Role:           store.RoleAssistant,
		Content:        "Channels are typed conduits.",
		CreatedAt:      time.Now(),
	}))
	require.NoError(t, orch.EndSession(ctx, first.ConversationID))

	second, err := orch.CreateSession(ctx, &CreateRequest{
		UserID:                 userID,
		BotID:                  botID,
		PreviousConversationID: first.ConversationID,
	})
	require.NoError(t, err)

	// The same conversation record is rebound, not a new one
	assert.Equal(t, first.ConversationID, second.ConversationID)
	conv, err := st.GetConversation(ctx, first.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, second.SessionID, conv.RemoteSessionID)
	assert.Equal(t, store.StatusCreated, conv.Status)

	require.Len(t, gw.created, 2)
	summary := gw.created[1].ExtraData["previous_context"]
	assert.Contains(t, summary, "Tell me about Go channels")
	assert.Contains(t, summary, "Channels are typed conduits.")
}

func TestStartSession(t *testing.T) {
	st := newTestStore(t)
	userID, botID := seedUserAndBot(t, st)
	gw := &fakeGateway{}
	orch := New(st, gw, nil)
	ctx := context.Background()

	res, err := orch.CreateSession(ctx, &CreateRequest{UserID: userID, BotID: botID})
	require.NoError(t, err)

	require.NoError(t, orch.StartSession(ctx, res.ConversationID))
	assert.Equal(t, []string{perso.EventSessionStart}, gw.events)
	assert.Equal(t, []string{res.SessionID}, gw.eventTarget)

	conv, err := st.GetConversation(ctx, res.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusActive, conv.Status)

	// Starting twice is a state violation
	err = orch.StartSession(ctx, res.ConversationID)
	require.Error(t, err)
	assert.Equal(t, KindSessionCreation, KindOf(err))
}

func TestStartSessionRemoteFailureKeepsState(t *testing.T) {
	st := newTestStore(t)
	userID, botID := seedUserAndBot(t, st)
	gw := &fakeGateway{}
	orch := New(st, gw, nil)
	ctx := context.Background()

	res, err := orch.CreateSession(ctx, &CreateRequest{UserID: userID, BotID: botID})
	require.NoError(t, err)

	gw.eventErr = errors.New("timeout")
	err = orch.StartSession(ctx, res.ConversationID)
	require.Error(t, err)

	conv, err := st.GetConversation(ctx, res.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCreated, conv.Status, "state untouched on remote failure")

	// Retry succeeds once the platform recovers
	gw.eventErr = nil
	require.NoError(t, orch.StartSession(ctx, res.ConversationID))
}

func TestEndSessionIdempotent(t *testing.T) {
	st := newTestStore(t)
	userID, botID := seedUserAndBot(t, st)
	gw := &fakeGateway{}
	orch := New(st, gw, nil)
	ctx := context.Background()

	res, err := orch.CreateSession(ctx, &CreateRequest{UserID: userID, BotID: botID})
	require.NoError(t, err)
	require.NoError(t, orch.StartSession(ctx, res.ConversationID))
	require.NoError(t, orch.EndSession(ctx, res.ConversationID))

	conv, err := st.GetConversation(ctx, res.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusEnded, conv.Status)
	require.NotNil(t, conv.EndedAt)

	eventsBefore := len(gw.events)
	require.NoError(t, orch.EndSession(ctx, res.ConversationID), "ending twice succeeds")
	assert.Equal(t, eventsBefore, len(gw.events), "no second remote event")
}

func TestEndSessionFromCreated(t *testing.T) {
	st := newTestStore(t)
	userID, botID := seedUserAndBot(t, st)
	orch := New(st, &fakeGateway{}, nil)
	ctx := context.Background()

	res, err := orch.CreateSession(ctx, &CreateRequest{UserID: userID, BotID: botID})
	require.NoError(t, err)

	err = orch.EndSession(ctx, res.ConversationID)
	require.Error(t, err, "cannot end a session that never started")
	assert.Equal(t, KindSessionCreation, KindOf(err))
}

func TestResolveActiveSession(t *testing.T) {
	st := newTestStore(t)
	userID, botID := seedUserAndBot(t, st)
	orch := New(st, &fakeGateway{}, nil)
	ctx := context.Background()

	res, err := orch.CreateSession(ctx, &CreateRequest{UserID: userID, BotID: botID})
	require.NoError(t, err)

	conv, err := orch.ResolveActiveSession(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, res.ConversationID, conv.ID)

	_, err = orch.ResolveActiveSession(ctx, "never-created")
	require.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestEndSessionByRemoteID(t *testing.T) {
	st := newTestStore(t)
	userID, botID := seedUserAndBot(t, st)
	orch := New(st, &fakeGateway{}, nil)
	ctx := context.Background()

	res, err := orch.CreateSession(ctx, &CreateRequest{UserID: userID, BotID: botID})
	require.NoError(t, err)
	require.NoError(t, orch.StartSession(ctx, res.ConversationID))

	require.NoError(t, orch.EndSessionByRemoteID(ctx, res.SessionID))
	conv, err := st.GetConversation(ctx, res.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusEnded, conv.Status)
}

func TestErrorKinds(t *testing.T) {
	inner := errors.New("boom")
	err := NewError(KindUpstream, "stream failed", inner)
	assert.Equal(t, KindUpstream, KindOf(err))
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "stream failed")

	wrapped := fmt.Errorf("outer: %w", err)
	assert.Equal(t, KindUpstream, KindOf(wrapped))

	assert.Equal(t, KindUpstream, KindOf(errors.New("plain")), "unclassified errors default to upstream")
}
