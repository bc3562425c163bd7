// ABOUTME: Tests for conversation and message persistence
// ABOUTME: Covers lifecycle status updates, message ordering, and context summaries

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func seedConversation(t *testing.T, store *SQLiteStore, id, userID, remoteSessionID string) *Conversation {
	t.Helper()
	conv := &Conversation{
		ID:              id,
		UserID:          userID,
		BotID:           "bot-1",
		RemoteSessionID: remoteSessionID,
		Status:          StatusCreated,
		CreatedAt:       time.Now(),
	}
	if err := store.CreateConversation(context.Background(), conv); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	return conv
}

func TestCreateAndGetConversation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, "user-1")
	seedConversation(t, store, "conv-1", "user-1", "remote-1")

	got, err := store.GetConversation(ctx, "conv-1")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}

	if got.ID != "conv-1" {
		t.Errorf("ID mismatch: got %q, want %q", got.ID, "conv-1")
	}
	if got.UserID != "user-1" {
		t.Errorf("UserID mismatch: got %q, want %q", got.UserID, "user-1")
	}
	if got.RemoteSessionID != "remote-1" {
		t.Errorf("RemoteSessionID mismatch: got %q, want %q", got.RemoteSessionID, "remote-1")
	}
	if got.Status != StatusCreated {
		t.Errorf("Status mismatch: got %q, want %q", got.Status, StatusCreated)
	}
	if got.StartedAt != nil || got.EndedAt != nil || got.LastMessageAt != nil {
		t.Error("new conversation should have no transition timestamps")
	}
}

func TestGetConversation_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetConversation(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetConversationByRemoteSession(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, "user-1")
	seedConversation(t, store, "conv-1", "user-1", "remote-1")

	got, err := store.GetConversationByRemoteSession(ctx, "remote-1")
	if err != nil {
		t.Fatalf("GetConversationByRemoteSession failed: %v", err)
	}
	if got.ID != "conv-1" {
		t.Errorf("ID mismatch: got %q, want %q", got.ID, "conv-1")
	}

	if _, err := store.GetConversationByRemoteSession(ctx, "unknown"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown session, got %v", err)
	}
}

func TestCreateConversation_DuplicateRemoteSession(t *testing.T) {
	store := newTestStore(t)
	seedUser(t, store, "user-1")
	seedConversation(t, store, "conv-1", "user-1", "remote-1")

	err := store.CreateConversation(context.Background(), &Conversation{
		ID:              "conv-2",
		UserID:          "user-1",
		RemoteSessionID: "remote-1",
		Status:          StatusCreated,
		CreatedAt:       time.Now(),
	})
	if !errors.Is(err, ErrDuplicateSession) {
		t.Errorf("expected ErrDuplicateSession, got %v", err)
	}
}

func TestBindRemoteSession(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, "user-1")
	seedConversation(t, store, "conv-1", "user-1", "remote-1")

	if err := store.BindRemoteSession(ctx, "conv-1", "remote-2"); err != nil {
		t.Fatalf("BindRemoteSession failed: %v", err)
	}

	got, err := store.GetConversationByRemoteSession(ctx, "remote-2")
	if err != nil {
		t.Fatalf("lookup by new session failed: %v", err)
	}
	if got.ID != "conv-1" {
		t.Errorf("ID mismatch: got %q, want %q", got.ID, "conv-1")
	}

	// Old binding is gone
	if _, err := store.GetConversationByRemoteSession(ctx, "remote-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected old binding removed, got %v", err)
	}

	if err := store.BindRemoteSession(ctx, "missing", "remote-3"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing conversation, got %v", err)
	}
}

func TestUpdateConversationStatus_RecordsTimestamps(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, "user-1")
	seedConversation(t, store, "conv-1", "user-1", "remote-1")

	if err := store.UpdateConversationStatus(ctx, "conv-1", StatusActive); err != nil {
		t.Fatalf("UpdateConversationStatus(ACTIVE) failed: %v", err)
	}
	got, err := store.GetConversation(ctx, "conv-1")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if got.Status != StatusActive {
		t.Errorf("Status mismatch: got %q, want %q", got.Status, StatusActive)
	}
	if got.StartedAt == nil {
		t.Error("started_at should be set on ACTIVE")
	}
	if got.EndedAt != nil {
		t.Error("ended_at should not be set yet")
	}

	if err := store.UpdateConversationStatus(ctx, "conv-1", StatusEnded); err != nil {
		t.Fatalf("UpdateConversationStatus(ENDED) failed: %v", err)
	}
	got, err = store.GetConversation(ctx, "conv-1")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if got.Status != StatusEnded {
		t.Errorf("Status mismatch: got %q, want %q", got.Status, StatusEnded)
	}
	if got.EndedAt == nil {
		t.Error("ended_at should be set on ENDED")
	}

	if err := store.UpdateConversationStatus(ctx, "missing", StatusActive); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing conversation, got %v", err)
	}
}

func TestUpdateConversationTitle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, "user-1")
	seedConversation(t, store, "conv-1", "user-1", "remote-1")

	if err := store.UpdateConversationTitle(ctx, "conv-1", "Mock interview"); err != nil {
		t.Fatalf("UpdateConversationTitle failed: %v", err)
	}

	got, err := store.GetConversation(ctx, "conv-1")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if got.Title != "Mock interview" {
		t.Errorf("Title mismatch: got %q, want %q", got.Title, "Mock interview")
	}
}

func TestListConversationsByUser_OrdersByActivity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, "user-1")
	seedUser(t, store, "user-2")
	seedConversation(t, store, "conv-old", "user-1", "remote-1")
	seedConversation(t, store, "conv-new", "user-1", "remote-2")
	seedConversation(t, store, "conv-other", "user-2", "remote-3")

	// conv-old had the most recent message
	if err := store.TouchLastMessage(ctx, "conv-old", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("TouchLastMessage failed: %v", err)
	}

	convs, err := store.ListConversationsByUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListConversationsByUser failed: %v", err)
	}
	if len(convs) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(convs))
	}
	if convs[0].ID != "conv-old" {
		t.Errorf("expected most recently active first, got %q", convs[0].ID)
	}
	for _, c := range convs {
		if c.UserID != "user-1" {
			t.Errorf("conversation %q belongs to %q, not user-1", c.ID, c.UserID)
		}
	}
}

func TestSaveMessage_PreservesAppendOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, "user-1")
	seedConversation(t, store, "conv-1", "user-1", "remote-1")

	base := time.Now()
	// Second message carries an earlier wall-clock time; the log must still
	// replay in append order.
	msgs := []*Message{
		{ID: "m1", ConversationID: "conv-1", Role: RoleUser, Content: "first", CreatedAt: base},
		{ID: "m2", ConversationID: "conv-1", Role: RoleAssistant, Content: "second", CreatedAt: base.Add(-time.Minute)},
		{ID: "m3", ConversationID: "conv-1", Role: RoleUser, Content: "third", CreatedAt: base.Add(time.Second)},
	}
	for _, m := range msgs {
		if err := store.SaveMessage(ctx, m); err != nil {
			t.Fatalf("SaveMessage(%s) failed: %v", m.ID, err)
		}
	}

	got, err := store.ListMessages(ctx, "conv-1", 0)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got))
	}
	for i, want := range []string{"first", "second", "third"} {
		if got[i].Content != want {
			t.Errorf("message %d: got %q, want %q", i, got[i].Content, want)
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i].CreatedAt.Before(got[i-1].CreatedAt) {
			t.Errorf("timestamps decrease at message %d", i)
		}
	}
}

func TestListMessages_Limit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, "user-1")
	seedConversation(t, store, "conv-1", "user-1", "remote-1")

	for i := 0; i < 5; i++ {
		err := store.SaveMessage(ctx, &Message{
			ID:             fmt.Sprintf("m%d", i),
			ConversationID: "conv-1",
			Role:           RoleUser,
			Content:        fmt.Sprintf("message %d", i),
		})
		if err != nil {
			t.Fatalf("SaveMessage failed: %v", err)
		}
	}

	got, err := store.ListMessages(ctx, "conv-1", 2)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got))
	}
	// The last two, oldest first
	if got[0].Content != "message 3" || got[1].Content != "message 4" {
		t.Errorf("expected last two messages in order, got %q, %q", got[0].Content, got[1].Content)
	}
}

func TestCountMessages(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, "user-1")
	seedConversation(t, store, "conv-1", "user-1", "remote-1")

	count, err := store.CountMessages(ctx, "conv-1")
	if err != nil {
		t.Fatalf("CountMessages failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 messages, got %d", count)
	}

	for i := 0; i < 3; i++ {
		err := store.SaveMessage(ctx, &Message{
			ID:             fmt.Sprintf("m%d", i),
			ConversationID: "conv-1",
			Role:           RoleUser,
			Content:        "x",
		})
		if err != nil {
			t.Fatalf("SaveMessage failed: %v", err)
		}
	}

	count, err = store.CountMessages(ctx, "conv-1")
	if err != nil {
		t.Fatalf("CountMessages failed: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 messages, got %d", count)
	}
}

func TestBuildContextSummary(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, "user-1")
	seedConversation(t, store, "conv-1", "user-1", "remote-1")

	turns := []struct{ role, content string }{
		{RoleUser, "Tell me about Go"},
		{RoleAssistant, "Go is a statically typed language"},
		{RoleUser, "What about goroutines?"},
	}
	for i, turn := range turns {
		err := store.SaveMessage(ctx, &Message{
			ID:             fmt.Sprintf("m%d", i),
			ConversationID: "conv-1",
			Role:           turn.role,
			Content:        turn.content,
		})
		if err != nil {
			t.Fatalf("SaveMessage failed: %v", err)
		}
	}

	summary, err := store.BuildContextSummary(ctx, "conv-1", 10)
	if err != nil {
		t.Fatalf("BuildContextSummary failed: %v", err)
	}

	if !strings.HasPrefix(summary, contextSummaryHeader) {
		t.Errorf("summary missing header: %q", summary)
	}
	if !strings.HasSuffix(summary, contextSummaryInstruction) {
		t.Errorf("summary missing instruction: %q", summary)
	}
	if !strings.Contains(summary, "user: Tell me about Go") {
		t.Errorf("summary missing role-labelled message: %q", summary)
	}
	if !strings.Contains(summary, "assistant: Go is a statically typed language") {
		t.Errorf("summary missing assistant message: %q", summary)
	}
}

func TestBuildContextSummary_BoundsMessages(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, "user-1")
	seedConversation(t, store, "conv-1", "user-1", "remote-1")

	for i := 0; i < 6; i++ {
		err := store.SaveMessage(ctx, &Message{
			ID:             fmt.Sprintf("m%d", i),
			ConversationID: "conv-1",
			Role:           RoleUser,
			Content:        fmt.Sprintf("message %d", i),
		})
		if err != nil {
			t.Fatalf("SaveMessage failed: %v", err)
		}
	}

	summary, err := store.BuildContextSummary(ctx, "conv-1", 2)
	if err != nil {
		t.Fatalf("BuildContextSummary failed: %v", err)
	}

	if strings.Contains(summary, "message 3") {
		t.Errorf("summary should only include the last 2 messages: %q", summary)
	}
	if !strings.Contains(summary, "message 4") || !strings.Contains(summary, "message 5") {
		t.Errorf("summary missing recent messages: %q", summary)
	}
}

func TestBuildContextSummary_EmptyConversation(t *testing.T) {
	store := newTestStore(t)
	seedUser(t, store, "user-1")
	seedConversation(t, store, "conv-1", "user-1", "remote-1")

	summary, err := store.BuildContextSummary(context.Background(), "conv-1", 10)
	if err != nil {
		t.Fatalf("BuildContextSummary failed: %v", err)
	}
	if summary != "" {
		t.Errorf("expected empty summary for empty conversation, got %q", summary)
	}
}
