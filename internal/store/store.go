// ABOUTME: Store interface and data types for interview-gateway persistence
// ABOUTME: Defines Conversation, Message, User, Bot structs and sentinel errors

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateSession is returned when a remote session id is already bound
// to another conversation
var ErrDuplicateSession = errors.New("remote session already bound")

// ConversationStatus is the lifecycle state of a conversation.
// Transitions are CREATED -> ACTIVE -> ENDED, never skipping a state.
type ConversationStatus string

const (
	StatusCreated ConversationStatus = "CREATED"
	StatusActive  ConversationStatus = "ACTIVE"
	StatusEnded   ConversationStatus = "ENDED"
)

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Conversation is the durable record of one interview dialogue.
// RemoteSessionID links it to the live session on the AI platform and is
// empty until a session has been created for it.
type Conversation struct {
	ID              string
	UserID          string
	BotID           string
	RemoteSessionID string
	Status          ConversationStatus
	Title           string
	StartedAt       *time.Time
	LastMessageAt   *time.Time
	EndedAt         *time.Time
	CreatedAt       time.Time
}

// Message is one utterance within a conversation. Messages are immutable
// once created; the log is append-only.
type Message struct {
	ID             string
	ConversationID string
	Role           string
	Content        string
	CreatedAt      time.Time
}

// User is the owning principal of conversations. Credential checks happen
// upstream; the store only needs the row for ownership validation.
type User struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	CreatedAt    time.Time
}

// Bot holds the stored defaults used to create remote sessions.
type Bot struct {
	ID           string
	Name         string
	Description  string
	LLMType      string
	TTSType      string
	STTType      string
	ModelStyle   string
	PromptID     string
	DocumentID   string
	SystemPrompt string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Store defines the persistence surface for conversations and their collaborators
type Store interface {
	// Conversations
	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	GetConversationByRemoteSession(ctx context.Context, remoteSessionID string) (*Conversation, error)
	BindRemoteSession(ctx context.Context, conversationID, remoteSessionID string) error
	UpdateConversationStatus(ctx context.Context, id string, status ConversationStatus) error
	UpdateConversationTitle(ctx context.Context, id, title string) error
	TouchLastMessage(ctx context.Context, id string, at time.Time) error
	ListConversationsByUser(ctx context.Context, userID string) ([]*Conversation, error)

	// Messages
	SaveMessage(ctx context.Context, msg *Message) error
	ListMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error)
	CountMessages(ctx context.Context, conversationID string) (int, error)
	BuildContextSummary(ctx context.Context, conversationID string, maxMessages int) (string, error)

	// Users
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// Bots
	CreateBot(ctx context.Context, bot *Bot) error
	GetBot(ctx context.Context, id string) (*Bot, error)
	ListBots(ctx context.Context, activeOnly bool) ([]*Bot, error)
	UpsertBuiltinBot(ctx context.Context, bot *Bot) error

	// Close releases any resources held by the store
	Close() error
}
