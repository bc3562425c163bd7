// ABOUTME: Built-in bot personas embedded in the binary as TOML
// ABOUTME: Seeded into the store on startup so a fresh install has interviewers

package bots

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/raonhq/interview-gateway/internal/store"
)

//go:embed personas/*.toml
var personaFS embed.FS

// personaFile is the TOML shape of one embedded persona.
type personaFile struct {
	Bot personaSpec `toml:"bot"`
}

type personaSpec struct {
	ID           string `toml:"id"`
	Name         string `toml:"name"`
	Description  string `toml:"description"`
	LLMType      string `toml:"llm_type"`
	TTSType      string `toml:"tts_type"`
	STTType      string `toml:"stt_type"`
	ModelStyle   string `toml:"model_style"`
	PromptID     string `toml:"prompt_id"`
	DocumentID   string `toml:"document_id"`
	SystemPrompt string `toml:"system_prompt"`
	Active       bool   `toml:"active"`
}

// Builtin parses the embedded personas, sorted by id for stable seeding.
func Builtin() ([]*store.Bot, error) {
	entries, err := fs.Glob(personaFS, "personas/*.toml")
	if err != nil {
		return nil, err
	}
	sort.Strings(entries)

	bots := make([]*store.Bot, 0, len(entries))
	for _, path := range entries {
		data, err := personaFS.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var pf personaFile
		if err := toml.Unmarshal(data, &pf); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		spec := pf.Bot
		if spec.ID == "" || spec.Name == "" {
			return nil, fmt.Errorf("persona %s: id and name are required", path)
		}
		now := time.Now()
		bots = append(bots, &store.Bot{
			ID:           spec.ID,
			Name:         spec.Name,
			Description:  spec.Description,
			LLMType:      spec.LLMType,
			TTSType:      spec.TTSType,
			STTType:      spec.STTType,
			ModelStyle:   spec.ModelStyle,
			PromptID:     spec.PromptID,
			DocumentID:   spec.DocumentID,
			SystemPrompt: strings.TrimSpace(spec.SystemPrompt),
			Active:       spec.Active,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}
	return bots, nil
}

// BotSeeder defines what seeding needs from the store
type BotSeeder interface {
	UpsertBuiltinBot(ctx context.Context, bot *store.Bot) error
}

// Seed upserts every built-in persona. Runs at startup so persona edits
// ship with the binary; user-created bots are untouched.
func Seed(ctx context.Context, s BotSeeder, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	bots, err := Builtin()
	if err != nil {
		return fmt.Errorf("loading builtin personas: %w", err)
	}
	for _, bot := range bots {
		if err := s.UpsertBuiltinBot(ctx, bot); err != nil {
			return fmt.Errorf("seeding bot %s: %w", bot.ID, err)
		}
	}
	logger.Info("builtin bots seeded", "count", len(bots))
	return nil
}
