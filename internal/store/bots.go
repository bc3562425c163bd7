// ABOUTME: Bot configuration persistence for the SQLite store
// ABOUTME: Stored defaults for remote session creation, with builtin upserts

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateBot inserts a new bot configuration
func (s *SQLiteStore) CreateBot(ctx context.Context, bot *Bot) error {
	now := time.Now()
	if bot.CreatedAt.IsZero() {
		bot.CreatedAt = now
	}
	bot.UpdatedAt = now

	query := `
		INSERT INTO bots (
			id, name, description, llm_type, tts_type, stt_type, model_style,
			prompt_id, document_id, system_prompt, active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		bot.ID, bot.Name, bot.Description, bot.LLMType, bot.TTSType, bot.STTType,
		bot.ModelStyle, bot.PromptID, bot.DocumentID, bot.SystemPrompt,
		boolToInt(bot.Active), formatTime(bot.CreatedAt), formatTime(bot.UpdatedAt))
	if err != nil {
		return fmt.Errorf("inserting bot: %w", err)
	}
	return nil
}

// GetBot retrieves a bot configuration by id
func (s *SQLiteStore) GetBot(ctx context.Context, id string) (*Bot, error) {
	query := `
		SELECT id, name, COALESCE(description, ''), COALESCE(llm_type, ''),
		       COALESCE(tts_type, ''), COALESCE(stt_type, ''), COALESCE(model_style, ''),
		       COALESCE(prompt_id, ''), COALESCE(document_id, ''), COALESCE(system_prompt, ''),
		       active, created_at, updated_at
		FROM bots WHERE id = ?
	`
	var bot Bot
	var active int
	var createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&bot.ID, &bot.Name, &bot.Description, &bot.LLMType, &bot.TTSType,
		&bot.STTType, &bot.ModelStyle, &bot.PromptID, &bot.DocumentID,
		&bot.SystemPrompt, &active, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying bot: %w", err)
	}

	bot.Active = active != 0
	if bot.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if bot.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &bot, nil
}

// ListBots returns all bot configurations, optionally only active ones
func (s *SQLiteStore) ListBots(ctx context.Context, activeOnly bool) ([]*Bot, error) {
	query := `SELECT id FROM bots ORDER BY name ASC`
	if activeOnly {
		query = `SELECT id FROM bots WHERE active = 1 ORDER BY name ASC`
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing bots: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning bot id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	bots := make([]*Bot, 0, len(ids))
	for _, id := range ids {
		bot, err := s.GetBot(ctx, id)
		if err != nil {
			return nil, err
		}
		bots = append(bots, bot)
	}
	return bots, nil
}

// UpsertBuiltinBot inserts or refreshes a built-in bot definition.
// Builtins are re-seeded on every startup so definition changes take effect.
func (s *SQLiteStore) UpsertBuiltinBot(ctx context.Context, bot *Bot) error {
	now := time.Now()
	query := `
		INSERT INTO bots (
			id, name, description, llm_type, tts_type, stt_type, model_style,
			prompt_id, document_id, system_prompt, active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			llm_type = excluded.llm_type,
			tts_type = excluded.tts_type,
			stt_type = excluded.stt_type,
			model_style = excluded.model_style,
			prompt_id = excluded.prompt_id,
			document_id = excluded.document_id,
			system_prompt = excluded.system_prompt,
			active = excluded.active,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		bot.ID, bot.Name, bot.Description, bot.LLMType, bot.TTSType, bot.STTType,
		bot.ModelStyle, bot.PromptID, bot.DocumentID, bot.SystemPrompt,
		boolToInt(bot.Active), formatTime(now), formatTime(now))
	if err != nil {
		return fmt.Errorf("upserting builtin bot: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
