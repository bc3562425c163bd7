// ABOUTME: Read-only catalog of platform configuration resources
// ABOUTME: Prompts, documents, model styles, AI models, memoized in a TTL cache

package perso

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/raonhq/interview-gateway/internal/cache"
)

// catalogTTL bounds how stale a cached catalog listing may be. The platform
// changes these resources rarely; an hour matches its own cache headers.
const catalogTTL = time.Hour

// Prompt is a stored system prompt on the platform.
type Prompt struct {
	ID          string `json:"prompt_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Document is an uploaded reference document on the platform.
type Document struct {
	ID   string `json:"document_id"`
	Name string `json:"name"`
}

// ModelStyle is an avatar/model style selector.
type ModelStyle struct {
	Name    string `json:"name"`
	Preview string `json:"thumbnail_url"`
}

// AIModel describes an available LLM/TTS/STT backend.
type AIModel struct {
	Type string `json:"type"` // llm, tts, stt
	Name string `json:"name"`
}

// Catalog fetches platform configuration lists with caching. Safe for
// concurrent use.
type Catalog struct {
	client *Client
	cache  *cache.Cache
}

// NewCatalog creates a catalog backed by the given client.
func NewCatalog(client *Client) *Catalog {
	return &Catalog{
		client: client,
		cache:  cache.New(catalogTTL, 32),
	}
}

// Prompts lists stored prompts.
func (c *Catalog) Prompts(ctx context.Context) ([]Prompt, error) {
	var out []Prompt
	if err := c.fetch(ctx, "/api/v1/prompt/", "prompts", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Documents lists uploaded documents.
func (c *Catalog) Documents(ctx context.Context) ([]Document, error) {
	var out []Document
	if err := c.fetch(ctx, "/api/v1/document/", "documents", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ModelStyles lists available model styles.
func (c *Catalog) ModelStyles(ctx context.Context) ([]ModelStyle, error) {
	var out []ModelStyle
	if err := c.fetch(ctx, "/api/v1/modelstyle/", "model_styles", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AIModels lists available model backends.
func (c *Catalog) AIModels(ctx context.Context) ([]AIModel, error) {
	var out []AIModel
	if err := c.fetch(ctx, "/api/v1/aimodel/", "ai_models", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Invalidate drops all cached listings.
func (c *Catalog) Invalidate() {
	for _, key := range []string{"prompts", "documents", "model_styles", "ai_models"} {
		c.cache.Invalidate(key)
	}
}

// Close releases the cache's background goroutine.
func (c *Catalog) Close() {
	c.cache.Close()
}

// fetch returns the cached listing for key, or GETs path and caches the raw
// body. dest must be a pointer to a slice of the listing's element type.
func (c *Catalog) fetch(ctx context.Context, path, key string, dest interface{}) error {
	if cached, ok := c.cache.Get(key); ok {
		return json.Unmarshal(cached.([]byte), dest)
	}

	req, err := c.client.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}

	resp, err := c.client.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return statusError(resp)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading %s: %w", key, err)
	}

	// Listings arrive either bare or wrapped in {"results": [...]}
	var wrapper struct {
		Results json.RawMessage `json:"results"`
	}
	raw := body
	if err := json.Unmarshal(body, &wrapper); err == nil && len(wrapper.Results) > 0 {
		raw = wrapper.Results
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("decoding %s: %w", key, err)
	}
	c.cache.Set(key, []byte(raw))
	return nil
}
