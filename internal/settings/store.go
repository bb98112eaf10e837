// Package settings persists the runtime model configuration and resolves it
// against environment defaults.
package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/chatrelay/chatrelay/internal/config"
	"github.com/chatrelay/chatrelay/internal/secrets"
	"github.com/chatrelay/chatrelay/pkg/models"
)

// Settings is the persisted model configuration. Zero-valued fields mean "no
// override"; resolution falls back to the environment defaults field by
// field, so a store with no overrides always resolves.
type Settings struct {
	Provider    string   `json:"provider"`
	Model       string   `json:"model"`
	BaseURL     string   `json:"base_url,omitempty"`
	APIKey      string   `json:"api_key,omitempty"`
	SystemRole  string   `json:"system_role,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature *float32 `json:"temperature,omitempty"`
	TimeoutMS   int      `json:"timeout,omitempty"`
}

// Store keeps a single row of settings in SQLite. The API key column holds
// the tagged ciphertext; plaintext keys never reach the database when a
// cipher is configured.
type Store struct {
	db     *sql.DB
	cipher *secrets.Cipher
	logger *slog.Logger
}

// ErrMissingField marks a rejected update; callers map it to a client error.
var ErrMissingField = errors.New("missing required field")

const settingsSchema = `
CREATE TABLE IF NOT EXISTS settings (
	id          INTEGER PRIMARY KEY CHECK (id = 1),
	provider    TEXT NOT NULL,
	model       TEXT NOT NULL,
	base_url    TEXT NOT NULL DEFAULT '',
	api_key     TEXT NOT NULL DEFAULT '',
	system_role TEXT NOT NULL DEFAULT '',
	max_tokens  INTEGER NOT NULL DEFAULT 0,
	temperature REAL,
	timeout_ms  INTEGER NOT NULL DEFAULT 0
);`

// NewStore opens (or creates) the settings table at path.
func NewStore(path string, cipher *secrets.Cipher, logger *slog.Logger) (*Store, error) {
	if cipher == nil {
		cipher = secrets.New("")
	}
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open settings database: %w", err)
	}
	if _, err := db.Exec(settingsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create settings table: %w", err)
	}
	return &Store{db: db, cipher: cipher, logger: logger}, nil
}

// Get returns the persisted settings, or nil when nothing has been saved.
// The API key stays in its stored (possibly encrypted) form.
func (s *Store) Get(ctx context.Context) (*Settings, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT provider, model, base_url, api_key, system_role, max_tokens, temperature, timeout_ms
		 FROM settings WHERE id = 1`)

	var stored Settings
	var temperature sql.NullFloat64
	err := row.Scan(&stored.Provider, &stored.Model, &stored.BaseURL, &stored.APIKey,
		&stored.SystemRole, &stored.MaxTokens, &temperature, &stored.TimeoutMS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if temperature.Valid {
		t := float32(temperature.Float64)
		stored.Temperature = &t
	}
	return &stored, nil
}

// Update persists new settings. Provider and model are required. The API
// key follows the partial-update policy:
//   - a value already carrying the encrypted tag is a client echo of the
//     stored secret and leaves the stored value untouched;
//   - an empty value preserves the existing stored secret;
//   - anything else is fresh plaintext, encrypted before storage.
//
// Re-submitting an encrypted echo therefore leaves the row byte-identical.
func (s *Store) Update(ctx context.Context, incoming Settings) error {
	if incoming.Provider == "" {
		return fmt.Errorf("%w: provider", ErrMissingField)
	}
	if incoming.Model == "" {
		return fmt.Errorf("%w: model", ErrMissingField)
	}

	existing, err := s.Get(ctx)
	if err != nil {
		return err
	}

	apiKey := incoming.APIKey
	switch {
	case secrets.IsEncrypted(apiKey):
		if existing != nil {
			apiKey = existing.APIKey
		}
	case apiKey == "":
		if existing != nil {
			apiKey = existing.APIKey
		}
	default:
		apiKey = s.cipher.Encrypt(apiKey)
	}

	var temperature any
	if incoming.Temperature != nil {
		temperature = float64(*incoming.Temperature)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO settings (id, provider, model, base_url, api_key, system_role, max_tokens, temperature, timeout_ms)
		 VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			provider = excluded.provider,
			model = excluded.model,
			base_url = excluded.base_url,
			api_key = excluded.api_key,
			system_role = excluded.system_role,
			max_tokens = excluded.max_tokens,
			temperature = excluded.temperature,
			timeout_ms = excluded.timeout_ms`,
		incoming.Provider, incoming.Model, incoming.BaseURL, apiKey,
		incoming.SystemRole, incoming.MaxTokens, temperature, incoming.TimeoutMS)
	if err != nil {
		return fmt.Errorf("store settings: %w", err)
	}
	return nil
}

// Resolve layers the persisted settings over the environment defaults and
// returns a complete model specification with the API key decrypted.
func (s *Store) Resolve(ctx context.Context, cfg *config.Config) (models.ModelSpec, error) {
	spec := models.ModelSpec{
		Provider:     models.Provider(cfg.LLM.Provider),
		ModelID:      cfg.LLM.Model,
		APIKey:       cfg.LLM.APIKey,
		BaseURL:      cfg.LLM.BaseURL,
		MaxTokens:    cfg.LLM.MaxTokens,
		Temperature:  cfg.LLM.Temperature,
		SystemPrompt: cfg.LLM.SystemRole,
		Timeout:      cfg.LLM.Timeout,
	}

	stored, err := s.Get(ctx)
	if err != nil {
		// A broken settings row must not take the service down; fall back to
		// the environment configuration.
		s.logger.Warn("falling back to environment model config", "error", err)
		return spec, nil
	}
	if stored == nil {
		return spec, nil
	}

	if stored.Provider != "" {
		spec.Provider = models.Provider(stored.Provider)
	}
	if stored.Model != "" {
		spec.ModelID = stored.Model
	}
	if stored.BaseURL != "" {
		spec.BaseURL = stored.BaseURL
	}
	if stored.APIKey != "" {
		spec.APIKey = s.cipher.Decrypt(stored.APIKey)
	}
	if stored.SystemRole != "" {
		spec.SystemPrompt = stored.SystemRole
	}
	if stored.MaxTokens > 0 {
		spec.MaxTokens = stored.MaxTokens
	}
	if stored.Temperature != nil {
		spec.Temperature = stored.Temperature
	}
	if stored.TimeoutMS > 0 {
		spec.Timeout = time.Duration(stored.TimeoutMS) * time.Millisecond
	}

	return spec, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
