package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvOverrides_Assistant(t *testing.T) {
	t.Run("GEMINI_API_KEY sets provider if empty", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "gem-key")
		t.Setenv("OPENAI_API_KEY", "")

		cfg := &Config{}
		cfg.applyEnvOverrides()

		assert.Equal(t, "gem-key", cfg.Assistant.APIKey)
		assert.Equal(t, "gemini", cfg.Assistant.Provider)
	})

	t.Run("GEMINI_API_KEY does not override existing provider", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "gem-key")
		t.Setenv("OPENAI_API_KEY", "")

		cfg := &Config{Assistant: AssistantConfig{Provider: "custom"}}
		cfg.applyEnvOverrides()

		assert.Equal(t, "custom", cfg.Assistant.Provider)
	})

	t.Run("Precedence: OPENAI overrides GEMINI", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "gem-key")
		t.Setenv("OPENAI_API_KEY", "oa-key")

		cfg := &Config{}
		cfg.applyEnvOverrides()

		assert.Equal(t, "oa-key", cfg.Assistant.APIKey)
		assert.Equal(t, "openai", cfg.Assistant.Provider)
	})
}

func TestEnvOverrides_BackendAndStore(t *testing.T) {
	t.Setenv("MATCHCHAT_BACKEND_URL", "http://backend:9000")
	t.Setenv("MATCHCHAT_TOKEN", "tok")
	t.Setenv("MATCHCHAT_ARCHIVE", "/tmp/archive.db")
	t.Setenv("MATCHCHAT_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	assert.Equal(t, "http://backend:9000", cfg.Backend.BaseURL)
	assert.Equal(t, "tok", cfg.Backend.Token)
	assert.Equal(t, "/tmp/archive.db", cfg.Store.ArchivePath)
	assert.True(t, cfg.IsArchiveEnabled())
	assert.Equal(t, "debug", cfg.Logging.Level)
}
