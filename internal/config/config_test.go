package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(values map[string]any) *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	for key, value := range values {
		v.Set(key, value)
	}
	return v
}

func TestFromViperDefaults(t *testing.T) {
	cfg := fromViper(newViper(nil))

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "sqlite3", cfg.DatabaseDriver)
	assert.Equal(t, "Zephyr", cfg.VoiceName)
	assert.Equal(t, "fr-FR", cfg.SpeechLocale)
	assert.Equal(t, 10, cfg.HistoryWindow)
	assert.Equal(t, 3, cfg.ReportMinStep)
	assert.Equal(t, 3*time.Second, cfg.ReportDelay)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
}

func TestAPIKeyLookupOrder(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]any
		want   string
	}{
		{"gemini key wins", map[string]any{"GEMINI_API_KEY": "gemini", "API_KEY": "generic"}, "gemini"},
		{"falls back to API_KEY", map[string]any{"API_KEY": "generic"}, "generic"},
		{"blank gemini key ignored", map[string]any{"GEMINI_API_KEY": "  ", "API_KEY": "generic"}, "generic"},
		{"none", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fromViper(newViper(tt.values)).GeminiAPIKey)
		})
	}
}

func TestNonPositiveHistoryWindowUsesDefault(t *testing.T) {
	cfg := fromViper(newViper(map[string]any{"HISTORY_WINDOW": 0}))
	assert.Equal(t, 10, cfg.HistoryWindow)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"http://a", "http://b"}, splitList(" http://a, ,http://b "))
	assert.Nil(t, splitList(""))
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.yaml")
	require.NoError(t, os.WriteFile(path, []byte("HTTP_PORT: \"9090\"\nVOICE_NAME: Kore\n"), 0o600))
	t.Cleanup(viper.Reset)

	require.NoError(t, LoadConfig(path))

	assert.Equal(t, "9090", AppConfig.HTTPPort)
	assert.Equal(t, "Kore", AppConfig.VoiceName)
}
