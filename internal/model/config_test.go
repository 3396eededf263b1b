package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "starttls", cfg.IMAP.Security)
	assert.False(t, cfg.IMAP.TLSVerify)
	assert.Equal(t, []string{"INBOX"}, cfg.IMAP.Mailboxes)
	assert.Equal(t, 300, cfg.Sync.PollIntervalSec)
	assert.Equal(t, 200, cfg.Sync.BackfillDaysMax)
	assert.Equal(t, 200, cfg.Sync.FetchChunk)
	assert.Equal(t, 300, cfg.LLM.TimeoutSec)
	assert.Equal(t, 8192, cfg.LLM.NumCtx)
	assert.InDelta(t, 0.2, cfg.LLM.Temperature, 1e-9)
	assert.Equal(t, 2, cfg.Jobs.Concurrency)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
imap:
  host: mail.example.org
  port: 993
  username: me@example.org
  security: tls
  mailboxes: [INBOX, Archive]
llm:
  model: qwen2.5:7b
jobs:
  concurrency: 4
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("INBOXD_LLM_MODEL", "mistral:7b")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "mail.example.org:993", cfg.IMAP.Addr())
	assert.Equal(t, "tls", cfg.IMAP.Security)
	assert.Equal(t, []string{"INBOX", "Archive"}, cfg.IMAP.Mailboxes)
	assert.Equal(t, "mistral:7b", cfg.LLM.Model)
	assert.Equal(t, 4, cfg.Jobs.Concurrency)
	assert.Equal(t, "imap:me@example.org@mail.example.org", cfg.IMAP.CredentialKey())
}

func TestLoadConfigRejectsUnknownSecurity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("imap:\n  security: ssl3\n"), 0o600))

	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "imap.security")
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	cfg.LLM.Model = "phi3:mini"

	require.NoError(t, SaveConfig(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "phi3:mini", loaded.LLM.Model)
}

func TestAnalysisValidFor(t *testing.T) {
	a := MessageAnalysis{BodyHash: "abc", Version: AnalysisVersion}
	assert.False(t, a.ValidFor("abc"), "no payload yet")

	now := a.UpdatedAt
	a.AnalyzedAt = &now
	assert.True(t, a.ValidFor("abc"))
	assert.False(t, a.ValidFor("def"))

	a.Version = AnalysisVersion - 1
	assert.False(t, a.ValidFor("abc"))
}

func TestLabelColorStable(t *testing.T) {
	assert.Equal(t, LabelColor("finance"), LabelColor("finance"))
	assert.Contains(t, labelPalette, LabelColor("work"))
}
