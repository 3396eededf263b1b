package credential

import (
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/inbox-companion/internal/apperr"
	"github.com/nhle/inbox-companion/internal/model"
)

func TestVaultRoundTrip(t *testing.T) {
	v := NewVault(keyring.NewArrayKeyring(nil))

	require.NoError(t, v.Set("imap:me@host", "s3cret"))
	got, err := v.Get("imap:me@host")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", got)

	require.NoError(t, v.Delete("imap:me@host"))
	_, err = v.Get("imap:me@host")
	assert.True(t, apperr.IsNotFound(err))
}

func TestIMAPPassword(t *testing.T) {
	cfg := model.IMAPConfig{Host: "127.0.0.1", Username: "me"}
	v := NewVault(keyring.NewArrayKeyring([]keyring.Item{
		{Key: cfg.CredentialKey(), Data: []byte("from-keyring")},
	}))

	got, err := v.IMAPPassword(cfg)
	require.NoError(t, err)
	assert.Equal(t, "from-keyring", got)

	cfg.Password = "from-config"
	got, err = v.IMAPPassword(cfg)
	require.NoError(t, err)
	assert.Equal(t, "from-config", got)

	var none *Vault
	_, err = none.IMAPPassword(model.IMAPConfig{})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}
