package auth

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSecretKeyGeneratesOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jwtsecret.key")

	first, err := LoadSecretKey(path)
	require.NoError(t, err)
	assert.Len(t, first, 32)

	second, err := LoadSecretKey(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestMintAndParseToken(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")

	token, err := MintToken(key, "editor", time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(key, token)
	require.NoError(t, err)
	assert.Equal(t, "editor", claims.ClientID)

	_, err = ParseToken([]byte("another key"), token)
	assert.Error(t, err)

	expired, err := MintToken(key, "editor", -time.Hour)
	require.NoError(t, err)
	_, err = ParseToken(key, expired)
	assert.Error(t, err)
}
