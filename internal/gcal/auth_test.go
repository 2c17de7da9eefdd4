package gcal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestClassifyToken(t *testing.T) {
	tests := []struct {
		name string
		tok  *oauth2.Token
		want tokenState
	}{
		{
			name: "no cached token",
			tok:  nil,
			want: stateMissing,
		},
		{
			name: "cached and valid",
			tok: &oauth2.Token{
				AccessToken: "at",
				Expiry:      time.Now().Add(time.Hour),
			},
			want: stateValid,
		},
		{
			name: "expired with refresh token",
			tok: &oauth2.Token{
				AccessToken:  "at",
				RefreshToken: "rt",
				Expiry:       time.Now().Add(-time.Hour),
			},
			want: stateRefreshable,
		},
		{
			name: "expired without refresh token",
			tok: &oauth2.Token{
				AccessToken: "at",
				Expiry:      time.Now().Add(-time.Hour),
			},
			want: stateConsent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyToken(tt.tok))
		})
	}
}

func TestTokenCacheRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")

	tok := &oauth2.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour).Truncate(time.Second),
	}
	require.NoError(t, saveToken(path, tok))

	// Token files hold bearer credentials; nobody else should read them.
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := loadToken(path)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, tok.AccessToken, got.AccessToken)
	assert.Equal(t, tok.RefreshToken, got.RefreshToken)
	assert.True(t, tok.Expiry.Equal(got.Expiry))
}

func TestLoadTokenMissingFile(t *testing.T) {
	tok, err := loadToken(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err, "a missing cache is the NoCredential state, not an error")
	assert.Nil(t, tok)
}

func TestLoadTokenCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))

	_, err := loadToken(path)
	require.Error(t, err)
}

func TestSaveTokenOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")

	require.NoError(t, saveToken(path, &oauth2.Token{AccessToken: "old"}))
	require.NoError(t, saveToken(path, &oauth2.Token{AccessToken: "new"}))

	got, err := loadToken(path)
	require.NoError(t, err)
	assert.Equal(t, "new", got.AccessToken)
}
