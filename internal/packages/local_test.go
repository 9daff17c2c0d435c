package packages

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"app.ipa", "app.ipa"},
		{"My App (1).ipa", "My_App_1_.ipa"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\me\game.ipa`, "game.ipa"},
		{".hidden.ipa", "hidden.ipa"},
		{"", "package.ipa"},
		{"..", "package.ipa"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			require.Equal(t, tt.want, SanitizeName(tt.in))
		})
	}
}

func TestSaveAndRemove(t *testing.T) {
	s, err := NewLocalStore(t.TempDir(), 0)
	require.NoError(t, err)

	path, size, err := s.Save("app.ipa", strings.NewReader("ipa-bytes"))
	require.NoError(t, err)
	require.Equal(t, int64(9), size)
	require.Equal(t, s.Dir(), filepath.Dir(path))
	require.True(t, strings.HasSuffix(path, "_app.ipa"))
	require.True(t, s.Exists(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "ipa-bytes", string(data))

	other, _, err := s.Save("app.ipa", strings.NewReader("second"))
	require.NoError(t, err)
	require.NotEqual(t, path, other)

	require.NoError(t, s.Remove(path))
	require.False(t, s.Exists(path))
	require.NoError(t, s.Remove(path))
}

func TestSaveTooLarge(t *testing.T) {
	s, err := NewLocalStore(t.TempDir(), 4)
	require.NoError(t, err)

	_, _, err = s.Save("app.ipa", strings.NewReader("12345"))
	require.ErrorIs(t, err, ErrTooLarge)

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestRemoveOutsideDir(t *testing.T) {
	s, err := NewLocalStore(t.TempDir(), 0)
	require.NoError(t, err)

	outside := filepath.Join(t.TempDir(), "x.ipa")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o600))

	require.Error(t, s.Remove(outside))
	require.Error(t, s.Remove(s.Dir()))
	_, err = os.Stat(outside)
	require.NoError(t, err)
}
