package cryptox_test

import (
	"testing"

	"github.com/aussiebroadwan/tabsso/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestSealer(t *testing.T) {
	t.Parallel()

	s, err := cryptox.NewSealer([]byte("master-key-material"))
	require.NoError(t, err)

	t.Run("round trip", func(t *testing.T) {
		sealed, err := s.Seal([]byte("access-token"), []byte("sso_access_token"))
		require.NoError(t, err)
		require.NotContains(t, sealed, "access-token")

		plain, err := s.Open(sealed, []byte("sso_access_token"))
		require.NoError(t, err)
		require.Equal(t, "access-token", string(plain))
	})

	t.Run("random nonce per seal", func(t *testing.T) {
		a, err := s.Seal([]byte("v"), nil)
		require.NoError(t, err)
		b, err := s.Seal([]byte("v"), nil)
		require.NoError(t, err)
		require.NotEqual(t, a, b)
	})

	t.Run("additional data is bound", func(t *testing.T) {
		sealed, err := s.Seal([]byte("v"), []byte("key-a"))
		require.NoError(t, err)

		_, err = s.Open(sealed, []byte("key-b"))
		require.Error(t, err)
	})

	t.Run("other key material cannot open", func(t *testing.T) {
		other, err := cryptox.NewSealer([]byte("different"))
		require.NoError(t, err)

		sealed, err := s.Seal([]byte("v"), nil)
		require.NoError(t, err)

		_, err = other.Open(sealed, nil)
		require.Error(t, err)
	})

	t.Run("garbage input", func(t *testing.T) {
		_, err := s.Open("AA", nil)
		require.ErrorIs(t, err, cryptox.ErrSealedTooShort)

		_, err = s.Open("not base64 !!", nil)
		require.Error(t, err)
	})
}

func TestNewSealer_EmptyKey(t *testing.T) {
	_, err := cryptox.NewSealer(nil)
	require.Error(t, err)
}
