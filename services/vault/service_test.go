package vault

import (
	"context"
	"strings"
	"testing"

	"portalsync-backend/lib/testutil"
	"portalsync-backend/services/vault/db"

	"github.com/stretchr/testify/require"
)

func setup(t testing.TB) (Service, func()) {
	res, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "services/vault",
		DbSchema: db.Schema,
	})

	s, err := NewService(res.DB, []byte(InsecureDevKey))
	if err != nil {
		t.Fatal(err)
	}
	return s, cleanup
}

func TestKeyLength(t *testing.T) {
	res, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "services/vault",
		DbSchema: db.Schema,
	})
	defer cleanup()

	_, err := NewService(res.DB, []byte("too-short"))
	require.Error(t, err)
}

func TestEncryptRoundTrip(t *testing.T) {
	s, cleanup := setup(t)
	defer cleanup()

	for _, plaintext := range []string{
		"hunter2",
		"",
		"päßwörd with ünicode ✓",
		strings.Repeat("x", 4096),
	} {
		bundle, err := s.Encrypt(plaintext)
		require.NoError(t, err)
		require.Len(t, strings.Split(bundle, ":"), 3)

		out, err := s.Decrypt(bundle)
		require.NoError(t, err)
		require.Equal(t, plaintext, out)
	}
}

func TestEncryptNonceIsRandom(t *testing.T) {
	s, cleanup := setup(t)
	defer cleanup()

	a, err := s.Encrypt("same secret")
	require.NoError(t, err)
	b, err := s.Encrypt("same secret")
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestDecryptRejectsTampering(t *testing.T) {
	s, cleanup := setup(t)
	defer cleanup()

	bundle, err := s.Encrypt("do not touch")
	require.NoError(t, err)

	// flip one nibble in each section of the bundle
	parts := strings.Split(bundle, ":")
	for i := range parts {
		tampered := make([]string, 3)
		copy(tampered, parts)

		flip := []byte(tampered[i])
		if flip[0] == 'a' {
			flip[0] = 'b'
		} else {
			flip[0] = 'a'
		}
		tampered[i] = string(flip)

		_, err := s.Decrypt(strings.Join(tampered, ":"))
		require.Error(t, err, "tampered section %d must not decrypt", i)
	}
}

func TestDecryptRejectsMalformedBundles(t *testing.T) {
	s, cleanup := setup(t)
	defer cleanup()

	for _, bundle := range []string{
		"",
		"just-one-part",
		"two:parts",
		"zz:zz:zz",
		"deadbeef:deadbeef:deadbeef", // nonce/tag lengths wrong
	} {
		_, err := s.Decrypt(bundle)
		require.ErrorIs(t, err, ErrMalformedCiphertext, "bundle %q", bundle)
	}
}

func TestStoreRetrieve(t *testing.T) {
	s, cleanup := setup(t)
	defer cleanup()

	ctx := context.Background()

	token, err := IssueToken()
	require.NoError(t, err)
	require.Len(t, token, 64)

	err = s.Store(ctx, token, "college-portal-password")
	require.NoError(t, err)

	secret, err := s.Retrieve(ctx, token)
	require.NoError(t, err)
	require.Equal(t, "college-portal-password", secret)

	// stored form must be the bundle, never plaintext
	bundle, err := s.qry.GetCredential(ctx, token)
	require.NoError(t, err)
	require.NotContains(t, bundle, "college-portal-password")
}

func TestRetrieveMiss(t *testing.T) {
	s, cleanup := setup(t)
	defer cleanup()

	missing, err := IssueToken()
	require.NoError(t, err)

	_, err = s.Retrieve(context.Background(), missing)
	require.ErrorIs(t, err, ErrVaultMiss)
}

func TestDelete(t *testing.T) {
	s, cleanup := setup(t)
	defer cleanup()

	ctx := context.Background()

	token, err := IssueToken()
	require.NoError(t, err)
	err = s.Store(ctx, token, "soon-gone")
	require.NoError(t, err)

	err = s.Delete(ctx, token)
	require.NoError(t, err)

	_, err = s.Retrieve(ctx, token)
	require.ErrorIs(t, err, ErrVaultMiss)
}

func TestIssueTokenUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 64; i++ {
		token, err := IssueToken()
		require.NoError(t, err)
		require.False(t, seen[token])
		seen[token] = true
	}
}
