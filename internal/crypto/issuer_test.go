package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/bondledgerd/internal/domain"
)

const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestResolveIssuerFromHex(t *testing.T) {
	acct, err := ResolveIssuer(KeySource{Hex: testKeyHex})
	require.NoError(t, err)
	assert.NotEqual(t, domain.ZeroAccount, acct)

	// The 0x prefix is cosmetic.
	prefixed, err := ResolveIssuer(KeySource{Hex: "0x" + testKeyHex})
	require.NoError(t, err)
	assert.Equal(t, acct, prefixed)
}

func TestResolveIssuerFromKeyfile(t *testing.T) {
	sealed, err := SealKeyfile(testKeyHex, "hunter2")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "issuer.json")
	require.NoError(t, os.WriteFile(path, sealed, 0o600))

	fromFile, err := ResolveIssuer(KeySource{KeyfilePath: path, Passphrase: "hunter2"})
	require.NoError(t, err)

	fromHex, err := ResolveIssuer(KeySource{Hex: testKeyHex})
	require.NoError(t, err)
	assert.Equal(t, fromHex, fromFile)
}

func TestResolveIssuerWrongPassphrase(t *testing.T) {
	sealed, err := SealKeyfile(testKeyHex, "hunter2")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "issuer.json")
	require.NoError(t, os.WriteFile(path, sealed, 0o600))

	_, err = ResolveIssuer(KeySource{KeyfilePath: path, Passphrase: "wrong"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decryption failed")
}

func TestResolveIssuerRejectsBadInput(t *testing.T) {
	_, err := ResolveIssuer(KeySource{})
	assert.ErrorContains(t, err, "no issuer key source")

	_, err = ResolveIssuer(KeySource{Hex: "not-hex"})
	assert.ErrorContains(t, err, "not valid hex")

	// Valid hex but not a usable curve key.
	_, err = ResolveIssuer(KeySource{Hex: "abcd"})
	assert.ErrorContains(t, err, "issuer key rejected")
}

func TestSealKeyfileValidation(t *testing.T) {
	_, err := SealKeyfile(testKeyHex, "")
	assert.ErrorContains(t, err, "passphrase")

	_, err = SealKeyfile("abcd", "hunter2")
	assert.ErrorContains(t, err, "32 bytes")
}

func TestOpenKeyfileRejectsUnknownVersion(t *testing.T) {
	sealed, err := SealKeyfile(testKeyHex, "hunter2")
	require.NoError(t, err)

	tampered := []byte(`{"version":2}`)
	_, err = openKeyfile(tampered, "hunter2")
	assert.ErrorContains(t, err, "unsupported keyfile version")

	raw, err := openKeyfile(sealed, "hunter2")
	require.NoError(t, err)
	assert.Len(t, raw, 32)
}
