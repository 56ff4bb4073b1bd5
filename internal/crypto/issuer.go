// Package crypto resolves the issuer identity: the account address derived
// from the issuer's secp256k1 signing key. The key is supplied either inline
// as hex or as a passphrase-encrypted keyfile; issuer-only ledger operations
// compare callers against the derived address.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/pbkdf2"

	"github.com/alanyoungcy/bondledgerd/internal/domain"
)

// KeySource names where the issuer signing key comes from. Exactly one of Hex
// and KeyfilePath must be set; Passphrase accompanies KeyfilePath.
type KeySource struct {
	// Hex is the key inline, 0x prefix optional. Takes precedence.
	Hex string

	// KeyfilePath points at a keyfile written by SealKeyfile.
	KeyfilePath string

	// Passphrase decrypts the keyfile.
	Passphrase string
}

// ResolveIssuer loads the signing key from the source and derives the issuer
// account address. The key never leaves this function.
func ResolveIssuer(src KeySource) (domain.Account, error) {
	raw, err := resolveKey(src)
	if err != nil {
		return domain.Account{}, err
	}

	key, err := ethcrypto.ToECDSA(raw)
	if err != nil {
		return domain.Account{}, fmt.Errorf("crypto: issuer key rejected: %w", err)
	}
	return ethcrypto.PubkeyToAddress(key.PublicKey), nil
}

func resolveKey(src KeySource) ([]byte, error) {
	switch {
	case src.Hex != "":
		raw, err := hex.DecodeString(strings.TrimPrefix(src.Hex, "0x"))
		if err != nil {
			return nil, fmt.Errorf("crypto: issuer key is not valid hex: %w", err)
		}
		return raw, nil

	case src.KeyfilePath != "":
		data, err := os.ReadFile(src.KeyfilePath)
		if err != nil {
			return nil, fmt.Errorf("crypto: read issuer keyfile: %w", err)
		}
		return openKeyfile(data, src.Passphrase)

	default:
		return nil, errors.New("crypto: no issuer key source configured")
	}
}

// Keyfile encryption parameters: PBKDF2-HMAC-SHA256 at the OWASP-recommended
// iteration count deriving an AES-256 key, AES-GCM sealing the raw key bytes.
const (
	kdfIterations  = 480_000
	kdfSaltLen     = 16
	kdfKeyLen      = 32
	keyfileVersion = 1
)

// keyfile is the on-disk JSON envelope. All binary fields are standard base64.
type keyfile struct {
	Version    int    `json:"version"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// SealKeyfile encrypts a hex-encoded signing key under a passphrase and
// returns the keyfile JSON to write to disk. Operators run this once at
// provisioning; the daemon only ever opens keyfiles.
func SealKeyfile(keyHex, passphrase string) ([]byte, error) {
	if passphrase == "" {
		return nil, errors.New("crypto: keyfile passphrase must not be empty")
	}

	raw, err := hex.DecodeString(strings.TrimPrefix(keyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto: issuer key is not valid hex: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("crypto: issuer key must be 32 bytes, got %d", len(raw))
	}

	salt := make([]byte, kdfSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: generate salt: %w", err)
	}
	aead, err := keyCipher(passphrase, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: generate nonce: %w", err)
	}

	kf := keyfile{
		Version:    keyfileVersion,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(aead.Seal(nil, nonce, raw, nil)),
	}
	return json.MarshalIndent(kf, "", "  ")
}

// openKeyfile decrypts a keyfile and returns the raw key bytes.
func openKeyfile(data []byte, passphrase string) ([]byte, error) {
	if passphrase == "" {
		return nil, errors.New("crypto: keyfile passphrase must not be empty")
	}

	var kf keyfile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("crypto: parse keyfile: %w", err)
	}
	if kf.Version != keyfileVersion {
		return nil, fmt.Errorf("crypto: unsupported keyfile version %d", kf.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(kf.Salt)
	if err != nil {
		return nil, fmt.Errorf("crypto: keyfile salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(kf.Nonce)
	if err != nil {
		return nil, fmt.Errorf("crypto: keyfile nonce: %w", err)
	}
	sealed, err := base64.StdEncoding.DecodeString(kf.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("crypto: keyfile ciphertext: %w", err)
	}

	aead, err := keyCipher(passphrase, salt)
	if err != nil {
		return nil, err
	}
	raw, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, errors.New("crypto: keyfile decryption failed, wrong passphrase or corrupt file")
	}
	return raw, nil
}

// keyCipher derives the AES-GCM cipher shared by the seal and open paths.
func keyCipher(passphrase string, salt []byte) (cipher.AEAD, error) {
	derived := pbkdf2.Key([]byte(passphrase), salt, kdfIterations, kdfKeyLen, sha256.New)
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("crypto: keyfile cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: keyfile cipher: %w", err)
	}
	return aead, nil
}
