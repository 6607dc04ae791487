package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/staylink/connections/connection"
)

const (
	masterKeyEnvVar = "CONNECTIONS_MASTER_KEY"
	masterKeySize   = 32
	dataKeySize     = 32
	boxNonceSize    = 24
)

// MasterKey wraps and unwraps per-record data keys. In production the
// implementation delegates to a key-management service; LocalMasterKey
// keeps the key in process memory.
type MasterKey interface {
	Wrap(dataKey []byte) ([]byte, error)
	Unwrap(wrapped []byte) ([]byte, error)
}

// LocalMasterKey seals data keys with nacl/secretbox under a 32-byte key
// held in memory.
type LocalMasterKey struct {
	key [masterKeySize]byte
}

// NewLocalMasterKey builds a master key from raw bytes.
func NewLocalMasterKey(key []byte) (*LocalMasterKey, error) {
	if len(key) != masterKeySize {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", masterKeySize, len(key))
	}
	m := &LocalMasterKey{}
	copy(m.key[:], key)
	return m, nil
}

// MasterKeyFromEnv loads the base64 master key from CONNECTIONS_MASTER_KEY.
func MasterKeyFromEnv() (*LocalMasterKey, error) {
	kb64 := strings.TrimSpace(os.Getenv(masterKeyEnvVar))
	if kb64 == "" {
		return nil, fmt.Errorf("%s not set; generate one with: openssl rand -base64 32", masterKeyEnvVar)
	}
	k, err := base64.StdEncoding.DecodeString(kb64)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", masterKeyEnvVar, err)
	}
	return NewLocalMasterKey(k)
}

// Wrap seals the data key, prepending the random nonce.
func (m *LocalMasterKey) Wrap(dataKey []byte) ([]byte, error) {
	var nonce [boxNonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("nonce random: %w", err)
	}
	return secretbox.Seal(nonce[:], dataKey, &nonce, &m.key), nil
}

// Unwrap opens a sealed data key.
func (m *LocalMasterKey) Unwrap(wrapped []byte) ([]byte, error) {
	if len(wrapped) < boxNonceSize {
		return nil, errors.New("wrapped key too short")
	}
	var nonce [boxNonceSize]byte
	copy(nonce[:], wrapped[:boxNonceSize])
	key, ok := secretbox.Open(nil, wrapped[boxNonceSize:], &nonce, &m.key)
	if !ok {
		return nil, errors.New("wrapped key authentication failed")
	}
	return key, nil
}

// envelope is one sealed credential: the AES-GCM ciphertext (nonce
// prepended) plus the wrapped data key that opens it.
type envelope struct {
	WrappedKey []byte
	Ciphertext []byte
}

// seal encrypts the credential under a fresh data key.
func seal(master MasterKey, cred *connection.Credential) (*envelope, error) {
	plaintext, err := json.Marshal(cred)
	if err != nil {
		return nil, fmt.Errorf("marshal credential: %w", err)
	}

	dataKey := make([]byte, dataKeySize)
	if _, err := io.ReadFull(rand.Reader, dataKey); err != nil {
		return nil, fmt.Errorf("data key random: %w", err)
	}

	block, err := aes.NewCipher(dataKey)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	nonce := make([]byte, aesgcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("nonce random: %w", err)
	}
	ct := aesgcm.Seal(nonce, nonce, plaintext, nil)

	wrapped, err := master.Wrap(dataKey)
	if err != nil {
		return nil, fmt.Errorf("wrap data key: %w", err)
	}
	return &envelope{WrappedKey: wrapped, Ciphertext: ct}, nil
}

// open decrypts a sealed credential.
func open(master MasterKey, env *envelope) (*connection.Credential, error) {
	dataKey, err := master.Unwrap(env.WrappedKey)
	if err != nil {
		return nil, fmt.Errorf("unwrap data key: %w", err)
	}

	block, err := aes.NewCipher(dataKey)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	if len(env.Ciphertext) < aesgcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce := env.Ciphertext[:aesgcm.NonceSize()]
	pt, err := aesgcm.Open(nil, nonce, env.Ciphertext[aesgcm.NonceSize():], nil)
	if err != nil {
		return nil, fmt.Errorf("gcm auth/decrypt: %w", err)
	}

	var cred connection.Credential
	if err := json.Unmarshal(pt, &cred); err != nil {
		return nil, fmt.Errorf("unmarshal credential: %w", err)
	}
	return &cred, nil
}
