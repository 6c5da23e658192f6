package auth

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

var (
	// ErrCorruptToken is returned when the token file cannot be decrypted or parsed.
	ErrCorruptToken = errors.New("stored token is corrupt")

	// ErrInvalidKey is returned when an encryption key has the wrong length.
	ErrInvalidKey = errors.New("token key must be 32 bytes")
)

// keySalt is fixed so the same passphrase always yields the same key.
var keySalt = []byte("spotify-stats/token/v1")

// TokenStorage persists a single user's access token.
type TokenStorage interface {
	// Load returns (nil, nil) when no token is stored.
	Load(ctx context.Context) (*AccessTokenInfo, error)
	Save(ctx context.Context, info *AccessTokenInfo) error
	// Delete succeeds when no token is stored.
	Delete(ctx context.Context) error
}

// DeriveKey derives a 32-byte encryption key from a passphrase using argon2id.
func DeriveKey(passphrase string) []byte {
	return argon2.IDKey([]byte(passphrase), keySalt, 1, 64*1024, 4, chacha20poly1305.KeySize)
}

// LoadOrCreateKey reads a raw key from path, generating and writing a random
// one (mode 0600) if the file does not exist.
func LoadOrCreateKey(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	if err == nil {
		if len(key) != chacha20poly1305.KeySize {
			return nil, fmt.Errorf("%w: %s has %d bytes", ErrInvalidKey, path, len(key))
		}
		return key, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading key file: %w", err)
	}

	key = make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating key directory: %w", err)
	}
	if err := os.WriteFile(path, key, 0600); err != nil {
		return nil, fmt.Errorf("writing key file: %w", err)
	}
	return key, nil
}

// FileTokenStorage stores the token in a file encrypted with XChaCha20-Poly1305.
// The file layout is nonce || ciphertext.
type FileTokenStorage struct {
	path string
	aead cipher.AEAD
	mu   sync.Mutex
}

// NewFileTokenStorage creates a FileTokenStorage at path using a 32-byte key.
func NewFileTokenStorage(path string, key []byte) (*FileTokenStorage, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, ErrInvalidKey
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	return &FileTokenStorage{path: path, aead: aead}, nil
}

// Path returns the file path where the token is stored.
func (s *FileTokenStorage) Path() string {
	return s.path
}

func (s *FileTokenStorage) Load(_ context.Context) (*AccessTokenInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading token file: %w", err)
	}

	nonceSize := s.aead.NonceSize()
	if len(data) < nonceSize+s.aead.Overhead() {
		return nil, ErrCorruptToken
	}
	plain, err := s.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return nil, ErrCorruptToken
	}

	var info AccessTokenInfo
	if err := json.Unmarshal(plain, &info); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptToken, err)
	}
	return &info, nil
}

// Save encrypts and writes the token, creating the parent directory if needed.
func (s *FileTokenStorage) Save(_ context.Context, info *AccessTokenInfo) error {
	if info == nil {
		return errors.New("cannot save nil token")
	}

	plain, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}

	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plain)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generating nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, plain, nil)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, sealed, 0600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing token file: %w", err)
	}
	return nil
}

func (s *FileTokenStorage) Delete(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing token file: %w", err)
	}
	return nil
}

// MemoryTokenStorage keeps the token in memory.
type MemoryTokenStorage struct {
	mu   sync.Mutex
	info *AccessTokenInfo
}

// NewMemoryTokenStorage returns a storage seeded with info, which may be nil.
func NewMemoryTokenStorage(info *AccessTokenInfo) *MemoryTokenStorage {
	return &MemoryTokenStorage{info: info}
}

func (s *MemoryTokenStorage) Load(_ context.Context) (*AccessTokenInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.info == nil {
		return nil, nil
	}
	cp := *s.info
	return &cp, nil
}

func (s *MemoryTokenStorage) Save(_ context.Context, info *AccessTokenInfo) error {
	if info == nil {
		return errors.New("cannot save nil token")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *info
	s.info = &cp
	return nil
}

func (s *MemoryTokenStorage) Delete(_ context.Context) error {
	s.mu.Lock()
	s.info = nil
	s.mu.Unlock()
	return nil
}

var (
	_ TokenStorage = (*FileTokenStorage)(nil)
	_ TokenStorage = (*MemoryTokenStorage)(nil)
)
