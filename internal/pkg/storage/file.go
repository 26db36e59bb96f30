// internal/pkg/storage/file.go
package storage

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const jarKeyInfo = "backoffice-console cookie jar v1"

// ErrCorrupt is returned when a sealed value cannot be opened.
var ErrCorrupt = errors.New("storage entry could not be decrypted")

type jarEntry struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

type jarFile struct {
	Sealed  bool                `json:"sealed"`
	Entries map[string]jarEntry `json:"entries"`
}

// FileStorage is a cookie-jar file with per-entry expiry.
// The file is re-read on every Get so changes made by other processes are visible.
// When a secret is configured, values are sealed with XChaCha20-Poly1305.
type FileStorage struct {
	path string
	aead cipher.AEAD
	now  func() time.Time
	mu   sync.Mutex
}

// NewFileStorage opens (lazily) the jar at path. An empty secret stores values in clear.
func NewFileStorage(path, secret string) (*FileStorage, error) {
	if path == "" {
		return nil, fmt.Errorf("cookie jar path is required")
	}

	fs := &FileStorage{path: path, now: time.Now}
	if secret != "" {
		aead, err := deriveAEAD(secret)
		if err != nil {
			return nil, err
		}
		fs.aead = aead
	}
	return fs, nil
}

func deriveAEAD(secret string) (cipher.AEAD, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte(jarKeyInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("failed to derive cookie jar key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to init cookie jar cipher: %w", err)
	}
	return aead, nil
}

// Path returns the jar location.
func (s *FileStorage) Path() string { return s.path }

func (s *FileStorage) Set(_ context.Context, name, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	jar, err := s.load()
	if err != nil {
		return err
	}

	stored, err := s.seal(name, value)
	if err != nil {
		return err
	}

	entry := jarEntry{Value: stored}
	if ttl > 0 {
		entry.ExpiresAt = s.now().Add(ttl).UTC()
	}
	jar.Entries[name] = entry
	s.prune(jar)

	return s.save(jar)
}

func (s *FileStorage) Get(_ context.Context, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jar, err := s.load()
	if err != nil {
		return "", err
	}

	entry, ok := jar.Entries[name]
	if !ok || s.expired(entry) {
		return "", ErrNotFound
	}
	return s.open(name, entry.Value)
}

func (s *FileStorage) Remove(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	jar, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := jar.Entries[name]; !ok {
		return nil
	}
	delete(jar.Entries, name)
	s.prune(jar)

	return s.save(jar)
}

func (s *FileStorage) load() (*jarFile, error) {
	jar := &jarFile{Sealed: s.aead != nil, Entries: map[string]jarEntry{}}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return jar, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cookie jar: %w", err)
	}
	if len(data) == 0 {
		return jar, nil
	}

	if err := json.Unmarshal(data, jar); err != nil {
		return nil, fmt.Errorf("failed to decode cookie jar: %w", err)
	}
	if jar.Entries == nil {
		jar.Entries = map[string]jarEntry{}
	}
	// A jar written with a different sealing mode is rewritten from scratch on the next Set.
	if jar.Sealed != (s.aead != nil) {
		return &jarFile{Sealed: s.aead != nil, Entries: map[string]jarEntry{}}, nil
	}
	return jar, nil
}

func (s *FileStorage) save(jar *jarFile) error {
	jar.Sealed = s.aead != nil

	data, err := json.MarshalIndent(jar, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode cookie jar: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create cookie jar directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".cookies-*")
	if err != nil {
		return fmt.Errorf("failed to create cookie jar temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write cookie jar: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod cookie jar: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close cookie jar: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace cookie jar: %w", err)
	}
	return nil
}

func (s *FileStorage) prune(jar *jarFile) {
	for name, entry := range jar.Entries {
		if s.expired(entry) {
			delete(jar.Entries, name)
		}
	}
}

func (s *FileStorage) expired(e jarEntry) bool {
	return !e.ExpiresAt.IsZero() && !s.now().Before(e.ExpiresAt)
}

// seal binds the ciphertext to the entry name so values cannot be swapped between names.
func (s *FileStorage) seal(name, value string) (string, error) {
	if s.aead == nil {
		return value, nil
	}
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(value)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(value), []byte(name))
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (s *FileStorage) open(name, stored string) (string, error) {
	if s.aead == nil {
		return stored, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(stored)
	if err != nil || len(raw) < s.aead.NonceSize() {
		return "", ErrCorrupt
	}
	nonce, ciphertext := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	plain, err := s.aead.Open(nil, nonce, ciphertext, []byte(name))
	if err != nil {
		return "", ErrCorrupt
	}
	return string(plain), nil
}
