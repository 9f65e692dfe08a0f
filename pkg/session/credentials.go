// Package session implements admin authentication: credential
// verification, the in-memory session token store, and the optional
// legacy API key check.
package session

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"

	"github.com/maxpark/accessd/internal/atomicfile"
	"github.com/maxpark/accessd/internal/logger"
)

var (
	ErrWeakPassword = errors.New("password must be at least 8 characters")
	ErrWeakAPIKey   = errors.New("api key must be at least 16 characters")
)

const securityFile = "security.json"

// argon2id parameters for newly set passwords.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
	argonSaltLen = 16
)

// securityState is the on-disk shape of security.json. It overrides
// the bootstrap password digest and API key once the admin has rotated
// either through the API.
type securityState struct {
	PasswordDigest string `json:"password_digest"`
	APIKey         string `json:"api_key,omitempty"`
}

// Credentials verifies and rotates the admin credentials.
//
// The stored password digest is either a legacy unsalted SHA-256 hex
// string or a tagged argon2id record ($argon2id$...). Verification
// dispatches on the prefix; an existing legacy digest is never
// upgraded behind the admin's back, but rotating the password writes
// an argon2id digest.
type Credentials struct {
	mu       sync.RWMutex
	path     string
	username string
	digest   string
	apiKey   string
}

// LoadCredentials builds the credential store from the bootstrap
// values, then applies any rotation persisted in security.json under
// dir.
func LoadCredentials(dir, username, digest, apiKey string) (*Credentials, error) {
	c := &Credentials{
		path:     filepath.Join(dir, securityFile),
		username: username,
		digest:   digest,
		apiKey:   apiKey,
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("read security file: %w", err)
	}

	var st securityState
	if err := json.Unmarshal(data, &st); err != nil {
		logger.Warn("security file unreadable, using bootstrap credentials", logger.Err(err))
		return c, nil
	}
	if st.PasswordDigest != "" {
		c.digest = st.PasswordDigest
	}
	if st.APIKey != "" {
		c.apiKey = st.APIKey
	}
	return c, nil
}

// Username returns the admin username.
func (c *Credentials) Username() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username
}

// Verify checks username and password against the stored credentials
// in constant time. Username comparison is case-sensitive.
func (c *Credentials) Verify(username, password string) bool {
	c.mu.RLock()
	wantUser, digest := c.username, c.digest
	c.mu.RUnlock()

	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(wantUser)) == 1
	passOK := verifyDigest(digest, password)
	return userOK && passOK
}

// VerifyPassword checks only the password. Used for re-verification
// on sensitive operations like privacy toggles.
func (c *Credentials) VerifyPassword(password string) bool {
	c.mu.RLock()
	digest := c.digest
	c.mu.RUnlock()
	return verifyDigest(digest, password)
}

// VerifyAPIKey checks the legacy shared secret in constant time.
// Returns false when no key is configured.
func (c *Credentials) VerifyAPIKey(key string) bool {
	c.mu.RLock()
	want := c.apiKey
	c.mu.RUnlock()

	if want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(want)) == 1
}

// HasAPIKey reports whether a legacy API key is configured.
func (c *Credentials) HasAPIKey() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey != ""
}

// SetPassword rotates the admin password, storing an argon2id digest
// and persisting the rotation.
func (c *Credentials) SetPassword(password string) error {
	if len(password) < 8 {
		return ErrWeakPassword
	}
	digest, err := HashPasswordArgon2(password)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.digest
	c.digest = digest
	if err := c.persistLocked(); err != nil {
		c.digest = prev
		return err
	}
	return nil
}

// SetAPIKey rotates the legacy API key and persists the rotation.
func (c *Credentials) SetAPIKey(key string) error {
	if len(key) < 16 {
		return ErrWeakAPIKey
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.apiKey
	c.apiKey = key
	if err := c.persistLocked(); err != nil {
		c.apiKey = prev
		return err
	}
	return nil
}

func (c *Credentials) persistLocked() error {
	st := securityState{PasswordDigest: c.digest, APIKey: c.apiKey}
	return atomicfile.WriteJSON(c.path, st, 0o600)
}

// HashPassword returns the legacy unsalted SHA-256 hex digest. Kept
// for compatibility with existing deployments; new digests should use
// HashPasswordArgon2.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// HashPasswordArgon2 returns a tagged argon2id digest in the
// $argon2id$v=19$m=...,t=...,p=...$salt$hash form.
func HashPasswordArgon2(password string) (string, error) {
	salt, err := randomBytes(argonSaltLen)
	if err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key)), nil
}

// verifyDigest dispatches on the digest format.
func verifyDigest(digest, password string) bool {
	if strings.HasPrefix(digest, "$argon2id$") {
		return verifyArgon2(digest, password)
	}
	// Legacy unsalted SHA-256 hex digest.
	got := HashPassword(password)
	return subtle.ConstantTimeCompare([]byte(got), []byte(digest)) == 1
}

func verifyArgon2(digest, password string) bool {
	parts := strings.Split(digest, "$")
	// ["", "argon2id", "v=19", "m=65536,t=1,p=4", salt, hash]
	if len(parts) != 6 {
		return false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false
	}

	var memory, timeCost uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &timeCost, &threads); err != nil {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false
	}

	got := argon2.IDKey([]byte(password), salt, timeCost, memory, threads, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}
