// Package cryptox implements the field cipher used for personal data at rest.
//
// Values are sealed with AES-256-GCM under a key derived from the configured
// secret and stored as an envelope of the form
//
//	hex(iv) ":" hex(ciphertext||tag)
//
// where the IV is always 16 bytes (32 hex characters). Any string that does
// not have this shape is treated as legacy plaintext and passed through.
package cryptox

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/openblind/internal/common"
	"github.com/dmitrijs2005/openblind/internal/logging"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

// AlgorithmAES256GCM is the only supported value of ENCRYPTION_ALGORITHM.
const AlgorithmAES256GCM = "aes-256-gcm"

const (
	keySize = 32
	ivSize  = 16
)

// keySalt is static so the same secret always yields the same key across
// restarts and hosts.
var keySalt = []byte("openblind/field-encryption/v1")

var blindIndexInfo = []byte("openblind/email-blind-index")

// FailMode selects what Encrypt and Decrypt do when the cipher itself fails.
type FailMode string

const (
	// FailOpen logs the failure and returns the input unchanged.
	FailOpen FailMode = "open"
	// FailClosed returns common.ErrTransformFailure to the caller.
	FailClosed FailMode = "closed"
)

// ParseFailMode accepts "open" or "closed"; an empty string means FailOpen.
func ParseFailMode(s string) (FailMode, error) {
	switch FailMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", FailOpen:
		return FailOpen, nil
	case FailClosed:
		return FailClosed, nil
	}
	return "", fmt.Errorf("%w: unknown fail mode %q", common.ErrCipherConfiguration, s)
}

// Engine encrypts and decrypts individual string fields.
// It is safe for concurrent use.
type Engine struct {
	aead       cipher.AEAD
	indexKey   []byte
	mode       FailMode
	logger     logging.Logger
	onFallback func(op string)
	random     io.Reader
}

type Option func(*Engine)

func WithFailMode(m FailMode) Option {
	return func(e *Engine) { e.mode = m }
}

func WithLogger(l logging.Logger) Option {
	return func(e *Engine) { e.logger = l.With("module", "cryptox") }
}

// WithFallbackHook registers fn to be called with "encrypt" or "decrypt"
// every time a fail-open fallback happens.
func WithFallbackHook(fn func(op string)) Option {
	return func(e *Engine) { e.onFallback = fn }
}

// NewEngine derives the field key from secret and prepares the cipher.
// An empty secret or an unsupported algorithm yields
// common.ErrCipherConfiguration; callers treat that as fatal.
func NewEngine(secret string, algorithm string, opts ...Option) (*Engine, error) {
	if algorithm != "" && !strings.EqualFold(algorithm, AlgorithmAES256GCM) {
		return nil, fmt.Errorf("%w: unsupported algorithm %q", common.ErrCipherConfiguration, algorithm)
	}

	key, err := DeriveKey(secret)
	if err != nil {
		return nil, err
	}
	defer common.Wipe(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCipherConfiguration, err)
	}

	aead, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCipherConfiguration, err)
	}

	indexKey := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, key, keySalt, blindIndexInfo), indexKey); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCipherConfiguration, err)
	}

	e := &Engine{
		aead:     aead,
		indexKey: indexKey,
		mode:     FailOpen,
		logger:   logging.NewNop(),
		random:   rand.Reader,
	}
	for _, o := range opts {
		o(e)
	}

	return e, nil
}

// DeriveKey turns a secret of any length into a 32-byte key with argon2id.
func DeriveKey(secret string) ([]byte, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: encryption key is empty", common.ErrCipherConfiguration)
	}
	return argon2.IDKey([]byte(secret), keySalt, 1, 64*1024, 4, keySize), nil
}

// Mode reports the configured fail mode.
func (e *Engine) Mode() FailMode { return e.mode }

// Seal encrypts plaintext with a fresh random IV and returns the envelope.
// Unlike Encrypt it never falls back.
func (e *Engine) Seal(plaintext string) (string, error) {
	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(e.random, iv); err != nil {
		return "", fmt.Errorf("%w: iv: %v", common.ErrTransformFailure, err)
	}

	ct := e.aead.Seal(nil, iv, []byte(plaintext), nil)

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(ct), nil
}

// Open decrypts an envelope. Values that are not envelope-shaped are
// returned unchanged with a nil error. Unlike Decrypt it never falls back.
func (e *Engine) Open(value string) (string, error) {
	if !IsEncrypted(value) {
		return value, nil
	}

	ivHex, ctHex, _ := strings.Cut(value, ":")

	iv, err := hex.DecodeString(ivHex)
	if err != nil {
		return "", fmt.Errorf("%w: iv: %v", common.ErrTransformFailure, err)
	}
	ct, err := hex.DecodeString(ctHex)
	if err != nil {
		return "", fmt.Errorf("%w: ciphertext: %v", common.ErrTransformFailure, err)
	}

	pt, err := e.aead.Open(nil, iv, ct, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrTransformFailure, err)
	}

	return string(pt), nil
}

// Encrypt seals a non-empty plaintext. Empty input is returned as is.
// On failure the configured FailMode decides the outcome.
func (e *Engine) Encrypt(ctx context.Context, plaintext string) (string, error) {
	if plaintext == "" {
		return plaintext, nil
	}

	out, err := e.Seal(plaintext)
	if err != nil {
		return e.fallback(ctx, "encrypt", plaintext, err)
	}

	return out, nil
}

// Decrypt opens an envelope. Non-envelope input is legacy plaintext and
// is returned as is. On failure the configured FailMode decides the outcome.
func (e *Engine) Decrypt(ctx context.Context, value string) (string, error) {
	if !IsEncrypted(value) {
		return value, nil
	}

	out, err := e.Open(value)
	if err != nil {
		return e.fallback(ctx, "decrypt", value, err)
	}

	return out, nil
}

func (e *Engine) fallback(ctx context.Context, op, input string, err error) (string, error) {
	if e.mode == FailClosed {
		return "", err
	}

	e.logger.Warn(ctx, "cipher fallback, returning input unchanged", "op", op, "error", err)
	if e.onFallback != nil {
		e.onFallback(op)
	}

	return input, nil
}

// IsEncrypted reports whether value looks like an envelope. It does not
// attempt decryption, so a plaintext that happens to match is misjudged.
func (e *Engine) IsEncrypted(value string) bool { return IsEncrypted(value) }

// IsEncrypted reports whether value has the envelope shape: exactly two
// colon-separated hex segments, the first of them 32 characters long.
func IsEncrypted(value string) bool {
	ivHex, ctHex, ok := strings.Cut(value, ":")
	if !ok || strings.Contains(ctHex, ":") {
		return false
	}
	if len(ivHex) != ivSize*2 || ctHex == "" {
		return false
	}
	return isHex(ivHex) && isHex(ctHex)
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// BlindIndex returns a deterministic keyed hash of value for equality
// lookups over encrypted columns. Callers normalize value first.
func (e *Engine) BlindIndex(value string) string {
	mac := hmac.New(sha256.New, e.indexKey)
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}

const selfTestSample = "Hello, World! 🌍"

// SelfTest performs a strict seal/open round trip.
func (e *Engine) SelfTest() error {
	sealed, err := e.Seal(selfTestSample)
	if err != nil {
		return err
	}
	if !IsEncrypted(sealed) {
		return fmt.Errorf("%w: sealed value has no envelope shape", common.ErrTransformFailure)
	}

	opened, err := e.Open(sealed)
	if err != nil {
		return err
	}
	if opened != selfTestSample {
		return fmt.Errorf("%w: round trip mismatch", common.ErrTransformFailure)
	}

	return nil
}
