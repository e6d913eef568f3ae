package tokenstore

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/99designs/keyring"
)

const defaultServiceName = "tabmail"

// KeyringConfig selects and configures the OS credential backend.
type KeyringConfig struct {
	ServiceName  string                // default: tabmail
	FileDir      string                // used by the encrypted file backend
	FilePassword string                // passphrase for the file backend
	Backends     []keyring.BackendType // default: platform keychains, then file

	// Prompt asks for the file backend passphrase when FilePassword is
	// empty. Default: keyring.TerminalPrompt.
	Prompt keyring.PromptFunc
}

// Keyring is a Store backed by the operating system credential store via
// 99designs/keyring. Keyring items carry no expiry of their own, so each
// value is wrapped in a small JSON envelope with its deadline.
type Keyring struct {
	logger *slog.Logger
	now    func() time.Time

	mu   sync.Mutex
	ring keyring.Keyring // nil when the backend could not be opened
}

type keyringEnvelope struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// OpenKeyring opens the configured credential backend. If no backend can be
// opened the failure is logged and the returned store reads as empty.
func OpenKeyring(cfg KeyringConfig, logger *slog.Logger) *Keyring {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.ServiceName == "" {
		cfg.ServiceName = defaultServiceName
	}
	if len(cfg.Backends) == 0 {
		cfg.Backends = []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		}
	}
	if cfg.FileDir == "" {
		cfg.FileDir = "~/.config/" + cfg.ServiceName + "/credentials"
	}

	ring, err := keyring.Open(keyring.Config{
		ServiceName:              cfg.ServiceName,
		AllowedBackends:          cfg.Backends,
		FileDir:                  cfg.FileDir,
		FilePasswordFunc:         filePasswordFunc(cfg, logger),
		KeychainTrustApplication: true,
	})
	if err != nil {
		logger.Warn("token keyring unavailable, tokens will not persist", "error", err)
		return &Keyring{logger: logger, now: time.Now}
	}

	return NewKeyring(ring, logger)
}

// filePasswordFunc returns the passphrase source for the encrypted file
// backend. It is only consulted when no platform keychain is available.
func filePasswordFunc(cfg KeyringConfig, logger *slog.Logger) keyring.PromptFunc {
	if cfg.FilePassword != "" {
		return keyring.FixedStringPrompt(cfg.FilePassword)
	}

	prompt := cfg.Prompt
	if prompt == nil {
		prompt = keyring.TerminalPrompt
	}
	return func(msg string) (string, error) {
		logger.Warn("no keyring passphrase configured, asking on the terminal",
			"dir", cfg.FileDir)
		return prompt(msg)
	}
}

// NewKeyring wraps an already opened keyring.
func NewKeyring(ring keyring.Keyring, logger *slog.Logger) *Keyring {
	if logger == nil {
		logger = slog.Default()
	}
	return &Keyring{ring: ring, logger: logger, now: time.Now}
}

func (k *Keyring) Get(kind Kind) (string, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.ring == nil {
		return "", false
	}

	item, err := k.ring.Get(kind.Key())
	if err != nil {
		if !errors.Is(err, keyring.ErrKeyNotFound) {
			k.logger.Warn("reading token from keyring failed", "kind", kind, "error", err)
		}
		return "", false
	}

	var env keyringEnvelope
	if err := json.Unmarshal(item.Data, &env); err != nil {
		k.logger.Warn("discarding unreadable keyring entry", "kind", kind, "error", err)
		k.removeLocked(kind)
		return "", false
	}

	if !k.now().Before(env.ExpiresAt) {
		k.removeLocked(kind)
		return "", false
	}

	return env.Value, true
}

func (k *Keyring) Set(kind Kind, value string, ttl time.Duration) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.ring == nil {
		return
	}

	data, err := json.Marshal(keyringEnvelope{
		Value:     value,
		ExpiresAt: k.now().Add(effectiveTTL(kind, ttl)).UTC(),
	})
	if err != nil {
		k.logger.Warn("encoding keyring entry failed", "kind", kind, "error", err)
		return
	}

	err = k.ring.Set(keyring.Item{
		Key:         kind.Key(),
		Data:        data,
		Label:       defaultServiceName + " " + string(kind) + " token",
		Description: "session credential",
	})
	if err != nil {
		k.logger.Warn("writing token to keyring failed", "kind", kind, "error", err)
	}
}

func (k *Keyring) Clear(kind Kind) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.removeLocked(kind)
}

func (k *Keyring) ClearAll() {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, kind := range Kinds {
		k.removeLocked(kind)
	}
}

func (k *Keyring) Has(kind Kind) bool {
	_, ok := k.Get(kind)
	return ok
}

func (k *Keyring) removeLocked(kind Kind) {
	if k.ring == nil {
		return
	}
	if err := k.ring.Remove(kind.Key()); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		k.logger.Warn("removing token from keyring failed", "kind", kind, "error", err)
	}
}
