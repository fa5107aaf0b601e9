package file

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config is the full mailsync configuration, persisted as TOML.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Output      OutputConfig      `toml:"output"`
	RateLimit   RateLimitConfig   `toml:"rate_limit"`
	Breaker     BreakerConfig     `toml:"breaker"`
	Batch       BatchConfig       `toml:"batch"`
	Sync        SyncConfig        `toml:"sync"`
	Storage     StorageConfig     `toml:"storage"`
}

// CredentialsConfig locates the OAuth client credentials and token cache.
type CredentialsConfig struct {
	// ClientSecretsFile is the OAuth client JSON downloaded from the
	// Google Cloud console.
	ClientSecretsFile string `toml:"client_secrets_file"`
	// TokenFile caches the user's OAuth token between runs.
	TokenFile string `toml:"token_file"`
}

// OutputConfig controls where fetched messages are written.
type OutputConfig struct {
	// Directory receives one .eml file per fetched message.
	Directory string `toml:"directory"`
}

// RateLimitConfig tunes the token-bucket admission of upstream calls.
type RateLimitConfig struct {
	RequestsPerSecond float64 `toml:"requests_per_second"`
	BurstSize         int     `toml:"burst_size"`
}

// BreakerConfig tunes the upstream circuit breaker.
type BreakerConfig struct {
	FailureThreshold int `toml:"failure_threshold"`
	SuccessThreshold int `toml:"success_threshold"`
	// RecoveryTimeoutSeconds is how long the circuit stays open before
	// trial calls are admitted.
	RecoveryTimeoutSeconds int `toml:"recovery_timeout_seconds"`
}

// BatchConfig tunes batch execution.
type BatchConfig struct {
	MaxBatchSize   int `toml:"max_batch_size"`
	MaxItemRetries int `toml:"max_item_retries"`
}

// SyncConfig tunes run orchestration.
type SyncConfig struct {
	CheckpointInterval int `toml:"checkpoint_interval"`
	MaxOpenCycles      int `toml:"max_open_cycles"`
}

// StorageConfig selects the checkpoint persistence backend.
type StorageConfig struct {
	// CheckpointBackend is "sqlite" (default) or "file". The file
	// backend keeps one JSON document per run, inspectable with
	// ordinary tools. Dead letters always live in SQLite.
	CheckpointBackend string `toml:"checkpoint_backend"`
}

// RecoveryTimeout returns the breaker recovery timeout as a duration.
func (c BreakerConfig) RecoveryTimeout() time.Duration {
	return time.Duration(c.RecoveryTimeoutSeconds) * time.Second
}

// DefaultConfig returns the configuration used when no file exists.
// Paths are relative to the mailsync home directory.
func DefaultConfig(homeDir string) Config {
	return Config{
		Credentials: CredentialsConfig{
			ClientSecretsFile: filepath.Join(homeDir, "credentials.json"),
			TokenFile:         filepath.Join(homeDir, "token.json"),
		},
		Output: OutputConfig{
			Directory: filepath.Join(homeDir, "messages"),
		},
		RateLimit: RateLimitConfig{RequestsPerSecond: 2.0, BurstSize: 5},
		Breaker:   BreakerConfig{FailureThreshold: 5, SuccessThreshold: 2, RecoveryTimeoutSeconds: 30},
		Batch:     BatchConfig{MaxBatchSize: 100, MaxItemRetries: 2},
		Sync:      SyncConfig{CheckpointInterval: 50, MaxOpenCycles: 3},
		Storage:   StorageConfig{CheckpointBackend: "sqlite"},
	}
}

// ConfigStore is a file-based configuration store using TOML.
// Configuration is stored in a TOML file within the mailsync config
// directory.
type ConfigStore struct {
	mu       sync.RWMutex
	filePath string
	config   Config
}

// NewConfigStore creates a new TOML-based config store.
// If configDir is empty, defaults to ~/.mailsync/config.toml.
func NewConfigStore(configDir string) (*ConfigStore, error) {
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		configDir = filepath.Join(home, ".mailsync")
	}

	// Ensure directory exists
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return nil, err
	}

	s := &ConfigStore{
		filePath: filepath.Join(configDir, "config.toml"),
		config:   DefaultConfig(configDir),
	}

	if err := s.Load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return s, nil
}

// Config returns the current configuration snapshot.
func (s *ConfigStore) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// Update replaces the configuration and persists it immediately.
func (s *ConfigStore) Update(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = cfg
	return s.save()
}

// Save persists the current configuration to disk.
func (s *ConfigStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save()
}

// save writes configuration to the TOML file (caller must hold lock).
func (s *ConfigStore) save() error {
	data, err := toml.Marshal(s.config)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}

	// Write with restricted permissions
	return os.WriteFile(s.filePath, data, 0600)
}

// Load reads configuration from the TOML file. Missing keys keep their
// default values, so a partial config file is valid.
func (s *ConfigStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			// No config file yet, defaults apply.
			return nil
		}
		return err
	}

	if err := toml.Unmarshal(data, &s.config); err != nil {
		return fmt.Errorf("parsing %s: %w", s.filePath, err)
	}
	return nil
}

// Path returns the configuration file path.
func (s *ConfigStore) Path() string {
	return s.filePath
}
