package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

const (
	secretsFile = "secrets.json"
	apiTokenKey = "api_token"
	apiTokenEnv = "JOBDESK_API_TOKEN"
)

// Keychain stores local secrets in a 0600 JSON file in the data directory.
type Keychain struct {
	path string
}

// NewKeychain returns the keychain for dataDir.
func NewKeychain(dataDir string) *Keychain {
	return &Keychain{path: filepath.Join(dataDir, secretsFile)}
}

// Get returns the secret stored under key, or ok=false when absent.
func (k *Keychain) Get(key string) (string, bool, error) {
	secrets, err := k.read()
	if err != nil {
		return "", false, err
	}
	v, ok := secrets[key]
	return v, ok && v != "", nil
}

// Set stores a secret.
func (k *Keychain) Set(key, value string) error {
	secrets, err := k.read()
	if err != nil {
		return err
	}
	secrets[key] = value

	if err := os.MkdirAll(filepath.Dir(k.path), 0o700); err != nil {
		return fmt.Errorf("creating secrets dir: %w", err)
	}
	out, err := json.MarshalIndent(secrets, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(k.path, out, 0o600)
}

func (k *Keychain) read() (map[string]string, error) {
	secrets := make(map[string]string)
	data, err := os.ReadFile(k.path)
	if errors.Is(err, fs.ErrNotExist) {
		return secrets, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading secrets file: %w", err)
	}
	if err := json.Unmarshal(data, &secrets); err != nil {
		return nil, fmt.Errorf("parsing secrets file: %w", err)
	}
	return secrets, nil
}

// GetAPIToken returns the bearer token guarding the local API. JOBDESK_API_TOKEN
// wins; otherwise a stored token is used, generating and saving one on
// first use.
func GetAPIToken(k *Keychain) (string, error) {
	if t := os.Getenv(apiTokenEnv); t != "" {
		return t, nil
	}
	if t, ok, err := k.Get(apiTokenKey); err != nil {
		return "", err
	} else if ok {
		return t, nil
	}

	t := uuid.New().String()
	if err := k.Set(apiTokenKey, t); err != nil {
		return "", fmt.Errorf("storing api token: %w", err)
	}
	return t, nil
}
