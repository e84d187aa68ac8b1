package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// secretSize is the length of a generated signing secret.
const secretSize = 32

// LoadOrCreateSecret reads the signing secret at path. When the file does
// not exist a random secret is generated and written with mode 0600.
func LoadOrCreateSecret(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	if err == nil {
		if len(key) == 0 {
			return nil, fmt.Errorf("signing secret %s is empty", path)
		}
		return key, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read signing secret: %w", err)
	}

	b := make([]byte, secretSize)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generate signing secret: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create secret dir: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return nil, fmt.Errorf("write signing secret: %w", err)
	}
	return b, nil
}
