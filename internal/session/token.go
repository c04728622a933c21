package session

import (
	"encoding/json"
	"errors"
	"os"
)

// storedToken is the only local artifact of the auth boundary: the refresh
// token needed to recover a session on the next start.
type storedToken struct {
	RefreshToken string `json:"refresh_token"`
}

// SaveToken persists the refresh token at path with owner-only permissions.
func SaveToken(path, refreshToken string) error {
	data, err := json.Marshal(storedToken{RefreshToken: refreshToken})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// LoadToken reads a previously stored refresh token. Returns empty string
// when no token is stored.
func LoadToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	var tok storedToken
	if err := json.Unmarshal(data, &tok); err != nil {
		return "", err
	}
	return tok.RefreshToken, nil
}

// ClearToken removes the stored token. Missing file is not an error.
func ClearToken(path string) error {
	err := os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
