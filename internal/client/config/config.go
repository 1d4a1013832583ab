// internal/client/config/config.go
package config

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

const DefaultServer = "http://localhost:8080"

type Config struct {
	Server       string `yaml:"server"`
	Email        string `yaml:"email,omitempty"`
	AccessToken  string `yaml:"access_token,omitempty"`
	RefreshToken string `yaml:"refresh_token,omitempty"`
}

// GetConfigPath honours TRANSLATOR_CONFIG, then falls back to
// ~/.translator.yaml.
func GetConfigPath() (string, error) {
	if p := os.Getenv("TRANSLATOR_CONFIG"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".translator.yaml"), nil
}

func LoadConfig() (*Config, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{Server: DefaultServer}, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if cfg.Server == "" {
		cfg.Server = DefaultServer
	}
	return &cfg, nil
}

func SaveConfig(cfg *Config) error {
	path, err := GetConfigPath()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// FileSession keeps the API session in the config file, saving on every
// token change so a refreshed token survives the process.
type FileSession struct {
	mu  sync.Mutex
	cfg *Config
	err error
}

func NewFileSession(cfg *Config) *FileSession {
	return &FileSession{cfg: cfg}
}

func (s *FileSession) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.AccessToken
}

func (s *FileSession) SetAccessToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.AccessToken == token {
		return
	}
	s.cfg.AccessToken = token
	s.save()
}

func (s *FileSession) RefreshToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.RefreshToken
}

func (s *FileSession) SetRefreshToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.RefreshToken == token {
		return
	}
	s.cfg.RefreshToken = token
	s.save()
}

func (s *FileSession) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.AccessToken = ""
	s.cfg.RefreshToken = ""
	s.cfg.Email = ""
	s.save()
}

// Err returns the last save failure, if any.
func (s *FileSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *FileSession) save() {
	s.err = SaveConfig(s.cfg)
}
