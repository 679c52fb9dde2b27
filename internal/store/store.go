// Package store persists the account list and user settings under the
// application's config directory.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"auto-claimer/internal/model"

	"gopkg.in/yaml.v3"
)

const (
	accountsFile = "accounts.json"
	settingsFile = "settings.yaml"
)

type accountsDocument struct {
	Accounts []model.Account `json:"accounts"`
}

type Store struct {
	dir    string
	logger *slog.Logger
}

func New(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dir: dir, logger: logger.With("component", "store")}
}

func (s *Store) Dir() string { return s.dir }

func (s *Store) AccountsPath() string { return filepath.Join(s.dir, accountsFile) }

func (s *Store) SettingsPath() string { return filepath.Join(s.dir, settingsFile) }

// LoadAccounts never fails on content: a missing or unreadable file yields
// an empty list, the latter with a warning.
func (s *Store) LoadAccounts() []model.Account {
	path := s.AccountsPath()
	var doc accountsDocument
	if err := ReadJSON(path, &doc); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("ignoring unreadable accounts file", "path", path, "error", err)
		}
		return []model.Account{}
	}
	return model.NormalizeAccounts(doc.Accounts)
}

func (s *Store) SaveAccounts(accounts []model.Account) error {
	doc := accountsDocument{Accounts: model.NormalizeAccounts(accounts)}
	if err := WriteJSON(s.AccountsPath(), doc); err != nil {
		return fmt.Errorf("save accounts: %w", err)
	}
	return nil
}

func (s *Store) LoadSettings() model.Settings {
	path := s.SettingsPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("ignoring unreadable settings file", "path", path, "error", err)
		}
		return model.DefaultSettings()
	}
	settings := model.DefaultSettings()
	if err := yaml.Unmarshal(data, &settings); err != nil {
		s.logger.Warn("ignoring malformed settings file", "path", path, "error", err)
		return model.DefaultSettings()
	}
	return settings.Normalize()
}

func (s *Store) SaveSettings(settings model.Settings) error {
	data, err := yaml.Marshal(settings.Normalize())
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := WriteBytes(s.SettingsPath(), data); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}
