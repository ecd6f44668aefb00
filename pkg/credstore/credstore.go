// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

// Package credstore persists the single durable refresh-credential record.
// Absence of a record is a valid state: the relay boots credential-less and
// waits for the re-authorization flow (or manual provisioning) to create one.
package credstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/telekom/support-relay/pkg/config"
	"go.uber.org/zap"
)

// Record is the sole durable secret of the relay. It is overwritten only by
// a successful re-authorization handshake or by manual provisioning.
type Record struct {
	RefreshSecret string    `json:"refreshSecret"`
	UpdatedAt     time.Time `json:"updatedAt"`
	UpdatedBy     string    `json:"updatedBy"`
}

// Store loads and saves the credential record. Load returns (nil, nil) when
// no record exists yet.
type Store interface {
	Load() (*Record, error)
	Save(rec *Record) error
}

// New selects the store backend from configuration.
func New(cfg config.Credentials, log *zap.SugaredLogger) (Store, error) {
	switch cfg.Backend {
	case "", "file":
		return NewFileStore(cfg.Path, log), nil
	case "keyring":
		return NewKeyringStore(cfg.KeyringService, log), nil
	default:
		return nil, fmt.Errorf("unknown credentials backend %q: supported values are file, keyring", cfg.Backend)
	}
}

// FileStore keeps the record as a single JSON file with 0600 permissions.
type FileStore struct {
	path string
	log  *zap.SugaredLogger
}

func NewFileStore(path string, log *zap.SugaredLogger) *FileStore {
	return &FileStore{path: path, log: log.Named("credstore")}
}

func (s *FileStore) Load() (*Record, error) {
	content, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.log.Infow("No credential record found, booting credential-less", "path", s.path)
			return nil, nil
		}
		return nil, fmt.Errorf("reading credential record %s: %w", s.path, err)
	}

	var rec Record
	if err := json.Unmarshal(content, &rec); err != nil {
		return nil, fmt.Errorf("unmarshaling credential record %s: %w", s.path, err)
	}
	if rec.RefreshSecret == "" {
		s.log.Warnw("Credential record exists but holds no refresh secret", "path", s.path)
		return nil, nil
	}
	return &rec, nil
}

// Save writes the record via a temp file and rename so a crash mid-write
// never leaves a truncated record behind.
func (s *FileStore) Save(rec *Record) error {
	content, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling credential record: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".credentials-*.json")
	if err != nil {
		return fmt.Errorf("creating temp credential file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("restricting credential file permissions: %w", err)
	}
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("writing credential record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing credential file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replacing credential record %s: %w", s.path, err)
	}

	s.log.Infow("Credential record saved", "path", s.path, "updatedBy", rec.UpdatedBy)
	return nil
}
