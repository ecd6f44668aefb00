// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package credstore

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
	"go.uber.org/zap"
)

// keyringUser is the fixed account name under which the record is stored.
// The relay is single-tenant, so there is never more than one entry.
const keyringUser = "refresh-credential"

// KeyringStore keeps the record in the OS keyring. Useful for operator
// workstations and bare-metal deployments; containers should use FileStore.
type KeyringStore struct {
	service string
	log     *zap.SugaredLogger
}

func NewKeyringStore(service string, log *zap.SugaredLogger) *KeyringStore {
	return &KeyringStore{service: service, log: log.Named("credstore")}
}

func (s *KeyringStore) Load() (*Record, error) {
	content, err := keyring.Get(s.service, keyringUser)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			s.log.Infow("No credential record in keyring, booting credential-less", "service", s.service)
			return nil, nil
		}
		return nil, fmt.Errorf("reading credential record from keyring: %w", err)
	}

	var rec Record
	if err := json.Unmarshal([]byte(content), &rec); err != nil {
		return nil, fmt.Errorf("unmarshaling keyring credential record: %w", err)
	}
	if rec.RefreshSecret == "" {
		return nil, nil
	}
	return &rec, nil
}

func (s *KeyringStore) Save(rec *Record) error {
	content, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling credential record: %w", err)
	}
	if err := keyring.Set(s.service, keyringUser, string(content)); err != nil {
		return fmt.Errorf("writing credential record to keyring: %w", err)
	}
	s.log.Infow("Credential record saved to keyring", "service", s.service, "updatedBy", rec.UpdatedBy)
	return nil
}
