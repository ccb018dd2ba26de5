package storage

import (
	"encoding/json"
	"strings"

	"pump-sniper-go/internal/errs"
)

// Store is a flat key/value persistence capability.
type Store interface {
	Save(key string, value []byte) error
	Load(key string) ([]byte, bool, error)
	Remove(key string) error
	Exists(key string) (bool, error)
	ListKeys() ([]string, error)
}

// Persisted keys
const (
	KeySettings = "bot_settings"
	KeyHoldings = "bot_holdings"
	KeyTrades   = "bot_trades"
	KeyState    = "bot_state"

	userKeyPrefix = "user_"
)

// UserKey returns the record key for a wallet's account.
func UserKey(address string) string {
	return userKeyPrefix + address
}

// IsUserKey reports whether key holds a user account.
func IsUserKey(key string) bool {
	return strings.HasPrefix(key, userKeyPrefix)
}

// SaveJSON marshals v and stores it under key.
func SaveJSON(s Store, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errs.E(errs.Serialization, "save "+key, err)
	}
	return s.Save(key, data)
}

// LoadJSON loads key into a T. The bool is false when the key is absent.
func LoadJSON[T any](s Store, key string) (T, bool, error) {
	var out T
	data, ok, err := s.Load(key)
	if err != nil || !ok {
		return out, ok, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, false, errs.E(errs.Serialization, "load "+key, err)
	}
	return out, true, nil
}

func validateKey(key string) error {
	if key == "" {
		return errs.Errorf(errs.Storage, "validate key", "empty key")
	}
	if strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return errs.Errorf(errs.Storage, "validate key", "invalid key %q", key)
	}
	return nil
}

func storageErr(op string, err error) error {
	return errs.E(errs.Storage, op, err)
}

