package storage

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// DefaultNamespace prefixes every key written by KVStore.
const DefaultNamespace = "pumpsniper:"

type kvEntry struct {
	Key       string `gorm:"column:entry_key;primaryKey"`
	Value     []byte `gorm:"column:value"`
	UpdatedAt time.Time
}

func (kvEntry) TableName() string { return "kv_entries" }

// KVStore keeps every record in a single SQLite table, keys namespaced.
type KVStore struct {
	db        *gorm.DB
	namespace string
}

// NewKVStore opens (or creates) the database at path. ":memory:" is accepted.
func NewKVStore(path, namespace string) (*KVStore, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, storageErr("create database directory", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, storageErr("open database", err)
	}

	// every connection to ":memory:" is a separate database
	sqlDB, err := db.DB()
	if err != nil {
		return nil, storageErr("open database", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&kvEntry{}); err != nil {
		return nil, storageErr("migrate database", err)
	}

	return &KVStore{db: db, namespace: namespace}, nil
}

// Close releases the underlying connection.
func (s *KVStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return storageErr("close database", err)
	}
	return sqlDB.Close()
}

func (s *KVStore) Save(key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	entry := kvEntry{Key: s.namespace + key, Value: value, UpdatedAt: time.Now()}
	err := s.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&entry).Error
	if err != nil {
		return storageErr("save "+key, err)
	}
	return nil
}

func (s *KVStore) Load(key string) ([]byte, bool, error) {
	if err := validateKey(key); err != nil {
		return nil, false, err
	}

	var entry kvEntry
	err := s.db.First(&entry, "entry_key = ?", s.namespace+key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, storageErr("load "+key, err)
	}
	return entry.Value, true, nil
}

func (s *KVStore) Remove(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := s.db.Where("entry_key = ?", s.namespace+key).Delete(&kvEntry{}).Error; err != nil {
		return storageErr("remove "+key, err)
	}
	return nil
}

func (s *KVStore) Exists(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	var count int64
	if err := s.db.Model(&kvEntry{}).Where("entry_key = ?", s.namespace+key).Count(&count).Error; err != nil {
		return false, storageErr("exists "+key, err)
	}
	return count > 0, nil
}

// ListKeys returns keys under this store's namespace with the prefix stripped.
func (s *KVStore) ListKeys() ([]string, error) {
	var all []string
	if err := s.db.Model(&kvEntry{}).Pluck("entry_key", &all).Error; err != nil {
		return nil, storageErr("list keys", err)
	}

	keys := make([]string, 0, len(all))
	for _, k := range all {
		if strings.HasPrefix(k, s.namespace) {
			keys = append(keys, strings.TrimPrefix(k, s.namespace))
		}
	}
	sort.Strings(keys)
	return keys, nil
}
